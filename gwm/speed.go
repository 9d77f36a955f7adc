package gwm

import (
	"math"
	"time"
)

const (
	// Process noise on acceleration and measurement noise on speed
	speedProcessNoise     = 100.0
	speedMeasurementNoise = 0.3
	speedGainIterations   = 1000

	// Measurements further than this from the estimate reset the filter (m/s)
	speedResetThreshold = 2.0
)

// SpeedEstimator filters a speed measurement into speed and acceleration.
// It is not safe for concurrent use; CarState owns one.
type SpeedEstimator struct {
	v, a   float64
	dt     float64
	kv, ka float64
}

// NewSpeedEstimator builds a constant-acceleration Kalman filter for
// measurements arriving every dt, using its steady-state gain.
func NewSpeedEstimator(dt time.Duration) *SpeedEstimator {
	if dt <= 0 {
		dt = DTCtrl
	}
	e := &SpeedEstimator{dt: dt.Seconds()}
	e.kv, e.ka = speedGain(e.dt)
	return e
}

// speedGain iterates the Riccati recursion for A=[[1,dt],[0,1]], C=[1,0],
// Q=dt*diag(0, speedProcessNoise), R=speedMeasurementNoise.
func speedGain(dt float64) (float64, float64) {
	var p00, p01, p10, p11, kv, ka float64
	for i := 0; i < speedGainIterations; i++ {
		p00, p01, p10, p11 = p00+dt*(p01+p10)+dt*dt*p11, p01+dt*p11, p10+dt*p11, p11+dt*speedProcessNoise

		s := p00 + speedMeasurementNoise
		kv, ka = p00/s, p10/s

		p00, p01, p10, p11 = (1-kv)*p00, (1-kv)*p01, p10-ka*p00, p11-ka*p01
	}
	return kv, ka
}

// Gain returns the speed and acceleration gains in use.
func (e *SpeedEstimator) Gain() (float64, float64) {
	return e.kv, e.ka
}

// Reset sets the speed estimate and zeroes acceleration.
func (e *SpeedEstimator) Reset(v float64) {
	e.v = v
	e.a = 0
}

// Update feeds one raw measurement and returns the filtered speed and
// acceleration.
func (e *SpeedEstimator) Update(raw float64) (float64, float64) {
	if math.Abs(raw-e.v) > speedResetThreshold {
		e.Reset(raw)
	}

	predV := e.v + e.a*e.dt
	predA := e.a
	innov := raw - predV

	e.v = predV + e.kv*innov
	e.a = predA + e.ka*innov
	return e.v, e.a
}
