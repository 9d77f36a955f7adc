package gwm

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
)

const (
	PlatformName = "GWM Haval H6 PHEV 2024"

	// Control cycle the speed filter gain was derived for
	DTCtrl = 10 * time.Millisecond
)

// SafetyLimits is the hard envelope enforced on outbound steering frames.
type SafetyLimits struct {
	MaxTorque           int           `toml:"max_torque"`
	MaxRateUp           int           `toml:"max_rate_up"`
	MaxRateDown         int           `toml:"max_rate_down"`
	MaxRealtimeDelta    int           `toml:"max_realtime_delta"`
	RealtimeInterval    time.Duration `toml:"realtime_interval"`
	MaxTorqueError      int           `toml:"max_torque_error"`
	DriverOverrideDelta float64       `toml:"driver_override_delta"`
}

// LongitudinalTuning is carried for the planner; this service does not
// actuate acceleration.
type LongitudinalTuning struct {
	KpBP []float64 `toml:"kp_bp"`
	KpV  []float64 `toml:"kp_v"`
	KiBP []float64 `toml:"ki_bp"`
	KiV  []float64 `toml:"ki_v"`
}

// CarSpecs describes the vehicle geometry reported to the planner.
type CarSpecs struct {
	Mass               float64 `toml:"mass"`
	Wheelbase          float64 `toml:"wheelbase"`
	SteerRatio         float64 `toml:"steer_ratio"`
	CenterToFrontRatio float64 `toml:"center_to_front_ratio"`
	MinSteerSpeed      float64 `toml:"min_steer_speed"`
}

// Profile holds every platform-specific number. It is built once at startup
// and passed by value.
type Profile struct {
	SteerMax              int     `toml:"steer_max"`
	SteerDeltaUp          int     `toml:"steer_delta_up"`
	SteerDeltaDown        int     `toml:"steer_delta_down"`
	SteerDriverAllowance  int     `toml:"steer_driver_allowance"`
	SteerDriverMultiplier int     `toml:"steer_driver_multiplier"`
	SteerPressedThreshold float64 `toml:"steer_pressed_threshold"`

	GasPressedThreshold float64 `toml:"gas_pressed_threshold"`
	MaxBrakePressure    float64 `toml:"max_brake_pressure"`

	// Counter width of the AUTOPILOT frame; 4 bits on this platform.
	CounterModulus int `toml:"counter_modulus"`

	CruiseEnabledState    int   `toml:"cruise_enabled_state"`
	CruiseAvailableStates []int `toml:"cruise_available_states"`

	ButtonDebounceCycles int `toml:"button_debounce_cycles"`

	SteerActuatorDelay time.Duration `toml:"steer_actuator_delay"`
	SteerLimitTimer    time.Duration `toml:"steer_limit_timer"`
	AccelMin           float64       `toml:"accel_min"`
	AccelMax           float64       `toml:"accel_max"`

	Specs        CarSpecs           `toml:"specs"`
	Longitudinal LongitudinalTuning `toml:"longitudinal"`
	Limits       SafetyLimits       `toml:"safety"`
}

func DefaultProfile() Profile {
	return Profile{
		SteerMax:              2048,
		SteerDeltaUp:          15,
		SteerDeltaDown:        25,
		SteerDriverAllowance:  50,
		SteerDriverMultiplier: 1,
		SteerPressedThreshold: 1.0,

		GasPressedThreshold: 1e-3,
		MaxBrakePressure:    250.0,

		CounterModulus: 16,

		CruiseEnabledState:    1,
		CruiseAvailableStates: []int{1, 2},

		ButtonDebounceCycles: 1,

		SteerActuatorDelay: 400 * time.Millisecond,
		SteerLimitTimer:    400 * time.Millisecond,
		AccelMin:           -3.5,
		AccelMax:           2.0,

		Specs: CarSpecs{
			Mass:               2040,
			Wheelbase:          2.73,
			SteerRatio:         16.0,
			CenterToFrontRatio: 0.44,
			MinSteerSpeed:      0.0,
		},
		Longitudinal: LongitudinalTuning{
			KpBP: []float64{0., 5., 35.},
			KpV:  []float64{1.2, 0.8, 0.5},
			KiBP: []float64{0., 35.},
			KiV:  []float64{0.18, 0.12},
		},
		Limits: SafetyLimits{
			MaxTorque:           2048,
			MaxRateUp:           15,
			MaxRateDown:         25,
			MaxRealtimeDelta:    112,
			RealtimeInterval:    250 * time.Millisecond,
			MaxTorqueError:      350,
			DriverOverrideDelta: 5.0,
		},
	}
}

// LoadProfile overlays a TOML file on top of DefaultProfile. Keys missing
// from the file keep their default.
func LoadProfile(path string) (Profile, error) {
	p := DefaultProfile()
	if path == "" {
		return p, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Profile{}, errors.Wrap(err, "read profile")
	}

	md, err := toml.Decode(string(data), &p)
	if err != nil {
		return Profile{}, errors.Wrapf(err, "decode profile %s", path)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return Profile{}, errors.Errorf("profile %s: unknown keys %v", path, undecoded)
	}

	if err := p.Validate(); err != nil {
		return Profile{}, errors.Wrapf(err, "profile %s", path)
	}
	return p, nil
}

// Validate rejects profiles the encoder or monitor cannot honor.
func (p Profile) Validate() error {
	switch {
	case p.SteerMax <= 0:
		return errors.New("steer_max must be positive")
	case p.SteerMax > maxSteerCommand:
		return errors.Errorf("steer_max %d exceeds wire range %d", p.SteerMax, maxSteerCommand)
	case p.CounterModulus != 16:
		return errors.Errorf("counter_modulus %d does not match the 4-bit AUTOPILOT counter", p.CounterModulus)
	case p.Limits.MaxTorque <= 0 || p.Limits.MaxTorque > maxSteerCommand:
		return errors.Errorf("safety.max_torque %d out of range", p.Limits.MaxTorque)
	case p.Limits.MaxRateUp <= 0 || p.Limits.MaxRateDown <= 0:
		return errors.New("safety rate limits must be positive")
	case p.Limits.RealtimeInterval <= 0:
		return errors.New("safety.realtime_interval must be positive")
	case p.MaxBrakePressure <= 0:
		return errors.New("max_brake_pressure must be positive")
	case p.ButtonDebounceCycles < 1:
		return errors.New("button_debounce_cycles must be at least 1")
	}
	return nil
}

// CruiseAvailable reports whether the raw AP_STATE value means the system
// can be engaged.
func (p Profile) CruiseAvailable(state int) bool {
	for _, s := range p.CruiseAvailableStates {
		if s == state {
			return true
		}
	}
	return false
}
