// Package safety re-validates steering frames at the wire level before they
// reach the bus. It reads nothing but the frames themselves and shares no
// state with the decoder or encoder.
package safety

import (
	"encoding/binary"
	"math"
	"sync"
	"time"

	"lkas-service/gwm"
)

// Status is a snapshot of the monitor shadow state
type Status struct {
	Override      bool
	DriverTorque  int
	LastTorque    int
	LastRequest   bool
	Accepted      uint64
	Vetoed        uint64
	Dropped       uint64
	LastViolation Violation
}

type Option func(*Monitor)

// WithClock replaces time.Now as the source of frame timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) {
		m.now = now
	}
}

func WithLogger(logger gwm.Logger) Option {
	return func(m *Monitor) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// Monitor is the last gate for outbound steering frames. OnReceive and
// OnTransmit may be called from different goroutines.
type Monitor struct {
	mu     sync.Mutex
	limits gwm.SafetyLimits
	now    func() time.Time
	logger gwm.Logger

	driverTorque     sample
	lastDriverTorque int
	haveDriverTorque bool
	override         bool

	hasCommand  bool
	lastTorque  int
	lastRequest bool
	lastUpdate  time.Time
	rtTorque    int
	rtStart     time.Time

	accepted      uint64
	vetoed        uint64
	dropped       uint64
	lastViolation Violation
}

func NewMonitor(limits gwm.SafetyLimits, opts ...Option) *Monitor {
	m := &Monitor{
		limits: limits,
		now:    time.Now,
		logger: nopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Reset returns the monitor to its initial state and clears a latched
// driver override.
func (m *Monitor) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.driverTorque.reset()
	m.lastDriverTorque = 0
	m.haveDriverTorque = false
	m.override = false

	m.hasCommand = false
	m.lastTorque = 0
	m.lastRequest = false
	m.lastUpdate = time.Time{}
	m.rtTorque = 0
	m.rtStart = time.Time{}

	m.lastViolation = ViolationNone
	m.logger.Info("Safety monitor reset")
}

// OnReceive observes an inbound frame. It returns false when the frame must
// not be consumed, which only happens for a corrupt AUTOPILOT frame from the
// camera.
func (m *Monitor) OnReceive(frame gwm.BusFrame) bool {
	switch {
	case frame.ID == gwm.MsgSteerAndAPStalk && frame.Bus == gwm.BusPowertrain:
		if frame.Length < 5 {
			return true
		}
		torque := int(int16(binary.LittleEndian.Uint16(frame.Data[3:5])))
		m.sampleDriverTorque(torque)

	case frame.ID == gwm.MsgAutopilot && frame.Bus == gwm.BusCamera:
		if frame.Length != gwm.FrameLength || frame.Data[gwm.ChecksumByte] != gwm.FrameChecksum(frame.Data, frame.Length) {
			m.mu.Lock()
			m.dropped++
			m.mu.Unlock()
			m.logger.Warn("Dropping camera frame: %s", ViolationCameraChecksum)
			return false
		}
	}
	return true
}

func (m *Monitor) sampleDriverTorque(torque int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.driverTorque.update(torque)
	if m.haveDriverTorque && !m.override &&
		math.Abs(float64(torque-m.lastDriverTorque)) > m.limits.DriverOverrideDelta {
		m.override = true
		m.logger.Warn("Driver override: torque %d -> %d", m.lastDriverTorque, torque)
	}
	m.lastDriverTorque = torque
	m.haveDriverTorque = true
}

// OnTransmit reports whether an outbound frame may be sent.
func (m *Monitor) OnTransmit(frame gwm.BusFrame) bool {
	return m.CheckTransmit(frame) == ViolationNone
}

// CheckTransmit evaluates an outbound frame and returns the first rule it
// breaks. Frames other than AUTOPILOT are not inspected. The shadow state
// only advances when the frame is accepted.
func (m *Monitor) CheckTransmit(frame gwm.BusFrame) Violation {
	if frame.ID != gwm.MsgAutopilot {
		return ViolationNone
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	v := m.checkSteer(frame, now)
	if v != ViolationNone {
		m.vetoed++
		m.lastViolation = v
		m.logger.Debug("Veto %s: %s", frame, v)
		return v
	}

	torque, request := steerFields(frame.Data)
	if !m.hasCommand || !request || now.Sub(m.rtStart) >= m.limits.RealtimeInterval {
		m.rtTorque = torque
		m.rtStart = now
	}
	m.hasCommand = true
	m.lastTorque = torque
	m.lastRequest = request
	m.lastUpdate = now
	m.accepted++
	return ViolationNone
}

func steerFields(data [8]byte) (int, bool) {
	torque := int(int16(binary.LittleEndian.Uint16(data[0:2])))
	request := (data[2]>>2)&0x3 != 0
	return torque, request
}

func (m *Monitor) checkSteer(frame gwm.BusFrame, now time.Time) Violation {
	if frame.Bus != gwm.BusPowertrain && frame.Bus != gwm.BusCamera {
		return ViolationBusNotAllowed
	}
	if frame.Length != gwm.FrameLength {
		return ViolationBadLength
	}
	if frame.Data[gwm.ChecksumByte] != gwm.FrameChecksum(frame.Data, frame.Length) {
		return ViolationChecksum
	}
	if m.override {
		return ViolationDriverOverride
	}

	torque, request := steerFields(frame.Data)
	if !request {
		if torque != 0 {
			return ViolationRequestMismatch
		}
		return ViolationNone
	}

	l := m.limits
	if abs(torque) > l.MaxTorque {
		return ViolationMaxTorque
	}
	if !m.hasCommand {
		return ViolationNone
	}

	if abs(torque-m.rtTorque) > l.MaxRealtimeDelta {
		return ViolationRealtimeDelta
	}
	if now.Sub(m.lastUpdate) < l.RealtimeInterval && abs(torque-m.lastTorque) > l.MaxRealtimeDelta {
		return ViolationRealtimeDelta
	}

	last := m.lastTorque
	highestRL := max(last, 0) + l.MaxRateUp
	lowestRL := min(last, 0) - l.MaxRateUp
	if torque > highestRL || torque < lowestRL {
		return ViolationRateLimit
	}

	if m.lastRequest {
		highest := max(last-l.MaxRateDown, max(m.driverTorque.max, 0)+l.MaxTorqueError)
		lowest := min(last+l.MaxRateDown, min(m.driverTorque.min, 0)-l.MaxTorqueError)
		if torque > highest || torque < lowest {
			return ViolationTorqueError
		}
	}
	return ViolationNone
}

// Forward returns the bus a frame seen on bus should be copied to, or -1.
// AUTOPILOT from the camera is never forwarded since this service replaces
// it.
func (m *Monitor) Forward(bus uint8, addr uint32) int {
	switch bus {
	case gwm.BusPowertrain:
		return int(gwm.BusCamera)
	case gwm.BusCamera:
		if addr == gwm.MsgAutopilot {
			return -1
		}
		return int(gwm.BusPowertrain)
	}
	return -1
}

func (m *Monitor) Override() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.override
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Status{
		Override:      m.override,
		DriverTorque:  m.lastDriverTorque,
		LastTorque:    m.lastTorque,
		LastRequest:   m.lastRequest,
		Accepted:      m.accepted,
		Vetoed:        m.vetoed,
		Dropped:       m.dropped,
		LastViolation: m.lastViolation,
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

type nopLogger struct{}

func (nopLogger) Printf(format string, v ...interface{})                          {}
func (nopLogger) Debug(format string, v ...interface{})                           {}
func (nopLogger) Info(format string, v ...interface{})                            {}
func (nopLogger) Warn(format string, v ...interface{})                            {}
func (nopLogger) Error(format string, v ...interface{})                           {}
func (nopLogger) DebugCAN(direction string, id uint32, data []byte, length uint8) {}
