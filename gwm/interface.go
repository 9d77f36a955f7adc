package gwm

import (
	"sync"
	"time"
)

// CarConfig contains configuration for the car interface
type CarConfig struct {
	Logger  Logger
	Profile Profile
}

// CarInterface bundles the decoder and encoder of the platform behind one
// object. Update and Apply may be called from different goroutines.
type CarInterface struct {
	sync.Mutex
	logger     Logger
	profile    Profile
	params     CarParams
	state      *CarState
	controller *CarController
	last       VehicleState
	cycle      time.Duration
}

func NewCarInterface(config CarConfig) *CarInterface {
	logger := config.Logger
	if logger == nil {
		logger = nopLogger{}
	}

	ci := &CarInterface{
		logger:     logger,
		profile:    config.Profile,
		params:     NewCarParams(config.Profile),
		state:      NewCarState(config.Profile),
		controller: NewCarController(config.Profile, logger),
		cycle:      DTCtrl,
	}
	logger.Info("Car interface for %s initialized (steer max %d)", PlatformName, ci.profile.SteerMax)
	return ci
}

// NewCarParams derives the planner-facing parameters from a profile.
func NewCarParams(p Profile) CarParams {
	return CarParams{
		CarFingerprint:     PlatformName,
		Mass:               p.Specs.Mass,
		Wheelbase:          p.Specs.Wheelbase,
		SteerRatio:         p.Specs.SteerRatio,
		CenterToFrontRatio: p.Specs.CenterToFrontRatio,
		CenterToFront:      p.Specs.Wheelbase * p.Specs.CenterToFrontRatio,
		MinSteerSpeed:      p.Specs.MinSteerSpeed,
		SteerActuatorDelay: p.SteerActuatorDelay.Seconds(),
		SteerLimitTimer:    p.SteerLimitTimer.Seconds(),
		SteerMax:           p.SteerMax,
		Longitudinal:       p.Longitudinal,
		AccelMin:           p.AccelMin,
		AccelMax:           p.AccelMax,
	}
}

// Update decodes one cycle of signal values.
func (ci *CarInterface) Update(values CANValues) VehicleState {
	ci.Lock()
	defer ci.Unlock()

	state := ci.state.Update(values)
	if state.CanValid != ci.last.CanValid {
		if state.CanValid {
			ci.logger.Info("All essential messages received")
		} else {
			ci.logger.Warn("Essential messages missing, vehicle state is not valid")
		}
	}
	if state.GearShifter != ci.last.GearShifter {
		ci.logger.Debug("Gear: %s -> %s", ci.last.GearShifter, state.GearShifter)
	}
	for _, ev := range state.ButtonEvents {
		ci.logger.Debug("Button pressed: %s", ev.Type)
	}

	ci.last = state
	return state
}

// Apply encodes the planner request against the last decoded state.
func (ci *CarInterface) Apply(cc CarControl) BusFrame {
	ci.Lock()
	defer ci.Unlock()
	return ci.controller.Update(cc, ci.last)
}

// State returns the last decoded vehicle state.
func (ci *CarInterface) State() VehicleState {
	ci.Lock()
	defer ci.Unlock()
	return ci.last
}

func (ci *CarInterface) Params() CarParams {
	return ci.params
}

func (ci *CarInterface) Profile() Profile {
	return ci.profile
}

// SetCycleTime tells the speed filter and the torque limiter how often
// Update and Apply run.
func (ci *CarInterface) SetCycleTime(d time.Duration) {
	ci.Lock()
	defer ci.Unlock()
	ci.cycle = d
	ci.state.SetCycleTime(d)
	ci.controller.SetCycleTime(d)
}

// Controller exposes the encoder for counter and torque inspection.
func (ci *CarInterface) Controller() *CarController {
	return ci.controller
}

// Reset drops decoder history and restarts the counter sequence.
func (ci *CarInterface) Reset() {
	ci.Lock()
	defer ci.Unlock()
	ci.state = NewCarState(ci.profile)
	ci.state.SetCycleTime(ci.cycle)
	ci.controller.Reset()
	ci.last = VehicleState{}
}
