package gwm

import (
	"math"
	"time"
)

const (
	KphToMs = 1 / 3.6

	standstillThreshold   = 0.01 // m/s
	cruiseStandstillSpeed = 0.1  // m/s
	clusterSpeedFactor    = 1.015
)

var essentialMessages = []uint32{MsgSpeed, MsgCarOverallSignals}

type buttonSignal struct {
	msg    uint32
	signal string
	button ButtonType
}

// Emission order of button events within one cycle
var buttonSignals = []buttonSignal{
	{MsgSteerAndAPStalk, SigAPCancel, ButtonCancel},
	{MsgSteerAndAPStalk, SigAPEnable, ButtonMainCruise},
	{MsgSteerAndAPStalk, SigAPIncreaseSpeed, ButtonAccelCruise},
	{MsgSteerAndAPStalk, SigAPDecreaseSpeed, ButtonDecelCruise},
	{MsgSteerAndAPStalk, SigAPReduceDistance, ButtonGapReduce},
	{MsgSteerAndAPStalk, SigAPIncreaseDistance, ButtonGapIncrease},
	{MsgSteerAndAPStalk, SigLaneKeepButton, ButtonLKAS},
}

// CarState decodes signal values into a VehicleState. The speed filter and
// the button edge detectors are the only state carried between cycles.
type CarState struct {
	profile Profile
	speed   *SpeedEstimator
	buttons []*EdgeDetector
}

func NewCarState(p Profile) *CarState {
	cs := &CarState{
		profile: p,
		speed:   NewSpeedEstimator(DTCtrl),
		buttons: make([]*EdgeDetector, len(buttonSignals)),
	}
	for i := range cs.buttons {
		cs.buttons[i] = NewEdgeDetector(p.ButtonDebounceCycles)
	}
	return cs
}

// SetCycleTime rebuilds the speed filter for a new update interval.
func (cs *CarState) SetCycleTime(d time.Duration) {
	cs.speed = NewSpeedEstimator(d)
}

// Update decodes one cycle. Missing signals fall back to zero values; when
// SPEED or CAR_OVERALL_SIGNALS has never been received the result has
// CanValid false, zero speed and GearUnknown.
func (cs *CarState) Update(values CANValues) VehicleState {
	var ret VehicleState

	ret.CanValid = true
	for _, id := range essentialMessages {
		if _, ok := values[id]; !ok {
			ret.CanValid = false
		}
	}

	cs.updateSpeed(values, &ret)
	cs.updateSteering(values, &ret)
	cs.updatePedals(values, &ret)

	ret.GearShifter = GearUnknown
	if mode, ok := values.Get(MsgCarOverallSignals, SigDriveMode); ok {
		ret.GearShifter = ParseGear(int(mode))
	}

	cs.updateCruise(values, &ret)

	ret.LeftBlinker = values.GetOr(MsgCarOverallSignals, SigLeftTurn, 0) == 1
	ret.RightBlinker = values.GetOr(MsgCarOverallSignals, SigRightTurn, 0) == 1
	for _, door := range []string{SigDoorFLOpen, SigDoorFROpen, SigDoorRLOpen, SigDoorRROpen} {
		if values.GetOr(MsgCarOverallSignals, door, 0) == 1 {
			ret.DoorOpen = true
		}
	}
	ret.SeatbeltUnlatched = values.GetOr(MsgCarOverallSignals, SigSeatbeltState, 0) != 0

	ret.ButtonEvents = cs.updateButtons(values)
	return ret
}

func (cs *CarState) updateSpeed(values CANValues, ret *VehicleState) {
	if ws, ok := wheelSpeeds(values); ok {
		ret.WheelSpeeds = &ws
		ret.VEgoRaw = ws.Mean()
		ret.VEgo, ret.AEgo = cs.speed.Update(ret.VEgoRaw)
	} else {
		ret.VEgoRaw = values.GetOr(MsgSpeed, SigVehicleSpeed, 0) * KphToMs
		ret.VEgo = ret.VEgoRaw
		cs.speed.Reset(ret.VEgoRaw)
	}
	ret.VEgoCluster = ret.VEgo * clusterSpeedFactor
	ret.Standstill = ret.VEgo < standstillThreshold
}

func wheelSpeeds(values CANValues) (WheelSpeeds, bool) {
	msg, ok := values[MsgWheelSpeeds]
	if !ok {
		return WheelSpeeds{}, false
	}
	var raw [4]float64
	for i, sig := range []string{SigWheelSpeedFL, SigWheelSpeedFR, SigWheelSpeedRL, SigWheelSpeedRR} {
		v, ok := msg[sig]
		if !ok {
			return WheelSpeeds{}, false
		}
		raw[i] = v * KphToMs
	}
	return WheelSpeeds{FL: raw[0], FR: raw[1], RL: raw[2], RR: raw[3]}, true
}

func (cs *CarState) updateSteering(values CANValues, ret *VehicleState) {
	ret.SteeringAngleDeg = values.GetOr(MsgSteerAndAPStalk, SigSteeringAngle, 0)
	ret.SteeringTorque = values.GetOr(MsgSteerAndAPStalk, SigSteeringTorque, 0)
	ret.SteeringPressed = math.Abs(ret.SteeringTorque) > cs.profile.SteerPressedThreshold
	ret.SteerFaultTemporary = values.GetOr(MsgSteerAndAPStalk, SigEPSFaultTemp, 0) == 1
	ret.SteerFaultPermanent = values.GetOr(MsgSteerAndAPStalk, SigEPSFaultPerm, 0) == 1
}

func (cs *CarState) updatePedals(values CANValues, ret *VehicleState) {
	ret.Gas = clamp(values.GetOr(MsgCarOverallSignals2, SigGasPosition, 0)/100, 0, 1)
	if pressed, ok := values.Get(MsgCarOverallSignals2, SigGasPressed); ok {
		ret.GasPressed = pressed == 1
	} else {
		ret.GasPressed = ret.Gas > cs.profile.GasPressedThreshold
	}

	if brake, ok := values.Get(MsgCarOverallSignals2, SigBrakeSignal); ok {
		ret.BrakePressed = brake == 1
	} else {
		ret.BrakePressed = values.GetOr(MsgBrake, SigBrakeSignal1, 0) == 1
	}
	ret.Brake = clamp(values.GetOr(MsgBrake, SigBrakePressure, 0)/cs.profile.MaxBrakePressure, 0, 1)
}

func (cs *CarState) updateCruise(values CANValues, ret *VehicleState) {
	if state, ok := values.Get(MsgAutopilot, SigAPState); ok {
		ret.Cruise.Enabled = int(state) == cs.profile.CruiseEnabledState
		ret.Cruise.Available = cs.profile.CruiseAvailable(int(state))
	}
	ret.Cruise.Speed = values.GetOr(MsgAutopilot, SigACCSpeedSelection, 0) * KphToMs
	ret.Cruise.NonAdaptive = values.GetOr(MsgAutopilot, SigACCNonAdaptive, 0) == 1
	ret.Cruise.Standstill = ret.VEgo < cruiseStandstillSpeed
}

func (cs *CarState) updateButtons(values CANValues) []ButtonEvent {
	var events []ButtonEvent
	for i, b := range buttonSignals {
		raw, ok := values.Get(b.msg, b.signal)
		if !ok {
			continue
		}
		if cs.buttons[i].Update(raw) == EdgeRising {
			events = append(events, ButtonEvent{Type: b.button, Pressed: true})
		}
	}
	return events
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
