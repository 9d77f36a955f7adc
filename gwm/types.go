package gwm

// Gear represents the selected transmission position
type Gear int

const (
	GearUnknown Gear = iota
	GearPark
	GearReverse
	GearNeutral
	GearDrive
)

func (g Gear) String() string {
	switch g {
	case GearPark:
		return "park"
	case GearReverse:
		return "reverse"
	case GearNeutral:
		return "neutral"
	case GearDrive:
		return "drive"
	default:
		return "unknown"
	}
}

// gearTable maps the raw DRIVE_MODE value to a gear
var gearTable = map[int]Gear{
	0: GearPark,
	1: GearDrive,
	2: GearNeutral,
	3: GearReverse,
}

// ParseGear maps a raw DRIVE_MODE value. Values outside the table are
// GearUnknown.
func ParseGear(raw int) Gear {
	if g, ok := gearTable[raw]; ok {
		return g
	}
	return GearUnknown
}

// ButtonType identifies a steering-wheel stalk button
type ButtonType int

const (
	ButtonUnknown ButtonType = iota
	ButtonCancel
	ButtonMainCruise
	ButtonAccelCruise
	ButtonDecelCruise
	ButtonGapReduce
	ButtonGapIncrease
	ButtonLKAS
)

func (b ButtonType) String() string {
	switch b {
	case ButtonCancel:
		return "cancel"
	case ButtonMainCruise:
		return "main-cruise"
	case ButtonAccelCruise:
		return "accel-cruise"
	case ButtonDecelCruise:
		return "decel-cruise"
	case ButtonGapReduce:
		return "gap-reduce"
	case ButtonGapIncrease:
		return "gap-increase"
	case ButtonLKAS:
		return "lkas"
	default:
		return "unknown"
	}
}

type ButtonEvent struct {
	Type    ButtonType
	Pressed bool
}

// WheelSpeeds in m/s
type WheelSpeeds struct {
	FL, FR, RL, RR float64
}

func (w WheelSpeeds) Mean() float64 {
	return (w.FL + w.FR + w.RL + w.RR) / 4
}

type Cruise struct {
	Enabled     bool
	Available   bool
	Speed       float64 // m/s
	NonAdaptive bool
	Standstill  bool
}

// VehicleState is one decode cycle's view of the car. Each call to
// CarState.Update returns a fresh value.
type VehicleState struct {
	VEgo        float64
	VEgoRaw     float64
	AEgo        float64
	VEgoCluster float64
	Standstill  bool

	WheelSpeeds *WheelSpeeds

	SteeringAngleDeg    float64
	SteeringTorque      float64
	SteeringPressed     bool
	SteerFaultTemporary bool
	SteerFaultPermanent bool

	Gas          float64
	GasPressed   bool
	Brake        float64
	BrakePressed bool

	GearShifter Gear
	Cruise      Cruise

	LeftBlinker       bool
	RightBlinker      bool
	DoorOpen          bool
	SeatbeltUnlatched bool

	ButtonEvents []ButtonEvent

	// False until every essential message has been received at least once
	CanValid bool
}

// CarControl is the planner's request for one cycle
type CarControl struct {
	Enabled bool
	Torque  float64 // normalized, -1..1
}

// SteerCommand is the decoded content of an AUTOPILOT frame
type SteerCommand struct {
	Torque   int
	Request  bool
	Counter  uint8
	Checksum uint8
}

// CarParams is the static description of the car handed to the planner
type CarParams struct {
	CarFingerprint     string
	Mass               float64
	Wheelbase          float64
	SteerRatio         float64
	CenterToFrontRatio float64
	CenterToFront      float64
	MinSteerSpeed      float64
	SteerActuatorDelay float64
	SteerLimitTimer    float64
	SteerMax           int
	Longitudinal       LongitudinalTuning
	AccelMin           float64
	AccelMax           float64
}
