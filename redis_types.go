package main

// Redis message types for lane keeping status updates
type RedisCarState struct {
	Speed             float64 // km/h, filtered
	RawSpeed          float64 // km/h
	Gear              string
	SteeringAngle     float64
	SteeringTorque    float64
	SteeringPressed   bool
	Gas               float64
	GasPressed        bool
	Brake             float64
	BrakePressed      bool
	CruiseEnabled     bool
	CruiseAvailable   bool
	CruiseSpeed       float64 // km/h
	LeftBlinker       bool
	RightBlinker      bool
	DoorOpen          bool
	SeatbeltUnlatched bool
	CanValid          bool
}

type RedisSteerStatus struct {
	Torque    int
	Request   bool
	Counter   uint8
	Vetoed    bool
	Violation string
}

type RedisEngagement struct {
	Available bool
	ReasonOff ReasonOff
}

type RedisSafetyStatus struct {
	Override bool
	Accepted uint64
	Vetoed   uint64
	Dropped  uint64
}

func onOff(b bool) string {
	return map[bool]string{true: "on", false: "off"}[b]
}
