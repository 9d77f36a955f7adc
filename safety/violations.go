package safety

import "fmt"

// Violation identifies why a frame was vetoed
type Violation uint32

const (
	ViolationNone Violation = iota
	ViolationDriverOverride
	ViolationBadLength
	ViolationChecksum
	ViolationRequestMismatch
	ViolationMaxTorque
	ViolationRealtimeDelta
	ViolationRateLimit
	ViolationTorqueError
	ViolationBusNotAllowed
	ViolationCameraChecksum
)

type Severity int

const (
	SeverityWarning Severity = iota
	SeverityCritical
)

type ViolationConfig struct {
	Code        Violation
	Description string
	Severity    Severity
}

var violationConfigs = map[Violation]ViolationConfig{
	ViolationDriverOverride:  {ViolationDriverOverride, "Driver override active", SeverityWarning},
	ViolationBadLength:       {ViolationBadLength, "Steering frame has wrong length", SeverityCritical},
	ViolationChecksum:        {ViolationChecksum, "Steering frame checksum mismatch", SeverityCritical},
	ViolationRequestMismatch: {ViolationRequestMismatch, "Torque without steering request", SeverityCritical},
	ViolationMaxTorque:       {ViolationMaxTorque, "Steering torque above limit", SeverityCritical},
	ViolationRealtimeDelta:   {ViolationRealtimeDelta, "Steering torque realtime delta above limit", SeverityCritical},
	ViolationRateLimit:       {ViolationRateLimit, "Steering torque rate above limit", SeverityCritical},
	ViolationTorqueError:     {ViolationTorqueError, "Steering torque too far from measured torque", SeverityCritical},
	ViolationBusNotAllowed:   {ViolationBusNotAllowed, "Steering frame on disallowed bus", SeverityCritical},
	ViolationCameraChecksum:  {ViolationCameraChecksum, "Camera steering frame checksum mismatch", SeverityWarning},
}

func GetViolationConfig(v Violation) (ViolationConfig, bool) {
	config, ok := violationConfigs[v]
	return config, ok
}

// Violations returns every defined violation code in order.
func Violations() []Violation {
	out := make([]Violation, 0, len(violationConfigs))
	for v := ViolationDriverOverride; v <= ViolationCameraChecksum; v++ {
		out = append(out, v)
	}
	return out
}

func (v Violation) String() string {
	if v == ViolationNone {
		return "none"
	}
	if config, ok := violationConfigs[v]; ok {
		return config.Description
	}
	return fmt.Sprintf("violation(%d)", uint32(v))
}
