package gwm

import (
	"fmt"
	"math"
	"time"
)

// Counter value the first frame after a reset carries
const initialCounter uint8 = 0

// Encode builds the AUTOPILOT steering frame for one cycle. desired is the
// normalized torque in -1..1; it is scaled by SteerMax, rounded half away
// from zero and clamped. A disabled command always carries zero torque and
// no request. The returned counter is priorCounter+1 modulo the counter
// width and is also the counter written into the frame.
func Encode(desired float64, enabled bool, priorCounter uint8, p Profile) (BusFrame, uint8) {
	torque := 0
	if enabled {
		torque = scaleTorque(desired, p.SteerMax)
	}
	return encodeTorque(torque, enabled, priorCounter, p)
}

// scaleTorque maps a normalized request onto ±steerMax. The product is
// clamped before conversion so out-of-range and infinite requests saturate
// on their own side; NaN maps to zero.
func scaleTorque(desired float64, steerMax int) int {
	if math.IsNaN(desired) {
		return 0
	}
	limit := float64(steerMax)
	return int(math.Round(clamp(desired*limit, -limit, limit)))
}

func encodeTorque(torque int, request bool, priorCounter uint8, p Profile) (BusFrame, uint8) {
	counter := uint8((int(priorCounter) + 1) % p.CounterModulus)

	values := map[string]float64{
		SigAPSteeringCommand: float64(torque),
		SigAPState:           float64(boolToByte(request)),
		SigAPCounter:         float64(counter),
	}
	frame, err := Packer{}.Pack(MsgAutopilot, BusPowertrain, values)
	if err != nil {
		// The AUTOPILOT layout is fixed at compile time
		panic(fmt.Sprintf("gwm: encode steering frame: %v", err))
	}
	frame.Data[ChecksumByte] = FrameChecksum(frame.Data, frame.Length)
	return frame, counter
}

// DecodeSteerCommand reads back the fields of an AUTOPILOT payload.
func DecodeSteerCommand(data [8]byte) SteerCommand {
	def, _ := LookupMessage(MsgAutopilot)
	values := def.Decode(data)
	return SteerCommand{
		Torque:   int(values[SigAPSteeringCommand]),
		Request:  values[SigAPState] != 0,
		Counter:  uint8(values[SigAPCounter]),
		Checksum: uint8(values[SigAPChecksum]),
	}
}

// CarController turns planner requests into rate-limited AUTOPILOT frames.
type CarController struct {
	profile    Profile
	cycle      time.Duration
	counter    uint8
	lastTorque int
	frame      uint64
	logger     Logger

	rtTorque int
	rtFrames int
	enabled  bool
}

func NewCarController(p Profile, logger Logger) *CarController {
	if logger == nil {
		logger = nopLogger{}
	}
	c := &CarController{profile: p, cycle: DTCtrl, logger: logger}
	c.Reset()
	return c
}

// SetCycleTime sets the interval between Update calls, used to track the
// realtime torque window.
func (c *CarController) SetCycleTime(d time.Duration) {
	if d > 0 {
		c.cycle = d
	}
}

// Reset restarts the counter sequence and drops the torque history.
func (c *CarController) Reset() {
	c.counter = uint8((int(initialCounter) + c.profile.CounterModulus - 1) % c.profile.CounterModulus)
	c.lastTorque = 0
	c.frame = 0
	c.rtTorque = 0
	c.rtFrames = 0
	c.enabled = false
}

// Update produces the frame for this cycle. Torque is limited against the
// previous applied value and the measured driver torque before encoding.
func (c *CarController) Update(cc CarControl, state VehicleState) BusFrame {
	torque := 0
	if cc.Enabled {
		desired := scaleTorque(cc.Torque, c.profile.SteerMax)
		torque = c.applyDriverTorqueLimits(desired, state.SteeringTorque)
	}
	if cc.Enabled != c.enabled {
		c.logger.Info("Steering %s at frame %d", map[bool]string{true: "engaged", false: "released"}[cc.Enabled], c.frame)
		c.enabled = cc.Enabled
	}

	frame, counter := encodeTorque(torque, cc.Enabled, c.counter, c.profile)
	c.counter = counter
	c.lastTorque = torque
	c.frame++

	c.rtFrames++
	if !cc.Enabled {
		c.rtTorque = 0
		c.rtFrames = 0
	} else if time.Duration(c.rtFrames)*c.cycle >= c.profile.Limits.RealtimeInterval {
		c.rtTorque = torque
		c.rtFrames = 0
	}

	return frame
}

func (c *CarController) applyDriverTorqueLimits(desired int, driverTorque float64) int {
	p := c.profile
	steerMax := float64(p.SteerMax)
	allowance := float64(p.SteerDriverAllowance)
	mult := float64(p.SteerDriverMultiplier)

	driverMax := steerMax + (allowance+driverTorque)*mult
	driverMin := -steerMax + (-allowance+driverTorque)*mult
	maxAllowed := math.Max(math.Min(steerMax, driverMax), 0)
	minAllowed := math.Min(math.Max(-steerMax, driverMin), 0)

	torque := clamp(float64(desired), minAllowed, maxAllowed)

	// Stay inside the torque error band the safety monitor enforces
	maxErr := float64(p.Limits.MaxTorqueError)
	torque = clamp(torque, math.Min(driverTorque, 0)-maxErr, math.Max(driverTorque, 0)+maxErr)

	last := float64(c.lastTorque)
	up := float64(p.SteerDeltaUp)
	down := float64(p.SteerDeltaDown)
	if last > 0 {
		torque = clamp(torque, math.Max(last-down, -up), last+up)
	} else {
		torque = clamp(torque, last-up, math.Min(last+down, up))
	}

	// Realtime window, narrowed by one step so a one-frame offset between
	// our window and the monitor's still passes
	rt := float64(p.Limits.MaxRealtimeDelta) - math.Max(up, down)
	ref := float64(c.rtTorque)
	torque = clamp(torque, ref-rt, ref+rt)

	return int(math.Round(torque))
}

// Counter returns the counter of the last frame produced.
func (c *CarController) Counter() uint8 { return c.counter }

// LastTorque returns the torque of the last frame produced.
func (c *CarController) LastTorque() int { return c.lastTorque }

// Frames returns how many frames have been produced since Reset.
func (c *CarController) Frames() uint64 { return c.frame }
