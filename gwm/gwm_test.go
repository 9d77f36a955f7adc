package gwm

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// --- SpeedEstimator tests ---

func TestSpeedEstimator_SnapOnLargeJump(t *testing.T) {
	e := NewSpeedEstimator(DTCtrl)
	v, a := e.Update(5.0)
	if v != 5.0 || a != 0 {
		t.Errorf("expected snap to (5, 0), got (%f, %f)", v, a)
	}
}

func TestSpeedEstimator_Steady(t *testing.T) {
	e := NewSpeedEstimator(DTCtrl)
	e.Reset(10)
	for i := 0; i < 50; i++ {
		v, a := e.Update(10)
		if v != 10 || a != 0 {
			t.Fatalf("cycle %d: expected (10, 0), got (%f, %f)", i, v, a)
		}
	}
}

func TestSpeedEstimator_Converges(t *testing.T) {
	e := NewSpeedEstimator(DTCtrl)
	e.Reset(10)

	v, _ := e.Update(11)
	if v <= 10 || v >= 11 {
		t.Errorf("first update should move between 10 and 11, got %f", v)
	}

	var a float64
	for i := 0; i < 1000; i++ {
		v, a = e.Update(11)
	}
	if math.Abs(v-11) > 0.01 {
		t.Errorf("expected speed to converge to 11, got %f", v)
	}
	if math.Abs(a) > 0.01 {
		t.Errorf("expected acceleration to settle at 0, got %f", a)
	}
}

func TestSpeedEstimator_TracksRamp(t *testing.T) {
	e := NewSpeedEstimator(DTCtrl)
	e.Reset(0)
	raw := 0.0
	var a float64
	for i := 0; i < 1000; i++ {
		raw += 1.0 * DTCtrl.Seconds() // 1 m/s^2
		_, a = e.Update(raw)
	}
	if math.Abs(a-1.0) > 0.05 {
		t.Errorf("expected acceleration near 1.0, got %f", a)
	}
}

func TestSpeedEstimator_GainForCycle(t *testing.T) {
	tests := []struct {
		dt     time.Duration
		kv, ka float64
	}{
		{DTCtrl, 0.17406039, 1.65925647},
		{20 * time.Millisecond, 0.27534442, 2.19796205},
	}
	for _, tt := range tests {
		kv, ka := NewSpeedEstimator(tt.dt).Gain()
		if math.Abs(kv-tt.kv) > 1e-6 || math.Abs(ka-tt.ka) > 1e-6 {
			t.Errorf("dt %v: expected gain (%f, %f), got (%f, %f)", tt.dt, tt.kv, tt.ka, kv, ka)
		}
	}

	kv, _ := NewSpeedEstimator(0).Gain()
	if math.Abs(kv-0.17406039) > 1e-6 {
		t.Errorf("expected zero interval to fall back to %v, got gain %f", DTCtrl, kv)
	}
}

// --- EdgeDetector tests ---

func TestEdgeDetector_RisingEdges(t *testing.T) {
	d := NewEdgeDetector(1)
	seq := []float64{0, 0, 1, 1, 0, 1}

	var rising []int
	for i, v := range seq {
		if d.Update(v) == EdgeRising {
			rising = append(rising, i)
		}
	}
	if len(rising) != 2 || rising[0] != 2 || rising[1] != 5 {
		t.Errorf("expected rising edges at [2 5], got %v", rising)
	}
}

func TestEdgeDetector_Transitions(t *testing.T) {
	d := NewEdgeDetector(1)
	tests := []struct {
		in   float64
		want Edge
	}{
		{0, EdgeNone},
		{1, EdgeRising},
		{2, EdgeChanged},
		{2, EdgeNone},
		{0, EdgeFalling},
	}
	for i, tt := range tests {
		if got := d.Update(tt.in); got != tt.want {
			t.Errorf("sample %d (%v): expected %s, got %s", i, tt.in, tt.want, got)
		}
	}
}

func TestEdgeDetector_Debounce(t *testing.T) {
	d := NewEdgeDetector(2)
	seq := []float64{0, 1, 0, 1, 1, 1, 0, 0}
	want := []Edge{EdgeNone, EdgeNone, EdgeNone, EdgeNone, EdgeRising, EdgeNone, EdgeNone, EdgeFalling}
	for i, v := range seq {
		if got := d.Update(v); got != want[i] {
			t.Errorf("sample %d: expected %s, got %s", i, want[i], got)
		}
	}
	if d.Level() != 0 {
		t.Errorf("expected level 0, got %f", d.Level())
	}
}

// --- Gear tests ---

func TestParseGear_AllRawValues(t *testing.T) {
	known := map[int]Gear{0: GearPark, 1: GearDrive, 2: GearNeutral, 3: GearReverse}
	for raw := 0; raw <= 255; raw++ {
		want, ok := known[raw]
		if !ok {
			want = GearUnknown
		}
		if got := ParseGear(raw); got != want {
			t.Errorf("raw %d: expected %s, got %s", raw, want, got)
		}
	}
	if got := ParseGear(-1); got != GearUnknown {
		t.Errorf("raw -1: expected unknown, got %s", got)
	}
}

// --- CarState tests ---

func TestCarState_EmptyInput(t *testing.T) {
	cs := NewCarState(DefaultProfile())
	st := cs.Update(CANValues{})

	if st.CanValid {
		t.Error("expected CanValid false without essential messages")
	}
	if st.VEgo != 0 || st.GearShifter != GearUnknown {
		t.Errorf("expected zero speed and unknown gear, got %f %s", st.VEgo, st.GearShifter)
	}
	if st.WheelSpeeds != nil {
		t.Error("expected no wheel speeds")
	}
	if !st.Standstill {
		t.Error("expected standstill at zero speed")
	}
	if len(st.ButtonEvents) != 0 {
		t.Errorf("expected no button events, got %v", st.ButtonEvents)
	}
}

func TestCarState_SpeedAndTorque(t *testing.T) {
	cs := NewCarState(DefaultProfile())
	st := cs.Update(CANValues{
		MsgSpeed:             {SigVehicleSpeed: 50},
		MsgSteerAndAPStalk:   {SigSteeringTorque: 5.0, SigSteeringAngle: -3.2},
		MsgCarOverallSignals: {SigDriveMode: 1},
	})

	if math.Abs(st.VEgo-13.89) > 0.01 {
		t.Errorf("vEgo: expected 13.89, got %f", st.VEgo)
	}
	if st.VEgoRaw != st.VEgo {
		t.Errorf("expected raw speed to equal vEgo without wheel speeds, got %f vs %f", st.VEgoRaw, st.VEgo)
	}
	if math.Abs(st.VEgoCluster-st.VEgo*1.015) > 1e-9 {
		t.Errorf("cluster speed: expected %f, got %f", st.VEgo*1.015, st.VEgoCluster)
	}
	if !st.SteeringPressed {
		t.Error("expected steering pressed at torque 5.0")
	}
	if st.SteeringAngleDeg != -3.2 {
		t.Errorf("angle: expected -3.2, got %f", st.SteeringAngleDeg)
	}
	if st.GearShifter != GearDrive {
		t.Errorf("gear: expected drive, got %s", st.GearShifter)
	}
	if !st.CanValid {
		t.Error("expected CanValid true")
	}
	if st.Standstill {
		t.Error("expected not standstill")
	}
}

func TestCarState_SteeringThreshold(t *testing.T) {
	tests := []struct {
		torque  float64
		pressed bool
	}{
		{0, false},
		{1.0, false},
		{1.5, true},
		{-1.5, true},
		{-0.5, false},
	}
	cs := NewCarState(DefaultProfile())
	for _, tt := range tests {
		st := cs.Update(CANValues{MsgSteerAndAPStalk: {SigSteeringTorque: tt.torque}})
		if st.SteeringPressed != tt.pressed {
			t.Errorf("torque %f: expected pressed=%v, got %v", tt.torque, tt.pressed, st.SteeringPressed)
		}
	}
}

func TestCarState_WheelSpeedsFiltered(t *testing.T) {
	cs := NewCarState(DefaultProfile())
	values := CANValues{
		MsgWheelSpeeds: {SigWheelSpeedFL: 36, SigWheelSpeedFR: 36, SigWheelSpeedRL: 36, SigWheelSpeedRR: 36},
		MsgSpeed:       {SigVehicleSpeed: 80},
	}
	st := cs.Update(values)
	if st.WheelSpeeds == nil {
		t.Fatal("expected wheel speeds")
	}
	if math.Abs(st.VEgoRaw-10) > 1e-9 {
		t.Errorf("raw speed: expected 10, got %f", st.VEgoRaw)
	}
	if math.Abs(st.VEgo-10) > 1e-9 {
		t.Errorf("vEgo: expected 10 after snap, got %f", st.VEgo)
	}

	// Three channels only: falls back to SPEED
	delete(values[MsgWheelSpeeds], SigWheelSpeedRR)
	st = cs.Update(values)
	if st.WheelSpeeds != nil {
		t.Error("expected no wheel speeds with a missing channel")
	}
	if math.Abs(st.VEgo-80/3.6) > 1e-9 {
		t.Errorf("vEgo: expected %f, got %f", 80/3.6, st.VEgo)
	}
}

func TestCarState_StandstillUsesFilteredSpeed(t *testing.T) {
	cs := NewCarState(DefaultProfile())
	wheels := func(kph float64) CANValues {
		return CANValues{
			MsgWheelSpeeds: {SigWheelSpeedFL: kph, SigWheelSpeedFR: kph, SigWheelSpeedRL: kph, SigWheelSpeedRR: kph},
		}
	}

	for i := 0; i < 200; i++ {
		cs.Update(wheels(5))
	}
	st := cs.Update(wheels(0))
	if st.VEgoRaw != 0 {
		t.Fatalf("expected raw speed 0, got %f", st.VEgoRaw)
	}
	if st.VEgo < standstillThreshold {
		t.Fatalf("expected filtered speed to lag behind raw, got %f", st.VEgo)
	}
	if st.Standstill {
		t.Errorf("expected no standstill while filtered speed is %f", st.VEgo)
	}

	for i := 0; i < 1000; i++ {
		st = cs.Update(wheels(0))
	}
	if !st.Standstill {
		t.Errorf("expected standstill once filtered speed settles, got %f", st.VEgo)
	}
}

func TestCarState_Pedals(t *testing.T) {
	cs := NewCarState(DefaultProfile())

	st := cs.Update(CANValues{
		MsgCarOverallSignals2: {SigGasPosition: 50, SigBrakeSignal: 1},
		MsgBrake:              {SigBrakePressure: 125},
	})
	if st.Gas != 0.5 || !st.GasPressed {
		t.Errorf("gas: expected 0.5 pressed, got %f %v", st.Gas, st.GasPressed)
	}
	if !st.BrakePressed || st.Brake != 0.5 {
		t.Errorf("brake: expected 0.5 pressed, got %f %v", st.Brake, st.BrakePressed)
	}

	// Digital gas signal wins over position
	st = cs.Update(CANValues{MsgCarOverallSignals2: {SigGasPosition: 50, SigGasPressed: 0}})
	if st.GasPressed {
		t.Error("expected gas not pressed when digital signal is 0")
	}

	st = cs.Update(CANValues{MsgBrake: {SigBrakePressure: 1000, SigBrakeSignal1: 1}})
	if st.Brake != 1 || !st.BrakePressed {
		t.Errorf("brake: expected clamp to 1 and pressed, got %f %v", st.Brake, st.BrakePressed)
	}
}

func TestCarState_Cruise(t *testing.T) {
	tests := []struct {
		state     float64
		enabled   bool
		available bool
	}{
		{0, false, false},
		{1, true, true},
		{2, false, true},
		{3, false, false},
	}
	cs := NewCarState(DefaultProfile())
	for _, tt := range tests {
		st := cs.Update(CANValues{MsgAutopilot: {SigAPState: tt.state, SigACCSpeedSelection: 90}})
		if st.Cruise.Enabled != tt.enabled || st.Cruise.Available != tt.available {
			t.Errorf("AP_STATE %v: expected enabled=%v available=%v, got %v %v",
				tt.state, tt.enabled, tt.available, st.Cruise.Enabled, st.Cruise.Available)
		}
		if math.Abs(st.Cruise.Speed-25) > 1e-9 {
			t.Errorf("cruise speed: expected 25, got %f", st.Cruise.Speed)
		}
	}
}

func TestCarState_BodySignals(t *testing.T) {
	cs := NewCarState(DefaultProfile())
	st := cs.Update(CANValues{MsgCarOverallSignals: {SigDoorRLOpen: 1, SigSeatbeltState: 1, SigRightTurn: 1}})
	if !st.DoorOpen || !st.SeatbeltUnlatched || !st.RightBlinker || st.LeftBlinker {
		t.Errorf("unexpected body state: %+v", st)
	}
}

func TestCarState_ButtonEvents(t *testing.T) {
	cs := NewCarState(DefaultProfile())
	press := CANValues{MsgSteerAndAPStalk: {SigLaneKeepButton: 1, SigAPCancel: 1}}

	st := cs.Update(press)
	if len(st.ButtonEvents) != 2 {
		t.Fatalf("expected 2 button events, got %v", st.ButtonEvents)
	}
	if st.ButtonEvents[0].Type != ButtonCancel || st.ButtonEvents[1].Type != ButtonLKAS {
		t.Errorf("expected [cancel lkas], got %v", st.ButtonEvents)
	}

	st = cs.Update(press)
	if len(st.ButtonEvents) != 0 {
		t.Errorf("held buttons should not repeat, got %v", st.ButtonEvents)
	}

	cs.Update(CANValues{MsgSteerAndAPStalk: {SigLaneKeepButton: 0, SigAPCancel: 0}})
	st = cs.Update(CANValues{MsgSteerAndAPStalk: {SigLaneKeepButton: 1}})
	if len(st.ButtonEvents) != 1 || st.ButtonEvents[0].Type != ButtonLKAS {
		t.Errorf("expected [lkas], got %v", st.ButtonEvents)
	}
}

// --- Encoder tests ---

func TestEncode_HalfTorque(t *testing.T) {
	p := DefaultProfile()
	frame, counter := Encode(0.5, true, 15, p)

	if frame.ID != MsgAutopilot || frame.Bus != BusPowertrain || frame.Length != 8 {
		t.Fatalf("unexpected frame header: %s", frame)
	}
	cmd := DecodeSteerCommand(frame.Data)
	if cmd.Torque != 1024 {
		t.Errorf("torque: expected 1024, got %d", cmd.Torque)
	}
	if !cmd.Request {
		t.Error("expected request flag set")
	}
	if counter != 0 || cmd.Counter != 0 {
		t.Errorf("counter: expected 0, got %d (frame %d)", counter, cmd.Counter)
	}
	if frame.Data[0] != 0x00 || frame.Data[1] != 0x04 || frame.Data[2] != 0x04 {
		t.Errorf("unexpected payload % X", frame.Data)
	}
	if frame.Data[ChecksumByte] != FrameChecksum(frame.Data, frame.Length) {
		t.Errorf("checksum: expected %02X, got %02X", FrameChecksum(frame.Data, frame.Length), frame.Data[ChecksumByte])
	}
}

func TestEncode_RoundingBoundary(t *testing.T) {
	p := DefaultProfile()
	half := 0.5 / float64(p.SteerMax)
	tests := []struct {
		desired float64
		want    int
	}{
		{half, 1},
		{-half, -1},
		{0.49 / float64(p.SteerMax), 0},
		{-0.49 / float64(p.SteerMax), 0},
		{1.5 / float64(p.SteerMax), 2},
		{-1.5 / float64(p.SteerMax), -2},
	}
	for _, tt := range tests {
		frame, _ := Encode(tt.desired, true, 0, p)
		if got := DecodeSteerCommand(frame.Data).Torque; got != tt.want {
			t.Errorf("desired %g: expected %d, got %d", tt.desired, tt.want, got)
		}
	}
}

func TestEncode_Clamp(t *testing.T) {
	p := DefaultProfile()
	for _, desired := range []float64{-100, -2, -1, -0.3, 0, 0.7, 1, 1.01, 100} {
		frame, _ := Encode(desired, true, 0, p)
		torque := DecodeSteerCommand(frame.Data).Torque
		if torque > p.SteerMax || torque < -p.SteerMax {
			t.Errorf("desired %f: torque %d outside ±%d", desired, torque, p.SteerMax)
		}
	}
	frame, _ := Encode(3, true, 0, p)
	if got := DecodeSteerCommand(frame.Data).Torque; got != p.SteerMax {
		t.Errorf("expected clamp to %d, got %d", p.SteerMax, got)
	}
	frame, _ = Encode(-3, true, 0, p)
	if got := DecodeSteerCommand(frame.Data).Torque; got != -p.SteerMax {
		t.Errorf("expected clamp to %d, got %d", -p.SteerMax, got)
	}
}

func TestEncode_NonFiniteAndHuge(t *testing.T) {
	p := DefaultProfile()
	tests := []struct {
		desired float64
		want    int
	}{
		{1000, p.SteerMax},
		{1e16, p.SteerMax},
		{-1e16, -p.SteerMax},
		{math.MaxFloat64, p.SteerMax},
		{math.Inf(1), p.SteerMax},
		{math.Inf(-1), -p.SteerMax},
		{math.NaN(), 0},
	}
	for _, tt := range tests {
		frame, _ := Encode(tt.desired, true, 0, p)
		if got := DecodeSteerCommand(frame.Data).Torque; got != tt.want {
			t.Errorf("desired %g: expected %d, got %d", tt.desired, tt.want, got)
		}
	}
}

func TestEncode_Disabled(t *testing.T) {
	p := DefaultProfile()
	for _, desired := range []float64{-1, -0.5, 0, 0.5, 1, 10} {
		frame, _ := Encode(desired, false, 3, p)
		cmd := DecodeSteerCommand(frame.Data)
		if cmd.Torque != 0 || cmd.Request {
			t.Errorf("desired %f disabled: expected torque 0 and no request, got %d %v", desired, cmd.Torque, cmd.Request)
		}
	}
}

func TestEncode_CounterWraps(t *testing.T) {
	p := DefaultProfile()
	counter := uint8(15)
	for i := 0; i < 40; i++ {
		var frame BusFrame
		frame, counter = Encode(0.1, true, counter, p)
		want := uint8(i % 16)
		if counter != want {
			t.Fatalf("cycle %d: expected counter %d, got %d", i, want, counter)
		}
		if got := frame.Data[3] >> 4; got != want {
			t.Errorf("cycle %d: counter in byte 3 expected %d, got %d", i, want, got)
		}
	}
}

// --- CarController tests ---

func TestCarController_RateLimit(t *testing.T) {
	p := DefaultProfile()
	c := NewCarController(p, nil)
	state := VehicleState{}

	want := []int{15, 30, 45, 60}
	for i, w := range want {
		frame := c.Update(CarControl{Enabled: true, Torque: 1.0}, state)
		if got := DecodeSteerCommand(frame.Data).Torque; got != w {
			t.Errorf("cycle %d: expected torque %d, got %d", i, w, got)
		}
	}

	// Wind down is limited by SteerDeltaDown
	frame := c.Update(CarControl{Enabled: true, Torque: 0}, state)
	if got := DecodeSteerCommand(frame.Data).Torque; got != 35 {
		t.Errorf("wind down: expected 35, got %d", got)
	}

	frame = c.Update(CarControl{Enabled: false, Torque: 1.0}, state)
	cmd := DecodeSteerCommand(frame.Data)
	if cmd.Torque != 0 || cmd.Request {
		t.Errorf("disengage: expected zero torque without request, got %d %v", cmd.Torque, cmd.Request)
	}
	if c.LastTorque() != 0 {
		t.Errorf("expected last torque reset to 0, got %d", c.LastTorque())
	}
}

func TestCarController_DriverOpposes(t *testing.T) {
	c := NewCarController(DefaultProfile(), nil)
	frame := c.Update(CarControl{Enabled: true, Torque: 1.0}, VehicleState{SteeringTorque: -2100})
	if got := DecodeSteerCommand(frame.Data).Torque; got != 0 {
		t.Errorf("expected torque 0 against strong driver input, got %d", got)
	}
}

func TestCarController_RealtimeWindow(t *testing.T) {
	p := DefaultProfile()
	c := NewCarController(p, nil)
	limit := p.Limits.MaxRealtimeDelta - p.SteerDeltaDown

	cc := CarControl{Enabled: true, Torque: 1.0}
	for i := 0; i < 25; i++ {
		c.Update(cc, VehicleState{})
		if c.LastTorque() > limit {
			t.Fatalf("frame %d: torque %d above realtime limit %d", i, c.LastTorque(), limit)
		}
	}
	if c.LastTorque() != limit {
		t.Errorf("expected torque to reach %d, got %d", limit, c.LastTorque())
	}

	// Window restarts after RealtimeInterval worth of frames
	c.Update(cc, VehicleState{})
	if want := limit + p.SteerDeltaUp; c.LastTorque() != want {
		t.Errorf("expected %d after window restart, got %d", want, c.LastTorque())
	}
}

func TestCarController_TorqueErrorBand(t *testing.T) {
	p := DefaultProfile()
	c := NewCarController(p, nil)
	for i := 0; i < 300; i++ {
		c.Update(CarControl{Enabled: true, Torque: 1.0}, VehicleState{})
	}
	if c.LastTorque() != p.Limits.MaxTorqueError {
		t.Errorf("expected torque capped at %d, got %d", p.Limits.MaxTorqueError, c.LastTorque())
	}
}

func TestCarController_CounterStartsAtZero(t *testing.T) {
	c := NewCarController(DefaultProfile(), nil)
	for i := 0; i < 3; i++ {
		frame := c.Update(CarControl{}, VehicleState{})
		if got := DecodeSteerCommand(frame.Data).Counter; got != uint8(i) {
			t.Errorf("frame %d: expected counter %d, got %d", i, i, got)
		}
	}
	c.Reset()
	frame := c.Update(CarControl{}, VehicleState{})
	if got := DecodeSteerCommand(frame.Data).Counter; got != 0 {
		t.Errorf("after reset: expected counter 0, got %d", got)
	}
	if c.Frames() != 1 {
		t.Errorf("expected 1 frame since reset, got %d", c.Frames())
	}
}

func TestCarController_NonFiniteRequest(t *testing.T) {
	p := DefaultProfile()
	tests := []struct {
		torque float64
		want   int
	}{
		{math.NaN(), 0},
		{math.Inf(1), p.SteerDeltaUp},
		{math.Inf(-1), -p.SteerDeltaUp},
		{1e16, p.SteerDeltaUp},
	}
	for _, tt := range tests {
		c := NewCarController(p, nil)
		frame := c.Update(CarControl{Enabled: true, Torque: tt.torque}, VehicleState{})
		if got := DecodeSteerCommand(frame.Data).Torque; got != tt.want {
			t.Errorf("request %g: expected first frame torque %d, got %d", tt.torque, tt.want, got)
		}
	}
}

type frameLog struct {
	nopLogger
	directions []string
}

func (l *frameLog) DebugCAN(direction string, id uint32, data []byte, length uint8) {
	l.directions = append(l.directions, direction)
}

// Frames are logged by the sender once the monitor accepts them, never by
// the controller that builds them.
func TestCarController_DoesNotLogFrames(t *testing.T) {
	l := &frameLog{}
	c := NewCarController(DefaultProfile(), l)
	for i := 0; i < 3; i++ {
		frame := c.Update(CarControl{Enabled: true, Torque: 0.5}, VehicleState{})
		if got := DecodeSteerCommand(frame.Data).Counter; got != c.Counter() {
			t.Errorf("expected Counter() %d to match frame counter %d", c.Counter(), got)
		}
	}
	if len(l.directions) != 0 {
		t.Errorf("expected no frame logs, got %v", l.directions)
	}
}

// --- CarInterface tests ---

func TestCarInterface_UpdateApply(t *testing.T) {
	ci := NewCarInterface(CarConfig{Profile: DefaultProfile()})

	st := ci.Update(CANValues{
		MsgSpeed:             {SigVehicleSpeed: 36},
		MsgCarOverallSignals: {SigDriveMode: 1},
	})
	if !st.CanValid || ci.State().GearShifter != GearDrive {
		t.Errorf("unexpected state %+v", st)
	}

	frame := ci.Apply(CarControl{Enabled: true, Torque: 0.01})
	if got := DecodeSteerCommand(frame.Data).Torque; got != 15 {
		t.Errorf("expected rate limited torque 15, got %d", got)
	}

	params := ci.Params()
	if params.SteerMax != 2048 || math.Abs(params.CenterToFront-2.73*0.44) > 1e-9 {
		t.Errorf("unexpected params %+v", params)
	}
}

func TestCarInterface_SetCycleTime(t *testing.T) {
	ci := NewCarInterface(CarConfig{Profile: DefaultProfile()})
	ci.SetCycleTime(20 * time.Millisecond)

	if ci.controller.cycle != 20*time.Millisecond {
		t.Errorf("expected controller cycle 20ms, got %v", ci.controller.cycle)
	}
	if kv, _ := ci.state.speed.Gain(); math.Abs(kv-0.27534442) > 1e-6 {
		t.Errorf("expected 20ms speed gain, got %f", kv)
	}

	ci.Reset()
	if kv, _ := ci.state.speed.Gain(); math.Abs(kv-0.27534442) > 1e-6 {
		t.Errorf("expected cycle time to survive reset, got gain %f", kv)
	}
}

// --- Profile tests ---

func TestDefaultProfile_Valid(t *testing.T) {
	if err := DefaultProfile().Validate(); err != nil {
		t.Errorf("default profile invalid: %v", err)
	}
}

func TestLoadProfile_Overlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "profile.toml")
	data := `
steer_pressed_threshold = 50.0

[safety]
max_torque = 1023
realtime_interval = "170ms"
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatal(err)
	}

	p, err := LoadProfile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if p.SteerPressedThreshold != 50.0 {
		t.Errorf("threshold: expected 50, got %f", p.SteerPressedThreshold)
	}
	if p.Limits.MaxTorque != 1023 {
		t.Errorf("max torque: expected 1023, got %d", p.Limits.MaxTorque)
	}
	if p.Limits.RealtimeInterval != 170*time.Millisecond {
		t.Errorf("rt interval: expected 170ms, got %s", p.Limits.RealtimeInterval)
	}
	if p.SteerMax != 2048 || p.Limits.MaxRateUp != 15 {
		t.Errorf("defaults not kept: steer max %d, rate up %d", p.SteerMax, p.Limits.MaxRateUp)
	}
}

func TestLoadProfile_Errors(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		data string
	}{
		{"unknown key", "steer_maximum = 10\n"},
		{"invalid", "steer_max = 0\n"},
		{"counter", "counter_modulus = 256\n"},
		{"syntax", "steer_max = \n"},
	}
	for _, tt := range tests {
		path := filepath.Join(dir, tt.name+".toml")
		if err := os.WriteFile(path, []byte(tt.data), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadProfile(path); err == nil {
			t.Errorf("%s: expected error", tt.name)
		}
	}

	if _, err := LoadProfile(filepath.Join(dir, "missing.toml")); err == nil {
		t.Error("missing file: expected error")
	}
	if p, err := LoadProfile(""); err != nil || p.SteerMax != 2048 {
		t.Errorf("empty path: expected defaults, got %v", err)
	}
}
