package gwm

import (
	"encoding/binary"
	"math"
	"sort"
	"sync"

	"github.com/pkg/errors"
)

// GWM CAN IDs
const (
	MsgCarOverallSignals2 uint32 = 0x060
	MsgSteerAndAPStalk    uint32 = 0x0A1
	MsgSpeed              uint32 = 0x103
	MsgWheelSpeeds        uint32 = 0x111
	MsgAutopilot          uint32 = 0x12B
	MsgCarOverallSignals  uint32 = 0x12F
	MsgBrake              uint32 = 0x137
)

// Signal names
const (
	SigGasPosition    = "GAS_POSITION"
	SigGasPressed     = "GAS_PRESSED"
	SigBrakeSignal    = "BRAKE_SIGNAL"
	SigBrakePressure  = "BRAKE_PRESSURE"
	SigBrakeSignal1   = "BRAKE_SIGNAL1"
	SigVehicleSpeed   = "SPEED"
	SigSteeringAngle  = "STEERING_ANGLE"
	SigSteeringTorque = "STEERING_TORQUE"
	SigEPSFaultTemp   = "EPS_FAULT_TEMPORARY"
	SigEPSFaultPerm   = "EPS_FAULT_PERMANENT"

	SigAPCancel           = "AP_CANCEL_COMMAND"
	SigAPEnable           = "AP_ENABLE_COMMAND"
	SigAPIncreaseSpeed    = "AP_INCREASE_SPEED_COMMAND"
	SigAPDecreaseSpeed    = "AP_DECREASE_SPEED_COMMAND"
	SigAPReduceDistance   = "AP_REDUCE_DISTANCE_COMMAND"
	SigAPIncreaseDistance = "AP_INCREASE_DISTANCE_COMMAND"
	SigLaneKeepButton     = "LANE_KEEP_BUTTON"

	SigWheelSpeedFL = "WHEEL_SPEED_FL"
	SigWheelSpeedFR = "WHEEL_SPEED_FR"
	SigWheelSpeedRL = "WHEEL_SPEED_RL"
	SigWheelSpeedRR = "WHEEL_SPEED_RR"

	SigAPSteeringCommand = "AP_STEERING_COMMAND"
	SigAPState           = "AP_STATE"
	SigAPCounter         = "AP_COUNTER"
	SigAPChecksum        = "AP_CHECKSUM"
	SigACCSpeedSelection = "ACC_SPEED_SELECTION"
	SigACCNonAdaptive    = "ACC_NON_ADAPTIVE"

	SigDriveMode     = "DRIVE_MODE"
	SigDoorFLOpen    = "DOOR_FL_OPEN"
	SigDoorFROpen    = "DOOR_FR_OPEN"
	SigDoorRLOpen    = "DOOR_RL_OPEN"
	SigDoorRROpen    = "DOOR_RR_OPEN"
	SigSeatbeltState = "SEAT_BELT_DRIVER_STATE"
	SigLeftTurn      = "LEFT_TURN_SIGNAL"
	SigRightTurn     = "RIGHT_TURN_SIGNAL"
)

// Largest magnitude the AP_STEERING_COMMAND field can carry
const maxSteerCommand = math.MaxInt16

// SignalDef locates one signal inside a frame payload. Bits are numbered
// little-endian: bit 0 is the LSB of byte 0.
type SignalDef struct {
	Name     string
	StartBit uint
	Length   uint
	Signed   bool
	Factor   float64
	Offset   float64
}

// MessageDef describes one periodic message of the platform.
type MessageDef struct {
	ID      uint32
	Name    string
	Length  uint8
	Signals []SignalDef
}

func bit(name string, start uint) SignalDef {
	return SignalDef{Name: name, StartBit: start, Length: 1, Factor: 1}
}

var messageDefs = []MessageDef{
	{
		ID: MsgCarOverallSignals2, Name: "CAR_OVERALL_SIGNALS2", Length: FrameLength,
		Signals: []SignalDef{
			{Name: SigGasPosition, StartBit: 0, Length: 8, Factor: 0.4},
			bit(SigGasPressed, 8),
			bit(SigBrakeSignal, 9),
		},
	},
	{
		ID: MsgSteerAndAPStalk, Name: "STEER_AND_AP_STALK", Length: FrameLength,
		Signals: []SignalDef{
			{Name: SigSteeringAngle, StartBit: 0, Length: 16, Signed: true, Factor: 0.1},
			{Name: SigSteeringTorque, StartBit: 24, Length: 16, Signed: true, Factor: 1},
			bit(SigEPSFaultTemp, 40),
			bit(SigEPSFaultPerm, 41),
			bit(SigAPCancel, 48),
			bit(SigAPEnable, 49),
			bit(SigAPIncreaseSpeed, 50),
			bit(SigAPDecreaseSpeed, 51),
			bit(SigAPReduceDistance, 52),
			bit(SigAPIncreaseDistance, 53),
			bit(SigLaneKeepButton, 54),
		},
	},
	{
		ID: MsgSpeed, Name: "SPEED", Length: FrameLength,
		Signals: []SignalDef{
			{Name: SigVehicleSpeed, StartBit: 48, Length: 16, Factor: 0.01},
		},
	},
	{
		ID: MsgWheelSpeeds, Name: "WHEEL_SPEEDS", Length: FrameLength,
		Signals: []SignalDef{
			{Name: SigWheelSpeedFL, StartBit: 0, Length: 16, Factor: 0.01},
			{Name: SigWheelSpeedFR, StartBit: 16, Length: 16, Factor: 0.01},
			{Name: SigWheelSpeedRL, StartBit: 32, Length: 16, Factor: 0.01},
			{Name: SigWheelSpeedRR, StartBit: 48, Length: 16, Factor: 0.01},
		},
	},
	{
		ID: MsgAutopilot, Name: "AUTOPILOT", Length: FrameLength,
		Signals: []SignalDef{
			{Name: SigAPSteeringCommand, StartBit: 0, Length: 16, Signed: true, Factor: 1},
			{Name: SigAPState, StartBit: 18, Length: 2, Factor: 1},
			{Name: SigAPCounter, StartBit: 28, Length: 4, Factor: 1},
			{Name: SigAPChecksum, StartBit: 32, Length: 8, Factor: 1},
			{Name: SigACCSpeedSelection, StartBit: 40, Length: 8, Factor: 1},
			bit(SigACCNonAdaptive, 48),
		},
	},
	{
		ID: MsgCarOverallSignals, Name: "CAR_OVERALL_SIGNALS", Length: FrameLength,
		Signals: []SignalDef{
			{Name: SigDriveMode, StartBit: 0, Length: 3, Factor: 1},
			bit(SigDoorFLOpen, 8),
			bit(SigDoorFROpen, 9),
			bit(SigDoorRLOpen, 10),
			bit(SigDoorRROpen, 11),
			bit(SigSeatbeltState, 12),
			bit(SigLeftTurn, 13),
			bit(SigRightTurn, 14),
		},
	},
	{
		ID: MsgBrake, Name: "BRAKE", Length: FrameLength,
		Signals: []SignalDef{
			{Name: SigBrakePressure, StartBit: 0, Length: 16, Factor: 0.1},
			bit(SigBrakeSignal1, 16),
		},
	},
}

var messagesByID = func() map[uint32]*MessageDef {
	m := make(map[uint32]*MessageDef, len(messageDefs))
	for i := range messageDefs {
		m[messageDefs[i].ID] = &messageDefs[i]
	}
	return m
}()

// LookupMessage returns the layout for a CAN ID.
func LookupMessage(id uint32) (*MessageDef, bool) {
	def, ok := messagesByID[id]
	return def, ok
}

// MessageIDs returns every decoded CAN ID in ascending order.
func MessageIDs() []uint32 {
	ids := make([]uint32, 0, len(messagesByID))
	for id := range messagesByID {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s SignalDef) mask() uint64 {
	if s.Length >= 64 {
		return math.MaxUint64
	}
	return (uint64(1) << s.Length) - 1
}

// Raw extracts the unscaled integer value of the signal.
func (s SignalDef) Raw(data [8]byte) int64 {
	word := binary.LittleEndian.Uint64(data[:])
	raw := (word >> s.StartBit) & s.mask()
	if s.Signed && s.Length < 64 && raw&(uint64(1)<<(s.Length-1)) != 0 {
		raw |= ^s.mask()
	}
	return int64(raw)
}

// Decode returns the scaled physical value of the signal.
func (s SignalDef) Decode(data [8]byte) float64 {
	return float64(s.Raw(data))*s.Factor + s.Offset
}

func (s SignalDef) rawRange() (int64, int64) {
	if s.Signed {
		half := int64(1) << (s.Length - 1)
		return -half, half - 1
	}
	return 0, int64(s.mask())
}

// Encode writes the physical value into data, saturating at the field range.
func (s SignalDef) Encode(data *[8]byte, value float64) {
	lo, hi := s.rawRange()
	scaled := math.Round((value - s.Offset) / s.Factor)
	if math.IsNaN(scaled) {
		scaled = 0
	}
	// Saturate before converting; out-of-range floats have no defined int64
	raw := int64(clamp(scaled, float64(lo), float64(hi)))

	word := binary.LittleEndian.Uint64(data[:])
	word &^= s.mask() << s.StartBit
	word |= (uint64(raw) & s.mask()) << s.StartBit
	binary.LittleEndian.PutUint64(data[:], word)
}

// Decode converts a whole frame payload into named signal values.
func (m *MessageDef) Decode(data [8]byte) map[string]float64 {
	values := make(map[string]float64, len(m.Signals))
	for _, sig := range m.Signals {
		values[sig.Name] = sig.Decode(data)
	}
	return values
}

func (m *MessageDef) signal(name string) (SignalDef, bool) {
	for _, sig := range m.Signals {
		if sig.Name == name {
			return sig, true
		}
	}
	return SignalDef{}, false
}

// CANValues maps message ID to the latest value of each of its signals.
type CANValues map[uint32]map[string]float64

// Get returns a signal value and whether it was present.
func (v CANValues) Get(id uint32, signal string) (float64, bool) {
	msg, ok := v[id]
	if !ok {
		return 0, false
	}
	val, ok := msg[signal]
	return val, ok
}

// GetOr returns a signal value or def when it is absent.
func (v CANValues) GetOr(id uint32, signal string, def float64) float64 {
	if val, ok := v.Get(id, signal); ok {
		return val
	}
	return def
}

// Parser keeps the latest decoded values of every known message on one bus.
type Parser struct {
	mu     sync.RWMutex
	bus    uint8
	values CANValues
	counts map[uint32]uint64
}

func NewParser(bus uint8) *Parser {
	return &Parser{
		bus:    bus,
		values: make(CANValues),
		counts: make(map[uint32]uint64),
	}
}

// Handle decodes a frame if it belongs to this bus and is a known message.
// Unknown IDs and short frames are ignored.
func (p *Parser) Handle(frame BusFrame) bool {
	if frame.Bus != p.bus {
		return false
	}
	def, ok := LookupMessage(frame.ID)
	if !ok {
		return false
	}
	if frame.Length < def.Length {
		return false
	}

	values := def.Decode(frame.Data)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.values[frame.ID] = values
	p.counts[frame.ID]++
	return true
}

// Values returns a copy of the latest values. The caller owns the result.
func (p *Parser) Values() CANValues {
	p.mu.RLock()
	defer p.mu.RUnlock()

	out := make(CANValues, len(p.values))
	for id, msg := range p.values {
		cp := make(map[string]float64, len(msg))
		for k, v := range msg {
			cp[k] = v
		}
		out[id] = cp
	}
	return out
}

// Seen reports whether a message has been received at least once.
func (p *Parser) Seen(id uint32) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts[id] > 0
}

// Count returns how many frames of a message have been decoded.
func (p *Parser) Count(id uint32) uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.counts[id]
}

// Packer builds frames from named signal values.
type Packer struct{}

// Pack encodes values into a frame for the given message. Signals not named
// in values are left zero.
func (Packer) Pack(id uint32, bus uint8, values map[string]float64) (BusFrame, error) {
	def, ok := LookupMessage(id)
	if !ok {
		return BusFrame{}, errors.Errorf("unknown message 0x%03X", id)
	}

	var data [8]byte
	for name, value := range values {
		sig, ok := def.signal(name)
		if !ok {
			return BusFrame{}, errors.Errorf("message %s has no signal %s", def.Name, name)
		}
		sig.Encode(&data, value)
	}
	return packFrame(bus, id, data[:def.Length]), nil
}
