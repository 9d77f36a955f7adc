package gwm

import (
	"fmt"

	"github.com/brutella/can"
)

const (
	BusPowertrain uint8 = 0
	BusCamera     uint8 = 2

	FrameLength = 8
)

// BusFrame is a CAN frame together with the bus it was seen on or is
// destined for.
type BusFrame struct {
	Bus uint8
	can.Frame
}

func (f BusFrame) String() string {
	return fmt.Sprintf("bus=%d id=0x%03X len=%d data=% X", f.Bus, f.ID, f.Length, f.Data[:min(int(f.Length), 8)])
}

// packFrame creates a CAN frame with the given ID and data
func packFrame(bus uint8, id uint32, data []byte) BusFrame {
	var frameData [8]byte
	copy(frameData[:], data)
	return BusFrame{
		Bus: bus,
		Frame: can.Frame{
			ID:     id,
			Length: uint8(min(len(data), 8)),
			Flags:  0,
			Data:   frameData,
		},
	}
}

// Helper function to convert bool to byte
func boolToByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
