package gwm

const (
	// Byte position of the checksum inside checksummed frames
	ChecksumByte = 4

	checksumInit = 0xFF
)

// Vendor lookup table, indexed by the low five bits of (acc ^ byte)
var checksumTable = [32]byte{
	0x00, 0x1D, 0x3A, 0x27, 0x74, 0x69, 0x4E, 0x53, 0xE8, 0xF5, 0xD2, 0xCF, 0x9C, 0x81, 0xA6, 0xBB,
	0xCD, 0xD0, 0xF7, 0xEA, 0xB9, 0xA4, 0x83, 0x9E, 0x25, 0x38, 0x1F, 0x02, 0x51, 0x4C, 0x6B, 0x76,
}

// Checksum runs the GWM rolling checksum over every byte of payload.
func Checksum(payload []byte) byte {
	acc := byte(checksumInit)
	for _, b := range payload {
		acc = checksumTable[(acc^b)&0x1F]
	}
	return acc
}

// FrameChecksum computes the checksum of a frame payload, skipping the
// checksum byte itself.
func FrameChecksum(data [8]byte, length uint8) byte {
	if length > 8 {
		length = 8
	}
	acc := byte(checksumInit)
	for i := uint8(0); i < length; i++ {
		if i == ChecksumByte {
			continue
		}
		acc = checksumTable[(acc^data[i])&0x1F]
	}
	return acc
}
