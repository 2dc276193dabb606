package cca

import (
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"
)

// FrameSize is the length of one CCA power telemetry block.
const FrameSize = 12

var (
	ErrFrameLength     = errors.New("cca: invalid frame length")
	ErrIncompleteFrame = errors.New("cca: incomplete frame")
	ErrChecksumFailure = errors.New("cca: frame failed integrity check")
)

// RawFrame is a fixed-size block as it was cut from the stream.
type RawFrame struct {
	Bytes      [FrameSize]byte
	ReceivedAt time.Time
}

// Reserved holds the bits the decoder does not interpret, verbatim.
type Reserved struct {
	Byte0      uint8 `json:"byte0" yaml:"byte0"`
	Byte1      uint8 `json:"byte1" yaml:"byte1"`
	Byte6Upper uint8 `json:"byte6_upper" yaml:"byte6_upper"`
	Byte9      uint8 `json:"byte9" yaml:"byte9"`
	Byte10     uint8 `json:"byte10" yaml:"byte10"`
}

// Byte9Other returns byte 9 without the bit that belongs to vout.
func (r Reserved) Byte9Other() uint8 {
	return r.Byte9 & 0xBF
}

// Telemetry is the raw field set of one frame. Values are unscaled counts.
type Telemetry struct {
	Slot     uint8    `json:"slot" yaml:"slot"`
	VinRaw   uint16   `json:"vin_raw" yaml:"vin_raw"`
	IinRaw   uint8    `json:"iin_raw" yaml:"iin_raw"`
	TempRaw  uint8    `json:"temp_raw" yaml:"temp_raw"`
	PWM      uint8    `json:"pwm" yaml:"pwm"`
	VoutRaw  uint16   `json:"vout_raw" yaml:"vout_raw"`
	Reserved Reserved `json:"reserved" yaml:"reserved"`
}

// Decode extracts the telemetry fields of a 12 byte block.
func Decode(b []byte) (Telemetry, error) {
	if len(b) != FrameSize {
		return Telemetry{}, fmt.Errorf("%w: expected %d bytes, got %d", ErrFrameLength, FrameSize, len(b))
	}
	return decode((*[FrameSize]byte)(b)), nil
}

func decode(b *[FrameSize]byte) Telemetry {
	return Telemetry{
		Slot:    b[2],
		VinRaw:  uint16(b[3])<<4 | uint16(b[4]>>4),
		IinRaw:  (b[5]&0x0F)<<4 | b[6]>>4,
		TempRaw: b[7],
		PWM:     b[8],
		VoutRaw: uint16(b[9]&0x40)<<2 | uint16(b[11]),
		Reserved: Reserved{
			Byte0:      b[0],
			Byte1:      b[1],
			Byte6Upper: b[6] >> 4,
			Byte9:      b[9],
			Byte10:     b[10],
		},
	}
}

// Decode decodes the frame bytes.
func (f RawFrame) Decode() Telemetry {
	return decode(&f.Bytes)
}

// ParseHex reads bytes written as hex. Spaces and colons are ignored.
func ParseHex(s string) ([]byte, error) {
	s = strings.NewReplacer(" ", "", ":", "").Replace(strings.TrimSpace(s))
	return hex.DecodeString(s)
}

// DecodeHex decodes a frame written as hex.
func DecodeHex(s string) (Telemetry, error) {
	b, err := ParseHex(s)
	if err != nil {
		return Telemetry{}, err
	}
	return Decode(b)
}
