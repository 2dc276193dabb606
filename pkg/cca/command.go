package cca

import (
	"encoding/binary"

	"github.com/sigurn/crc16"
)

const (
	DefaultGatewayAddress uint16 = 0x1201

	packetTypeStringRequest  byte = 0x06
	packetTypeGatewayConfig  byte = 0x0D
	packetTypeNodeTableQuery byte = 0x26

	escapeByte byte = 0x7E
)

var (
	controllerPreamble = []byte{0x00, 0xFF, 0xFF}
	frameStart         = []byte{escapeByte, 0x07}
	frameEnd           = []byte{escapeByte, 0x08}
	commandRequestType = []byte{0x0B, 0x0F}

	escapes = map[byte]byte{
		0x7E: 0x00,
		0x24: 0x01,
		0x23: 0x02,
		0x25: 0x03,
		0xA4: 0x04,
		0xA3: 0x05,
		0xA5: 0x06,
	}

	// CRC-16/CCITT, reflected, with the register preset to 0x8408.
	crcTable = crc16.MakeTable(crc16.Params{
		Poly:   0x1021,
		Init:   0x1021,
		RefIn:  true,
		RefOut: true,
		XorOut: 0x0000,
		Name:   "CRC-16/TIGO",
	})
)

// CommandBuilder produces controller-to-gateway command frames ready to be
// written on the bus. It tracks the command sequence number, which never
// takes the values 0x00 or 0xFF.
type CommandBuilder struct {
	gateway  uint16
	sequence byte
}

func NewCommandBuilder(gateway uint16) *CommandBuilder {
	if gateway == 0 {
		gateway = DefaultGatewayAddress
	}
	return &CommandBuilder{gateway: gateway, sequence: 0x01}
}

func (b *CommandBuilder) Sequence() byte {
	return b.sequence
}

// VersionRequest asks a PV node for its firmware version string.
func (b *CommandBuilder) VersionRequest(node uint16) []byte {
	data := binary.BigEndian.AppendUint16(nil, node)
	data = append(data, "^0Version\r"...)
	return b.build(packetTypeStringRequest, data)
}

// DiscoveryRequests returns the sequence the gateway expects before it
// answers with its node table: two configuration requests followed by the
// node table query. Frames should be sent with a gap of roughly 650ms.
func (b *CommandBuilder) DiscoveryRequests() [][]byte {
	return [][]byte{
		b.build(packetTypeGatewayConfig, []byte{0x00, 0x00}),
		b.build(packetTypeGatewayConfig, []byte{0x00, 0x01}),
		b.build(packetTypeNodeTableQuery, []byte{0x00, 0x00}),
	}
}

func (b *CommandBuilder) build(packetType byte, data []byte) []byte {
	frame := binary.BigEndian.AppendUint16(nil, b.gateway)
	frame = append(frame, commandRequestType...)
	frame = append(frame, 0x00, 0x00, 0x00, packetType, b.nextSequence())
	frame = append(frame, data...)
	frame = binary.BigEndian.AppendUint16(frame, Checksum(frame))

	out := make([]byte, 0, len(controllerPreamble)+len(frameStart)+2*len(frame)+len(frameEnd))
	out = append(out, controllerPreamble...)
	out = append(out, frameStart...)
	out = append(out, Escape(frame)...)
	out = append(out, frameEnd...)
	return out
}

func (b *CommandBuilder) nextSequence() byte {
	seq := b.sequence
	b.sequence++
	if b.sequence == 0x00 || b.sequence == 0xFF {
		b.sequence = 0x01
	}
	return seq
}

// Checksum computes the bus CRC over address, type and payload.
func Checksum(data []byte) uint16 {
	return crc16.Checksum(data, crcTable)
}

// Escape replaces the bus control bytes with their two byte escapes.
func Escape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for _, c := range data {
		if e, ok := escapes[c]; ok {
			out = append(out, escapeByte, e)
			continue
		}
		out = append(out, c)
	}
	return out
}

// Unescape reverses Escape. An escape at the end of data is kept as is.
func Unescape(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == escapeByte && i+1 < len(data) {
			if c, ok := unescapeByte(data[i+1]); ok {
				out = append(out, c)
				i++
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

func unescapeByte(code byte) (byte, bool) {
	for raw, e := range escapes {
		if e == code {
			return raw, true
		}
	}
	return 0, false
}
