package service

import (
	"time"

	"github.com/berfenger/tigo2mqtt/internal/core/port"
	"github.com/berfenger/tigo2mqtt/pkg/cca"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type frameFields struct {
	slot uint8
	vin  uint16
	iin  uint8
	temp uint8
	pwm  uint8
	vout uint16
}

// encode packs fields the way the gateway does.
func (f frameFields) encode() []byte {
	b := make([]byte, cca.FrameSize)
	b[0], b[1] = 0x50, 0x30
	b[2] = f.slot
	b[3] = byte(f.vin >> 4)
	b[4] = byte(f.vin&0x0F) << 4
	b[5] = f.iin >> 4
	b[6] = (f.iin & 0x0F) << 4
	b[7] = f.temp
	b[8] = f.pwm
	b[9] = byte(f.vout>>8&0x01)<<6 | 0x04
	b[10] = 0x3F
	b[11] = byte(f.vout)
	return b
}

func (f frameFields) telemetry() cca.Telemetry {
	t, err := cca.Decode(f.encode())
	if err != nil {
		panic(err)
	}
	return t
}

// 40.1 V in, 39.9 V out, 0.455 A with default scaling
var producing = frameFields{slot: 0x25, vin: 802, iin: 91, temp: 132, pwm: 255, vout: 399}

func withSlot(f frameFields, slot uint8) frameFields {
	f.slot = slot
	return f
}

func dark(slot uint8) frameFields {
	return frameFields{slot: slot, vin: 0, iin: 0, temp: 100, pwm: 0, vout: 0}
}

type fakeClock struct {
	now time.Time
	err error
}

func (c *fakeClock) Now() (time.Time, error) {
	if c.err != nil {
		return time.Time{}, c.err
	}
	return c.now, nil
}

var _ port.Clock = (*fakeClock)(nil)

func testValidator() cca.Validator {
	return cca.Validator{Header: []byte{0x50, 0x30}, SlotMin: 0, SlotMax: 0x7F}
}
