package cca

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeSampleFrame(t *testing.T) {

	require := require.New(t)
	assert := assert.New(t)

	tel, err := DecodeHex("503025322105B084FF443F8F")
	require.NoError(err)

	assert.Equal(uint8(0x25), tel.Slot, "slot")
	assert.Equal(uint16(0x322), tel.VinRaw, "vin")
	assert.Equal(uint8(0x5B), tel.IinRaw, "iin")
	assert.Equal(uint8(0x84), tel.TempRaw, "temp")
	assert.Equal(uint8(0xFF), tel.PWM, "pwm")
	assert.Equal(uint16(0x18F), tel.VoutRaw, "vout")

	assert.Equal(uint8(0x50), tel.Reserved.Byte0)
	assert.Equal(uint8(0x30), tel.Reserved.Byte1)
	assert.Equal(uint8(0x0B), tel.Reserved.Byte6Upper)
	assert.Equal(uint8(0x44), tel.Reserved.Byte9, "byte9 kept verbatim")
	assert.Equal(uint8(0x04), tel.Reserved.Byte9Other(), "byte9 without vout bit")
	assert.Equal(uint8(0x3F), tel.Reserved.Byte10)
}

func TestDecodeHexSeparators(t *testing.T) {

	require := require.New(t)

	a, err := DecodeHex("50 30 25 32 21 05 B0 84 FF 44 3F 8F")
	require.NoError(err)
	b, err := DecodeHex("50:30:25:32:21:05:b0:84:ff:44:3f:8f")
	require.NoError(err)
	require.Equal(a, b)
}

func TestDecodeFieldWidths(t *testing.T) {

	assert := assert.New(t)

	all := make([]byte, FrameSize)
	for i := range all {
		all[i] = 0xFF
	}
	tel, err := Decode(all)
	assert.NoError(err)
	assert.Equal(uint16(0xFFF), tel.VinRaw, "vin is 12 bits")
	assert.Equal(uint8(0xFF), tel.IinRaw, "iin is 8 bits")
	assert.Equal(uint16(0x1FF), tel.VoutRaw, "vout is 9 bits")
	assert.Equal(uint8(0x0F), tel.Reserved.Byte6Upper)

	// only bit 6 of byte 9 reaches vout
	frame := make([]byte, FrameSize)
	frame[9] = 0xBF
	tel, err = Decode(frame)
	assert.NoError(err)
	assert.Equal(uint16(0), tel.VoutRaw)
	frame[9] = 0x40
	tel, _ = Decode(frame)
	assert.Equal(uint16(0x100), tel.VoutRaw)

	// only the low nibble of byte 5 reaches iin
	frame = make([]byte, FrameSize)
	frame[5] = 0xF0
	tel, _ = Decode(frame)
	assert.Equal(uint8(0), tel.IinRaw)
}

func TestDecodeRejectsWrongLength(t *testing.T) {

	assert := assert.New(t)

	_, err := Decode(make([]byte, 11))
	assert.True(errors.Is(err, ErrFrameLength))
	_, err = Decode(make([]byte, 13))
	assert.True(errors.Is(err, ErrFrameLength))
	_, err = DecodeHex("5030")
	assert.Error(err)
	_, err = DecodeHex("zz3025322105B084FF443F8F")
	assert.Error(err)
}

func TestRawFrameDecode(t *testing.T) {

	tel, err := DecodeHex("503025322105B084FF443F8F")
	require.NoError(t, err)

	var f RawFrame
	copy(f.Bytes[:], mustHex(t, "503025322105B084FF443F8F"))
	assert.Equal(t, tel, f.Decode())
}
