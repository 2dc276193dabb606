package cca

import (
	"bytes"
	"fmt"
)

type Verdict int

const (
	Incomplete Verdict = iota
	Valid
	Corrupt
)

func (v Verdict) String() string {
	switch v {
	case Incomplete:
		return "incomplete"
	case Valid:
		return "valid"
	case Corrupt:
		return "corrupt"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Result is the outcome of validating one candidate block. Telemetry is only
// set when Verdict is Valid.
type Result struct {
	Verdict   Verdict
	Telemetry Telemetry
	Err       error
}

// Validator decides whether a candidate block is a telemetry frame.
// Header, when set, must prefix every frame. Slot must lie in
// [SlotMin, SlotMax].
type Validator struct {
	Header  []byte
	SlotMin uint8
	SlotMax uint8
}

// DefaultHeader prefixes every power telemetry block the CCA emits.
var DefaultHeader = []byte{0x50, 0x30}

// DefaultSlotMax bounds the slot numbers a single CCA hands out.
const DefaultSlotMax uint8 = 0x7F

// DefaultValidator requires the 5030 header and a slot in [0, DefaultSlotMax].
// An all-permissive validator would accept any 12-byte window and never
// resynchronize after a stray byte.
func DefaultValidator() Validator {
	return Validator{Header: append([]byte{}, DefaultHeader...), SlotMin: 0, SlotMax: DefaultSlotMax}
}

func (v Validator) Validate(block []byte) Result {
	switch {
	case len(block) < FrameSize:
		return Result{Verdict: Incomplete, Err: ErrIncompleteFrame}
	case len(block) > FrameSize:
		return Result{Verdict: Corrupt, Err: fmt.Errorf("%w: %d bytes", ErrFrameLength, len(block))}
	}
	if len(v.Header) > 0 && !bytes.HasPrefix(block, v.Header) {
		return Result{Verdict: Corrupt, Err: fmt.Errorf("%w: header % X does not match", ErrChecksumFailure, block[:min(len(v.Header), FrameSize)])}
	}
	t := decode((*[FrameSize]byte)(block))
	if t.Slot < v.SlotMin || t.Slot > v.SlotMax {
		return Result{Verdict: Corrupt, Err: fmt.Errorf("%w: slot %d out of range [%d, %d]", ErrChecksumFailure, t.Slot, v.SlotMin, v.SlotMax)}
	}
	return Result{Verdict: Valid, Telemetry: t}
}
