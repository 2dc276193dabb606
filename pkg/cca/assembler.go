package cca

import (
	"time"
)

const (
	DefaultMaxResyncScan = 64
	DefaultMaxBuffer     = 4096
)

// FeedResult reports what one Feed call produced. Counters are deltas.
type FeedResult struct {
	Frames           []RawFrame
	InvalidChecksums uint64
	MissedFrames     uint64
	DiscardedBytes   int
}

// Assembler cuts validated frames out of a byte stream that arrives in
// arbitrary chunks. It never blocks: bytes that do not yet form a frame stay
// buffered until the next Feed.
//
// After a rejected block the buffer is shifted one byte at a time until a
// valid frame lines up again. At most maxScan bytes are discarded per Feed;
// past that the search stops and resumes on the next call. The buffer never
// grows past maxBuffer: the oldest bytes are dropped and counted as missed.
type Assembler struct {
	validator Validator
	maxScan   int
	maxBuffer int

	buf       []byte
	resyncing bool
	discarded int
}

func NewAssembler(validator Validator, maxScan, maxBuffer int) *Assembler {
	if maxScan <= 0 {
		maxScan = DefaultMaxResyncScan
	}
	if maxBuffer < FrameSize {
		maxBuffer = DefaultMaxBuffer
	}
	return &Assembler{
		validator: validator,
		maxScan:   maxScan,
		maxBuffer: maxBuffer,
	}
}

func (a *Assembler) Feed(data []byte, now time.Time) FeedResult {
	var res FeedResult
	a.buf = append(a.buf, data...)

	if over := len(a.buf) - a.maxBuffer; over > 0 {
		a.buf = a.buf[over:]
		res.DiscardedBytes += over
		res.MissedFrames += bytesToFrames(over)
	}

	scanned := 0
	for len(a.buf) >= FrameSize {
		r := a.validator.Validate(a.buf[:FrameSize])
		if r.Verdict == Valid {
			f := RawFrame{ReceivedAt: now}
			copy(f.Bytes[:], a.buf[:FrameSize])
			res.Frames = append(res.Frames, f)
			a.buf = a.buf[FrameSize:]
			a.endResync(&res)
			continue
		}

		if !a.resyncing {
			a.resyncing = true
			res.InvalidChecksums++
		}
		if scanned >= a.maxScan {
			break
		}
		a.buf = a.buf[1:]
		a.discarded++
		scanned++
		res.DiscardedBytes++
	}

	if len(a.buf) == 0 {
		a.buf = nil
	}
	return res
}

// Pending returns the number of buffered bytes not yet consumed.
func (a *Assembler) Pending() int {
	return len(a.buf)
}

// Resyncing reports whether the assembler is searching for frame alignment.
func (a *Assembler) Resyncing() bool {
	return a.resyncing
}

func (a *Assembler) Reset() {
	a.buf = nil
	a.resyncing = false
	a.discarded = 0
}

func (a *Assembler) endResync(res *FeedResult) {
	if !a.resyncing {
		return
	}
	res.MissedFrames += bytesToFrames(a.discarded)
	a.resyncing = false
	a.discarded = 0
}

// bytesToFrames rounds a discarded byte count to the nearest whole number
// of frames, never less than one.
func bytesToFrames(n int) uint64 {
	if n <= 0 {
		return 0
	}
	frames := (n + FrameSize/2) / FrameSize
	if frames == 0 {
		frames = 1
	}
	return uint64(frames)
}
