package cca

import (
	"encoding/hex"
	"sync"
)

// TestTransport is an in-memory Transport. Chunks queued with Push are
// returned one per Read call, which mimics bytes trickling in between polls.
type TestTransport struct {
	mu       sync.Mutex
	chunks   [][]byte
	written  [][]byte
	transmit []bool
	readErr  error
	opened   bool
	closed   bool
}

var _ Transport = (*TestTransport)(nil)
var _ FlowController = (*TestTransport)(nil)

func NewTestTransport(chunks ...[]byte) *TestTransport {
	t := &TestTransport{}
	t.Push(chunks...)
	return t
}

// NewTestTransportHex queues each hex string as one chunk.
func NewTestTransportHex(chunks ...string) (*TestTransport, error) {
	t := &TestTransport{}
	for _, c := range chunks {
		b, err := hex.DecodeString(c)
		if err != nil {
			return nil, err
		}
		t.Push(b)
	}
	return t, nil
}

func (t *TestTransport) Push(chunks ...[]byte) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range chunks {
		t.chunks = append(t.chunks, append([]byte(nil), c...))
	}
}

// FailReads makes every Read past the queued chunks return err.
func (t *TestTransport) FailReads(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.readErr = err
}

func (t *TestTransport) Open() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.opened = true
	return nil
}

func (t *TestTransport) Read(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.chunks) == 0 {
		return 0, t.readErr
	}
	n := copy(p, t.chunks[0])
	if n < len(t.chunks[0]) {
		t.chunks[0] = t.chunks[0][n:]
	} else {
		t.chunks = t.chunks[1:]
	}
	return n, nil
}

func (t *TestTransport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.written = append(t.written, append([]byte(nil), p...))
	return len(p), nil
}

func (t *TestTransport) SetTransmit(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.transmit = append(t.transmit, enabled)
	return nil
}

func (t *TestTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

// Written returns a copy of every buffer passed to Write.
func (t *TestTransport) Written() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.written))
	copy(out, t.written)
	return out
}

// TransmitToggles returns the flow control states set so far, in order.
func (t *TestTransport) TransmitToggles() []bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]bool(nil), t.transmit...)
}

func (t *TestTransport) IsOpen() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opened && !t.closed
}
