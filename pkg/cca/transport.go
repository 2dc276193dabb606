package cca

import "io"

// Transport is the byte link to the gateway bus. Read must not block for
// longer than the transport's read timeout and returns 0, nil when nothing
// is buffered.
type Transport interface {
	io.ReadWriteCloser
	Open() error
}

// FlowController is implemented by half-duplex transports that need a
// driver-enable signal raised while transmitting.
type FlowController interface {
	SetTransmit(enabled bool) error
}

// Drainer is implemented by transports that can wait for the output buffer
// to be fully sent.
type Drainer interface {
	Drain() error
}

// ReadAvailable reads whatever the transport has buffered, up to max bytes.
func ReadAvailable(t Transport, max int) ([]byte, error) {
	var out []byte
	chunk := make([]byte, 256)
	for len(out) < max {
		want := min(len(chunk), max-len(out))
		n, err := t.Read(chunk[:want])
		if n > 0 {
			out = append(out, chunk[:n]...)
		}
		if err != nil {
			if err == io.EOF {
				return out, nil
			}
			return out, err
		}
		if n < want {
			break
		}
	}
	return out, nil
}

// WriteFrame writes p with the driver enabled for the duration of the write
// when the transport supports flow control.
func WriteFrame(t Transport, p []byte) error {
	fc, hasFlowControl := t.(FlowController)
	if hasFlowControl {
		if err := fc.SetTransmit(true); err != nil {
			return err
		}
		defer fc.SetTransmit(false)
	}
	for len(p) > 0 {
		n, err := t.Write(p)
		if err != nil {
			return err
		}
		p = p[n:]
	}
	if d, ok := t.(Drainer); ok {
		return d.Drain()
	}
	return nil
}
