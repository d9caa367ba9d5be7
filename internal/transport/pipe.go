package transport

import (
	"sync"
	"time"
)

// pipeConn is an in-memory, message-preserving Conn used by this
// repo's own tests (handshake, supervisor) to exercise two peers
// without a real socket — the same role net.Pipe plays for byte
// streams, generalized to preserve message boundaries the way a
// WebSocket connection does.
type pipeConn struct {
	out chan []byte
	in  chan []byte

	shared *pipeShared

	readDeadline  time.Time
	writeDeadline time.Time
}

// pipeShared is the close state both ends of one Pipe() share: either
// end closing tears down the whole connection.
type pipeShared struct {
	once     sync.Once
	closeErr chan struct{}
}

func (s *pipeShared) close() {
	s.once.Do(func() { close(s.closeErr) })
}

// Pipe returns two connected in-memory Conns, a and b, such that
// writes to a are readable from b and vice versa.
func Pipe() (a, b Conn) {
	ab := make(chan []byte, 64)
	ba := make(chan []byte, 64)
	shared := &pipeShared{closeErr: make(chan struct{})}
	pa := &pipeConn{out: ab, in: ba, shared: shared}
	pb := &pipeConn{out: ba, in: ab, shared: shared}
	return pa, pb
}

func (p *pipeConn) ReadMessage() ([]byte, error) {
	var timeout <-chan time.Time
	if !p.readDeadline.IsZero() {
		d := time.Until(p.readDeadline)
		if d <= 0 {
			return nil, ErrTimeout
		}
		t := time.NewTimer(d)
		defer t.Stop()
		timeout = t.C
	}
	select {
	case data, ok := <-p.in:
		if !ok {
			return nil, ErrClosed
		}
		return data, nil
	case <-p.shared.closeErr:
		return nil, ErrClosed
	case <-timeout:
		return nil, ErrTimeout
	}
}

func (p *pipeConn) WriteMessage(data []byte) error {
	cp := make([]byte, len(data))
	copy(cp, data)
	select {
	case p.out <- cp:
		return nil
	case <-p.shared.closeErr:
		return ErrClosed
	}
}

func (p *pipeConn) SetReadDeadline(t time.Time) error  { p.readDeadline = t; return nil }
func (p *pipeConn) SetWriteDeadline(t time.Time) error { p.writeDeadline = t; return nil }

// Ping is a no-op success as long as the pipe is still open — an
// in-memory transport has no real liveness to probe.
func (p *pipeConn) Ping(deadline time.Time) error {
	select {
	case <-p.shared.closeErr:
		return ErrClosed
	default:
		return nil
	}
}

func (p *pipeConn) Close() error {
	p.shared.close()
	return nil
}

func (p *pipeConn) RemoteAddr() string { return "pipe" }
