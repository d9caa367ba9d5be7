// Package transport defines the duplex, message-framed byte-stream
// spec.md §6 requires ("ordered, reliable, bidirectional byte-stream
// with message framing (WebSocket-like)") and a concrete WebSocket
// implementation. The interface is deliberately narrow so the
// handshake engine, supervisor, and file engine depend only on
// message-in/message-out semantics, never on gorilla/websocket types
// directly — mirroring the way the teacher's node.go code depends on
// libp2p's network.Stream only through small handler functions.
package transport

import (
	"errors"
	"time"
)

// Conn is one open, ordered, bidirectional message transport. A
// single ReadMessage/WriteMessage pair must never be called
// concurrently from more than one goroutine each — spec.md §5's
// "single writer per direction" rule.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	// Ping sends a transport-level liveness probe and blocks until the
	// peer acknowledges it or deadline elapses (spec.md §4.7.4's 30 s
	// ping reply deadline). It never carries application frames.
	Ping(deadline time.Time) error
	Close() error
	RemoteAddr() string
}

// ErrClosed is returned by ReadMessage/WriteMessage once the
// underlying connection has been closed, mapping to spec.md §7's
// TransportError::Closed.
var ErrClosed = errors.New("transport: connection closed")

// ErrTimeout is returned by ReadMessage when a read deadline elapses
// without a message arriving — distinct from ErrClosed so callers
// (the session receiver's idle-then-ping logic, spec.md §4.7.4) can
// tell "nothing arrived yet" from "the peer is gone".
var ErrTimeout = errors.New("transport: read deadline exceeded")
