package transport

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a *websocket.Conn to the Conn interface. gorilla's
// default upgrader/dialer already preserve message boundaries, which
// is exactly the "frames preserve boundaries" assumption spec.md §6
// makes.
type wsConn struct {
	c *websocket.Conn

	pongMu sync.Mutex
	pongCh chan struct{}
}

func wrap(c *websocket.Conn) Conn {
	w := &wsConn{c: c, pongCh: make(chan struct{}, 1)}
	c.SetPongHandler(func(string) error {
		select {
		case w.pongCh <- struct{}{}:
		default:
		}
		return nil
	})
	return w
}

// Ping writes a WebSocket ping control frame and waits for the
// matching pong, or for deadline to pass.
func (w *wsConn) Ping(deadline time.Time) error {
	if err := w.c.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
		return mapCloseErr(err)
	}
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()
	select {
	case <-w.pongCh:
		return nil
	case <-timer.C:
		return fmt.Errorf("transport: ping reply timed out")
	}
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.c.ReadMessage()
	if err != nil {
		return nil, mapCloseErr(err)
	}
	return data, nil
}

func (w *wsConn) WriteMessage(data []byte) error {
	if err := w.c.WriteMessage(websocket.BinaryMessage, data); err != nil {
		return mapCloseErr(err)
	}
	return nil
}

func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.c.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.c.SetWriteDeadline(t) }
func (w *wsConn) Close() error                       { return w.c.Close() }
func (w *wsConn) RemoteAddr() string                 { return w.c.RemoteAddr().String() }

func mapCloseErr(err error) error {
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		return ErrTimeout
	}
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		return ErrClosed
	}
	if _, ok := err.(*net.OpError); ok {
		return ErrClosed
	}
	return err
}

// Dial opens a client-side connection to a coordinator endpoint of
// the form "ws://host:port" as produced by a discovery.Locator.
func Dial(ctx context.Context, endpoint string) (Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	c, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", endpoint, err)
	}
	return wrap(c), nil
}

// Listener accepts inbound sessions on one HTTP upgrade path, the
// coordinator side of spec.md's control flow.
type Listener struct {
	addr     string
	path     string
	upgrader websocket.Upgrader
	accept   chan Conn
	srv      *http.Server
}

// NewListener starts listening immediately; accepted connections are
// delivered through Accept.
func NewListener(addr, path string) (*Listener, error) {
	l := &Listener{
		addr:     addr,
		path:     path,
		upgrader: websocket.Upgrader{ReadBufferSize: 4096, WriteBufferSize: 4096},
		accept:   make(chan Conn, 8),
	}
	mux := http.NewServeMux()
	mux.HandleFunc(path, l.handle)
	l.srv = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %s: %w", addr, err)
	}
	go l.srv.Serve(ln)
	return l, nil
}

func (l *Listener) handle(w http.ResponseWriter, r *http.Request) {
	c, err := l.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	l.accept <- wrap(c)
}

// Accept blocks until the next inbound session is established or ctx
// is cancelled.
func (l *Listener) Accept(ctx context.Context) (Conn, error) {
	select {
	case c := <-l.accept:
		return c, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close stops accepting new sessions.
func (l *Listener) Close() error {
	return l.srv.Close()
}
