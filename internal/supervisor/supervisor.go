package supervisor

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"clipshare-node/internal/arbiter"
	"clipshare-node/internal/clipboard"
	"clipshare-node/internal/cryptoctx"
	"clipshare-node/internal/discovery"
	"clipshare-node/internal/handshake"
	"clipshare-node/internal/identity"
	"clipshare-node/internal/statusapi"
	"clipshare-node/internal/transfer"
	"clipshare-node/internal/transport"
)

// State is the spec.md §4.7.1 session state machine.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "DISCONNECTED"
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "UNKNOWN"
	}
}

// ReconnectSchedule is the fixed escalating wait sequence spec.md
// §4.7.3 names: [15s, 30s, 60s, 180s, 300s], then 300s forever.
var ReconnectSchedule = []time.Duration{
	15 * time.Second,
	30 * time.Second,
	60 * time.Second,
	180 * time.Second,
	300 * time.Second,
}

// Supervisor owns one outbound peer relationship: locating the peer,
// dialing and handshaking, running the sender/receiver pair while
// connected, and reconnecting on failure per the schedule above.
type Supervisor struct {
	Identity   *identity.Identity
	Locator    discovery.Locator
	Adapter    clipboard.Adapter
	Cache      *transfer.Cache
	Config     SessionConfig
	ChunkSize  int
	RecvDir    string
	DeviceName string
	Platform   string

	mu       sync.Mutex
	state    State
	endpoint string

	reconnectCh chan struct{}

	arb *arbiter.Arbiter

	// dial is the connection factory; overridable in tests to avoid a
	// real transport.Dial against a discovered endpoint.
	dial func(ctx context.Context, endpoint string) (transport.Conn, error)

	// locate resolves the next endpoint to dial; overridable in tests.
	// The default browses Locator once per (re)connect attempt, so "peer
	// discovery may run and update the target endpoint" (spec.md
	// §4.7.3) while the Supervisor is between sessions.
	locate func(ctx context.Context) (string, error)
}

// New builds a Supervisor ready to run against locator-discovered
// peers, using arb as the shared loop-suppression state (one Arbiter
// per peer relationship, per spec.md §4.6).
func New(id *identity.Identity, locator discovery.Locator, adapter clipboard.Adapter, cache *transfer.Cache, arb *arbiter.Arbiter, chunkSize int, recvDir, deviceName, platform string) *Supervisor {
	s := &Supervisor{
		Identity:    id,
		Locator:     locator,
		Adapter:     adapter,
		Cache:       cache,
		Config:      SessionConfig{ClipboardCheckInterval: 350 * time.Millisecond, MinProcessInterval: 500 * time.Millisecond},
		ChunkSize:   chunkSize,
		RecvDir:     recvDir,
		DeviceName:  deviceName,
		Platform:    platform,
		arb:         arb,
		dial:        transport.Dial,
		reconnectCh: make(chan struct{}, 1),
	}
	s.locate = s.browseOnce
	return s
}

// browseOnce waits for the first peer sighting from Locator.
func (s *Supervisor) browseOnce(ctx context.Context) (string, error) {
	if s.Locator == nil {
		return "", fmt.Errorf("no peer locator configured")
	}
	browseCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	ch, err := s.Locator.Browse(browseCtx)
	if err != nil {
		return "", err
	}
	select {
	case peer, ok := <-ch:
		if !ok {
			return "", fmt.Errorf("no peer found")
		}
		return peer.Endpoint, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// State returns the current lifecycle state.
func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Supervisor) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *Supervisor) setEndpoint(ep string) {
	s.mu.Lock()
	s.endpoint = ep
	s.mu.Unlock()
}

// SessionState satisfies statusapi.StatusProvider.
func (s *Supervisor) SessionState() statusapi.State {
	return s.State()
}

// PeerEndpoint satisfies statusapi.StatusProvider.
func (s *Supervisor) PeerEndpoint() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.endpoint
}

// TriggerReconnect satisfies statusapi.Reconnector: it drops the
// current session (if any) and skips any remaining backoff wait so
// Run's loop dials again immediately.
func (s *Supervisor) TriggerReconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}

// Run drives the DISCONNECTED -> CONNECTING -> CONNECTED cycle and
// the reconnect schedule until ctx is cancelled (spec.md §4.7.5: no
// new reconnect is attempted once shutdown is requested).
func (s *Supervisor) Run(ctx context.Context) error {
	defer func() {
		if s.Cache != nil {
			log.Printf("[supervisor] shutting down; file cache is persisted on every update")
		}
	}()

	scheduleIdx := 0
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.setState(Connecting)
		sessionCtx, sessionCancel := context.WithCancel(ctx)
		go func() {
			select {
			case <-s.reconnectCh:
				sessionCancel()
			case <-sessionCtx.Done():
			}
		}()
		err := s.connectAndServe(sessionCtx, func() { scheduleIdx = 0 })
		sessionCancel()
		s.setState(Disconnected)
		s.setEndpoint("")

		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Printf("[supervisor] session ended (%v), reconnecting", err)

		wait := ReconnectSchedule[scheduleIdx]
		if scheduleIdx < len(ReconnectSchedule)-1 {
			scheduleIdx++
		}
		select {
		case <-time.After(wait):
		case <-s.reconnectCh:
			log.Printf("[supervisor] reconnect requested, skipping remaining backoff")
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// connectAndServe locates, dials, and handshakes with the peer, then
// runs the session to completion. onHandshakeOK is invoked the instant
// the handshake succeeds, independent of how the session later ends,
// so Run's reconnect-schedule index resets on every successful
// handshake (spec.md §4.7.3, §8 invariant 6) rather than only on a
// session that happens to end with a nil error.
func (s *Supervisor) connectAndServe(ctx context.Context, onHandshakeOK func()) error {
	endpoint, err := s.locate(ctx)
	if err != nil {
		return fmt.Errorf("locate: %w", err)
	}

	conn, err := s.dial(ctx, endpoint)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}
	defer conn.Close()
	s.setEndpoint(endpoint)

	crypto, err := cryptoctx.New()
	if err != nil {
		return fmt.Errorf("crypto init: %w", err)
	}

	if err := handshake.RunInitiator(ctx, conn, s.Identity, crypto, s.DeviceName, s.Platform); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	onHandshakeOK()

	s.setState(Connected)
	log.Printf("[supervisor] connected to %s as %s", endpoint, s.Identity.ID)

	deps := SessionDeps{
		Conn:     conn,
		Crypto:   crypto,
		Arbiter:  s.arb,
		Adapter:  s.Adapter,
		Sender:   transfer.NewSender(s.ChunkSize),
		Receiver: transfer.NewReceiver(s.RecvDir, s.Cache),
		Config:   s.Config,
	}
	return runSession(ctx, deps)
}
