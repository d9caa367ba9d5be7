package supervisor

import (
	"context"
	"fmt"
	"time"

	"clipshare-node/internal/arbiter"
	"clipshare-node/internal/clipboard"
	"clipshare-node/internal/cryptoctx"
	"clipshare-node/internal/handshake"
	"clipshare-node/internal/transfer"
	"clipshare-node/internal/transport"
)

// ServeAccepted runs the coordinator side of one inbound session: it
// drives the handshake responder, then the same sender/receiver pair
// runSession uses for the initiator side, until the transport closes.
// Unlike Run, there is no reconnect — a coordinator simply waits for
// a fresh inbound connection (spec.md §4.7.1 only prescribes the
// state machine for one relationship at a time; a coordinator holds
// one such relationship per connected participant).
func ServeAccepted(ctx context.Context, conn transport.Conn, tokens handshake.PeerTokens, policy handshake.PairingPolicy, adapter clipboard.Adapter, cache *transfer.Cache, arb *arbiter.Arbiter, chunkSize int, recvDir string, recorders ...handshake.AttemptRecorder) error {
	defer conn.Close()

	crypto, err := cryptoctx.New()
	if err != nil {
		return fmt.Errorf("crypto init: %w", err)
	}

	if err := handshake.RunResponder(ctx, conn, tokens, policy, crypto, recorders...); err != nil {
		return fmt.Errorf("handshake: %w", err)
	}

	deps := SessionDeps{
		Conn:     conn,
		Crypto:   crypto,
		Arbiter:  arb,
		Adapter:  adapter,
		Sender:   transfer.NewSender(chunkSize),
		Receiver: transfer.NewReceiver(recvDir, cache),
		Config:   SessionConfig{ClipboardCheckInterval: 350 * time.Millisecond, MinProcessInterval: 500 * time.Millisecond},
	}
	return runSession(ctx, deps)
}
