// Package discovery implements the Peer Locator external interface
// spec.md §6 leaves unspecified ("the literal mDNS/zeroconf mechanism
// spec.md names as an out-of-scope external collaborator", per
// SPEC_FULL.md §3), plus one concrete implementation so the system is
// runnable end to end: a libp2p host running mDNS for peer presence,
// paired with an XChaCha20-Poly1305-encrypted UDP beacon (grounded on
// the teacher's discover.go/beacon_encrypt.go) that carries the
// actual dialable "ws://host:port" endpoint.
package discovery

import (
	"context"
	"time"
)

// PeerEndpoint is one discovered participant: a stable node id and
// the transport.Dial-able endpoint string it is currently reachable
// at.
type PeerEndpoint struct {
	NodeID   string
	Endpoint string
	LastSeen time.Time
}

// Locator is the capability the Supervisor needs from peer discovery:
// advertise this node's own endpoint, and learn about others'.
type Locator interface {
	// Advertise begins broadcasting endpoint as this node's reachable
	// address. It returns once advertising has started; it keeps
	// running until ctx is cancelled or Close is called.
	Advertise(ctx context.Context, nodeID, endpoint string) error

	// Browse returns a channel of peer sightings. The channel is
	// closed when ctx is cancelled or Close is called.
	Browse(ctx context.Context) (<-chan PeerEndpoint, error)

	Close() error
}
