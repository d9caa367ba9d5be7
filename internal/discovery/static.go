package discovery

import "context"

// StaticLocator is an in-memory Locator used by this repo's own
// tests (and usable for a manually-configured peer list) in place of
// the mDNS+beacon implementation.
type StaticLocator struct {
	peers []PeerEndpoint
}

// NewStaticLocator returns a Locator that immediately reports peers
// on every Browse call.
func NewStaticLocator(peers ...PeerEndpoint) *StaticLocator {
	return &StaticLocator{peers: peers}
}

func (s *StaticLocator) Advertise(ctx context.Context, nodeID, endpoint string) error {
	return nil
}

func (s *StaticLocator) Browse(ctx context.Context) (<-chan PeerEndpoint, error) {
	out := make(chan PeerEndpoint, len(s.peers))
	for _, p := range s.peers {
		out <- p
	}
	go func() {
		<-ctx.Done()
		close(out)
	}()
	return out, nil
}

// Close does nothing; a channel returned by Browse is closed only when
// that call's ctx is cancelled.
func (s *StaticLocator) Close() error { return nil }
