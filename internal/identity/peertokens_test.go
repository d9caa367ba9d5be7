package identity

import (
	"path/filepath"
	"testing"
)

func TestPeerTokenStoreRoundTripsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "peer_tokens.json")

	s1, err := NewPeerTokenStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s1.Store("device-1", []byte("topsecret")); err != nil {
		t.Fatalf("store: %v", err)
	}

	s2, err := NewPeerTokenStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	token, ok := s2.Lookup("device-1")
	if !ok || string(token) != "topsecret" {
		t.Fatalf("lookup after reopen = %q, %v", token, ok)
	}

	if _, ok := s2.Lookup("unknown"); ok {
		t.Fatalf("expected unknown device to miss")
	}
}
