package handshake

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"clipshare-node/internal/cryptoctx"
	"clipshare-node/internal/identity"
	"clipshare-node/internal/transport"
)

type memTokens struct {
	mu     sync.Mutex
	tokens map[string][]byte
}

func newMemTokens() *memTokens { return &memTokens{tokens: make(map[string][]byte)} }

func (m *memTokens) Lookup(id string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.tokens[id]
	return t, ok
}

func (m *memTokens) Store(id string, token []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[id] = token
	return nil
}

func newIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	store, err := identity.NewTokenStore(filepath.Join(t.TempDir(), "device_token.txt"))
	require.NoError(t, err)
	id, err := identity.New(store)
	require.NoError(t, err)
	return id
}

func TestHandshakeFirstTimePairing(t *testing.T) {
	clientConn, serverConn := transport.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	clientID := newIdentity(t)
	clientCrypto, err := cryptoctx.New()
	require.NoError(t, err)
	serverCrypto, err := cryptoctx.New()
	require.NoError(t, err)
	tokens := newMemTokens()

	var clientErr, serverErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		clientErr = RunInitiator(context.Background(), clientConn, clientID, clientCrypto, "laptop", "linux")
	}()
	go func() {
		defer wg.Done()
		serverErr = RunResponder(context.Background(), serverConn, tokens, AlwaysAllow, serverCrypto)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
	require.NotNil(t, clientID.Token(), "first-time pairing should persist an issued token")
	require.True(t, clientCrypto.HasShared())
	require.True(t, serverCrypto.HasShared())

	plaintext := []byte("hello across the session")
	ct, err := clientCrypto.Encrypt(plaintext)
	require.NoError(t, err)
	pt, err := serverCrypto.Decrypt(ct)
	require.NoError(t, err)
	require.Equal(t, plaintext, pt)
}

func TestHandshakeReturningDeviceReauthenticates(t *testing.T) {
	tokens := newMemTokens()
	clientID := newIdentity(t)
	require.NoError(t, clientID.SetToken([]byte("already-issued-token")))
	require.NoError(t, tokens.Store(clientID.ID, []byte("already-issued-token")))

	clientConn, serverConn := transport.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	clientCrypto, _ := cryptoctx.New()
	serverCrypto, _ := cryptoctx.New()

	var clientErr, serverErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		clientErr = RunInitiator(context.Background(), clientConn, clientID, clientCrypto, "phone", "android")
	}()
	go func() {
		defer wg.Done()
		serverErr = RunResponder(context.Background(), serverConn, tokens, AlwaysAllow, serverCrypto)
	}()
	wg.Wait()

	require.NoError(t, clientErr)
	require.NoError(t, serverErr)
}

func TestHandshakeRejectedPairingDoesNotIssueToken(t *testing.T) {
	tokens := newMemTokens()
	clientID := newIdentity(t)

	clientConn, serverConn := transport.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	clientCrypto, _ := cryptoctx.New()
	serverCrypto, _ := cryptoctx.New()

	deny := func(string, string, string) bool { return false }

	var clientErr, serverErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		clientErr = RunInitiator(context.Background(), clientConn, clientID, clientCrypto, "laptop", "linux")
	}()
	go func() {
		defer wg.Done()
		serverErr = RunResponder(context.Background(), serverConn, tokens, deny, serverCrypto)
	}()
	wg.Wait()

	require.Error(t, clientErr)
	require.Error(t, serverErr)
	var hsErr *Error
	require.ErrorAs(t, clientErr, &hsErr)
	require.Equal(t, KindUnauthorized, hsErr.Kind)
	require.Nil(t, clientID.Token())
}

func TestHandshakeBadSignatureInvalidatesLocalToken(t *testing.T) {
	tokens := newMemTokens()
	clientID := newIdentity(t)
	require.NoError(t, clientID.SetToken([]byte("stale-token")))
	// Server never learned this token (e.g. it was revoked server-side).

	clientConn, serverConn := transport.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()
	clientCrypto, _ := cryptoctx.New()
	serverCrypto, _ := cryptoctx.New()

	var clientErr, serverErr error
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		clientErr = RunInitiator(context.Background(), clientConn, clientID, clientCrypto, "laptop", "linux")
	}()
	go func() {
		defer wg.Done()
		serverErr = RunResponder(context.Background(), serverConn, tokens, AlwaysAllow, serverCrypto)
	}()
	wg.Wait()

	require.Error(t, clientErr)
	require.Error(t, serverErr)
	var hsErr *Error
	require.ErrorAs(t, clientErr, &hsErr)
	require.Equal(t, KindTokenInvalid, hsErr.Kind)
	require.Nil(t, clientID.Token(), "bad signature should invalidate the stale local token")
}

func TestHandshakeMalformedFirstMessage(t *testing.T) {
	clientConn, serverConn := transport.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	require.NoError(t, clientConn.WriteMessage([]byte("not json")))

	serverCrypto, _ := cryptoctx.New()
	tokens := newMemTokens()
	err := RunResponder(context.Background(), serverConn, tokens, AlwaysAllow, serverCrypto)
	require.Error(t, err)
	var hsErr *Error
	require.ErrorAs(t, err, &hsErr)
	require.Equal(t, KindMalformed, hsErr.Kind)
}
