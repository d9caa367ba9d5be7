package identity

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *TokenStore {
	t.Helper()
	s, err := NewTokenStore(filepath.Join(t.TempDir(), "device_token.txt"))
	require.NoError(t, err)
	return s
}

func TestTokenStoreLifecycle(t *testing.T) {
	s := newStore(t)
	require.Nil(t, s.Load())

	require.NoError(t, s.Save([]byte("tok-123")))
	require.Equal(t, []byte("tok-123"), s.Load())

	require.NoError(t, s.Clear())
	require.Nil(t, s.Load())

	// Clearing twice is not an error.
	require.NoError(t, s.Clear())
}

func TestIdentityStableAcrossCalls(t *testing.T) {
	s := newStore(t)
	id1, err := New(s)
	require.NoError(t, err)
	id2, err := New(s)
	require.NoError(t, err)
	require.Equal(t, id1.ID, id2.ID)
}

func TestSignatureRoundTrip(t *testing.T) {
	s := newStore(t)
	id, err := New(s)
	require.NoError(t, err)

	require.Nil(t, id.Signature(), "unpaired device has no signature")

	require.NoError(t, id.SetToken([]byte("secret-token")))
	sig := id.Signature()
	require.NotNil(t, sig)
	require.True(t, VerifySignature([]byte("secret-token"), id.ID, sig))
	require.False(t, VerifySignature([]byte("wrong-token"), id.ID, sig))
}

func TestInvalidateClearsToken(t *testing.T) {
	s := newStore(t)
	id, err := New(s)
	require.NoError(t, err)
	require.NoError(t, id.SetToken([]byte("tok")))
	require.NotNil(t, id.Token())
	require.NoError(t, id.Invalidate())
	require.Nil(t, id.Token())
}
