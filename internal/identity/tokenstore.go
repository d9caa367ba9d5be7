package identity

import (
	"os"
	"path/filepath"
	"sync"
)

// TokenStore persists the device's opaque pairing token as plain
// bytes at <home>/.clipshare/device_token.txt (spec.md §6), the same
// "trivial byte-file" treatment as the teacher's key.pem/env.enc
// paths in env.go, minus the encryption env.enc adds (spec.md §3
// explicitly calls the token opaque, not itself sensitive once paired
// over an authenticated channel).
//
// Read/write errors are reported through the returned error from
// Save/Clear, but Load behaves as "unpaired" on any read failure —
// spec.md §4.3: "Read/write errors are reported but non-fatal".
type TokenStore struct {
	mu   sync.Mutex
	path string
}

// DefaultTokenPath returns <home>/.clipshare/device_token.txt.
func DefaultTokenPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".clipshare", "device_token.txt"), nil
}

// NewTokenStore opens a token store at path, creating its parent
// directory if needed.
func NewTokenStore(path string) (*TokenStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, err
	}
	return &TokenStore{path: path}, nil
}

// Load reads the token, returning nil if absent or unreadable.
func (s *TokenStore) Load() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, err := os.ReadFile(s.path)
	if err != nil || len(b) == 0 {
		return nil
	}
	return b
}

// Save writes a freshly issued token, replacing any existing one.
func (s *TokenStore) Save(token []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return os.WriteFile(s.path, token, 0o600)
}

// Clear deletes the token file (TokenInvalid recovery, spec.md §7).
// Deleting an already-absent file is not an error.
func (s *TokenStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := os.Remove(s.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}

// RandomSuffix generates and persists the 5-digit fallback identifier
// spec.md §4.3 calls for when no hardware fingerprint is available,
// storing it alongside the token file so it survives restarts.
func (s *TokenStore) RandomSuffix() (string, error) {
	suffixPath := s.path + ".suffix"
	if b, err := os.ReadFile(suffixPath); err == nil && len(b) == 5 {
		return string(b), nil
	}
	suffix, err := randomDigits(5)
	if err != nil {
		return "", err
	}
	if err := os.WriteFile(suffixPath, []byte(suffix), 0o600); err != nil {
		return "", err
	}
	return suffix, nil
}
