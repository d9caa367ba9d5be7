// Package identity implements spec.md §4.3 (C3): a stable device id
// derived once at process start, and an HMAC-SHA256 signature used as
// the handshake authenticator. The id-derivation scheme follows the
// teacher's fingerprint.go (hostname + hardware fingerprint, hashed
// and base32-encoded) closely, trading the teacher's ed25519 device
// keypair for the HMAC-over-token scheme spec.md §4.3 specifies.
package identity

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base32"
	"net"
	"os"
	"runtime"
	"sort"
	"strings"
)

// Identity is spec.md §3's DeviceIdentity: a stable id and an opaque,
// possibly-absent pairing token.
type Identity struct {
	ID    string
	store *TokenStore
}

// New derives the stable device id from the hostname and a short
// hardware fingerprint (MAC addresses, sorted, hashed) exactly as the
// teacher's deriveNodeKeyPair/buildNodeIdentity do, and attaches the
// given token store. If no hardware fingerprint is available, a
// random 5-digit suffix is generated and persisted alongside the
// token per spec.md §4.3.
func New(store *TokenStore) (*Identity, error) {
	host, _ := os.Hostname()
	hwfp := hardwareFingerprint()
	if hwfp == "" {
		suffix, err := store.RandomSuffix()
		if err != nil {
			return nil, err
		}
		hwfp = suffix
	}
	id := host + "-" + hwfp
	return &Identity{ID: id, store: store}, nil
}

// Token returns the persisted pairing token, or nil if unpaired.
func (i *Identity) Token() []byte { return i.store.Load() }

// SetToken persists a newly issued pairing token (first_authorized).
func (i *Identity) SetToken(token []byte) error { return i.store.Save(token) }

// Invalidate clears the persisted token, so the next handshake
// presents first_time=true (spec.md §7: TokenInvalid mutates local
// state by removing the token file).
func (i *Identity) Invalidate() error { return i.store.Clear() }

// Signature computes HMAC-SHA256(token, id) as spec.md §4.3 defines,
// using i.ID as the challenge. Returns nil if unpaired (no token).
func (i *Identity) Signature() []byte {
	token := i.Token()
	if token == nil {
		return nil
	}
	return Sign(token, i.ID)
}

// Sign computes HMAC-SHA256(token, challenge).
func Sign(token []byte, challenge string) []byte {
	mac := hmac.New(sha256.New, token)
	mac.Write([]byte(challenge))
	return mac.Sum(nil)
}

// VerifySignature checks a received signature against a stored token
// and challenge (identity), using constant-time comparison.
func VerifySignature(token []byte, challenge string, signature []byte) bool {
	want := Sign(token, challenge)
	return hmac.Equal(want, signature)
}

func hardwareFingerprint() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	var macs []string
	for _, ifc := range ifaces {
		if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}
		m := ifc.HardwareAddr.String()
		if m == "" {
			continue
		}
		macs = append(macs, strings.ToLower(m))
	}
	if len(macs) == 0 {
		return ""
	}
	sort.Strings(macs)
	sum := sha256.Sum256([]byte(strings.Join(macs, ",") + "|" + runtime.GOOS))
	enc := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(sum[:])
	enc = strings.ToLower(enc)
	if len(enc) > 12 {
		enc = enc[:12]
	}
	return enc
}

// randomDigits is used by TokenStore.RandomSuffix (hardware
// fingerprint unavailable fallback path, spec.md §4.3).
func randomDigits(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	digits := make([]byte, n)
	for i, v := range b {
		digits[i] = '0' + v%10
	}
	return string(digits), nil
}
