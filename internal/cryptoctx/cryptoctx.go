// Package cryptoctx implements the key-agreement and record-layer
// crypto spec.md §4.1 (C1) names: P-256 ECDH, HKDF-SHA256 derivation,
// and AES-256-GCM encrypt/decrypt. It follows the teacher's own
// crypto.go (hkdfBytes/gcm helpers) and keywrap.go (nonce-prefixed
// AEAD blob convention), generalized from a hardcoded group key to a
// per-session ECDH-derived one.
package cryptoctx

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/pem"
	"io"

	"golang.org/x/crypto/hkdf"
)

// Kind distinguishes the taxonomy in spec.md §7.
type Kind int

const (
	KindNone Kind = iota
	KindMalformed
	KindNoKey
	KindAuth
	KindBadPeerKey
)

// Error is the CryptoError taxonomy from spec.md §7.
type Error struct {
	Kind Kind
	Msg  string
}

func (e *Error) Error() string { return e.Msg }

func newErr(k Kind, msg string) *Error { return &Error{Kind: k, Msg: msg} }

const (
	nonceSize  = 12
	tagSize    = 16
	hkdfInfo   = "clipshare/session-key/v1"
	pemKeyType = "EC P-256 PUBLIC KEY"
)

// Context holds the ECDH keypair and, once key agreement completes,
// the derived AEAD key for one session. The zero value is not usable;
// construct with New.
type Context struct {
	curve      ecdh.Curve
	local      *ecdh.PrivateKey
	peerPublic *ecdh.PublicKey
	shared     []byte // 32 bytes, nil until accept_peer succeeds
}

// New generates a fresh P-256 keypair for one session.
func New() (*Context, error) {
	curve := ecdh.P256()
	priv, err := curve.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Context{curve: curve, local: priv}, nil
}

// PublicBytes returns this context's public key PEM-encoded, for the
// key_exchange_{server,client} handshake frames.
func (c *Context) PublicBytes() string {
	block := &pem.Block{Type: pemKeyType, Bytes: c.local.PublicKey().Bytes()}
	return string(pem.EncodeToMemory(block))
}

// AcceptPeer parses and validates a peer's PEM-encoded P-256 public
// key, derives the shared AEAD key via ECDH + HKDF-SHA256, and stores
// it. Returns CryptoError{BadPeerKey} for anything that isn't a valid
// P-256 point.
func (c *Context) AcceptPeer(peerPEM string) error {
	block, _ := pem.Decode([]byte(peerPEM))
	if block == nil || block.Type != pemKeyType {
		return newErr(KindBadPeerKey, "cryptoctx: not a PEM-encoded P-256 public key")
	}
	peerPub, err := c.curve.NewPublicKey(block.Bytes)
	if err != nil {
		return newErr(KindBadPeerKey, "cryptoctx: invalid P-256 point: "+err.Error())
	}
	secret, err := c.local.ECDH(peerPub)
	if err != nil {
		return newErr(KindBadPeerKey, "cryptoctx: ECDH failed: "+err.Error())
	}
	shared, err := hkdfBytes(secret, hkdfInfo, 32)
	if err != nil {
		return newErr(KindBadPeerKey, "cryptoctx: key derivation failed: "+err.Error())
	}
	c.peerPublic = peerPub
	c.shared = shared
	return nil
}

// HasShared reports whether key agreement has completed.
func (c *Context) HasShared() bool { return len(c.shared) == 32 }

// Encrypt seals plaintext with a fresh nonce under AES-256-GCM,
// producing nonce(12) || ciphertext || tag(16).
func (c *Context) Encrypt(plaintext []byte) ([]byte, error) {
	aead, err := c.aead()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, nonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a nonce(12)||ciphertext||tag(16) record.
func (c *Context) Decrypt(record []byte) ([]byte, error) {
	if len(record) < nonceSize+tagSize {
		return nil, newErr(KindMalformed, "cryptoctx: record shorter than nonce+tag")
	}
	aead, err := c.aead()
	if err != nil {
		return nil, err
	}
	nonce, ct := record[:nonceSize], record[nonceSize:]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, newErr(KindAuth, "cryptoctx: authentication failed")
	}
	return pt, nil
}

func (c *Context) aead() (cipher.AEAD, error) {
	if !c.HasShared() {
		return nil, newErr(KindNoKey, "cryptoctx: no shared key established")
	}
	block, err := aes.NewCipher(c.shared)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

func hkdfBytes(secret []byte, info string, n int) ([]byte, error) {
	h := hkdf.New(sha256.New, secret, nil, []byte(info))
	out := make([]byte, n)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, err
	}
	return out, nil
}
