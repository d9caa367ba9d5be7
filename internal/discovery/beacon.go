package discovery

import (
	"crypto/rand"
	"encoding/json"
	"errors"

	"golang.org/x/crypto/chacha20poly1305"
)

// beaconMagic tags our packets so stray UDP traffic on the multicast
// group is rejected before an expensive AEAD open, mirroring the
// teacher's beacon_encrypt.go convention exactly.
var beaconMagic = []byte("CSB1")

// beacon is the plaintext a beacon packet decrypts to: enough for the
// receiver to build a PeerEndpoint.
type beacon struct {
	NodeID   string `json:"node_id"`
	Endpoint string `json:"endpoint"`
	TS       int64  `json:"ts"`
}

func encryptBeacon(b beacon, key []byte) ([]byte, error) {
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	plain, err := json.Marshal(b)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}
	ct := aead.Seal(nil, nonce, plain, nil)
	out := append(append(beaconMagic[:0:0], beaconMagic...), nonce...)
	return append(out, ct...), nil
}

func decryptBeacon(pkt []byte, key []byte) (beacon, error) {
	var b beacon
	if len(pkt) <= len(beaconMagic)+chacha20poly1305.NonceSizeX {
		return b, errors.New("discovery: beacon packet too short")
	}
	if string(pkt[:len(beaconMagic)]) != string(beaconMagic) {
		return b, errors.New("discovery: bad beacon magic")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return b, err
	}
	nonce := pkt[len(beaconMagic) : len(beaconMagic)+chacha20poly1305.NonceSizeX]
	ct := pkt[len(beaconMagic)+chacha20poly1305.NonceSizeX:]
	plain, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return b, err
	}
	err = json.Unmarshal(plain, &b)
	return b, err
}
