package discovery

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBeaconRoundTrip(t *testing.T) {
	key, err := NewBeaconKey()
	require.NoError(t, err)

	b := beacon{NodeID: "node-1", Endpoint: "ws://192.168.1.20:7331/session", TS: time.Now().Unix()}
	pkt, err := encryptBeacon(b, key)
	require.NoError(t, err)

	got, err := decryptBeacon(pkt, key)
	require.NoError(t, err)
	require.Equal(t, b, got)
}

func TestBeaconRejectsWrongKey(t *testing.T) {
	key, err := NewBeaconKey()
	require.NoError(t, err)
	otherKey, err := NewBeaconKey()
	require.NoError(t, err)

	pkt, err := encryptBeacon(beacon{NodeID: "n", Endpoint: "ws://x:1"}, key)
	require.NoError(t, err)

	_, err = decryptBeacon(pkt, otherKey)
	require.Error(t, err)
}

func TestBeaconRejectsBadMagic(t *testing.T) {
	key, err := NewBeaconKey()
	require.NoError(t, err)
	_, err = decryptBeacon([]byte("not a beacon packet at all, too short or wrong"), key)
	require.Error(t, err)
}

func TestStaticLocatorBrowseReplaysConfiguredPeers(t *testing.T) {
	loc := NewStaticLocator(PeerEndpoint{NodeID: "a", Endpoint: "ws://10.0.0.1:9"})
	ch, err := loc.Browse(context.Background())
	require.NoError(t, err)
	got := <-ch
	require.Equal(t, "a", got.NodeID)
}
