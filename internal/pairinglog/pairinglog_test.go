package pairinglog

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRecordAndListByDevice(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "pairing.db"))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Record(Attempt{DeviceID: "dev-1", DeviceName: "laptop", Platform: "linux", Outcome: OutcomeFirstAuthorized}))
	require.NoError(t, l.Record(Attempt{DeviceID: "dev-1", DeviceName: "laptop", Platform: "linux", Outcome: OutcomeAuthorized}))
	require.NoError(t, l.Record(Attempt{DeviceID: "dev-2", DeviceName: "phone", Platform: "android", Outcome: OutcomeRejected, Reason: "pairing declined"}))

	attempts, err := l.ListByDevice("dev-1")
	require.NoError(t, err)
	require.Len(t, attempts, 2)

	all, err := l.List()
	require.NoError(t, err)
	require.Len(t, all, 3)
}

func TestRecordGeneratesIDWhenAbsent(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "pairing.db"))
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Record(Attempt{DeviceID: "dev-3", Outcome: OutcomeTokenInvalid, Reason: "stale token"}))
	attempts, err := l.ListByDevice("dev-3")
	require.NoError(t, err)
	require.Len(t, attempts, 1)
	require.NotEmpty(t, attempts[0].ID)
}
