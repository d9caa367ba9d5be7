package arbiter

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type fakeClock struct{ t time.Time }

func (f *fakeClock) Now() time.Time { return f.t }
func (f *fakeClock) advance(d time.Duration) { f.t = f.t.Add(d) }

func newTestArbiter() (*Arbiter, *fakeClock) {
	clock := &fakeClock{t: time.Unix(1000, 0)}
	a := New(200*time.Millisecond, []string{"clipshare-tmp"}).WithClock(clock)
	return a, clock
}

func TestObserveLocalSendsNewContent(t *testing.T) {
	a, _ := newTestArbiter()
	d := a.ObserveLocal(KindText, "fp-1", "hello")
	require.True(t, d.Send)
}

func TestObserveLocalSkipsDuplicate(t *testing.T) {
	a, _ := newTestArbiter()
	require.True(t, a.ObserveLocal(KindText, "fp-1", "hello").Send)
	d := a.ObserveLocal(KindText, "fp-1", "hello")
	require.False(t, d.Send)
	require.Equal(t, SkipDuplicate, d.SkipReason)
}

func TestObserveLocalSkipsSuppressedAfterApply(t *testing.T) {
	a, clock := newTestArbiter()
	applied := a.ApplyRemote("remote-fp", func() error { return nil })
	require.True(t, applied.Applied)

	d := a.ObserveLocal(KindText, "something-else", "something-else")
	require.False(t, d.Send)
	require.Equal(t, SkipSuppressed, d.SkipReason)

	clock.advance(250 * time.Millisecond)
	d = a.ObserveLocal(KindText, "something-else", "something-else")
	require.True(t, d.Send, "suppression window should have elapsed")
}

func TestObserveLocalSkipsEchoOfRecentRemote(t *testing.T) {
	a, clock := newTestArbiter()
	a.ApplyRemote("shared-fp", func() error { return nil })
	clock.advance(205 * time.Millisecond) // past suppress_until (update_delay) but inside 2*update_delay
	// A different local change replaces last_local_fingerprint, so the
	// remote fingerprint below is caught by the echo rule, not the
	// duplicate rule.
	require.True(t, a.ObserveLocal(KindText, "other-fp", "other").Send)

	d := a.ObserveLocal(KindText, "shared-fp", "payload")
	require.False(t, d.Send)
	require.Equal(t, SkipEcho, d.SkipReason)
}

func TestObserveLocalSkipsTempPathText(t *testing.T) {
	a, _ := newTestArbiter()
	d := a.ObserveLocal(KindText, "fp-temp", "/home/user/.clipshare/clipshare-tmp/file.bin")
	require.False(t, d.Send)
	require.Equal(t, SkipTempPath, d.SkipReason)
}

func TestApplyRemoteIgnoresOwnEcho(t *testing.T) {
	a, _ := newTestArbiter()
	require.True(t, a.ObserveLocal(KindText, "fp-1", "hello").Send)

	called := false
	outcome := a.ApplyRemote("fp-1", func() error { called = true; return nil })
	require.False(t, outcome.Applied)
	require.Equal(t, IgnoreOwnEcho, outcome.Ignored)
	require.False(t, called, "adapter must not be invoked for an own-echo")
}

func TestApplyRemoteReportsAdapterError(t *testing.T) {
	a, _ := newTestArbiter()
	outcome := a.ApplyRemote("fp-2", func() error { return errors.New("clipboard busy") })
	require.False(t, outcome.Applied)
	require.Equal(t, IgnoreApplyErr, outcome.Ignored)
}

func TestFingerprintTextIsStable(t *testing.T) {
	fp1 := Fingerprint(KindText, "same content", nil)
	fp2 := Fingerprint(KindText, "same content", nil)
	fp3 := Fingerprint(KindText, "different", nil)
	require.Equal(t, fp1, fp2)
	require.NotEqual(t, fp1, fp3)
}

func TestFingerprintFileListOrderIndependent(t *testing.T) {
	a := []FileListEntry{{Path: "/a", Size: 1, Mtime: 10}, {Path: "/b", Size: 2, Mtime: 20}}
	b := []FileListEntry{{Path: "/b", Size: 2, Mtime: 20}, {Path: "/a", Size: 1, Mtime: 10}}
	require.Equal(t, Fingerprint(KindFileList, "", a), Fingerprint(KindFileList, "", b))
}
