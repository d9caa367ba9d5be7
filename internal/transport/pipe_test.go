package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPipeRoundTrip(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()

	require.NoError(t, a.WriteMessage([]byte("hello")))
	got, err := b.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), got)
}

func TestPipeCloseUnblocksRead(t *testing.T) {
	a, b := Pipe()
	done := make(chan error, 1)
	go func() {
		_, err := b.ReadMessage()
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, a.Close())
	select {
	case err := <-done:
		require.ErrorIs(t, err, ErrClosed)
	case <-time.After(time.Second):
		t.Fatal("read did not unblock after close")
	}
}

func TestPipePingSucceedsWhileOpenFailsAfterClose(t *testing.T) {
	a, b := Pipe()
	require.NoError(t, a.Ping(time.Now().Add(time.Second)))
	require.NoError(t, b.Close())
	require.ErrorIs(t, a.Ping(time.Now().Add(time.Second)), ErrClosed)
}

func TestPipeReadDeadline(t *testing.T) {
	a, b := Pipe()
	defer a.Close()
	defer b.Close()
	require.NoError(t, b.SetReadDeadline(time.Now().Add(20 * time.Millisecond)))
	_, err := b.ReadMessage()
	require.ErrorIs(t, err, ErrTimeout)
}
