package reactor

import (
	"os"
	"os/signal"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func TestSignalsDeliversOnLoop(t *testing.T) {
	loop := newTestLoop(t)

	src, err := NewSignals(unix.SIGUSR1)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	var got []os.Signal
	_, err = InsertSource(loop.Handle(), src, func(sig os.Signal, _ *testState) error {
		got = append(got, sig)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))

	var state testState
	deadline := time.Now().Add(2 * time.Second)
	for len(got) == 0 && time.Now().Before(deadline) {
		require.NoError(t, loop.Dispatch(100*time.Millisecond, &state))
	}
	require.Len(t, got, 1)
	assert.Equal(t, unix.SIGUSR1, got[0])
}

func TestSignalsBatchedDelivery(t *testing.T) {
	loop := newTestLoop(t)

	src, err := NewSignals(unix.SIGUSR1, unix.SIGUSR2)
	require.NoError(t, err)
	t.Cleanup(func() { _ = src.Close() })

	var got []os.Signal
	_, err = InsertSource(loop.Handle(), src, func(sig os.Signal, _ *testState) error {
		got = append(got, sig)
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))
	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR2))

	var state testState
	deadline := time.Now().Add(2 * time.Second)
	for len(got) < 2 && time.Now().Before(deadline) {
		require.NoError(t, loop.Dispatch(100*time.Millisecond, &state))
	}
	assert.ElementsMatch(t, []os.Signal{unix.SIGUSR1, unix.SIGUSR2}, got)
}

func TestSignalsCloseStopsForwarding(t *testing.T) {
	loop := newTestLoop(t)

	// Keep a handler installed so the signal raised after Close does not
	// revert to its default disposition and kill the process.
	guard := make(chan os.Signal, 1)
	signal.Notify(guard, unix.SIGUSR1)
	t.Cleanup(func() { signal.Stop(guard) })

	src, err := NewSignals(unix.SIGUSR1)
	require.NoError(t, err)

	calls := 0
	_, err = InsertSource(loop.Handle(), src, func(os.Signal, *testState) error {
		calls++
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, src.Close())
	assert.NoError(t, src.Close()) // idempotent

	// Signals raised after Close must not reach the loop.
	require.NoError(t, unix.Kill(unix.Getpid(), unix.SIGUSR1))

	var state testState
	require.NoError(t, loop.Dispatch(50*time.Millisecond, &state))
	assert.Zero(t, calls)
}
