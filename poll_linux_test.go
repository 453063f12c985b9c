package reactor

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

func newTestPoll(t *testing.T) *Poll {
	t.Helper()
	p, err := NewPoll()
	require.NoError(t, err)
	t.Cleanup(func() { _ = p.Close() })
	return p
}

func newTestPipe(t *testing.T) (int, int) {
	t.Helper()
	var fds [2]int
	require.NoError(t, unix.Pipe2(fds[:], unix.O_NONBLOCK|unix.O_CLOEXEC))
	t.Cleanup(func() {
		_ = unix.Close(fds[0])
		_ = unix.Close(fds[1])
	})
	return fds[0], fds[1]
}

func TestPollWaitTimeoutIsNotAnError(t *testing.T) {
	p := newTestPoll(t)

	start := time.Now()
	batch, err := p.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPollWaitZeroTimeoutDoesNotBlock(t *testing.T) {
	p := newTestPoll(t)

	start := time.Now()
	batch, err := p.Wait(0)
	require.NoError(t, err)
	assert.Empty(t, batch)
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestPollReadiness(t *testing.T) {
	p := newTestPoll(t)
	r, w := newTestPipe(t)

	tok := Token{index: 7, generation: 3}
	require.NoError(t, p.Register(r, tok, InterestRead, ModeLevel))

	// Nothing written yet: timeout.
	batch, err := p.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, batch)

	_, err = unix.Write(w, []byte("x"))
	require.NoError(t, err)

	batch, err = p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.Equal(t, tok, batch[0].Token, "token must round-trip through the kernel")
	assert.True(t, batch[0].Readiness.Readable())

	require.NoError(t, p.Deregister(r))
	var buf [1]byte
	_, _ = unix.Read(r, buf[:])
	batch, err = p.Wait(10 * time.Millisecond)
	require.NoError(t, err)
	assert.Empty(t, batch)
}

func TestPollWriteInterest(t *testing.T) {
	p := newTestPoll(t)
	_, w := newTestPipe(t)

	tok := Token{index: 1, generation: 1}
	require.NoError(t, p.Register(w, tok, InterestWrite, ModeLevel))

	batch, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
	assert.True(t, batch[0].Readiness.Writable())
}

func TestPollRegisterDuplicateRejected(t *testing.T) {
	p := newTestPoll(t)
	r, _ := newTestPipe(t)

	tok := Token{index: 1, generation: 1}
	require.NoError(t, p.Register(r, tok, InterestRead, ModeLevel))
	err := p.Register(r, tok, InterestRead, ModeLevel)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationRejected)
}

func TestPollRegisterInvalidFdRejected(t *testing.T) {
	p := newTestPoll(t)

	err := p.Register(-1, Token{index: 1, generation: 1}, InterestRead, ModeLevel)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationRejected)
}

func TestPollDeregisterUnknownFdRejected(t *testing.T) {
	p := newTestPoll(t)
	r, _ := newTestPipe(t)

	err := p.Deregister(r)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRegistrationRejected)
}

func TestPollOneShotDisarms(t *testing.T) {
	p := newTestPoll(t)
	r, w := newTestPipe(t)

	tok := Token{index: 2, generation: 1}
	require.NoError(t, p.Register(r, tok, InterestRead, ModeOneShot))

	_, err := unix.Write(w, []byte("x"))
	require.NoError(t, err)

	batch, err := p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)

	// Still readable, but the registration is disarmed until reregistered.
	batch, err = p.Wait(20 * time.Millisecond)
	require.NoError(t, err)
	require.Empty(t, batch)

	require.NoError(t, p.Reregister(r, tok, InterestRead, ModeOneShot))
	batch, err = p.Wait(time.Second)
	require.NoError(t, err)
	require.Len(t, batch, 1)
}

func TestPollClosed(t *testing.T) {
	p, err := NewPoll()
	require.NoError(t, err)
	require.NoError(t, p.Close())
	require.NoError(t, p.Close(), "close is idempotent")

	_, err = p.Wait(0)
	assert.ErrorIs(t, err, ErrPollClosed)
	assert.ErrorIs(t, p.Register(0, Token{}, InterestRead, ModeLevel), ErrPollClosed)
	assert.ErrorIs(t, p.Deregister(0), ErrPollClosed)
}

func TestRegisterErrorClassification(t *testing.T) {
	assert.NoError(t, registerError("epoll_ctl add", nil))
	assert.ErrorIs(t, registerError("epoll_ctl add", unix.EEXIST), ErrRegistrationRejected)
	assert.ErrorIs(t, registerError("epoll_ctl add", unix.EBADF), ErrRegistrationRejected)
	err := registerError("epoll_ctl add", unix.ENOMEM)
	require.Error(t, err)
	assert.False(t, errors.Is(err, ErrRegistrationRejected), "resource exhaustion is a generic I/O failure")
	assert.ErrorIs(t, err, unix.ENOMEM)
}
