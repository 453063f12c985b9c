package reactor

import (
	"encoding/binary"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// PingEvent is the event type of [PingSource]. It carries no payload; the
// notification itself is the event.
type PingEvent struct{}

// MakePing creates a self-wake primitive: a [Ping] that can be triggered
// from any goroutine, and the [PingSource] that yields one [PingEvent] per
// dispatch cycle in which at least one ping landed (consecutive pings
// coalesce). The loop's own wake-up mechanism is exactly this source; it is
// exported so programs can compose their own cross-thread nudges.
func MakePing() (Ping, *PingSource, error) {
	readFd, writeFd, err := createWakeFd()
	if err != nil {
		return Ping{}, nil, err
	}
	inner := &pingInner{readFd: readFd, writeFd: writeFd}
	return Ping{inner}, &PingSource{inner}, nil
}

// Ping is the sending half of a ping pair. It is cheaply copyable and safe
// to use from any goroutine, including while the loop is blocked in a wait.
type Ping struct {
	inner *pingInner
}

// Ping wakes the loop the paired [PingSource] is inserted into.
func (p Ping) Ping() error {
	return p.inner.notify()
}

// PingSource is the receiving half of a ping pair: an [EventSource] over the
// wake descriptor.
type PingSource struct {
	inner *pingInner
}

// Register implements [EventSource].
func (s *PingSource) Register(poll *Poll, token Token) error {
	return poll.Register(s.inner.readFd, token, InterestRead, ModeLevel)
}

// Reregister implements [EventSource].
func (s *PingSource) Reregister(poll *Poll, token Token) error {
	return poll.Reregister(s.inner.readFd, token, InterestRead, ModeLevel)
}

// Deregister implements [EventSource].
func (s *PingSource) Deregister(poll *Poll) error {
	return poll.Deregister(s.inner.readFd)
}

// ProcessEvents implements [EventSource]: it drains the wake descriptor and
// emits a single coalesced [PingEvent].
func (s *PingSource) ProcessEvents(readiness Readiness, emit func(PingEvent) error) error {
	if !readiness.Readable() {
		return nil
	}
	s.inner.drain()
	return emit(PingEvent{})
}

// Close releases the wake descriptor. The source must already be
// deregistered; subsequent pings fail with [ErrPingClosed].
func (s *PingSource) Close() error {
	return s.inner.close()
}

type pingInner struct {
	readFd  int
	writeFd int
	closed  atomic.Bool
}

func (p *pingInner) notify() error {
	if p.closed.Load() {
		return ErrPingClosed
	}
	var buf [8]byte
	binary.NativeEndian.PutUint64(buf[:], 1)
	// EAGAIN means the eventfd counter is saturated, which already
	// guarantees a pending wake-up.
	if _, err := unix.Write(p.writeFd, buf[:]); err != nil && err != unix.EAGAIN {
		return err
	}
	return nil
}

func (p *pingInner) drain() {
	var buf [8]byte
	for {
		if _, err := unix.Read(p.readFd, buf[:]); err != nil {
			return
		}
	}
}

func (p *pingInner) close() error {
	if !p.closed.CompareAndSwap(false, true) {
		return nil
	}
	err := unix.Close(p.readFd)
	if p.writeFd != p.readFd {
		if cerr := unix.Close(p.writeFd); err == nil {
			err = cerr
		}
	}
	return err
}
