package reactor

import (
	"os"
	"os/signal"
	"sync"
	"sync/atomic"

	"github.com/eapache/queue"
)

// NewSignals creates an [EventSource] delivering the given OS signals as
// events on the loop goroutine, via [os/signal.Notify]. The Go runtime
// captures the signals; a forwarding goroutine relays them into the loop
// through the source's wake descriptor.
func NewSignals(signals ...os.Signal) (*Signals, error) {
	ping, wake, err := MakePing()
	if err != nil {
		return nil, err
	}
	inner := &signalsInner{
		pending: queue.New(),
		notify:  make(chan os.Signal, 64),
		done:    make(chan struct{}),
		ping:    ping,
	}
	signal.Notify(inner.notify, signals...)
	go inner.forward()
	return &Signals{inner: inner, wake: wake}, nil
}

// Signals is an [EventSource] with event type [os.Signal].
type Signals struct {
	inner *signalsInner
	wake  *PingSource
}

type signalsInner struct {
	mu      sync.Mutex
	pending *queue.Queue
	notify  chan os.Signal
	done    chan struct{}
	ping    Ping
	closed  atomic.Bool
}

func (i *signalsInner) forward() {
	for {
		select {
		case sig := <-i.notify:
			i.mu.Lock()
			i.pending.Add(sig)
			i.mu.Unlock()
			_ = i.ping.Ping()
		case <-i.done:
			return
		}
	}
}

// Register implements [EventSource].
func (s *Signals) Register(poll *Poll, token Token) error {
	return s.wake.Register(poll, token)
}

// Reregister implements [EventSource].
func (s *Signals) Reregister(poll *Poll, token Token) error {
	return s.wake.Reregister(poll, token)
}

// Deregister implements [EventSource].
func (s *Signals) Deregister(poll *Poll) error {
	return s.wake.Deregister(poll)
}

// ProcessEvents implements [EventSource]: one event per captured signal, in
// arrival order.
func (s *Signals) ProcessEvents(readiness Readiness, emit func(os.Signal) error) error {
	return s.wake.ProcessEvents(readiness, func(PingEvent) error {
		inner := s.inner
		for {
			inner.mu.Lock()
			if inner.pending.Length() == 0 {
				inner.mu.Unlock()
				return nil
			}
			sig := inner.pending.Remove().(os.Signal)
			inner.mu.Unlock()

			if err := emit(sig); err != nil {
				// The wake descriptor was already drained; re-arm it so the
				// undelivered remainder reaches the next cycle.
				_ = inner.ping.Ping()
				return err
			}
		}
	})
}

// Close stops signal capture, the forwarding goroutine, and releases the
// wake descriptor. Call after the source has been removed from the loop.
// Close is idempotent.
func (s *Signals) Close() error {
	if !s.inner.closed.CompareAndSwap(false, true) {
		return nil
	}
	signal.Stop(s.inner.notify)
	close(s.inner.done)
	return s.wake.Close()
}
