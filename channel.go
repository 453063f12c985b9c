package reactor

import (
	"sync"

	"github.com/eapache/queue"
)

// ChannelEvent is the event type of [Channel]: either one message, or the
// closed marker, emitted once after the backlog is fully drained (redelivered
// if its callback returns an error).
type ChannelEvent[T any] struct {
	Msg    T
	Closed bool
}

// NewChannel creates an unbounded inter-thread channel whose receiving end
// is an [EventSource]. Any number of goroutines may send through copies of
// the [Sender]; the loop drains the entire backlog in the cycle that
// observes the wake-up, synthesizing one event per message.
func NewChannel[T any]() (Sender[T], *Channel[T], error) {
	ping, wake, err := MakePing()
	if err != nil {
		return Sender[T]{}, nil, err
	}
	inner := &channelInner[T]{
		buf:  queue.New(),
		ping: ping,
	}
	return Sender[T]{inner}, &Channel[T]{inner: inner, wake: wake}, nil
}

// Sender is the sending half of a channel pair: cheaply copyable and safe
// for concurrent use from any goroutine.
type Sender[T any] struct {
	inner *channelInner[T]
}

// Send queues msg and wakes the receiving loop. Send never blocks on the
// loop; it fails with [ErrChannelClosed] once the channel is closed.
func (s Sender[T]) Send(msg T) error {
	inner := s.inner
	inner.mu.Lock()
	if inner.closed {
		inner.mu.Unlock()
		return ErrChannelClosed
	}
	inner.buf.Add(msg)
	inner.mu.Unlock()
	return inner.ping.Ping()
}

// Close marks the channel closed and wakes the loop so it can deliver any
// remaining backlog followed by the closed event. Close is idempotent.
func (s Sender[T]) Close() error {
	inner := s.inner
	inner.mu.Lock()
	if inner.closed {
		inner.mu.Unlock()
		return nil
	}
	inner.closed = true
	inner.mu.Unlock()
	return inner.ping.Ping()
}

// Channel is the receiving half: an [EventSource] delivering the messages
// sent through the paired [Sender] on the loop goroutine.
type Channel[T any] struct {
	inner *channelInner[T]
	wake  *PingSource
}

type channelInner[T any] struct {
	mu              sync.Mutex
	buf             *queue.Queue
	closed          bool
	closedDelivered bool
	ping            Ping
}

// Register implements [EventSource].
func (c *Channel[T]) Register(poll *Poll, token Token) error {
	return c.wake.Register(poll, token)
}

// Reregister implements [EventSource].
func (c *Channel[T]) Reregister(poll *Poll, token Token) error {
	return c.wake.Reregister(poll, token)
}

// Deregister implements [EventSource].
func (c *Channel[T]) Deregister(poll *Poll) error {
	return c.wake.Deregister(poll)
}

// ProcessEvents implements [EventSource]. The lock is never held while a
// callback runs, so callbacks may send back into the channel freely; a send
// landing during the drain is delivered in the same cycle. On a callback
// error the undelivered remainder stays queued and the wake descriptor is
// re-armed (it was already drained), so the remainder reaches the next cycle.
func (c *Channel[T]) ProcessEvents(readiness Readiness, emit func(ChannelEvent[T]) error) error {
	return c.wake.ProcessEvents(readiness, func(PingEvent) error {
		inner := c.inner
		for {
			inner.mu.Lock()
			if inner.buf.Length() == 0 {
				emitClosed := inner.closed && !inner.closedDelivered
				if emitClosed {
					inner.closedDelivered = true
				}
				inner.mu.Unlock()
				if emitClosed {
					if err := emit(ChannelEvent[T]{Closed: true}); err != nil {
						inner.mu.Lock()
						inner.closedDelivered = false
						inner.mu.Unlock()
						_ = inner.ping.Ping()
						return err
					}
				}
				return nil
			}
			msg := inner.buf.Remove().(T)
			inner.mu.Unlock()

			if err := emit(ChannelEvent[T]{Msg: msg}); err != nil {
				_ = inner.ping.Ping()
				return err
			}
		}
	})
}

// CloseWake releases the channel's wake descriptor. Call after the source
// has been removed from the loop.
func (c *Channel[T]) CloseWake() error {
	return c.wake.Close()
}
