package reactor

import (
	"sync"

	"github.com/eapache/queue"
)

// NewExecutor creates an executor source with result type T. Functions
// scheduled through the [Scheduler] run on their own goroutines; each result
// is delivered back as an event on the loop goroutine, so callbacks never
// need their own synchronization with the computation.
func NewExecutor[T any]() (*Executor[T], Scheduler[T], error) {
	ping, wake, err := MakePing()
	if err != nil {
		return nil, Scheduler[T]{}, err
	}
	inner := &executorInner[T]{
		results: queue.New(),
		ping:    ping,
	}
	return &Executor[T]{inner: inner, wake: wake}, Scheduler[T]{inner}, nil
}

// Executor is an [EventSource] yielding the results of scheduled functions.
type Executor[T any] struct {
	inner *executorInner[T]
	wake  *PingSource
}

type executorInner[T any] struct {
	mu      sync.Mutex
	results *queue.Queue
	closed  bool
	ping    Ping
}

// Scheduler submits work to an [Executor]. Cheaply copyable and safe for
// concurrent use from any goroutine.
type Scheduler[T any] struct {
	inner *executorInner[T]
}

// Schedule runs fn on a new goroutine and delivers its result to the loop as
// an event. Fails with [ErrExecutorClosed] once the executor is closed;
// results of functions still running at close time are discarded.
func (s Scheduler[T]) Schedule(fn func() T) error {
	inner := s.inner
	inner.mu.Lock()
	if inner.closed {
		inner.mu.Unlock()
		return ErrExecutorClosed
	}
	inner.mu.Unlock()

	go func() {
		result := fn()
		inner.mu.Lock()
		if inner.closed {
			inner.mu.Unlock()
			return
		}
		inner.results.Add(result)
		inner.mu.Unlock()
		_ = inner.ping.Ping()
	}()
	return nil
}

// Register implements [EventSource].
func (e *Executor[T]) Register(poll *Poll, token Token) error {
	return e.wake.Register(poll, token)
}

// Reregister implements [EventSource].
func (e *Executor[T]) Reregister(poll *Poll, token Token) error {
	return e.wake.Reregister(poll, token)
}

// Deregister implements [EventSource].
func (e *Executor[T]) Deregister(poll *Poll) error {
	return e.wake.Deregister(poll)
}

// ProcessEvents implements [EventSource]: one event per completed function,
// in completion order.
func (e *Executor[T]) ProcessEvents(readiness Readiness, emit func(T) error) error {
	return e.wake.ProcessEvents(readiness, func(PingEvent) error {
		inner := e.inner
		for {
			inner.mu.Lock()
			if inner.results.Length() == 0 {
				inner.mu.Unlock()
				return nil
			}
			result := inner.results.Remove().(T)
			inner.mu.Unlock()

			if err := emit(result); err != nil {
				// The wake descriptor was already drained; re-arm it so the
				// undelivered remainder reaches the next cycle.
				_ = inner.ping.Ping()
				return err
			}
		}
	})
}

// Close rejects further scheduling, discards undelivered results, and
// releases the wake descriptor. Call after the source has been removed from
// the loop.
func (e *Executor[T]) Close() error {
	e.inner.mu.Lock()
	e.inner.closed = true
	e.inner.mu.Unlock()
	return e.wake.Close()
}
