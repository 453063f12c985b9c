package reactor

import (
	"sync"
	"time"

	"github.com/RussellLuo/timingwheel"
	"github.com/eapache/queue"
)

// Wheel granularity. Expiries are delivered on the first dispatch cycle at
// or after the deadline, never before.
const (
	timerTick      = time.Millisecond
	timerWheelSize = 64
)

// NewTimer creates a timer source with event type T. Timeouts are scheduled
// through a [TimerHandle] (safe from any goroutine, including loop
// callbacks) and each fires exactly once, carrying the value it was
// scheduled with. Expiry scheduling runs on a timing wheel; delivery crosses
// into the loop through the source's wake descriptor.
func NewTimer[T any]() (*Timer[T], error) {
	ping, wake, err := MakePing()
	if err != nil {
		return nil, err
	}
	inner := &timerInner[T]{
		expired: queue.New(),
		wheel:   timingwheel.NewTimingWheel(timerTick, timerWheelSize),
		ping:    ping,
	}
	inner.wheel.Start()
	return &Timer[T]{inner: inner, wake: wake}, nil
}

// Timer is an [EventSource] yielding one event per expired timeout.
type Timer[T any] struct {
	inner *timerInner[T]
	wake  *PingSource
}

type timerInner[T any] struct {
	mu      sync.Mutex
	expired *queue.Queue
	wheel   *timingwheel.TimingWheel
	ping    Ping
}

// timerEntry carries the scheduled value together with its absolute deadline,
// so delivery can confirm the deadline actually passed.
type timerEntry[T any] struct {
	data     T
	deadline time.Time
}

func (i *timerInner[T]) expire(entry timerEntry[T]) {
	i.mu.Lock()
	i.expired.Add(entry)
	i.mu.Unlock()
	_ = i.ping.Ping()
}

// Handle returns a handle for scheduling timeouts against this source.
func (t *Timer[T]) Handle() TimerHandle[T] {
	return TimerHandle[T]{t.inner}
}

// Register implements [EventSource].
func (t *Timer[T]) Register(poll *Poll, token Token) error {
	return t.wake.Register(poll, token)
}

// Reregister implements [EventSource].
func (t *Timer[T]) Reregister(poll *Poll, token Token) error {
	return t.wake.Reregister(poll, token)
}

// Deregister implements [EventSource].
func (t *Timer[T]) Deregister(poll *Poll) error {
	return t.wake.Deregister(poll)
}

// ProcessEvents implements [EventSource]: every timeout that expired since
// the last cycle is emitted, in expiry order. The wheel truncates deadlines
// to whole ticks and can run a task just short of its deadline; an entry
// whose deadline is still in the future is pushed back out for the remainder
// instead of emitted.
func (t *Timer[T]) ProcessEvents(readiness Readiness, emit func(T) error) error {
	return t.wake.ProcessEvents(readiness, func(PingEvent) error {
		inner := t.inner
		for {
			inner.mu.Lock()
			if inner.expired.Length() == 0 {
				inner.mu.Unlock()
				return nil
			}
			entry := inner.expired.Remove().(timerEntry[T])
			inner.mu.Unlock()

			if remaining := time.Until(entry.deadline); remaining > 0 {
				// Padded by a tick so truncation cannot land it early twice.
				inner.wheel.AfterFunc(remaining+timerTick, func() { inner.expire(entry) })
				continue
			}

			if err := emit(entry.data); err != nil {
				// The wake descriptor was already drained; re-arm it so the
				// undelivered remainder reaches the next cycle.
				_ = inner.ping.Ping()
				return err
			}
		}
	})
}

// Close stops the timing wheel and releases the wake descriptor. Call after
// the source has been removed from the loop; pending timeouts are dropped.
func (t *Timer[T]) Close() error {
	t.inner.wheel.Stop()
	return t.wake.Close()
}

// TimerHandle schedules timeouts against a [Timer]. Cheaply copyable and
// safe for concurrent use.
type TimerHandle[T any] struct {
	inner *timerInner[T]
}

// AddTimeout schedules data to be delivered as an event once delay has
// elapsed, never before. The returned [Timeout] can cancel it before expiry.
func (h TimerHandle[T]) AddTimeout(delay time.Duration, data T) Timeout {
	inner := h.inner
	entry := timerEntry[T]{data: data, deadline: time.Now().Add(delay)}
	wheelTimer := inner.wheel.AfterFunc(delay, func() {
		inner.expire(entry)
	})
	return Timeout{wheelTimer}
}

// Timeout identifies one scheduled timeout.
type Timeout struct {
	timer *timingwheel.Timer
}

// Cancel revokes the timeout, reporting whether it was still pending. A
// false return means the timeout already expired (its event may still be in
// flight toward the loop) or was already cancelled.
func (t Timeout) Cancel() bool {
	return t.timer.Stop()
}
