package reactor

import (
	"errors"
	"sync/atomic"
	"time"

	"github.com/eapache/queue"
	"github.com/joeycumines/logiface"
)

// EventLoop owns the poll backend, the registration registry, the idle
// queue, and the stop flag. One instance is typically created per goroutine
// and lives as long as the program needs dispatch; there is no global
// singleton, all state is owned by the caller holding the value.
//
// Data is the type of the shared application state threaded into every
// callback by Dispatch and Run.
type EventLoop[Data any] struct {
	inner  *loopInner[Data]
	signal LoopSignal
	wake   *PingSource
}

// loopInner is the mutable engine state shared between the loop and its
// handles. It is confined to the loop goroutine; the dispatching flag is the
// runtime-checked exclusive borrow that turns illegal overlapping dispatch
// into ErrReentrantDispatch instead of silent corruption.
type loopInner[Data any] struct {
	poll        *Poll
	registry    *registry[Data]
	idles       *queue.Queue
	logger      *logiface.Logger[logiface.Event]
	dispatching bool
	closed      bool
}

// LoopHandle is the cheaply copyable front-end used to mutate the loop's
// registrations. It is the only sanctioned way to do so, and is explicitly
// usable from inside a currently-executing callback (reentrant insertion and
// removal are first-class operations).
//
// LoopHandle is not safe for use from other goroutines; cross-thread input
// belongs in a source adapter ([Channel], [Executor]) or a [LoopSignal].
type LoopHandle[Data any] struct {
	inner *loopInner[Data]
}

// LoopSignal wakes or stops the loop from any goroutine. It is cheaply
// copyable; all copies share the same stop flag and wake descriptor. This is
// the only thread-safe primitive in the engine: a lock-free flag plus a
// write to the self-referential wake eventfd.
type LoopSignal struct {
	inner *signalInner
}

type signalInner struct {
	stop atomic.Bool
	ping Ping
}

// Stop requests the run loop to exit. The in-flight cycle always finishes
// its ready batch and idle drain first; the flag is observed at iteration
// boundaries only. A blocked wait is woken immediately so Run returns
// promptly rather than after the full timeout elapses.
func (s LoopSignal) Stop() {
	s.inner.stop.Store(true)
	_ = s.inner.ping.Ping()
}

// Wakeup forces a blocked wait to return without stopping the loop, so an
// otherwise idle loop re-checks state outside the polled descriptors.
func (s LoopSignal) Wakeup() {
	_ = s.inner.ping.Ping()
}

// New creates an event loop. The loop's wake mechanism is registered with
// the poll backend like any other source before New returns.
func New[Data any](options ...LoopOption) (*EventLoop[Data], error) {
	cfg, err := resolveLoopOptions(options)
	if err != nil {
		return nil, err
	}

	poll, err := NewPoll()
	if err != nil {
		return nil, err
	}

	inner := &loopInner[Data]{
		poll:     poll,
		registry: newRegistry[Data](),
		idles:    queue.New(),
		logger:   cfg.logger,
	}

	ping, wake, err := MakePing()
	if err != nil {
		_ = poll.Close()
		return nil, err
	}

	loop := &EventLoop[Data]{
		inner:  inner,
		signal: LoopSignal{&signalInner{ping: ping}},
		wake:   wake,
	}

	// The wake source has no user-visible events; draining the descriptor is
	// the whole job, and Run re-checks the stop flag after every cycle.
	if _, err := InsertSource(loop.Handle(), wake, func(PingEvent, *Data) error {
		return nil
	}); err != nil {
		_ = wake.Close()
		_ = poll.Close()
		return nil, err
	}

	return loop, nil
}

// Handle returns a handle for inserting and removing sources and idle
// callbacks, including from within callbacks dispatched by this loop.
func (l *EventLoop[Data]) Handle() LoopHandle[Data] {
	return LoopHandle[Data]{l.inner}
}

// Signal returns a signal object usable from any goroutine to wake or stop
// the loop.
func (l *EventLoop[Data]) Signal() LoopSignal {
	return l.signal
}

// Dispatch performs one cycle: wait on the poll backend for up to timeout
// (negative blocks forever, zero polls without blocking), invoke the
// dispatcher of every live token in the ready batch in backend order, then
// drain the idle queue once.
//
// A fatal wait failure is returned as-is; an expired timeout is not an
// error. Callback errors never abort the cycle: the batch and the idle drain
// always complete, and collected callback errors are returned joined
// afterwards, leaving fatal-versus-ignore policy to the caller.
func (l *EventLoop[Data]) Dispatch(timeout time.Duration, data *Data) error {
	return l.inner.dispatch(timeout, data)
}

// Run loops: dispatch one cycle, invoke onIteration (a per-iteration hook,
// e.g. a redraw step; may be nil), and repeat until [LoopSignal.Stop] is
// observed or Dispatch returns an error. The stop flag is cleared on entry
// and checked only at iteration boundaries: the cycle in flight when Stop is
// called always completes.
func (l *EventLoop[Data]) Run(timeout time.Duration, data *Data, onIteration func(*Data)) error {
	l.signal.inner.stop.Store(false)
	for !l.signal.inner.stop.Load() {
		if err := l.Dispatch(timeout, data); err != nil {
			return err
		}
		if onIteration != nil {
			onIteration(data)
		}
	}
	return nil
}

// Close deregisters every live source from the poll backend, retires their
// tokens, and releases the wake and poll descriptors. Sources' own
// descriptors are not closed. Close is idempotent; operations on a closed
// loop fail with [ErrLoopClosed].
func (l *EventLoop[Data]) Close() error {
	inner := l.inner
	if inner.closed {
		return nil
	}
	if inner.dispatching {
		return ErrReentrantDispatch
	}
	inner.closed = true

	var errs []error
	inner.registry.forEach(func(token Token, d eventDispatcher[Data]) {
		if err := d.deregister(inner.poll); err != nil {
			errs = append(errs, err)
		}
	})
	inner.registry = newRegistry[Data]()
	inner.idles = queue.New()

	if err := l.wake.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := inner.poll.Close(); err != nil {
		errs = append(errs, err)
	}
	inner.logger.Debug().Log(`event loop closed`)
	return errors.Join(errs...)
}

// InsertSource registers source with the loop behind h and arranges for
// callback to be invoked, with the shared data, once per event the source
// synthesizes. The returned [Source] provides reregistration and removal;
// discarding it does not deregister the source.
//
// On failure the returned error wraps the registration error in an
// [InsertError]; nothing is registered and no token leaks. It is a top-level
// function rather than a method because the event type E is independent of
// the loop's Data type.
func InsertSource[Data, E any](h LoopHandle[Data], source EventSource[E], callback Callback[E, Data]) (*Source[E], error) {
	inner := h.inner
	if inner.closed {
		return nil, &InsertError{Err: ErrLoopClosed}
	}

	token := inner.registry.reserve()
	if err := source.Register(inner.poll, token); err != nil {
		inner.registry.release(token)
		inner.logger.Err().
			Stringer(`token`, token).
			Err(err).
			Log(`source registration failed`)
		return nil, &InsertError{Err: err}
	}
	inner.registry.set(token, &dispatcher[Data, E]{source: source, callback: callback})

	inner.logger.Debug().
		Stringer(`token`, token).
		Int(`registrations`, inner.registry.len()).
		Log(`inserted source`)

	return &Source[E]{source: source, ops: inner, token: token}, nil
}

// InsertIdle queues callback to run once, after all I/O dispatch of a
// subsequent cycle completes. Callbacks run in insertion order; one inserted
// while the queue is being drained runs in the next cycle, never the
// current one. On a closed loop the callback is dropped and never runs.
func (h LoopHandle[Data]) InsertIdle(callback func(data *Data)) Idle {
	entry := &idleEntry[Data]{callback: callback}
	if !h.inner.closed {
		h.inner.idles.Add(entry)
	}
	return Idle{entry}
}

// Remove deregisters the registration named by token and retires the token.
// Returns [ErrInvalidToken] if the token is not live (double removal is
// indistinguishable from a stale token, both are reported the same way).
func (h LoopHandle[Data]) Remove(token Token) error {
	return h.inner.removeRegistration(token)
}

func (l *loopInner[Data]) dispatch(timeout time.Duration, data *Data) error {
	if l.closed {
		return ErrLoopClosed
	}
	if l.dispatching {
		return ErrReentrantDispatch
	}
	l.dispatching = true
	defer func() { l.dispatching = false }()

	// The batch is complete before any dispatcher runs: a mutation made by
	// dispatcher A cannot affect whether already-batched dispatcher B runs
	// this cycle. Removed entries are skipped by the liveness lookup below.
	batch, err := l.poll.Wait(timeout)
	if err != nil {
		l.logger.Err().
			Err(err).
			Log(`poll wait failed`)
		return err
	}

	var callbackErrs []error
	for i := range batch {
		d := l.registry.get(batch[i].Token)
		if d == nil {
			continue // removed earlier in this cycle
		}
		if err := d.ready(batch[i].Readiness, data); err != nil {
			callbackErrs = append(callbackErrs, err)
			l.logger.Debug().
				Stringer(`token`, batch[i].Token).
				Err(err).
				Log(`callback returned error`)
		}
	}

	l.dispatchIdles(data)

	return errors.Join(callbackErrs...)
}

// pollBackend implements loopOps.
func (l *loopInner[Data]) pollBackend() *Poll { return l.poll }

// removeRegistration implements loopOps: retire the token first, then
// deregister, so a failure at the OS level still guarantees no further
// events reach the dispatcher.
func (l *loopInner[Data]) removeRegistration(token Token) error {
	if l.closed {
		return ErrLoopClosed
	}
	d := l.registry.remove(token)
	if d == nil {
		return ErrInvalidToken
	}
	err := d.deregister(l.poll)
	l.logger.Debug().
		Stringer(`token`, token).
		Int(`registrations`, l.registry.len()).
		Log(`removed source`)
	return err
}
