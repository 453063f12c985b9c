package reactor

import "github.com/eapache/queue"

// idleEntry stores one deferred callback. The callback doubles as the
// cancellation cell: it is cleared both on cancellation and immediately
// before running, which makes the run-at-most-once invariant structural.
type idleEntry[Data any] struct {
	callback func(*Data)
}

func (e *idleEntry[Data]) cancelIdle() {
	e.callback = nil
}

type idleCanceller interface {
	cancelIdle()
}

// Idle is the handle for a deferred callback queued via
// [LoopHandle.InsertIdle]. Discarding the handle does not cancel the
// callback.
type Idle struct {
	entry idleCanceller
}

// Cancel prevents the callback from running if it has not run yet. Calling
// Cancel after the callback ran (or cancelling twice) is a no-op; no "cancel
// while running" race exists because execution is synchronous and
// single-threaded.
func (i Idle) Cancel() {
	if i.entry != nil {
		i.entry.cancelIdle()
	}
}

// dispatchIdles drains the idle queue once, in insertion order. The queue is
// swapped out first, so an idle callback inserted during the drain lands on
// the fresh queue and runs no earlier than the next cycle. This bounds idle
// starvation of I/O and keeps a self-requeueing idle callback from spinning
// within one cycle.
func (l *loopInner[Data]) dispatchIdles(data *Data) {
	if l.idles.Length() == 0 {
		return
	}
	pending := l.idles
	l.idles = queue.New()
	for pending.Length() > 0 {
		entry := pending.Remove().(*idleEntry[Data])
		if entry.callback == nil {
			continue // cancelled
		}
		callback := entry.callback
		entry.callback = nil
		callback(data)
	}
}
