// Package reactor provides a callback-based event loop for Go.
//
// The package is built around an [EventLoop], a small abstraction over an OS
// readiness-polling primitive (epoll on Linux). Unlike channel-fanout or
// goroutine-per-connection designs, it is based on callbacks: you register
// event sources, each associated with a callback that is invoked whenever the
// source generates events. It targets programs that spend most of their time
// waiting for events and want a cheap, single-threaded way to do so; it is
// not meant for large scale, high performance I/O.
//
// # Architecture
//
// The engine is split into a [Poll] backend (descriptor interest sets and a
// blocking wait), a token registry of type-erased dispatchers, an idle queue
// of deferred run-once callbacks, and the dispatch/run control flow that ties
// them together. Concrete sources ([PingSource], [Generic], [Channel],
// [Timer], [Signals], [Executor]) implement the [EventSource] contract and
// have no special status within the engine.
//
// # Usage
//
//	loop, err := reactor.New[MyState]()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer loop.Close()
//
//	handle := loop.Handle()
//
//	sender, channel, _ := reactor.NewChannel[string]()
//	source, err := reactor.InsertSource(handle, channel,
//	    func(ev reactor.ChannelEvent[string], state *MyState) error {
//	        // ev.Msg carries each message sent from any goroutine.
//	        return nil
//	    })
//
//	var state MyState
//	err = loop.Run(50*time.Millisecond, &state, func(state *MyState) {
//	    // per-iteration work, e.g. a redraw step
//	})
//
// # Execution Model
//
// Dispatch is strictly single-threaded and cooperative: exactly one callback
// (I/O dispatcher or idle callback) executes at a time, on the goroutine that
// called [EventLoop.Dispatch] or [EventLoop.Run]. One dispatch cycle waits on
// the poll backend, invokes the dispatcher of every token reported ready, and
// then drains the idle queue once. Idle callbacks inserted during the drain
// run no earlier than the next cycle.
//
// Registrations may be mutated from inside a running callback through a
// [LoopHandle]: a source may remove itself, remove another source, or insert
// new ones. The ready batch is snapshotted before any dispatch, so mutations
// never affect which dispatchers were selected for the current cycle; removed
// entries are skipped by a liveness check instead.
//
// # Thread Safety
//
// The only thread-safe engine surface is [LoopSignal], whose Stop and Wakeup
// methods may be called from any goroutine to interrupt a blocked wait. The
// wake mechanism is itself an ordinary pollable source (an eventfd registered
// with the same [Poll]). Source adapters that accept input from other
// goroutines ([Sender], [Scheduler], [TimerHandle]) are likewise safe; they
// deliver into the loop through the same mechanism.
//
// # Platform Support
//
// Currently only Linux is supported (epoll + eventfd).
package reactor
