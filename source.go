package reactor

// Callback is invoked once per event synthesized by a source, together with
// a mutable view of the shared data passed to Dispatch or Run. A non-nil
// error does not abort the dispatch cycle; it is collected and returned from
// Dispatch after the cycle completes.
type Callback[E, Data any] func(event E, data *Data) error

// EventSource is the contract between a concrete event source and the loop.
// Implement it to insert custom sources via [InsertSource].
//
// Register must register the source's descriptor(s) with the poll backend
// under the given token, with whatever interest and mode the source wants.
// A source may register more than one descriptor under its token and
// aggregate their readiness into one event stream. Reregister refreshes that
// registration and Deregister withdraws it.
//
// ProcessEvents converts one readiness notification into the source-specific
// events it implies, invoking emit once per event. Zero, one, or many events
// per notification are all legal (e.g. a channel drains its whole backlog).
// Errors returned by emit are the user callback's and must be propagated
// outward, not swallowed.
type EventSource[E any] interface {
	Register(poll *Poll, token Token) error
	Reregister(poll *Poll, token Token) error
	Deregister(poll *Poll) error
	ProcessEvents(readiness Readiness, emit func(E) error) error
}

// eventDispatcher is the type-erased capability stored in the registry, one
// per inserted source. It owns the user callback and the back-reference to
// the source's event-producing logic, erased so the registry stays
// homogeneous across heterogeneous source types.
type eventDispatcher[Data any] interface {
	// ready converts a readiness into events and feeds them to the callback.
	ready(readiness Readiness, data *Data) error
	// deregister withdraws the source's descriptors from the poll backend.
	deregister(poll *Poll) error
}

type dispatcher[Data, E any] struct {
	source   EventSource[E]
	callback Callback[E, Data]
}

func (d *dispatcher[Data, E]) ready(readiness Readiness, data *Data) error {
	return d.source.ProcessEvents(readiness, func(event E) error {
		return d.callback(event, data)
	})
}

func (d *dispatcher[Data, E]) deregister(poll *Poll) error {
	return d.source.Deregister(poll)
}

// loopOps is the erased view of the engine that a Source handle retains, so
// the handle itself need not be generic over the loop's shared data type.
type loopOps interface {
	pollBackend() *Poll
	removeRegistration(token Token) error
}

// Source is the typed handle returned by [InsertSource]. It wraps the
// concrete source, the poll backend, and the registration token.
//
// Dropping the handle does not deregister the source: deregistration is
// explicit via Remove (or [LoopHandle.Remove]), deliberately separating "the
// caller no longer needs a typed view" from "the source is no longer active".
type Source[E any] struct {
	source EventSource[E]
	ops    loopOps
	token  Token
}

// Inner returns the wrapped concrete source, e.g. to reconfigure it before
// calling Reregister.
func (s *Source[E]) Inner() EventSource[E] { return s.source }

// Token returns the registration token. It remains usable with
// [LoopHandle.Remove] even after this handle is discarded.
func (s *Source[E]) Token() Token { return s.token }

// Reregister refreshes the source's registration with the poll backend.
// Necessary after changing a source's interest or mode, and after a
// [ModeOneShot] registration fired.
func (s *Source[E]) Reregister() error {
	return s.source.Reregister(s.ops.pollBackend(), s.token)
}

// Remove deregisters the source from the loop and retires its token, giving
// the concrete source back. The source receives no further events, including
// any not-yet-dispatched readiness in the current cycle.
func (s *Source[E]) Remove() (EventSource[E], error) {
	err := s.ops.removeRegistration(s.token)
	return s.source, err
}
