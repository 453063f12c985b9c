package reactor

// Generic wraps an arbitrary file descriptor as an [EventSource]. Its event
// type is the raw [Readiness]; interpretation (reading, accepting, ...) is
// entirely the callback's business.
//
// The descriptor is borrowed, not owned: Generic never closes it, and the
// caller must deregister before closing the descriptor to avoid stale event
// delivery through fd recycling.
type Generic struct {
	fd       int
	interest Interest
	mode     Mode
}

// NewGeneric wraps fd with the given interest and mode.
func NewGeneric(fd int, interest Interest, mode Mode) *Generic {
	return &Generic{fd: fd, interest: interest, mode: mode}
}

// Fd returns the wrapped descriptor.
func (g *Generic) Fd() int { return g.fd }

// SetInterest changes the desired interest. Takes effect on the next
// [Source.Reregister].
func (g *Generic) SetInterest(interest Interest) { g.interest = interest }

// SetMode changes the triggering mode. Takes effect on the next
// [Source.Reregister].
func (g *Generic) SetMode(mode Mode) { g.mode = mode }

// Register implements [EventSource].
func (g *Generic) Register(poll *Poll, token Token) error {
	return poll.Register(g.fd, token, g.interest, g.mode)
}

// Reregister implements [EventSource].
func (g *Generic) Reregister(poll *Poll, token Token) error {
	return poll.Reregister(g.fd, token, g.interest, g.mode)
}

// Deregister implements [EventSource].
func (g *Generic) Deregister(poll *Poll) error {
	return poll.Deregister(g.fd)
}

// ProcessEvents implements [EventSource]: one readiness notification is one
// event.
func (g *Generic) ProcessEvents(readiness Readiness, emit func(Readiness) error) error {
	return emit(readiness)
}
