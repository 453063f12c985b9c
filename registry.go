package reactor

import "fmt"

// Token is an opaque, loop-scoped identifier naming one live registration.
//
// Tokens are generation-tagged arena indices: the slot index is reused after
// removal, but the generation is bumped, so a stale token held elsewhere can
// never alias a newer registration. The zero Token never names a live
// registration (slot generations start at 1).
type Token struct {
	index      uint32
	generation uint32
}

// String implements fmt.Stringer, for diagnostics only.
func (t Token) String() string {
	return fmt.Sprintf("Token(%d.%d)", t.index, t.generation)
}

type regSlot[Data any] struct {
	dispatcher eventDispatcher[Data]
	generation uint32
	live       bool
}

// registry is the type-erased dispatcher store: a dense slot arena plus a
// free list. At most one dispatcher is live per token.
//
// It is mutated only from the loop goroutine. Reentrant mutation from inside
// a running dispatcher is supported because dispatch iterates a batch
// snapshotted by Wait, never the registry itself; removed entries are skipped
// by get's generation check.
type registry[Data any] struct {
	slots []regSlot[Data]
	free  []uint32
	count int
}

func newRegistry[Data any]() *registry[Data] {
	return &registry[Data]{}
}

// reserve mints a fresh token with a vacant slot. The caller either set()s a
// dispatcher or release()s the token if registration with the poll backend
// fails.
func (r *registry[Data]) reserve() Token {
	if n := len(r.free); n > 0 {
		index := r.free[n-1]
		r.free = r.free[:n-1]
		slot := &r.slots[index]
		slot.live = true
		return Token{index: index, generation: slot.generation}
	}
	index := uint32(len(r.slots))
	r.slots = append(r.slots, regSlot[Data]{generation: 1, live: true})
	return Token{index: index, generation: 1}
}

// set stores the dispatcher for a reserved token. Returns false if the token
// does not name the currently reserved generation.
func (r *registry[Data]) set(token Token, dispatcher eventDispatcher[Data]) bool {
	slot := r.slot(token)
	if slot == nil {
		return false
	}
	if slot.dispatcher == nil {
		r.count++
	}
	slot.dispatcher = dispatcher
	return true
}

// get returns the live dispatcher for token, or nil. A nil result after the
// token appeared in a ready batch means the registration was removed by an
// earlier callback in the same cycle, and must be skipped.
func (r *registry[Data]) get(token Token) eventDispatcher[Data] {
	if slot := r.slot(token); slot != nil {
		return slot.dispatcher
	}
	return nil
}

// remove retires the token and returns its dispatcher (nil if the token was
// not live). The generation bump makes any outstanding copy of the token
// permanently dead.
func (r *registry[Data]) remove(token Token) eventDispatcher[Data] {
	slot := r.slot(token)
	if slot == nil {
		return nil
	}
	dispatcher := slot.dispatcher
	if dispatcher != nil {
		r.count--
	}
	slot.dispatcher = nil
	slot.live = false
	slot.generation++
	r.free = append(r.free, token.index)
	return dispatcher
}

// release retires a reserved-but-unset token (failed insertion).
func (r *registry[Data]) release(token Token) {
	r.remove(token)
}

// forEach visits every live registration. The callback must not mutate the
// registry; it exists for bulk teardown, not dispatch.
func (r *registry[Data]) forEach(fn func(Token, eventDispatcher[Data])) {
	for i := range r.slots {
		slot := &r.slots[i]
		if slot.live && slot.dispatcher != nil {
			fn(Token{index: uint32(i), generation: slot.generation}, slot.dispatcher)
		}
	}
}

func (r *registry[Data]) len() int { return r.count }

func (r *registry[Data]) slot(token Token) *regSlot[Data] {
	if token.index >= uint32(len(r.slots)) {
		return nil
	}
	slot := &r.slots[token.index]
	if !slot.live || slot.generation != token.generation {
		return nil
	}
	return slot
}
