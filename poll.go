// Platform-neutral polling types.
//
// The platform-specific Poll implementation lives in poll_linux.go (epoll).
// The contract it provides:
//   - Register/Reregister/Deregister manipulate descriptor interest sets.
//   - Wait blocks for up to a timeout and returns the batch of (token,
//     readiness) pairs reported by the OS. Timeout expiry yields an empty
//     batch, not an error; interrupted waits are retried against the
//     remaining timeout budget and never surface.

package reactor

import "time"

// Forever may be passed as the timeout of [Poll.Wait], [EventLoop.Dispatch]
// or [EventLoop.Run] to block indefinitely until an event or a wake-up.
// Any negative duration behaves the same; a zero timeout polls without
// blocking.
const Forever time.Duration = -1

// Interest describes the readiness conditions a registration wants to be
// notified about. At least one of read or write should be requested.
type Interest uint32

const (
	// InterestRead requests notification when the descriptor is readable.
	InterestRead Interest = 1 << iota
	// InterestWrite requests notification when the descriptor is writable.
	InterestWrite
)

// InterestBoth requests both read and write notifications.
const InterestBoth = InterestRead | InterestWrite

// Mode selects the triggering behavior of a registration. It is fixed per
// registration unless the source is explicitly reregistered.
type Mode uint32

const (
	// ModeLevel reports readiness as long as the condition holds.
	ModeLevel Mode = iota
	// ModeEdge reports readiness only when the condition changes.
	ModeEdge
	// ModeOneShot reports readiness once, then disarms the registration
	// until it is reregistered.
	ModeOneShot
)

// Readiness describes which conditions fired for a token during one wait
// call. It is transient: values are only meaningful within the dispatch
// cycle that produced them.
type Readiness uint32

const (
	// ReadinessReadable indicates the descriptor is ready for reading.
	ReadinessReadable Readiness = 1 << iota
	// ReadinessWritable indicates the descriptor is ready for writing.
	ReadinessWritable
	// ReadinessError indicates an error condition on the descriptor.
	ReadinessError
	// ReadinessHangup indicates the peer closed its end.
	ReadinessHangup
)

// Readable reports whether the readable condition fired.
func (r Readiness) Readable() bool { return r&ReadinessReadable != 0 }

// Writable reports whether the writable condition fired.
func (r Readiness) Writable() bool { return r&ReadinessWritable != 0 }

// Error reports whether an error condition fired.
func (r Readiness) Error() bool { return r&ReadinessError != 0 }

// Hangup reports whether a hangup condition fired.
func (r Readiness) Hangup() bool { return r&ReadinessHangup != 0 }

// PollEvent is one (token, readiness) pair returned by [Poll.Wait].
type PollEvent struct {
	Token     Token
	Readiness Readiness
}
