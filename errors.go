package reactor

import (
	"errors"
	"fmt"
)

// Standard errors.
var (
	// ErrLoopClosed is returned when operations are attempted on a closed loop.
	ErrLoopClosed = errors.New("reactor: event loop is closed")

	// ErrReentrantDispatch is returned when Dispatch or Run is called from
	// within a running callback. This is a contract violation, not an
	// environmental condition: the engine enforces a single-writer dispatch
	// discipline at runtime instead of corrupting its registry silently.
	ErrReentrantDispatch = errors.New("reactor: dispatch called from within a running callback")

	// ErrInvalidToken is returned when a token does not name a live
	// registration (already removed, or recycled to a newer generation).
	ErrInvalidToken = errors.New("reactor: token does not name a live registration")

	// ErrRegistrationRejected marks insertion failures caused by the
	// descriptor itself (duplicate, invalid, or unsupported), as opposed to
	// a generic I/O failure. Match with errors.Is.
	ErrRegistrationRejected = errors.New("reactor: descriptor registration rejected")

	// ErrPollClosed is returned by Poll operations after Close.
	ErrPollClosed = errors.New("reactor: poll backend is closed")

	// ErrChannelClosed is returned by Sender.Send after the channel was closed.
	ErrChannelClosed = errors.New("reactor: channel is closed")

	// ErrExecutorClosed is returned by Scheduler.Schedule after the executor
	// was closed.
	ErrExecutorClosed = errors.New("reactor: executor is closed")

	// ErrPingClosed is returned when pinging a closed ping source.
	ErrPingClosed = errors.New("reactor: ping source is closed")
)

// InsertError wraps the failure of an InsertSource call. The source was not
// inserted and no registration leaked: any descriptors registered before the
// failure have been deregistered and the minted token retired.
type InsertError struct {
	Err error
}

// Error implements the error interface.
func (e *InsertError) Error() string {
	return fmt.Sprintf("reactor: insert source: %v", e.Err)
}

// Unwrap returns the underlying registration error, enabling [errors.Is]
// checks such as errors.Is(err, ErrRegistrationRejected).
func (e *InsertError) Unwrap() error {
	return e.Err
}
