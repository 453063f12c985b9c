//go:build linux

package reactor

import (
	"fmt"
	"os"
	"time"

	"golang.org/x/sys/unix"
)

// Initial epoll_wait buffer size; grown when a wait fills it completely.
const initialWaitEvents = 64

// Poll is the epoll-backed polling backend. It owns no callbacks, only the
// epoll descriptor and the interest sets registered on it.
//
// Poll is not safe for concurrent use; it belongs to the loop goroutine.
// Cross-thread wake-ups go through an ordinary registered eventfd (see
// [Ping]) rather than any lock on the wait path.
type Poll struct {
	epfd   int
	events []unix.EpollEvent
	batch  []PollEvent
	closed bool
}

// NewPoll creates a new polling backend. Most callers want [New], which
// builds the poll as part of an [EventLoop]; Poll is exported so custom
// [EventSource] implementations can register descriptors.
func NewPoll() (*Poll, error) {
	epfd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, os.NewSyscallError("epoll_create1", err)
	}
	return &Poll{
		epfd:   epfd,
		events: make([]unix.EpollEvent, initialWaitEvents),
	}, nil
}

// Register adds fd to the interest set under token. Rejections caused by the
// descriptor itself (already registered, invalid, unsupported) match
// [ErrRegistrationRejected] via [errors.Is]; everything else is a plain I/O
// error carrying the OS error code.
func (p *Poll) Register(fd int, token Token, interest Interest, mode Mode) error {
	if p.closed {
		return ErrPollClosed
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_ADD, fd, epollEvent(token, interest, mode))
	return registerError("epoll_ctl add", err)
}

// Reregister replaces the interest set of an already registered fd.
func (p *Poll) Reregister(fd int, token Token, interest Interest, mode Mode) error {
	if p.closed {
		return ErrPollClosed
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_MOD, fd, epollEvent(token, interest, mode))
	return registerError("epoll_ctl mod", err)
}

// Deregister removes fd from the interest set.
func (p *Poll) Deregister(fd int) error {
	if p.closed {
		return ErrPollClosed
	}
	err := unix.EpollCtl(p.epfd, unix.EPOLL_CTL_DEL, fd, nil)
	return registerError("epoll_ctl del", err)
}

// Wait blocks until at least one registered descriptor is ready, the timeout
// elapses, or a wake-up write lands on a registered eventfd. It returns the
// ready batch, which is only valid until the next Wait call. An expired
// timeout returns an empty batch and a nil error.
//
// EINTR is retried against the remaining timeout budget: spurious wake-ups
// from unrelated signal delivery are never visible to the caller.
func (p *Poll) Wait(timeout time.Duration) ([]PollEvent, error) {
	if p.closed {
		return nil, ErrPollClosed
	}

	var deadline time.Time
	if timeout >= 0 {
		deadline = time.Now().Add(timeout)
	}

	var n int
	for {
		ms := -1
		if timeout >= 0 {
			remaining := time.Until(deadline)
			if remaining < 0 {
				remaining = 0
			}
			ms = int(remaining.Milliseconds())
			// Sub-millisecond remainders round up so a short positive
			// timeout cannot degrade into a busy spin.
			if ms == 0 && remaining > 0 {
				ms = 1
			}
		}

		var err error
		n, err = unix.EpollWait(p.epfd, p.events, ms)
		if err == unix.EINTR {
			if timeout >= 0 && !time.Now().Before(deadline) {
				n = 0
			} else {
				continue
			}
		} else if err != nil {
			return nil, os.NewSyscallError("epoll_wait", err)
		}
		break
	}

	p.batch = p.batch[:0]
	for i := 0; i < n; i++ {
		ev := &p.events[i]
		p.batch = append(p.batch, PollEvent{
			Token:     tokenFromEpoll(ev),
			Readiness: epollReadiness(ev.Events),
		})
	}

	if n == len(p.events) {
		p.events = make([]unix.EpollEvent, n*2)
	}
	return p.batch, nil
}

// Close releases the epoll descriptor. Registered descriptors are not
// closed; they merely stop being polled.
func (p *Poll) Close() error {
	if p.closed {
		return nil
	}
	p.closed = true
	return unix.Close(p.epfd)
}

// epollEvent packs token and interest/mode into the kernel event structure.
// The token's index and generation ride in the Fd and Pad fields; epoll hands
// them back verbatim on readiness.
func epollEvent(token Token, interest Interest, mode Mode) *unix.EpollEvent {
	var events uint32
	if interest&InterestRead != 0 {
		events |= unix.EPOLLIN | unix.EPOLLRDHUP
	}
	if interest&InterestWrite != 0 {
		events |= unix.EPOLLOUT
	}
	switch mode {
	case ModeEdge:
		events |= unix.EPOLLET
	case ModeOneShot:
		events |= unix.EPOLLONESHOT
	}
	return &unix.EpollEvent{
		Events: events,
		Fd:     int32(token.index),
		Pad:    int32(token.generation),
	}
}

func tokenFromEpoll(ev *unix.EpollEvent) Token {
	return Token{index: uint32(ev.Fd), generation: uint32(ev.Pad)}
}

func epollReadiness(events uint32) Readiness {
	var r Readiness
	if events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
		r |= ReadinessReadable
	}
	if events&unix.EPOLLOUT != 0 {
		r |= ReadinessWritable
	}
	if events&unix.EPOLLERR != 0 {
		r |= ReadinessError
	}
	if events&(unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
		r |= ReadinessHangup
	}
	return r
}

// registerError classifies epoll_ctl failures: descriptor-level rejections
// are distinguishable from generic I/O failures per the insertion contract.
func registerError(op string, err error) error {
	switch err {
	case nil:
		return nil
	case unix.EEXIST, unix.EBADF, unix.EINVAL, unix.ENOENT, unix.EPERM:
		return fmt.Errorf("%w: %w", ErrRegistrationRejected, os.NewSyscallError(op, err))
	default:
		return os.NewSyscallError(op, err)
	}
}
