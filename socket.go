package zerorpc

import (
	"syscall"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/0rpc/zerorpc-go/log"
)

// pollInterval bounds how long a readiness wait blocks before
// re-checking whether the socket was closed out from under it. It
// also doubles as the cadence at which the EVENTS bug-guard re-polls.
const pollInterval = 100 * time.Millisecond

// socket wraps a single *zmq.Socket so that send and recv cooperate
// with Go's goroutine scheduler instead of blocking an OS thread:
// operations are attempted with DONTWAIT, and on EAGAIN the caller
// suspends (via a bounded poll loop, not an OS-level block) until the
// socket's notification FD signals readiness or the timeout elapses.
//
// Exactly one goroutine may be inside sendFrames at a time, and
// exactly one inside recvFrames at a time; the two mutexes enforce
// that independently of each other so a send in flight never blocks a
// concurrent recv and vice versa.
type socket struct {
	zsock *zmq.Socket

	sendMu chan struct{} // 1-buffered: acts as a direction-scoped lock
	recvMu chan struct{}

	closedCh chan struct{}
}

func newSocket(zsock *zmq.Socket) *socket {
	s := &socket{
		zsock:    zsock,
		sendMu:   make(chan struct{}, 1),
		recvMu:   make(chan struct{}, 1),
		closedCh: make(chan struct{}),
	}
	s.sendMu <- struct{}{}
	s.recvMu <- struct{}{}
	return s
}

func (s *socket) isClosed() bool {
	select {
	case <-s.closedCh:
		return true
	default:
		return false
	}
}

// close closes the underlying ZeroMQ socket. Any operation suspended
// in sendFrames/recvFrames observes isClosed() within one pollInterval
// and fails with ErrClosed.
func (s *socket) close() error {
	select {
	case <-s.closedCh:
		return nil
	default:
		close(s.closedCh)
	}
	return s.zsock.Close()
}

func isEAGAIN(err error) bool {
	if err == nil {
		return false
	}
	return zmq.AsErrno(err) == zmq.Errno(syscall.EAGAIN)
}

func isETERM(err error) bool {
	if err == nil {
		return false
	}
	return zmq.AsErrno(err) == zmq.ETERM
}

// pollReady waits until the socket reports the requested readiness
// state, the deadline passes (zero deadline means wait indefinitely,
// modulo periodic close checks), or the socket is closed.
//
// ZeroMQ's notification FD is edge-triggered: it is documented to
// occasionally signal readiness for a state that, by the time the
// caller re-checks, is no longer actually set (or to have coalesced
// multiple transitions into one edge). The known bug-guard is to
// re-poll rather than trust a single edge: after the wait returns,
// re-check GetEvents() directly; only report readiness once the bit
// is observed to really be set.
func pollReady(zsock *zmq.Socket, want zmq.State, deadline time.Time, closedCh <-chan struct{}) (bool, error) {
	poller := zmq.NewPoller()
	poller.Add(zsock, want)

	for {
		select {
		case <-closedCh:
			return false, nil
		default:
		}

		wait := pollInterval
		if !deadline.IsZero() {
			remaining := time.Until(deadline)
			if remaining <= 0 {
				return false, nil
			}
			if remaining < wait {
				wait = remaining
			}
		}

		polled, err := poller.Poll(wait)
		if err != nil {
			if isETERM(err) {
				return false, &ErrClosed{What: "socket"}
			}
			if zmq.AsErrno(err) == zmq.Errno(syscall.EINTR) {
				continue
			}
			return false, err
		}

		if len(polled) > 0 {
			// Bug-guard: re-check EVENTS directly; a spurious wakeup
			// with nothing actually ready must not be reported as ready.
			events, everr := zsock.GetEvents()
			if everr == nil && events&want != 0 {
				return true, nil
			}
			log.Debug("zerorpc: socket adapter polled without a confirmed EVENTS bit, retrying")
			continue
		}

		if !deadline.IsZero() && !time.Now().Before(deadline) {
			return false, nil
		}
	}
}

func deadlineFor(timeout time.Duration) time.Time {
	if timeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(timeout)
}

var emptyFrame = []byte{}

// sendFrames sends a multipart message, serializing concurrent
// senders on this socket and cooperating with the scheduler while
// waiting for the socket to become writable.
func (s *socket) sendFrames(frames [][]byte, timeout time.Duration) error {
	<-s.sendMu
	defer func() { s.sendMu <- struct{}{} }()

	deadline := deadlineFor(timeout)
	for {
		if s.isClosed() {
			return &ErrClosed{What: "socket"}
		}

		err := trySendFrames(s.zsock, frames)
		if err == nil {
			return nil
		}
		if isETERM(err) {
			return &ErrClosed{What: "socket"}
		}
		if !isEAGAIN(err) {
			return err
		}

		ready, perr := pollReady(s.zsock, zmq.POLLOUT, deadline, s.closedCh)
		if perr != nil {
			return perr
		}
		if s.isClosed() {
			return &ErrClosed{What: "socket"}
		}
		if !ready {
			return &TimeoutExpired{Timeout: timeout.Seconds(), When: "sending on socket"}
		}
	}
}

func trySendFrames(zsock *zmq.Socket, frames [][]byte) error {
	last := len(frames) - 1
	for i, f := range frames {
		flags := zmq.DONTWAIT
		if i != last {
			flags |= zmq.SNDMORE
		}
		if _, err := zsock.SendBytes(f, flags); err != nil {
			return err
		}
	}
	return nil
}

// recvFrames receives one multipart message, serializing concurrent
// receivers on this socket and cooperating with the scheduler while
// waiting for data.
func (s *socket) recvFrames(timeout time.Duration) ([][]byte, error) {
	<-s.recvMu
	defer func() { s.recvMu <- struct{}{} }()

	deadline := deadlineFor(timeout)
	for {
		if s.isClosed() {
			return nil, &ErrClosed{What: "socket"}
		}

		frames, err := s.zsock.RecvMessageBytes(zmq.DONTWAIT)
		if err == nil {
			return frames, nil
		}
		if isETERM(err) {
			return nil, &ErrClosed{What: "socket"}
		}
		if !isEAGAIN(err) {
			return nil, err
		}

		ready, perr := pollReady(s.zsock, zmq.POLLIN, deadline, s.closedCh)
		if perr != nil {
			return nil, perr
		}
		if s.isClosed() {
			return nil, &ErrClosed{What: "socket"}
		}
		if !ready {
			return nil, &TimeoutExpired{Timeout: timeout.Seconds(), When: "receiving from socket"}
		}
	}
}
