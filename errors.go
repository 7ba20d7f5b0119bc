package zerorpc

import "fmt"

// TimeoutExpired is returned when a local deadline is hit on a recv
// or a buffered emit.
type TimeoutExpired struct {
	Timeout float64
	When    string
}

func (e *TimeoutExpired) Error() string {
	if e.When != "" {
		return fmt.Sprintf("zerorpc: timeout expired after %.3fs %s", e.Timeout, e.When)
	}
	return fmt.Sprintf("zerorpc: timeout expired after %.3fs", e.Timeout)
}

// LostRemote is injected into the owning goroutine when the peer
// misses 2x the heartbeat frequency worth of heartbeats.
type LostRemote struct {
	Freq float64
}

func (e *LostRemote) Error() string {
	return fmt.Sprintf("zerorpc: lost remote after %.3fs heartbeat", e.Freq*2)
}

// RemoteError wraps a server-side exception surfaced on the client.
// Name carries the remote error's type as a plain string; the actual
// exception type never leaks across the wire.
type RemoteError struct {
	Name       string
	Message    string
	Traceback  string
	LegacyV1   bool
}

func (e *RemoteError) Error() string {
	if e.LegacyV1 {
		return fmt.Sprintf("zerorpc: remote error: %s", e.Message)
	}
	return fmt.Sprintf("zerorpc: remote error %s: %s", e.Name, e.Message)
}

// NewRemoteErrorFromArgs builds a RemoteError from an ERR event's
// args, handling both the v1 (repr string only) and v2+ (name,
// message, traceback) wire shapes.
func NewRemoteErrorFromArgs(args []interface{}) *RemoteError {
	if len(args) == 1 {
		return &RemoteError{Name: "RemoteError", Message: fmt.Sprint(args[0]), LegacyV1: true}
	}
	re := &RemoteError{Name: "RemoteError"}
	if len(args) > 0 {
		if s, ok := args[0].(string); ok {
			re.Name = s
		}
	}
	if len(args) > 1 {
		re.Message = fmt.Sprint(args[1])
	}
	if len(args) > 2 {
		re.Traceback = fmt.Sprint(args[2])
	}
	return re
}

// ProtocolError marks a fatal, channel-local protocol violation: bad
// unpacking, credit overflow on a buffered channel, and similar
// conditions that must not corrupt other channels on the same
// transport.
type ProtocolError struct {
	Reason string
}

func (e *ProtocolError) Error() string {
	return fmt.Sprintf("zerorpc: protocol error: %s", e.Reason)
}

// ErrClosed is returned by any operation attempted on a socket,
// transport, multiplexer or channel after it has been closed.
type ErrClosed struct {
	What string
}

func (e *ErrClosed) Error() string {
	return fmt.Sprintf("zerorpc: %s is closed", e.What)
}
