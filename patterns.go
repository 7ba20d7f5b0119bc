package zerorpc

import "time"

// StreamItem is one chunk produced by a streaming Procedure, or the
// terminal error that ended the stream.
type StreamItem struct {
	Args []interface{}
	Err  error
}

// CallResult is what a Pattern's ProcessAnswer hands back to the
// client: exactly one of Value (ReqRep, a single reply) or Stream
// (ReqStream, zero or more chunks followed by completion) is set.
type CallResult struct {
	Value  interface{}
	Stream <-chan StreamItem
}

// Pattern is a call convention layered on top of a Channeler: how a
// request turns into one or more reply events on both the serving and
// calling side. ReqRep and ReqStream are the two built-in patterns;
// ClientPatternsListFilter middleware can add or reorder others.
type Pattern interface {
	// AcceptAnswer reports whether this pattern recognizes ev as a
	// valid first reply to a request it would have produced.
	AcceptAnswer(ev *Event) bool

	// ProcessCall runs proc against reqEvent's arguments and emits the
	// reply event(s) for this pattern onto channel.
	ProcessCall(ctx *Context, channel Channeler, reqEvent *Event, proc *Procedure) error

	// ProcessAnswer turns the first reply event into a CallResult,
	// pulling further events off channel itself for multi-event
	// patterns (ReqStream). handleRemoteError converts an ERR event
	// into a Go error.
	ProcessAnswer(ctx *Context, channel Channeler, reqEvent, repEvent *Event, handleRemoteError func(*Event) error) (*CallResult, error)
}

// DefaultPatterns is consulted, in order, by a client deciding which
// pattern produced an incoming reply. ReqStream is tried first since
// its STREAM/STREAM_DONE names never collide with ReqRep's OK/ERR.
var DefaultPatterns = []Pattern{ReqStream{}, ReqRep{}}

// ReqRep is the unary call pattern: one request, one OK or ERR reply.
type ReqRep struct{}

func (ReqRep) AcceptAnswer(ev *Event) bool {
	return ev.Name == EventOK || ev.Name == EventErr
}

func (ReqRep) ProcessCall(ctx *Context, channel Channeler, reqEvent *Event, proc *Procedure) error {
	ctx.hooks.serverBeforeExec(reqEvent)
	result, err := proc.Handler(reqEvent.Args)
	if err != nil {
		return err
	}
	repEvent := channel.NewEvent(EventOK, []interface{}{result}, ctx.hooks.getTaskContext())
	ctx.hooks.serverAfterExec(reqEvent, repEvent)
	return channel.EmitEvent(repEvent, 0)
}

func (ReqRep) ProcessAnswer(ctx *Context, channel Channeler, reqEvent, repEvent *Event, handleRemoteError func(*Event) error) (*CallResult, error) {
	if repEvent.Name == EventErr {
		err := handleRemoteError(repEvent)
		ctx.hooks.clientAfterRequest(reqEvent, repEvent, err)
		channel.Close()
		return nil, err
	}
	ctx.hooks.clientAfterRequest(reqEvent, repEvent, nil)
	channel.Close()
	var value interface{}
	if len(repEvent.Args) > 0 {
		value = repEvent.Args[0]
	}
	return &CallResult{Value: value}, nil
}

// ReqStream is the streaming call pattern: one request, zero or more
// STREAM replies, terminated by STREAM_DONE (or ERR).
type ReqStream struct{}

func (ReqStream) AcceptAnswer(ev *Event) bool {
	return ev.Name == EventStream || ev.Name == EventStreamDone
}

func (ReqStream) ProcessCall(ctx *Context, channel Channeler, reqEvent *Event, proc *Procedure) error {
	ctx.hooks.serverBeforeExec(reqEvent)
	xheader := ctx.hooks.getTaskContext()

	items, err := proc.StreamHandler(reqEvent.Args)
	if err != nil {
		return err
	}
	for item := range items {
		if item.Err != nil {
			return item.Err
		}
		if err := channel.Emit(EventStream, item.Args, 0); err != nil {
			return err
		}
	}

	doneEvent := channel.NewEvent(EventStreamDone, nil, xheader)
	ctx.hooks.serverAfterExec(reqEvent, doneEvent)
	return channel.EmitEvent(doneEvent, 0)
}

func (ReqStream) ProcessAnswer(ctx *Context, channel Channeler, reqEvent, repEvent *Event, handleRemoteError func(*Event) error) (*CallResult, error) {
	if bc, ok := channel.(*BufferedChannel); ok {
		bc.SetOnCloseIf(func(ev *Event) bool { return ev.Name == EventStreamDone })
	}

	stream := make(chan StreamItem)
	go func() {
		defer close(stream)
		ev := repEvent
		for ev.Name == EventStream {
			select {
			case stream <- StreamItem{Args: ev.Args}:
			}
			next, err := channel.Recv(0)
			if err != nil {
				stream <- StreamItem{Err: err}
				return
			}
			ev = next
		}
		if ev.Name == EventErr {
			err := handleRemoteError(ev)
			ctx.hooks.clientAfterRequest(reqEvent, ev, err)
			stream <- StreamItem{Err: err}
			return
		}
		ctx.hooks.clientAfterRequest(reqEvent, ev, nil)
		channel.Close()
	}()

	return &CallResult{Stream: stream}, nil
}

// drainStream collects every item off a ReqStream CallResult, useful
// for callers that want a slice rather than incremental delivery.
func drainStream(stream <-chan StreamItem, timeout time.Duration) ([][]interface{}, error) {
	var out [][]interface{}
	deadline := timeoutChan(timeout)
	for {
		select {
		case item, ok := <-stream:
			if !ok {
				return out, nil
			}
			if item.Err != nil {
				return out, item.Err
			}
			out = append(out, item.Args)
		case <-deadline:
			return out, &TimeoutExpired{Timeout: timeout.Seconds(), When: "draining stream"}
		}
	}
}
