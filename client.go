package zerorpc

import (
	"fmt"
	"time"
)

const defaultClientTimeout = 30 * time.Second

// ClientOptions configures a Client. The zero value picks the same
// defaults as the reference implementation.
type ClientOptions struct {
	// Timeout bounds how long Call waits for a reply. Zero means
	// defaultClientTimeout.
	Timeout time.Duration
	// HeartbeatFreq is how often this side emits _zpc_hb. Zero means
	// defaultHeartbeatFreq.
	HeartbeatFreq time.Duration
	// PassiveHeartbeat, when true, makes this side only start sending
	// heartbeats once it has observed one from the peer.
	PassiveHeartbeat bool
}

// Client issues requests over one Events transport (conventionally a
// DEALER socket) and interprets the reply according to whichever
// Pattern recognizes it (ReqRep for a plain call, ReqStream for a
// streamed one).
type Client struct {
	ctx       *Context
	transport *EventsTransport
	mux       *ChannelMultiplexer
	timeout   time.Duration
	freq      time.Duration
	passive   bool
}

// NewClient builds a Client around transport.
func NewClient(ctx *Context, transport *EventsTransport, opts ClientOptions) *Client {
	if ctx == nil {
		ctx = DefaultContext
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}
	freq := opts.HeartbeatFreq
	if freq <= 0 {
		freq = defaultHeartbeatFreq
	}
	return &Client{
		ctx:       ctx,
		transport: transport,
		mux:       NewChannelMultiplexer(ctx, transport, true),
		timeout:   timeout,
		freq:      freq,
		passive:   opts.PassiveHeartbeat,
	}
}

// Connect resolves endpoint through the transport's Context middleware
// chain and connects the underlying transport to it.
func (c *Client) Connect(endpoint string) error {
	return c.transport.Connect(endpoint)
}

// CallOptions overrides Client defaults for a single call.
type CallOptions struct {
	// Timeout overrides the Client's default reply timeout. Zero means
	// use the Client's default.
	Timeout time.Duration
	// Slots overrides the local input queue size used for a streamed
	// reply's flow control. Zero means the BufferedChannel default.
	Slots int
}

// Call invokes method with args and returns its single reply. If the
// method replies with a stream instead, Call collects every chunk and
// returns them as a [][]interface{} (one entry per chunk's args).
func (c *Client) Call(method string, args []interface{}, opts ...CallOptions) (interface{}, error) {
	result, err := c.call(method, args, opts...)
	if err != nil {
		return nil, err
	}
	if result.Stream != nil {
		drained, err := drainStream(result.Stream, c.effectiveTimeout(opts...))
		if err != nil {
			return nil, err
		}
		return drained, nil
	}
	return result.Value, nil
}

// CallStream invokes method with args and returns its reply as a
// stream of chunks. If the method replies with a single OK event, its
// value is delivered as a one-chunk stream; an ERR reply is returned
// as the error.
func (c *Client) CallStream(method string, args []interface{}, opts ...CallOptions) (<-chan StreamItem, error) {
	result, err := c.call(method, args, opts...)
	if err != nil {
		return nil, err
	}
	if result.Stream == nil {
		ch := make(chan StreamItem, 1)
		ch <- StreamItem{Args: []interface{}{result.Value}}
		close(ch)
		return ch, nil
	}
	return result.Stream, nil
}

func (c *Client) effectiveTimeout(opts ...CallOptions) time.Duration {
	if len(opts) > 0 && opts[0].Timeout > 0 {
		return opts[0].Timeout
	}
	return c.timeout
}

func (c *Client) call(method string, args []interface{}, opts ...CallOptions) (*CallResult, error) {
	timeout := c.effectiveTimeout(opts...)
	slots := defaultInputQueueSize
	if len(opts) > 0 && opts[0].Slots > 0 {
		slots = opts[0].Slots
	}

	channel := c.mux.Channel(nil)
	hb := NewHeartBeatOnChannel(channel, c.freq, c.passive)
	buf := NewBufferedChannel(hb, slots)

	xheader := c.ctx.hooks.getTaskContext()
	reqEvent := buf.NewEvent(method, args, xheader)
	c.ctx.hooks.clientBeforeRequest(reqEvent)

	if err := buf.EmitEvent(reqEvent, timeout); err != nil {
		buf.Close()
		return nil, err
	}

	return c.processResponse(reqEvent, buf, timeout)
}

func (c *Client) processResponse(reqEvent *Event, buf *BufferedChannel, timeout time.Duration) (*CallResult, error) {
	repEvent, err := buf.Recv(timeout)
	if err != nil {
		buf.Close()
		c.ctx.hooks.clientAfterRequest(reqEvent, nil, err)
		return nil, err
	}

	patterns := c.ctx.hooks.clientPatternsList(DefaultPatterns)
	var pattern Pattern
	for _, p := range patterns {
		if p.AcceptAnswer(repEvent) {
			pattern = p
			break
		}
	}
	if pattern == nil {
		buf.Close()
		err := fmt.Errorf("zerorpc: unable to find a pattern for reply to %s", reqEvent.Name)
		c.ctx.hooks.clientAfterRequest(reqEvent, repEvent, err)
		return nil, err
	}

	return pattern.ProcessAnswer(c.ctx, buf, reqEvent, repEvent, c.ctx.hooks.handleRemoteError)
}

// AsyncHandle is a pending Call result delivered on Done once the
// reply arrives (or the call fails), mirroring the AsyncResult the
// reference implementation returns for async=True calls.
type AsyncHandle struct {
	Done <-chan struct{}
	result interface{}
	err    error
}

// Result blocks until the call finishes and returns its outcome. Safe
// to call more than once.
func (h *AsyncHandle) Result() (interface{}, error) {
	<-h.Done
	return h.result, h.err
}

// CallAsync starts method(args...) without blocking the caller; the
// returned AsyncHandle resolves once the reply (or a stream's final
// event) has been processed.
func (c *Client) CallAsync(method string, args []interface{}, opts ...CallOptions) *AsyncHandle {
	done := make(chan struct{})
	h := &AsyncHandle{Done: done}
	go func() {
		defer close(done)
		h.result, h.err = c.Call(method, args, opts...)
	}()
	return h
}

// Close closes the underlying multiplexer and transport.
func (c *Client) Close() error {
	c.mux.Close()
	return c.transport.Close()
}
