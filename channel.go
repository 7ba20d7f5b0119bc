package zerorpc

import (
	"sync"
	"time"
)

// Channel is one logical conversation multiplexed over a transport
// socket: one request and its replies. (multiplexer, channel_id)
// uniquely identifies a live channel; Close removes it from the
// multiplexer's registry.
type Channel struct {
	mux *ChannelMultiplexer

	mu       sync.Mutex
	id       string
	identity [][]byte

	inbox     chan *Event
	closedCh  chan struct{}
	closeOnce sync.Once
}

func newChannel(mux *ChannelMultiplexer, fromEvent *Event) *Channel {
	c := &Channel{mux: mux, inbox: make(chan *Event, 1), closedCh: make(chan struct{})}
	if fromEvent != nil {
		c.id = fromEvent.MessageID()
		c.identity = fromEvent.Identity
		mux.mu.Lock()
		mux.activeChannels[c.id] = c
		mux.mu.Unlock()
		c.inbox <- fromEvent
	}
	return c
}

// ID returns the channel's id, or "" if no event has been emitted on
// it yet (client side, before the first NewEvent call).
func (c *Channel) ID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.id
}

// RecvIsSupported reports whether the underlying multiplexer can Recv.
func (c *Channel) RecvIsSupported() bool { return c.mux.RecvIsSupported() }

// EmitIsSupported reports whether the underlying multiplexer can Emit.
func (c *Channel) EmitIsSupported() bool { return c.mux.EmitIsSupported() }

// NewEvent allocates an event for this channel. The first event
// emitted from the client side takes its id from the event's
// message_id and registers the channel in the multiplexer; every
// subsequent event is stamped with response_to = channel id. The
// channel's peer identity (if any) is propagated onto the event.
func (c *Channel) NewEvent(name string, args []interface{}, xheader map[string]interface{}) *Event {
	ev := c.mux.NewEvent(name, args, xheader)

	c.mu.Lock()
	if c.id == "" {
		c.id = ev.MessageID()
		c.mux.mu.Lock()
		c.mux.activeChannels[c.id] = c
		c.mux.mu.Unlock()
	} else {
		ev.Header[HeaderResponseTo] = c.id
	}
	c.mu.Unlock()

	ev.Identity = c.identity
	return ev
}

// EmitEvent sends ev through the underlying multiplexer/transport.
func (c *Channel) EmitEvent(ev *Event, timeout time.Duration) error {
	return c.mux.EmitEvent(ev, timeout)
}

// Emit is shorthand for NewEvent followed by EmitEvent.
func (c *Channel) Emit(name string, args []interface{}, timeout time.Duration) error {
	return c.EmitEvent(c.NewEvent(name, args, nil), timeout)
}

// Recv blocks on the channel's mailbox until an event arrives, the
// timeout elapses, this channel is closed, or its owning multiplexer
// is closed (spec.md §4.4: "Closing the multiplexer cancels the
// dispatcher and fails any pending channel recv with a closed error").
func (c *Channel) Recv(timeout time.Duration) (*Event, error) {
	select {
	case ev, ok := <-c.inbox:
		if !ok {
			return nil, &ErrClosed{What: "channel"}
		}
		return ev, nil
	case <-c.closedCh:
		return nil, &ErrClosed{What: "channel"}
	case <-c.mux.closed:
		return nil, &ErrClosed{What: "multiplexer"}
	case <-timeoutChan(timeout):
		return nil, &TimeoutExpired{Timeout: timeout.Seconds(), When: "receiving on channel"}
	}
}

// Close removes the channel from its multiplexer's active-channel
// table and wakes up any goroutine blocked in Recv. Safe to call more
// than once.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		close(c.closedCh)
		c.mu.Lock()
		id := c.id
		c.mu.Unlock()
		if id != "" {
			c.mux.mu.Lock()
			delete(c.mux.activeChannels, id)
			c.mux.mu.Unlock()
		}
	})
	return nil
}
