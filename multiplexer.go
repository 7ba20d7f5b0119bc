package zerorpc

import (
	"sync"
	"time"

	"github.com/0rpc/zerorpc-go/log"
)

// ChannelMultiplexer demultiplexes concurrent in-flight calls over a
// single Events transport: a dispatcher goroutine routes every
// incoming event either to the mailbox of the live Channel named by
// its response_to header, or — if it opens a new conversation — to a
// one-slot broadcast queue that the server's acceptor loop drains.
type ChannelMultiplexer struct {
	ctx       *Context
	transport *EventsTransport

	mu             sync.Mutex
	activeChannels map[string]*Channel

	ignoreBroadcast bool
	broadcast       chan *Event

	dispatcherOnce sync.Once
	closed         chan struct{}
	closeOnce      sync.Once
}

// NewChannelMultiplexer wraps transport. Whenever the transport
// supports receiving, a dispatcher goroutine is started immediately
// to demultiplex replies by response_to. When ignoreBroadcast is false
// (listening mode) events opening a new conversation go to the
// broadcast queue; otherwise they are logged and dropped, so no new
// server-side channels are ever accepted.
func NewChannelMultiplexer(ctx *Context, transport *EventsTransport, ignoreBroadcast bool) *ChannelMultiplexer {
	m := &ChannelMultiplexer{
		ctx:             ctx,
		transport:       transport,
		activeChannels:  make(map[string]*Channel),
		ignoreBroadcast: ignoreBroadcast,
		closed:          make(chan struct{}),
	}
	if transport.RecvIsSupported() && !ignoreBroadcast {
		m.broadcast = make(chan *Event, 1)
	}
	m.ensureDispatcher()
	return m
}

func (m *ChannelMultiplexer) ensureDispatcher() {
	if !m.transport.RecvIsSupported() {
		return
	}
	m.dispatcherOnce.Do(func() {
		go m.dispatchLoop()
	})
}

func (m *ChannelMultiplexer) dispatchLoop() {
	for {
		select {
		case <-m.closed:
			return
		default:
		}

		ev, err := m.transport.Recv(0)
		if err != nil {
			if _, ok := err.(*ErrClosed); ok {
				return
			}
			log.Errorf("zerorpc.ChannelMultiplexer ignoring error on recv: %v", err)
			continue
		}

		var target chan *Event
		if channelID := ev.ResponseTo(); channelID != "" {
			m.mu.Lock()
			if ch, ok := m.activeChannels[channelID]; ok {
				target = ch.inbox
			}
			m.mu.Unlock()
		} else if m.broadcast != nil {
			target = m.broadcast
		}

		if target == nil {
			log.Warningf("zerorpc.ChannelMultiplexer: unable to route event %q", ev.Name)
			continue
		}

		select {
		case target <- ev:
		case <-m.closed:
			return
		}
	}
}

// RecvIsSupported reports whether the underlying transport can Recv.
func (m *ChannelMultiplexer) RecvIsSupported() bool { return m.transport.RecvIsSupported() }

// EmitIsSupported reports whether the underlying transport can Emit.
func (m *ChannelMultiplexer) EmitIsSupported() bool { return m.transport.EmitIsSupported() }

// NewEvent allocates a fresh Event from the underlying transport.
func (m *ChannelMultiplexer) NewEvent(name string, args []interface{}, xheader map[string]interface{}) *Event {
	return m.transport.NewEvent(name, args, xheader)
}

// EmitEvent sends ev directly through the underlying transport.
func (m *ChannelMultiplexer) EmitEvent(ev *Event, timeout time.Duration) error {
	return m.transport.EmitEvent(ev, timeout)
}

// Recv pulls the next event not claimed by any live channel: the
// broadcast queue in listening mode, or a direct transport recv
// otherwise (a client multiplexer with no broadcast queue).
func (m *ChannelMultiplexer) Recv(timeout time.Duration) (*Event, error) {
	if m.broadcast == nil {
		return m.transport.Recv(timeout)
	}
	select {
	case ev, ok := <-m.broadcast:
		if !ok {
			return nil, &ErrClosed{What: "multiplexer"}
		}
		return ev, nil
	case <-m.closed:
		return nil, &ErrClosed{What: "multiplexer"}
	case <-timeoutChan(timeout):
		return nil, &TimeoutExpired{Timeout: timeout.Seconds(), When: "waiting on multiplexer broadcast queue"}
	}
}

// Channel creates a new logical conversation over this multiplexer.
// When fromEvent is non-nil (server side), the new channel adopts its
// message_id as the channel id, captures its identity frames, and the
// event itself is delivered first through the channel's mailbox.
func (m *ChannelMultiplexer) Channel(fromEvent *Event) *Channel {
	m.ensureDispatcher()
	return newChannel(m, fromEvent)
}

// ActiveChannelCount returns the number of channels currently
// registered in this multiplexer, for tests and diagnostics.
func (m *ChannelMultiplexer) ActiveChannelCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.activeChannels)
}

// Close stops the dispatcher goroutine and fails any pending channel
// recv with a closed error.
func (m *ChannelMultiplexer) Close() error {
	m.closeOnce.Do(func() {
		close(m.closed)
	})
	return nil
}
