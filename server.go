package zerorpc

import (
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/0rpc/zerorpc-go/log"
)

const defaultHeartbeatFreq = 5 * time.Second

// ServerOptions configures a Server. The zero value is valid and
// picks the same defaults as the reference implementation: a 5 second
// heartbeat and an unbounded task pool.
type ServerOptions struct {
	// HeartbeatFreq is how often this side emits _zpc_hb on every open
	// channel. Zero means defaultHeartbeatFreq.
	HeartbeatFreq time.Duration
	// PoolSize caps the number of requests handled concurrently. Zero
	// means unbounded, one goroutine per in-flight request.
	PoolSize int
}

// Server accepts requests on one Events transport (conventionally a
// ROUTER socket), dispatches them to procedures in a Registry, and
// replies through the per-request Channel/HeartBeatOnChannel/
// BufferedChannel stack every zerorpc node is built from.
type Server struct {
	ctx       *Context
	registry  *Registry
	transport *EventsTransport
	mux       *ChannelMultiplexer
	freq      time.Duration

	sem chan struct{}
	wg  sync.WaitGroup

	stopOnce sync.Once
	stopped  chan struct{}
}

// NewServer builds a Server around transport, serving the procedures
// in registry. ctx carries the middleware chain consulted for task
// context propagation and the server-side hooks; endpoint resolution
// in Bind goes through the transport's own Context.
func NewServer(ctx *Context, registry *Registry, transport *EventsTransport, opts ServerOptions) *Server {
	if ctx == nil {
		ctx = DefaultContext
	}
	freq := opts.HeartbeatFreq
	if freq <= 0 {
		freq = defaultHeartbeatFreq
	}
	s := &Server{
		ctx:       ctx,
		registry:  registry,
		transport: transport,
		mux:       NewChannelMultiplexer(ctx, transport, false),
		freq:      freq,
		stopped:   make(chan struct{}),
	}
	if opts.PoolSize > 0 {
		s.sem = make(chan struct{}, opts.PoolSize)
	}
	return s
}

// Bind resolves endpoint through the transport's Context middleware
// chain and binds the underlying transport to it.
func (s *Server) Bind(endpoint string) error {
	return s.transport.Bind(endpoint)
}

// Run drains the multiplexer's broadcast queue, spawning one task per
// incoming request, until the server is closed. It returns nil on a
// clean shutdown (Close/Stop) and the first unexpected transport error
// otherwise.
func (s *Server) Run() error {
	for {
		ev, err := s.mux.Recv(0)
		if err != nil {
			if _, ok := err.(*ErrClosed); ok {
				s.wg.Wait()
				return nil
			}
			return err
		}
		s.spawn(ev)
	}
}

func (s *Server) spawn(initial *Event) {
	if s.sem != nil {
		s.sem <- struct{}{}
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if s.sem != nil {
			defer func() { <-s.sem }()
		}
		s.runTask(initial)
	}()
}

func (s *Server) runTask(initialEvent *Event) {
	protocolV1 := initialEvent.Version() < 2
	channel := s.mux.Channel(initialEvent)
	hb := NewHeartBeatOnChannel(channel, s.freq, protocolV1)
	buf := NewBufferedChannel(hb, defaultInputQueueSize)
	defer buf.Close()

	event, err := buf.Recv(0)
	if err != nil {
		if _, ok := err.(*LostRemote); !ok {
			log.Errorf("zerorpc.Server: recv failed before dispatch: %v", err)
		}
		return
	}

	s.ctx.hooks.loadTaskContext(event.Header)

	proc, ok := s.registry.Lookup(event.Name)
	if !ok {
		s.replyError(buf, event, protocolV1, fmt.Errorf("unknown method: %s", event.Name), nil)
		return
	}

	s.dispatch(buf, event, protocolV1, proc)
}

func (s *Server) dispatch(buf *BufferedChannel, event *Event, protocolV1 bool, proc *Procedure) {
	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			s.replyError(buf, event, protocolV1, fmt.Errorf("panic: %v", r), stack)
		}
	}()

	if err := proc.Pattern.ProcessCall(s.ctx, buf, event, proc); err != nil {
		if _, ok := err.(*LostRemote); ok {
			return
		}
		s.replyError(buf, event, protocolV1, err, nil)
	}
}

func (s *Server) replyError(channel Channeler, reqEvent *Event, protocolV1 bool, err error, stack []byte) {
	log.Errorf("zerorpc.Server: %s: %v", reqEvent.Name, err)

	name := fmt.Sprintf("%T", err)
	msg := err.Error()
	var args []interface{}
	if protocolV1 {
		args = []interface{}{fmt.Sprintf("%s: %s", name, msg)}
	} else {
		args = []interface{}{name, msg, string(stack)}
	}

	repEvent := channel.NewEvent(EventErr, args, s.ctx.hooks.getTaskContext())
	s.ctx.hooks.serverInspectException(reqEvent, repEvent, s.ctx.hooks.getTaskContext(), err)
	if emitErr := channel.EmitEvent(repEvent, 0); emitErr != nil {
		log.Warningf("zerorpc.Server: failed to emit ERR reply: %v", emitErr)
	}
}

// Stop closes the multiplexer, which unblocks Run and stops the
// acceptor loop, but lets in-flight handler tasks run to completion:
// the socket stays open so they can still emit their replies. Close
// additionally waits for those tasks and then closes the socket.
func (s *Server) Stop() {
	s.stopOnce.Do(func() {
		s.mux.Close()
		close(s.stopped)
	})
}

// Close stops the acceptor, waits for every in-flight task to finish,
// then closes the underlying socket.
func (s *Server) Close() error {
	s.Stop()
	s.wg.Wait()
	return s.transport.Close()
}
