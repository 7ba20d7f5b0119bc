package zerorpc

import (
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/0rpc/zerorpc-go/log"
)

// Pusher is a fire-and-forget emitter: no reply is ever expected, so
// it carries neither a heartbeat nor a channel multiplexer, just a
// bare Events transport. The same type serves PUSH (point-to-point,
// load-balanced) and PUB (broadcast) sockets — EmitIsSupported is all
// that's required of socketType.
type Pusher struct {
	ctx       *Context
	transport *EventsTransport
}

// NewPusher wraps an already-created PUSH or PUB transport.
func NewPusher(ctx *Context, transport *EventsTransport) (*Pusher, error) {
	if ctx == nil {
		ctx = DefaultContext
	}
	if !transport.EmitIsSupported() {
		return nil, fmt.Errorf("zerorpc: socket type does not support emit")
	}
	return &Pusher{ctx: ctx, transport: transport}, nil
}

// Connect resolves endpoint and connects the underlying transport.
func (p *Pusher) Connect(endpoint string) error { return p.transport.Connect(endpoint) }

// Bind resolves endpoint and binds the underlying transport (typical
// for a PUB socket with multiple subscribers).
func (p *Pusher) Bind(endpoint string) error { return p.transport.Bind(endpoint) }

// Push emits method(args...) with no reply expected.
func (p *Pusher) Push(method string, args []interface{}) error {
	xheader := p.ctx.hooks.getTaskContext()
	ev := p.transport.NewEvent(method, args, xheader)
	return p.transport.EmitEvent(ev, 0)
}

// Close closes the underlying transport.
func (p *Pusher) Close() error { return p.transport.Close() }

// Puller is the receiving half of Pusher: it dispatches incoming
// events to a Registry's unary procedures and never replies, matching
// PULL (load-balanced) and SUB (broadcast) sockets alike.
type Puller struct {
	ctx       *Context
	registry  *Registry
	transport *EventsTransport

	wg       sync.WaitGroup
	stopOnce sync.Once
}

// NewPuller wraps an already-created PULL or SUB transport, dispatching
// received events to registry's procedures. Return values are
// discarded; errors are logged and passed to the server exception
// inspector hooks. Nothing is ever replied.
func NewPuller(ctx *Context, registry *Registry, transport *EventsTransport) (*Puller, error) {
	if ctx == nil {
		ctx = DefaultContext
	}
	if !transport.RecvIsSupported() {
		return nil, fmt.Errorf("zerorpc: socket type does not support recv")
	}
	return &Puller{ctx: ctx, registry: registry, transport: transport}, nil
}

// Connect resolves endpoint and connects the underlying transport
// (typical for a SUB socket).
func (p *Puller) Connect(endpoint string) error { return p.transport.Connect(endpoint) }

// Bind resolves endpoint and binds the underlying transport.
func (p *Puller) Bind(endpoint string) error { return p.transport.Bind(endpoint) }

// Subscribe sets a SUB socket's topic filter. On any other socket type
// ZeroMQ rejects the option and the error is returned.
func (p *Puller) Subscribe(topic string) error {
	return p.transport.sock.zsock.SetSubscribe(topic)
}

// Run receives events forever, dispatching each to the registry.
// Returns nil once the transport is closed.
func (p *Puller) Run() error {
	for {
		ev, err := p.transport.Recv(0)
		if err != nil {
			if _, ok := err.(*ErrClosed); ok {
				return nil
			}
			return err
		}
		p.wg.Add(1)
		go p.handle(ev)
	}
}

func (p *Puller) handle(ev *Event) {
	defer p.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			log.Errorf("zerorpc.Puller: panic handling %q: %v\n%s", ev.Name, r, debug.Stack())
		}
	}()

	proc, ok := p.registry.Lookup(ev.Name)
	if !ok {
		log.Warningf("zerorpc.Puller: no such method %q", ev.Name)
		return
	}
	p.ctx.hooks.loadTaskContext(ev.Header)
	p.ctx.hooks.serverBeforeExec(ev)
	if _, err := proc.Handler(ev.Args); err != nil {
		log.Errorf("zerorpc.Puller: %q handler failed: %v", ev.Name, err)
		p.ctx.hooks.serverInspectException(ev, nil, p.ctx.hooks.getTaskContext(), err)
	}
	p.ctx.hooks.serverAfterExec(ev, nil)
}

// Close stops Run and waits for in-flight handlers to finish.
func (p *Puller) Close() error {
	var err error
	p.stopOnce.Do(func() { err = p.transport.Close() })
	p.wg.Wait()
	return err
}
