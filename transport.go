package zerorpc

import (
	"time"

	zmq "github.com/pebbe/zmq4"
)

// directionSupport records which directions a ZeroMQ socket pattern
// supports for the events transport.
type directionSupport struct {
	recv bool
	emit bool
}

var socketDirections = map[zmq.Type]directionSupport{
	zmq.REQ:    {recv: true, emit: true},
	zmq.REP:    {recv: true, emit: true},
	zmq.DEALER: {recv: true, emit: true},
	zmq.ROUTER: {recv: true, emit: true},
	zmq.PUSH:   {recv: false, emit: true},
	zmq.PULL:   {recv: true, emit: false},
	zmq.PUB:    {recv: false, emit: true},
	zmq.SUB:    {recv: true, emit: false},
}

// hasEnvelope reports whether the socket pattern carries ZeroMQ
// identity/delimiter framing that the transport must strip/add itself.
func hasEnvelope(t zmq.Type) bool {
	return t == zmq.ROUTER || t == zmq.DEALER
}

// EventsTransport binds one ZeroMQ socket pattern and sends/receives
// multipart frames carrying a single Event, resolving endpoints
// through the Context's middleware chain and carrying peer identity
// for ROUTER sockets.
type EventsTransport struct {
	ctx        *Context
	serializer Serializer
	sock       *socket
	socketType zmq.Type
}

// NewEventsTransport wraps an already-created ZeroMQ socket of the
// given type. The caller owns zctx and is responsible for terminating
// it; EventsTransport only owns the one socket.
func NewEventsTransport(ctx *Context, serializer Serializer, zctx *zmq.Context, socketType zmq.Type) (*EventsTransport, error) {
	if serializer == nil {
		serializer = DefaultSerializer
	}
	zsock, err := zctx.NewSocket(socketType)
	if err != nil {
		return nil, err
	}
	if err := zsock.SetLinger(0); err != nil {
		zsock.Close()
		return nil, err
	}
	return &EventsTransport{
		ctx:        ctx,
		serializer: serializer,
		sock:       newSocket(zsock),
		socketType: socketType,
	}, nil
}

// RecvIsSupported reports whether this socket pattern supports Recv.
func (t *EventsTransport) RecvIsSupported() bool {
	return socketDirections[t.socketType].recv
}

// EmitIsSupported reports whether this socket pattern supports Emit.
func (t *EventsTransport) EmitIsSupported() bool {
	return socketDirections[t.socketType].emit
}

// Bind resolves endpoint through the middleware chain and binds the
// underlying socket to it.
func (t *EventsTransport) Bind(endpoint string) error {
	return t.sock.zsock.Bind(t.ctx.resolveEndpoint(endpoint))
}

// Connect resolves endpoint through the middleware chain and connects
// the underlying socket to it.
func (t *EventsTransport) Connect(endpoint string) error {
	return t.sock.zsock.Connect(t.ctx.resolveEndpoint(endpoint))
}

// Close closes the underlying socket. Any operation suspended in Emit
// or Recv fails with ErrClosed.
func (t *EventsTransport) Close() error {
	return t.sock.close()
}

// NewEvent allocates a fresh Event from this transport's Context.
func (t *EventsTransport) NewEvent(name string, args []interface{}, xheader map[string]interface{}) *Event {
	return newEvent(t.ctx, name, args, xheader)
}

// EmitEvent serializes and sends ev. On DEALER/ROUTER sockets a blank
// delimiter frame is inserted (preceded by ev.Identity frames, if
// any) ahead of the payload frame.
func (t *EventsTransport) EmitEvent(ev *Event, timeout time.Duration) error {
	data, err := ev.Pack(t.serializer)
	if err != nil {
		return err
	}

	var frames [][]byte
	if hasEnvelope(t.socketType) {
		frames = append(frames, ev.Identity...)
		frames = append(frames, emptyFrame, data)
	} else {
		frames = [][]byte{data}
	}

	return t.sock.sendFrames(frames, timeout)
}

// Recv receives one multipart message and unpacks it into an Event.
// On DEALER/ROUTER sockets the identity frames preceding the blank
// delimiter are split off into Event.Identity.
func (t *EventsTransport) Recv(timeout time.Duration) (*Event, error) {
	frames, err := t.sock.recvFrames(timeout)
	if err != nil {
		return nil, err
	}

	var identity [][]byte
	var payload []byte

	if hasEnvelope(t.socketType) {
		delim := -1
		for i, f := range frames {
			if len(f) == 0 {
				delim = i
				break
			}
		}
		if delim == -1 {
			if len(frames) > 0 {
				payload = frames[len(frames)-1]
			}
		} else {
			identity = frames[:delim]
			if delim+1 < len(frames) {
				payload = frames[delim+1]
			}
		}
	} else if len(frames) > 0 {
		payload = frames[len(frames)-1]
	}

	ev, err := UnpackEvent(t.serializer, payload)
	if err != nil {
		return nil, err
	}
	ev.Identity = identity
	return ev, nil
}
