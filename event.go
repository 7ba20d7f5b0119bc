package zerorpc

// Reserved event names (spec.md §6).
const (
	EventHeartbeat  = "_zpc_hb"
	EventCredit     = "_zpc_more"
	EventOK         = "OK"
	EventErr        = "ERR"
	EventStream     = "STREAM"
	EventStreamDone = "STREAM_DONE"
	EventWrapped    = "w"
)

// Header keys (spec.md §6).
const (
	HeaderMessageID  = "message_id"
	HeaderVersion    = "v"
	HeaderResponseTo = "response_to"
)

// Event is the atomic unit on the wire: a header map, a name, and an
// ordered sequence of argument values. The channel layers adjust an
// event in place as it passes through them (response_to stamping,
// identity, heartbeat relabeling).
type Event struct {
	Header map[string]interface{}
	Name   string
	Args   []interface{}

	// Identity carries the ROUTER/DEALER identity frames prepended by
	// ZeroMQ. It travels out-of-band of the serialized event body and
	// is never part of Pack's output.
	Identity [][]byte
}

// newEvent builds an Event with a fresh message id and the current
// protocol version, merging any extra header entries supplied by the
// caller (typically the middleware task-context).
func newEvent(ctx *Context, name string, args []interface{}, xheader map[string]interface{}) *Event {
	header := map[string]interface{}{
		HeaderMessageID: ctx.NewMessageID(),
		HeaderVersion:   ProtocolVersion,
	}
	for k, v := range xheader {
		header[k] = v
	}
	return &Event{Header: header, Name: name, Args: args}
}

// MessageID returns the event's message_id header, or "" if absent.
func (e *Event) MessageID() string {
	if v, ok := e.Header[HeaderMessageID]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ResponseTo returns the event's response_to header, or "" if absent.
func (e *Event) ResponseTo() string {
	if v, ok := e.Header[HeaderResponseTo]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// Version returns the event's declared protocol version, defaulting
// to 1 when absent (legacy peers that predate the "v" header).
func (e *Event) Version() int {
	if v, ok := e.Header[HeaderVersion]; ok {
		switch n := v.(type) {
		case int:
			return n
		case int64:
			return int(n)
		case uint64:
			return int(n)
		case float64:
			return int(n)
		}
	}
	return 1
}

// Pack serializes the event as pack((header, name, args)) using the
// given serializer.
func (e *Event) Pack(s Serializer) ([]byte, error) {
	return s.Pack(e.Header, e.Name, e.Args)
}

// UnpackEvent deserializes bytes into an Event using the given
// serializer. The resulting Event has a nil Identity; callers on
// ROUTER/DEALER sockets must set it separately from the frames
// stripped off by the transport.
func UnpackEvent(s Serializer, data []byte) (*Event, error) {
	header, name, args, err := s.Unpack(data)
	if err != nil {
		return nil, err
	}
	return &Event{Header: header, Name: name, Args: args}, nil
}

// WrapEvent packs inner as the sole argument of an outer "w" event,
// used by middleware that needs to nest one event inside another
// without the core transport knowing about it.
func WrapEvent(s Serializer, ctx *Context, inner *Event) (*Event, error) {
	data, err := inner.Pack(s)
	if err != nil {
		return nil, err
	}
	return newEvent(ctx, EventWrapped, []interface{}{data}, nil), nil
}

// UnwrapEvent extracts the inner Event packed by WrapEvent.
func UnwrapEvent(s Serializer, outer *Event) (*Event, error) {
	if outer.Name != EventWrapped {
		return nil, &ProtocolError{Reason: "event is not a wrapped event"}
	}
	if len(outer.Args) != 1 {
		return nil, &ProtocolError{Reason: "wrapped event must carry exactly one argument"}
	}
	data, ok := outer.Args[0].([]byte)
	if !ok {
		if str, ok := outer.Args[0].(string); ok {
			data = []byte(str)
		} else {
			return nil, &ProtocolError{Reason: "wrapped event payload is not binary"}
		}
	}
	return UnpackEvent(s, data)
}
