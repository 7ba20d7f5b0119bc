package zerorpc

import (
	"bytes"
	"fmt"
	"reflect"

	"github.com/ugorji/go/codec"
)

// Serializer is the pluggable pack/unpack contract the core protocol
// assumes. zerorpc selects a serializer implementation the way the
// original project selects between msgpack/pickle/numpy variants;
// this package ships a msgpack implementation and treats it as the
// default.
type Serializer interface {
	// Pack serializes the wire triple (header, name, args).
	Pack(header map[string]interface{}, name string, args []interface{}) ([]byte, error)
	// Unpack deserializes bytes back into the wire triple. If header
	// is not a map in the decoded payload (legacy v1 message), Unpack
	// must coerce it to an empty map rather than failing.
	Unpack(data []byte) (header map[string]interface{}, name string, args []interface{}, err error)
}

// MsgpackSerializer is the default Serializer, backed by
// github.com/ugorji/go/codec the same way kusanagi-sdk-go's
// lib/msgpack package encodes its wire payloads.
type MsgpackSerializer struct{}

// wireTuple is the on-the-wire shape of an Event: a 3-element array.
// Using an array type rather than a struct keeps the encoding as a bare
// array instead of a map, matching the "pack((header, name, args))"
// invariant from the protocol description.
type wireTuple [3]interface{}

func newMsgpackHandle() *codec.MsgpackHandle {
	h := &codec.MsgpackHandle{WriteExt: true}
	h.MapType = reflect.TypeOf(map[string]interface{}(nil))
	h.RawToString = true
	return h
}

// Pack implements Serializer.
func (MsgpackSerializer) Pack(header map[string]interface{}, name string, args []interface{}) ([]byte, error) {
	var buf bytes.Buffer
	enc := codec.NewEncoder(&buf, newMsgpackHandle())
	tuple := wireTuple{header, name, args}
	if err := enc.Encode(tuple); err != nil {
		return nil, fmt.Errorf("zerorpc: failed to pack event: %w", err)
	}
	return buf.Bytes(), nil
}

// Unpack implements Serializer.
func (MsgpackSerializer) Unpack(data []byte) (map[string]interface{}, string, []interface{}, error) {
	var tuple []interface{}
	dec := codec.NewDecoderBytes(data, newMsgpackHandle())
	if err := dec.Decode(&tuple); err != nil {
		return nil, "", nil, fmt.Errorf("zerorpc: failed to unpack event: %w", err)
	}
	if len(tuple) != 3 {
		return nil, "", nil, &ProtocolError{Reason: fmt.Sprintf("expected a 3-element tuple, got %d elements", len(tuple))}
	}

	header, ok := tuple[0].(map[string]interface{})
	if !ok {
		// Legacy v1 messages may omit the header map entirely.
		header = map[string]interface{}{}
	}

	name, ok := tuple[1].(string)
	if !ok {
		return nil, "", nil, &ProtocolError{Reason: "event name is not a string"}
	}

	var args []interface{}
	switch v := tuple[2].(type) {
	case nil:
		args = nil
	case []interface{}:
		args = v
	default:
		// STREAM events carry a bare value rather than a tuple; wrap it
		// so callers always see a slice (spec.md §9 open question,
		// resolved to accept both shapes on receive).
		args = []interface{}{v}
	}

	return header, name, args, nil
}

// DefaultSerializer is the process-wide default Serializer instance.
var DefaultSerializer Serializer = MsgpackSerializer{}
