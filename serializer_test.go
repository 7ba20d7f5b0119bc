package zerorpc

import "testing"

func TestMsgpackSerializerRoundTrip(t *testing.T) {
	s := MsgpackSerializer{}

	header := map[string]interface{}{"message_id": "abc123", "v": int64(3)}
	data, err := s.Pack(header, "echo", []interface{}{"hello", int64(42)})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	gotHeader, name, args, err := s.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if name != "echo" {
		t.Fatalf("name = %q, want echo", name)
	}
	if gotHeader["message_id"] != "abc123" {
		t.Fatalf("header[message_id] = %v, want abc123", gotHeader["message_id"])
	}
	if len(args) != 2 || args[0] != "hello" {
		t.Fatalf("args = %v, want [hello 42]", args)
	}
}

func TestMsgpackSerializerLegacyHeader(t *testing.T) {
	s := MsgpackSerializer{}
	data, err := s.Pack(nil, "OK", []interface{}{"v1 result"})
	if err != nil {
		t.Fatalf("Pack failed: %v", err)
	}

	header, name, args, err := s.Unpack(data)
	if err != nil {
		t.Fatalf("Unpack failed: %v", err)
	}
	if name != "OK" || len(args) != 1 {
		t.Fatalf("unexpected decode: name=%q args=%v", name, args)
	}
	if header == nil {
		t.Fatalf("expected a non-nil empty header for a legacy v1 payload")
	}
}

func TestMsgpackSerializerRejectsGarbage(t *testing.T) {
	s := MsgpackSerializer{}
	if _, _, _, err := s.Unpack([]byte{0xff, 0xff, 0xff}); err == nil {
		t.Fatalf("expected an error unpacking garbage bytes")
	}
}
