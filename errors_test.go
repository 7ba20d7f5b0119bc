package zerorpc

import "testing"

func TestNewRemoteErrorFromArgsV1(t *testing.T) {
	err := NewRemoteErrorFromArgs([]interface{}{"boom: something broke"})
	if !err.LegacyV1 {
		t.Fatalf("expected LegacyV1 = true for a single-arg ERR payload")
	}
	if err.Message != "boom: something broke" {
		t.Fatalf("Message = %q", err.Message)
	}
}

func TestNewRemoteErrorFromArgsV2(t *testing.T) {
	err := NewRemoteErrorFromArgs([]interface{}{"ValueError", "bad value", "trace..."})
	if err.LegacyV1 {
		t.Fatalf("expected LegacyV1 = false for a 3-arg ERR payload")
	}
	if err.Name != "ValueError" || err.Message != "bad value" || err.Traceback != "trace..." {
		t.Fatalf("unexpected decode: %+v", err)
	}
}

func TestLostRemoteError(t *testing.T) {
	var err error = &LostRemote{Freq: 2.5}
	if err.Error() == "" {
		t.Fatalf("expected a non-empty error message")
	}
}
