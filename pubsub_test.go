package zerorpc

import (
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"
)

func newPushPullPair(t *testing.T, endpoint string) (push, pull *EventsTransport) {
	t.Helper()
	zctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	t.Cleanup(func() { zctx.Term() })

	pull, err = NewEventsTransport(DefaultContext, nil, zctx, zmq.PULL)
	if err != nil {
		t.Fatalf("pull transport: %v", err)
	}
	if err := pull.Bind(endpoint); err != nil {
		t.Fatalf("bind: %v", err)
	}

	push, err = NewEventsTransport(DefaultContext, nil, zctx, zmq.PUSH)
	if err != nil {
		t.Fatalf("push transport: %v", err)
	}
	if err := push.Connect(endpoint); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return push, pull
}

func TestPusherPullerDispatchesWithoutReply(t *testing.T) {
	pushTransport, pullTransport := newPushPullPair(t, "inproc://zerorpc-test-pushpull")

	received := make(chan []interface{}, 1)
	registry := NewRegistry("pubsub-test")
	registry.Register("notify", "", []string{"msg"}, func(args []interface{}) (interface{}, error) {
		received <- args
		return nil, nil
	})

	puller, err := NewPuller(NewContext(), registry, pullTransport)
	if err != nil {
		t.Fatalf("NewPuller: %v", err)
	}
	go puller.Run()
	defer puller.Close()

	pusher, err := NewPusher(NewContext(), pushTransport)
	if err != nil {
		t.Fatalf("NewPusher: %v", err)
	}
	defer pusher.Close()

	if err := pusher.Push("notify", []interface{}{"hello"}); err != nil {
		t.Fatalf("Push failed: %v", err)
	}

	select {
	case args := <-received:
		if len(args) != 1 || args[0] != "hello" {
			t.Fatalf("got args %v, want [hello]", args)
		}
	case <-time.After(time.Second):
		t.Fatalf("notify handler never ran")
	}
}

func TestPusherRejectsRecvOnlySocket(t *testing.T) {
	zctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	defer zctx.Term()

	pullTransport, err := NewEventsTransport(DefaultContext, nil, zctx, zmq.PULL)
	if err != nil {
		t.Fatalf("pull transport: %v", err)
	}
	defer pullTransport.Close()

	if _, err := NewPusher(nil, pullTransport); err == nil {
		t.Fatalf("expected NewPusher to reject a PULL transport")
	}
}

func TestPullerRejectsEmitOnlySocket(t *testing.T) {
	zctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	defer zctx.Term()

	pushTransport, err := NewEventsTransport(DefaultContext, nil, zctx, zmq.PUSH)
	if err != nil {
		t.Fatalf("push transport: %v", err)
	}
	defer pushTransport.Close()

	if _, err := NewPuller(nil, NewRegistry("x"), pushTransport); err == nil {
		t.Fatalf("expected NewPuller to reject a PUSH transport")
	}
}
