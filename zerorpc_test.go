package zerorpc

import (
	"fmt"
	"testing"
	"time"

	zmq "github.com/pebbe/zmq4"
)

// newInprocPair builds a bound server-side (ROUTER) and connected
// client-side (DEALER) transport over a unique inproc:// endpoint, so
// tests never fight each other or the host network stack for ports.
func newInprocPair(t *testing.T, endpoint string) (server, client *EventsTransport) {
	t.Helper()
	zctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	t.Cleanup(func() { zctx.Term() })

	server, err = NewEventsTransport(DefaultContext, nil, zctx, zmq.ROUTER)
	if err != nil {
		t.Fatalf("server transport: %v", err)
	}
	if err := server.Bind(endpoint); err != nil {
		t.Fatalf("bind: %v", err)
	}

	client, err = NewEventsTransport(DefaultContext, nil, zctx, zmq.DEALER)
	if err != nil {
		t.Fatalf("client transport: %v", err)
	}
	if err := client.Connect(endpoint); err != nil {
		t.Fatalf("connect: %v", err)
	}
	return server, client
}

func newEchoRegistry() *Registry {
	r := NewRegistry("echo-test")
	r.Register("echo", "", []string{"msg"}, func(args []interface{}) (interface{}, error) {
		return args[0], nil
	})
	r.Register("boom", "", nil, func(args []interface{}) (interface{}, error) {
		return nil, fmt.Errorf("deliberate failure")
	})
	r.RegisterStream("countdown", "", []string{"n"}, func(args []interface{}) (<-chan StreamItem, error) {
		n := toInt(args[0])
		out := make(chan StreamItem)
		go func() {
			defer close(out)
			for i := n; i > 0; i-- {
				out <- StreamItem{Args: []interface{}{int64(i)}}
			}
		}()
		return out, nil
	})
	return r
}

func TestClientServerUnaryCall(t *testing.T) {
	serverTransport, clientTransport := newInprocPair(t, "inproc://zerorpc-test-unary")

	server := NewServer(NewContext(), newEchoRegistry(), serverTransport, ServerOptions{HeartbeatFreq: time.Second})
	go server.Run()
	defer server.Close()

	client := NewClient(NewContext(), clientTransport, ClientOptions{Timeout: 2 * time.Second})
	defer client.Close()

	result, err := client.Call("echo", []interface{}{"hello"})
	if err != nil {
		t.Fatalf("Call failed: %v", err)
	}
	if result != "hello" {
		t.Fatalf("result = %v, want hello", result)
	}
}

func TestClientServerRemoteError(t *testing.T) {
	serverTransport, clientTransport := newInprocPair(t, "inproc://zerorpc-test-error")

	server := NewServer(NewContext(), newEchoRegistry(), serverTransport, ServerOptions{HeartbeatFreq: time.Second})
	go server.Run()
	defer server.Close()

	client := NewClient(NewContext(), clientTransport, ClientOptions{Timeout: 2 * time.Second})
	defer client.Close()

	_, err := client.Call("boom", nil)
	if err == nil {
		t.Fatalf("expected a remote error")
	}
	re, ok := err.(*RemoteError)
	if !ok {
		t.Fatalf("expected *RemoteError, got %T: %v", err, err)
	}
	if re.Message != "deliberate failure" {
		t.Fatalf("Message = %q", re.Message)
	}
}

func TestClientServerUnknownMethod(t *testing.T) {
	serverTransport, clientTransport := newInprocPair(t, "inproc://zerorpc-test-unknown")

	server := NewServer(NewContext(), newEchoRegistry(), serverTransport, ServerOptions{HeartbeatFreq: time.Second})
	go server.Run()
	defer server.Close()

	client := NewClient(NewContext(), clientTransport, ClientOptions{Timeout: 2 * time.Second})
	defer client.Close()

	if _, err := client.Call("does_not_exist", nil); err == nil {
		t.Fatalf("expected an error calling an unregistered method")
	}
}

func TestClientServerStream(t *testing.T) {
	serverTransport, clientTransport := newInprocPair(t, "inproc://zerorpc-test-stream")

	server := NewServer(NewContext(), newEchoRegistry(), serverTransport, ServerOptions{HeartbeatFreq: time.Second})
	go server.Run()
	defer server.Close()

	client := NewClient(NewContext(), clientTransport, ClientOptions{Timeout: 2 * time.Second})
	defer client.Close()

	stream, err := client.CallStream("countdown", []interface{}{int64(3)})
	if err != nil {
		t.Fatalf("CallStream failed: %v", err)
	}

	var got []interface{}
	for item := range stream {
		if item.Err != nil {
			t.Fatalf("stream error: %v", item.Err)
		}
		got = append(got, item.Args[0])
	}
	if len(got) != 3 {
		t.Fatalf("got %d chunks, want 3: %v", len(got), got)
	}
}

func TestClientCallTimeout(t *testing.T) {
	zctx, err := zmq.NewContext()
	if err != nil {
		t.Fatalf("zmq.NewContext: %v", err)
	}
	defer zctx.Term()

	endpoint := "inproc://zerorpc-test-timeout-unresponsive"
	deadServer, err := NewEventsTransport(DefaultContext, nil, zctx, zmq.ROUTER)
	if err != nil {
		t.Fatalf("dead server transport: %v", err)
	}
	if err := deadServer.Bind(endpoint); err != nil {
		t.Fatalf("bind: %v", err)
	}
	defer deadServer.Close()

	clientTransport, err := NewEventsTransport(DefaultContext, nil, zctx, zmq.DEALER)
	if err != nil {
		t.Fatalf("client transport: %v", err)
	}
	if err := clientTransport.Connect(endpoint); err != nil {
		t.Fatalf("connect: %v", err)
	}

	client := NewClient(NewContext(), clientTransport, ClientOptions{Timeout: 50 * time.Millisecond})
	defer client.Close()

	_, err = client.Call("echo", []interface{}{"hello"})
	if _, ok := err.(*TimeoutExpired); !ok {
		t.Fatalf("expected *TimeoutExpired, got %T: %v", err, err)
	}
}
