// Command zerorpc-echo is a minimal server/client pair exercising the
// zerorpc package end to end: an "echo" procedure and a "countdown"
// streaming procedure.
package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	zmq "github.com/pebbe/zmq4"

	"github.com/0rpc/zerorpc-go"
)

func main() {
	mode := flag.String("mode", "", "server or client")
	endpoint := flag.String("endpoint", "tcp://127.0.0.1:1234", "ZeroMQ endpoint to bind/connect")
	method := flag.String("call", "echo", "method to call in client mode")
	message := flag.String("message", "hello", "message argument for echo/countdown")
	flag.Parse()

	switch *mode {
	case "server":
		runServer(*endpoint)
	case "client":
		runClient(*endpoint, *method, *message)
	default:
		fmt.Fprintln(os.Stderr, "usage: zerorpc-echo -mode=server|client -endpoint=tcp://127.0.0.1:1234")
		os.Exit(1)
	}
}

func runServer(endpoint string) {
	zctx, err := zmq.NewContext()
	must(err)

	transport, err := zerorpc.NewEventsTransport(zerorpc.DefaultContext, nil, zctx, zmq.ROUTER)
	must(err)

	registry := zerorpc.NewRegistry("zerorpc-echo")
	registry.Register("echo", "echoes its single argument back", []string{"msg"},
		func(args []interface{}) (interface{}, error) {
			if len(args) == 0 {
				return nil, fmt.Errorf("echo: expected one argument")
			}
			return args[0], nil
		})
	registry.RegisterStream("countdown", "streams n, n-1, ..., 1", []string{"n"},
		func(args []interface{}) (<-chan zerorpc.StreamItem, error) {
			n := 0
			if len(args) > 0 {
				if f, ok := args[0].(float64); ok {
					n = int(f)
				} else if i, ok := args[0].(int64); ok {
					n = int(i)
				} else if u, ok := args[0].(uint64); ok {
					n = int(u)
				} else if s, ok := args[0].(string); ok {
					fmt.Sscan(s, &n)
				}
			}
			out := make(chan zerorpc.StreamItem)
			go func() {
				defer close(out)
				for i := n; i > 0; i-- {
					out <- zerorpc.StreamItem{Args: []interface{}{i}}
				}
			}()
			return out, nil
		})

	server := zerorpc.NewServer(zerorpc.DefaultContext, registry, transport, zerorpc.ServerOptions{})
	must(server.Bind(endpoint))

	fmt.Printf("zerorpc-echo server listening on %s\n", endpoint)
	must(server.Run())
}

func runClient(endpoint, method, message string) {
	zctx, err := zmq.NewContext()
	must(err)

	transport, err := zerorpc.NewEventsTransport(zerorpc.DefaultContext, nil, zctx, zmq.DEALER)
	must(err)

	client := zerorpc.NewClient(zerorpc.DefaultContext, transport, zerorpc.ClientOptions{Timeout: 5 * time.Second})
	must(client.Connect(endpoint))
	defer client.Close()

	switch method {
	case "countdown":
		stream, err := client.CallStream(method, []interface{}{message})
		must(err)
		for item := range stream {
			if item.Err != nil {
				must(item.Err)
			}
			fmt.Println(item.Args)
		}
	default:
		result, err := client.Call(method, []interface{}{message})
		must(err)
		fmt.Println(result)
	}
}

func must(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, "zerorpc-echo:", err)
		os.Exit(1)
	}
}
