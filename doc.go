// Package zerorpc implements an RPC framework over ZeroMQ: request/
// reply and streaming calls multiplexed over REQ/REP, DEALER/ROUTER,
// PUSH/PULL and PUB/SUB sockets, with msgpack-encoded events, per-call
// heartbeats, and credit-based flow control for streamed replies.
//
// A Server binds a ROUTER socket and dispatches incoming calls to
// procedures registered in a Registry:
//
//	zctx, _ := zmq4.NewContext()
//	transport, _ := zerorpc.NewEventsTransport(zerorpc.DefaultContext, nil, zctx, zmq4.ROUTER)
//	registry := zerorpc.NewRegistry("echo")
//	registry.Register("echo", "", []string{"msg"}, func(args []interface{}) (interface{}, error) {
//		return args[0], nil
//	})
//	server := zerorpc.NewServer(zerorpc.DefaultContext, registry, transport, zerorpc.ServerOptions{})
//	server.Bind("tcp://*:1234")
//	server.Run()
//
// A Client connects a DEALER socket and calls by name:
//
//	transport, _ := zerorpc.NewEventsTransport(zerorpc.DefaultContext, nil, zctx, zmq4.DEALER)
//	client := zerorpc.NewClient(zerorpc.DefaultContext, transport, zerorpc.ClientOptions{})
//	client.Connect("tcp://localhost:1234")
//	result, err := client.Call("echo", []interface{}{"hello"})
package zerorpc
