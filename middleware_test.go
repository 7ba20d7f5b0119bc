package zerorpc

import (
	"sync"
	"testing"
)

// traceMiddleware is a minimal tracing middleware: it propagates a
// "trace_id" header from whatever task last loaded one into every
// subsequently sent event, the same pairing DESIGN.md grounds
// fork_task_context on.
type traceMiddleware struct {
	mu      sync.Mutex
	traceID string

	resolvedEndpoints []string
	before            []string
	after             []string
}

func (m *traceMiddleware) ResolveEndpoint(endpoint string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.resolvedEndpoints = append(m.resolvedEndpoints, endpoint)
	return "ipc:///tmp/" + endpoint
}

func (m *traceMiddleware) LoadTaskContext(header map[string]interface{}) {
	if id, ok := header["trace_id"].(string); ok {
		m.mu.Lock()
		m.traceID = id
		m.mu.Unlock()
	}
}

func (m *traceMiddleware) GetTaskContext() map[string]interface{} {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.traceID == "" {
		return nil
	}
	return map[string]interface{}{"trace_id": m.traceID}
}

func (m *traceMiddleware) ServerBeforeExec(req *Event) {
	m.mu.Lock()
	m.before = append(m.before, req.Name)
	m.mu.Unlock()
}

func (m *traceMiddleware) ServerAfterExec(req, rep *Event) {
	m.mu.Lock()
	m.after = append(m.after, req.Name)
	m.mu.Unlock()
}

func TestContextResolveEndpointChainsMiddleware(t *testing.T) {
	ctx := NewContext()
	mw := &traceMiddleware{}
	ctx.RegisterMiddleware(mw)

	got := ctx.resolveEndpoint("some_service")
	if got != "ipc:///tmp/some_service" {
		t.Fatalf("resolveEndpoint = %q", got)
	}
	if len(mw.resolvedEndpoints) != 1 || mw.resolvedEndpoints[0] != "some_service" {
		t.Fatalf("resolvedEndpoints = %v", mw.resolvedEndpoints)
	}
}

func TestContextTaskContextRoundTrip(t *testing.T) {
	ctx := NewContext()
	mw := &traceMiddleware{}
	ctx.RegisterMiddleware(mw)

	ctx.hooks.loadTaskContext(map[string]interface{}{"trace_id": "abc-123"})

	header := ctx.hooks.getTaskContext()
	if header["trace_id"] != "abc-123" {
		t.Fatalf("getTaskContext = %v", header)
	}
}

func TestContextForkTaskContextPropagatesAcrossGoroutine(t *testing.T) {
	ctx := NewContext()
	mw := &traceMiddleware{}
	ctx.RegisterMiddleware(mw)

	ctx.hooks.loadTaskContext(map[string]interface{}{"trace_id": "forked-id"})

	done := make(chan string, 1)
	fn := ctx.ForkTaskContext(func() {
		mw.mu.Lock()
		id := mw.traceID
		mw.mu.Unlock()
		done <- id
	})

	// Simulate a freshly spawned goroutine that has not yet observed
	// any task context of its own.
	mw.mu.Lock()
	mw.traceID = ""
	mw.mu.Unlock()

	go fn()

	if got := <-done; got != "forked-id" {
		t.Fatalf("forked task saw trace_id = %q, want forked-id", got)
	}
}

func TestHookChainServerExecHooksSeeRequest(t *testing.T) {
	ctx := NewContext()
	mw := &traceMiddleware{}
	ctx.RegisterMiddleware(mw)

	req := newEvent(ctx, "echo", []interface{}{"hi"}, nil)
	rep := newEvent(ctx, EventOK, []interface{}{"hi"}, nil)

	ctx.hooks.serverBeforeExec(req)
	ctx.hooks.serverAfterExec(req, rep)

	if len(mw.before) != 1 || mw.before[0] != "echo" {
		t.Fatalf("before = %v", mw.before)
	}
	if len(mw.after) != 1 || mw.after[0] != "echo" {
		t.Fatalf("after = %v", mw.after)
	}
}

func TestNewMessageIDIsUnique(t *testing.T) {
	ctx := NewContext()
	seen := make(map[string]bool, 1000)
	for i := 0; i < 1000; i++ {
		id := ctx.NewMessageID()
		if seen[id] {
			t.Fatalf("duplicate message id %q", id)
		}
		seen[id] = true
	}
}
