package zerorpc

import (
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"
)

// ProtocolVersion is the current protocol version emitted on every
// event's "v" header. Peers declaring a lower version are still
// accepted on receive (see event.go and heartbeat.go compat_v2
// handling).
const ProtocolVersion = 3

// Context is a process-wide registry of middleware hooks and the
// message-id generator. A Context outlives every socket, Client or
// Server it serves; those only ever hold a reference back to it, they
// never own it. A package-level DefaultContext is provided as a
// convenience, but every constructor accepts an explicit *Context so
// tests can run with full isolation.
type Context struct {
	mu     sync.Mutex
	hooks  hookChain
	serial uint64
	base   uint64
}

// NewContext creates a fresh, independent Context. The message-id
// counter is seeded with a random base so that ids stay unique across
// process restarts talking to the same peer.
func NewContext() *Context {
	return &Context{
		base: rand.New(rand.NewSource(time.Now().UnixNano())).Uint64(),
	}
}

// DefaultContext is the convenience process-wide singleton used when
// callers don't need per-test isolation.
var DefaultContext = NewContext()

// RegisterMiddleware scans mw for the hook interfaces it implements
// and appends each one found to the matching chain. Registration is
// expected to happen during startup; concurrent registration is
// serialized defensively.
func (c *Context) RegisterMiddleware(mw Middleware) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hooks.register(mw)
}

// NewMessageID allocates a new opaque, globally-unique (per process)
// message id.
func (c *Context) NewMessageID() string {
	n := atomic.AddUint64(&c.serial, 1)
	return fmt.Sprintf("%016x%016x", c.base, n)
}

// ForkTaskContext captures the current outgoing task context header
// and re-applies it (via LoadTaskContext) once fn starts running on a
// freshly spawned goroutine, letting a tracing middleware propagate
// context across goroutine boundaries the way it would across an RPC
// boundary.
func (c *Context) ForkTaskContext(fn func()) func() {
	header := c.hooks.getTaskContext()
	return func() {
		c.hooks.loadTaskContext(header)
		fn()
	}
}

func (c *Context) resolveEndpoint(endpoint string) string {
	return c.hooks.resolveEndpoint(endpoint)
}
