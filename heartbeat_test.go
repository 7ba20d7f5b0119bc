package zerorpc

import (
	"sync"
	"testing"
	"time"
)

// fakeChannel is a minimal in-memory Channeler used to unit test the
// HeartBeatOnChannel and BufferedChannel layers without a real ZeroMQ
// socket underneath: emitted events go out on `out`, and `in` feeds
// events back as if they had arrived from a peer.
type fakeChannel struct {
	ctx *Context
	in  chan *Event
	out chan *Event

	mu     sync.Mutex
	closed bool
}

func newFakeChannel(ctx *Context) *fakeChannel {
	return &fakeChannel{ctx: ctx, in: make(chan *Event, 64), out: make(chan *Event, 64)}
}

func (f *fakeChannel) RecvIsSupported() bool { return true }
func (f *fakeChannel) EmitIsSupported() bool { return true }

func (f *fakeChannel) NewEvent(name string, args []interface{}, xheader map[string]interface{}) *Event {
	return newEvent(f.ctx, name, args, xheader)
}

func (f *fakeChannel) EmitEvent(ev *Event, timeout time.Duration) error {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return &ErrClosed{What: "fake channel"}
	}
	f.mu.Unlock()
	f.out <- ev
	return nil
}

func (f *fakeChannel) Emit(name string, args []interface{}, timeout time.Duration) error {
	return f.EmitEvent(f.NewEvent(name, args, nil), timeout)
}

func (f *fakeChannel) Recv(timeout time.Duration) (*Event, error) {
	select {
	case ev, ok := <-f.in:
		if !ok {
			return nil, &ErrClosed{What: "fake channel"}
		}
		return ev, nil
	case <-timeoutChan(timeout):
		return nil, &TimeoutExpired{Timeout: timeout.Seconds(), When: "fake channel recv"}
	}
}

func (f *fakeChannel) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.closed {
		f.closed = true
		close(f.in)
	}
	return nil
}

func TestHeartBeatOnChannelForwardsNonHeartbeatEvents(t *testing.T) {
	ctx := NewContext()
	fc := newFakeChannel(ctx)
	hb := NewHeartBeatOnChannel(fc, 50*time.Millisecond, true)
	defer hb.Close()

	fc.in <- newEvent(ctx, "OK", []interface{}{"result"}, nil)

	ev, err := hb.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv failed: %v", err)
	}
	if ev.Name != "OK" {
		t.Fatalf("Name = %q, want OK", ev.Name)
	}
}

func TestHeartBeatOnChannelDetectsLostRemote(t *testing.T) {
	ctx := NewContext()
	fc := newFakeChannel(ctx)
	hb := NewHeartBeatOnChannel(fc, 20*time.Millisecond, false)
	defer hb.Close()

	_, err := hb.Recv(500 * time.Millisecond)
	if err == nil {
		t.Fatalf("expected LostRemote once no peer heartbeat ever arrives")
	}
	if _, ok := err.(*LostRemote); !ok {
		t.Fatalf("expected *LostRemote, got %T: %v", err, err)
	}
}

func TestHeartBeatOnChannelStaysAliveWithPeerHeartbeats(t *testing.T) {
	ctx := NewContext()
	fc := newFakeChannel(ctx)
	hb := NewHeartBeatOnChannel(fc, 30*time.Millisecond, false)
	defer hb.Close()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(10 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				fc.in <- newEvent(ctx, EventHeartbeat, []interface{}{0}, nil)
			case <-stop:
				return
			}
		}
	}()

	select {
	case <-hb.lostCh:
		t.Fatalf("remote incorrectly declared lost while heartbeats kept arriving")
	case <-time.After(200 * time.Millisecond):
	}
}
