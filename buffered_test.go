package zerorpc

import (
	"testing"
	"time"
)

func TestBufferedChannelDeliversEvents(t *testing.T) {
	ctx := NewContext()
	fc := newFakeChannel(ctx)
	bc := NewBufferedChannel(fc, 4)
	defer bc.Close()

	fc.in <- newEvent(ctx, "STREAM", []interface{}{1}, nil)
	fc.in <- newEvent(ctx, "STREAM", []interface{}{2}, nil)

	for _, want := range []int{1, 2} {
		ev, err := bc.Recv(time.Second)
		if err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
		got := toInt(ev.Args[0])
		if got != want {
			t.Fatalf("got %d, want %d", got, want)
		}
	}
}

func TestBufferedChannelRequestsMoreCreditAsQueueDrains(t *testing.T) {
	ctx := NewContext()
	fc := newFakeChannel(ctx)
	bc := NewBufferedChannel(fc, 4)
	defer bc.Close()

	for i := 0; i < 3; i++ {
		fc.in <- newEvent(ctx, "STREAM", []interface{}{i}, nil)
	}
	for i := 0; i < 3; i++ {
		if _, err := bc.Recv(time.Second); err != nil {
			t.Fatalf("Recv failed: %v", err)
		}
	}

	select {
	case ev := <-fc.out:
		if ev.Name != EventCredit {
			t.Fatalf("expected a %s credit request, got %s", EventCredit, ev.Name)
		}
	case <-time.After(time.Second):
		t.Fatalf("expected a credit request event once the queue drained past half")
	}
}

func TestBufferedChannelOverflowFailsSubsequentRecv(t *testing.T) {
	ctx := NewContext()
	fc := newFakeChannel(ctx)
	bc := NewBufferedChannel(fc, 2)
	defer bc.Close()

	// Nothing ever drains bc's input queue below, so pushing more than
	// inputQueueSize events (each given time to land before the next)
	// deterministically overflows it.
	for i := 0; i < 4; i++ {
		fc.in <- newEvent(ctx, "STREAM", []interface{}{i}, nil)
		time.Sleep(20 * time.Millisecond)
	}

	_, err := bc.Recv(time.Second)
	if err == nil {
		t.Fatalf("expected an overflow error")
	}
	if _, ok := err.(*ProtocolError); !ok {
		t.Fatalf("expected *ProtocolError on overflow, got %T: %v", err, err)
	}
}

func TestBufferedChannelEmitWaitsForCredit(t *testing.T) {
	ctx := NewContext()
	fc := newFakeChannel(ctx)
	bc := NewBufferedChannel(fc, 4)
	defer bc.Close()

	// The initial grant is exactly one slot.
	if err := bc.Emit("first", nil, time.Second); err != nil {
		t.Fatalf("first Emit failed: %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- bc.Emit("second", nil, time.Second) }()

	select {
	case <-done:
		t.Fatalf("second Emit should have blocked with no open slots")
	case <-time.After(50 * time.Millisecond):
	}

	fc.in <- newEvent(ctx, EventCredit, []interface{}{1}, nil)

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("second Emit failed: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("second Emit never unblocked after credit arrived")
	}
}
