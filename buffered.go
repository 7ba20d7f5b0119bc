package zerorpc

import (
	"fmt"
	"sync"
	"time"
)

const defaultInputQueueSize = 100

// BufferedChannel wraps a Channeler with credit-based flow control so
// a fast sender can't flood a slow receiver's mailbox: the receiver
// periodically grants the sender a number of open slots via a
// _zpc_more event, and the sender blocks in EmitEvent once it has
// used up every slot it was granted.
//
// This is the layer ReqStream sits on: each chunk of a stream consumes
// one slot, and the consumer replenishes slots once its own local
// queue has drained past the halfway mark.
type BufferedChannel struct {
	channel        Channeler
	inputQueueSize int

	mu                   sync.Mutex
	remoteOpenSlots      int
	remoteCanRecv        chan struct{}
	inputQueueReserved   int
	verbose              bool
	onCloseIf            func(*Event) bool
	queue                []*Event
	queueNotify          chan struct{}
	failed               error

	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewBufferedChannel wraps channel with a receive queue that can hold
// up to inqueueSize events before the peer is made to wait. inqueueSize
// <= 0 defaults to 100, matching the reference implementation.
func NewBufferedChannel(channel Channeler, inqueueSize int) *BufferedChannel {
	if inqueueSize <= 0 {
		inqueueSize = defaultInputQueueSize
	}
	b := &BufferedChannel{
		channel:            channel,
		inputQueueSize:     inqueueSize,
		remoteOpenSlots:    1,
		remoteCanRecv:      make(chan struct{}),
		inputQueueReserved: 1,
		queueNotify:        make(chan struct{}),
		closed:             make(chan struct{}),
	}
	b.wg.Add(1)
	go b.recvLoop()
	return b
}

// SetOnCloseIf installs a predicate evaluated against every event
// delivered into the input queue; once it returns true the buffered
// channel closes itself after delivering that event. Used by ReqStream
// to tear down the channel as soon as STREAM_DONE arrives.
func (b *BufferedChannel) SetOnCloseIf(pred func(*Event) bool) {
	b.mu.Lock()
	b.onCloseIf = pred
	b.mu.Unlock()
}

// RecvIsSupported reports whether the wrapped channel can Recv.
func (b *BufferedChannel) RecvIsSupported() bool { return b.channel.RecvIsSupported() }

// EmitIsSupported reports whether the wrapped channel can Emit.
func (b *BufferedChannel) EmitIsSupported() bool { return b.channel.EmitIsSupported() }

// NewEvent allocates an event on the wrapped channel.
func (b *BufferedChannel) NewEvent(name string, args []interface{}, xheader map[string]interface{}) *Event {
	return b.channel.NewEvent(name, args, xheader)
}

func (b *BufferedChannel) recvLoop() {
	defer b.wg.Done()
	for {
		ev, err := b.channel.Recv(0)
		if err != nil {
			b.fail(err)
			return
		}

		if ev.Name == EventCredit {
			n := 0
			if len(ev.Args) > 0 {
				n = toInt(ev.Args[0])
			}
			b.mu.Lock()
			b.remoteOpenSlots += n
			if b.remoteOpenSlots > 0 {
				old := b.remoteCanRecv
				b.remoteCanRecv = make(chan struct{})
				b.mu.Unlock()
				close(old)
			} else {
				b.mu.Unlock()
			}
			continue
		}

		if err := b.pushInput(ev); err != nil {
			b.fail(err)
			return
		}

		b.mu.Lock()
		closeNow := b.onCloseIf != nil && b.onCloseIf(ev)
		b.mu.Unlock()
		if closeNow {
			// Signal closure without joining b.wg: this goroutine is
			// itself the sole member of that WaitGroup and hasn't
			// returned yet, so waiting on it here would deadlock. The
			// external Close() (or this deferred Done) performs the
			// join once we return.
			b.closeSignal()
			return
		}
	}
}

func toInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case uint64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}

func (b *BufferedChannel) pushInput(ev *Event) error {
	b.mu.Lock()
	if len(b.queue) >= b.inputQueueSize {
		b.mu.Unlock()
		return &ProtocolError{Reason: fmt.Sprintf("buffered channel queue overflow on event %q", ev.Name)}
	}
	b.queue = append(b.queue, ev)
	old := b.queueNotify
	b.queueNotify = make(chan struct{})
	b.mu.Unlock()
	close(old)
	return nil
}

func (b *BufferedChannel) popInput(timeout time.Duration) (*Event, error) {
	for {
		b.mu.Lock()
		// A queue overflow is fatal for the channel: it is reported
		// ahead of any events still sitting in the queue.
		if perr, ok := b.failed.(*ProtocolError); ok {
			b.mu.Unlock()
			return nil, perr
		}
		if len(b.queue) > 0 {
			ev := b.queue[0]
			b.queue = b.queue[1:]
			b.mu.Unlock()
			return ev, nil
		}
		if err := b.failed; err != nil {
			b.mu.Unlock()
			return nil, err
		}
		notify := b.queueNotify
		b.mu.Unlock()

		select {
		case <-notify:
		case <-b.closed:
			return nil, &ErrClosed{What: "buffered channel"}
		case <-timeoutChan(timeout):
			return nil, &TimeoutExpired{Timeout: timeout.Seconds(), When: "receiving on buffered channel"}
		}
	}
}

func (b *BufferedChannel) fail(err error) {
	b.mu.Lock()
	if b.failed == nil {
		b.failed = err
	}
	old := b.queueNotify
	b.queueNotify = make(chan struct{})
	b.mu.Unlock()
	close(old)
}

// EmitEvent blocks until the peer has granted an open slot (or
// timeout elapses), consumes one slot, and sends ev. The slot is
// refunded if the underlying send fails.
func (b *BufferedChannel) EmitEvent(ev *Event, timeout time.Duration) error {
	for {
		b.mu.Lock()
		if b.remoteOpenSlots > 0 {
			b.remoteOpenSlots--
			b.mu.Unlock()
			break
		}
		wait := b.remoteCanRecv
		b.mu.Unlock()

		select {
		case <-wait:
		case <-b.closed:
			return &ErrClosed{What: "buffered channel"}
		case <-timeoutChan(timeout):
			return &TimeoutExpired{Timeout: timeout.Seconds(), When: "waiting for remote open slots"}
		}
	}

	if err := b.channel.EmitEvent(ev, 0); err != nil {
		b.mu.Lock()
		b.remoteOpenSlots++
		b.mu.Unlock()
		return err
	}
	return nil
}

// Emit is shorthand for NewEvent followed by EmitEvent.
func (b *BufferedChannel) Emit(name string, args []interface{}, timeout time.Duration) error {
	return b.EmitEvent(b.NewEvent(name, args, nil), timeout)
}

func (b *BufferedChannel) requestData() {
	b.mu.Lock()
	openSlots := b.inputQueueSize - b.inputQueueReserved
	b.inputQueueReserved += openSlots
	b.mu.Unlock()
	if openSlots > 0 {
		b.channel.Emit(EventCredit, []interface{}{openSlots}, 0)
	}
}

// Recv returns the next event delivered into the local input queue,
// granting the peer a fresh batch of open slots once the queue has
// drained past the halfway mark.
func (b *BufferedChannel) Recv(timeout time.Duration) (*Event, error) {
	b.mu.Lock()
	needRequest := false
	if b.verbose {
		if b.inputQueueReserved < b.inputQueueSize/2 {
			needRequest = true
		}
	} else {
		b.verbose = true
	}
	b.mu.Unlock()
	if needRequest {
		b.requestData()
	}

	ev, err := b.popInput(timeout)
	if err != nil {
		return nil, err
	}
	b.mu.Lock()
	b.inputQueueReserved--
	b.mu.Unlock()
	return ev, nil
}

// closeSignal wakes up any goroutine blocked in popInput/EmitEvent and
// closes the wrapped channel, without joining b.wg. Split out of Close
// so recvLoop can close itself (on the onCloseIf path) without
// deadlocking by waiting on its own completion.
func (b *BufferedChannel) closeSignal() error {
	b.closeOnce.Do(func() {
		close(b.closed)
	})
	return b.channel.Close()
}

// Close stops the receive goroutine and closes the wrapped channel,
// waiting for the receive goroutine to actually exit.
func (b *BufferedChannel) Close() error {
	err := b.closeSignal()
	b.wg.Wait()
	return err
}
