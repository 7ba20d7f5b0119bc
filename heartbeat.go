package zerorpc

import (
	"sync"
	"time"
)

// HeartBeatOnChannel wraps a Channeler with peer-to-peer keep-alive:
// every freq it sends a _zpc_hb frame on the wrapped channel, tracks
// the last time the peer's own _zpc_hb was observed, and marks the
// channel lost (LostRemote) once that has been more than 2*freq ago.
//
// State machine: Fresh -> PeerAlive on the first peer heartbeat,
// Fresh -> LostRemote if no heartbeat arrives within 2*freq once
// heartbeating has started. LostRemote is terminal: every subsequent
// operation on the layer fails with the same error.
//
// In passive mode heartbeating only starts once the peer's own
// heartbeat is observed, so a short unary call can complete without
// ever sending one.
type HeartBeatOnChannel struct {
	channel Channeler
	freq    time.Duration

	mu            sync.Mutex
	lastPeerHB    time.Time
	hasLastPeerHB bool
	heartbeating  bool
	compatV2      *bool
	lost          bool
	lostErr       error

	lostCh    chan struct{}
	lostOnce  sync.Once
	recvQueue chan *Event
	closed    chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewHeartBeatOnChannel wraps channel. freq <= 0 disables
// heartbeating entirely (the layer becomes a pass-through). When
// passive is true, this side only starts sending heartbeats once it
// has observed one from the peer.
func NewHeartBeatOnChannel(channel Channeler, freq time.Duration, passive bool) *HeartBeatOnChannel {
	h := &HeartBeatOnChannel{
		channel:   channel,
		freq:      freq,
		lostCh:    make(chan struct{}),
		recvQueue: make(chan *Event),
		closed:    make(chan struct{}),
	}
	h.wg.Add(1)
	go h.recvLoop()
	if !passive {
		h.startHeartbeat()
	}
	return h
}

func (h *HeartBeatOnChannel) startHeartbeat() {
	h.mu.Lock()
	if h.heartbeating || h.freq <= 0 {
		h.mu.Unlock()
		return
	}
	h.heartbeating = true
	h.mu.Unlock()

	h.wg.Add(1)
	go h.heartbeatLoop()
}

func (h *HeartBeatOnChannel) heartbeatLoop() {
	defer h.wg.Done()
	ticker := time.NewTicker(h.freq)
	defer ticker.Stop()

	for {
		select {
		case <-h.closed:
			return
		case <-ticker.C:
			h.mu.Lock()
			if !h.hasLastPeerHB {
				h.lastPeerHB = time.Now()
				h.hasLastPeerHB = true
			}
			last := h.lastPeerHB
			h.mu.Unlock()

			if time.Since(last) > 2*h.freq {
				h.markLost()
				return
			}

			// 0 exists only for v2 compatibility, where heartbeats
			// double as flow-control credit hints.
			if err := h.channel.Emit(EventHeartbeat, []interface{}{0}, h.freq); err != nil {
				return
			}
		}
	}
}

func (h *HeartBeatOnChannel) markLost() {
	h.lostOnce.Do(func() {
		h.mu.Lock()
		h.lost = true
		h.lostErr = &LostRemote{Freq: h.freq.Seconds()}
		h.mu.Unlock()
		close(h.lostCh)
	})
}

func (h *HeartBeatOnChannel) recvLoop() {
	defer h.wg.Done()
	for {
		ev, err := h.channel.Recv(0)
		if err != nil {
			return
		}

		h.mu.Lock()
		if h.compatV2 == nil {
			v := ev.Version() < 3
			h.compatV2 = &v
		}
		compat := *h.compatV2
		h.mu.Unlock()

		if ev.Name == EventHeartbeat {
			h.mu.Lock()
			h.lastPeerHB = time.Now()
			h.hasLastPeerHB = true
			h.mu.Unlock()
			h.startHeartbeat()
			if !compat {
				continue
			}
			ev.Name = EventCredit
		}

		select {
		case h.recvQueue <- ev:
		case <-h.closed:
			return
		}
	}
}

// RecvIsSupported reports whether the wrapped channel can Recv.
func (h *HeartBeatOnChannel) RecvIsSupported() bool { return h.channel.RecvIsSupported() }

// EmitIsSupported reports whether the wrapped channel can Emit.
func (h *HeartBeatOnChannel) EmitIsSupported() bool { return h.channel.EmitIsSupported() }

// NewEvent allocates an event on the wrapped channel. A _zpc_more
// request is relabeled to _zpc_hb for v2-compat peers, since those
// peers only understand heartbeats carrying credit hints.
func (h *HeartBeatOnChannel) NewEvent(name string, args []interface{}, xheader map[string]interface{}) *Event {
	h.mu.Lock()
	if h.compatV2 != nil && *h.compatV2 && name == EventCredit {
		name = EventHeartbeat
	}
	h.mu.Unlock()
	return h.channel.NewEvent(name, args, xheader)
}

// EmitEvent sends ev through the wrapped channel, unless the peer has
// already been marked lost.
func (h *HeartBeatOnChannel) EmitEvent(ev *Event, timeout time.Duration) error {
	if err := h.lostError(); err != nil {
		return err
	}
	return h.channel.EmitEvent(ev, timeout)
}

// Emit is shorthand for NewEvent followed by EmitEvent.
func (h *HeartBeatOnChannel) Emit(name string, args []interface{}, timeout time.Duration) error {
	return h.EmitEvent(h.NewEvent(name, args, nil), timeout)
}

func (h *HeartBeatOnChannel) lostError() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.lost {
		return h.lostErr
	}
	return nil
}

// Recv returns the next user-visible event (heartbeats are
// intercepted and never delivered here, except when relabeled
// _zpc_more for v2-compat peers), the LostRemote error once the peer
// has been declared dead, or a closed error once this layer (or the
// channel it wraps) has been closed.
func (h *HeartBeatOnChannel) Recv(timeout time.Duration) (*Event, error) {
	if err := h.lostError(); err != nil {
		return nil, err
	}
	select {
	case ev, ok := <-h.recvQueue:
		if !ok {
			return nil, &ErrClosed{What: "heartbeat channel"}
		}
		return ev, nil
	case <-h.lostCh:
		return nil, h.lostError()
	case <-h.closed:
		return nil, &ErrClosed{What: "heartbeat channel"}
	case <-timeoutChan(timeout):
		return nil, &TimeoutExpired{Timeout: timeout.Seconds(), When: "receiving on heartbeat channel"}
	}
}

// Close stops the heartbeat and receive goroutines and closes the
// wrapped channel.
func (h *HeartBeatOnChannel) Close() error {
	h.closeOnce.Do(func() {
		close(h.closed)
	})
	err := h.channel.Close()
	h.wg.Wait()
	return err
}
