package core

import (
	"sync"
	"time"

	"github.com/benbjohnson/clock"
)

// Heartbeat tracks one connection's heartbeat deadline. onExpire runs once,
// on the clock's goroutine, when no beat arrives within the timeout.
type Heartbeat struct {
	clock    clock.Clock
	timeout  time.Duration
	onExpire func()

	mu      sync.Mutex
	timer   *clock.Timer
	gen     uint64
	stopped bool
}

// NewHeartbeat arms the first deadline immediately.
func NewHeartbeat(clk clock.Clock, timeout time.Duration, onExpire func()) *Heartbeat {
	h := &Heartbeat{clock: clk, timeout: timeout, onExpire: onExpire}
	h.mu.Lock()
	h.armLocked()
	h.mu.Unlock()
	return h
}

// Beat pushes the deadline out by the full timeout.
func (h *Heartbeat) Beat() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.armLocked()
}

// Stop cancels the deadline.
func (h *Heartbeat) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.stopped = true
	if h.timer != nil {
		h.timer.Stop()
	}
}

func (h *Heartbeat) armLocked() {
	if h.timer != nil {
		h.timer.Stop()
	}
	h.gen++
	gen := h.gen
	h.timer = h.clock.AfterFunc(h.timeout, func() { h.fire(gen) })
}

func (h *Heartbeat) fire(gen uint64) {
	h.mu.Lock()
	if h.stopped || gen != h.gen {
		h.mu.Unlock()
		return
	}
	h.stopped = true
	h.mu.Unlock()
	h.onExpire()
}
