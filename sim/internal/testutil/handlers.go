package testutil

import (
	"errors"
	"sync"

	"github.com/trafficsim/qsim/sim/events"
)

// ErrScripted is returned by a FailingHandler.
var ErrScripted = errors.New("scripted handler failure")

// FailingHandler fails on its Nth event, counting from 1.
type FailingHandler struct {
	N int

	mu    sync.Mutex
	count int
}

func (h *FailingHandler) HandleEvent(events.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.count++
	if h.count == h.N {
		return ErrScripted
	}
	return nil
}

// Count returns the number of events received.
func (h *FailingHandler) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.count
}

// FlushCounter counts Flush calls.
type FlushCounter struct {
	mu      sync.Mutex
	flushes int
}

func (h *FlushCounter) HandleEvent(events.Event) error { return nil }

func (h *FlushCounter) Flush() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.flushes++
	return nil
}

// Flushes returns the number of Flush calls.
func (h *FlushCounter) Flushes() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.flushes
}

// Lines renders events in their canonical encoding.
func Lines(evs []events.Event) []string {
	out := make([]string, len(evs))
	for i, e := range evs {
		out[i] = e.String()
	}
	return out
}
