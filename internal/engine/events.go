// Package engine wires the simulation together: the dependency-injected core
// owns the agent registry, all component state, and the public operations the
// UI layer consumes.
package engine

import (
	"sync"
	"time"
)

// Event is a notable occurrence in the arena economy.
type Event struct {
	Time      time.Time `json:"time"`
	Category  string    `json:"category"` // "battle", "kill", "skirmish", "tournament", "market", "economy"
	Message   string    `json:"message"`
	Highlight bool      `json:"highlight,omitempty"`
}

// feedCap bounds the ring buffer; older events fall off.
const feedCap = 1000

// Feed is the bounded event stream: a ring buffer for pull readers plus
// fan-out channels for live subscribers (the websocket stream).
type Feed struct {
	mu   sync.Mutex
	buf  []Event
	subs map[chan Event]struct{}
}

// NewFeed creates an empty event feed.
func NewFeed() *Feed {
	return &Feed{subs: make(map[chan Event]struct{})}
}

// Append records an event and fans it out to live subscribers. Slow
// subscribers drop events rather than block the simulation.
func (f *Feed) Append(e Event) {
	f.mu.Lock()
	f.buf = append(f.buf, e)
	if len(f.buf) > feedCap {
		f.buf = f.buf[len(f.buf)-feedCap:]
	}
	for ch := range f.subs {
		select {
		case ch <- e:
		default:
		}
	}
	f.mu.Unlock()
}

// Recent returns the latest n events, oldest first.
func (f *Feed) Recent(n int) []Event {
	f.mu.Lock()
	defer f.mu.Unlock()
	start := 0
	if len(f.buf) > n {
		start = len(f.buf) - n
	}
	return append([]Event(nil), f.buf[start:]...)
}

// Subscribe returns a live event channel and its cancel function.
func (f *Feed) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 64)
	f.mu.Lock()
	f.subs[ch] = struct{}{}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		delete(f.subs, ch)
		f.mu.Unlock()
	}
	return ch, cancel
}
