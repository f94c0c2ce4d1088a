package notifications

import (
	"sync"

	"github.com/carebridge/referral-hub/internal/data"
)

// Hub fans the current inbox snapshot out to live subscribers. The feed
// contract is Firestore-like: every change re-delivers the full current
// ordered set, newest first; diffing is the consumer's problem.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[chan []*data.Notification]struct{}
	buffer int
}

func NewHub() *Hub {
	return NewHubWithBuffer(4)
}

// NewHubWithBuffer sets how many snapshots a subscriber may lag behind
// before stale ones are dropped.
func NewHubWithBuffer(buffer int) *Hub {
	if buffer < 1 {
		buffer = 1
	}
	return &Hub{
		subs:   make(map[string]map[chan []*data.Notification]struct{}),
		buffer: buffer,
	}
}

// Subscribe registers a live feed for one hospital. The returned cancel
// func must be called when the consumer goes away.
func (h *Hub) Subscribe(hospitalID string) (<-chan []*data.Notification, func()) {
	ch := make(chan []*data.Notification, h.buffer)

	h.mu.Lock()
	if h.subs[hospitalID] == nil {
		h.subs[hospitalID] = make(map[chan []*data.Notification]struct{})
	}
	h.subs[hospitalID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[hospitalID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, hospitalID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Broadcast pushes a fresh snapshot to every subscriber of the hospital.
// Slow consumers drop the stale snapshot in favor of the new one.
func (h *Hub) Broadcast(hospitalID string, list []*data.Notification) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for ch := range h.subs[hospitalID] {
		select {
		case ch <- list:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- list:
			default:
			}
		}
	}
}

// Subscribers reports the current subscriber count for a hospital.
func (h *Hub) Subscribers(hospitalID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[hospitalID])
}
