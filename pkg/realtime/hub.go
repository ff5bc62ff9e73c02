package realtime

import (
	"sync"

	"rideshare/pkg/logger"
)

// Hub tracks live subscriptions per user inside one process. Cross-instance
// delivery happens upstream: every instance consumes the events topic and
// publishes into its own hub.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*Subscription]struct{}
	log  *logger.Logger
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		subs: make(map[string]map[*Subscription]struct{}),
		log:  log,
	}
}

func (h *Hub) add(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[s.userID]
	if !ok {
		set = make(map[*Subscription]struct{})
		h.subs[s.userID] = set
	}
	set[s] = struct{}{}
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set, ok := h.subs[s.userID]
	if !ok {
		return
	}
	delete(set, s)
	if len(set) == 0 {
		delete(h.subs, s.userID)
	}
}

// Publish queues payload on every subscription of userID and returns how
// many accepted it. A subscriber whose buffer is full is dropped.
func (h *Hub) Publish(userID string, payload []byte) int {
	h.mu.RLock()
	targets := make([]*Subscription, 0, len(h.subs[userID]))
	for s := range h.subs[userID] {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if s.enqueue(payload) {
			delivered++
			continue
		}
		h.log.Warn("Dropping slow realtime subscriber", "user_id", userID)
		s.Stop()
	}
	return delivered
}

func (h *Hub) Subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}

// Close stops every subscription.
func (h *Hub) Close() {
	h.mu.RLock()
	all := make([]*Subscription, 0)
	for _, set := range h.subs {
		for s := range set {
			all = append(all, s)
		}
	}
	h.mu.RUnlock()

	for _, s := range all {
		s.Stop()
	}
}
