// Package broadcast fans out row change events to subscribed contexts.
//
// Delivery is at-most-once per change per subscriber: each subscriber owns
// a buffered channel and events are dropped when that buffer is full. No
// sequence numbers are attached; a stale view self-corrects on the next
// event for the same key.
package broadcast

import (
	"encoding/json"
	"sync"
	"time"
)

// Event describes a single change to a row in the shared table
type Event struct {
	Key       string          `json:"key"`
	Value     json.RawMessage `json:"value,omitempty"`
	Origin    string          `json:"origin,omitempty"`
	Deleted   bool            `json:"deleted,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// HubMetrics tracks fan-out metrics
type HubMetrics struct {
	mu sync.RWMutex
	// Event counts
	PublishCount   int64
	DeliveredCount int64
	DroppedCount   int64
	FilteredCount  int64
	// Subscription counts
	SubscribeCount   int64
	UnsubscribeCount int64
}

// Hub manages per-key subscriptions and event fan-out
type Hub struct {
	mu          sync.RWMutex
	subscribers map[string][]chan Event
	isSensitive func(key string) bool
	bufferSize  int
	metrics     *HubMetrics
}

// NewHub creates a new hub. isSensitive marks keys that must never be
// broadcast; nil means no key is sensitive.
func NewHub(isSensitive func(key string) bool) *Hub {
	if isSensitive == nil {
		isSensitive = func(string) bool { return false }
	}
	return &Hub{
		subscribers: make(map[string][]chan Event),
		isSensitive: isSensitive,
		bufferSize:  100,
		metrics:     &HubMetrics{},
	}
}

// Subscribe registers a subscriber for changes to the given key. The
// returned cancel func releases the subscription and closes the channel;
// no further events are delivered after release.
func (h *Hub) Subscribe(key string) (<-chan Event, func()) {
	ch := make(chan Event, h.bufferSize)

	h.mu.Lock()
	h.subscribers[key] = append(h.subscribers[key], ch)
	h.mu.Unlock()

	h.metrics.mu.Lock()
	h.metrics.SubscribeCount++
	h.metrics.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			subs := h.subscribers[key]
			for i, sub := range subs {
				if sub == ch {
					h.subscribers[key] = append(subs[:i], subs[i+1:]...)
					break
				}
			}
			if len(h.subscribers[key]) == 0 {
				delete(h.subscribers, key)
			}
			h.mu.Unlock()
			close(ch)

			h.metrics.mu.Lock()
			h.metrics.UnsubscribeCount++
			h.metrics.mu.Unlock()
		})
	}

	return ch, cancel
}

// Publish delivers an event to all subscribers of its key. Events for
// sensitive keys are silently discarded.
func (h *Hub) Publish(event Event) {
	h.metrics.mu.Lock()
	h.metrics.PublishCount++
	h.metrics.mu.Unlock()

	if h.isSensitive(event.Key) {
		h.metrics.mu.Lock()
		h.metrics.FilteredCount++
		h.metrics.mu.Unlock()
		return
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subscribers[event.Key] {
		select {
		case ch <- event:
			h.metrics.mu.Lock()
			h.metrics.DeliveredCount++
			h.metrics.mu.Unlock()
		default:
			// Subscriber is not keeping up; drop rather than block.
			h.metrics.mu.Lock()
			h.metrics.DroppedCount++
			h.metrics.mu.Unlock()
		}
	}
}

// SubscriberCount returns the number of active subscriptions for a key
func (h *Hub) SubscriberCount(key string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers[key])
}

// GetMetrics returns a copy of the current hub metrics
func (h *Hub) GetMetrics() HubMetrics {
	h.metrics.mu.RLock()
	defer h.metrics.mu.RUnlock()
	return HubMetrics{
		PublishCount:     h.metrics.PublishCount,
		DeliveredCount:   h.metrics.DeliveredCount,
		DroppedCount:     h.metrics.DroppedCount,
		FilteredCount:    h.metrics.FilteredCount,
		SubscribeCount:   h.metrics.SubscribeCount,
		UnsubscribeCount: h.metrics.UnsubscribeCount,
	}
}
