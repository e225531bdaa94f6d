// Package stream fans settlement events out to creator-dashboard subscribers
// over SSE. Delivery is best-effort; slow subscribers drop events rather than
// block the settlement path.
package stream

import (
	"context"
	"sync"
	"time"
)

// SettlementEvent describes one recorded settlement for live dashboards.
type SettlementEvent struct {
	Flow      string    `json:"flow"` // unlock | tip | subscribe | renew
	ContentID string    `json:"content_id,omitempty"`
	Creator   string    `json:"creator,omitempty"`
	Amount    int64     `json:"amount"` // base units
	Timestamp time.Time `json:"timestamp"`
}

// Stream fan-outs settlement events to all active subscribers.
type Stream struct {
	mu   sync.RWMutex
	subs map[int]chan SettlementEvent
	next int
}

// New initialises an empty stream.
func New() *Stream {
	return &Stream{subs: make(map[int]chan SettlementEvent)}
}

// Subscribe registers a subscriber and returns a channel which will receive
// events. The channel is closed when the provided context ends.
func (s *Stream) Subscribe(ctx context.Context) <-chan SettlementEvent {
	ch := make(chan SettlementEvent, 16)

	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = ch
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.mu.Lock()
		delete(s.subs, id)
		close(ch)
		s.mu.Unlock()
	}()

	return ch
}

// Publish fan-outs the event to all subscribers.
func (s *Stream) Publish(evt SettlementEvent) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ch := range s.subs {
		select {
		case ch <- evt:
		default:
			// Drop when subscriber is slow to avoid blocking.
		}
	}
}
