package streaming

import (
	"context"
	"sync"
)

// defaultChannelBuffer is the per-subscriber queue depth. A respondent
// answers at human speed, so a small buffer absorbs any realistic burst.
const defaultChannelBuffer = 64

type subscription struct {
	filter EventFilter
	ch     chan StreamEvent
}

func (s *subscription) wants(e StreamEvent) bool {
	if s.filter.SessionID != "" && s.filter.SessionID != e.SessionID {
		return false
	}
	if len(s.filter.EventTypes) == 0 {
		return true
	}
	for _, t := range s.filter.EventTypes {
		if t == e.EventType {
			return true
		}
	}
	return false
}

// MemoryHub is a channel-based EventHub for a single process. Delivery is
// best-effort: a subscriber that stops draining loses events rather than
// stalling session navigation.
type MemoryHub struct {
	mu     sync.RWMutex
	nextID uint64
	subs   map[uint64]*subscription
}

// NewMemoryHub creates an empty in-process hub.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[uint64]*subscription)}
}

// Publish fans the event out to every matching subscriber without blocking.
func (h *MemoryHub) Publish(ctx context.Context, event StreamEvent) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, sub := range h.subs {
		if !sub.wants(event) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
			// slow subscriber, drop
		}
	}
	return nil
}

// Subscribe registers a filtered subscription. The returned cancel function
// detaches it; the channel is never closed, it simply stops receiving.
func (h *MemoryHub) Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	sub := &subscription{filter: filter, ch: make(chan StreamEvent, defaultChannelBuffer)}

	h.mu.Lock()
	h.nextID++
	id := h.nextID
	h.subs[id] = sub
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		delete(h.subs, id)
		h.mu.Unlock()
	}
	return sub.ch, cancel, nil
}
