package streaming

import "context"

// StreamEvent is a real-time event emitted during session navigation:
// question changes, recorded answers, validation failures, eligibility
// outcomes and completion. The routing collaborator subscribes to these.
type StreamEvent struct {
	SessionID string `json:"session_id"`
	EventType string `json:"event_type"`
	Payload   any    `json:"payload,omitempty"`
}

// EventFilter specifies which events a subscriber wants to receive.
type EventFilter struct {
	SessionID  string   `json:"session_id,omitempty"`
	EventTypes []string `json:"event_types,omitempty"`
}

// EventHub provides pub/sub for real-time session events.
type EventHub interface {
	Publish(ctx context.Context, event StreamEvent) error
	Subscribe(ctx context.Context, filter EventFilter) (<-chan StreamEvent, func(), error)
}
