package session

import (
	"context"
	"sync"

	"github.com/rendis/fieldflow/internal/store"
	"github.com/rendis/fieldflow/pkg/schema"
)

// TransitionHook is called before or after a status transition.
type TransitionHook func(from, to string) error

// EventAppender is satisfied by the Store; used by the FSM to record
// lifecycle events on transitions.
type EventAppender interface {
	AppendEvent(ctx context.Context, event *store.SessionEvent) error
}

type hookKey struct {
	from, to schema.SessionStatus
}

// FSM manages session lifecycle state transitions.
type FSM struct {
	mu       sync.Mutex
	appender EventAppender
	before   map[hookKey][]TransitionHook
	after    map[hookKey][]TransitionHook
}

// NewFSM creates a new FSM that records events via the given appender.
// A nil appender disables event recording (used by in-memory sessions).
func NewFSM(appender EventAppender) *FSM {
	return &FSM{
		appender: appender,
		before:   make(map[hookKey][]TransitionHook),
		after:    make(map[hookKey][]TransitionHook),
	}
}

// OnBefore registers a hook called before a transition.
func (f *FSM) OnBefore(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.before[key] = append(f.before[key], hook)
}

// OnAfter registers a hook called after a transition.
func (f *FSM) OnAfter(from, to schema.SessionStatus, hook TransitionHook) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := hookKey{from, to}
	f.after[key] = append(f.after[key], hook)
}

// Transition validates and executes a session status transition, recording
// the corresponding lifecycle event. The caller is responsible for persisting
// the new session state to the store.
func (f *FSM) Transition(ctx context.Context, sessionID string, from, to schema.SessionStatus) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !isValidTransition(from, to) {
		return schema.NewErrorf(schema.ErrCodeInvalidTransition,
			"invalid session transition: %s -> %s", from, to).
			WithDetails(map[string]any{"session_id": sessionID, "from": string(from), "to": string(to)})
	}

	key := hookKey{from, to}

	for _, hook := range f.before[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	if eventType := transitionEventType(from, to); eventType != "" && f.appender != nil {
		event := &store.SessionEvent{
			SessionID: sessionID,
			Type:      eventType,
		}
		if err := f.appender.AppendEvent(ctx, event); err != nil {
			return schema.NewErrorf(schema.ErrCodeStore, "record session event: %s", err.Error()).WithCause(err)
		}
	}

	for _, hook := range f.after[key] {
		if err := hook(string(from), string(to)); err != nil {
			return err
		}
	}

	return nil
}

func isValidTransition(from, to schema.SessionStatus) bool {
	allowed, ok := ValidSessionTransitions[from]
	if !ok {
		return false
	}
	for _, a := range allowed {
		if a == to {
			return true
		}
	}
	return false
}

func transitionEventType(from, to schema.SessionStatus) string {
	switch {
	case to == schema.SessionStatusActive && from == schema.SessionStatusNotStarted:
		return schema.EventSessionStarted
	case to == schema.SessionStatusActive && from == schema.SessionStatusAwaitingRouting:
		return schema.EventSessionResumed
	case to == schema.SessionStatusAwaitingRouting:
		return schema.EventEligibilityDetermined
	case to == schema.SessionStatusCompleted:
		return schema.EventSessionCompleted
	default:
		return ""
	}
}

// ValidSessionTransitions defines the allowed status transitions for sessions.
// Completed is terminal: there is no reverse transition out of it.
var ValidSessionTransitions = map[schema.SessionStatus][]schema.SessionStatus{
	schema.SessionStatusNotStarted:      {schema.SessionStatusActive},
	schema.SessionStatusActive:          {schema.SessionStatusAwaitingRouting, schema.SessionStatusCompleted},
	schema.SessionStatusAwaitingRouting: {schema.SessionStatusActive, schema.SessionStatusCompleted},
	schema.SessionStatusCompleted:       {},
}
