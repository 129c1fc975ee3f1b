package store

import (
	"encoding/json"
	"time"

	"github.com/rendis/fieldflow/pkg/schema"
)

// SurveyRecord is the persisted representation of a survey definition.
type SurveyRecord struct {
	ID         string                  `json:"id"`
	Name       string                  `json:"name,omitempty"`
	Definition schema.SurveyDefinition `json:"definition"`
	CreatedAt  time.Time               `json:"created_at"`
	UpdatedAt  time.Time               `json:"updated_at"`
}

// SessionRecord is the persisted navigation state of one session.
type SessionRecord struct {
	ID             string                   `json:"id"`
	SurveyID       string                   `json:"survey_id"`
	Language       string                   `json:"language,omitempty"`
	Status         schema.SessionStatus     `json:"status"`
	CurrentIndex   int                      `json:"current_index"`
	History        []int                    `json:"history,omitempty"`
	CurrentSection string                   `json:"current_section,omitempty"`
	Eligibility    schema.EligibilityStatus `json:"eligibility"`
	PendingRouting schema.PendingRouting    `json:"pending_routing"`
	CreatedAt      time.Time                `json:"created_at"`
	UpdatedAt      time.Time                `json:"updated_at"`
	CompletedAt    *time.Time               `json:"completed_at,omitempty"`
}

// SessionEvent is an immutable entry in the session event log.
type SessionEvent struct {
	ID        int64           `json:"id"`
	SessionID string          `json:"session_id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	Sequence  int64           `json:"sequence"`
}

// --- Filter and update types ---

// SurveyFilter specifies criteria for listing surveys.
type SurveyFilter struct {
	Name  string `json:"name,omitempty"`
	Limit int    `json:"limit,omitempty"`
}

// SessionFilter specifies criteria for listing sessions.
type SessionFilter struct {
	SurveyID      string                `json:"survey_id,omitempty"`
	Status        *schema.SessionStatus `json:"status,omitempty"`
	UpdatedBefore *time.Time            `json:"updated_before,omitempty"`
	Limit         int                   `json:"limit,omitempty"`
	Offset        int                   `json:"offset,omitempty"`
}

// SessionUpdate specifies mutable fields of a session. Nil pointers mean no
// change; History is replaced whenever non-nil.
type SessionUpdate struct {
	Status         *schema.SessionStatus     `json:"status,omitempty"`
	CurrentIndex   *int                      `json:"current_index,omitempty"`
	History        []int                     `json:"history,omitempty"`
	CurrentSection *string                   `json:"current_section,omitempty"`
	Eligibility    *schema.EligibilityStatus `json:"eligibility,omitempty"`
	PendingRouting *schema.PendingRouting    `json:"pending_routing,omitempty"`
	CompletedAt    *time.Time                `json:"completed_at,omitempty"`
}
