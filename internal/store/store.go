package store

import (
	"context"

	"github.com/rendis/fieldflow/pkg/schema"
)

// Store defines the persistence layer contract.
// All implementations must be safe for concurrent use.
type Store interface {
	// Surveys
	StoreSurvey(ctx context.Context, rec *SurveyRecord) error
	GetSurvey(ctx context.Context, id string) (*SurveyRecord, error)
	ListSurveys(ctx context.Context, filter SurveyFilter) ([]*SurveyRecord, error)
	DeleteSurvey(ctx context.Context, id string) error

	// Sessions
	CreateSession(ctx context.Context, rec *SessionRecord) error
	GetSession(ctx context.Context, id string) (*SessionRecord, error)
	UpdateSession(ctx context.Context, id string, update SessionUpdate) error
	ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error)
	DeleteSession(ctx context.Context, id string) error

	// Answers (upsert; one row per session/position, overwritten idempotently)
	SaveAnswer(ctx context.Context, sessionID string, answer *schema.Answer) error
	ListAnswers(ctx context.Context, sessionID string) ([]*schema.Answer, error)

	// Event log (append-only)
	AppendEvent(ctx context.Context, event *SessionEvent) error
	GetEvents(ctx context.Context, sessionID string, since int64) ([]*SessionEvent, error)

	// Maintenance
	Migrate(ctx context.Context) error
	Vacuum(ctx context.Context) error

	// Lifecycle
	Close() error
}
