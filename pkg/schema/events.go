package schema

// Event type constants for the session event log.
const (
	EventSessionStarted   = "session_started"
	EventSessionResumed   = "session_resumed"
	EventSessionCompleted = "session_completed"

	EventQuestionChanged  = "question_changed"
	EventQuestionSkipped  = "question_skipped"
	EventAnswerRecorded   = "answer_recorded"
	EventValidationFailed = "validation_failed"

	EventEligibilityDetermined = "eligibility_determined"
	EventRoutingAcknowledged   = "routing_acknowledged"
)

// SessionStatus represents the lifecycle state of a survey session.
type SessionStatus string

const (
	SessionStatusNotStarted      SessionStatus = "not_started"
	SessionStatusActive          SessionStatus = "active"
	SessionStatusAwaitingRouting SessionStatus = "awaiting_routing"
	SessionStatusCompleted       SessionStatus = "completed"
)

// EligibilityStatus is the outcome of the eligibility gate.
type EligibilityStatus string

const (
	EligibilityUndetermined EligibilityStatus = "undetermined"
	EligibilityEligible     EligibilityStatus = "eligible"
	EligibilityIneligible   EligibilityStatus = "ineligible"
)

// PendingRouting names the external flow the caller must handle before the
// question sequence resumes. The engine computes it from the eligibility
// outcome and the survey's consent/sample flags; it never routes by itself.
type PendingRouting string

const (
	RoutingNone             PendingRouting = "none"
	RoutingConsent          PendingRouting = "consent"
	RoutingSampleCollection PendingRouting = "sample_collection"
	RoutingRejection        PendingRouting = "rejection"
)
