package schema

import "fmt"

// Error codes for structured error reporting.
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeSelection         = "SELECTION_ERROR"
	ErrCodeEvaluation        = "EVALUATION_ERROR"
	ErrCodeDefinition        = "DEFINITION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeConflict          = "CONFLICT"
	ErrCodeInvalidTransition = "INVALID_TRANSITION"
	ErrCodeStore             = "STORE_ERROR"
)

// FieldflowError is the structured error type for all fieldflow operations.
type FieldflowError struct {
	Code     string         `json:"code"`
	Message  string         `json:"message"`
	Details  map[string]any `json:"details,omitempty"`
	Question string         `json:"question,omitempty"`
	Cause    error          `json:"-"`
}

func (e *FieldflowError) Error() string {
	if e.Question != "" {
		return fmt.Sprintf("[%s] question %s: %s", e.Code, e.Question, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FieldflowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FieldflowError.
func NewError(code, message string) *FieldflowError {
	return &FieldflowError{Code: code, Message: message}
}

// NewErrorf creates a new FieldflowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FieldflowError {
	return &FieldflowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithQuestion attaches a question shortName to the error.
func (e *FieldflowError) WithQuestion(shortName string) *FieldflowError {
	e.Question = shortName
	return e
}

// WithCause attaches an underlying cause.
func (e *FieldflowError) WithCause(err error) *FieldflowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FieldflowError) WithDetails(details map[string]any) *FieldflowError {
	e.Details = details
	return e
}

// IsBlocking reports whether the error represents a recoverable answer
// constraint that should be shown to the respondent instead of failing
// the session (selection bounds or a validation script rejection).
func (e *FieldflowError) IsBlocking() bool {
	return e.Code == ErrCodeSelection || e.Code == ErrCodeValidation
}
