package schema

import "fmt"

// ValidationIssue is one problem found in a survey definition. Path points
// at the offending field in the definition document, e.g.
// "questions[2].min_selections".
type ValidationIssue struct {
	Path    string `json:"path,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (i ValidationIssue) String() string {
	if i.Path == "" {
		return i.Message
	}
	return fmt.Sprintf("%s: %s", i.Path, i.Message)
}

// ValidationResult collects errors and warnings from the definition
// validation pipeline. Errors make a definition unusable; warnings flag
// constructs that are legal but rely on fallback behavior at run time.
type ValidationResult struct {
	Errors   []ValidationIssue `json:"errors,omitempty"`
	Warnings []ValidationIssue `json:"warnings,omitempty"`
}

// Valid reports whether the definition can be registered. Warnings alone do
// not make a definition invalid.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

// AddError records an error-level issue.
func (r *ValidationResult) AddError(path, code, message string) {
	r.Errors = append(r.Errors, ValidationIssue{Path: path, Code: code, Message: message})
}

// AddWarning records a warning-level issue.
func (r *ValidationResult) AddWarning(path, code, message string) {
	r.Warnings = append(r.Warnings, ValidationIssue{Path: path, Code: code, Message: message})
}

// Merge folds another result's issues into this one.
func (r *ValidationResult) Merge(other *ValidationResult) {
	if other == nil {
		return
	}
	r.Errors = append(r.Errors, other.Errors...)
	r.Warnings = append(r.Warnings, other.Warnings...)
}

// ToError returns nil for a valid result, otherwise a FieldflowError
// summarizing the errors and carrying every issue in its details.
func (r *ValidationResult) ToError() error {
	if r.Valid() {
		return nil
	}

	msg := r.Errors[0].String()
	if len(r.Errors) > 1 {
		msg = fmt.Sprintf("definition invalid with %d errors", len(r.Errors))
	}
	return NewError(ErrCodeDefinition, msg).WithDetails(map[string]any{
		"errors":   r.Errors,
		"warnings": r.Warnings,
	})
}
