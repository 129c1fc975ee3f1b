package session

import "strings"

// SkipDirective is the pre-script result that hides the current question.
const SkipDirective = "skip"

// OutcomeKind classifies a pre-script result.
type OutcomeKind int

const (
	// OutcomeContinue shows the question normally.
	OutcomeContinue OutcomeKind = iota
	// OutcomeSkip hides the question and moves on.
	OutcomeSkip
	// OutcomeOther carries an opaque directive for the caller; the engine
	// does not interpret it.
	OutcomeOther
)

// PreScriptOutcome is the engine's reading of a pre-script result: a tagged
// union instead of raw string comparison, so downstream layers can act on
// custom directives without the engine knowing them.
type PreScriptOutcome struct {
	Kind      OutcomeKind
	Directive string
}

// ClassifyPreScript maps a pre-script evaluation result to an outcome.
// Evaluation errors fail open to continue (the question is shown). String
// results get special handling: "skip" skips, anything else is forwarded
// uninterpreted. Every other type goes through the uniform truthiness rule,
// where truthy means skip.
func ClassifyPreScript(result any, err error) PreScriptOutcome {
	if err != nil {
		return PreScriptOutcome{Kind: OutcomeContinue}
	}
	if s, ok := result.(string); ok {
		if strings.EqualFold(s, SkipDirective) {
			return PreScriptOutcome{Kind: OutcomeSkip}
		}
		if s == "" {
			return PreScriptOutcome{Kind: OutcomeContinue}
		}
		return PreScriptOutcome{Kind: OutcomeOther, Directive: s}
	}
	if Truthy(result) {
		return PreScriptOutcome{Kind: OutcomeSkip}
	}
	return PreScriptOutcome{Kind: OutcomeContinue}
}

// Truthy applies the single coercion rule used for every script result:
// native booleans directly, non-zero numbers, the strings "true"/"1"
// (case-insensitive), and nothing else.
func Truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case int:
		return val != 0
	case int32:
		return val != 0
	case int64:
		return val != 0
	case uint:
		return val != 0
	case uint32:
		return val != 0
	case uint64:
		return val != 0
	case float32:
		return val != 0
	case float64:
		return val != 0
	case string:
		return strings.EqualFold(val, "true") || val == "1"
	case nil:
		return false
	default:
		return false
	}
}
