package expressions

import (
	"fmt"
	"strconv"
	"strings"
)

// Interpolate resolves ${{answers.<shortName>}} references in display text
// (question text, validation error text) against the answer context.
// Unknown references and malformed tokens are left in place: display text is
// rendered mid-interview, so interpolation never fails the flow.
func Interpolate(text string, answers map[string]any) string {
	if !strings.Contains(text, "${{") {
		return text
	}

	var result strings.Builder
	result.Grow(len(text))

	i := 0
	for i < len(text) {
		idx := strings.Index(text[i:], "${{")
		if idx == -1 {
			result.WriteString(text[i:])
			break
		}

		result.WriteString(text[i : i+idx])
		start := i + idx + 3 // skip "${{"

		end := strings.Index(text[start:], "}}")
		if end == -1 {
			// Unclosed token: emit the rest verbatim.
			result.WriteString(text[i+idx:])
			break
		}
		end += start

		ref := strings.TrimSpace(text[start:end])
		val, ok := resolveAnswerRef(ref, answers)
		if ok {
			result.WriteString(stringify(val))
		} else {
			result.WriteString(text[i+idx : end+2])
		}

		i = end + 2 // skip "}}"
	}

	return result.String()
}

// resolveAnswerRef resolves an "answers.<shortName>" reference.
func resolveAnswerRef(ref string, answers map[string]any) (any, bool) {
	name, found := strings.CutPrefix(ref, "answers.")
	if !found || name == "" {
		return nil, false
	}
	val, ok := answers[name]
	if !ok || val == nil {
		return nil, false
	}
	return val, true
}

func stringify(val any) string {
	switch v := val.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v)
	}
}

// HasInterpolation checks if text contains any ${{...}} references.
func HasInterpolation(text string) bool {
	return strings.Contains(text, "${{")
}
