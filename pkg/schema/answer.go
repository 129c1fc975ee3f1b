package schema

import (
	"strconv"
	"strings"
)

// Answer holds the response to one question. Answers are pre-created empty for
// every question at session start, position-aligned with the question
// sequence, and mutated in place as the respondent answers. Multi-select
// toggles are the exception: ToggleIndex returns a fresh Answer so observers
// comparing pointers see the change.
type Answer struct {
	QuestionID  string   `json:"question_id"`
	Position    int      `json:"position"`
	OptionIndex *int     `json:"option_index,omitempty"`
	OptionText  string   `json:"option_text,omitempty"`
	Numeric     *float64 `json:"numeric,omitempty"`
	FreeText    string   `json:"free_text,omitempty"`
	// Selections is the serialized multi-select value: an ordered,
	// de-duplicated comma list of option indices ("0,2,3").
	Selections string `json:"selections,omitempty"`
	Answered   bool   `json:"answered"`
}

// EmptyAnswer creates the pre-session placeholder for a question.
func EmptyAnswer(questionID string, position int) *Answer {
	return &Answer{QuestionID: questionID, Position: position}
}

// SetSelection records a single-choice answer by option index and text.
func (a *Answer) SetSelection(index int, text string) {
	a.OptionIndex = &index
	a.OptionText = text
	a.Answered = true
}

// SetNumeric records a numeric answer.
func (a *Answer) SetNumeric(v float64) {
	a.Numeric = &v
	a.Answered = true
}

// SetFreeText records a free-text answer. An empty string clears it.
func (a *Answer) SetFreeText(text string) {
	a.FreeText = text
	a.Answered = text != ""
}

// ToggleIndex returns a new Answer with the given option index added or
// removed from the multi-select set. The receiver is not modified. If adding
// the index would exceed maxSelections (when > 0), the receiver is returned
// unchanged and ok is false.
func (a *Answer) ToggleIndex(index, maxSelections int) (next *Answer, ok bool) {
	selected := DecodeSelections(a.Selections)

	pos := -1
	for i, idx := range selected {
		if idx == index {
			pos = i
			break
		}
	}

	if pos >= 0 {
		selected = append(selected[:pos], selected[pos+1:]...)
	} else {
		if maxSelections > 0 && len(selected) >= maxSelections {
			return a, false
		}
		selected = append(selected, index)
	}

	clone := *a
	clone.Selections = EncodeSelections(selected)
	clone.Answered = clone.Selections != ""
	return &clone, true
}

// SelectionCount returns how many options the multi-select value holds.
func (a *Answer) SelectionCount() int {
	return len(DecodeSelections(a.Selections))
}

// Value returns the answer as the context variable value for script
// evaluation: option index for single-choice, numeric value, free text, or
// the serialized selections string as-is for multi-select. Unanswered
// questions yield nil.
func (a *Answer) Value() any {
	if !a.Answered {
		return nil
	}
	switch {
	case a.OptionIndex != nil:
		return *a.OptionIndex
	case a.Numeric != nil:
		return *a.Numeric
	case a.Selections != "":
		return a.Selections
	default:
		return a.FreeText
	}
}

// EncodeSelections serializes option indices as an ordered, de-duplicated
// comma list.
func EncodeSelections(indices []int) string {
	if len(indices) == 0 {
		return ""
	}

	seen := make(map[int]bool, len(indices))
	ordered := make([]int, 0, len(indices))
	for _, idx := range indices {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		ordered = append(ordered, idx)
	}

	// Insertion sort; selection sets are tiny.
	for i := 1; i < len(ordered); i++ {
		v := ordered[i]
		j := i - 1
		for j >= 0 && ordered[j] > v {
			ordered[j+1] = ordered[j]
			j--
		}
		ordered[j+1] = v
	}

	parts := make([]string, len(ordered))
	for i, idx := range ordered {
		parts[i] = strconv.Itoa(idx)
	}
	return strings.Join(parts, ",")
}

// DecodeSelections parses a serialized multi-select value. Malformed entries
// are skipped.
func DecodeSelections(s string) []int {
	if s == "" {
		return nil
	}
	var indices []int
	for _, part := range strings.Split(s, ",") {
		idx, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			continue
		}
		indices = append(indices, idx)
	}
	return indices
}
