package validation

import (
	"fmt"

	"github.com/rendis/fieldflow/pkg/schema"
)

// validateSemantic performs semantic analysis on the survey definition.
// Checks: duplicate IDs and short names, section references, option
// integrity, selection bounds, skip-to wiring and static skip cycles.
func validateSemantic(def *schema.SurveyDefinition) *schema.ValidationResult {
	result := &schema.ValidationResult{}

	sections := make(map[string]schema.SectionDefinition, len(def.Sections))
	for i, s := range def.Sections {
		path := fmt.Sprintf("sections[%d]", i)
		if _, exists := sections[s.ID]; exists {
			result.AddError(path+".id", schema.ErrCodeDefinition,
				fmt.Sprintf("duplicate section id %q", s.ID))
			continue
		}
		sections[s.ID] = s
	}

	// Question IDs are globally unique; short names are unique within a
	// language so translated variants of one question can share a name.
	questionIDs := make(map[string]bool, len(def.Questions))
	shortNames := make(map[string]bool, len(def.Questions))
	byLangName := make(map[string]bool, len(def.Questions))

	for i, q := range def.Questions {
		path := fmt.Sprintf("questions[%d]", i)

		if questionIDs[q.ID] {
			result.AddError(path+".id", schema.ErrCodeDefinition,
				fmt.Sprintf("duplicate question id %q", q.ID))
		}
		questionIDs[q.ID] = true

		langKey := q.Language + "\x00" + q.ShortName
		if byLangName[langKey] {
			result.AddError(path+".short_name", schema.ErrCodeDefinition,
				fmt.Sprintf("duplicate short name %q for language %q", q.ShortName, q.Language))
		}
		byLangName[langKey] = true
		shortNames[q.ShortName] = true

		if _, ok := sections[q.SectionID]; !ok {
			result.AddWarning(path+".section_id", schema.ErrCodeDefinition,
				fmt.Sprintf("references undeclared section %q; treated as a plain survey section", q.SectionID))
		}

		validateQuestionOptions(&q, path, result)
		validateSelectionBounds(&q, path, result)
		validateSkipToWiring(&q, path, result)
	}

	// Skip-to targets resolve against short names; an unresolved target
	// falls through to sequential order at runtime, so warn rather than fail.
	for i, q := range def.Questions {
		if q.SkipToTarget == "" {
			continue
		}
		if !shortNames[q.SkipToTarget] {
			result.AddWarning(fmt.Sprintf("questions[%d].skip_to_target", i),
				schema.ErrCodeDefinition,
				fmt.Sprintf("target %q does not match any question short name; jump falls back to sequential order", q.SkipToTarget))
		}
	}

	detectSkipCycles(def, result)
	validateRoutingSections(def, sections, result)

	return result
}

// validateQuestionOptions checks option presence and index integrity per question type.
func validateQuestionOptions(q *schema.QuestionDefinition, path string, result *schema.ValidationResult) {
	switch q.Type {
	case schema.QuestionTypeSingleChoice, schema.QuestionTypeMultiSelect:
		if len(q.Options) == 0 {
			result.AddError(path+".options", schema.ErrCodeDefinition,
				fmt.Sprintf("%s question %q declares no options", q.Type, q.ShortName))
			return
		}
	default:
		if len(q.Options) > 0 {
			result.AddWarning(path+".options", schema.ErrCodeDefinition,
				fmt.Sprintf("%s question %q declares options that are never presented", q.Type, q.ShortName))
		}
		return
	}

	seen := make(map[int]bool, len(q.Options))
	for j, opt := range q.Options {
		if seen[opt.Index] {
			result.AddError(fmt.Sprintf("%s.options[%d].index", path, j),
				schema.ErrCodeDefinition,
				fmt.Sprintf("duplicate option index %d in question %q", opt.Index, q.ShortName))
		}
		seen[opt.Index] = true
	}
}

// validateSelectionBounds checks min/max selection sanity for multi-select questions.
func validateSelectionBounds(q *schema.QuestionDefinition, path string, result *schema.ValidationResult) {
	if q.Type != schema.QuestionTypeMultiSelect {
		if q.MinSelections != nil || q.MaxSelections != nil {
			result.AddWarning(path, schema.ErrCodeDefinition,
				fmt.Sprintf("selection bounds on %s question %q are ignored", q.Type, q.ShortName))
		}
		return
	}

	if q.MinSelections != nil && q.MaxSelections != nil && *q.MinSelections > *q.MaxSelections {
		result.AddError(path+".min_selections", schema.ErrCodeDefinition,
			fmt.Sprintf("min_selections (%d) exceeds max_selections (%d) in question %q",
				*q.MinSelections, *q.MaxSelections, q.ShortName))
	}
	if q.MinSelections != nil && *q.MinSelections > len(q.Options) {
		result.AddError(path+".min_selections", schema.ErrCodeDefinition,
			fmt.Sprintf("min_selections (%d) exceeds option count (%d) in question %q",
				*q.MinSelections, len(q.Options), q.ShortName))
	}
	if q.MaxSelections != nil && *q.MaxSelections > len(q.Options) && len(q.Options) > 0 {
		result.AddWarning(path+".max_selections", schema.ErrCodeDefinition,
			fmt.Sprintf("max_selections (%d) exceeds option count (%d) in question %q",
				*q.MaxSelections, len(q.Options), q.ShortName))
	}
}

// validateSkipToWiring checks that skip-to script and target are declared together.
func validateSkipToWiring(q *schema.QuestionDefinition, path string, result *schema.ValidationResult) {
	if q.SkipToScript != "" && q.SkipToTarget == "" {
		result.AddWarning(path+".skip_to_script", schema.ErrCodeDefinition,
			fmt.Sprintf("question %q has a skip_to_script but no skip_to_target; the script is never evaluated", q.ShortName))
	}
	if q.SkipToTarget != "" && q.SkipToScript == "" {
		result.AddWarning(path+".skip_to_target", schema.ErrCodeDefinition,
			fmt.Sprintf("question %q has a skip_to_target but no skip_to_script; the jump never fires", q.ShortName))
	}
}

// detectSkipCycles follows skip_to_target edges and warns on static cycles.
// The scripts gating each jump are not evaluated here, so a detected cycle
// may never fire at runtime; the session loop bounds hops regardless.
func detectSkipCycles(def *schema.SurveyDefinition, result *schema.ValidationResult) {
	targets := make(map[string]string, len(def.Questions))
	for _, q := range def.Questions {
		if q.SkipToScript != "" && q.SkipToTarget != "" {
			targets[q.ShortName] = q.SkipToTarget
		}
	}

	for start := range targets {
		visited := map[string]bool{start: true}
		current := start
		for {
			next, ok := targets[current]
			if !ok {
				break
			}
			if visited[next] {
				result.AddWarning("questions", schema.ErrCodeDefinition,
					fmt.Sprintf("skip-to chain starting at %q can revisit %q; runtime bounds the chain but the definition likely has a cycle", start, next))
				break
			}
			visited[next] = true
			current = next
		}
	}
}

// validateRoutingSections checks that declared routing requirements have
// matching sections to land on after the eligibility gate.
func validateRoutingSections(def *schema.SurveyDefinition, sections map[string]schema.SectionDefinition, result *schema.ValidationResult) {
	hasType := func(t schema.SectionType) bool {
		for _, s := range sections {
			if s.Type == t {
				return true
			}
		}
		return false
	}

	if def.EligibilityScript != "" && !hasType(schema.SectionTypeEligibility) {
		result.AddWarning("eligibility_script", schema.ErrCodeDefinition,
			"eligibility_script is declared but no section has type eligibility; the gate never fires")
	}
	if def.RequireConsent && !hasType(schema.SectionTypeConsent) {
		result.AddWarning("require_consent", schema.ErrCodeDefinition,
			"require_consent is set but no consent section is declared")
	}
}
