package schema

// QuestionType classifies how a question is answered.
type QuestionType string

const (
	QuestionTypeSingleChoice QuestionType = "single_choice"
	QuestionTypeNumeric      QuestionType = "numeric"
	QuestionTypeFreeText     QuestionType = "free_text"
	QuestionTypeMultiSelect  QuestionType = "multi_select"
)

// SectionType classifies a section's role in the flow. Crossing out of an
// eligibility section triggers the eligibility gate.
type SectionType string

const (
	SectionTypeEligibility SectionType = "eligibility"
	SectionTypeSurvey      SectionType = "survey"
	SectionTypeConsent     SectionType = "consent"
	SectionTypeTesting     SectionType = "testing"
	SectionTypeConclusion  SectionType = "conclusion"
)

// ScriptDialect selects which expression engine evaluates a survey's scripts.
type ScriptDialect string

const (
	DialectExpr ScriptDialect = "expr"
	DialectCEL  ScriptDialect = "cel"
	DialectJQ   ScriptDialect = "jq"
)

// SurveyDefinition is the full authored survey: sections, questions, options
// and the survey-level eligibility script. Immutable once loaded for a session.
type SurveyDefinition struct {
	ID                string               `json:"id,omitempty" yaml:"id,omitempty"`
	Name              string               `json:"name,omitempty" yaml:"name,omitempty"`
	Dialect           ScriptDialect        `json:"dialect,omitempty" yaml:"dialect,omitempty"`
	EligibilityScript string               `json:"eligibility_script,omitempty" yaml:"eligibility_script,omitempty"`
	RequireConsent    bool                 `json:"require_consent,omitempty" yaml:"require_consent,omitempty"`
	RequireSample     bool                 `json:"require_sample,omitempty" yaml:"require_sample,omitempty"`
	Sections          []SectionDefinition  `json:"sections" yaml:"sections"`
	Questions         []QuestionDefinition `json:"questions" yaml:"questions"`
}

// SectionDefinition groups questions by section_id. Questions referencing the
// same section need not be contiguous in the sequence.
type SectionDefinition struct {
	ID   string      `json:"id" yaml:"id"`
	Name string      `json:"name,omitempty" yaml:"name,omitempty"`
	Type SectionType `json:"type" yaml:"type"`
}

// QuestionDefinition is a single authored question. ShortName doubles as the
// context variable name and as a skip-to jump target.
type QuestionDefinition struct {
	ID                  string             `json:"id" yaml:"id"`
	ShortName           string             `json:"short_name" yaml:"short_name"`
	Language            string             `json:"language,omitempty" yaml:"language,omitempty"`
	Type                QuestionType       `json:"type" yaml:"type"`
	Text                string             `json:"text" yaml:"text"`
	SectionID           string             `json:"section_id" yaml:"section_id"`
	PreScript           string             `json:"pre_script,omitempty" yaml:"pre_script,omitempty"`
	ValidationScript    string             `json:"validation_script,omitempty" yaml:"validation_script,omitempty"`
	ValidationErrorText string             `json:"validation_error_text,omitempty" yaml:"validation_error_text,omitempty"`
	SkipToScript        string             `json:"skip_to_script,omitempty" yaml:"skip_to_script,omitempty"`
	SkipToTarget        string             `json:"skip_to_target,omitempty" yaml:"skip_to_target,omitempty"`
	MinSelections       *int               `json:"min_selections,omitempty" yaml:"min_selections,omitempty"`
	MaxSelections       *int               `json:"max_selections,omitempty" yaml:"max_selections,omitempty"`
	Options             []OptionDefinition `json:"options,omitempty" yaml:"options,omitempty"`
}

// OptionDefinition is one selectable choice. The index, not the text, is the
// canonical answer value.
type OptionDefinition struct {
	Index int    `json:"index" yaml:"index"`
	Text  string `json:"text" yaml:"text"`
}

// DefaultValidationErrorText is surfaced when a validation script rejects an
// answer and the question declares no custom error text.
const DefaultValidationErrorText = "Invalid Answer"
