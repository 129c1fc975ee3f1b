package session

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/fieldflow/internal/expressions"
	"github.com/rendis/fieldflow/internal/streaming"
	"github.com/rendis/fieldflow/internal/survey"
	"github.com/rendis/fieldflow/pkg/schema"
)

// captureHub records published events for assertions.
type captureHub struct {
	events []streaming.StreamEvent
}

func (h *captureHub) Publish(_ context.Context, e streaming.StreamEvent) error {
	h.events = append(h.events, e)
	return nil
}

func (h *captureHub) Subscribe(context.Context, streaming.EventFilter) (<-chan streaming.StreamEvent, func(), error) {
	return nil, func() {}, nil
}

func (h *captureHub) types() []string {
	out := make([]string, len(h.events))
	for i, e := range h.events {
		out[i] = e.EventType
	}
	return out
}

func intPtr(n int) *int { return &n }

// screeningDefinition is a survey with an eligibility screener, a multi-select
// with bounds, a pre-script skip and a conclusion section.
func screeningDefinition() *schema.SurveyDefinition {
	return &schema.SurveyDefinition{
		ID:                "flu-screening",
		Dialect:           schema.DialectExpr,
		EligibilityScript: "age >= 18",
		Sections: []schema.SectionDefinition{
			{ID: "scr", Name: "Screening", Type: schema.SectionTypeEligibility},
			{ID: "main", Name: "Survey", Type: schema.SectionTypeSurvey},
			{ID: "concl", Name: "Conclusion", Type: schema.SectionTypeConclusion},
		},
		Questions: []schema.QuestionDefinition{
			{
				ID: "q-age", ShortName: "age", Type: schema.QuestionTypeNumeric,
				Text: "How old are you?", SectionID: "scr",
				ValidationScript:    "age >= 0 && age <= 120",
				ValidationErrorText: "Age must be between 0 and 120",
			},
			{
				ID: "q-smoker", ShortName: "smoker", Type: schema.QuestionTypeSingleChoice,
				Text: "Do you smoke?", SectionID: "scr",
				Options: []schema.OptionDefinition{{Index: 0, Text: "No"}, {Index: 1, Text: "Yes"}},
			},
			{
				ID: "q-symptoms", ShortName: "symptoms", Type: schema.QuestionTypeMultiSelect,
				Text: "Which symptoms do you have?", SectionID: "main",
				MinSelections: intPtr(2), MaxSelections: intPtr(3),
				ValidationErrorText: "Select 2 to 3 symptoms",
				Options: []schema.OptionDefinition{
					{Index: 0, Text: "Fever"}, {Index: 1, Text: "Cough"},
					{Index: 2, Text: "Fatigue"}, {Index: 3, Text: "Headache"},
				},
			},
			{
				ID: "q-packs", ShortName: "packs", Type: schema.QuestionTypeNumeric,
				Text: "How many packs per day?", SectionID: "main",
				PreScript: "smoker == 0",
			},
			{
				ID: "q-notes", ShortName: "notes", Type: schema.QuestionTypeFreeText,
				Text: "Anything else?", SectionID: "main",
			},
			{
				ID: "q-rating", ShortName: "rating", Type: schema.QuestionTypeSingleChoice,
				Text: "Rate this interview", SectionID: "concl",
				Options: []schema.OptionDefinition{
					{Index: 0, Text: "Bad"}, {Index: 1, Text: "Fine"}, {Index: 2, Text: "Great"},
				},
			},
		},
	}
}

func newTestSession(t *testing.T, def *schema.SurveyDefinition) (*Session, *captureHub) {
	t.Helper()
	g, err := survey.NewGraph(def, "")
	require.NoError(t, err)
	hub := &captureHub{}
	s := New("sess-1", Deps{
		Graph:     g,
		Evaluator: expressions.NewExprEngine(),
		Hub:       hub,
	})
	return s, hub
}

// walkToSymptoms answers the screener as an eligible non-smoker and advances
// onto the symptoms question.
func walkToSymptoms(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 0))
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, "symptoms", s.Current().Question.ShortName)
}

// --- Start and sequential flow ---

func TestSession_NoQuestionBeforeStart(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())

	assert.Equal(t, schema.SessionStatusNotStarted, s.Status())
	assert.Nil(t, s.Current())
}

func TestSession_AdvanceExposesFirstQuestion(t *testing.T) {
	s, hub := newTestSession(t, screeningDefinition())

	require.NoError(t, s.Advance(context.Background()))

	assert.Equal(t, schema.SessionStatusActive, s.Status())
	view := s.Current()
	require.NotNil(t, view)
	assert.Equal(t, 0, view.Index)
	assert.Equal(t, "age", view.Question.ShortName)
	assert.Contains(t, hub.types(), schema.EventQuestionChanged)
}

func TestSession_AnswersAlignWithQuestions(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())

	answers := s.Answers()
	require.Len(t, answers, 6)
	for i, a := range answers {
		assert.Equal(t, i, a.Position)
		assert.False(t, a.Answered)
	}
}

func TestSession_FullWalkthrough(t *testing.T) {
	s, hub := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	walkToSymptoms(t, s)
	require.NoError(t, s.ToggleSelection(ctx, 0))
	require.NoError(t, s.ToggleSelection(ctx, 1))
	require.NoError(t, s.Advance(ctx))

	// packs is skipped for non-smokers.
	require.Equal(t, "notes", s.Current().Question.ShortName)
	require.NoError(t, s.RecordFreeText(ctx, "all good"))
	require.NoError(t, s.Advance(ctx))

	require.Equal(t, "rating", s.Current().Question.ShortName)
	require.NoError(t, s.RecordSelection(ctx, 2))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, schema.SessionStatusCompleted, s.Status())
	assert.Nil(t, s.Current())
	assert.Contains(t, hub.types(), schema.EventSessionCompleted)

	// Completed is terminal; advancing again is a silent no-op.
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, schema.SessionStatusCompleted, s.Status())
}

// --- Validation ---

func TestSession_ValidationScriptBlocksAdvance(t *testing.T) {
	s, hub := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, -5))

	err := s.Advance(ctx)
	require.Error(t, err)
	ferr, ok := err.(*schema.FieldflowError)
	require.True(t, ok)
	assert.Equal(t, schema.ErrCodeValidation, ferr.Code)
	assert.Equal(t, "Age must be between 0 and 120", ferr.Message)
	assert.Equal(t, "age", ferr.Question)
	assert.True(t, ferr.IsBlocking())

	// Position unchanged; a corrected answer advances.
	assert.Equal(t, 0, s.Current().Index)
	assert.Contains(t, hub.types(), schema.EventValidationFailed)

	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, "smoker", s.Current().Question.ShortName)
}

func TestSession_ValidationDefaultErrorText(t *testing.T) {
	def := screeningDefinition()
	def.Questions[0].ValidationErrorText = ""
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, -5))

	err := s.Advance(ctx)
	require.Error(t, err)
	assert.Equal(t, schema.DefaultValidationErrorText, err.(*schema.FieldflowError).Message)
}

func TestSession_ValidationScriptFailsOpen(t *testing.T) {
	def := screeningDefinition()
	def.Questions[0].ValidationScript = "age >=" // does not compile
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, -5))

	// A broken script never blocks the interview.
	require.NoError(t, s.Advance(ctx))
	assert.Equal(t, "smoker", s.Current().Question.ShortName)
}

// --- Multi-select ---

func TestSession_MultiSelectMinBoundBlocksAdvance(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s)

	require.NoError(t, s.ToggleSelection(ctx, 1))

	err := s.Advance(ctx)
	require.Error(t, err)
	ferr := err.(*schema.FieldflowError)
	assert.Equal(t, schema.ErrCodeSelection, ferr.Code)
	assert.Equal(t, "Select 2 to 3 symptoms", ferr.Message)

	require.NoError(t, s.ToggleSelection(ctx, 2))
	require.NoError(t, s.Advance(ctx))
}

func TestSession_MultiSelectMaxEnforcedAtToggleTime(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s)

	require.NoError(t, s.ToggleSelection(ctx, 0))
	require.NoError(t, s.ToggleSelection(ctx, 1))
	require.NoError(t, s.ToggleSelection(ctx, 2))

	err := s.ToggleSelection(ctx, 3)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeSelection, err.(*schema.FieldflowError).Code)
	assert.Equal(t, 3, s.Current().Answer.SelectionCount())

	// Toggling off at max is always allowed.
	require.NoError(t, s.ToggleSelection(ctx, 1))
	assert.Equal(t, 2, s.Current().Answer.SelectionCount())
}

func TestSession_ToggleReplacesAnswerObject(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s)

	before := s.Current().Answer
	require.NoError(t, s.ToggleSelection(ctx, 0))
	after := s.Current().Answer

	assert.NotSame(t, before, after)
	assert.Equal(t, "0", after.Selections)
}

func TestSession_RecordTypeMismatch(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx)) // on numeric age question

	err := s.RecordSelection(ctx, 0)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, err.(*schema.FieldflowError).Code)
}

// --- Pre-script skip and history ---

func TestSession_PreScriptSkipsQuestion(t *testing.T) {
	s, hub := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s)

	require.NoError(t, s.ToggleSelection(ctx, 0))
	require.NoError(t, s.ToggleSelection(ctx, 1))
	require.NoError(t, s.Advance(ctx))

	// Non-smoker: packs (index 3) is skipped, notes (index 4) is exposed.
	assert.Equal(t, 4, s.Current().Index)
	assert.Contains(t, hub.types(), schema.EventQuestionSkipped)
}

func TestSession_SmokerSeesSkippableQuestion(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 1)) // smoker: Yes
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.ToggleSelection(ctx, 0))
	require.NoError(t, s.ToggleSelection(ctx, 1))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, "packs", s.Current().Question.ShortName)
}

func TestSession_RetreatFollowsHistory(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, 1, s.Current().Index)

	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, 0, s.Current().Index)

	// At the first question with an empty stack, retreat is a no-op.
	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, 0, s.Current().Index)
}

func TestSession_AdvanceRetreatSymmetry(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s)

	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, "smoker", s.Current().Question.ShortName)
	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, "age", s.Current().Question.ShortName)
}

func TestSession_RetreatEmptyHistoryFallback(t *testing.T) {
	def := screeningDefinition()
	def.EligibilityScript = ""
	def.Questions[1].PreScript = "true" // smoker always skipped
	g, err := survey.NewGraph(def, "")
	require.NoError(t, err)

	// A restored session has no history stack to pop.
	s := Restore("sess-restored", Deps{Graph: g, Evaluator: expressions.NewExprEngine()},
		State{Status: schema.SessionStatusActive, CurrentIndex: 2, CurrentSection: "main"}, nil)

	require.NoError(t, s.Retreat(context.Background()))
	// The fallback decrements past the always-skipped question.
	assert.Equal(t, 0, s.Current().Index)
}

// --- Skip-to jumps ---

func TestSession_SkipToJump(t *testing.T) {
	def := screeningDefinition()
	def.EligibilityScript = ""
	def.Questions[0].SkipToScript = "age >= 65"
	def.Questions[0].SkipToTarget = "notes"
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 70))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, "notes", s.Current().Question.ShortName)

	// The jump records a single history entry; one retreat returns to the origin.
	require.NoError(t, s.Retreat(ctx))
	assert.Equal(t, "age", s.Current().Question.ShortName)
}

func TestSession_SkipToNotFiringAdvancesSequentially(t *testing.T) {
	def := screeningDefinition()
	def.Questions[0].SkipToScript = "age >= 65"
	def.Questions[0].SkipToTarget = "notes"
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, "smoker", s.Current().Question.ShortName)
}

func TestSession_SkipToUnresolvedTargetFallsThrough(t *testing.T) {
	def := screeningDefinition()
	def.Questions[0].SkipToScript = "age >= 65"
	def.Questions[0].SkipToTarget = "nonexistent"
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 70))
	require.NoError(t, s.Advance(ctx))

	// Unresolvable target: sequential order, loud in logs, never fatal.
	assert.Equal(t, "smoker", s.Current().Question.ShortName)
}

func TestSession_AllQuestionsSkippedCompletes(t *testing.T) {
	def := &schema.SurveyDefinition{
		ID:       "all-skipped",
		Sections: []schema.SectionDefinition{{ID: "s", Type: schema.SectionTypeSurvey}},
		Questions: []schema.QuestionDefinition{
			{ID: "a", ShortName: "a", Type: schema.QuestionTypeFreeText, Text: "a", SectionID: "s",
				PreScript: "true"},
			{ID: "b", ShortName: "b", Type: schema.QuestionTypeFreeText, Text: "b", SectionID: "s",
				PreScript: "true"},
		},
	}
	s, _ := newTestSession(t, def)

	require.NoError(t, s.Advance(context.Background()))

	// The skip chain runs off the end of the sequence and completes.
	assert.Equal(t, schema.SessionStatusCompleted, s.Status())
	assert.Nil(t, s.Current())
}

func TestSession_JumpTo(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s)

	require.NoError(t, s.JumpTo(ctx, "notes"))
	assert.Equal(t, "notes", s.Current().Question.ShortName)

	err := s.JumpTo(ctx, "unknown")
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeNotFound, err.(*schema.FieldflowError).Code)
}

func TestSession_JumpToSkippedDestinationChainsForward(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s) // non-smoker: packs pre-script skips

	require.NoError(t, s.JumpTo(ctx, "packs"))
	assert.Equal(t, "notes", s.Current().Question.ShortName)
}

// --- Eligibility gate ---

func TestSession_IneligibleRespondentPausesForRejection(t *testing.T) {
	s, hub := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 17))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 0))
	require.NoError(t, s.Advance(ctx)) // crosses out of the eligibility section

	assert.Equal(t, schema.SessionStatusAwaitingRouting, s.Status())
	assert.Equal(t, schema.EligibilityIneligible, s.Eligibility())
	assert.Equal(t, schema.RoutingRejection, s.PendingRouting())
	assert.Nil(t, s.Current())
	assert.Contains(t, hub.types(), schema.EventEligibilityDetermined)

	// Advancing while routing is pending is a conflict.
	err := s.Advance(ctx)
	require.Error(t, err)
	assert.Equal(t, schema.ErrCodeConflict, err.(*schema.FieldflowError).Code)
}

func TestSession_ResumeAfterRouting(t *testing.T) {
	s, hub := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 17))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 0))
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, schema.SessionStatusAwaitingRouting, s.Status())

	require.NoError(t, s.Resume(ctx))

	assert.Equal(t, schema.SessionStatusActive, s.Status())
	assert.Equal(t, schema.RoutingNone, s.PendingRouting())
	assert.Equal(t, "symptoms", s.Current().Question.ShortName)
	assert.Contains(t, hub.types(), schema.EventRoutingAcknowledged)

	// Resume without a pending decision is a conflict.
	err := s.Resume(ctx)
	require.Error(t, err)
}

func TestSession_EligibleWithConsentRouting(t *testing.T) {
	def := screeningDefinition()
	def.RequireConsent = true
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 0))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, schema.EligibilityEligible, s.Eligibility())
	assert.Equal(t, schema.RoutingConsent, s.PendingRouting())
	assert.Equal(t, schema.SessionStatusAwaitingRouting, s.Status())
}

func TestSession_EligibleWithSampleRouting(t *testing.T) {
	def := screeningDefinition()
	def.RequireSample = true
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 0))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, schema.RoutingSampleCollection, s.PendingRouting())
}

func TestSession_EligibleWithoutRoutingContinuesSeamlessly(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 0))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, schema.SessionStatusActive, s.Status())
	assert.Equal(t, schema.EligibilityEligible, s.Eligibility())
	assert.Equal(t, "symptoms", s.Current().Question.ShortName)
}

func TestSession_EligibilityScriptFailsOpen(t *testing.T) {
	def := screeningDefinition()
	def.EligibilityScript = "age >=" // does not compile
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 17))
	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordSelection(ctx, 0))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, schema.EligibilityEligible, s.Eligibility())
	assert.Equal(t, schema.SessionStatusActive, s.Status())
}

func TestSession_GateReevaluatedPerCrossing(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s) // first crossing: eligible, no routing

	// Walk back into the screener, change the age, cross again.
	require.NoError(t, s.JumpTo(ctx, "age"))
	require.NoError(t, s.RecordNumeric(ctx, 17))
	require.NoError(t, s.Advance(ctx))
	require.Equal(t, "smoker", s.Current().Question.ShortName)
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, schema.EligibilityIneligible, s.Eligibility())
	assert.Equal(t, schema.RoutingRejection, s.PendingRouting())
}

// --- Directives and interpolation ---

func TestSession_DirectivePassThrough(t *testing.T) {
	def := screeningDefinition()
	def.EligibilityScript = ""
	def.Questions[1].PreScript = `"show_warning"`
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 30))
	require.NoError(t, s.Advance(ctx))

	view := s.Current()
	require.Equal(t, "smoker", view.Question.ShortName)
	assert.Equal(t, "show_warning", view.Directive)
}

func TestSession_InterpolatedQuestionText(t *testing.T) {
	def := screeningDefinition()
	def.Questions[1].Text = "At ${{answers.age}}, do you smoke?"
	s, _ := newTestSession(t, def)
	ctx := context.Background()

	require.NoError(t, s.Advance(ctx))
	require.NoError(t, s.RecordNumeric(ctx, 36))
	require.NoError(t, s.Advance(ctx))

	assert.Equal(t, "At 36, do you smoke?", s.Current().Text)
}

// --- Snapshot and restore ---

func TestSession_SnapshotRestoreRoundTrip(t *testing.T) {
	s, _ := newTestSession(t, screeningDefinition())
	ctx := context.Background()
	walkToSymptoms(t, s)
	require.NoError(t, s.ToggleSelection(ctx, 0))
	require.NoError(t, s.ToggleSelection(ctx, 2))

	snap := s.Snapshot()
	g, err := survey.NewGraph(screeningDefinition(), "")
	require.NoError(t, err)

	restored := Restore("sess-1", Deps{Graph: g, Evaluator: expressions.NewExprEngine()},
		snap, s.Answers())

	assert.Equal(t, s.Status(), restored.Status())
	require.NotNil(t, restored.Current())
	assert.Equal(t, "symptoms", restored.Current().Question.ShortName)
	assert.Equal(t, "0,2", restored.Current().Answer.Selections)

	// Retreat works identically after restore: the history survived.
	require.NoError(t, restored.Retreat(ctx))
	assert.Equal(t, "smoker", restored.Current().Question.ShortName)
}

func TestSession_RestorePadsShortAnswerSet(t *testing.T) {
	g, err := survey.NewGraph(screeningDefinition(), "")
	require.NoError(t, err)

	partial := []*schema.Answer{schema.EmptyAnswer("q-age", 0)}
	partial[0].SetNumeric(30)

	s := Restore("sess-1", Deps{Graph: g, Evaluator: expressions.NewExprEngine()},
		State{Status: schema.SessionStatusActive, CurrentIndex: 1, CurrentSection: "scr"}, partial)

	require.Len(t, s.Answers(), 6)
	assert.True(t, s.Answers()[0].Answered)
	assert.False(t, s.Answers()[2].Answered)
}

// --- Language variants ---

func TestSession_LanguageFilteredGraph(t *testing.T) {
	def := screeningDefinition()
	def.EligibilityScript = ""
	def.Questions = append(def.Questions, schema.QuestionDefinition{
		ID: "q-age-es", ShortName: "age", Language: "es", Type: schema.QuestionTypeNumeric,
		Text: "¿Cuántos años tienes?", SectionID: "scr",
	})
	for i := range def.Questions[:6] {
		def.Questions[i].Language = "en"
	}

	g, err := survey.NewGraph(def, "es")
	require.NoError(t, err)
	assert.Equal(t, 1, g.Len())
	assert.Equal(t, "¿Cuántos años tienes?", g.Question(0).Text)
}
