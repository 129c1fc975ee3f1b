package session

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rendis/fieldflow/internal/expressions"
	"github.com/rendis/fieldflow/internal/logging"
	"github.com/rendis/fieldflow/internal/streaming"
	"github.com/rendis/fieldflow/internal/survey"
	"github.com/rendis/fieldflow/pkg/schema"
)

// AnswerWriter receives answer mutations for persistence. The Persister
// implements it asynchronously; navigation never waits on it.
type AnswerWriter interface {
	Write(sessionID string, answer *schema.Answer)
}

// Deps holds the collaborators for creating a Session.
type Deps struct {
	Graph     *survey.Graph
	Evaluator expressions.Engine
	Writer    AnswerWriter
	Hub       streaming.EventHub
	FSM       *FSM
	Logger    *slog.Logger
}

// Session is one in-progress traversal of the question sequence by one
// respondent. It is the navigation state machine of the engine: it holds the
// current position, the back-navigation history stack, the current section,
// and drives advance/retreat/jump using the graph and the script evaluator.
//
// A Session is owned by a single logical caller and must not be used
// concurrently.
type Session struct {
	id    string
	graph *survey.Graph
	eval  expressions.Engine

	writer AnswerWriter
	hub    streaming.EventHub
	fsm    *FSM
	logger *slog.Logger

	answers []*schema.Answer

	status         schema.SessionStatus
	current        int // -1 before start, len(questions) once completed
	history        []int
	currentSection string
	sectionType    schema.SectionType
	eligibility    schema.EligibilityStatus
	pendingRouting schema.PendingRouting
	lastDirective  string
}

// View is the current-question projection exposed to the caller.
type View struct {
	Index     int
	Question  *schema.QuestionDefinition
	Options   []schema.OptionDefinition
	Answer    *schema.Answer
	Text      string // question text with ${{answers.*}} references resolved
	Directive string // opaque pre-script pass-through, "" if none
}

// State is the persistable snapshot of session navigation state.
type State struct {
	Status         schema.SessionStatus
	CurrentIndex   int
	History        []int
	CurrentSection string
	Eligibility    schema.EligibilityStatus
	PendingRouting schema.PendingRouting
}

// New creates a fresh session: answers pre-created empty for every question,
// position -1, status not_started.
func New(id string, deps Deps) *Session {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	fsm := deps.FSM
	if fsm == nil {
		fsm = NewFSM(nil)
	}
	return &Session{
		id:             id,
		graph:          deps.Graph,
		eval:           deps.Evaluator,
		writer:         deps.Writer,
		hub:            deps.Hub,
		fsm:            fsm,
		logger:         logger,
		answers:        deps.Graph.EmptyAnswers(),
		status:         schema.SessionStatusNotStarted,
		current:        -1,
		eligibility:    schema.EligibilityUndetermined,
		pendingRouting: schema.RoutingNone,
	}
}

// Restore rebuilds a session from a persisted snapshot and answer set.
// A snapshot with an empty history exercises the retreat fallback path.
// Answers shorter than the question sequence are padded with empty
// placeholders so the answers/questions alignment invariant holds.
func Restore(id string, deps Deps, state State, answers []*schema.Answer) *Session {
	s := New(id, deps)
	for i := 0; i < s.graph.Len() && i < len(answers); i++ {
		if answers[i] != nil {
			s.answers[i] = answers[i]
		}
	}
	s.status = state.Status
	s.current = state.CurrentIndex
	s.history = append([]int(nil), state.History...)
	s.currentSection = state.CurrentSection
	if state.CurrentSection != "" && s.current >= 0 && s.current < s.graph.Len() {
		s.sectionType = s.graph.SectionOf(s.current).Type
	}
	if state.Eligibility != "" {
		s.eligibility = state.Eligibility
	}
	if state.PendingRouting != "" {
		s.pendingRouting = state.PendingRouting
	}
	return s
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

// Status returns the session lifecycle status.
func (s *Session) Status() schema.SessionStatus { return s.status }

// Eligibility returns the eligibility gate outcome.
func (s *Session) Eligibility() schema.EligibilityStatus { return s.eligibility }

// PendingRouting returns the routing decision awaiting acknowledgement.
func (s *Session) PendingRouting() schema.PendingRouting { return s.pendingRouting }

// Answers returns the session's answer set. The slice is the session's own;
// callers must not mutate it. All mutation goes through the Record methods.
func (s *Session) Answers() []*schema.Answer { return s.answers }

// Snapshot returns the persistable navigation state.
func (s *Session) Snapshot() State {
	return State{
		Status:         s.status,
		CurrentIndex:   s.current,
		History:        append([]int(nil), s.history...),
		CurrentSection: s.currentSection,
		Eligibility:    s.eligibility,
		PendingRouting: s.pendingRouting,
	}
}

// Current returns the current-question view, or nil when no question is
// exposed (before the first advance, while routing is pending, after
// completion).
func (s *Session) Current() *View {
	if s.status != schema.SessionStatusActive || s.current < 0 || s.current >= s.graph.Len() {
		return nil
	}
	q := s.graph.Question(s.current)
	text := q.Text
	if expressions.HasInterpolation(text) {
		text = expressions.Interpolate(text, survey.BuildContext(s.graph, s.answers))
	}
	return &View{
		Index:     s.current,
		Question:  q,
		Options:   s.graph.Options(s.current),
		Answer:    s.answers[s.current],
		Text:      text,
		Directive: s.lastDirective,
	}
}

// --- Answer recording ---

// RecordSelection overwrites the current answer with a single-choice
// selection by option index. Does not advance.
func (s *Session) RecordSelection(ctx context.Context, optionIndex int) error {
	q, err := s.answerable(schema.QuestionTypeSingleChoice)
	if err != nil {
		return err
	}
	opt := s.graph.Option(s.current, optionIndex)
	if opt == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "option %d not found", optionIndex).
			WithQuestion(q.ShortName)
	}
	s.answers[s.current].SetSelection(opt.Index, opt.Text)
	s.persistCurrent(ctx)
	return nil
}

// RecordNumeric overwrites the current answer with a numeric value.
func (s *Session) RecordNumeric(ctx context.Context, value float64) error {
	if _, err := s.answerable(schema.QuestionTypeNumeric); err != nil {
		return err
	}
	s.answers[s.current].SetNumeric(value)
	s.persistCurrent(ctx)
	return nil
}

// RecordFreeText overwrites the current answer with free text.
func (s *Session) RecordFreeText(ctx context.Context, text string) error {
	if _, err := s.answerable(schema.QuestionTypeFreeText); err != nil {
		return err
	}
	s.answers[s.current].SetFreeText(text)
	s.persistCurrent(ctx)
	return nil
}

// ToggleSelection adds or removes an option from the current multi-select
// answer. Toggling on beyond maxSelections is rejected here, at toggle time.
// Each toggle produces a new Answer value object so observers comparing
// pointers see the change.
func (s *Session) ToggleSelection(ctx context.Context, optionIndex int) error {
	q, err := s.answerable(schema.QuestionTypeMultiSelect)
	if err != nil {
		return err
	}
	if s.graph.Option(s.current, optionIndex) == nil {
		return schema.NewErrorf(schema.ErrCodeNotFound, "option %d not found", optionIndex).
			WithQuestion(q.ShortName)
	}

	max := 0
	if q.MaxSelections != nil {
		max = *q.MaxSelections
	}
	next, ok := s.answers[s.current].ToggleIndex(optionIndex, max)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeSelection,
			"at most %d selections allowed", max).WithQuestion(q.ShortName)
	}
	s.answers[s.current] = next
	s.persistCurrent(ctx)
	return nil
}

// answerable verifies a question of the given type is currently exposed.
func (s *Session) answerable(t schema.QuestionType) (*schema.QuestionDefinition, error) {
	if s.status != schema.SessionStatusActive || s.current < 0 || s.current >= s.graph.Len() {
		return nil, schema.NewError(schema.ErrCodeConflict, "no question is currently exposed")
	}
	q := s.graph.Question(s.current)
	if q.Type != t {
		return nil, schema.NewErrorf(schema.ErrCodeConflict,
			"question is %s, not %s", q.Type, t).WithQuestion(q.ShortName)
	}
	return q, nil
}

// persistCurrent dispatches the current answer to the background writer and
// notifies observers. Navigation does not wait for the write: a crash between
// the mutation and the write can lose that one answer, which is acceptable
// because answers are overwritten idempotently on retry.
func (s *Session) persistCurrent(ctx context.Context) {
	if s.writer != nil {
		s.writer.Write(s.id, s.answers[s.current])
	}
	s.publish(ctx, schema.EventAnswerRecorded, map[string]any{
		"position": s.current,
	})
}

// --- Navigation ---

// Advance validates the current answer and moves to the next question,
// honoring skip-to redirects, pre-script skips and section-transition
// eligibility gating. A non-nil return is always a blocking, user-visible
// constraint (selection bounds or validation text); evaluator failures never
// block (fail open).
func (s *Session) Advance(ctx context.Context) error {
	ctx = logging.WithSessionID(ctx, s.id)

	switch s.status {
	case schema.SessionStatusCompleted:
		return nil // terminal; advancing is a no-op
	case schema.SessionStatusAwaitingRouting:
		return schema.NewError(schema.ErrCodeConflict,
			"routing decision pending; call Resume first")
	}

	// Validation applies only to the question being answered, never to
	// questions traversed by a skip chain.
	if s.current >= 0 && s.current < s.graph.Len() {
		if err := s.validateCurrent(ctx); err != nil {
			return err
		}
	}

	if s.status == schema.SessionStatusNotStarted {
		if err := s.transition(ctx, schema.SessionStatusActive); err != nil {
			return err
		}
	}

	return s.advanceFrom(ctx, true)
}

// advanceFrom runs the advance loop: record origin in history, check
// skip-to, step forward, process section boundaries and chase pre-script
// skips. pushOrigin is false when resuming onto an already-resolved position.
//
// The recursive skip chain of the flow design is an explicit loop with a
// visited guard: a cycle or runaway chain stops at the last resolved question
// with a diagnostic instead of looping forever.
func (s *Session) advanceFrom(ctx context.Context, pushOrigin bool) error {
	visited := make(map[int]bool)

	for hops := 0; ; hops++ {
		if hops > s.graph.Len() || (s.current >= 0 && visited[s.current]) {
			logging.LogWith(ctx, s.logger).Warn("skip chain guard tripped",
				slog.Int("position", s.current), slog.Int("hops", hops))
			break
		}
		if s.current >= 0 {
			visited[s.current] = true
		}

		if pushOrigin && s.current >= 0 {
			// Record the origin for back-navigation. A skip-to jump that
			// follows does not push again: this entry is the one.
			s.history = append(s.history, s.current)

			if target, ok := s.resolveSkipTo(ctx); ok {
				s.jumpInternal(ctx, target)
				return nil
			}
		}
		pushOrigin = true

		s.current++
		if s.current >= s.graph.Len() {
			return s.complete(ctx)
		}

		if paused := s.checkSectionTransition(ctx); paused {
			// Eligibility routing pending; the new question is resolved but
			// not exposed until the caller acknowledges and resumes.
			return nil
		}

		outcome := s.evaluatePreScript(ctx)
		if outcome.Kind == OutcomeSkip {
			s.publish(ctx, schema.EventQuestionSkipped, map[string]any{
				"position": s.current,
			})
			continue // repeat for the now-current question
		}
		s.lastDirective = outcome.Directive
		break
	}

	s.publishQuestionChanged(ctx)
	return nil
}

// Retreat walks one step backward. The history stack is authoritative: the
// popped position was already resolved, so pre-script skip logic is not
// re-run. With an empty stack (a session restored without history) it falls
// back to a plain decrement with a pre-script check, recursing backward over
// skipped questions. Retreating at position 0 with no history is a no-op.
func (s *Session) Retreat(ctx context.Context) error {
	ctx = logging.WithSessionID(ctx, s.id)

	if s.status != schema.SessionStatusActive {
		return nil
	}

	if n := len(s.history); n > 0 {
		s.current = s.history[n-1]
		s.history = s.history[:n-1]
		s.syncSection()
		s.lastDirective = ""
		s.publishQuestionChanged(ctx)
		return nil
	}

	if s.current <= 0 {
		return nil
	}

	// Restored-session fallback: no history to pop.
	for s.current > 0 {
		s.current--
		if s.current == 0 {
			break
		}
		if outcome := s.evaluatePreScript(ctx); outcome.Kind != OutcomeSkip {
			break
		}
	}
	s.syncSection()
	s.lastDirective = ""
	s.publishQuestionChanged(ctx)
	return nil
}

// JumpTo resolves a question by shortName and makes it current. Used by
// explicit external navigation (e.g. resuming at a bookmark); the pre-script
// skip check always re-runs on the destination, chaining forward on skip.
func (s *Session) JumpTo(ctx context.Context, shortName string) error {
	target, ok := s.graph.IndexOf(shortName)
	if !ok {
		return schema.NewErrorf(schema.ErrCodeNotFound, "question %q not found", shortName)
	}
	return s.JumpToIndex(ctx, target)
}

// JumpToIndex makes the question at the given position current.
func (s *Session) JumpToIndex(ctx context.Context, target int) error {
	ctx = logging.WithSessionID(ctx, s.id)

	if target < 0 || target >= s.graph.Len() {
		return schema.NewErrorf(schema.ErrCodeNotFound, "position %d out of range", target)
	}
	if s.status == schema.SessionStatusCompleted {
		return schema.NewError(schema.ErrCodeConflict, "session is completed")
	}
	if s.status == schema.SessionStatusNotStarted {
		if err := s.transition(ctx, schema.SessionStatusActive); err != nil {
			return err
		}
	}

	s.current = target
	s.syncSection()
	s.lastDirective = ""

	outcome := s.evaluatePreScript(ctx)
	if outcome.Kind == OutcomeSkip {
		// Destination is skipped: chain forward from it without recording
		// the skipped destination as a back-navigation origin.
		s.current = target
		return s.advanceFrom(ctx, false)
	}
	s.lastDirective = outcome.Directive
	s.publishQuestionChanged(ctx)
	return nil
}

// Resume acknowledges a pending routing decision and re-exposes the flow.
// The caller decides what the routing meant (consent captured, sample
// collected, rejection shown); the engine only resumes forward navigation at
// the position resolved before the pause.
func (s *Session) Resume(ctx context.Context) error {
	ctx = logging.WithSessionID(ctx, s.id)

	if s.status != schema.SessionStatusAwaitingRouting {
		return schema.NewError(schema.ErrCodeConflict, "no routing decision pending")
	}
	if err := s.transition(ctx, schema.SessionStatusActive); err != nil {
		return err
	}
	s.pendingRouting = schema.RoutingNone
	s.publish(ctx, schema.EventRoutingAcknowledged, nil)

	// The paused position never had its pre-script evaluated.
	outcome := s.evaluatePreScript(ctx)
	if outcome.Kind == OutcomeSkip {
		return s.advanceFrom(ctx, false)
	}
	s.lastDirective = outcome.Directive
	s.publishQuestionChanged(ctx)
	return nil
}

// --- Advance internals ---

// validateCurrent enforces multi-select bounds and the validation script for
// the question being answered. Script evaluation errors are fail-open: an
// answer is never blocked because a script crashed.
func (s *Session) validateCurrent(ctx context.Context) error {
	q := s.graph.Question(s.current)

	if q.Type == schema.QuestionTypeMultiSelect {
		count := s.answers[s.current].SelectionCount()
		min, max := 0, 0
		if q.MinSelections != nil {
			min = *q.MinSelections
		}
		if q.MaxSelections != nil {
			max = *q.MaxSelections
		}
		if (min > 0 && count < min) || (max > 0 && count > max) {
			msg := q.ValidationErrorText
			if msg == "" {
				msg = fmt.Sprintf("select between %d and %d options", min, max)
			}
			s.publish(ctx, schema.EventValidationFailed, map[string]any{"message": msg})
			return schema.NewError(schema.ErrCodeSelection, msg).WithQuestion(q.ShortName)
		}
	}

	if q.ValidationScript == "" {
		return nil
	}

	result, err := s.eval.Evaluate(ctx, q.ValidationScript, survey.BuildContext(s.graph, s.answers))
	if err != nil {
		// Fail open: a broken validation script never blocks the interview.
		logging.LogWith(ctx, s.logger).Warn("validation script failed, treating answer as valid",
			slog.String("question", q.ShortName), slog.String("error", err.Error()))
		return nil
	}
	if Truthy(result) {
		return nil
	}

	msg := q.ValidationErrorText
	if msg == "" {
		msg = schema.DefaultValidationErrorText
	}
	if expressions.HasInterpolation(msg) {
		msg = expressions.Interpolate(msg, survey.BuildContext(s.graph, s.answers))
	}
	s.publish(ctx, schema.EventValidationFailed, map[string]any{"message": msg})
	return schema.NewError(schema.ErrCodeValidation, msg).WithQuestion(q.ShortName)
}

// resolveSkipTo evaluates the current question's conditional redirect.
// Returns the target position and true when the redirect fires and the
// target resolves. An unresolvable target falls through to sequential
// advance: a policy choice inherited from field deployments, loud in the
// logs but never fatal.
func (s *Session) resolveSkipTo(ctx context.Context) (int, bool) {
	q := s.graph.Question(s.current)
	if q.SkipToScript == "" || q.SkipToTarget == "" {
		return 0, false
	}

	result, err := s.eval.Evaluate(ctx, q.SkipToScript, survey.BuildContext(s.graph, s.answers))
	if err != nil {
		logging.LogWith(ctx, s.logger).Warn("skip-to script failed, no redirect",
			slog.String("question", q.ShortName), slog.String("error", err.Error()))
		return 0, false
	}
	if !Truthy(result) {
		return 0, false
	}

	target, ok := s.graph.IndexOf(q.SkipToTarget)
	if !ok {
		logging.LogWith(ctx, s.logger).Warn("skip-to target not found, advancing sequentially",
			slog.String("question", q.ShortName), slog.String("target", q.SkipToTarget))
		return 0, false
	}
	return target, true
}

// jumpInternal lands a skip-to redirect: the origin is already on the
// history stack, so the jump records nothing further and the destination's
// pre-script is not re-run.
func (s *Session) jumpInternal(ctx context.Context, target int) {
	s.current = target
	s.syncSection()
	s.lastDirective = ""
	s.publishQuestionChanged(ctx)
}

// evaluatePreScript runs the current question's pre-script and classifies
// the result. No script means continue.
func (s *Session) evaluatePreScript(ctx context.Context) PreScriptOutcome {
	q := s.graph.Question(s.current)
	if q.PreScript == "" {
		return PreScriptOutcome{Kind: OutcomeContinue}
	}
	result, err := s.eval.Evaluate(ctx, q.PreScript, survey.BuildContext(s.graph, s.answers))
	if err != nil {
		logging.LogWith(ctx, s.logger).Warn("pre-script failed, showing question",
			slog.String("question", q.ShortName), slog.String("error", err.Error()))
	}
	return ClassifyPreScript(result, err)
}

// checkSectionTransition processes a section boundary on sequential advance.
// Crossing out of an eligibility-typed section into any other type triggers
// exactly one eligibility evaluation for that crossing. Returns true when
// the engine pauses for external routing.
func (s *Session) checkSectionTransition(ctx context.Context) bool {
	sec := s.graph.SectionOf(s.current)
	if sec.ID == s.currentSection {
		return false
	}

	prevType := s.sectionType
	first := s.currentSection == ""
	s.currentSection = sec.ID
	s.sectionType = sec.Type

	if first || prevType != schema.SectionTypeEligibility || sec.Type == schema.SectionTypeEligibility {
		return false
	}

	s.determineEligibility(ctx)

	if s.pendingRouting == schema.RoutingNone {
		return false
	}
	if err := s.transition(ctx, schema.SessionStatusAwaitingRouting); err != nil {
		logging.LogWith(ctx, s.logger).Error("pause transition failed",
			slog.String("error", err.Error()))
		return false
	}
	return true
}

// complete moves the session to the terminal Completed state. No current
// question is exposed afterwards; this is the handoff point to the upload
// and coupon collaborators.
func (s *Session) complete(ctx context.Context) error {
	s.current = s.graph.Len()
	s.lastDirective = ""
	if err := s.transition(ctx, schema.SessionStatusCompleted); err != nil {
		return err
	}
	s.publish(ctx, schema.EventSessionCompleted, nil)
	return nil
}

// transition drives the FSM and mirrors the resulting status locally.
func (s *Session) transition(ctx context.Context, to schema.SessionStatus) error {
	if err := s.fsm.Transition(ctx, s.id, s.status, to); err != nil {
		return err
	}
	s.status = to
	return nil
}

// syncSection updates the section bookkeeping without boundary processing.
// Used on retreat and explicit jumps: the gate fires only on forward
// sequential advance.
func (s *Session) syncSection() {
	if s.current < 0 || s.current >= s.graph.Len() {
		return
	}
	sec := s.graph.SectionOf(s.current)
	s.currentSection = sec.ID
	s.sectionType = sec.Type
}

// --- Event publishing ---

func (s *Session) publishQuestionChanged(ctx context.Context) {
	payload := map[string]any{"position": s.current}
	if s.current >= 0 && s.current < s.graph.Len() {
		payload["short_name"] = s.graph.Question(s.current).ShortName
	}
	s.publish(ctx, schema.EventQuestionChanged, payload)
}

func (s *Session) publish(ctx context.Context, eventType string, payload map[string]any) {
	if s.hub == nil {
		return
	}
	event := streaming.StreamEvent{
		SessionID: s.id,
		EventType: eventType,
		Payload:   payload,
	}
	if err := s.hub.Publish(ctx, event); err != nil {
		logging.LogWith(ctx, s.logger).Warn("event publish failed",
			slog.String("event_type", eventType), slog.String("error", err.Error()))
	}
}
