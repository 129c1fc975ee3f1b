package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/rendis/fieldflow/internal/expressions"
	"github.com/rendis/fieldflow/internal/session"
	"github.com/rendis/fieldflow/internal/store"
	"github.com/rendis/fieldflow/internal/survey"
	"github.com/rendis/fieldflow/pkg/schema"
)

// handleDefine validates a survey definition and registers it in the store.
func (s *FieldflowServer) handleDefine(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := parseDefinition(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.validator.ValidateDefinition(def)
	if !result.Valid() {
		return marshalResult(map[string]any{
			"ok":       false,
			"errors":   result.Errors,
			"warnings": result.Warnings,
		})
	}

	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	rec := &store.SurveyRecord{
		ID:         def.ID,
		Name:       def.Name,
		Definition: *def,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if storeErr := s.store.StoreSurvey(ctx, rec); storeErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to store survey: %v", storeErr)), nil
	}

	return marshalResult(map[string]any{
		"ok":        true,
		"survey_id": def.ID,
		"warnings":  result.Warnings,
	})
}

// handleValidate runs the validation pipeline without registering anything.
func (s *FieldflowServer) handleValidate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	def, err := parseDefinition(req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result := s.validator.ValidateDefinition(def)
	return marshalResult(map[string]any{
		"valid":    result.Valid(),
		"errors":   result.Errors,
		"warnings": result.Warnings,
	})
}

// handleStart opens a new session and advances onto the first question.
func (s *FieldflowServer) handleStart(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	surveyID, err := req.RequireString("survey_id")
	if err != nil {
		return mcp.NewToolResultError("survey_id is required"), nil
	}
	language := req.GetString("language", "")
	sessionID := req.GetString("session_id", "")
	if sessionID == "" {
		sessionID = uuid.New().String()
	}

	rec, getErr := s.store.GetSurvey(ctx, surveyID)
	if getErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("survey lookup failed: %v", getErr)), nil
	}

	graph, graphErr := survey.NewGraph(&rec.Definition, language)
	if graphErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("cannot build question sequence: %v", graphErr)), nil
	}
	engine, engErr := expressions.ForDialect(rec.Definition.Dialect)
	if engErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("unsupported script dialect: %v", engErr)), nil
	}

	now := time.Now().UTC()
	createErr := s.store.CreateSession(ctx, &store.SessionRecord{
		ID:             sessionID,
		SurveyID:       surveyID,
		Language:       language,
		Status:         schema.SessionStatusNotStarted,
		CurrentIndex:   -1,
		Eligibility:    schema.EligibilityUndetermined,
		PendingRouting: schema.RoutingNone,
		CreatedAt:      now,
		UpdatedAt:      now,
	})
	if createErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to create session: %v", createErr)), nil
	}

	sess := session.New(sessionID, s.sessionDeps(graph, engine))
	s.sessions.Put(sessionID, &liveSession{sess: sess, surveyID: surveyID, language: language})

	if advErr := sess.Advance(ctx); advErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to expose first question: %v", advErr)), nil
	}
	s.persistSnapshot(ctx, sess)

	return marshalResult(sessionPayload(sess))
}

// handleAnswer records an answer for the current question, dispatching on its
// type: option_index for choices, value for numeric, text for free text.
func (s *FieldflowServer) handleAnswer(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.requireSession(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	view := sess.Current()
	if view == nil {
		return mcp.NewToolResultError("no question is currently exposed"), nil
	}

	var recordErr error
	switch view.Question.Type {
	case schema.QuestionTypeSingleChoice:
		idx, reqErr := req.RequireInt("option_index")
		if reqErr != nil {
			return mcp.NewToolResultError("option_index is required for single_choice questions"), nil
		}
		recordErr = sess.RecordSelection(ctx, idx)
	case schema.QuestionTypeMultiSelect:
		idx, reqErr := req.RequireInt("option_index")
		if reqErr != nil {
			return mcp.NewToolResultError("option_index is required for multi_select questions"), nil
		}
		recordErr = sess.ToggleSelection(ctx, idx)
	case schema.QuestionTypeNumeric:
		value, reqErr := req.RequireFloat("value")
		if reqErr != nil {
			return mcp.NewToolResultError("value is required for numeric questions"), nil
		}
		recordErr = sess.RecordNumeric(ctx, value)
	case schema.QuestionTypeFreeText:
		text, reqErr := req.RequireString("text")
		if reqErr != nil {
			return mcp.NewToolResultError("text is required for free_text questions"), nil
		}
		recordErr = sess.RecordFreeText(ctx, text)
	default:
		return mcp.NewToolResultError(fmt.Sprintf("unsupported question type %q", view.Question.Type)), nil
	}

	if recordErr != nil {
		if blocked, res := blockedResult(recordErr); blocked {
			return res, nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("failed to record answer: %v", recordErr)), nil
	}

	return marshalResult(sessionPayload(sess))
}

// handleAdvance validates the current answer and moves forward. A blocking
// validation outcome is a normal result carrying the user-facing message, not
// a tool error, so the agent can relay it to the respondent.
func (s *FieldflowServer) handleAdvance(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.requireSession(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if advErr := sess.Advance(ctx); advErr != nil {
		if blocked, res := blockedResult(advErr); blocked {
			return res, nil
		}
		return mcp.NewToolResultError(fmt.Sprintf("advance failed: %v", advErr)), nil
	}
	s.persistSnapshot(ctx, sess)

	return marshalResult(sessionPayload(sess))
}

// handleBack navigates one question backward.
func (s *FieldflowServer) handleBack(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.requireSession(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if backErr := sess.Retreat(ctx); backErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("back navigation failed: %v", backErr)), nil
	}
	s.persistSnapshot(ctx, sess)

	return marshalResult(sessionPayload(sess))
}

// handleResume acknowledges a pending routing decision.
func (s *FieldflowServer) handleResume(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.requireSession(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	if resErr := sess.Resume(ctx); resErr != nil {
		return mcp.NewToolResultError(fmt.Sprintf("resume failed: %v", resErr)), nil
	}
	s.persistSnapshot(ctx, sess)

	return marshalResult(sessionPayload(sess))
}

// handleStatus reports the session's navigation state and current question.
func (s *FieldflowServer) handleStatus(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	sess, err := s.requireSession(ctx, req)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return marshalResult(sessionPayload(sess))
}

// --- Internal helpers ---

// requireSession extracts session_id and returns the live or restored session.
func (s *FieldflowServer) requireSession(ctx context.Context, req mcp.CallToolRequest) (*session.Session, error) {
	sessionID, err := req.RequireString("session_id")
	if err != nil {
		return nil, fmt.Errorf("session_id is required")
	}
	return s.loadSession(ctx, sessionID)
}

// loadSession returns a cached live session or rebuilds one from the store.
func (s *FieldflowServer) loadSession(ctx context.Context, id string) (*session.Session, error) {
	if ls := s.sessions.Get(id); ls != nil {
		return ls.sess, nil
	}

	rec, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("session lookup failed: %w", err)
	}
	srec, err := s.store.GetSurvey(ctx, rec.SurveyID)
	if err != nil {
		return nil, fmt.Errorf("survey lookup failed: %w", err)
	}

	graph, err := survey.NewGraph(&srec.Definition, rec.Language)
	if err != nil {
		return nil, fmt.Errorf("cannot rebuild question sequence: %w", err)
	}
	engine, err := expressions.ForDialect(srec.Definition.Dialect)
	if err != nil {
		return nil, fmt.Errorf("unsupported script dialect: %w", err)
	}

	stored, err := s.store.ListAnswers(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("answer lookup failed: %w", err)
	}
	byPosition := make([]*schema.Answer, graph.Len())
	for _, a := range stored {
		if a.Position >= 0 && a.Position < graph.Len() {
			byPosition[a.Position] = a
		}
	}

	state := session.State{
		Status:         rec.Status,
		CurrentIndex:   rec.CurrentIndex,
		History:        rec.History,
		CurrentSection: rec.CurrentSection,
		Eligibility:    rec.Eligibility,
		PendingRouting: rec.PendingRouting,
	}
	sess := session.Restore(id, s.sessionDeps(graph, engine), state, byPosition)
	s.sessions.Put(id, &liveSession{sess: sess, surveyID: rec.SurveyID, language: rec.Language})
	return sess, nil
}

// sessionDeps wires the server's collaborators into session dependencies.
func (s *FieldflowServer) sessionDeps(g *survey.Graph, engine expressions.Engine) session.Deps {
	return session.Deps{
		Graph:     g,
		Evaluator: engine,
		Writer:    s.persister,
		Hub:       s.hub,
		FSM:       session.NewFSM(s.store),
		Logger:    s.logger,
	}
}

// persistSnapshot writes the session's navigation state back to the store.
func (s *FieldflowServer) persistSnapshot(ctx context.Context, sess *session.Session) {
	snap := sess.Snapshot()
	history := snap.History
	if history == nil {
		history = []int{}
	}

	update := store.SessionUpdate{
		Status:         &snap.Status,
		CurrentIndex:   &snap.CurrentIndex,
		History:        history,
		CurrentSection: &snap.CurrentSection,
		Eligibility:    &snap.Eligibility,
		PendingRouting: &snap.PendingRouting,
	}
	if snap.Status == schema.SessionStatusCompleted {
		now := time.Now().UTC()
		update.CompletedAt = &now
	}

	if err := s.store.UpdateSession(ctx, sess.ID(), update); err != nil {
		s.logger.Error("failed to persist session snapshot",
			slog.String("session_id", sess.ID()),
			slog.String("error", err.Error()))
	}
}

// parseDefinition extracts and decodes the definition object parameter.
func parseDefinition(req mcp.CallToolRequest) (*schema.SurveyDefinition, error) {
	raw := mcp.ParseStringMap(req, "definition", nil)
	if raw == nil {
		return nil, fmt.Errorf("definition is required")
	}

	defBytes, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid definition: %v", err)
	}
	var def schema.SurveyDefinition
	if err := json.Unmarshal(defBytes, &def); err != nil {
		return nil, fmt.Errorf("invalid definition: %v", err)
	}
	return &def, nil
}

// sessionPayload projects the session state into a tool result payload.
func sessionPayload(sess *session.Session) map[string]any {
	snap := sess.Snapshot()
	payload := map[string]any{
		"session_id":      sess.ID(),
		"status":          snap.Status,
		"position":        snap.CurrentIndex,
		"section":         snap.CurrentSection,
		"eligibility":     snap.Eligibility,
		"pending_routing": snap.PendingRouting,
	}

	if view := sess.Current(); view != nil {
		q := map[string]any{
			"position":   view.Index,
			"short_name": view.Question.ShortName,
			"type":       view.Question.Type,
			"text":       view.Text,
		}
		if len(view.Options) > 0 {
			q["options"] = view.Options
		}
		if view.Answer != nil && view.Answer.Answered {
			q["answer"] = view.Answer.Value()
		}
		if view.Directive != "" {
			q["directive"] = view.Directive
		}
		payload["question"] = q
	}
	return payload
}

// blockedResult converts a blocking flow error (validation text, selection
// bounds) into a normal tool result the agent can surface verbatim.
func blockedResult(err error) (bool, *mcp.CallToolResult) {
	ferr, ok := err.(*schema.FieldflowError)
	if !ok || !ferr.IsBlocking() {
		return false, nil
	}
	res, mErr := marshalResult(map[string]any{
		"ok":       false,
		"blocked":  true,
		"code":     ferr.Code,
		"message":  ferr.Message,
		"question": ferr.Question,
	})
	if mErr != nil {
		return false, nil
	}
	return true, res
}

// marshalResult converts a value to a JSON tool result.
func marshalResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultJSON(json.RawMessage(data))
}
