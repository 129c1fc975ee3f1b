package mcp

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rendis/fieldflow/internal/store"
	"github.com/rendis/fieldflow/internal/streaming"
	"github.com/rendis/fieldflow/internal/validation"
	"github.com/rendis/fieldflow/pkg/schema"
)

// --- Mock Store ---

type mockStore struct {
	store.Store // embed for unimplemented methods

	mu       sync.Mutex
	surveys  map[string]*store.SurveyRecord
	sessions map[string]*store.SessionRecord
	answers  map[string][]*schema.Answer
	events   []*store.SessionEvent
	updates  []store.SessionUpdate
}

func newMockStore() *mockStore {
	return &mockStore{
		surveys:  make(map[string]*store.SurveyRecord),
		sessions: make(map[string]*store.SessionRecord),
		answers:  make(map[string][]*schema.Answer),
	}
}

func (m *mockStore) StoreSurvey(_ context.Context, rec *store.SurveyRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.surveys[rec.ID] = rec
	return nil
}

func (m *mockStore) GetSurvey(_ context.Context, id string) (*store.SurveyRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.surveys[id]; ok {
		return rec, nil
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "survey not found")
}

func (m *mockStore) CreateSession(_ context.Context, rec *store.SessionRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[rec.ID] = rec
	return nil
}

func (m *mockStore) GetSession(_ context.Context, id string) (*store.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if rec, ok := m.sessions[id]; ok {
		return rec, nil
	}
	return nil, schema.NewError(schema.ErrCodeNotFound, "session not found")
}

func (m *mockStore) UpdateSession(_ context.Context, id string, update store.SessionUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.sessions[id]
	if !ok {
		return schema.NewError(schema.ErrCodeNotFound, "session not found")
	}
	m.updates = append(m.updates, update)
	if update.Status != nil {
		rec.Status = *update.Status
	}
	if update.CurrentIndex != nil {
		rec.CurrentIndex = *update.CurrentIndex
	}
	if update.History != nil {
		rec.History = update.History
	}
	if update.CurrentSection != nil {
		rec.CurrentSection = *update.CurrentSection
	}
	if update.Eligibility != nil {
		rec.Eligibility = *update.Eligibility
	}
	if update.PendingRouting != nil {
		rec.PendingRouting = *update.PendingRouting
	}
	rec.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *mockStore) SaveAnswer(_ context.Context, sessionID string, answer *schema.Answer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *answer
	for i, a := range m.answers[sessionID] {
		if a.Position == cp.Position {
			m.answers[sessionID][i] = &cp
			return nil
		}
	}
	m.answers[sessionID] = append(m.answers[sessionID], &cp)
	return nil
}

func (m *mockStore) ListAnswers(_ context.Context, sessionID string) ([]*schema.Answer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.answers[sessionID], nil
}

func (m *mockStore) AppendEvent(_ context.Context, event *store.SessionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	event.Sequence = int64(len(m.events) + 1)
	m.events = append(m.events, event)
	return nil
}

// --- Helpers ---

func screeningDefinition() map[string]any {
	return map[string]any{
		"id":                 "flu-screening",
		"dialect":            "expr",
		"eligibility_script": "age >= 18",
		"sections": []any{
			map[string]any{"id": "scr", "type": "eligibility"},
			map[string]any{"id": "main", "type": "survey"},
		},
		"questions": []any{
			map[string]any{
				"id": "q1", "short_name": "age", "type": "numeric",
				"text": "How old are you?", "section_id": "scr",
				"validation_script":     "age >= 0 && age <= 120",
				"validation_error_text": "Age must be between 0 and 120",
			},
			map[string]any{
				"id": "q2", "short_name": "smoker", "type": "single_choice",
				"text": "Do you smoke?", "section_id": "scr",
				"options": []any{
					map[string]any{"index": 0, "text": "No"},
					map[string]any{"index": 1, "text": "Yes"},
				},
			},
			map[string]any{
				"id": "q3", "short_name": "notes", "type": "free_text",
				"text": "Anything else?", "section_id": "main",
			},
		},
	}
}

func newTestServer(t *testing.T) (*FieldflowServer, *mockStore) {
	t.Helper()
	ms := newMockStore()
	v, err := validation.NewDefinitionValidator()
	require.NoError(t, err)

	s := NewFieldflowServer(FieldflowServerDeps{
		Store:     ms,
		Hub:       streaming.NewMemoryHub(),
		Validator: v,
	})
	t.Cleanup(s.Close)
	return s, ms
}

func buildRequest(toolName string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      toolName,
			Arguments: args,
		},
	}
}

func extractText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content)
	return mcp.GetTextFromContent(result.Content[0])
}

func unmarshalResult(t *testing.T, result *mcp.CallToolResult, target any) {
	t.Helper()
	text := extractText(t, result)
	require.NoError(t, json.Unmarshal([]byte(text), target))
}

// startSession registers the screening survey and opens a session on it.
func startSession(t *testing.T, s *FieldflowServer, sessionID string) map[string]any {
	t.Helper()
	ctx := context.Background()

	result, err := s.handleDefine(ctx, buildRequest("survey.define", map[string]any{
		"definition": screeningDefinition(),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	result, err = s.handleStart(ctx, buildRequest("survey.start", map[string]any{
		"survey_id":  "flu-screening",
		"session_id": sessionID,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	var payload map[string]any
	unmarshalResult(t, result, &payload)
	return payload
}

func call(t *testing.T, s *FieldflowServer, tool string, args map[string]any,
	handler func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error)) map[string]any {
	t.Helper()

	result, err := handler(context.Background(), buildRequest(tool, args))
	require.NoError(t, err)
	require.False(t, result.IsError, extractText(t, result))

	var payload map[string]any
	unmarshalResult(t, result, &payload)
	return payload
}

// --- Tests ---

func TestDefineTool(t *testing.T) {
	s, ms := newTestServer(t)

	result, err := s.handleDefine(context.Background(), buildRequest("survey.define", map[string]any{
		"definition": screeningDefinition(),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var payload map[string]any
	unmarshalResult(t, result, &payload)
	assert.Equal(t, true, payload["ok"])
	assert.Equal(t, "flu-screening", payload["survey_id"])

	_, ok := ms.surveys["flu-screening"]
	assert.True(t, ok)
}

func TestDefineToolGeneratesID(t *testing.T) {
	s, ms := newTestServer(t)

	def := screeningDefinition()
	delete(def, "id")
	result, err := s.handleDefine(context.Background(), buildRequest("survey.define", map[string]any{
		"definition": def,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var payload map[string]any
	unmarshalResult(t, result, &payload)
	assert.NotEmpty(t, payload["survey_id"])
	assert.Len(t, ms.surveys, 1)
}

func TestDefineToolRejectsInvalid(t *testing.T) {
	s, ms := newTestServer(t)

	def := screeningDefinition()
	def["dialect"] = "lua"
	result, err := s.handleDefine(context.Background(), buildRequest("survey.define", map[string]any{
		"definition": def,
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var payload map[string]any
	unmarshalResult(t, result, &payload)
	assert.Equal(t, false, payload["ok"])
	assert.NotEmpty(t, payload["errors"])
	assert.Empty(t, ms.surveys)
}

func TestDefineToolMissingDefinition(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleDefine(context.Background(), buildRequest("survey.define", map[string]any{}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestValidateTool(t *testing.T) {
	s, ms := newTestServer(t)

	result, err := s.handleValidate(context.Background(), buildRequest("survey.validate", map[string]any{
		"definition": screeningDefinition(),
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var payload map[string]any
	unmarshalResult(t, result, &payload)
	assert.Equal(t, true, payload["valid"])

	// Validation never registers anything.
	assert.Empty(t, ms.surveys)
}

func TestStartToolExposesFirstQuestion(t *testing.T) {
	s, ms := newTestServer(t)

	payload := startSession(t, s, "sess-1")
	assert.Equal(t, float64(0), payload["position"])

	question, ok := payload["question"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "age", question["short_name"])
	assert.Equal(t, "numeric", question["type"])

	rec, ok := ms.sessions["sess-1"]
	require.True(t, ok)
	assert.Equal(t, 0, rec.CurrentIndex)
}

func TestStartToolUnknownSurvey(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleStart(context.Background(), buildRequest("survey.start", map[string]any{
		"survey_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAnswerAndAdvanceFlow(t *testing.T) {
	s, _ := newTestServer(t)
	startSession(t, s, "sess-1")
	args := map[string]any{"session_id": "sess-1"}

	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "value": 30}, s.handleAnswer)
	payload := call(t, s, "survey.advance", args, s.handleAdvance)

	question := payload["question"].(map[string]any)
	assert.Equal(t, "smoker", question["short_name"])
	require.NotEmpty(t, question["options"])

	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "option_index": 0}, s.handleAnswer)
	payload = call(t, s, "survey.advance", args, s.handleAdvance)

	// Crossing into the survey section evaluated eligibility seamlessly.
	assert.Equal(t, "eligible", payload["eligibility"])
	question = payload["question"].(map[string]any)
	assert.Equal(t, "notes", question["short_name"])

	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "text": "all good"}, s.handleAnswer)
	payload = call(t, s, "survey.advance", args, s.handleAdvance)

	assert.Equal(t, "completed", payload["status"])
	assert.Nil(t, payload["question"])
}

func TestAnswerToolWrongParameter(t *testing.T) {
	s, _ := newTestServer(t)
	startSession(t, s, "sess-1")

	// The current question is numeric; text alone is not enough.
	result, err := s.handleAnswer(context.Background(), buildRequest("survey.answer", map[string]any{
		"session_id": "sess-1",
		"text":       "thirty",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestAdvanceToolBlockedByValidation(t *testing.T) {
	s, _ := newTestServer(t)
	startSession(t, s, "sess-1")

	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "value": -5}, s.handleAnswer)

	result, err := s.handleAdvance(context.Background(), buildRequest("survey.advance", map[string]any{
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	assert.False(t, result.IsError)

	var payload map[string]any
	unmarshalResult(t, result, &payload)
	assert.Equal(t, false, payload["ok"])
	assert.Equal(t, true, payload["blocked"])
	assert.Equal(t, "Age must be between 0 and 120", payload["message"])
	assert.Equal(t, "age", payload["question"])
}

func TestBackTool(t *testing.T) {
	s, _ := newTestServer(t)
	startSession(t, s, "sess-1")
	args := map[string]any{"session_id": "sess-1"}

	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "value": 30}, s.handleAnswer)
	call(t, s, "survey.advance", args, s.handleAdvance)

	payload := call(t, s, "survey.back", args, s.handleBack)
	question := payload["question"].(map[string]any)
	assert.Equal(t, "age", question["short_name"])
	assert.Equal(t, float64(30), question["answer"])
}

func TestResumeToolAfterRejection(t *testing.T) {
	s, _ := newTestServer(t)
	startSession(t, s, "sess-1")
	args := map[string]any{"session_id": "sess-1"}

	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "value": 16}, s.handleAnswer)
	call(t, s, "survey.advance", args, s.handleAdvance)
	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "option_index": 0}, s.handleAnswer)

	payload := call(t, s, "survey.advance", args, s.handleAdvance)
	assert.Equal(t, "awaiting_routing", payload["status"])
	assert.Equal(t, "ineligible", payload["eligibility"])
	assert.Equal(t, "rejection", payload["pending_routing"])
	assert.Nil(t, payload["question"])

	payload = call(t, s, "survey.resume", args, s.handleResume)
	assert.Equal(t, "active", payload["status"])
	question := payload["question"].(map[string]any)
	assert.Equal(t, "notes", question["short_name"])
}

func TestResumeToolWithoutPendingRouting(t *testing.T) {
	s, _ := newTestServer(t)
	startSession(t, s, "sess-1")

	result, err := s.handleResume(context.Background(), buildRequest("survey.resume", map[string]any{
		"session_id": "sess-1",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestStatusTool(t *testing.T) {
	s, _ := newTestServer(t)
	startSession(t, s, "sess-1")

	payload := call(t, s, "survey.status", map[string]any{"session_id": "sess-1"}, s.handleStatus)
	assert.Equal(t, "sess-1", payload["session_id"])
	assert.Equal(t, "active", payload["status"])
	assert.Equal(t, float64(0), payload["position"])
}

func TestStatusToolUnknownSession(t *testing.T) {
	s, _ := newTestServer(t)

	result, err := s.handleStatus(context.Background(), buildRequest("survey.status", map[string]any{
		"session_id": "nope",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
}

func TestSessionRestoredFromStore(t *testing.T) {
	s, ms := newTestServer(t)
	startSession(t, s, "sess-1")
	args := map[string]any{"session_id": "sess-1"}

	call(t, s, "survey.answer", map[string]any{"session_id": "sess-1", "value": 30}, s.handleAnswer)
	call(t, s, "survey.advance", args, s.handleAdvance)

	// Flush the background answer writer, then rebuild against the same
	// store with an empty live registry, as after a process restart.
	s.Close()
	v, err := validation.NewDefinitionValidator()
	require.NoError(t, err)
	restarted := NewFieldflowServer(FieldflowServerDeps{
		Store:     ms,
		Hub:       streaming.NewMemoryHub(),
		Validator: v,
	})
	t.Cleanup(restarted.Close)

	payload := call(t, restarted, "survey.status", args, restarted.handleStatus)
	assert.Equal(t, float64(1), payload["position"])
	question := payload["question"].(map[string]any)
	assert.Equal(t, "smoker", question["short_name"])
	assert.Equal(t, 1, restarted.sessions.Len())

	// Restored answers carry their recorded values.
	back := call(t, restarted, "survey.back", args, restarted.handleBack)
	question = back["question"].(map[string]any)
	assert.Equal(t, "age", question["short_name"])
	assert.Equal(t, float64(30), question["answer"])
}
