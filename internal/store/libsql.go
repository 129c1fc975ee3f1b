package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/tursodatabase/go-libsql"

	"github.com/rendis/fieldflow/pkg/schema"
)

// LibSQLStore implements the Store interface using libSQL (embedded SQLite fork).
type LibSQLStore struct {
	db *sql.DB
}

// NewLibSQLStore opens a libSQL database at the given path and returns a Store.
// The path should be a file URI, e.g. "file:/path/to/db.db".
func NewLibSQLStore(dbPath string) (*LibSQLStore, error) {
	db, err := sql.Open("libsql", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open libsql: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Apply connection-level PRAGMAs. Some PRAGMAs return rows so we use QueryRow.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA foreign_keys=ON",
		"PRAGMA temp_store=MEMORY",
	}
	for _, p := range pragmas {
		var result string
		_ = db.QueryRow(p).Scan(&result)
	}

	return &LibSQLStore{db: db}, nil
}

// DB returns the underlying *sql.DB for advanced usage.
func (s *LibSQLStore) DB() *sql.DB { return s.db }

// Close closes the database.
func (s *LibSQLStore) Close() error { return s.db.Close() }

// Migrate runs all pending database migrations.
func (s *LibSQLStore) Migrate(ctx context.Context) error {
	return runMigrations(ctx, s.db)
}

// Vacuum runs VACUUM on the database.
func (s *LibSQLStore) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

// --- Surveys ---

func (s *LibSQLStore) StoreSurvey(ctx context.Context, rec *SurveyRecord) error {
	def, err := json.Marshal(rec.Definition)
	if err != nil {
		return fmt.Errorf("marshal definition: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO surveys (id, name, definition, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET name=excluded.name, definition=excluded.definition, updated_at=CURRENT_TIMESTAMP`,
		rec.ID, nullStr(rec.Name), string(def), timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt),
	)
	return err
}

func (s *LibSQLStore) GetSurvey(ctx context.Context, id string) (*SurveyRecord, error) {
	rec := &SurveyRecord{}
	var (
		name    sql.NullString
		defJSON string
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, definition, created_at, updated_at FROM surveys WHERE id = ?`, id,
	).Scan(&rec.ID, &name, &defJSON, &rec.CreatedAt, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("survey", id)
	}
	if err != nil {
		return nil, err
	}
	rec.Name = name.String
	if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
		return nil, fmt.Errorf("unmarshal definition: %w", err)
	}
	return rec, nil
}

func (s *LibSQLStore) ListSurveys(ctx context.Context, filter SurveyFilter) ([]*SurveyRecord, error) {
	query := `SELECT id, name, definition, created_at, updated_at FROM surveys`
	var args []any
	if filter.Name != "" {
		query += ` WHERE name = ?`
		args = append(args, filter.Name)
	}
	query += ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SurveyRecord
	for rows.Next() {
		rec := &SurveyRecord{}
		var (
			name    sql.NullString
			defJSON string
		)
		if err := rows.Scan(&rec.ID, &name, &defJSON, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
			return nil, err
		}
		rec.Name = name.String
		if err := json.Unmarshal([]byte(defJSON), &rec.Definition); err != nil {
			return nil, fmt.Errorf("unmarshal definition: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *LibSQLStore) DeleteSurvey(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM surveys WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "survey", id)
}

// --- Sessions ---

func (s *LibSQLStore) CreateSession(ctx context.Context, rec *SessionRecord) error {
	history, err := marshalHistory(rec.History)
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, survey_id, language, status, current_index, history, current_section, eligibility, pending_routing, created_at, updated_at, completed_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.SurveyID, nullStr(rec.Language), string(rec.Status), rec.CurrentIndex,
		history, nullStr(rec.CurrentSection), string(rec.Eligibility), string(rec.PendingRouting),
		timeOrNow(rec.CreatedAt), timeOrNow(rec.UpdatedAt), nullTime(rec.CompletedAt),
	)
	return err
}

func (s *LibSQLStore) GetSession(ctx context.Context, id string) (*SessionRecord, error) {
	rec := &SessionRecord{}
	var (
		language, history, section sql.NullString
		status, eligibility        string
		pendingRouting             string
		completedAt                sql.NullTime
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, survey_id, language, status, current_index, history, current_section, eligibility, pending_routing, created_at, updated_at, completed_at
		 FROM sessions WHERE id = ?`, id,
	).Scan(&rec.ID, &rec.SurveyID, &language, &status, &rec.CurrentIndex, &history,
		&section, &eligibility, &pendingRouting, &rec.CreatedAt, &rec.UpdatedAt, &completedAt)
	if err == sql.ErrNoRows {
		return nil, storeNotFound("session", id)
	}
	if err != nil {
		return nil, err
	}
	rec.Language = language.String
	rec.Status = schema.SessionStatus(status)
	rec.CurrentSection = section.String
	rec.Eligibility = schema.EligibilityStatus(eligibility)
	rec.PendingRouting = schema.PendingRouting(pendingRouting)
	if history.Valid && history.String != "" {
		if err := json.Unmarshal([]byte(history.String), &rec.History); err != nil {
			return nil, fmt.Errorf("unmarshal history: %w", err)
		}
	}
	if completedAt.Valid {
		rec.CompletedAt = &completedAt.Time
	}
	return rec, nil
}

func (s *LibSQLStore) UpdateSession(ctx context.Context, id string, update SessionUpdate) error {
	var sets []string
	var args []any

	if update.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, string(*update.Status))
	}
	if update.CurrentIndex != nil {
		sets = append(sets, "current_index = ?")
		args = append(args, *update.CurrentIndex)
	}
	if update.History != nil {
		history, err := marshalHistory(update.History)
		if err != nil {
			return fmt.Errorf("marshal history: %w", err)
		}
		sets = append(sets, "history = ?")
		args = append(args, history)
	}
	if update.CurrentSection != nil {
		sets = append(sets, "current_section = ?")
		args = append(args, *update.CurrentSection)
	}
	if update.Eligibility != nil {
		sets = append(sets, "eligibility = ?")
		args = append(args, string(*update.Eligibility))
	}
	if update.PendingRouting != nil {
		sets = append(sets, "pending_routing = ?")
		args = append(args, string(*update.PendingRouting))
	}
	if update.CompletedAt != nil {
		sets = append(sets, "completed_at = ?")
		args = append(args, *update.CompletedAt)
	}
	if len(sets) == 0 {
		return nil
	}
	sets = append(sets, "updated_at = CURRENT_TIMESTAMP")

	query := fmt.Sprintf(`UPDATE sessions SET %s WHERE id = ?`, strings.Join(sets, ", "))
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

func (s *LibSQLStore) ListSessions(ctx context.Context, filter SessionFilter) ([]*SessionRecord, error) {
	query := `SELECT id, survey_id, language, status, current_index, history, current_section, eligibility, pending_routing, created_at, updated_at, completed_at FROM sessions`
	var conds []string
	var args []any

	if filter.SurveyID != "" {
		conds = append(conds, "survey_id = ?")
		args = append(args, filter.SurveyID)
	}
	if filter.Status != nil {
		conds = append(conds, "status = ?")
		args = append(args, string(*filter.Status))
	}
	if filter.UpdatedBefore != nil {
		conds = append(conds, "updated_at < ?")
		args = append(args, *filter.UpdatedBefore)
	}
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
		if filter.Offset > 0 {
			query += " OFFSET ?"
			args = append(args, filter.Offset)
		}
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []*SessionRecord
	for rows.Next() {
		rec := &SessionRecord{}
		var (
			language, history, section sql.NullString
			status, eligibility        string
			pendingRouting             string
			completedAt                sql.NullTime
		)
		if err := rows.Scan(&rec.ID, &rec.SurveyID, &language, &status, &rec.CurrentIndex,
			&history, &section, &eligibility, &pendingRouting,
			&rec.CreatedAt, &rec.UpdatedAt, &completedAt); err != nil {
			return nil, err
		}
		rec.Language = language.String
		rec.Status = schema.SessionStatus(status)
		rec.CurrentSection = section.String
		rec.Eligibility = schema.EligibilityStatus(eligibility)
		rec.PendingRouting = schema.PendingRouting(pendingRouting)
		if history.Valid && history.String != "" {
			if err := json.Unmarshal([]byte(history.String), &rec.History); err != nil {
				return nil, fmt.Errorf("unmarshal history: %w", err)
			}
		}
		if completedAt.Valid {
			rec.CompletedAt = &completedAt.Time
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *LibSQLStore) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return err
	}
	return checkRowsAffected(res, "session", id)
}

// --- Answers ---

func (s *LibSQLStore) SaveAnswer(ctx context.Context, sessionID string, answer *schema.Answer) error {
	var optionIndex any
	if answer.OptionIndex != nil {
		optionIndex = *answer.OptionIndex
	}
	var numeric any
	if answer.Numeric != nil {
		numeric = *answer.Numeric
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO answers (session_id, position, question_id, option_index, option_text, numeric_value, free_text, selections, answered, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		 ON CONFLICT(session_id, position) DO UPDATE SET
		   question_id=excluded.question_id, option_index=excluded.option_index,
		   option_text=excluded.option_text, numeric_value=excluded.numeric_value,
		   free_text=excluded.free_text, selections=excluded.selections,
		   answered=excluded.answered, updated_at=CURRENT_TIMESTAMP`,
		sessionID, answer.Position, answer.QuestionID, optionIndex,
		nullStr(answer.OptionText), numeric, nullStr(answer.FreeText),
		nullStr(answer.Selections), boolToInt(answer.Answered),
	)
	return err
}

func (s *LibSQLStore) ListAnswers(ctx context.Context, sessionID string) ([]*schema.Answer, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT position, question_id, option_index, option_text, numeric_value, free_text, selections, answered
		 FROM answers WHERE session_id = ? ORDER BY position`, sessionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var answers []*schema.Answer
	for rows.Next() {
		a := &schema.Answer{}
		var (
			optionIndex         sql.NullInt64
			optionText          sql.NullString
			numeric             sql.NullFloat64
			freeText, selections sql.NullString
			answered            int
		)
		if err := rows.Scan(&a.Position, &a.QuestionID, &optionIndex, &optionText,
			&numeric, &freeText, &selections, &answered); err != nil {
			return nil, err
		}
		if optionIndex.Valid {
			v := int(optionIndex.Int64)
			a.OptionIndex = &v
		}
		a.OptionText = optionText.String
		if numeric.Valid {
			v := numeric.Float64
			a.Numeric = &v
		}
		a.FreeText = freeText.String
		a.Selections = selections.String
		a.Answered = answered != 0
		answers = append(answers, a)
	}
	return answers, rows.Err()
}

// --- Event log ---

func (s *LibSQLStore) AppendEvent(ctx context.Context, event *SessionEvent) error {
	payload := sql.NullString{}
	if len(event.Payload) > 0 {
		payload = sql.NullString{String: string(event.Payload), Valid: true}
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO session_events (session_id, event_type, payload, timestamp, sequence)
		 VALUES (?, ?, ?, ?, (SELECT COALESCE(MAX(sequence), 0) + 1 FROM session_events WHERE session_id = ?))`,
		event.SessionID, event.Type, payload, timeOrNow(event.Timestamp), event.SessionID,
	)
	return err
}

func (s *LibSQLStore) GetEvents(ctx context.Context, sessionID string, since int64) ([]*SessionEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, session_id, event_type, payload, timestamp, sequence
		 FROM session_events WHERE session_id = ? AND sequence > ? ORDER BY sequence`,
		sessionID, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*SessionEvent
	for rows.Next() {
		e := &SessionEvent{}
		var payload sql.NullString
		if err := rows.Scan(&e.ID, &e.SessionID, &e.Type, &payload, &e.Timestamp, &e.Sequence); err != nil {
			return nil, err
		}
		if payload.Valid {
			e.Payload = json.RawMessage(payload.String)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// --- Helpers ---

func storeNotFound(kind, id string) error {
	return schema.NewErrorf(schema.ErrCodeNotFound, "%s %q not found", kind, id)
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return storeNotFound(kind, id)
	}
	return nil
}

func nullStr(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func timeOrNow(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

func marshalHistory(history []int) (string, error) {
	if len(history) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal(history)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

var _ Store = (*LibSQLStore)(nil)
