package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/ideaboard/ideaboard/internal/api/model"
	"github.com/ideaboard/ideaboard/shared/postgresql"
)

// ErrSessionNotFound is returned when a conversation has no session row
var ErrSessionNotFound = errors.New("session not found")

// Storage serves read-only survey reporting queries. All writes go through
// the worker pipeline; the API only reads.
type Storage struct {
	db *sqlx.DB
}

func NewStorage(pg *postgresql.Client) *Storage {
	return &Storage{
		db: pg.GetDB(),
	}
}

type SessionFilter struct {
	SurveyID      string
	CompletedOnly bool
	PageSize      int
	Cursor        *SessionCursor
}

type SessionCursor struct {
	StartedAt time.Time
	SessionID string
}

// ListSessions returns sessions newest first with their answer counts.
// Fetches one row beyond PageSize so the caller can detect more results.
func (s *Storage) ListSessions(ctx context.Context, filter SessionFilter) ([]model.Session, error) {
	query := `
		SELECT
			s.id, s.conversation_id, s.survey_id, s.started_at, s.completed_at,
			COUNT(a.id) AS answer_count
		FROM survey_sessions s
		LEFT JOIN survey_answers a ON a.session_id = s.id
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if filter.SurveyID != "" {
		query += fmt.Sprintf(" AND s.survey_id = $%d", argIdx)
		args = append(args, filter.SurveyID)
		argIdx++
	}

	if filter.CompletedOnly {
		query += " AND s.completed_at IS NOT NULL"
	}

	if filter.Cursor != nil {
		query += fmt.Sprintf(" AND (s.started_at, s.id) < ($%d, $%d)", argIdx, argIdx+1)
		args = append(args, filter.Cursor.StartedAt, filter.Cursor.SessionID)
		argIdx += 2
	}

	query += `
		GROUP BY s.id, s.conversation_id, s.survey_id, s.started_at, s.completed_at
		ORDER BY s.started_at DESC, s.id DESC
	`

	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, filter.PageSize+1)

	var sessions []model.Session
	err := s.db.SelectContext(ctx, &sessions, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	return sessions, nil
}

// GetSessionByConversation loads one session by its conversation id
func (s *Storage) GetSessionByConversation(ctx context.Context, conversationID string) (*model.Session, error) {
	query := `
		SELECT
			s.id, s.conversation_id, s.survey_id, s.started_at, s.completed_at,
			COUNT(a.id) AS answer_count
		FROM survey_sessions s
		LEFT JOIN survey_answers a ON a.session_id = s.id
		WHERE s.conversation_id = $1
		GROUP BY s.id, s.conversation_id, s.survey_id, s.started_at, s.completed_at
	`

	var session model.Session
	err := s.db.GetContext(ctx, &session, query, conversationID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	return &session, nil
}

// ListAnswers returns all answers for a session in answer order
func (s *Storage) ListAnswers(ctx context.Context, sessionID string) ([]model.Answer, error) {
	query := `
		SELECT
			id, session_id, question_id, section_name, question_text,
			answer_type, answer_text, answer_rating, answer_choices,
			raw_transcript, answered_at
		FROM survey_answers
		WHERE session_id = $1
		ORDER BY answered_at ASC, id ASC
	`

	var answers []model.Answer
	err := s.db.SelectContext(ctx, &answers, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list answers: %w", err)
	}

	return answers, nil
}

// ExportAnswers returns every answer joined with its session, for the
// CSV and JSON export endpoints
func (s *Storage) ExportAnswers(ctx context.Context, surveyID string) ([]ExportRow, error) {
	query := `
		SELECT
			s.conversation_id, s.survey_id, s.started_at, s.completed_at,
			a.question_id, a.section_name, a.question_text, a.answer_type,
			a.answer_text, a.answer_rating, a.answer_choices, a.answered_at
		FROM survey_answers a
		JOIN survey_sessions s ON s.id = a.session_id
		WHERE 1=1
	`
	args := []interface{}{}

	if surveyID != "" {
		query += " AND s.survey_id = $1"
		args = append(args, surveyID)
	}

	query += " ORDER BY s.started_at ASC, a.answered_at ASC"

	var rows []ExportRow
	err := s.db.SelectContext(ctx, &rows, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to export answers: %w", err)
	}

	return rows, nil
}

// ExportRow is one flattened answer for export output
type ExportRow struct {
	ConversationID string         `db:"conversation_id"`
	SurveyID       string         `db:"survey_id"`
	StartedAt      time.Time      `db:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
	QuestionID     string         `db:"question_id"`
	SectionName    sql.NullString `db:"section_name"`
	QuestionText   sql.NullString `db:"question_text"`
	AnswerType     sql.NullString `db:"answer_type"`
	AnswerText     sql.NullString `db:"answer_text"`
	AnswerRating   sql.NullInt64  `db:"answer_rating"`
	AnswerChoices  sql.NullString `db:"answer_choices"`
	AnsweredAt     time.Time      `db:"answered_at"`
}

// GetStats returns the aggregate survey counters
func (s *Storage) GetStats(ctx context.Context) (*model.SurveyStats, error) {
	query := `
		SELECT
			COUNT(DISTINCT s.id) AS total_sessions,
			COUNT(DISTINCT s.id) FILTER (WHERE s.completed_at IS NOT NULL) AS completed_sessions,
			COUNT(a.id) AS total_answers
		FROM survey_sessions s
		LEFT JOIN survey_answers a ON a.session_id = s.id
	`

	var stats model.SurveyStats
	err := s.db.GetContext(ctx, &stats, query)
	if err != nil {
		return nil, fmt.Errorf("failed to load survey stats: %w", err)
	}

	return &stats, nil
}
