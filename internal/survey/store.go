package survey

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"

	"github.com/ideaboard/ideaboard/internal/queue"
)

// TerminalQuestionID marks the answer that auto-completes a session
const TerminalQuestionID = "final_thoughts"

// ErrSessionNotFound is returned when no session exists for a conversation
var ErrSessionNotFound = errors.New("survey session not found")

// AnswerReceipt reports where an answer landed
type AnswerReceipt struct {
	AnswerID   string
	SessionID  string
	QuestionID string
	Completed  bool
}

// Store persists survey sessions and answers. One answer row exists per
// (session, question) pair; resubmissions overwrite mutable fields and
// advance answered_at instead of duplicating. Uniqueness is enforced by
// database constraints and atomic upserts, not check-then-insert, so
// concurrent workers across processes cannot race a duplicate row in.
type Store struct {
	db     *sqlx.DB
	logger *slog.Logger
}

// NewStore creates a survey store
func NewStore(db *sqlx.DB, logger *slog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger,
	}
}

// RecordAnswer upserts one answer, creating the session lazily. Missing
// identifiers are fatal and reported immediately; database errors are
// surfaced as retryable so the dispatcher's redelivery applies.
func (s *Store) RecordAnswer(ctx context.Context, params queue.AnswerParams) (*AnswerReceipt, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.ApplyDefaults()

	sessionID, err := s.ensureSession(ctx, params.ConversationID, params.SurveyID)
	if err != nil {
		return nil, err
	}

	var choicesJSON sql.NullString
	if len(params.AnswerChoices) > 0 {
		encoded, err := json.Marshal(params.AnswerChoices)
		if err != nil {
			return nil, fmt.Errorf("%w: unencodable answer_choices: %v", queue.ErrInvalidEnvelope, err)
		}
		choicesJSON = sql.NullString{String: string(encoded), Valid: true}
	}

	query := `
		INSERT INTO survey_answers
			(session_id, question_id, section_name, question_text,
			 answer_type, answer_text, answer_rating, answer_choices,
			 raw_transcript, answered_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
		ON CONFLICT (session_id, question_id)
		DO UPDATE SET
			answer_text = EXCLUDED.answer_text,
			answer_rating = EXCLUDED.answer_rating,
			answer_choices = EXCLUDED.answer_choices,
			raw_transcript = EXCLUDED.raw_transcript,
			answered_at = NOW()
		RETURNING id
	`

	var answerID string
	err = s.db.QueryRowContext(ctx, query,
		sessionID,
		params.QuestionID,
		params.SectionName,
		params.QuestionText,
		params.AnswerType,
		params.AnswerText,
		params.AnswerRating,
		choicesJSON,
		params.RawTranscript,
	).Scan(&answerID)
	if err != nil {
		return nil, queue.NewRetryableError(fmt.Errorf("failed to upsert answer: %w", err))
	}

	s.logger.Info("Answer recorded",
		slog.String("conversation_id", params.ConversationID),
		slog.String("question_id", params.QuestionID),
		slog.String("answer_id", answerID),
	)

	receipt := &AnswerReceipt{
		AnswerID:   answerID,
		SessionID:  sessionID,
		QuestionID: params.QuestionID,
	}

	if params.QuestionID == TerminalQuestionID {
		completed, err := s.completeSession(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		receipt.Completed = completed
	}

	return receipt, nil
}

// ensureSession creates the session row if absent and returns its id.
// The constraint-backed upsert makes concurrent first answers for the same
// conversation collapse onto one row.
func (s *Store) ensureSession(ctx context.Context, conversationID, surveyID string) (string, error) {
	query := `
		INSERT INTO survey_sessions (conversation_id, survey_id, started_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (conversation_id)
		DO UPDATE SET conversation_id = EXCLUDED.conversation_id
		RETURNING id
	`

	var sessionID string
	err := s.db.QueryRowContext(ctx, query, conversationID, surveyID).Scan(&sessionID)
	if err != nil {
		return "", queue.NewRetryableError(fmt.Errorf("failed to ensure session: %w", err))
	}

	return sessionID, nil
}

// completeSession sets completed_at exactly once. Reports whether this call
// performed the completion; a second terminal answer is a no-op.
func (s *Store) completeSession(ctx context.Context, sessionID string) (bool, error) {
	query := `
		UPDATE survey_sessions
		SET completed_at = NOW()
		WHERE id = $1 AND completed_at IS NULL
	`

	result, err := s.db.ExecContext(ctx, query, sessionID)
	if err != nil {
		return false, queue.NewRetryableError(fmt.Errorf("failed to complete session: %w", err))
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, queue.NewRetryableError(fmt.Errorf("failed to read completion result: %w", err))
	}

	if rows > 0 {
		s.logger.Info("Session auto-completed",
			slog.String("session_id", sessionID),
		)
	}

	return rows > 0, nil
}

// MarkSessionComplete completes a session by conversation id, outside the
// answer flow
func (s *Store) MarkSessionComplete(ctx context.Context, conversationID string) (string, error) {
	query := `
		UPDATE survey_sessions
		SET completed_at = NOW()
		WHERE conversation_id = $1 AND completed_at IS NULL
		RETURNING id
	`

	var sessionID string
	err := s.db.QueryRowContext(ctx, query, conversationID).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		// Already completed, or no such session. completed_at is set once
		// and never advanced, so an already-complete session is a no-op.
		err = s.db.QueryRowContext(ctx,
			`SELECT id FROM survey_sessions WHERE conversation_id = $1`,
			conversationID,
		).Scan(&sessionID)
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSessionNotFound
		}
		if err != nil {
			return "", queue.NewRetryableError(fmt.Errorf("failed to look up session: %w", err))
		}
		return sessionID, nil
	}
	if err != nil {
		return "", queue.NewRetryableError(fmt.Errorf("failed to mark session complete: %w", err))
	}

	return sessionID, nil
}
