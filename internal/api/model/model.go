package model

import (
	"database/sql"
	"time"
)

// Session is one survey conversation as stored in survey_sessions
type Session struct {
	ID             string       `db:"id"`
	ConversationID string       `db:"conversation_id"`
	SurveyID       string       `db:"survey_id"`
	StartedAt      time.Time    `db:"started_at"`
	CompletedAt    sql.NullTime `db:"completed_at"`
	AnswerCount    int          `db:"answer_count"`
}

// Answer is one recorded survey answer as stored in survey_answers
type Answer struct {
	ID            string         `db:"id"`
	SessionID     string         `db:"session_id"`
	QuestionID    string         `db:"question_id"`
	SectionName   sql.NullString `db:"section_name"`
	QuestionText  sql.NullString `db:"question_text"`
	AnswerType    sql.NullString `db:"answer_type"`
	AnswerText    sql.NullString `db:"answer_text"`
	AnswerRating  sql.NullInt64  `db:"answer_rating"`
	AnswerChoices sql.NullString `db:"answer_choices"`
	RawTranscript sql.NullString `db:"raw_transcript"`
	AnsweredAt    time.Time      `db:"answered_at"`
}

// SurveyStats is the aggregate view over all sessions
type SurveyStats struct {
	TotalSessions     int `db:"total_sessions"`
	CompletedSessions int `db:"completed_sessions"`
	TotalAnswers      int `db:"total_answers"`
}
