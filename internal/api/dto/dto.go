package dto

// IdeaWebhookRequest is the inbound payload from the voice agent's card
// tool call. Every field is optional; blanks fall back to defaults in the
// worker.
type IdeaWebhookRequest struct {
	Item       string `json:"Item"`
	Name       string `json:"Name"`
	Theme      string `json:"Theme"`
	SessionID  string `json:"session_id"`
	WorkshopID string `json:"workshop_id"`
}

// AnswerWebhookRequest is the inbound payload from the survey agent's
// answer tool call
type AnswerWebhookRequest struct {
	ConversationID string   `json:"conversation_id" binding:"required"`
	QuestionID     string   `json:"question_id" binding:"required"`
	SurveyID       string   `json:"survey_id"`
	SectionName    string   `json:"section_name"`
	QuestionText   string   `json:"question_text"`
	AnswerType     string   `json:"answer_type"`
	AnswerText     string   `json:"answer_text"`
	AnswerRating   *int     `json:"answer_rating"`
	AnswerChoices  []string `json:"answer_choices"`
	RawTranscript  string   `json:"raw_transcript"`
}

// EnqueueResponse acknowledges an accepted webhook
type EnqueueResponse struct {
	JobID  string `json:"job_id"`
	Queue  string `json:"queue"`
	Status string `json:"status"`
}

// QueueStatus reports one queue's depth
type QueueStatus struct {
	Queue   string `json:"queue"`
	Pending int64  `json:"pending"`
	Failed  int64  `json:"failed"`
}

// QueueStatusResponse reports all configured queues
type QueueStatusResponse struct {
	Queues []QueueStatus `json:"queues"`
}

// JobResponse is one job's dispatcher state
type JobResponse struct {
	JobID      string `json:"job_id"`
	Queue      string `json:"queue"`
	Kind       string `json:"kind"`
	Status     string `json:"status"`
	EnqueuedAt string `json:"enqueued_at"`
	Deliveries int    `json:"deliveries"`
	Error      string `json:"error,omitempty"`
}

// SessionDTO is one survey session in reporting responses
type SessionDTO struct {
	ConversationID string `json:"conversation_id"`
	SurveyID       string `json:"survey_id"`
	StartedAt      string `json:"started_at"`
	CompletedAt    string `json:"completed_at,omitempty"`
	AnswerCount    int    `json:"answer_count"`
}

// ListSessionsRequest carries reporting list filters
type ListSessionsRequest struct {
	SurveyID  string `form:"survey_id"`
	Completed bool   `form:"completed"`
	PageSize  int    `form:"page_size"`
	Cursor    string `form:"cursor"`
}

// ListSessionsResponse is a page of sessions
type ListSessionsResponse struct {
	Sessions   []SessionDTO `json:"sessions"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

// AnswerDTO is one answer in session detail responses
type AnswerDTO struct {
	QuestionID    string   `json:"question_id"`
	SectionName   string   `json:"section_name,omitempty"`
	QuestionText  string   `json:"question_text,omitempty"`
	AnswerType    string   `json:"answer_type,omitempty"`
	AnswerText    string   `json:"answer_text,omitempty"`
	AnswerRating  *int     `json:"answer_rating,omitempty"`
	AnswerChoices []string `json:"answer_choices,omitempty"`
	RawTranscript string   `json:"raw_transcript,omitempty"`
	AnsweredAt    string   `json:"answered_at"`
}

// SessionDetailResponse is one session with its answers
type SessionDetailResponse struct {
	Session SessionDTO  `json:"session"`
	Answers []AnswerDTO `json:"answers"`
}

// CompleteSessionResponse acknowledges an operator-triggered completion
type CompleteSessionResponse struct {
	SessionID      string `json:"session_id"`
	ConversationID string `json:"conversation_id"`
	Status         string `json:"status"`
}

// StatsResponse is the aggregate survey view
type StatsResponse struct {
	TotalSessions     int     `json:"total_sessions"`
	CompletedSessions int     `json:"completed_sessions"`
	TotalAnswers      int     `json:"total_answers"`
	CompletionRate    float64 `json:"completion_rate"`
}

// SessionStateResponse is the ephemeral per-session activity view
type SessionStateResponse struct {
	SessionID    string `json:"session_id"`
	IdeaCount    int64  `json:"idea_count"`
	WorkshopID   string `json:"workshop_id,omitempty"`
	LastActivity string `json:"last_activity,omitempty"`
}
