package queue

import (
	"encoding/json"
	"fmt"
	"time"
)

// Job kind tokens carried in the envelope
const (
	TokenCard   = "miro_card"
	TokenAnswer = "survey_answer"
)

// Default values substituted for missing card fields
const (
	DefaultItem  = "Untitled Item"
	DefaultName  = "Anonymous"
	DefaultTheme = "default"
)

// DefaultSurveyID is used when a survey answer does not name its survey
const DefaultSurveyID = "healthcare_ai_2025"

// Envelope is the queue wire format. The token selects the job kind;
// parameters are decoded into the matching typed params before dispatch.
type Envelope struct {
	Token      string          `json:"token"`
	Timestamp  string          `json:"timestamp"`
	Parameters json.RawMessage `json:"parameters"`
}

// CardParams carries card-creation parameters. All fields are optional;
// ApplyDefaults fills the blanks.
type CardParams struct {
	Item  string `json:"Item"`
	Name  string `json:"Name"`
	Theme string `json:"Theme"`

	// Optional correlation ids for session activity tracking
	SessionID  string `json:"session_id,omitempty"`
	WorkshopID string `json:"workshop_id,omitempty"`
}

// ApplyDefaults substitutes defaults for empty fields
func (p *CardParams) ApplyDefaults() {
	if p.Item == "" {
		p.Item = DefaultItem
	}
	if p.Name == "" {
		p.Name = DefaultName
	}
	if p.Theme == "" {
		p.Theme = DefaultTheme
	}
}

// AnswerParams carries one survey answer
type AnswerParams struct {
	ConversationID string   `json:"conversation_id"`
	QuestionID     string   `json:"question_id"`
	SurveyID       string   `json:"survey_id"`
	SectionName    string   `json:"section_name"`
	QuestionText   string   `json:"question_text"`
	AnswerType     string   `json:"answer_type"`
	AnswerText     string   `json:"answer_text"`
	AnswerRating   *int     `json:"answer_rating"`
	AnswerChoices  []string `json:"answer_choices"`
	RawTranscript  string   `json:"raw_transcript"`
}

// Validate checks the required identifiers. A failure here is fatal and
// must not be retried.
func (p *AnswerParams) Validate() error {
	if p.ConversationID == "" {
		return fmt.Errorf("%w: missing conversation_id", ErrInvalidEnvelope)
	}
	if p.QuestionID == "" {
		return fmt.Errorf("%w: missing question_id", ErrInvalidEnvelope)
	}
	return nil
}

// ApplyDefaults fills optional fields with their defaults
func (p *AnswerParams) ApplyDefaults() {
	if p.SurveyID == "" {
		p.SurveyID = DefaultSurveyID
	}
	if p.AnswerType == "" {
		p.AnswerType = "free_text"
	}
}

// NewEnvelope builds an envelope stamped with the current UTC time
func NewEnvelope(token string, parameters any) (*Envelope, error) {
	params, err := json.Marshal(parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal parameters: %w", err)
	}

	return &Envelope{
		Token:      token,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Parameters: params,
	}, nil
}

// DecodeEnvelope parses a job payload into an envelope and validates its
// token. Decode failures are fatal.
func DecodeEnvelope(payload []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(payload, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}

	switch env.Token {
	case TokenCard, TokenAnswer:
		return &env, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownToken, env.Token)
	}
}

// CardParams decodes the envelope parameters as card-creation input
func (e *Envelope) CardParams() (*CardParams, error) {
	var params CardParams
	if len(e.Parameters) > 0 {
		if err := json.Unmarshal(e.Parameters, &params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
	}
	params.ApplyDefaults()
	return &params, nil
}

// AnswerParams decodes the envelope parameters as a survey answer
func (e *Envelope) AnswerParams() (*AnswerParams, error) {
	var params AnswerParams
	if len(e.Parameters) > 0 {
		if err := json.Unmarshal(e.Parameters, &params); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
		}
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	params.ApplyDefaults()
	return &params, nil
}

// naiveTimeLayout matches producers that stamp UTC without an offset.
// time.Parse accepts a trailing fractional second without a layout marker.
const naiveTimeLayout = "2006-01-02T15:04:05"

// Time parses the envelope timestamp. Offset-less values are treated as
// UTC; the zero time is returned for missing or malformed values.
func (e *Envelope) Time() time.Time {
	if e.Timestamp == "" {
		return time.Time{}
	}
	if t, err := time.Parse(time.RFC3339, e.Timestamp); err == nil {
		return t
	}
	if t, err := time.Parse(naiveTimeLayout, e.Timestamp); err == nil {
		return t
	}
	return time.Time{}
}
