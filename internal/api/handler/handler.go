package handler

import (
	"context"
	"log/slog"
	"time"

	"github.com/ideaboard/ideaboard/internal/api/storage"
	"github.com/ideaboard/ideaboard/internal/queue"
	"github.com/ideaboard/ideaboard/internal/session"
	"github.com/ideaboard/ideaboard/shared/postgresql"
	"github.com/ideaboard/ideaboard/shared/redis"
)

// SurveyCompleter closes out a survey session outside the answer flow
type SurveyCompleter interface {
	MarkSessionComplete(ctx context.Context, conversationID string) (string, error)
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Logger      *slog.Logger
	Dispatcher  *queue.Dispatcher
	Storage     *storage.Storage
	Survey      SurveyCompleter
	Tracker     *session.Tracker
	DBClient    *postgresql.Client
	RedisClient *redis.Client

	APIKey           string
	CardQueue        string
	SurveyQueue      string
	CardJobTimeout   time.Duration
	AnswerJobTimeout time.Duration
}

// Handler handles webhook, queue, and reporting HTTP requests
type Handler struct {
	logger      *slog.Logger
	dispatcher  *queue.Dispatcher
	storage     *storage.Storage
	survey      SurveyCompleter
	tracker     *session.Tracker
	dbClient    *postgresql.Client
	redisClient *redis.Client

	cardQueue        string
	surveyQueue      string
	cardJobTimeout   time.Duration
	answerJobTimeout time.Duration
}

// NewHandler creates a new Handler instance
func NewHandler(deps *Dependencies) *Handler {
	return &Handler{
		logger:           deps.Logger,
		dispatcher:       deps.Dispatcher,
		storage:          deps.Storage,
		survey:           deps.Survey,
		tracker:          deps.Tracker,
		dbClient:         deps.DBClient,
		redisClient:      deps.RedisClient,
		cardQueue:        deps.CardQueue,
		surveyQueue:      deps.SurveyQueue,
		cardJobTimeout:   deps.CardJobTimeout,
		answerJobTimeout: deps.AnswerJobTimeout,
	}
}
