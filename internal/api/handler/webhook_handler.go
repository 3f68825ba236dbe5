package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ideaboard/ideaboard/internal/api/dto"
	"github.com/ideaboard/ideaboard/internal/queue"
)

// PostIdea handles POST /webhook/idea
// Wraps a voice tool call into a card job and enqueues it. The webhook
// returns as soon as the job is queued; card creation happens in the worker.
func (h *Handler) PostIdea(c *gin.Context) {
	var req dto.IdeaWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid idea webhook body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request body",
		})
		return
	}

	params := queue.CardParams{
		Item:       req.Item,
		Name:       req.Name,
		Theme:      req.Theme,
		SessionID:  req.SessionID,
		WorkshopID: req.WorkshopID,
	}

	jobID, err := h.enqueueEnvelope(c, queue.TokenCard, h.cardQueue, h.cardJobTimeout, params)
	if err != nil {
		return
	}

	h.logger.Info("Idea enqueued",
		slog.String("job_id", jobID),
		slog.String("theme", req.Theme),
		slog.String("session_id", req.SessionID),
	)

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{
		JobID:  jobID,
		Queue:  h.cardQueue,
		Status: queue.StatusQueued,
	})
}

// PostAnswer handles POST /webhook/answer
// Wraps a survey tool call into an answer job and enqueues it
func (h *Handler) PostAnswer(c *gin.Context) {
	var req dto.AnswerWebhookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid answer webhook body", slog.String("error", err.Error()))
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "conversation_id and question_id are required",
		})
		return
	}

	params := queue.AnswerParams{
		ConversationID: req.ConversationID,
		QuestionID:     req.QuestionID,
		SurveyID:       req.SurveyID,
		SectionName:    req.SectionName,
		QuestionText:   req.QuestionText,
		AnswerType:     req.AnswerType,
		AnswerText:     req.AnswerText,
		AnswerRating:   req.AnswerRating,
		AnswerChoices:  req.AnswerChoices,
		RawTranscript:  req.RawTranscript,
	}

	jobID, err := h.enqueueEnvelope(c, queue.TokenAnswer, h.surveyQueue, h.answerJobTimeout, params)
	if err != nil {
		return
	}

	h.logger.Info("Answer enqueued",
		slog.String("job_id", jobID),
		slog.String("conversation_id", req.ConversationID),
		slog.String("question_id", req.QuestionID),
	)

	c.JSON(http.StatusAccepted, dto.EnqueueResponse{
		JobID:  jobID,
		Queue:  h.surveyQueue,
		Status: queue.StatusQueued,
	})
}

// enqueueEnvelope wraps params in an envelope and pushes it onto the given
// queue, writing the error response itself on failure
func (h *Handler) enqueueEnvelope(c *gin.Context, token, queueName string, timeout time.Duration, params any) (string, error) {
	env, err := queue.NewEnvelope(token, params)
	if err != nil {
		h.logger.Error("Failed to build envelope", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return "", err
	}

	payload, err := json.Marshal(env)
	if err != nil {
		h.logger.Error("Failed to marshal envelope", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return "", err
	}

	jobID, err := h.dispatcher.Enqueue(c.Request.Context(), queueName, token, payload, timeout)
	if err != nil {
		h.logger.Error("Failed to enqueue job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to enqueue job",
		})
		return "", err
	}

	return jobID, nil
}
