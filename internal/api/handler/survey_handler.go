package handler

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ideaboard/ideaboard/internal/api/dto"
	"github.com/ideaboard/ideaboard/internal/api/model"
	"github.com/ideaboard/ideaboard/internal/api/storage"
	"github.com/ideaboard/ideaboard/internal/session"
	"github.com/ideaboard/ideaboard/internal/survey"
)

// ListSessions handles GET /api/v1/survey/sessions
// Lists sessions newest first with cursor pagination
func (h *Handler) ListSessions(c *gin.Context) {
	var req dto.ListSessionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid query parameters",
		})
		return
	}

	if req.PageSize <= 0 {
		req.PageSize = 20
	}
	if req.PageSize > 100 {
		req.PageSize = 100
	}

	cursor, err := DecodeSessionCursor(req.Cursor)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid cursor",
		})
		return
	}

	filter := storage.SessionFilter{
		SurveyID:      req.SurveyID,
		CompletedOnly: req.Completed,
		PageSize:      req.PageSize,
		Cursor:        cursor,
	}

	sessions, err := h.storage.ListSessions(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list sessions", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list sessions",
		})
		return
	}

	hasMore := len(sessions) > req.PageSize
	if hasMore {
		sessions = sessions[:req.PageSize]
	}

	sessionDTOs := make([]dto.SessionDTO, len(sessions))
	for i, s := range sessions {
		sessionDTOs[i] = toSessionDTO(s)
	}

	var nextCursor string
	if hasMore {
		last := sessions[len(sessions)-1]
		nextCursor, err = EncodeSessionCursor(&storage.SessionCursor{
			StartedAt: last.StartedAt,
			SessionID: last.ID,
		})
		if err != nil {
			h.logger.Error("Failed to encode next cursor", slog.String("error", err.Error()))
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to encode next cursor",
			})
			return
		}
	}

	c.JSON(http.StatusOK, dto.ListSessionsResponse{
		Sessions:   sessionDTOs,
		NextCursor: nextCursor,
	})
}

// GetSession handles GET /api/v1/survey/sessions/:conversation_id
// Returns one session with all of its answers
func (h *Handler) GetSession(c *gin.Context) {
	conversationID := c.Param("conversation_id")
	ctx := c.Request.Context()

	sess, err := h.storage.GetSessionByConversation(ctx, conversationID)
	if errors.Is(err, storage.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Session not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get session", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get session",
		})
		return
	}

	answers, err := h.storage.ListAnswers(ctx, sess.ID)
	if err != nil {
		h.logger.Error("Failed to list answers", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list answers",
		})
		return
	}

	answerDTOs := make([]dto.AnswerDTO, len(answers))
	for i, a := range answers {
		answerDTOs[i] = toAnswerDTO(a)
	}

	c.JSON(http.StatusOK, dto.SessionDetailResponse{
		Session: toSessionDTO(*sess),
		Answers: answerDTOs,
	})
}

// CompleteSession handles POST /api/v1/survey/sessions/:conversation_id/complete
// Operator endpoint closing a session that never reached the terminal
// question. Already-completed sessions are a no-op.
func (h *Handler) CompleteSession(c *gin.Context) {
	conversationID := c.Param("conversation_id")

	sessionID, err := h.survey.MarkSessionComplete(c.Request.Context(), conversationID)
	if errors.Is(err, survey.ErrSessionNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Session not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to complete session",
			slog.String("conversation_id", conversationID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to complete session",
		})
		return
	}

	c.JSON(http.StatusOK, dto.CompleteSessionResponse{
		SessionID:      sessionID,
		ConversationID: conversationID,
		Status:         "completed",
	})
}

// GetStats handles GET /api/v1/survey/stats
func (h *Handler) GetStats(c *gin.Context) {
	stats, err := h.storage.GetStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to load survey stats", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load stats",
		})
		return
	}

	var completionRate float64
	if stats.TotalSessions > 0 {
		completionRate = float64(stats.CompletedSessions) / float64(stats.TotalSessions)
	}

	c.JSON(http.StatusOK, dto.StatsResponse{
		TotalSessions:     stats.TotalSessions,
		CompletedSessions: stats.CompletedSessions,
		TotalAnswers:      stats.TotalAnswers,
		CompletionRate:    completionRate,
	})
}

// ExportAnswers handles GET /api/v1/survey/export
// Streams every answer joined with its session, as CSV or JSON
func (h *Handler) ExportAnswers(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	surveyID := c.Query("survey_id")

	rows, err := h.storage.ExportAnswers(c.Request.Context(), surveyID)
	if err != nil {
		h.logger.Error("Failed to export answers", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to export answers",
		})
		return
	}

	switch format {
	case "json":
		c.JSON(http.StatusOK, gin.H{
			"count":   len(rows),
			"answers": rows,
		})

	case "csv":
		filename := fmt.Sprintf("survey_export_%s.csv", time.Now().UTC().Format("20060102_150405"))
		c.Header("Content-Type", "text/csv")
		c.Header("Content-Disposition", "attachment; filename="+filename)

		w := csv.NewWriter(c.Writer)
		_ = w.Write([]string{
			"conversation_id", "survey_id", "started_at", "completed_at",
			"question_id", "section_name", "question_text", "answer_type",
			"answer_text", "answer_rating", "answer_choices", "answered_at",
		})

		for _, row := range rows {
			completedAt := ""
			if row.CompletedAt.Valid {
				completedAt = row.CompletedAt.Time.Format(time.RFC3339)
			}
			rating := ""
			if row.AnswerRating.Valid {
				rating = strconv.FormatInt(row.AnswerRating.Int64, 10)
			}

			_ = w.Write([]string{
				row.ConversationID,
				row.SurveyID,
				row.StartedAt.Format(time.RFC3339),
				completedAt,
				row.QuestionID,
				row.SectionName.String,
				row.QuestionText.String,
				row.AnswerType.String,
				row.AnswerText.String,
				rating,
				row.AnswerChoices.String,
				row.AnsweredAt.Format(time.RFC3339),
			})
		}

		w.Flush()

	default:
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "format must be csv or json",
		})
	}
}

// GetSessionState handles GET /api/v1/sessions/:session_id/state
// Returns the ephemeral activity counters kept in Redis
func (h *Handler) GetSessionState(c *gin.Context) {
	sessionID := c.Param("session_id")

	state, err := h.tracker.Get(c.Request.Context(), sessionID)
	if errors.Is(err, session.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Session state not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to load session state", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to load session state",
		})
		return
	}

	resp := dto.SessionStateResponse{
		SessionID:  state.SessionID,
		IdeaCount:  state.IdeaCount,
		WorkshopID: state.WorkshopID,
	}
	if !state.LastActivity.IsZero() {
		resp.LastActivity = state.LastActivity.Format(time.RFC3339)
	}

	c.JSON(http.StatusOK, resp)
}

func toSessionDTO(s model.Session) dto.SessionDTO {
	out := dto.SessionDTO{
		ConversationID: s.ConversationID,
		SurveyID:       s.SurveyID,
		StartedAt:      s.StartedAt.Format(time.RFC3339),
		AnswerCount:    s.AnswerCount,
	}
	if s.CompletedAt.Valid {
		out.CompletedAt = s.CompletedAt.Time.Format(time.RFC3339)
	}
	return out
}

func toAnswerDTO(a model.Answer) dto.AnswerDTO {
	out := dto.AnswerDTO{
		QuestionID:    a.QuestionID,
		SectionName:   a.SectionName.String,
		QuestionText:  a.QuestionText.String,
		AnswerType:    a.AnswerType.String,
		AnswerText:    a.AnswerText.String,
		RawTranscript: a.RawTranscript.String,
		AnsweredAt:    a.AnsweredAt.Format(time.RFC3339),
	}
	if a.AnswerRating.Valid {
		rating := int(a.AnswerRating.Int64)
		out.AnswerRating = &rating
	}
	if a.AnswerChoices.Valid && a.AnswerChoices.String != "" {
		var choices []string
		if err := json.Unmarshal([]byte(a.AnswerChoices.String), &choices); err == nil {
			out.AnswerChoices = choices
		}
	}
	return out
}
