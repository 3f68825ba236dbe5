package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/ideaboard/ideaboard/internal/api/dto"
	"github.com/ideaboard/ideaboard/internal/queue"
)

// QueueStatus handles GET /api/v1/queue/status
// Reports pending and failed depths for both configured queues
func (h *Handler) QueueStatus(c *gin.Context) {
	ctx := c.Request.Context()

	statuses := make([]dto.QueueStatus, 0, 2)
	for _, queueName := range []string{h.cardQueue, h.surveyQueue} {
		pending, err := h.dispatcher.PendingCount(ctx, queueName)
		if err != nil {
			h.logger.Error("Failed to get pending count",
				slog.String("queue", queueName),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get queue status",
			})
			return
		}

		failed, err := h.dispatcher.FailedCount(ctx, queueName)
		if err != nil {
			h.logger.Error("Failed to get failed count",
				slog.String("queue", queueName),
				slog.String("error", err.Error()),
			)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Failed to get queue status",
			})
			return
		}

		statuses = append(statuses, dto.QueueStatus{
			Queue:   queueName,
			Pending: pending,
			Failed:  failed,
		})
	}

	c.JSON(http.StatusOK, dto.QueueStatusResponse{Queues: statuses})
}

// GetQueueJob handles GET /api/v1/queue/jobs/:job_id
// Returns one job's dispatcher state
func (h *Handler) GetQueueJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	job, err := h.dispatcher.GetJob(c.Request.Context(), jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to get job", slog.String("error", err.Error()))
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job",
		})
		return
	}

	c.JSON(http.StatusOK, dto.JobResponse{
		JobID:      job.ID,
		Queue:      job.Queue,
		Kind:       job.Kind,
		Status:     job.Status,
		EnqueuedAt: job.EnqueuedAt.Format(time.RFC3339),
		Deliveries: job.Deliveries,
		Error:      job.Error,
	})
}

// RequeueJob handles POST /api/v1/queue/jobs/:job_id/requeue
// Moves a failed job back onto its pending queue for a fresh execution
func (h *Handler) RequeueJob(c *gin.Context) {
	jobID := c.Param("job_id")

	if _, err := uuid.Parse(jobID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "job_id must be a valid UUID",
		})
		return
	}

	err := h.dispatcher.Requeue(c.Request.Context(), jobID)
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Job not found",
		})
		return
	}
	if err != nil {
		h.logger.Error("Failed to requeue job",
			slog.String("job_id", jobID),
			slog.String("error", err.Error()),
		)
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to requeue job",
		})
		return
	}

	h.logger.Info("Job requeued by operator", slog.String("job_id", jobID))

	c.JSON(http.StatusOK, gin.H{
		"job_id": jobID,
		"status": queue.StatusQueued,
	})
}
