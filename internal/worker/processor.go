package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/ideaboard/ideaboard/internal/board"
	"github.com/ideaboard/ideaboard/internal/events"
	"github.com/ideaboard/ideaboard/internal/queue"
)

// processJob runs one job end to end and reports the outcome to the
// dispatcher. Fatal and retryable failures both land in Fail; redelivery of
// retryable ones happens through the visibility timeout, never through an
// in-worker retry loop.
func (w *Worker) processJob(ctx context.Context, job *queue.Job) {
	jobTimeout := w.jobTimeout
	if job.Timeout > 0 {
		jobTimeout = job.Timeout
	}

	jobCtx, cancel := context.WithTimeout(ctx, jobTimeout)
	defer cancel()

	result, err := w.executeJob(jobCtx, job)
	if err != nil {
		w.logger.Error("Job execution failed",
			slog.String("job_id", job.ID),
			slog.String("kind", job.Kind),
			slog.Bool("retryable", queue.IsRetryable(err)),
			slog.String("error", err.Error()),
		)

		if failErr := w.dispatcher.Fail(ctx, job.ID, err); failErr != nil {
			w.logger.Error("Failed to record job failure",
				slog.String("job_id", job.ID),
				slog.String("error", failErr.Error()),
			)
		}

		w.events.Publish(ctx, events.EventProcessingError, map[string]interface{}{
			"job_id":    job.ID,
			"queue":     job.Queue,
			"error":     err.Error(),
			"retryable": queue.IsRetryable(err),
		})
		return
	}

	w.logger.Info("Job completed successfully",
		slog.String("job_id", job.ID),
		slog.String("kind", job.Kind),
	)

	if completeErr := w.dispatcher.Complete(ctx, job.ID, result); completeErr != nil {
		w.logger.Error("Failed to record job completion",
			slog.String("job_id", job.ID),
			slog.String("error", completeErr.Error()),
		)
	}
}

// executeJob decodes the envelope and dispatches on its token
func (w *Worker) executeJob(ctx context.Context, job *queue.Job) (map[string]interface{}, error) {
	env, err := queue.DecodeEnvelope(job.Payload)
	if err != nil {
		return nil, err
	}

	switch env.Token {
	case queue.TokenCard:
		return w.processCard(ctx, env)
	case queue.TokenAnswer:
		return w.processAnswer(ctx, env)
	default:
		// DecodeEnvelope already rejects unknown tokens
		return nil, queue.ErrUnknownToken
	}
}

// processCard renders an idea card, claims a grid slot, and publishes the
// card to the board. The slot is claimed before the remote call, so a failed
// publish leaves a gap in the grid rather than risking overlap on retry.
func (w *Worker) processCard(ctx context.Context, env *queue.Envelope) (map[string]interface{}, error) {
	params, err := env.CardParams()
	if err != nil {
		return nil, err
	}

	card := board.RenderCard(params.Item, params.Name, params.Theme, env.Time())
	pos := w.allocator.NextPosition(w.boardID)

	cardID, err := w.publisher.Publish(ctx, w.boardID, card, pos)
	if err != nil {
		return nil, err
	}

	// Session stats are best effort; a Redis hiccup never fails a job whose
	// card already exists on the board
	if params.SessionID != "" {
		if _, err := w.tracker.IncrementIdeaCount(ctx, params.SessionID); err != nil {
			w.logger.Warn("Failed to update session idea count",
				slog.String("session_id", params.SessionID),
				slog.String("error", err.Error()),
			)
		}
		if err := w.tracker.Touch(ctx, params.SessionID, params.WorkshopID); err != nil {
			w.logger.Warn("Failed to touch session",
				slog.String("session_id", params.SessionID),
				slog.String("error", err.Error()),
			)
		}
	}

	w.events.Publish(ctx, events.EventIdeaProcessed, map[string]interface{}{
		"card_id":    cardID,
		"board_id":   w.boardID,
		"session_id": params.SessionID,
		"theme":      params.Theme,
	})

	return map[string]interface{}{
		"success":   true,
		"card_id":   cardID,
		"board_id":  w.boardID,
		"item":      params.Item,
		"name":      params.Name,
		"theme":     params.Theme,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	}, nil
}

// processAnswer records one survey answer in the durable store
func (w *Worker) processAnswer(ctx context.Context, env *queue.Envelope) (map[string]interface{}, error) {
	params, err := env.AnswerParams()
	if err != nil {
		return nil, err
	}

	receipt, err := w.store.RecordAnswer(ctx, *params)
	if err != nil {
		return nil, err
	}

	w.events.Publish(ctx, events.EventAnswerRecorded, map[string]interface{}{
		"conversation_id": params.ConversationID,
		"question_id":     receipt.QuestionID,
		"answer_id":       receipt.AnswerID,
		"completed":       receipt.Completed,
	})

	return map[string]interface{}{
		"success":     true,
		"answer_id":   receipt.AnswerID,
		"session_id":  receipt.SessionID,
		"question_id": receipt.QuestionID,
		"completed":   receipt.Completed,
	}, nil
}
