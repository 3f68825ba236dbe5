package events

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/ideaboard/ideaboard/shared/rabbitmq"
)

// Event names emitted by the worker pipeline
const (
	EventIdeaProcessed   = "idea_processed"
	EventAnswerRecorded  = "answer_recorded"
	EventProcessingError = "processing_error"
)

// Publisher emits status events on a fanout exchange for SSE bridges and
// dashboards. Delivery is fire-and-forget: subscribers get no guarantee,
// and publish failures are logged and swallowed because events are never
// allowed to fail a job.
type Publisher struct {
	client *rabbitmq.Client
	logger *slog.Logger
}

// NewPublisher creates an event publisher over an existing RabbitMQ client
func NewPublisher(client *rabbitmq.Client, logger *slog.Logger) *Publisher {
	return &Publisher{
		client: client,
		logger: logger,
	}
}

// Publish emits one event with a timestamp merged into the given fields
func (p *Publisher) Publish(ctx context.Context, event string, fields map[string]interface{}) {
	payload := make(map[string]interface{}, len(fields)+2)
	for k, v := range fields {
		payload[k] = v
	}
	payload["event"] = event
	payload["timestamp"] = time.Now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(payload)
	if err != nil {
		p.logger.Warn("Failed to marshal event",
			slog.String("event", event),
			slog.Any("error", err),
		)
		return
	}

	if err := p.client.Publish(ctx, body, "application/json"); err != nil {
		p.logger.Warn("Failed to publish event",
			slog.String("event", event),
			slog.Any("error", err),
		)
	}
}
