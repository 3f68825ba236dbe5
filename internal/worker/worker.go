package worker

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/ideaboard/ideaboard/internal/board"
	"github.com/ideaboard/ideaboard/internal/queue"
	"github.com/ideaboard/ideaboard/internal/survey"
)

// CardPublisher creates cards on the remote board
type CardPublisher interface {
	Publish(ctx context.Context, boardID string, card board.RenderedCard, pos board.Position) (string, error)
}

// AnswerStore persists survey answers
type AnswerStore interface {
	RecordAnswer(ctx context.Context, params queue.AnswerParams) (*survey.AnswerReceipt, error)
}

// SessionTracker keeps ephemeral per-session counters
type SessionTracker interface {
	IncrementIdeaCount(ctx context.Context, sessionID string) (int64, error)
	Touch(ctx context.Context, sessionID, workshopID string) error
}

// EventSink emits fire-and-forget status events
type EventSink interface {
	Publish(ctx context.Context, event string, fields map[string]interface{})
}

// Config holds worker configuration
type Config struct {
	Logger     *slog.Logger
	Dispatcher *queue.Dispatcher
	Publisher  CardPublisher
	Store      AnswerStore
	Tracker    SessionTracker
	Events     EventSink
	Allocator  *board.Allocator

	BoardID        string
	Queues         []string
	Concurrency    int
	JobTimeout     time.Duration
	ReaperInterval time.Duration
}

// Worker pulls jobs off the dispatcher and runs them through the card and
// survey pipelines
type Worker struct {
	logger     *slog.Logger
	dispatcher *queue.Dispatcher
	publisher  CardPublisher
	store      AnswerStore
	tracker    SessionTracker
	events     EventSink
	allocator  *board.Allocator

	boardID        string
	queues         []string
	concurrency    int
	jobTimeout     time.Duration
	reaperInterval time.Duration

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopChan chan struct{}
}

// NewWorker creates a new worker instance
func NewWorker(cfg *Config) *Worker {
	concurrency := cfg.Concurrency
	if concurrency <= 0 {
		concurrency = 1
	}

	jobTimeout := cfg.JobTimeout
	if jobTimeout <= 0 {
		jobTimeout = queue.DefaultJobTimeout
	}

	reaperInterval := cfg.ReaperInterval
	if reaperInterval <= 0 {
		reaperInterval = 30 * time.Second
	}

	return &Worker{
		logger:         cfg.Logger,
		dispatcher:     cfg.Dispatcher,
		publisher:      cfg.Publisher,
		store:          cfg.Store,
		tracker:        cfg.Tracker,
		events:         cfg.Events,
		allocator:      cfg.Allocator,
		boardID:        cfg.BoardID,
		queues:         cfg.Queues,
		concurrency:    concurrency,
		jobTimeout:     jobTimeout,
		reaperInterval: reaperInterval,
		stopChan:       make(chan struct{}),
	}
}

// Start spawns the worker pool and the reaper, then blocks until the context
// is canceled or Stop is called
func (w *Worker) Start(ctx context.Context) error {
	w.logger.Info("Starting worker",
		slog.Int("concurrency", w.concurrency),
		slog.Any("queues", w.queues),
		slog.Duration("job_timeout", w.jobTimeout),
	)

	loopCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		select {
		case <-w.stopChan:
			cancel()
		case <-loopCtx.Done():
		}
	}()

	w.spawnWorkerPool(loopCtx)

	w.wg.Add(1)
	go w.reaperLoop(loopCtx)

	<-loopCtx.Done()
	w.logger.Info("Worker context canceled, stopping...")
	w.wg.Wait()

	return nil
}

// Stop gracefully stops the worker
func (w *Worker) Stop() {
	w.logger.Info("Stopping worker...")
	w.stopOnce.Do(func() {
		close(w.stopChan)
	})
	w.wg.Wait()
	w.logger.Info("Worker stopped")
}

// reaperLoop periodically sweeps each queue for jobs whose visibility
// deadline passed, recording the timeout and pushing them back for
// redelivery
func (w *Worker) reaperLoop(ctx context.Context) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.reaperInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case <-ticker.C:
			for _, queueName := range w.queues {
				requeued, err := w.dispatcher.RequeueExpired(ctx, queueName)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					w.logger.Error("Reaper sweep failed",
						slog.String("queue", queueName),
						slog.String("error", err.Error()),
					)
					continue
				}
				if requeued > 0 {
					w.logger.Warn("Requeued expired jobs",
						slog.String("queue", queueName),
						slog.Int("count", requeued),
					)
				}
			}
		}
	}
}
