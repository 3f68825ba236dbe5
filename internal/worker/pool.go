package worker

import (
	"context"
	"log/slog"
	"time"
)

// spawnWorkerPool spawns N worker goroutines based on concurrency configuration
func (w *Worker) spawnWorkerPool(ctx context.Context) {
	w.logger.Info("Spawning worker pool",
		slog.Int("concurrency", w.concurrency),
	)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.workerLoop(ctx, i)
	}

	w.logger.Info("Worker pool spawned successfully",
		slog.Int("worker_count", w.concurrency),
	)
}

// workerLoop is the main processing loop for each worker goroutine
func (w *Worker) workerLoop(ctx context.Context, workerNum int) {
	defer w.wg.Done()

	logger := w.logger.With(slog.Int("worker_num", workerNum))
	logger.Info("Worker goroutine started")

	for {
		job, err := w.dispatcher.Dequeue(ctx, w.queues...)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("Worker goroutine stopping - context canceled")
				return
			}

			logger.Error("Failed to dequeue job",
				slog.String("error", err.Error()),
			)

			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}

		logger.Info("Worker received job",
			slog.String("job_id", job.ID),
			slog.String("queue", job.Queue),
			slog.Int("deliveries", job.Deliveries),
		)

		w.processJob(ctx, job)
	}
}
