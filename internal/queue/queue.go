package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix    = "ideaboard:queue:"
	jobKeyPrefix = "ideaboard:job:"
)

// Default dispatcher settings
const (
	DefaultJobTimeout   = 5 * time.Minute
	DefaultPollInterval = 500 * time.Millisecond
	DefaultResultTTL    = 500 * time.Second
)

// dequeueScript atomically moves one job id from the pending list into the
// started registry, scored by its visibility deadline. The atomic move is
// what guarantees a job is handed to exactly one worker execution.
//
// KEYS[1] pending list, KEYS[2] started zset
// ARGV[1] now (unix ms), ARGV[2] job key prefix, ARGV[3] default timeout ms
var dequeueScript = redis.NewScript(`
local id = redis.call('RPOP', KEYS[1])
if not id then
  return false
end
local jobKey = ARGV[2] .. id
local timeout = tonumber(redis.call('HGET', jobKey, 'timeout_ms'))
if not timeout or timeout <= 0 then
  timeout = tonumber(ARGV[3])
end
redis.call('ZADD', KEYS[2], tonumber(ARGV[1]) + timeout, id)
redis.call('HSET', jobKey, 'status', 'started')
redis.call('HINCRBY', jobKey, 'deliveries', 1)
return id
`)

// Dispatcher is a Redis-backed durable job queue with at-least-once
// delivery. Jobs live in a per-queue pending list; in-flight executions are
// tracked in a started registry scored by visibility deadline, and terminal
// failures in a failure registry.
type Dispatcher struct {
	rdb          *redis.Client
	logger       *slog.Logger
	pollInterval time.Duration
	resultTTL    time.Duration
	jobTimeout   time.Duration
}

// Options configures a Dispatcher; zero values fall back to defaults
type Options struct {
	PollInterval time.Duration
	ResultTTL    time.Duration
	JobTimeout   time.Duration
}

// NewDispatcher creates a dispatcher on top of an existing Redis client
func NewDispatcher(rdb *redis.Client, logger *slog.Logger, opts Options) *Dispatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.ResultTTL <= 0 {
		opts.ResultTTL = DefaultResultTTL
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = DefaultJobTimeout
	}

	return &Dispatcher{
		rdb:          rdb,
		logger:       logger,
		pollInterval: opts.PollInterval,
		resultTTL:    opts.ResultTTL,
		jobTimeout:   opts.JobTimeout,
	}
}

func pendingKey(queue string) string { return keyPrefix + queue }
func startedKey(queue string) string { return keyPrefix + queue + ":started" }
func failedKey(queue string) string  { return keyPrefix + queue + ":failed" }
func jobKey(jobID string) string     { return jobKeyPrefix + jobID }

// Enqueue stores a durable job record and makes it visible on the named
// queue. A zero timeout falls back to the dispatcher default.
func (d *Dispatcher) Enqueue(ctx context.Context, queueName, kind string, payload []byte, timeout time.Duration) (string, error) {
	if timeout <= 0 {
		timeout = d.jobTimeout
	}

	jobID := uuid.New().String()
	now := time.Now().UTC()

	pipe := d.rdb.TxPipeline()
	pipe.HSet(ctx, jobKey(jobID),
		"id", jobID,
		"queue", queueName,
		"kind", kind,
		"payload", string(payload),
		"status", StatusQueued,
		"enqueued_at", now.Format(time.RFC3339Nano),
		"timeout_ms", timeout.Milliseconds(),
		"deliveries", 0,
	)
	pipe.LPush(ctx, pendingKey(queueName), jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("failed to enqueue job: %w", err)
	}

	d.logger.Info("Job enqueued",
		slog.String("job_id", jobID),
		slog.String("queue", queueName),
		slog.String("kind", kind),
		slog.Duration("timeout", timeout),
	)

	return jobID, nil
}

// Dequeue blocks until a job is available on one of the named queues or ctx
// is done. Queues are polled in order, sleeping one poll interval between
// empty rounds.
func (d *Dispatcher) Dequeue(ctx context.Context, queues ...string) (*Job, error) {
	for {
		for _, queueName := range queues {
			job, err := d.tryDequeue(ctx, queueName)
			if err != nil {
				return nil, err
			}
			if job != nil {
				return job, nil
			}
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d.pollInterval):
		}
	}
}

// tryDequeue pops at most one job from a single queue
func (d *Dispatcher) tryDequeue(ctx context.Context, queueName string) (*Job, error) {
	now := time.Now().UnixMilli()

	res, err := dequeueScript.Run(ctx, d.rdb,
		[]string{pendingKey(queueName), startedKey(queueName)},
		now, jobKeyPrefix, d.jobTimeout.Milliseconds(),
	).Result()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to dequeue from %s: %w", queueName, err)
	}

	jobID, ok := res.(string)
	if !ok || jobID == "" {
		return nil, nil
	}

	job, err := d.GetJob(ctx, jobID)
	if err != nil {
		if errors.Is(err, ErrJobNotFound) {
			// Record evicted between pop and load; drop the orphan id.
			d.rdb.ZRem(ctx, startedKey(queueName), jobID)
			return nil, nil
		}
		return nil, err
	}

	d.logger.Debug("Job dequeued",
		slog.String("job_id", job.ID),
		slog.String("queue", queueName),
		slog.Int("deliveries", job.Deliveries),
	)

	return job, nil
}

// Complete marks a job finished, stores its structured result, and removes
// it from the started and failure registries. The record is retained for
// the result TTL.
func (d *Dispatcher) Complete(ctx context.Context, jobID string, result map[string]interface{}) error {
	queueName, err := d.queueOf(ctx, jobID)
	if err != nil {
		return err
	}

	var resultJSON []byte
	if result != nil {
		resultJSON, err = json.Marshal(result)
		if err != nil {
			return fmt.Errorf("failed to marshal result: %w", err)
		}
	}

	pipe := d.rdb.TxPipeline()
	pipe.ZRem(ctx, startedKey(queueName), jobID)
	pipe.ZRem(ctx, failedKey(queueName), jobID)
	pipe.HSet(ctx, jobKey(jobID),
		"status", StatusFinished,
		"result", string(resultJSON),
		"error", "",
	)
	pipe.Expire(ctx, jobKey(jobID), d.resultTTL)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to complete job: %w", err)
	}

	d.logger.Info("Job completed",
		slog.String("job_id", jobID),
		slog.String("queue", queueName),
	)

	return nil
}

// Fail marks a job failed and records it in the queue's failure registry,
// where it stays until completed, requeued, or evicted.
func (d *Dispatcher) Fail(ctx context.Context, jobID string, cause error) error {
	queueName, err := d.queueOf(ctx, jobID)
	if err != nil {
		return err
	}

	errMsg := "unknown error"
	if cause != nil {
		errMsg = cause.Error()
	}

	pipe := d.rdb.TxPipeline()
	pipe.ZRem(ctx, startedKey(queueName), jobID)
	pipe.HSet(ctx, jobKey(jobID),
		"status", StatusFailed,
		"error", errMsg,
	)
	pipe.ZAdd(ctx, failedKey(queueName), redis.Z{
		Score:  float64(time.Now().UnixMilli()),
		Member: jobID,
	})

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to fail job: %w", err)
	}

	d.logger.Warn("Job failed",
		slog.String("job_id", jobID),
		slog.String("queue", queueName),
		slog.String("error", errMsg),
	)

	return nil
}

// Requeue moves a failed job back onto its pending list for a fresh
// execution. Operator-driven; retry of retryable failures goes through here
// or through visibility-timeout redelivery, never through nested retry
// loops in the side-effect layers.
func (d *Dispatcher) Requeue(ctx context.Context, jobID string) error {
	queueName, err := d.queueOf(ctx, jobID)
	if err != nil {
		return err
	}

	pipe := d.rdb.TxPipeline()
	pipe.ZRem(ctx, failedKey(queueName), jobID)
	pipe.ZRem(ctx, startedKey(queueName), jobID)
	pipe.HSet(ctx, jobKey(jobID),
		"status", StatusQueued,
		"error", "",
	)
	pipe.Persist(ctx, jobKey(jobID))
	pipe.LPush(ctx, pendingKey(queueName), jobID)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue job: %w", err)
	}

	d.logger.Info("Job requeued",
		slog.String("job_id", jobID),
		slog.String("queue", queueName),
	)

	return nil
}

// RequeueExpired redelivers every started job whose visibility deadline has
// passed. The timeout is recorded in the failure registry so the stall is
// operator-visible, and the job id goes back on the pending list for
// redelivery. Returns the number of jobs requeued.
func (d *Dispatcher) RequeueExpired(ctx context.Context, queueName string) (int, error) {
	now := time.Now().UnixMilli()

	ids, err := d.rdb.ZRangeByScore(ctx, startedKey(queueName), &redis.ZRangeBy{
		Min: "-inf",
		Max: strconv.FormatInt(now, 10),
	}).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to scan started registry: %w", err)
	}

	requeued := 0
	for _, jobID := range ids {
		// A concurrent Complete/Fail may have already removed the entry;
		// only the remover redelivers.
		removed, err := d.rdb.ZRem(ctx, startedKey(queueName), jobID).Result()
		if err != nil {
			return requeued, fmt.Errorf("failed to remove expired job: %w", err)
		}
		if removed == 0 {
			continue
		}

		pipe := d.rdb.TxPipeline()
		pipe.HSet(ctx, jobKey(jobID),
			"status", StatusQueued,
			"error", "job execution exceeded its timeout",
		)
		pipe.ZAdd(ctx, failedKey(queueName), redis.Z{
			Score:  float64(now),
			Member: jobID,
		})
		pipe.LPush(ctx, pendingKey(queueName), jobID)

		if _, err := pipe.Exec(ctx); err != nil {
			return requeued, fmt.Errorf("failed to requeue expired job: %w", err)
		}

		d.logger.Warn("Job visibility timeout expired, requeued",
			slog.String("job_id", jobID),
			slog.String("queue", queueName),
		)
		requeued++
	}

	return requeued, nil
}

// PendingCount returns the number of jobs waiting on the named queue
func (d *Dispatcher) PendingCount(ctx context.Context, queueName string) (int64, error) {
	count, err := d.rdb.LLen(ctx, pendingKey(queueName)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get pending count: %w", err)
	}
	return count, nil
}

// FailedCount returns the size of the queue's failure registry
func (d *Dispatcher) FailedCount(ctx context.Context, queueName string) (int64, error) {
	count, err := d.rdb.ZCard(ctx, failedKey(queueName)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get failed count: %w", err)
	}
	return count, nil
}

// GetJob loads a job record by id
func (d *Dispatcher) GetJob(ctx context.Context, jobID string) (*Job, error) {
	fields, err := d.rdb.HGetAll(ctx, jobKey(jobID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load job: %w", err)
	}
	if len(fields) == 0 {
		return nil, ErrJobNotFound
	}

	job := &Job{
		ID:     fields["id"],
		Queue:  fields["queue"],
		Kind:   fields["kind"],
		Status: fields["status"],
		Error:  fields["error"],
	}

	if payload := fields["payload"]; payload != "" {
		job.Payload = json.RawMessage(payload)
	}
	if result := fields["result"]; result != "" {
		job.Result = json.RawMessage(result)
	}
	if ts := fields["enqueued_at"]; ts != "" {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			job.EnqueuedAt = t
		}
	}
	if ms := fields["timeout_ms"]; ms != "" {
		if v, err := strconv.ParseInt(ms, 10, 64); err == nil {
			job.Timeout = time.Duration(v) * time.Millisecond
		}
	}
	if n := fields["deliveries"]; n != "" {
		if v, err := strconv.Atoi(n); err == nil {
			job.Deliveries = v
		}
	}

	return job, nil
}

// queueOf resolves the owning queue for a job id
func (d *Dispatcher) queueOf(ctx context.Context, jobID string) (string, error) {
	queueName, err := d.rdb.HGet(ctx, jobKey(jobID), "queue").Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrJobNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve job queue: %w", err)
	}
	return queueName, nil
}
