package queue

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDispatcher(t *testing.T) (*Dispatcher, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	d := NewDispatcher(rdb, logger, Options{
		PollInterval: 10 * time.Millisecond,
	})

	return d, mr
}

func TestEnqueueDequeue(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Enqueue(ctx, "cards", TokenCard, []byte(`{"token":"miro_card"}`), time.Minute)
	require.NoError(t, err)
	require.NotEmpty(t, jobID)

	pending, err := d.PendingCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(1), pending)

	job, err := d.Dequeue(ctx, "cards")
	require.NoError(t, err)
	require.NotNil(t, job)

	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, "cards", job.Queue)
	assert.Equal(t, TokenCard, job.Kind)
	assert.Equal(t, StatusStarted, job.Status)
	assert.Equal(t, 1, job.Deliveries)
	assert.Equal(t, time.Minute, job.Timeout)
	assert.JSONEq(t, `{"token":"miro_card"}`, string(job.Payload))

	pending, err = d.PendingCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestDequeueMultipleQueues(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Enqueue(ctx, "answers", TokenAnswer, []byte(`{}`), time.Minute)
	require.NoError(t, err)

	job, err := d.Dequeue(ctx, "cards", "answers")
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, "answers", job.Queue)
}

func TestDequeueContextCanceled(t *testing.T) {
	d, _ := newTestDispatcher(t)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	job, err := d.Dequeue(ctx, "empty")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Nil(t, job)
}

func TestComplete(t *testing.T) {
	d, mr := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Enqueue(ctx, "cards", TokenCard, []byte(`{}`), time.Minute)
	require.NoError(t, err)

	_, err = d.Dequeue(ctx, "cards")
	require.NoError(t, err)

	err = d.Complete(ctx, jobID, map[string]interface{}{"card_id": "c-1"})
	require.NoError(t, err)

	job, err := d.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFinished, job.Status)
	assert.JSONEq(t, `{"card_id":"c-1"}`, string(job.Result))

	// Result record is retained only for the result TTL
	assert.Greater(t, mr.TTL(jobKey(jobID)), time.Duration(0))

	failed, err := d.FailedCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed)
}

func TestFail(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Enqueue(ctx, "cards", TokenCard, []byte(`{}`), time.Minute)
	require.NoError(t, err)

	_, err = d.Dequeue(ctx, "cards")
	require.NoError(t, err)

	err = d.Fail(ctx, jobID, errors.New("board API rejected request"))
	require.NoError(t, err)

	job, err := d.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, job.Status)
	assert.Contains(t, job.Error, "board API rejected request")

	failed, err := d.FailedCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	pending, err := d.PendingCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(0), pending)
}

func TestRequeueFailedJob(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Enqueue(ctx, "cards", TokenCard, []byte(`{}`), time.Minute)
	require.NoError(t, err)

	_, err = d.Dequeue(ctx, "cards")
	require.NoError(t, err)

	require.NoError(t, d.Fail(ctx, jobID, errors.New("remote down")))
	require.NoError(t, d.Requeue(ctx, jobID))

	failed, err := d.FailedCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed)

	job, err := d.Dequeue(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, jobID, job.ID)
	assert.Equal(t, 2, job.Deliveries)
	assert.Empty(t, job.Error)
}

func TestRequeueUnknownJob(t *testing.T) {
	d, _ := newTestDispatcher(t)

	err := d.Requeue(context.Background(), "11111111-2222-3333-4444-555555555555")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestRequeueExpired(t *testing.T) {
	d, _ := newTestDispatcher(t)
	ctx := context.Background()

	jobID, err := d.Enqueue(ctx, "cards", TokenCard, []byte(`{}`), 20*time.Millisecond)
	require.NoError(t, err)

	_, err = d.Dequeue(ctx, "cards")
	require.NoError(t, err)

	// Deadline not reached yet
	requeued, err := d.RequeueExpired(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, 0, requeued)

	time.Sleep(30 * time.Millisecond)

	requeued, err = d.RequeueExpired(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, 1, requeued)

	// Timeout is recorded in the failure registry and the job is pending
	// again for redelivery
	failed, err := d.FailedCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	job, err := d.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, StatusQueued, job.Status)
	assert.Contains(t, job.Error, "timeout")

	redelivered, err := d.Dequeue(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, jobID, redelivered.ID)
	assert.Equal(t, 2, redelivered.Deliveries)

	// A successful redelivered execution clears the failure registry entry
	require.NoError(t, d.Complete(ctx, jobID, nil))

	failed, err = d.FailedCount(ctx, "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(0), failed)
}

func TestGetJobNotFound(t *testing.T) {
	d, _ := newTestDispatcher(t)

	job, err := d.GetJob(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
	assert.Nil(t, job)
}
