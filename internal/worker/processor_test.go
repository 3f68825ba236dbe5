package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideaboard/ideaboard/internal/board"
	"github.com/ideaboard/ideaboard/internal/events"
	"github.com/ideaboard/ideaboard/internal/queue"
	"github.com/ideaboard/ideaboard/internal/survey"
)

type fakePublisher struct {
	mu     sync.Mutex
	cardID string
	err    error
	calls  int
	cards  []board.RenderedCard
	pos    []board.Position
}

func (f *fakePublisher) Publish(ctx context.Context, boardID string, card board.RenderedCard, pos board.Position) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.cards = append(f.cards, card)
	f.pos = append(f.pos, pos)
	if f.err != nil {
		return "", f.err
	}
	return f.cardID, nil
}

type fakeStore struct {
	receipt *survey.AnswerReceipt
	err     error
	got     []queue.AnswerParams
}

func (f *fakeStore) RecordAnswer(ctx context.Context, params queue.AnswerParams) (*survey.AnswerReceipt, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	f.got = append(f.got, params)
	if f.err != nil {
		return nil, f.err
	}
	return f.receipt, nil
}

type fakeTracker struct {
	mu      sync.Mutex
	counts  map[string]int64
	touched map[string]string
}

func newFakeTracker() *fakeTracker {
	return &fakeTracker{
		counts:  make(map[string]int64),
		touched: make(map[string]string),
	}
}

func (f *fakeTracker) IncrementIdeaCount(ctx context.Context, sessionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.counts[sessionID]++
	return f.counts[sessionID], nil
}

func (f *fakeTracker) Touch(ctx context.Context, sessionID, workshopID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[sessionID] = workshopID
	return nil
}

type recordedEvent struct {
	name   string
	fields map[string]interface{}
}

type fakeEvents struct {
	mu     sync.Mutex
	events []recordedEvent
}

func (f *fakeEvents) Publish(ctx context.Context, event string, fields map[string]interface{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, recordedEvent{name: event, fields: fields})
}

func (f *fakeEvents) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, len(f.events))
	for i, e := range f.events {
		names[i] = e.name
	}
	return names
}

type testHarness struct {
	worker     *Worker
	dispatcher *queue.Dispatcher
	publisher  *fakePublisher
	store      *fakeStore
	tracker    *fakeTracker
	events     *fakeEvents
}

func newTestHarness(t *testing.T) *testHarness {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	dispatcher := queue.NewDispatcher(rdb, logger, queue.Options{
		PollInterval: 10 * time.Millisecond,
	})

	allocator, err := board.NewAllocator(250, 5, 0)
	require.NoError(t, err)

	pub := &fakePublisher{cardID: "card-1"}
	store := &fakeStore{receipt: &survey.AnswerReceipt{
		AnswerID:   "a-1",
		SessionID:  "sess-1",
		QuestionID: "q1",
	}}
	tracker := newFakeTracker()
	sink := &fakeEvents{}

	w := NewWorker(&Config{
		Logger:         logger,
		Dispatcher:     dispatcher,
		Publisher:      pub,
		Store:          store,
		Tracker:        tracker,
		Events:         sink,
		Allocator:      allocator,
		BoardID:        "board-1",
		Queues:         []string{"cards", "answers"},
		Concurrency:    1,
		JobTimeout:     time.Minute,
		ReaperInterval: time.Minute,
	})

	return &testHarness{
		worker:     w,
		dispatcher: dispatcher,
		publisher:  pub,
		store:      store,
		tracker:    tracker,
		events:     sink,
	}
}

func (h *testHarness) enqueueAndProcess(t *testing.T, queueName, token string, params any) *queue.Job {
	t.Helper()
	ctx := context.Background()

	env, err := queue.NewEnvelope(token, params)
	require.NoError(t, err)
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	jobID, err := h.dispatcher.Enqueue(ctx, queueName, token, payload, time.Minute)
	require.NoError(t, err)

	job, err := h.dispatcher.Dequeue(ctx, queueName)
	require.NoError(t, err)
	require.Equal(t, jobID, job.ID)

	h.worker.processJob(ctx, job)

	final, err := h.dispatcher.GetJob(ctx, jobID)
	require.NoError(t, err)
	return final
}

func TestProcessCardJob(t *testing.T) {
	h := newTestHarness(t)

	job := h.enqueueAndProcess(t, "cards", queue.TokenCard, queue.CardParams{
		Item:       "shorter wait times",
		Name:       "Dana",
		Theme:      "member experience",
		SessionID:  "sess-1",
		WorkshopID: "ws-1",
	})

	assert.Equal(t, queue.StatusFinished, job.Status)

	require.Len(t, h.publisher.cards, 1)
	card := h.publisher.cards[0]
	assert.Equal(t, "light_blue", card.FillColor)
	assert.Contains(t, card.Content, "shorter wait times")
	assert.Contains(t, card.Content, "Dana")

	// First card lands at the grid origin
	assert.Equal(t, board.Position{X: 0, Y: 0}, h.publisher.pos[0])

	assert.Equal(t, int64(1), h.tracker.counts["sess-1"])
	assert.Equal(t, "ws-1", h.tracker.touched["sess-1"])

	assert.Contains(t, h.events.names(), events.EventIdeaProcessed)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, true, result["success"])
	assert.Equal(t, "card-1", result["card_id"])
}

func TestProcessCardJobDefaults(t *testing.T) {
	h := newTestHarness(t)

	job := h.enqueueAndProcess(t, "cards", queue.TokenCard, queue.CardParams{})

	assert.Equal(t, queue.StatusFinished, job.Status)

	require.Len(t, h.publisher.cards, 1)
	card := h.publisher.cards[0]
	assert.Contains(t, card.Content, queue.DefaultItem)
	assert.Contains(t, card.Content, queue.DefaultName)
	assert.Equal(t, "gray", card.FillColor)

	// No session id means no tracker activity
	assert.Empty(t, h.tracker.counts)
}

func TestProcessCardJobRetryableFailure(t *testing.T) {
	h := newTestHarness(t)
	h.publisher.err = queue.NewRetryableError(errors.New("board API server error: status 500"))

	job := h.enqueueAndProcess(t, "cards", queue.TokenCard, queue.CardParams{Item: "idea"})

	assert.Equal(t, queue.StatusFailed, job.Status)
	assert.Contains(t, job.Error, "status 500")

	// The publisher is called exactly once; redelivery is the dispatcher's job
	assert.Equal(t, 1, h.publisher.calls)

	failed, err := h.dispatcher.FailedCount(context.Background(), "cards")
	require.NoError(t, err)
	assert.Equal(t, int64(1), failed)

	require.Len(t, h.events.events, 1)
	evt := h.events.events[0]
	assert.Equal(t, events.EventProcessingError, evt.name)
	assert.Equal(t, true, evt.fields["retryable"])
}

func TestProcessCardJobFatalFailure(t *testing.T) {
	h := newTestHarness(t)
	h.publisher.err = fmt.Errorf("%w: status 401", board.ErrBoardRejected)

	job := h.enqueueAndProcess(t, "cards", queue.TokenCard, queue.CardParams{Item: "idea"})

	assert.Equal(t, queue.StatusFailed, job.Status)

	require.Len(t, h.events.events, 1)
	evt := h.events.events[0]
	assert.Equal(t, events.EventProcessingError, evt.name)
	assert.Equal(t, false, evt.fields["retryable"])
}

func TestProcessAnswerJob(t *testing.T) {
	h := newTestHarness(t)

	job := h.enqueueAndProcess(t, "answers", queue.TokenAnswer, queue.AnswerParams{
		ConversationID: "conv-1",
		QuestionID:     "q1",
		AnswerText:     "very helpful",
	})

	assert.Equal(t, queue.StatusFinished, job.Status)

	require.Len(t, h.store.got, 1)
	assert.Equal(t, "conv-1", h.store.got[0].ConversationID)
	assert.Equal(t, queue.DefaultSurveyID, h.store.got[0].SurveyID)

	assert.Contains(t, h.events.names(), events.EventAnswerRecorded)

	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(job.Result, &result))
	assert.Equal(t, "a-1", result["answer_id"])
}

func TestProcessAnswerJobMissingFields(t *testing.T) {
	h := newTestHarness(t)

	job := h.enqueueAndProcess(t, "answers", queue.TokenAnswer, queue.AnswerParams{
		AnswerText: "no identifiers",
	})

	// Fatal rejection, never handed to the store
	assert.Equal(t, queue.StatusFailed, job.Status)
	assert.Empty(t, h.store.got)

	require.Len(t, h.events.events, 1)
	assert.Equal(t, false, h.events.events[0].fields["retryable"])
}

func TestProcessJobMalformedPayload(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	jobID, err := h.dispatcher.Enqueue(ctx, "cards", queue.TokenCard, []byte("not json"), time.Minute)
	require.NoError(t, err)

	job, err := h.dispatcher.Dequeue(ctx, "cards")
	require.NoError(t, err)

	h.worker.processJob(ctx, job)

	final, err := h.dispatcher.GetJob(ctx, jobID)
	require.NoError(t, err)
	assert.Equal(t, queue.StatusFailed, final.Status)
	assert.Equal(t, 0, h.publisher.calls)
}

func TestWorkerStartStop(t *testing.T) {
	h := newTestHarness(t)
	ctx := context.Background()

	env, err := queue.NewEnvelope(queue.TokenCard, queue.CardParams{Item: "idea"})
	require.NoError(t, err)
	payload, err := json.Marshal(env)
	require.NoError(t, err)

	jobID, err := h.dispatcher.Enqueue(ctx, "cards", queue.TokenCard, payload, time.Minute)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		_ = h.worker.Start(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		job, err := h.dispatcher.GetJob(ctx, jobID)
		return err == nil && job.Status == queue.StatusFinished
	}, 2*time.Second, 20*time.Millisecond)

	h.worker.Stop()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
