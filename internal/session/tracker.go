package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultTTL is the inactivity window after which session state expires
const DefaultTTL = 24 * time.Hour

// ErrNotFound is returned when a session has never been touched or its
// state has expired. Absence is a normal condition, distinct from a
// session with zero ideas.
var ErrNotFound = errors.New("session state not found")

// State is the ephemeral per-session view kept alongside the durable store
type State struct {
	SessionID    string
	IdeaCount    int64
	LastActivity time.Time
	WorkshopID   string
}

// Tracker keeps ephemeral keyed counters and timestamps in Redis. Every
// mutation refreshes the expiry window.
type Tracker struct {
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewTracker creates a tracker; a non-positive ttl falls back to DefaultTTL
func NewTracker(rdb *redis.Client, logger *slog.Logger, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Tracker{
		rdb:    rdb,
		logger: logger,
		ttl:    ttl,
	}
}

func stateKey(sessionID string) string { return "ideaboard:session:" + sessionID }
func countKey(sessionID string) string { return stateKey(sessionID) + ":idea_count" }

// IncrementIdeaCount bumps the session's idea counter and refreshes its
// expiry, returning the new count
func (t *Tracker) IncrementIdeaCount(ctx context.Context, sessionID string) (int64, error) {
	pipe := t.rdb.TxPipeline()
	incr := pipe.Incr(ctx, countKey(sessionID))
	pipe.Expire(ctx, countKey(sessionID), t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return 0, fmt.Errorf("failed to increment idea count: %w", err)
	}

	return incr.Val(), nil
}

// Touch records activity for a session and refreshes expiry on all of its
// state keys
func (t *Tracker) Touch(ctx context.Context, sessionID, workshopID string) error {
	now := time.Now().UTC().Format(time.RFC3339)

	pipe := t.rdb.TxPipeline()
	pipe.HSet(ctx, stateKey(sessionID),
		"last_activity", now,
		"workshop_id", workshopID,
	)
	pipe.Expire(ctx, stateKey(sessionID), t.ttl)
	pipe.Expire(ctx, countKey(sessionID), t.ttl)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}

	return nil
}

// Get loads a session's state, or ErrNotFound if it never existed or has
// expired
func (t *Tracker) Get(ctx context.Context, sessionID string) (*State, error) {
	pipe := t.rdb.TxPipeline()
	hash := pipe.HGetAll(ctx, stateKey(sessionID))
	count := pipe.Get(ctx, countKey(sessionID))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to load session state: %w", err)
	}

	fields := hash.Val()
	rawCount, countErr := count.Result()
	if len(fields) == 0 && errors.Is(countErr, redis.Nil) {
		return nil, ErrNotFound
	}

	state := &State{
		SessionID:  sessionID,
		WorkshopID: fields["workshop_id"],
	}

	if rawCount != "" {
		if n, err := strconv.ParseInt(rawCount, 10, 64); err == nil {
			state.IdeaCount = n
		}
	}
	if ts := fields["last_activity"]; ts != "" {
		if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
			state.LastActivity = parsed
		}
	}

	return state, nil
}
