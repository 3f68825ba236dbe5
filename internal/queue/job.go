package queue

import (
	"encoding/json"
	"time"
)

// Job status constants
const (
	StatusQueued   = "queued"
	StatusStarted  = "started"
	StatusFinished = "finished"
	StatusFailed   = "failed"
)

// Job is one unit of asynchronous work owned by the dispatcher. It is
// created on enqueue and mutated only by the worker executing it; after a
// terminal failure it stays visible through the failure registry.
type Job struct {
	ID         string
	Queue      string
	Kind       string
	Payload    json.RawMessage
	Status     string
	EnqueuedAt time.Time
	Timeout    time.Duration
	Deliveries int
	Result     json.RawMessage
	Error      string
}
