package queue

import (
	"context"
	"encoding/json"
	"time"
)

// Queue is a notification transport.
type Queue interface {
	Publish(ctx context.Context, message interface{}) error
	Consume(ctx context.Context, handler func(message []byte) error) error
	Close() error
}

// envelope wraps a published message with its delivery bookkeeping.
type envelope struct {
	ID         string          `json:"id"`
	Attempts   int             `json:"attempts"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Body       json.RawMessage `json:"body"`
}

// Stats is a snapshot of the queue's lists.
type Stats struct {
	Pending    int64     `json:"pending"`
	Processing int64     `json:"processing"`
	DeadLetter int64     `json:"dead_letter"`
	Timestamp  time.Time `json:"timestamp"`
}
