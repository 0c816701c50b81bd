package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

var ErrDeadLetterNotFound = errors.New("dead letter not found")

// DeadLetter is a message that could not be delivered.
type DeadLetter struct {
	ID       string          `json:"id"`
	Error    string          `json:"error"`
	FailedAt time.Time       `json:"failed_at"`
	Attempts int             `json:"attempts"`
	Body     json.RawMessage `json:"body"`
}

// DLQHandler keeps dead letters in a sorted set scored by failure time.
type DLQHandler struct {
	client *redis.Client
	key    string
	queue  string
}

func NewDLQHandler(client *redis.Client, queue string) *DLQHandler {
	return &DLQHandler{client: client, key: queue + ":dlq", queue: queue}
}

// Store records a failed message. Errors are logged since the caller has
// nowhere else to put the message.
func (d *DLQHandler) Store(ctx context.Context, letter *DeadLetter, cause error, at time.Time) {
	letter.Error = cause.Error()
	letter.FailedAt = at

	data, err := json.Marshal(letter)
	if err != nil {
		logrus.WithError(err).Error("Failed to marshal dead letter")
		return
	}
	score := float64(at.UnixNano()) / 1e9
	if err := d.client.ZAdd(ctx, d.key, redis.Z{Score: score, Member: data}).Err(); err != nil {
		logrus.WithField("message_id", letter.ID).WithError(err).Error("Failed to store dead letter")
	}
}

// List returns up to limit dead letters, newest first.
func (d *DLQHandler) List(ctx context.Context, limit int) ([]*DeadLetter, error) {
	if limit <= 0 {
		limit = 50
	}
	members, err := d.client.ZRevRange(ctx, d.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list dead letters: %w", err)
	}

	letters := make([]*DeadLetter, 0, len(members))
	for _, m := range members {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(m), &letter); err != nil {
			logrus.WithError(err).Warn("Skipping undecodable dead letter")
			continue
		}
		letters = append(letters, &letter)
	}
	return letters, nil
}

// Requeue moves the dead letter with id back onto the queue with a fresh
// attempt count.
func (d *DLQHandler) Requeue(ctx context.Context, id string) error {
	member, letter, err := d.find(ctx, id)
	if err != nil {
		return err
	}
	data, err := json.Marshal(envelope{ID: letter.ID, EnqueuedAt: time.Now(), Body: letter.Body})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}

	pipe := d.client.TxPipeline()
	pipe.LPush(ctx, d.queue, data)
	pipe.ZRem(ctx, d.key, member)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to requeue dead letter: %w", err)
	}
	logrus.WithField("message_id", id).Info("Dead letter requeued")
	return nil
}

// Delete drops the dead letter with id.
func (d *DLQHandler) Delete(ctx context.Context, id string) error {
	member, _, err := d.find(ctx, id)
	if err != nil {
		return err
	}
	if err := d.client.ZRem(ctx, d.key, member).Err(); err != nil {
		return fmt.Errorf("failed to delete dead letter: %w", err)
	}
	return nil
}

func (d *DLQHandler) find(ctx context.Context, id string) (string, *DeadLetter, error) {
	members, err := d.client.ZRange(ctx, d.key, 0, -1).Result()
	if err != nil {
		return "", nil, fmt.Errorf("failed to read dead letters: %w", err)
	}
	for _, m := range members {
		var letter DeadLetter
		if err := json.Unmarshal([]byte(m), &letter); err != nil {
			continue
		}
		if letter.ID == id {
			return m, &letter, nil
		}
	}
	return "", nil, fmt.Errorf("%w: %s", ErrDeadLetterNotFound, id)
}
