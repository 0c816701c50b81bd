package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	defaultMaxAttempts = 3
	defaultPollTimeout = 5 * time.Second
)

// RedisQueueConfig names the lists and bounds redelivery.
type RedisQueueConfig struct {
	Name        string
	MaxAttempts int
	PollTimeout time.Duration
}

// RedisQueue is a list backed queue. A message being handled sits in a
// processing list; one that fails MaxAttempts times moves to the dead letter set.
type RedisQueue struct {
	client     *redis.Client
	main       string
	processing string
	dlq        *DLQHandler
	cfg        RedisQueueConfig
	now        func() time.Time
	wg         sync.WaitGroup
}

func NewRedisQueue(client *redis.Client, cfg RedisQueueConfig) *RedisQueue {
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.PollTimeout <= 0 {
		cfg.PollTimeout = defaultPollTimeout
	}
	return &RedisQueue{
		client:     client,
		main:       cfg.Name,
		processing: cfg.Name + ":processing",
		dlq:        NewDLQHandler(client, cfg.Name),
		cfg:        cfg,
		now:        time.Now,
	}
}

// Publish sends message to the tail of the queue as JSON.
func (q *RedisQueue) Publish(ctx context.Context, message interface{}) error {
	body, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data, err := json.Marshal(envelope{ID: uuid.NewString(), EnqueuedAt: q.now(), Body: body})
	if err != nil {
		return fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.main, data).Err(); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Consume recovers messages left in processing by a previous run and then
// handles messages one at a time until ctx is cancelled.
func (q *RedisQueue) Consume(ctx context.Context, handler func(message []byte) error) error {
	if handler == nil {
		return errors.New("handler cannot be nil")
	}
	recovered, err := q.requeueProcessing(ctx)
	if err != nil {
		return err
	}
	if recovered > 0 {
		logrus.WithFields(logrus.Fields{"queue": q.main, "count": recovered}).Warn("Requeued messages left in processing")
	}

	q.wg.Add(1)
	go func() {
		defer q.wg.Done()
		for ctx.Err() == nil {
			if _, err := q.processNext(ctx, handler); err != nil && ctx.Err() == nil {
				logrus.WithField("queue", q.main).WithError(err).Error("Error processing queue")
				select {
				case <-ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
		logrus.WithField("queue", q.main).Info("Queue consumer stopped")
	}()
	return nil
}

// processNext moves one message to processing, runs handler and settles it.
// It reports false when the poll timed out without a message.
func (q *RedisQueue) processNext(ctx context.Context, handler func(message []byte) error) (bool, error) {
	raw, err := q.client.BLMove(ctx, q.main, q.processing, "RIGHT", "LEFT", q.cfg.PollTimeout).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to move message to processing: %w", err)
	}
	defer func() {
		if err := q.client.LRem(context.Background(), q.processing, 1, raw).Err(); err != nil {
			logrus.WithField("queue", q.main).WithError(err).Error("Failed to remove message from processing")
		}
	}()

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		q.dlq.Store(ctx, &DeadLetter{ID: "corrupted-" + uuid.NewString(), Body: json.RawMessage(fmt.Sprintf("%q", raw))}, err, q.now())
		return true, nil
	}

	handleErr := handler(env.Body)
	if handleErr == nil {
		return true, nil
	}

	env.Attempts++
	log := logrus.WithFields(logrus.Fields{"queue": q.main, "message_id": env.ID, "attempts": env.Attempts})
	if env.Attempts >= q.cfg.MaxAttempts {
		log.WithError(handleErr).Error("Message exhausted its attempts, moving to dead letter")
		q.dlq.Store(ctx, &DeadLetter{ID: env.ID, Attempts: env.Attempts, Body: env.Body}, handleErr, q.now())
		return true, nil
	}

	log.WithError(handleErr).Warn("Message failed, requeueing")
	data, err := json.Marshal(env)
	if err != nil {
		return true, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.main, data).Err(); err != nil {
		return true, fmt.Errorf("failed to requeue message: %w", err)
	}
	return true, nil
}

func (q *RedisQueue) requeueProcessing(ctx context.Context) (int, error) {
	count := 0
	for {
		_, err := q.client.LMove(ctx, q.processing, q.main, "RIGHT", "RIGHT").Result()
		if errors.Is(err, redis.Nil) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("failed to recover processing messages: %w", err)
		}
		count++
	}
}

// DeadLetters exposes the dead letter set of this queue.
func (q *RedisQueue) DeadLetters() *DLQHandler { return q.dlq }

func (q *RedisQueue) Stats(ctx context.Context) (*Stats, error) {
	pipe := q.client.Pipeline()
	pending := pipe.LLen(ctx, q.main)
	processing := pipe.LLen(ctx, q.processing)
	dead := pipe.ZCard(ctx, q.dlq.key)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("failed to get queue stats: %w", err)
	}
	return &Stats{
		Pending:    pending.Val(),
		Processing: processing.Val(),
		DeadLetter: dead.Val(),
		Timestamp:  q.now(),
	}, nil
}

// Close waits for the consumer to stop. The Redis client belongs to the caller.
func (q *RedisQueue) Close() error {
	q.wg.Wait()
	return nil
}
