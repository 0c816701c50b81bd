package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisQueue_Defaults(t *testing.T) {
	q := NewRedisQueue(nil, RedisQueueConfig{Name: "notifications"})

	assert.Equal(t, defaultMaxAttempts, q.cfg.MaxAttempts)
	assert.Equal(t, defaultPollTimeout, q.cfg.PollTimeout)
	assert.Equal(t, "notifications:processing", q.processing)
	assert.Equal(t, "notifications:dlq", q.dlq.key)
	assert.Error(t, q.Consume(context.Background(), nil))
}

// liveQueue returns a queue on a throwaway key against REDIS_ADDR.
func liveQueue(t *testing.T, maxAttempts int) (*RedisQueue, *redis.Client) {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(context.Background()).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}

	name := "test:queue:" + uuid.NewString()
	t.Cleanup(func() {
		client.Del(context.Background(), name, name+":processing", name+":dlq")
		client.Close()
	})
	return NewRedisQueue(client, RedisQueueConfig{Name: name, MaxAttempts: maxAttempts, PollTimeout: 100 * time.Millisecond}), client
}

func TestRedisQueue_DeliversInOrder(t *testing.T) {
	q, _ := liveQueue(t, 3)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, q.Publish(ctx, map[string]string{"id": id}))
	}

	var got []string
	for i := 0; i < 3; i++ {
		handled, err := q.processNext(ctx, func(message []byte) error {
			var m map[string]string
			require.NoError(t, json.Unmarshal(message, &m))
			got = append(got, m["id"])
			return nil
		})
		require.NoError(t, err)
		require.True(t, handled)
	}

	assert.Equal(t, []string{"a", "b", "c"}, got)
	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Zero(t, stats.Processing)

	handled, err := q.processNext(ctx, func([]byte) error { return nil })
	require.NoError(t, err)
	assert.False(t, handled, "empty queue times out")
}

func TestRedisQueue_DeadLettersAfterMaxAttempts(t *testing.T) {
	q, _ := liveQueue(t, 2)
	ctx := context.Background()
	require.NoError(t, q.Publish(ctx, map[string]string{"id": "poison"}))

	failing := func([]byte) error { return errors.New("chat unreachable") }
	for i := 0; i < 2; i++ {
		_, err := q.processNext(ctx, failing)
		require.NoError(t, err)
	}

	stats, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Zero(t, stats.Pending)
	assert.Equal(t, int64(1), stats.DeadLetter)

	letters, err := q.DeadLetters().List(ctx, 10)
	require.NoError(t, err)
	require.Len(t, letters, 1)
	assert.Equal(t, 2, letters[0].Attempts)
	assert.Equal(t, "chat unreachable", letters[0].Error)

	require.NoError(t, q.DeadLetters().Requeue(ctx, letters[0].ID))
	stats, err = q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Zero(t, stats.DeadLetter)

	assert.ErrorIs(t, q.DeadLetters().Delete(ctx, "missing"), ErrDeadLetterNotFound)
}

func TestRedisQueue_ConsumeRecoversProcessing(t *testing.T) {
	q, client := liveQueue(t, 3)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orphan, err := json.Marshal(envelope{ID: "orphan", Body: json.RawMessage(`{"id":"orphan"}`)})
	require.NoError(t, err)
	require.NoError(t, client.LPush(ctx, q.processing, orphan).Err())

	var (
		mu  sync.Mutex
		got []string
	)
	require.NoError(t, q.Consume(ctx, func(message []byte) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, string(message))
		return nil
	}))

	assert.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(got) == 1
	}, 2*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, q.Close())
	assert.JSONEq(t, `{"id":"orphan"}`, got[0])
}
