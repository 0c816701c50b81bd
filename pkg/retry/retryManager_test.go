package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryManager_Do(t *testing.T) {
	errTransient := errors.New("connection reset")
	errFatal := errors.New("bad request")

	tests := []struct {
		name      string
		failures  int
		permanent bool
		wantCalls int
		wantErr   error
	}{
		{name: "success first try", failures: 0, wantCalls: 1},
		{name: "recovers after transient failures", failures: 2, wantCalls: 3},
		{name: "gives up after max retries", failures: 10, wantCalls: 4, wantErr: errTransient},
		{name: "permanent error stops immediately", failures: 10, permanent: true, wantCalls: 1, wantErr: errFatal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rm := NewRetryManager(3, time.Millisecond)
			calls := 0
			err := rm.Do(context.Background(), func(ctx context.Context) error {
				calls++
				if calls > tt.failures {
					return nil
				}
				if tt.permanent {
					return Permanent(errFatal)
				}
				return errTransient
			})

			assert.Equal(t, tt.wantCalls, calls)
			if tt.wantErr != nil {
				assert.Equal(t, tt.wantErr, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRetryManager_StopsOnCancelledContext(t *testing.T) {
	rm := NewRetryManager(5, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := rm.Do(ctx, func(ctx context.Context) error {
		calls++
		return errors.New("timeout")
	})

	assert.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestCalculateBackoff_Capped(t *testing.T) {
	rm := NewRetryManager(10, 10*time.Millisecond)
	for attempt := 0; attempt < 10; attempt++ {
		assert.LessOrEqual(t, rm.calculateBackoff(attempt), 160*time.Millisecond)
	}
}
