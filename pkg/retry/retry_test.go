package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errFlaky = errors.New("flaky")

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 3, Backoff: Linear(time.Millisecond)}, func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errFlaky
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDo_GivesUp(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Config{Attempts: 2, Backoff: Linear(time.Millisecond)}, func(ctx context.Context) error {
		calls++
		return errFlaky
	})

	require.ErrorIs(t, err, errFlaky)
	assert.Equal(t, 2, calls)
}

func TestDo_NotRetryable(t *testing.T) {
	permanent := errors.New("permanent")
	calls := 0
	err := Do(context.Background(), Config{
		Attempts:  5,
		Backoff:   Linear(time.Millisecond),
		Retryable: func(err error) bool { return !errors.Is(err, permanent) },
	}, func(ctx context.Context) error {
		calls++
		return permanent
	})

	assert.ErrorIs(t, err, permanent)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	err := Do(ctx, Config{Attempts: 3, Backoff: Linear(time.Hour)}, func(ctx context.Context) error {
		return errFlaky
	})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestBackoff(t *testing.T) {
	lin := Linear(2 * time.Second)
	assert.Equal(t, 2*time.Second, lin(1))
	assert.Equal(t, 6*time.Second, lin(3))

	exp := Exponential(100*time.Millisecond, time.Second)
	assert.Equal(t, 100*time.Millisecond, exp(1))
	assert.Equal(t, 400*time.Millisecond, exp(3))
	assert.Equal(t, time.Second, exp(10))
}
