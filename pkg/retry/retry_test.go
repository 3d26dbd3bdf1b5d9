package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errBoom = errors.New("boom")

func TestDo_SucceedsFirstAttempt(t *testing.T) {
	calls := 0
	res, err := Do(context.Background(), func(ctx context.Context) (int, error) {
		calls++
		return 42, nil
	})
	require.NoError(t, err)
	assert.Equal(t, 42, res)
	assert.Equal(t, 1, calls)
}

func TestDo_FailsTwiceThenSucceeds(t *testing.T) {
	calls := 0
	var observed []int
	res, err := Do(context.Background(),
		func(ctx context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", errBoom
			}
			return "ok", nil
		},
		WithMaxAttempts(3),
		WithBaseDelay(time.Millisecond),
		WithOnRetry(func(attempt int, err error) {
			observed = append(observed, attempt)
			assert.ErrorIs(t, err, errBoom)
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, "ok", res)
	assert.Equal(t, 3, calls)
	assert.Equal(t, []int{1, 2}, observed)
}

func TestDo_ExhaustsAttempts(t *testing.T) {
	calls := 0
	hookCalls := 0
	_, err := Do(context.Background(),
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errBoom
		},
		WithMaxAttempts(3),
		WithBaseDelay(time.Millisecond),
		WithOnRetry(func(int, error) { hookCalls++ }),
	)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 3, calls)
	// The observer never fires after the final attempt.
	assert.Equal(t, 2, hookCalls)
}

func TestDo_PredicateStopsRetry(t *testing.T) {
	calls := 0
	_, err := Do(context.Background(),
		func(ctx context.Context) (int, error) {
			calls++
			return 0, errBoom
		},
		WithMaxAttempts(5),
		WithBaseDelay(time.Millisecond),
		WithShouldRetry(func(err error) bool { return false }),
	)
	require.ErrorIs(t, err, errBoom)
	assert.Equal(t, 1, calls)
}

func TestDo_ContextCancelledDuringBackoff(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()
	_, err := Do(ctx,
		func(ctx context.Context) (int, error) { return 0, errBoom },
		WithMaxAttempts(3),
		WithBaseDelay(time.Minute),
	)
	require.ErrorIs(t, err, context.Canceled)
}

func TestDelay_ExponentialWithCap(t *testing.T) {
	base := time.Second
	cap := 10 * time.Second
	assert.Equal(t, 1*time.Second, Delay(1, base, cap))
	assert.Equal(t, 2*time.Second, Delay(2, base, cap))
	assert.Equal(t, 4*time.Second, Delay(3, base, cap))
	assert.Equal(t, 8*time.Second, Delay(4, base, cap))
	assert.Equal(t, 10*time.Second, Delay(5, base, cap))
	assert.Equal(t, 10*time.Second, Delay(20, base, cap))
}
