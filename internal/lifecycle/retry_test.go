package lifecycle

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryOnceSucceedsWithoutRetry(t *testing.T) {
	calls := 0
	err := retryOnce(context.Background(), time.Millisecond, func() error {
		calls++
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 1, calls)
}

func TestRetryOnceRetriesExactlyOnce(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := retryOnce(context.Background(), time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return boom
		}
		return nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestRetryOnceSurfacesSecondFailure(t *testing.T) {
	calls := 0
	boom := errors.New("boom")
	err := retryOnce(context.Background(), time.Millisecond, func() error {
		calls++
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 2, calls)
}

func TestRetryOnceRespectsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := retryOnce(ctx, time.Hour, func() error {
		calls++
		return errors.New("boom")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}
