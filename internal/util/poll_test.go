package util

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPollUntil(t *testing.T) {
	t.Parallel()

	t.Run("immediate", func(t *testing.T) {
		t.Parallel()
		calls := 0
		err := PollUntil(context.Background(), DefaultPollConfig(), func() bool { calls++; return true })
		assert.NoError(t, err)
		assert.Equal(t, 1, calls)
	})

	t.Run("eventually", func(t *testing.T) {
		t.Parallel()
		var n atomic.Int32
		err := PollUntil(context.Background(), PollConfig{Interval: time.Millisecond}, func() bool {
			return n.Add(1) >= 3
		})
		assert.NoError(t, err)
		assert.GreaterOrEqual(t, n.Load(), int32(3))
	})

	t.Run("timeout", func(t *testing.T) {
		t.Parallel()
		err := PollUntil(context.Background(), PollConfig{Timeout: 20 * time.Millisecond, Interval: 5 * time.Millisecond}, func() bool {
			return false
		})
		assert.ErrorIs(t, err, context.DeadlineExceeded)
	})

	t.Run("cancelled", func(t *testing.T) {
		t.Parallel()
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := PollUntil(ctx, DefaultPollConfig(), func() bool { return false })
		assert.ErrorIs(t, err, context.Canceled)
	})
}
