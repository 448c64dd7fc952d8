package util

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryDatabaseLocked(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	got, err := RetryWithResult(ctx, func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("database is locked")
		}
		return 42, nil
	}, DatabaseRetryOptions(ctx)...)
	require.NoError(t, err)
	assert.Equal(t, 42, got)
	assert.Equal(t, 3, calls)
}

func TestRetryStopsOnOtherErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	calls := 0
	err := Retry(ctx, func() error {
		calls++
		return errors.New("constraint failed")
	}, DatabaseRetryOptions(ctx)...)
	assert.EqualError(t, err, "constraint failed")
	assert.Equal(t, 1, calls)
}

func TestRetryPredicates(t *testing.T) {
	t.Parallel()
	tests := []struct {
		err       error
		locked    bool
		transient bool
	}{
		{nil, false, false},
		{errors.New("database is locked"), true, false},
		{errors.New("SQLITE_BUSY: busy"), true, false},
		{fmt.Errorf("rename: %w", syscall.EBUSY), false, true},
		{fmt.Errorf("write: %w", syscall.EAGAIN), false, true},
		{syscall.ENOENT, false, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.locked, IsDatabaseLocked(tt.err), "%v", tt.err)
		assert.Equal(t, tt.transient, IsTransientFileError(tt.err), "%v", tt.err)
	}
}
