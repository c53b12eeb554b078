package retrypolicy

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoundedWaitSucceedsImmediately(t *testing.T) {
	var calls int32
	err := BoundedWait(context.Background(), time.Second, 10*time.Millisecond, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}

func TestBoundedWaitRetriesThenSucceeds(t *testing.T) {
	var calls int32
	err := BoundedWait(context.Background(), time.Second, 5*time.Millisecond, func(ctx context.Context) error {
		n := atomic.AddInt32(&calls, 1)
		if n < 3 {
			return errors.New("not yet")
		}
		return nil
	})
	require.NoError(t, err)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestBoundedWaitTimesOut(t *testing.T) {
	wantErr := errors.New("chunk not yet available")
	err := BoundedWait(context.Background(), 30*time.Millisecond, 5*time.Millisecond, func(ctx context.Context) error {
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)
}

func TestBoundedWaitRespectsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := BoundedWait(ctx, time.Second, 5*time.Millisecond, func(ctx context.Context) error {
		return errors.New("not yet")
	})
	assert.ErrorIs(t, err, context.Canceled)
}
