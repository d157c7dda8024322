package ai

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestBackoffDelayDoubles(t *testing.T) {
	require.Equal(t, 300*time.Millisecond, backoffDelay(0))
	require.Equal(t, 600*time.Millisecond, backoffDelay(1))
	require.Equal(t, 1200*time.Millisecond, backoffDelay(2))
}

func TestSleepContextStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	err := sleepContext(ctx, 5*time.Second)
	require.ErrorIs(t, err, context.Canceled)
	require.Less(t, time.Since(start), time.Second)
}

func TestSleepContextElapses(t *testing.T) {
	err := sleepContext(context.Background(), time.Millisecond)
	require.NoError(t, err)
}
