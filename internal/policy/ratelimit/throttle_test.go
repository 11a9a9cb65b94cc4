package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestThrottleSpacesSameHost(t *testing.T) {
	t.Parallel()

	th := NewThrottle(ThrottleConfig{RPS: 10, Burst: 1})
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "https://www.clien.net/a"))
	start := time.Now()
	require.NoError(t, th.Wait(ctx, "https://www.clien.net/b"))
	require.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestThrottleIndependentHosts(t *testing.T) {
	t.Parallel()

	th := NewThrottle(ThrottleConfig{RPS: 1, Burst: 1})
	ctx := context.Background()

	require.NoError(t, th.Wait(ctx, "https://a.example/1"))
	start := time.Now()
	require.NoError(t, th.Wait(ctx, "https://b.example/1"))
	require.Less(t, time.Since(start), 50*time.Millisecond)
}

func TestThrottleHonorsContext(t *testing.T) {
	t.Parallel()

	th := NewThrottle(ThrottleConfig{RPS: 0.1, Burst: 1})
	require.NoError(t, th.Wait(context.Background(), "https://slow.example"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, th.Wait(ctx, "https://slow.example"))
}

func TestThrottleDisabled(t *testing.T) {
	t.Parallel()

	th := NewThrottle(ThrottleConfig{})
	for i := 0; i < 50; i++ {
		require.NoError(t, th.Wait(context.Background(), "https://fast.example"))
	}
}
