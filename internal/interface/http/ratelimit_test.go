package http

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/yanqian/mealplanner/internal/infra/config"
)

func TestAttemptLimiter_RefillsOverTime(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newAttemptLimiter(config.RateLimitConfig{RequestsPerMinute: 6, Burst: 2})
	limiter.now = func() time.Time { return now }

	_, ok := limiter.take("1.2.3.4 /login")
	require.True(t, ok)
	_, ok = limiter.take("1.2.3.4 /login")
	require.True(t, ok)
	wait, ok := limiter.take("1.2.3.4 /login")
	require.False(t, ok)
	require.Equal(t, 10*time.Second, wait)

	_, ok = limiter.take("5.6.7.8 /login")
	require.True(t, ok)

	now = now.Add(20 * time.Second)
	_, ok = limiter.take("1.2.3.4 /login")
	require.True(t, ok)
}

func TestAttemptLimiter_ResetAndEviction(t *testing.T) {
	now := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	limiter := newAttemptLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	limiter.now = func() time.Time { return now }

	_, ok := limiter.take("a")
	require.True(t, ok)
	_, ok = limiter.take("a")
	require.False(t, ok)
	limiter.reset("a")
	_, ok = limiter.take("a")
	require.True(t, ok)

	now = now.Add(attemptIdleTTL + time.Second)
	_, _ = limiter.take("b")
	require.NotContains(t, limiter.buckets, "a")
}
