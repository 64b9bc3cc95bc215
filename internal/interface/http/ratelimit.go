package http

import (
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yanqian/mealplanner/internal/infra/config"
)

const attemptIdleTTL = 10 * time.Minute

// credentialThrottle limits sign-in and registration attempts per client and
// route. A successful attempt refills the client's budget.
func credentialThrottle(cfg config.RateLimitConfig, logger *slog.Logger) gin.HandlerFunc {
	if !cfg.Enabled || cfg.RequestsPerMinute <= 0 {
		return func(c *gin.Context) { c.Next() }
	}

	limiter := newAttemptLimiter(cfg)
	return func(c *gin.Context) {
		key := c.ClientIP() + " " + c.FullPath()
		wait, ok := limiter.take(key)
		if !ok {
			logger.Warn("credential attempts throttled", "ip", c.ClientIP(), "path", c.Request.URL.Path, "retry_after_s", wait.Seconds())
			c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			abortWithError(c, NewHTTPError(http.StatusTooManyRequests, "rate_limit_exceeded", "too many attempts, please wait a moment", nil))
			return
		}
		c.Next()
		// errors are rendered by the outer error middleware, after this returns
		if len(c.Errors) == 0 && c.Writer.Status() < http.StatusBadRequest {
			limiter.reset(key)
		}
	}
}

type attemptLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*attemptBucket
	perMinute float64
	burst     float64
	now       func() time.Time
}

type attemptBucket struct {
	tokens   float64
	lastSeen time.Time
}

func newAttemptLimiter(cfg config.RateLimitConfig) *attemptLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &attemptLimiter{
		buckets:   make(map[string]*attemptBucket),
		perMinute: float64(cfg.RequestsPerMinute),
		burst:     float64(burst),
		now:       time.Now,
	}
}

// take spends one attempt for key. When none is left it reports how long
// until the next one is available.
func (l *attemptLimiter) take(key string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	l.evictLocked(now)

	b, ok := l.buckets[key]
	if !ok {
		b = &attemptBucket{tokens: l.burst, lastSeen: now}
		l.buckets[key] = b
	}
	if elapsed := now.Sub(b.lastSeen).Minutes(); elapsed > 0 {
		b.tokens = math.Min(l.burst, b.tokens+elapsed*l.perMinute)
	}
	b.lastSeen = now
	if b.tokens < 1 {
		missing := 1 - b.tokens
		return time.Duration(missing * float64(time.Minute) / l.perMinute), false
	}
	b.tokens--
	return 0, true
}

func (l *attemptLimiter) reset(key string) {
	l.mu.Lock()
	delete(l.buckets, key)
	l.mu.Unlock()
}

func (l *attemptLimiter) evictLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > attemptIdleTTL {
			delete(l.buckets, key)
		}
	}
}
