package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter per-user token bucket
// A limiter idle long enough to have refilled completely is indistinguishable
// from a new one, so such entries are swept out of the map.
type RateLimiter struct {
	mu        sync.Mutex
	limiters  map[string]*limiterEntry
	every     time.Duration
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute requests per user per minute, bursting up
// to perMinute.
func NewRateLimiter(perMinute int) *RateLimiter {
	if perMinute < 1 {
		perMinute = 1
	}
	every := time.Minute / time.Duration(perMinute)
	return &RateLimiter{
		limiters: make(map[string]*limiterEntry),
		every:    every,
		burst:    perMinute,
		idleTTL:  every * time.Duration(perMinute),
		now:      time.Now,
	}
}

// Allow 是否放行 key 的一次请求
func (l *RateLimiter) Allow(key string) bool {
	now := l.now()

	l.mu.Lock()
	if now.Sub(l.lastSweep) >= l.idleTTL {
		l.sweep(now)
	}
	entry, ok := l.limiters[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(rate.Every(l.every), l.burst)}
		l.limiters[key] = entry
	}
	entry.lastSeen = now
	l.mu.Unlock()

	return entry.limiter.AllowN(now, 1)
}

// Len 当前跟踪的 key 数
func (l *RateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.limiters)
}

// sweep 清理空闲超过 idleTTL 的 limiter，调用方持有锁
func (l *RateLimiter) sweep(now time.Time) {
	for key, entry := range l.limiters {
		if now.Sub(entry.lastSeen) >= l.idleTTL {
			delete(l.limiters, key)
		}
	}
	l.lastSweep = now
}

// Middleware must run after AuthMiddleware; requests are keyed by user id.
func (l *RateLimiter) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		key, ok := GetUserID(c)
		if !ok {
			key = c.ClientIP()
		}
		if !l.Allow(key) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
				"code": http.StatusTooManyRequests,
				"msg":  "rate limit exceeded",
			})
			return
		}
		c.Next()
	}
}
