package middleware

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/Inventorum/ebay-sub000/internal/interfaces/http/dto"
	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// RateLimiter keeps one token bucket per key
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*visitor
	limit    rate.Limit
	burst    int
	idleTTL  time.Duration
	lastGC   time.Time
	now      func() time.Time
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter creates a limiter allowing perSecond requests per key with
// the given burst.
func NewRateLimiter(perSecond float64, burst int) *RateLimiter {
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{
		limiters: make(map[string]*visitor),
		limit:    rate.Limit(perSecond),
		burst:    burst,
		idleTTL:  10 * time.Minute,
		now:      time.Now,
	}
}

// Allow reports whether a request for key may proceed now
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	now := rl.now()
	rl.collectLocked(now)
	v, ok := rl.limiters[key]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(rl.limit, rl.burst)}
		rl.limiters[key] = v
	}
	v.lastSeen = now
	rl.mu.Unlock()

	return v.limiter.AllowN(now, 1)
}

// Burst is the bucket size of every key
func (rl *RateLimiter) Burst() int { return rl.burst }

// Len returns the number of tracked keys
func (rl *RateLimiter) Len() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.limiters)
}

// collectLocked drops idle keys, at most once per idle period
func (rl *RateLimiter) collectLocked(now time.Time) {
	if now.Sub(rl.lastGC) < rl.idleTTL {
		return
	}
	rl.lastGC = now
	for key, v := range rl.limiters {
		if now.Sub(v.lastSeen) > rl.idleTTL {
			delete(rl.limiters, key)
		}
	}
}

// KeyByAccount limits per account, or per client IP on routes without one
func KeyByAccount(c *gin.Context) string {
	if id := c.Param("account_id"); id != "" {
		return "account:" + id
	}
	return "ip:" + c.ClientIP()
}

// RateLimit rejects requests over the limit with 429
func RateLimit(limiter *RateLimiter, keyFunc func(*gin.Context) string) gin.HandlerFunc {
	if keyFunc == nil {
		keyFunc = KeyByAccount
	}
	return func(c *gin.Context) {
		if !limiter.Allow(keyFunc(c)) {
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, dto.NewErrorResponseWithRequestID(
				dto.ErrCodeRateLimited,
				"Too many requests. Please try again later.",
				GetRequestID(c),
			))
			return
		}
		c.Header("X-RateLimit-Limit", strconv.Itoa(limiter.Burst()))
		c.Next()
	}
}
