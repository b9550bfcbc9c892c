package middlewares

import (
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hxuan190/swap-engine/internal/common"
	"github.com/hxuan190/swap-engine/internal/http/httputil"
)

// RateLimiter is a per client IP token bucket.
type RateLimiter struct {
	mu       sync.Mutex
	rate     float64
	burst    float64
	tokens   map[string]float64
	lastTime map[string]time.Time
	now      func() time.Time
}

// NewRateLimiter allows rate requests per second with bursts of up to burst requests.
func NewRateLimiter(rate, burst int) *RateLimiter {
	return &RateLimiter{
		rate:     float64(rate),
		burst:    float64(burst),
		tokens:   make(map[string]float64),
		lastTime: make(map[string]time.Time),
		now:      time.Now,
	}
}

// Allow takes one token from key's bucket.
func (rl *RateLimiter) Allow(key string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	now := rl.now()

	if _, exists := rl.tokens[key]; !exists {
		rl.tokens[key] = rl.burst
		rl.lastTime[key] = now
	}

	// refill fractionally so steady traffic below the rate never starves
	elapsed := now.Sub(rl.lastTime[key]).Seconds()
	rl.lastTime[key] = now
	rl.tokens[key] += elapsed * rl.rate
	if rl.tokens[key] > rl.burst {
		rl.tokens[key] = rl.burst
	}

	if rl.tokens[key] < 1 {
		return false
	}
	rl.tokens[key]--
	return true
}

func (rl *RateLimiter) RateLimitMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !rl.Allow(c.ClientIP()) {
			httputil.HttpError(c, common.HTTPErrorTooManyRequests("rate limit exceeded"))
			c.Abort()
			return
		}
		c.Next()
	}
}
