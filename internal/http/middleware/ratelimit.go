// Package middleware contains shared Gin middleware used by the HTTP layer.
//
// This file implements a process-local token-bucket limiter. Public routes
// are keyed by client IP; authenticated routes by user ID, so one account
// cannot drain model capacity for everyone behind the same NAT.
package middleware

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

const (
	visitorTTL       = 10 * time.Minute
	visitorSweepEach = 5000
)

// keyFunc maps a request to its bucket.
type keyFunc func(*gin.Context) string

// KeyByIP buckets requests by client IP.
func KeyByIP() keyFunc {
	return func(c *gin.Context) string { return "ip:" + c.ClientIP() }
}

// KeyByUserOrIP prefers the authenticated user and falls back to the client
// IP. Prefixes keep the two namespaces apart.
func KeyByUserOrIP() keyFunc {
	return func(c *gin.Context) string {
		if uid := userIDFromCtx(c); uid != "" {
			return "user:" + uid
		}
		return "ip:" + c.ClientIP()
	}
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// RateLimiter holds one bucket per key. Idle buckets are swept every
// visitorSweepEach lookups. Safe for concurrent use.
type RateLimiter struct {
	rps   rate.Limit
	burst int
	keyFn keyFunc
	ttl   time.Duration
	now   func() time.Time

	mu       sync.Mutex
	visitors map[string]*visitor
	lookups  uint64
}

// NewRateLimiter builds a limiter refilling rps tokens per second with the
// given burst (coerced to at least 1).
func NewRateLimiter(rps float64, burst int, keyFn keyFunc) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	return &RateLimiter{
		rps:      rate.Limit(rps),
		burst:    burst,
		keyFn:    keyFn,
		ttl:      visitorTTL,
		now:      time.Now,
		visitors: make(map[string]*visitor),
	}
}

// getVisitor returns the bucket for key. The sweep runs before the lookup so
// a stale bucket is replaced rather than refreshed.
func (rl *RateLimiter) getVisitor(key string) *rate.Limiter {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.lookups++
	if rl.lookups >= visitorSweepEach {
		for k, v := range rl.visitors {
			if now.Sub(v.lastSeen) >= rl.ttl {
				delete(rl.visitors, k)
			}
		}
		rl.lookups = 0
	}

	if v, ok := rl.visitors[key]; ok {
		v.lastSeen = now
		return v.limiter
	}
	lim := rate.NewLimiter(rl.rps, rl.burst)
	rl.visitors[key] = &visitor{limiter: lim, lastSeen: now}
	return lim
}

// IsRateBypass reports whether the request is an idempotent replay, which
// costs no model call and therefore no token.
func IsRateBypass(c *gin.Context) bool {
	v, ok := c.Get(ctxKeyRateBypass)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}

// Handler enforces the limit, answering 429 with code "rate_limited" and
// Retry-After: 1 when the bucket is empty.
func (rl *RateLimiter) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		if IsRateBypass(c) || rl.getVisitor(rl.keyFn(c)).Allow() {
			c.Next()
			return
		}
		rid, _ := c.Get(requestIDKey)
		c.Header("Retry-After", "1")
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"request_id": asString(rid),
			"code":       "rate_limited",
			"message":    "rate limit exceeded",
		})
	}
}
