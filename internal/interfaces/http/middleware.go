package http

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"

	"github.com/garyjia/expense-validator/internal/infrastructure/metrics"
)

// RateLimitConfig holds the per-client request limit
type RateLimitConfig struct {
	Enabled         bool
	RPS             float64
	Burst           int
	CleanupInterval time.Duration
	MaxAge          time.Duration
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		Enabled:         true,
		RPS:             10.0,
		Burst:           20,
		CleanupInterval: 5 * time.Minute,
		MaxAge:          10 * time.Minute,
	}
}

type clientLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
	mu       sync.Mutex
}

// rateLimiter keeps one token bucket per client IP
type rateLimiter struct {
	config   RateLimitConfig
	limiters map[string]*clientLimiter
	mu       sync.RWMutex
	now      func() time.Time
}

func newRateLimiter(config RateLimitConfig) *rateLimiter {
	if config.Burst < 1 {
		config.Burst = 1
	}
	return &rateLimiter{
		config:   config,
		limiters: make(map[string]*clientLimiter),
		now:      time.Now,
	}
}

// run evicts idle clients until ctx is done
func (rl *rateLimiter) run(ctx context.Context) {
	if rl.config.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(rl.config.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			rl.cleanup()
		}
	}
}

func (rl *rateLimiter) cleanup() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	for ip, l := range rl.limiters {
		l.mu.Lock()
		lastSeen := l.lastSeen
		l.mu.Unlock()
		if now.Sub(lastSeen) > rl.config.MaxAge {
			delete(rl.limiters, ip)
		}
	}
}

func (rl *rateLimiter) get(clientIP string) *clientLimiter {
	rl.mu.RLock()
	l, exists := rl.limiters[clientIP]
	rl.mu.RUnlock()
	if exists {
		return l
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()
	l, exists = rl.limiters[clientIP]
	if !exists {
		l = &clientLimiter{
			limiter:  rate.NewLimiter(rate.Limit(rl.config.RPS), rl.config.Burst),
			lastSeen: rl.now(),
		}
		rl.limiters[clientIP] = l
	}
	return l
}

func (rl *rateLimiter) size() int {
	rl.mu.RLock()
	defer rl.mu.RUnlock()
	return len(rl.limiters)
}

func (rl *rateLimiter) middleware() gin.HandlerFunc {
	limitHeader := strconv.FormatFloat(rl.config.RPS, 'f', -1, 64)

	return func(c *gin.Context) {
		clientIP := c.ClientIP()
		if clientIP == "" {
			clientIP = c.RemoteIP()
		}

		l := rl.get(clientIP)
		l.mu.Lock()
		l.lastSeen = rl.now()
		l.mu.Unlock()

		c.Header("X-RateLimit-Limit", limitHeader)

		if !l.limiter.Allow() {
			metrics.RateLimitRequestsTotal.WithLabelValues("limited").Inc()
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("Retry-After", "1")
			c.AbortWithStatusJSON(http.StatusTooManyRequests, ErrorResponse{Error: "Too many requests"})
			return
		}

		metrics.RateLimitRequestsTotal.WithLabelValues("allowed").Inc()
		remaining := int(l.limiter.Tokens())
		if remaining < 0 {
			remaining = 0
		}
		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))

		c.Next()
	}
}

// corsMiddleware allows the configured origins. An empty list or "*" allows
// any origin.
func corsMiddleware(allowedOrigins []string) gin.HandlerFunc {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		o = strings.TrimSpace(o)
		if o == "*" {
			allowAll = true
		}
		allowed[o] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		switch {
		case allowAll:
			c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		case origin != "":
			if _, ok := allowed[origin]; ok {
				c.Writer.Header().Set("Access-Control-Allow-Origin", origin)
				c.Writer.Header().Add("Vary", "Origin")
			}
		}
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		c.Writer.Header().Set("Access-Control-Expose-Headers", "Content-Disposition")

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
