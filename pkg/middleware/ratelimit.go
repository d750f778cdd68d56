/**
 * @description
 * Rate limiting middleware to prevent abuse and ensure fair resource usage.
 *
 * Two limiters are provided:
 * - RedisRateLimiter: a fixed-window counter shared by every replica, kept in
 *   Redis with an atomic INCR/PEXPIRE script.
 * - MemoryRateLimiter: an in-process token bucket, used on its own when Redis
 *   is not configured and as the fallback when Redis errors.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Redis client for the distributed limiter.
 */
package middleware

import (
	"context"
	"fmt"
	"log"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter decides whether the request identified by key may proceed.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfterSeconds int, err error)
}

var rateLimitScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
if ttl < 0 then
  ttl = tonumber(ARGV[1])
end
return {current, ttl}
`)

// RedisRateLimiter implements distributed rate limiting using Redis.
type RedisRateLimiter struct {
	client redis.UniversalClient
	prefix string
	limit  int
	window time.Duration
}

// NewRedisRateLimiter allows limit requests per key per window.
func NewRedisRateLimiter(client redis.UniversalClient, prefix string, limit int, window time.Duration) *RedisRateLimiter {
	trimmedPrefix := strings.TrimSuffix(strings.TrimSpace(prefix), ":")
	if trimmedPrefix == "" {
		trimmedPrefix = "transfa:rate_limit"
	}
	return &RedisRateLimiter{
		client: client,
		prefix: trimmedPrefix,
		limit:  limit,
		window: window,
	}
}

// Allow consumes one request from key's current window.
func (r *RedisRateLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	if r == nil || r.client == nil || r.limit <= 0 || r.window <= 0 {
		return true, 0, nil
	}

	windowMs := r.window.Milliseconds()
	if windowMs < 1000 {
		windowMs = 1000
	}

	redisKey := fmt.Sprintf("%s:%s", r.prefix, key)
	rawResult, err := rateLimitScript.Run(ctx, r.client, []string{redisKey}, windowMs).Result()
	if err != nil {
		return false, 0, err
	}

	values, ok := rawResult.([]interface{})
	if !ok || len(values) != 2 {
		return false, 0, fmt.Errorf("unexpected redis limiter response shape: %T", rawResult)
	}
	count, ok := values[0].(int64)
	if !ok {
		return false, 0, fmt.Errorf("unexpected redis limiter count type: %T", values[0])
	}
	ttlMs, ok := values[1].(int64)
	if !ok || ttlMs < 0 {
		ttlMs = windowMs
	}

	if int(count) <= r.limit {
		return true, 0, nil
	}
	retryAfter := int(math.Ceil(float64(ttlMs) / 1000.0))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

// MemoryRateLimiter implements a per-key token bucket.
type MemoryRateLimiter struct {
	buckets     map[string]*tokenBucket
	mutex       sync.Mutex
	capacity    int
	refillEvery time.Duration
	stopCleanup chan struct{}
	stopOnce    sync.Once
	now         func() time.Time
}

type tokenBucket struct {
	tokens     int
	lastRefill time.Time
}

// NewMemoryRateLimiter allows bursts of limit requests, refilled evenly over window.
func NewMemoryRateLimiter(limit int, window time.Duration) *MemoryRateLimiter {
	if limit < 1 {
		limit = 1
	}
	rl := &MemoryRateLimiter{
		buckets:     make(map[string]*tokenBucket),
		capacity:    limit,
		refillEvery: window / time.Duration(limit),
		stopCleanup: make(chan struct{}),
		now:         time.Now,
	}
	if rl.refillEvery <= 0 {
		rl.refillEvery = time.Millisecond
	}

	go rl.cleanupExpiredBuckets()
	return rl
}

// Allow consumes a token from key's bucket.
func (rl *MemoryRateLimiter) Allow(_ context.Context, key string) (bool, int, error) {
	rl.mutex.Lock()
	defer rl.mutex.Unlock()

	now := rl.now()
	bucket, exists := rl.buckets[key]
	if !exists {
		bucket = &tokenBucket{tokens: rl.capacity, lastRefill: now}
		rl.buckets[key] = bucket
	}

	if elapsed := now.Sub(bucket.lastRefill); elapsed >= rl.refillEvery {
		refill := int(elapsed / rl.refillEvery)
		bucket.tokens = min(rl.capacity, bucket.tokens+refill)
		bucket.lastRefill = bucket.lastRefill.Add(time.Duration(refill) * rl.refillEvery)
	}

	if bucket.tokens > 0 {
		bucket.tokens--
		return true, 0, nil
	}

	wait := rl.refillEvery - now.Sub(bucket.lastRefill)
	retryAfter := int(math.Ceil(wait.Seconds()))
	if retryAfter < 1 {
		retryAfter = 1
	}
	return false, retryAfter, nil
}

// Stop ends the background cleanup goroutine.
func (rl *MemoryRateLimiter) Stop() {
	rl.stopOnce.Do(func() { close(rl.stopCleanup) })
}

// cleanupExpiredBuckets removes idle buckets to prevent memory leaks.
func (rl *MemoryRateLimiter) cleanupExpiredBuckets() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.mutex.Lock()
			idleAfter := time.Duration(rl.capacity) * rl.refillEvery
			now := rl.now()
			for key, bucket := range rl.buckets {
				if now.Sub(bucket.lastRefill) > idleAfter {
					delete(rl.buckets, key)
				}
			}
			rl.mutex.Unlock()
		case <-rl.stopCleanup:
			return
		}
	}
}

// FallbackLimiter consults primary and switches to fallback for any request
// where primary returns an error.
type FallbackLimiter struct {
	primary  Limiter
	fallback Limiter
}

// NewFallbackLimiter creates a FallbackLimiter.
func NewFallbackLimiter(primary, fallback Limiter) *FallbackLimiter {
	return &FallbackLimiter{primary: primary, fallback: fallback}
}

// Allow implements Limiter.
func (f *FallbackLimiter) Allow(ctx context.Context, key string) (bool, int, error) {
	allowed, retryAfter, err := f.primary.Allow(ctx, key)
	if err == nil {
		return allowed, retryAfter, nil
	}
	log.Printf("level=warn component=rate_limiter msg=\"primary limiter failed; using fallback\" err=%v", err)
	return f.fallback.Allow(ctx, key)
}

// RateLimitMiddleware limits requests per client IP within scope.
func RateLimitMiddleware(limiter Limiter, scope string, limit int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := scope + ":" + getClientIP(r)

			allowed, retryAfter, err := limiter.Allow(r.Context(), key)
			if err != nil {
				log.Printf("level=warn component=rate_limiter msg=\"limiter unavailable; allowing request\" scope=%s err=%v", scope, err)
				allowed = true
			}
			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit))
			if !allowed {
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				writeJSONError(w, http.StatusTooManyRequests, "Too many requests", "Rate limit exceeded. Please try again later.")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// getClientIP extracts the client IP from the request
func getClientIP(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs, the first is the client.
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if first := strings.TrimSpace(strings.Split(xff, ",")[0]); first != "" {
			return first
		}
	}

	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); xri != "" {
		return xri
	}

	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
