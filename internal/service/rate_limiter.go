package service

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	redisclient "github.com/openclaw/companion-server-go/internal/redis"
)

// rateLimitScript is a Lua script for sliding window rate limiting.
// Scores are unix milliseconds so sub-second windows work.
var rateLimitScript = redis.NewScript(`
local key = KEYS[1]
local now = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit = tonumber(ARGV[3])

local windowStart = now - window

redis.call('ZREMRANGEBYSCORE', key, '-inf', windowStart)

local count = redis.call('ZCARD', key)

if count >= limit then
    local oldest = redis.call('ZRANGE', key, 0, 0, 'WITHSCORES')
    local resetAt = 0
    if #oldest >= 2 then
        resetAt = tonumber(oldest[2]) + window
    else
        resetAt = now + window
    end
    return {0, resetAt}
end

redis.call('ZADD', key, now, now .. '-' .. math.random())
redis.call('PEXPIRE', key, window + 10000)

local resetAt = now + window
return {1, resetAt}
`)

// RateLimiter answers whether one more event fits in a sliding window.
type RateLimiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (allowed bool, resetAt time.Time)
}

type RedisRateLimiter struct {
	client *redis.Client
}

func NewRedisRateLimiter(client *redis.Client) *RedisRateLimiter {
	return &RedisRateLimiter{client: client}
}

// CheckLimit checks if a request is allowed under the rate limit
func (rl *RedisRateLimiter) CheckLimit(
	ctx context.Context,
	key string,
	limit int,
	window time.Duration,
) (allowed bool, resetAt time.Time) {
	now := time.Now().UnixMilli()

	result, err := rateLimitScript.Run(
		ctx,
		rl.client,
		[]string{redisclient.RateLimitKey("sliding", key)},
		now,
		window.Milliseconds(),
		limit,
	).Int64Slice()

	if err != nil {
		log.Warn().
			Err(err).
			Str("key", key).
			Msg("rate limit check failed, denying request for safety")
		return false, time.Now().Add(window)
	}

	if len(result) != 2 {
		log.Warn().Str("key", key).Msg("unexpected rate limit result, denying request for safety")
		return false, time.Now().Add(window)
	}

	return result[0] == 1, time.UnixMilli(result[1])
}

// MemoryRateLimiter is the single-process sliding window used when no Redis
// is configured.
type MemoryRateLimiter struct {
	mu     sync.Mutex
	events map[string][]time.Time
	now    func() time.Time
}

func NewMemoryRateLimiter() *MemoryRateLimiter {
	return &MemoryRateLimiter{
		events: make(map[string][]time.Time),
		now:    time.Now,
	}
}

func (rl *MemoryRateLimiter) CheckLimit(_ context.Context, key string, limit int, window time.Duration) (bool, time.Time) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	windowStart := now.Add(-window)

	kept := rl.events[key][:0]
	for _, at := range rl.events[key] {
		if at.After(windowStart) {
			kept = append(kept, at)
		}
	}

	if len(kept) >= limit {
		rl.events[key] = kept
		return false, kept[0].Add(window)
	}

	rl.events[key] = append(kept, now)
	return true, now.Add(window)
}

// Sweep drops buckets with no events inside window.
func (rl *MemoryRateLimiter) Sweep(window time.Duration) int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-window)
	removed := 0
	for key, events := range rl.events {
		if len(events) == 0 || !events[len(events)-1].After(cutoff) {
			delete(rl.events, key)
			removed++
		}
	}
	return removed
}
