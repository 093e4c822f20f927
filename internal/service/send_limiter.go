package service

import (
	"context"
	"time"

	apperrors "github.com/openclaw/companion-server-go/internal/errors"
)

// SendLimiter allows one user-initiated send per interval and session. It is
// checked before any other processing of a turn.
type SendLimiter struct {
	limiter  RateLimiter
	interval time.Duration
}

func NewSendLimiter(limiter RateLimiter, interval time.Duration) *SendLimiter {
	return &SendLimiter{limiter: limiter, interval: interval}
}

func (l *SendLimiter) Allow(ctx context.Context, sessionID string) error {
	allowed, resetAt := l.limiter.CheckLimit(ctx, "send:"+sessionID, 1, l.interval)
	if allowed {
		return nil
	}
	retryAfter := time.Until(resetAt)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return apperrors.RateLimitExceeded().WithDetails(map[string]int64{
		"retryAfterMs": retryAfter.Milliseconds(),
	})
}
