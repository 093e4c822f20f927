package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/audit"
	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/httputil"
)

// Limiter is satisfied by the Redis and in-memory sliding windows.
type Limiter interface {
	CheckLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Time)
}

// KeyFunc picks the bucket a request counts against.
type KeyFunc func(r *http.Request) string

// UserOrIPKey buckets authenticated callers by user id and everyone else by
// client address.
func UserOrIPKey(r *http.Request) string {
	if identity := GetIdentity(r.Context()); identity != nil {
		return "user:" + identity.UserID
	}
	return "ip:" + audit.ClientIP(r)
}

// RateLimitMiddleware caps requests per key in a sliding window.
type RateLimitMiddleware struct {
	limiter Limiter
	limit   int
	window  time.Duration
	prefix  string
	key     KeyFunc
}

func NewRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string, key KeyFunc) *RateLimitMiddleware {
	if key == nil {
		key = UserOrIPKey
	}
	return &RateLimitMiddleware{
		limiter: limiter,
		limit:   limit,
		window:  window,
		prefix:  prefix,
		key:     key,
	}
}

func (m *RateLimitMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := m.prefix + ":" + m.key(r)
		allowed, resetAt := m.limiter.CheckLimit(r.Context(), key, m.limit, m.window)

		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(m.limit))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			secondsLeft := int(time.Until(resetAt).Seconds()) + 1
			log.Warn().Str("key", key).Msg("rate limit exceeded")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventRateLimitExceed,
				Details: map[string]interface{}{"scope": m.prefix},
			})
			w.Header().Set("Retry-After", strconv.Itoa(secondsLeft))
			httputil.WriteError(w, apperrors.RateLimitExceeded())
			return
		}

		next.ServeHTTP(w, r)
	})
}
