package middleware

import (
	"net/http"
	"time"

	"github.com/openclaw/companion-server-go/internal/audit"
)

// NewIPRateLimitMiddleware limits by client address only, for endpoints that
// run before a caller has any identity (device session creation).
func NewIPRateLimitMiddleware(limiter Limiter, limit int, window time.Duration, prefix string) *RateLimitMiddleware {
	return NewRateLimitMiddleware(limiter, limit, window, "ip:"+prefix, func(r *http.Request) string {
		return audit.ClientIP(r)
	})
}
