package config

import "time"

// Database connection pool settings
const (
	DBMaxOpenConns    = 25
	DBMaxIdleConns    = 5
	DBConnMaxLifetime = 5 * time.Minute
)

// HTTP server timeouts. The request timeout sits above the gateway ceiling
// so a slow AI turn still resolves into the apology path instead of a 503.
const (
	ServerRequestTimeout  = 120 * time.Second
	ServerReadTimeout     = 15 * time.Second
	ServerIdleTimeout     = 120 * time.Second
	ServerShutdownTimeout = 30 * time.Second
)

// Database ping timeout for health checks
const DBPingTimeout = 5 * time.Second

// Background job intervals
const CleanupJobInterval = 5 * time.Minute

// Default rate limiting
const (
	DefaultRateLimitPerMin = 60
	RequestLimitWindow     = time.Minute
)

// Device session creation is limited per IP
const (
	SessionCreateLimit  = 10
	SessionCreateWindow = time.Minute
)

const (
	GatewayKindEdge   = "edge"
	GatewayKindOpenAI = "openai"
)
