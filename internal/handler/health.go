package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/config"
)

// CheckFunc reports whether a dependency is reachable.
type CheckFunc func(ctx context.Context) error

type HealthHandler struct {
	db    CheckFunc
	redis CheckFunc
}

// NewHealthHandler takes a nil redis check when the server runs without it.
func NewHealthHandler(db, redis CheckFunc) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

// GET /health
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), config.DBPingTimeout)
	defer cancel()

	status := http.StatusOK
	body := map[string]any{
		"status":    "ok",
		"database":  "ok",
		"redis":     "disabled",
		"timestamp": time.Now().UnixMilli(),
	}

	if err := h.db(ctx); err != nil {
		log.Error().Err(err).Msg("health check: database unreachable")
		body["database"] = "unreachable"
		body["status"] = "degraded"
		status = http.StatusServiceUnavailable
	}

	if h.redis != nil {
		body["redis"] = "ok"
		if err := h.redis(ctx); err != nil {
			log.Warn().Err(err).Msg("health check: redis unreachable")
			body["redis"] = "unreachable"
			body["status"] = "degraded"
		}
	}

	writeJSON(w, status, body)
}
