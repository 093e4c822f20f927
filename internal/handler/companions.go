package handler

import (
	"net/http"

	"github.com/openclaw/companion-server-go/internal/companion"
)

// GET /v1/companions
func ListCompanions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"companions": companion.All(),
	})
}
