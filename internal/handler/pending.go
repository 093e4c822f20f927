package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/companion-server-go/internal/audit"
	"github.com/openclaw/companion-server-go/internal/companion"
	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/httputil"
	"github.com/openclaw/companion-server-go/internal/service"
)

type PendingHandler struct {
	pending  *service.PendingService
	sessions sessionFinder
}

func NewPendingHandler(pending *service.PendingService, sessions sessionFinder) *PendingHandler {
	return &PendingHandler{pending: pending, sessions: sessions}
}

func (h *PendingHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/", h.Consume)
	r.Post("/", h.Remember)

	return r
}

type rememberRequest struct {
	Companion string  `json:"companion"`
	Message   *string `json:"message,omitempty"`
}

// POST /v1/pending
func (h *PendingHandler) Remember(w http.ResponseWriter, r *http.Request) {
	sessionID, err := resolveSession(r, h.sessions)
	if err != nil {
		writeError(w, err)
		return
	}

	var req rememberRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	c, ok := companion.Lookup(req.Companion)
	if !ok {
		writeError(w, apperrors.NotFound("Companion"))
		return
	}

	pending, err := h.pending.Remember(r.Context(), sessionID, c.Name, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventPendingStored,
		SessionID: sessionID,
		Companion: c.Name,
	})

	writeJSON(w, http.StatusCreated, pending)
}

// GET /v1/pending returns and clears the pending companion. 204 when there is
// none or it expired.
func (h *PendingHandler) Consume(w http.ResponseWriter, r *http.Request) {
	sessionID, err := resolveSession(r, h.sessions)
	if err != nil {
		writeError(w, err)
		return
	}

	pending, err := h.pending.Consume(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if pending == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventPendingConsumed,
		SessionID: sessionID,
		Companion: pending.Companion,
	})

	writeJSON(w, http.StatusOK, pending)
}
