package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclaw/companion-server-go/internal/audit"
	"github.com/openclaw/companion-server-go/internal/httputil"
	"github.com/openclaw/companion-server-go/internal/service"
)

type SessionHandler struct {
	sessionService *service.SessionService
}

func NewSessionHandler(sessionService *service.SessionService) *SessionHandler {
	return &SessionHandler{
		sessionService: sessionService,
	}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Post("/", h.CreateSession)
	r.Get("/{sessionId}", h.GetSession)

	return r
}

type createSessionRequest struct {
	DeviceID string `json:"deviceId"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	session, created, err := h.sessionService.ResolveForDevice(r.Context(), req.DeviceID)
	if err != nil {
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
		audit.LogFromRequest(r, audit.Event{
			Type:      audit.EventSessionCreate,
			SessionID: session.ID,
		})
	}

	writeJSON(w, status, session)
}

// GET /v1/sessions/{sessionId}
func (h *SessionHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	session, err := h.sessionService.Get(r.Context(), chi.URLParam(r, "sessionId"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, session)
}
