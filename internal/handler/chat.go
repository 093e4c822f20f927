package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/audit"
	"github.com/openclaw/companion-server-go/internal/companion"
	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/httputil"
	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/service"
)

type ChatHandler struct {
	engine   *service.ConversationEngine
	sessions sessionFinder
	pending  *service.PendingService
}

func NewChatHandler(engine *service.ConversationEngine, sessions sessionFinder, pending *service.PendingService) *ChatHandler {
	return &ChatHandler{
		engine:   engine,
		sessions: sessions,
		pending:  pending,
	}
}

func (h *ChatHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/{companion}", h.Open)
	r.Get("/{companion}/messages", h.ListMessages)
	r.Post("/{companion}/messages", h.Send)
	r.Post("/{companion}/continue", h.Continue)
	r.Post("/{companion}/paywall-passed", h.PaywallPassed)

	return r
}

func (h *ChatHandler) turnContext(r *http.Request) (model.TurnContext, error) {
	sessionID, err := resolveSession(r, h.sessions)
	if err != nil {
		return model.TurnContext{}, err
	}
	return turnContext(r, sessionID, chi.URLParam(r, "companion")), nil
}

// GET /v1/chat/{companion}
func (h *ChatHandler) Open(w http.ResponseWriter, r *http.Request) {
	tc, err := h.turnContext(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.Open(r.Context(), tc)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// GET /v1/chat/{companion}/messages?limit=&offset=
func (h *ChatHandler) ListMessages(w http.ResponseWriter, r *http.Request) {
	tc, err := h.turnContext(r)
	if err != nil {
		writeError(w, err)
		return
	}

	messages, err := h.engine.Transcript(r.Context(), tc)
	if err != nil {
		writeError(w, err)
		return
	}

	page := ParsePagination(r)
	writeJSON(w, http.StatusOK, map[string]any{
		"messages": paginate(messages, page),
		"total":    len(messages),
		"limit":    page.Limit,
		"offset":   page.Offset,
	})
}

type sendRequest struct {
	Text string `json:"text"`
}

// POST /v1/chat/{companion}/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	tc, err := h.turnContext(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req sendRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.engine.Send(r.Context(), tc, req.Text)
	if err != nil {
		if apperrors.HasCode(err, apperrors.ErrCodeLoginRequired) {
			h.rememberForLogin(r, tc, req.Text)
		}
		writeError(w, err)
		return
	}

	status := http.StatusOK
	if result.Status == model.TurnStatusAwaitingAck {
		status = http.StatusAccepted
	}
	writeJSON(w, status, result)
}

// rememberForLogin keeps the companion and the unsent text so the client can
// resume the conversation after the login redirect.
func (h *ChatHandler) rememberForLogin(r *http.Request, tc model.TurnContext, text string) {
	c, ok := companion.Lookup(tc.Companion)
	if h.pending == nil || !ok {
		return
	}
	pending, err := h.pending.Remember(r.Context(), tc.SessionID, c.Name, &text)
	if err != nil {
		log.Error().Err(err).Str("sessionId", tc.SessionID).Msg("failed to store pending companion")
		return
	}
	audit.LogFromRequest(r, audit.Event{
		Type:      audit.EventPendingStored,
		SessionID: tc.SessionID,
		Companion: pending.Companion,
	})
}

type continueRequest struct {
	ContinuationID string `json:"continuationId"`
}

// POST /v1/chat/{companion}/continue
func (h *ChatHandler) Continue(w http.ResponseWriter, r *http.Request) {
	tc, err := h.turnContext(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req continueRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.ContinuationID == "" {
		writeError(w, apperrors.MissingRequired("continuationId"))
		return
	}

	result, err := h.engine.Continue(r.Context(), tc, req.ContinuationID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// POST /v1/chat/{companion}/paywall-passed
func (h *ChatHandler) PaywallPassed(w http.ResponseWriter, r *http.Request) {
	tc, err := h.turnContext(r)
	if err != nil {
		writeError(w, err)
		return
	}

	progress, err := h.engine.MarkPaywallPassed(r.Context(), tc)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"progress": progress})
}
