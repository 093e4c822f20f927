package handler

import (
	"context"
	"net/http"

	"github.com/openclaw/companion-server-go/internal/httputil"
	"github.com/openclaw/companion-server-go/internal/middleware"
	"github.com/openclaw/companion-server-go/internal/model"
)

// SessionHeader carries the device session id on chat requests. EventSource
// clients send it as the sessionId query parameter instead.
const SessionHeader = "X-Session-ID"

type sessionFinder interface {
	Get(ctx context.Context, id string) (*model.DeviceSession, error)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	httputil.WriteJSON(w, status, data)
}

func writeError(w http.ResponseWriter, err error) {
	httputil.WriteError(w, err)
}

func sessionIDFrom(r *http.Request) string {
	if id := r.Header.Get(SessionHeader); id != "" {
		return id
	}
	return r.URL.Query().Get("sessionId")
}

// resolveSession checks that the request names a known device session.
func resolveSession(r *http.Request, sessions sessionFinder) (string, error) {
	session, err := sessions.Get(r.Context(), sessionIDFrom(r))
	if err != nil {
		return "", err
	}
	return session.ID, nil
}

// turnContext builds the engine's view of the caller from the verified
// identity, if any.
func turnContext(r *http.Request, sessionID, companionName string) model.TurnContext {
	tc := model.TurnContext{
		SessionID: sessionID,
		Companion: companionName,
	}
	if identity := middleware.GetIdentity(r.Context()); identity != nil {
		tc.AuthToken = identity.Token
		tc.UserID = identity.UserID
		tc.Entitlement.Pro = identity.Pro
	}
	return tc
}
