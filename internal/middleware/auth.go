package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/audit"
	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/httputil"
)

type contextKey string

const IdentityContextKey contextKey = "identity"

// Identity is the authenticated caller. Token is forwarded to the AI gateway.
type Identity struct {
	UserID string
	Token  string
	Pro    bool
}

// Claims are the access token claims issued by the auth backend.
type Claims struct {
	Pro bool `json:"pro,omitempty"`
	jwt.RegisteredClaims
}

// GetIdentity returns the caller's identity, or nil for anonymous requests.
func GetIdentity(ctx context.Context) *Identity {
	if identity, ok := ctx.Value(IdentityContextKey).(*Identity); ok {
		return identity
	}
	return nil
}

func WithIdentity(ctx context.Context, identity *Identity) context.Context {
	return context.WithValue(ctx, IdentityContextKey, identity)
}

// AuthMiddleware verifies HS256 bearer tokens. Requests without a token pass
// through anonymously unless the middleware is strict; a token that is
// present but invalid is always rejected.
type AuthMiddleware struct {
	secret []byte
	strict bool
}

func NewAuthMiddleware(secret string) *AuthMiddleware {
	return &AuthMiddleware{secret: []byte(secret)}
}

// Strict returns a copy that rejects anonymous requests.
func (m *AuthMiddleware) Strict() *AuthMiddleware {
	return &AuthMiddleware{secret: m.secret, strict: true}
}

func (m *AuthMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := extractToken(r)
		if token == "" {
			if m.strict {
				httputil.WriteError(w, apperrors.Unauthorized("Missing authentication token"))
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		identity, err := m.verify(token)
		if err != nil {
			log.Warn().Err(err).Msg("auth middleware: invalid token attempt")
			audit.LogFromRequest(r, audit.Event{
				Type:    audit.EventAuthFailure,
				Details: map[string]interface{}{"reason": err.Error()},
			})
			httputil.WriteError(w, apperrors.InvalidToken("Invalid token"))
			return
		}

		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
	})
}

func (m *AuthMiddleware) verify(raw string) (*Identity, error) {
	if len(m.secret) == 0 {
		return nil, errors.New("token verification is not configured")
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (interface{}, error) {
		return m.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return nil, err
	}

	subject, err := claims.GetSubject()
	if err != nil || subject == "" {
		return nil, errors.New("token has no subject")
	}

	return &Identity{UserID: subject, Token: raw, Pro: claims.Pro}, nil
}

// IssueToken signs an access token. It is used by local tooling and tests;
// production tokens come from the auth backend.
func IssueToken(secret, userID string, pro bool, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Pro: pro,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// extractToken reads the bearer token. EventSource cannot set headers, so the
// query parameter is accepted too.
func extractToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}

	return r.URL.Query().Get("token")
}
