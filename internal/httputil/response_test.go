package httputil

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/openclaw/companion-server-go/internal/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   apperrors.ErrorCode
	}{
		{"validation", apperrors.ValidationError("empty"), http.StatusBadRequest, apperrors.ErrCodeValidation},
		{"too long", apperrors.MessageTooLong(10), http.StatusBadRequest, apperrors.ErrCodeMessageTooLong},
		{"login required", apperrors.LoginRequired(), http.StatusUnauthorized, apperrors.ErrCodeLoginRequired},
		{"not found", apperrors.NotFound("Companion"), http.StatusNotFound, apperrors.ErrCodeNotFound},
		{"conflict", apperrors.Conflict("used"), http.StatusConflict, apperrors.ErrCodeConflict},
		{"rate limit", apperrors.RateLimitExceeded(), http.StatusTooManyRequests, apperrors.ErrCodeRateLimitExceeded},
		{"unavailable", apperrors.Unavailable("Voice input"), http.StatusNotImplemented, apperrors.ErrCodeUnavailable},
		{"external", apperrors.External("gateway", errors.New("x")), http.StatusBadGateway, apperrors.ErrCodeExternal},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.ErrCodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			WriteError(rec, tt.err)

			assert.Equal(t, tt.status, rec.Code)
			assert.Contains(t, rec.Body.String(), string(tt.code))
			assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
		})
	}
}

func TestDecodeJSON(t *testing.T) {
	var dst struct {
		Text string `json:"text"`
	}

	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"text":"hi"}`))
	require.NoError(t, DecodeJSON(r, &dst))
	assert.Equal(t, "hi", dst.Text)

	r = httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{`))
	err := DecodeJSON(r, &dst)
	assert.True(t, apperrors.HasCode(err, apperrors.ErrCodeValidation))
}
