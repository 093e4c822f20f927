package handler

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/middleware"
	"github.com/openclaw/companion-server-go/internal/voice"
)

// VoiceHandler exposes the optional voice input capability.
type VoiceHandler struct {
	input voice.Input
}

func NewVoiceHandler(input voice.Input) *VoiceHandler {
	if input == nil {
		input = voice.Unavailable{}
	}
	return &VoiceHandler{input: input}
}

func (h *VoiceHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Post("/transcriptions", h.Transcribe)
	return r
}

// GET /v1/capabilities
func (h *VoiceHandler) Capabilities(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"voiceInput": h.input.Available(),
	})
}

// POST /v1/voice/transcriptions (multipart, field "audio")
func (h *VoiceHandler) Transcribe(w http.ResponseWriter, r *http.Request) {
	if !h.input.Available() {
		writeError(w, apperrors.Unavailable("Voice input"))
		return
	}

	if err := r.ParseMultipartForm(middleware.MaxVoiceUploadSize); err != nil {
		writeError(w, apperrors.ValidationError("Invalid multipart body").WithCause(err))
		return
	}
	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, apperrors.MissingRequired("audio"))
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType != "" && !strings.HasPrefix(contentType, "audio/") && contentType != "application/octet-stream" {
		writeError(w, apperrors.ValidationError("audio must be an audio file"))
		return
	}

	text, err := h.input.Transcribe(r.Context(), file, header.Filename, contentType)
	if err != nil {
		writeError(w, apperrors.External("voice transcription", err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"text": text})
}
