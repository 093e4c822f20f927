// Package voice provides optional speech-to-text for chat input. The chat
// engine never depends on it; clients ask the capabilities endpoint first.
package voice

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/rs/zerolog/log"
)

var (
	ErrUnavailable = errors.New("voice input is not available")
	ErrEmptyAudio  = errors.New("audio is empty")
)

// Input converts recorded speech into message text.
type Input interface {
	Available() bool
	Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error)
}

// Unavailable is used when no transcription backend is configured.
type Unavailable struct{}

func (Unavailable) Available() bool { return false }

func (Unavailable) Transcribe(context.Context, io.Reader, string, string) (string, error) {
	return "", ErrUnavailable
}

type transcriber interface {
	New(ctx context.Context, body openai.AudioTranscriptionNewParams, opts ...option.RequestOption) (*openai.Transcription, error)
}

// Whisper transcribes through the OpenAI audio API.
type Whisper struct {
	client   transcriber
	language string
}

func NewWhisper(apiKey, language string) *Whisper {
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &Whisper{client: &client.Audio.Transcriptions, language: language}
}

func (w *Whisper) Available() bool { return true }

func (w *Whisper) Transcribe(ctx context.Context, audio io.Reader, filename, contentType string) (string, error) {
	if audio == nil {
		return "", ErrEmptyAudio
	}

	params := openai.AudioTranscriptionNewParams{
		Model: openai.AudioModelWhisper1,
		File:  openai.File(audio, filename, contentType),
	}
	if w.language != "" {
		params.Language = openai.String(w.language)
	}

	resp, err := w.client.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("transcribe audio: %w", err)
	}

	text := strings.TrimSpace(resp.Text)
	log.Debug().Str("filename", filename).Int("chars", len(text)).Msg("audio transcribed")
	return text, nil
}

// New returns Whisper when an API key is configured and Unavailable otherwise.
func New(apiKey, language string) Input {
	if apiKey == "" {
		return Unavailable{}
	}
	return NewWhisper(apiKey, language)
}
