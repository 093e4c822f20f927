// Package gateway talks to the language model behind the companions.
//
// The engine only sees the Gateway interface: a history goes in, response
// text plus routing metadata comes out. Phases are authoritative from here.
package gateway

import (
	"context"
	"errors"
	"strings"

	"github.com/openclaw/companion-server-go/internal/model"
)

// ErrUnauthenticated is returned before any I/O when a turn has no token.
var ErrUnauthenticated = errors.New("gateway: user must be logged in to chat")

// FallbackText replaces an empty model response.
const FallbackText = "I apologize, but I was unable to generate a response."

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OnboardingReply struct {
	Text             string
	Model            string
	Phase            string
	UserMessageCount int
}

type TherapyReply struct {
	Text            string
	Model           string
	Phase           string
	Safety          string
	Topic           string
	HasMemory       bool
	ReminderCreated bool
}

// Gateway runs one model turn. History ends with the user's new message.
type Gateway interface {
	RunOnboardingTurn(ctx context.Context, token, companion string, history []ChatMessage) (*OnboardingReply, error)
	RunTherapyTurn(ctx context.Context, token, companion string, history []ChatMessage, currentPhase string, isPro bool) (*TherapyReply, error)
}

// BuildHistory converts a transcript into gateway messages. A positive limit
// keeps only the most recent messages.
func BuildHistory(messages []model.Message, limit int) []ChatMessage {
	if limit > 0 && len(messages) > limit {
		messages = messages[len(messages)-limit:]
	}
	out := make([]ChatMessage, 0, len(messages))
	for _, m := range messages {
		text := m.HistoryText()
		if text == "" {
			continue
		}
		role := RoleAssistant
		if m.IsUser() {
			role = RoleUser
		}
		out = append(out, ChatMessage{Role: role, Content: text})
	}
	return out
}

func textOrFallback(text string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return FallbackText
	}
	return text
}

func countUserTurns(history []ChatMessage) int {
	n := 0
	for _, m := range history {
		if m.Role == RoleUser {
			n++
		}
	}
	return n
}
