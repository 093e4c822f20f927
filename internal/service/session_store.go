package service

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/phase"
	"github.com/openclaw/companion-server-go/internal/repository"
)

// SessionStore is the message log as the conversation engine sees it.
type SessionStore struct {
	repo repository.ChatMessageRepository
}

func NewSessionStore(repo repository.ChatMessageRepository) *SessionStore {
	return &SessionStore{repo: repo}
}

// Append persists msg for an authenticated caller. Anonymous conversations
// are not persisted: the call is logged and reports false.
func (s *SessionStore) Append(ctx context.Context, tc model.TurnContext, msg *model.Message) (bool, error) {
	if !tc.Authenticated() {
		log.Warn().
			Str("sessionId", msg.SessionID).
			Str("companion", msg.Companion).
			Str("sender", string(msg.Sender)).
			Msg("not persisting message for unauthenticated user")
		return false, nil
	}
	if err := s.repo.Append(ctx, msg); err != nil {
		return false, fmt.Errorf("append message: %w", err)
	}
	return true, nil
}

func (s *SessionStore) LoadAll(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	msgs, err := s.repo.ListByConversation(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("load messages: %w", err)
	}
	return msgs, nil
}

func (s *SessionStore) CountUserMessages(loaded []model.Message) int {
	return phase.CountUserMessages(loaded)
}
