package repository

import (
	"context"
	"sync"

	"github.com/openclaw/companion-server-go/internal/model"
)

// MemoryChatMessageRepository keeps the log in process. Used by tests and by
// the terminal client when no database is configured.
type MemoryChatMessageRepository struct {
	mu       sync.RWMutex
	messages map[model.ConversationKey][]model.Message
}

func NewMemoryChatMessageRepository() *MemoryChatMessageRepository {
	return &MemoryChatMessageRepository{
		messages: make(map[model.ConversationKey][]model.Message),
	}
}

func (r *MemoryChatMessageRepository) Append(_ context.Context, msg *model.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := model.ConversationKey{SessionID: msg.SessionID, Companion: msg.Companion}
	r.messages[key] = append(r.messages[key], *msg)
	return nil
}

func (r *MemoryChatMessageRepository) ListByConversation(_ context.Context, key model.ConversationKey) ([]model.Message, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	src := r.messages[key]
	out := make([]model.Message, len(src))
	copy(out, src)
	return out, nil
}

func (r *MemoryChatMessageRepository) CountByRole(_ context.Context, key model.ConversationKey, role model.Role) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := 0
	for _, m := range r.messages[key] {
		if m.Sender.Role() == role {
			n++
		}
	}
	return n, nil
}
