package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/jmoiron/sqlx"

	"github.com/openclaw/companion-server-go/internal/database"
	"github.com/openclaw/companion-server-go/internal/model"
)

// ChatMessageRepository is the append-only message log, one row per message,
// scoped by (session, companion) and ordered by creation time.
type ChatMessageRepository interface {
	Append(ctx context.Context, msg *model.Message) error
	ListByConversation(ctx context.Context, key model.ConversationKey) ([]model.Message, error)
	CountByRole(ctx context.Context, key model.ConversationKey, role model.Role) (int, error)
}

type chatMessageRow struct {
	ID            string    `db:"id"`
	SessionID     string    `db:"session_id"`
	CharacterName string    `db:"character_name"`
	Role          string    `db:"role"`
	Content       string    `db:"content"`
	RawContent    string    `db:"raw_content"`
	PhaseTag      string    `db:"phase_tag"`
	Safety        string    `db:"safety"`
	HasMemory     bool      `db:"has_memory"`
	Affordances   string    `db:"affordances"`
	UserID        string    `db:"user_id"`
	CreatedAt     time.Time `db:"created_at"`
}

func toRow(msg *model.Message) (chatMessageRow, error) {
	row := chatMessageRow{
		ID:            msg.ID,
		SessionID:     msg.SessionID,
		CharacterName: msg.Companion,
		Role:          string(msg.Sender.Role()),
		Content:       msg.Text,
		RawContent:    msg.RawText,
		PhaseTag:      msg.PhaseTag,
		Safety:        msg.Safety,
		HasMemory:     msg.HasMemory,
		UserID:        msg.UserID,
		CreatedAt:     msg.CreatedAt.UTC(),
	}
	if a := msg.Affordances.Normalize(); a != nil {
		data, err := json.Marshal(a)
		if err != nil {
			return row, fmt.Errorf("marshal affordances: %w", err)
		}
		row.Affordances = string(data)
	}
	return row, nil
}

func (r chatMessageRow) toModel() (model.Message, error) {
	msg := model.Message{
		ID:        r.ID,
		SessionID: r.SessionID,
		Companion: r.CharacterName,
		UserID:    r.UserID,
		Sender:    model.Role(r.Role).Sender(),
		Text:      r.Content,
		RawText:   r.RawContent,
		PhaseTag:  r.PhaseTag,
		Safety:    r.Safety,
		HasMemory: r.HasMemory,
		CreatedAt: r.CreatedAt,
	}
	if r.Affordances != "" {
		var a model.Affordances
		if err := json.Unmarshal([]byte(r.Affordances), &a); err != nil {
			return msg, fmt.Errorf("unmarshal affordances of %s: %w", r.ID, err)
		}
		msg.Affordances = a.Normalize()
	}
	return msg, nil
}

type chatMessageRepo struct {
	db database.DBTX
}

func NewChatMessageRepository(db *sqlx.DB) ChatMessageRepository {
	return &chatMessageRepo{db: db}
}

func (r *chatMessageRepo) Append(ctx context.Context, msg *model.Message) error {
	row, err := toRow(msg)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO chat_messages
			(id, session_id, character_name, role, content, raw_content,
			 phase_tag, safety, has_memory, affordances, user_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`), row.ID, row.SessionID, row.CharacterName, row.Role, row.Content, row.RawContent,
		row.PhaseTag, row.Safety, row.HasMemory, row.Affordances, row.UserID, row.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert chat message: %w", err)
	}
	return nil
}

func (r *chatMessageRepo) ListByConversation(ctx context.Context, key model.ConversationKey) ([]model.Message, error) {
	var rows []chatMessageRow
	err := r.db.SelectContext(ctx, &rows, r.db.Rebind(`
		SELECT id, session_id, character_name, role, content, raw_content,
			phase_tag, safety, has_memory, affordances, user_id, created_at
		FROM chat_messages
		WHERE session_id = ? AND character_name = ?
		ORDER BY created_at ASC, id ASC
	`), key.SessionID, key.Companion)
	if err != nil {
		return nil, fmt.Errorf("select chat messages: %w", err)
	}

	msgs := make([]model.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toModel()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func (r *chatMessageRepo) CountByRole(ctx context.Context, key model.ConversationKey, role model.Role) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, r.db.Rebind(`
		SELECT COUNT(*) FROM chat_messages
		WHERE session_id = ? AND character_name = ? AND role = ?
	`), key.SessionID, key.Companion, string(role))
	return count, err
}
