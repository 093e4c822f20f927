package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/companion-server-go/internal/database"
	"github.com/openclaw/companion-server-go/internal/model"
)

// PendingCompanionRepository stores at most one pending companion per session.
type PendingCompanionRepository interface {
	Save(ctx context.Context, params model.SavePendingParams) (*model.PendingCompanion, error)
	FindActive(ctx context.Context, sessionID string, now time.Time) (*model.PendingCompanion, error)
	Delete(ctx context.Context, sessionID string) error
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PendingCompanionRepository
}

type pendingCompanionRepo struct {
	db database.DBTX
}

func NewPendingCompanionRepository(db *sqlx.DB) PendingCompanionRepository {
	return &pendingCompanionRepo{db: db}
}

func (r *pendingCompanionRepo) WithTx(tx *sqlx.Tx) PendingCompanionRepository {
	return &pendingCompanionRepo{db: tx}
}

func (r *pendingCompanionRepo) Save(ctx context.Context, params model.SavePendingParams) (*model.PendingCompanion, error) {
	now := time.Now().UTC()
	expires := params.ExpiresAt.UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO pending_companions (session_id, companion, pending_message, expires_at, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (session_id) DO UPDATE SET
			companion = excluded.companion,
			pending_message = excluded.pending_message,
			expires_at = excluded.expires_at,
			created_at = excluded.created_at
	`), params.SessionID, params.Companion, params.PendingMessage, expires, now)
	if err != nil {
		return nil, err
	}
	return &model.PendingCompanion{
		SessionID:      params.SessionID,
		Companion:      params.Companion,
		PendingMessage: params.PendingMessage,
		ExpiresAt:      expires,
		CreatedAt:      now,
	}, nil
}

func (r *pendingCompanionRepo) FindActive(ctx context.Context, sessionID string, now time.Time) (*model.PendingCompanion, error) {
	var p model.PendingCompanion
	err := r.db.GetContext(ctx, &p, r.db.Rebind(`
		SELECT session_id, companion, pending_message, expires_at, created_at
		FROM pending_companions
		WHERE session_id = ? AND expires_at > ?
	`), sessionID, now.UTC())
	return HandleNotFound(&p, err)
}

func (r *pendingCompanionRepo) Delete(ctx context.Context, sessionID string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM pending_companions WHERE session_id = ?
	`), sessionID)
	return err
}

func (r *pendingCompanionRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, r.db.Rebind(`
		DELETE FROM pending_companions WHERE expires_at <= ?
	`), now.UTC())
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
