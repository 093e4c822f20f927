package service

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/rs/zerolog/log"

	"github.com/openclaw/companion-server-go/internal/database"
	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/repository"
)

type txRunner interface {
	WithTx(ctx context.Context, fn database.TxFunc) error
}

// PendingService remembers the companion (and typed message) a user picked
// before being sent to log in, so the conversation can resume afterwards.
type PendingService struct {
	db   txRunner
	repo repository.PendingCompanionRepository
	ttl  time.Duration
	now  func() time.Time
}

func NewPendingService(db txRunner, repo repository.PendingCompanionRepository, ttl time.Duration) *PendingService {
	return &PendingService{
		db:   db,
		repo: repo,
		ttl:  ttl,
		now:  time.Now,
	}
}

func (s *PendingService) Remember(ctx context.Context, sessionID, companionName string, message *string) (*model.PendingCompanion, error) {
	if sessionID == "" {
		return nil, apperrors.MissingRequired("sessionId")
	}
	if message != nil && *message == "" {
		message = nil
	}

	pending, err := s.repo.Save(ctx, model.SavePendingParams{
		SessionID:      sessionID,
		Companion:      companionName,
		PendingMessage: message,
		ExpiresAt:      s.now().Add(s.ttl),
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}

	log.Info().
		Str("sessionId", sessionID).
		Str("companion", companionName).
		Bool("hasMessage", message != nil).
		Msg("pending companion stored")

	return pending, nil
}

// Consume returns the unexpired pending companion and removes it. A second
// call returns nil.
func (s *PendingService) Consume(ctx context.Context, sessionID string) (*model.PendingCompanion, error) {
	var pending *model.PendingCompanion
	err := s.db.WithTx(ctx, func(tx *sqlx.Tx) error {
		repo := s.repo.WithTx(tx)
		found, err := repo.FindActive(ctx, sessionID, s.now())
		if err != nil {
			return err
		}
		if err := repo.Delete(ctx, sessionID); err != nil {
			return err
		}
		pending = found
		return nil
	})
	if err != nil {
		return nil, apperrors.Database(err)
	}
	return pending, nil
}

// DeleteExpired is run by the cleanup job.
func (s *PendingService) DeleteExpired(ctx context.Context) (int64, error) {
	return s.repo.DeleteExpired(ctx, s.now())
}
