package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/openclaw/companion-server-go/internal/errors"
	"github.com/openclaw/companion-server-go/internal/model"
	"github.com/openclaw/companion-server-go/internal/repository"
	"github.com/openclaw/companion-server-go/internal/util"
)

// SessionService hands every device one session id that survives restarts.
type SessionService struct {
	repo repository.DeviceSessionRepository
}

func NewSessionService(repo repository.DeviceSessionRepository) *SessionService {
	return &SessionService{repo: repo}
}

// ResolveForDevice returns the device's session, creating it on first use.
func (s *SessionService) ResolveForDevice(ctx context.Context, deviceID string) (*model.DeviceSession, bool, error) {
	if deviceID == "" {
		return nil, false, apperrors.MissingRequired("deviceId")
	}
	if !util.IsValidDeviceID(deviceID) {
		return nil, false, apperrors.ValidationError("deviceId is malformed")
	}

	existing, err := s.repo.FindByDeviceID(ctx, deviceID)
	if err != nil {
		return nil, false, apperrors.Database(err)
	}
	if existing != nil {
		if err := s.repo.Touch(ctx, existing.ID); err != nil {
			log.Warn().Err(err).Str("sessionId", existing.ID).Msg("failed to touch device session")
		}
		return existing, false, nil
	}

	created, err := s.repo.Create(ctx, uuid.Must(uuid.NewV7()).String(), deviceID)
	if err != nil {
		// A concurrent request for the same device may have won the insert.
		again, findErr := s.repo.FindByDeviceID(ctx, deviceID)
		if findErr == nil && again != nil {
			return again, false, nil
		}
		return nil, false, apperrors.Database(fmt.Errorf("create device session: %w", err))
	}

	log.Info().
		Str("sessionId", created.ID).
		Msg("device session created")

	return created, true, nil
}

func (s *SessionService) Get(ctx context.Context, id string) (*model.DeviceSession, error) {
	if id == "" {
		return nil, apperrors.MissingRequired("sessionId")
	}
	if !util.IsValidUUID(id) {
		return nil, apperrors.NotFound("Session")
	}
	session, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, apperrors.Database(err)
	}
	if session == nil {
		return nil, apperrors.NotFound("Session")
	}
	return session, nil
}
