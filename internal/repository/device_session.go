package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/openclaw/companion-server-go/internal/database"
	"github.com/openclaw/companion-server-go/internal/model"
)

type DeviceSessionRepository interface {
	FindByID(ctx context.Context, id string) (*model.DeviceSession, error)
	FindByDeviceID(ctx context.Context, deviceID string) (*model.DeviceSession, error)
	Create(ctx context.Context, id, deviceID string) (*model.DeviceSession, error)
	Touch(ctx context.Context, id string) error
}

type deviceSessionRepo struct {
	db database.DBTX
}

func NewDeviceSessionRepository(db *sqlx.DB) DeviceSessionRepository {
	return &deviceSessionRepo{db: db}
}

func (r *deviceSessionRepo) FindByID(ctx context.Context, id string) (*model.DeviceSession, error) {
	var s model.DeviceSession
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT id, device_id, created_at, last_seen_at FROM device_sessions WHERE id = ?
	`), id)
	return HandleNotFound(&s, err)
}

func (r *deviceSessionRepo) FindByDeviceID(ctx context.Context, deviceID string) (*model.DeviceSession, error) {
	var s model.DeviceSession
	err := r.db.GetContext(ctx, &s, r.db.Rebind(`
		SELECT id, device_id, created_at, last_seen_at FROM device_sessions WHERE device_id = ?
	`), deviceID)
	return HandleNotFound(&s, err)
}

func (r *deviceSessionRepo) Create(ctx context.Context, id, deviceID string) (*model.DeviceSession, error) {
	now := time.Now().UTC()
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		INSERT INTO device_sessions (id, device_id, created_at, last_seen_at)
		VALUES (?, ?, ?, ?)
	`), id, deviceID, now, now)
	if err != nil {
		return nil, err
	}
	return &model.DeviceSession{ID: id, DeviceID: deviceID, CreatedAt: now, LastSeenAt: now}, nil
}

func (r *deviceSessionRepo) Touch(ctx context.Context, id string) error {
	_, err := r.db.ExecContext(ctx, r.db.Rebind(`
		UPDATE device_sessions SET last_seen_at = ? WHERE id = ?
	`), time.Now().UTC(), id)
	return err
}
