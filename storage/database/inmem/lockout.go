package inmemdb

import (
	"context"
	"time"

	"github.com/volatiletech/null/v8"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/lockout"
)

type lockoutRepository struct {
	db *DB
}

var _ lockout.Repository = (*lockoutRepository)(nil)

func NewLockoutRepository(db *DB) *lockoutRepository {
	return &lockoutRepository{db: db}
}

func (repo *lockoutRepository) GetRecord(_ context.Context, deviceID string, _ ...core.DBExecutor) (lockout.Record, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	if rec, ok := repo.db.lockouts[deviceID]; ok {
		return *rec, nil
	}
	// absent device: zero attempts
	return lockout.Record{DeviceID: deviceID}, nil
}

func (repo *lockoutRepository) IncrementFailure(_ context.Context, deviceID string, maxAttempts int, suspension time.Duration, _ ...core.DBExecutor) (lockout.Record, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	rec, ok := repo.db.lockouts[deviceID]
	if !ok {
		rec = &lockout.Record{DeviceID: deviceID}
		repo.db.lockouts[deviceID] = rec
	}

	now := lockout.NowFunc()
	// a stale suspension restarts the count
	if rec.SuspendedUntil.Valid && !now.Before(rec.SuspendedUntil.Time) {
		rec.Attempts = 0
	}
	rec.Attempts++
	if rec.Attempts >= maxAttempts {
		rec.SuspendedUntil = null.TimeFrom(now.Add(suspension))
	} else {
		rec.SuspendedUntil = null.Time{}
	}
	rec.UpdatedAt = now
	return *rec, nil
}

func (repo *lockoutRepository) ClearRecord(_ context.Context, deviceID string, _ ...core.DBExecutor) error {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()
	delete(repo.db.lockouts, deviceID)
	return nil
}
