package pgrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core"
	"github.com/academia-dev/academia/core/lockout"
)

const lockoutCols = `device_id, attempts, suspended_until, updated_at`

type lockoutRepository struct {
	exec core.DBExecutor
}

var _ lockout.Repository = (*lockoutRepository)(nil) // interface compliance check

func NewLockoutRepository(exec core.DBExecutor) *lockoutRepository {
	return &lockoutRepository{exec: exec}
}

func (repo lockoutRepository) getExec(svcExec []core.DBExecutor) core.DBExecutor {
	if len(svcExec) > 0 && svcExec[0] != nil {
		return svcExec[0]
	}
	return repo.exec
}

func (repo lockoutRepository) getRecord(ctx context.Context, exec core.DBExecutor, query string, args ...interface{}) (lockout.Record, error) {
	rows, err := exec.QueryContext(ctx, query, args...)
	if err != nil {
		return lockout.Record{}, err
	}
	defer func() { _ = rows.Close() }()

	recs := make([]lockout.Record, 0, 1)
	if err = sqlx.StructScan(rows, &recs); err != nil {
		return lockout.Record{}, err
	}
	if len(recs) == 0 {
		return lockout.Record{}, sql.ErrNoRows
	}
	return recs[0], rows.Err()
}

func (repo lockoutRepository) GetRecord(ctx context.Context, deviceID string, exec ...core.DBExecutor) (lockout.Record, error) {
	rec, err := repo.getRecord(ctx, repo.getExec(exec), `SELECT `+lockoutCols+` FROM lockout_record WHERE device_id = $1`, deviceID)
	if err == sql.ErrNoRows {
		// absent device: zero attempts
		return lockout.Record{DeviceID: deviceID}, nil
	}
	return rec, errors.Wrap(err, "getting lockout record")
}

// IncrementFailure is a single atomic upsert: concurrent failed logins from
// the same device cannot lose an increment. A stale (elapsed) suspension
// restarts the count at 1; hitting maxAttempts opens a new suspension window.
func (repo lockoutRepository) IncrementFailure(ctx context.Context, deviceID string, maxAttempts int, suspension time.Duration, exec ...core.DBExecutor) (lockout.Record, error) {
	query := `INSERT INTO lockout_record AS lr (device_id, attempts, suspended_until, updated_at)
		VALUES ($1, 1, CASE WHEN 1 >= $2 THEN now() + ($3 * interval '1 second') END, now())
		ON CONFLICT (device_id) DO UPDATE SET
			attempts = CASE
				WHEN lr.suspended_until IS NOT NULL AND lr.suspended_until <= now() THEN 1
				ELSE lr.attempts + 1
			END,
			suspended_until = CASE
				WHEN (CASE
					WHEN lr.suspended_until IS NOT NULL AND lr.suspended_until <= now() THEN 1
					ELSE lr.attempts + 1
				END) >= $2 THEN now() + ($3 * interval '1 second')
			END,
			updated_at = now()
		RETURNING ` + lockoutCols
	rec, err := repo.getRecord(ctx, repo.getExec(exec), query, deviceID, maxAttempts, suspension.Seconds())
	return rec, errors.Wrap(err, "incrementing lockout record")
}

func (repo lockoutRepository) ClearRecord(ctx context.Context, deviceID string, exec ...core.DBExecutor) error {
	_, err := repo.getExec(exec).ExecContext(ctx, `DELETE FROM lockout_record WHERE device_id = $1`, deviceID)
	return errors.Wrap(err, "clearing lockout record")
}
