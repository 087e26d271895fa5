package lockout

import (
	"context"
	"time"

	"github.com/pkg/errors"

	"github.com/academia-dev/academia/core"
)

var NowFunc = time.Now // mockable

type (
	Repository interface {
		// GetRecord returns the zero Record when the device has no state yet.
		GetRecord(ctx context.Context, deviceID string, exec ...core.DBExecutor) (Record, error)
		// IncrementFailure adds a failed attempt as one atomic read-modify-write.
		// A stale suspension restarts the count at 1; reaching maxAttempts sets
		// the suspension window.
		IncrementFailure(ctx context.Context, deviceID string, maxAttempts int, suspension time.Duration, exec ...core.DBExecutor) (Record, error)
		ClearRecord(ctx context.Context, deviceID string, exec ...core.DBExecutor) error
	}

	Service struct {
		repo Repository
		conf *core.Config
	}
)

func NewService(repo Repository, conf *core.Config) *Service {
	return &Service{repo: repo, conf: conf}
}

// Check returns the current throttle state for a device; it never fails with
// "not found", absent devices simply have zero attempts.
func (svc *Service) Check(ctx context.Context, deviceID string) (Record, error) {
	rec, err := svc.repo.GetRecord(ctx, deviceID)
	if err != nil {
		return Record{}, errors.Wrap(err, "getting lockout record")
	}
	return rec, nil
}

// Guard rejects with a SuspendedError when the device is currently suspended.
// Expiry is checked lazily against the wall clock, there is no timer.
func (svc *Service) Guard(ctx context.Context, deviceID string) error {
	rec, err := svc.Check(ctx, deviceID)
	if err != nil {
		return err
	}
	now := NowFunc()
	if rec.IsSuspended(now) {
		return &SuspendedError{Until: rec.SuspendedUntil.Time, Remaining: rec.Remaining(now)}
	}
	return nil
}

// RecordFailure counts one failed login; the threshold attempt triggers the
// suspension window. Returns the updated record.
func (svc *Service) RecordFailure(ctx context.Context, deviceID string) (Record, error) {
	rec, err := svc.repo.IncrementFailure(ctx, deviceID, svc.conf.Lockout.MaxAttempts, svc.conf.Lockout.SuspensionDuration)
	if err != nil {
		return Record{}, errors.Wrap(err, "incrementing lockout record")
	}
	return rec, nil
}

// RecordSuccess clears the device's throttle state after a successful login.
func (svc *Service) RecordSuccess(ctx context.Context, deviceID string) error {
	return errors.Wrap(svc.repo.ClearRecord(ctx, deviceID), "clearing lockout record")
}

// AttemptsLeft returns how many failed attempts remain before suspension.
func (svc *Service) AttemptsLeft(rec Record) int {
	left := svc.conf.Lockout.MaxAttempts - rec.Attempts
	if left < 0 {
		return 0
	}
	return left
}
