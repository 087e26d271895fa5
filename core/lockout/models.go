package lockout

import (
	"fmt"
	"math"
	"time"

	"github.com/volatiletech/null/v8"
)

// Record is the per-device login throttle state. The device identifier is an
// opaque token persisted client-side; it is a throttling key, not a security
// identity.
type Record struct {
	DeviceID       string    `json:"device_id" db:"device_id"`
	Attempts       int       `json:"attempts" db:"attempts"`
	SuspendedUntil null.Time `json:"suspended_until" db:"suspended_until"`
	UpdatedAt      time.Time `json:"updated_at" db:"updated_at"` // UTC
}

// IsSuspended reports whether the device is still suspended at the given time.
// An elapsed suspension is stale: it no longer blocks.
func (r Record) IsSuspended(now time.Time) bool {
	return r.SuspendedUntil.Valid && now.Before(r.SuspendedUntil.Time)
}

// Remaining returns how long the suspension still lasts at the given time.
func (r Record) Remaining(now time.Time) time.Duration {
	if !r.IsSuspended(now) {
		return 0
	}
	return r.SuspendedUntil.Time.Sub(now)
}

// SuspendedError is returned on login attempts from a suspended device.
// The attempt is rejected before any credential comparison and does not
// consume an attempt.
type SuspendedError struct {
	Until     time.Time
	Remaining time.Duration
}

func (err *SuspendedError) Error() string {
	hours := int(math.Ceil(err.Remaining.Hours()))
	if hours <= 1 {
		return "device suspended, less than an hour remaining"
	}
	return fmt.Sprintf("device suspended, %d hours remaining", hours)
}
