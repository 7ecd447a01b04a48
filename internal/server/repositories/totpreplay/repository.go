// Package totpreplay records (secret, time-step) pairs that have already
// been accepted so a TOTP code cannot be used twice.
package totpreplay

import (
	"context"
	"time"
)

type Repository interface {
	// Consume records the pair and reports whether this call was the first
	// to do so. Recording is a single insert; concurrent callers for the
	// same pair see exactly one true.
	Consume(ctx context.Context, key string, counter int64, expiresAt time.Time) (bool, error)

	// Purge drops records that expired before now and returns how many.
	Purge(ctx context.Context, now time.Time) (int64, error)
}
