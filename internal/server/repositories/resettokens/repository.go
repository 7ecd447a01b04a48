// Package resettokens persists password-reset tokens. At most one row exists
// per account; every write is a single statement so concurrent callers
// cannot observe two winners.
package resettokens

import (
	"context"
	"time"
)

type Repository interface {
	// Upsert stores tokenHash as the account's only reset token, replacing
	// any previous one together with its expiry, issuance time and used mark.
	Upsert(ctx context.Context, accountID, tokenHash string, expiresAt, now time.Time) error

	// Consume marks the unused, unexpired token with tokenHash as used and
	// returns its account id. Any other case yields common.ErrNotFound.
	Consume(ctx context.Context, tokenHash string, now time.Time) (string, error)

	// CountForAccount returns how many token rows the account has.
	CountForAccount(ctx context.Context, accountID string) (int, error)
}
