// Package totpsecrets stores per-account TOTP shared secrets.
package totpsecrets

import (
	"context"

	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
)

type Repository interface {
	// Upsert stores a fresh secret. Without a verified secret it becomes the
	// account's unverified secret; otherwise it is kept as the pending secret
	// and the verified one stays in force. Either way the generation advances.
	Upsert(ctx context.Context, accountID, secret string) error

	// Get returns common.ErrNotFound when the account never enrolled.
	Get(ctx context.Context, accountID string) (*models.TotpSecret, error)

	// MarkVerified promotes the pending secret, if any, and flags the
	// secret as confirmed. It only applies while the row is still at
	// generation; otherwise it returns common.ErrNotFound.
	MarkVerified(ctx context.Context, accountID string, generation int64) error
}
