// Package accounts declares the repository contract for identity accounts.
package accounts

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
)

// Repository reads and mutates accounts. Lookups return common.ErrNotFound
// for unknown rows; soft-deleted rows are returned with DeletedAt set and it
// is up to the caller to treat them as absent.
type Repository interface {
	// Create inserts a new account. A taken email yields common.ErrConflict.
	Create(ctx context.Context, a *models.Account) error

	// GetByEmail looks the account up by its normalized email.
	GetByEmail(ctx context.Context, email string) (*models.Account, error)

	GetByID(ctx context.Context, id string) (*models.Account, error)

	// UpdatePasswordHash replaces the stored digest of a live account.
	UpdatePasswordHash(ctx context.Context, id string, hash string) error

	// SoftDelete stamps deleted_at; deleting twice is not an error.
	SoftDelete(ctx context.Context, id string, at time.Time) error
}
