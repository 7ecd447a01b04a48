// Package roles stores (account, role) assignments.
package roles

import "context"

type Repository interface {
	// List returns the account's roles sorted by name; an account without
	// roles yields an empty slice.
	List(ctx context.Context, accountID string) ([]string, error)

	// Grant adds a role; granting an existing role is a no-op.
	Grant(ctx context.Context, accountID, role string) error

	// Revoke removes a role; revoking an absent role is a no-op.
	Revoke(ctx context.Context, accountID, role string) error
}
