// Package models defines the records kept in the identity store.
package models

import "time"

// Account is a registered identity. Accounts are never physically removed;
// DeletedAt marks a soft delete.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	Locale       string
	DeletedAt    *time.Time
	CreatedAt    time.Time
}

// Deleted reports whether the account has been soft-deleted.
func (a *Account) Deleted() bool {
	return a.DeletedAt != nil
}
