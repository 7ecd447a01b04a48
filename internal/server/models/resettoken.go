package models

import "time"

// ResetToken is the stored side of a password-reset token. TokenHash is the
// SHA-256 hex of the opaque value mailed to the user.
type ResetToken struct {
	AccountID string
	TokenHash string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}
