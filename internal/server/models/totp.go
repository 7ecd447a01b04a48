package models

import "time"

// TotpSecret is an account's TOTP enrollment. Secret guards logins once
// Verified is set. A re-enrollment of a verified account is parked in
// PendingSecret and replaces Secret only when a code for it is confirmed.
// Generation changes on every enrollment.
type TotpSecret struct {
	AccountID     string
	Secret        string
	PendingSecret string
	Verified      bool
	Generation    int64
	CreatedAt     time.Time
}

// Candidate is the secret a confirmation code is checked against.
func (s *TotpSecret) Candidate() string {
	if s.PendingSecret != "" {
		return s.PendingSecret
	}
	return s.Secret
}

// NeedsConfirmation reports whether a confirmation would change the row.
func (s *TotpSecret) NeedsConfirmation() bool {
	return !s.Verified || s.PendingSecret != ""
}
