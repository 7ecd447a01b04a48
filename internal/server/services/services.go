// Package services holds the identity use cases: login, refresh, password
// reset, second factor enrollment, authorization decisions and account
// administration. Transport layers call these and translate the errors from
// internal/common into status codes.
package services

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/mail"
)

// User is the public view of an account returned to callers.
type User struct {
	ID     string   `json:"id"`
	Email  string   `json:"email"`
	Locale string   `json:"locale"`
	Roles  []string `json:"roles"`
}

// PasswordPool schedules password hashing on bounded workers.
type PasswordPool interface {
	Hash(ctx context.Context, plaintext string) (string, error)
	Verify(ctx context.Context, digest, plaintext string) (bool, error)
	NeedsRehash(digest string) bool
}

type TokenCodec interface {
	Issue(kind auth.TokenKind, claims auth.AccessClaims, ttl time.Duration) (string, error)
}

type TotpService interface {
	Enroll(label string) (*auth.Enrollment, error)
	Verify(ctx context.Context, code, secret string, now time.Time) (bool, error)
}

type MailDispatcher interface {
	Dispatch(msg mail.Message)
}

// Tokens is the outcome of a successful login or refresh. Refresh is empty
// when only the access token was renewed.
type Tokens struct {
	Access  string
	Refresh string
	User    *User
}

// TokenTTLs selects the lifetime of each token kind.
type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
}
