// Package auth holds the credential primitives: password digests, signed
// access and refresh tokens, and TOTP second factors.
package auth

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/golang-jwt/jwt/v5"
)

// TokenKind separates access tokens from refresh tokens. It travels in the
// aud claim so that one kind is never accepted as the other.
type TokenKind string

const (
	KindAccess  TokenKind = "access"
	KindRefresh TokenKind = "refresh"
)

// AccessClaims is the identity carried by a token. Roles are informational;
// authorization always re-reads them from the store.
type AccessClaims struct {
	Subject   string
	Email     string
	Roles     []string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type tokenClaims struct {
	Email string   `json:"email"`
	Roles []string `json:"roles"`
	jwt.RegisteredClaims
}

// TokenCodec issues and verifies HS256-signed tokens with one secret.
type TokenCodec struct {
	secret []byte
	now    func() time.Time
	log    logging.Logger
}

type CodecOption func(*TokenCodec)

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) CodecOption {
	return func(c *TokenCodec) { c.now = now }
}

func NewTokenCodec(secret []byte, log logging.Logger, opts ...CodecOption) *TokenCodec {
	c := &TokenCodec{secret: secret, now: time.Now, log: log.With("module", "token")}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Issue signs claims with an expiry of now+ttl. Subject is required and ttl
// must be positive.
func (c *TokenCodec) Issue(kind TokenKind, claims AccessClaims, ttl time.Duration) (string, error) {
	if claims.Subject == "" {
		return "", errors.New("token subject is empty")
	}
	if ttl <= 0 {
		return "", fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	now := c.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, tokenClaims{
		Email: claims.Email,
		Roles: claims.Roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   claims.Subject,
			Audience:  jwt.ClaimStrings{string(kind)},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})

	return token.SignedString(c.secret)
}

// Verify checks signature, structure, audience and expiry. Every failure is
// reported as common.ErrInvalidToken; the concrete reason is only logged.
func (c *TokenCodec) Verify(ctx context.Context, tokenString string, kind TokenKind) (*AccessClaims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.now),
		jwt.WithAudience(string(kind)),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
	)

	claims := &tokenClaims{}
	token, err := parser.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		return c.secret, nil
	})
	if err != nil {
		c.log.Debug(ctx, "token rejected", "kind", kind, "reason", rejectReason(err))
		return nil, common.ErrInvalidToken
	}
	if !token.Valid || claims.Subject == "" {
		c.log.Debug(ctx, "token rejected", "kind", kind, "reason", "no subject")
		return nil, common.ErrInvalidToken
	}

	return &AccessClaims{
		Subject:   claims.Subject,
		Email:     claims.Email,
		Roles:     slices.Clone(claims.Roles),
		IssuedAt:  claims.IssuedAt.Time,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return "expired"
	case errors.Is(err, jwt.ErrTokenSignatureInvalid):
		return "bad signature"
	case errors.Is(err, jwt.ErrTokenInvalidAudience):
		return "wrong kind"
	case errors.Is(err, jwt.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, jwt.ErrTokenUsedBeforeIssued):
		return "issued in the future"
	default:
		return err.Error()
	}
}
