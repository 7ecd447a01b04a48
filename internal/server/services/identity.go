package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// IdentityService registers accounts and turns credentials into tokens.
type IdentityService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	pool        PasswordPool
	codec       TokenCodec
	totp        TotpService
	gate        *Gate
	ttls        TokenTTLs
	log         logging.Logger
	now         func() time.Time

	// dummyDigest is verified against when the email is unknown, so that
	// the response time does not reveal whether the account exists.
	dummyDigest string
}

func NewIdentityService(ctx context.Context, db *sql.DB, rm repomanager.RepositoryManager, pool PasswordPool,
	codec TokenCodec, totp TotpService, gate *Gate, ttls TokenTTLs, log logging.Logger) (*IdentityService, error) {
	seed, err := common.MakeRandHexString(16)
	if err != nil {
		return nil, err
	}
	dummy, err := pool.Hash(ctx, seed)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy digest: %w", err)
	}

	return &IdentityService{
		db:          db,
		repomanager: rm,
		pool:        pool,
		codec:       codec,
		totp:        totp,
		gate:        gate,
		ttls:        ttls,
		log:         log.With("module", "identity"),
		now:         time.Now,
		dummyDigest: dummy,
	}, nil
}

// Register creates an account with no roles.
func (s *IdentityService) Register(ctx context.Context, email, password, locale string) (*User, error) {
	email = common.NormalizeEmail(email)
	fields := map[string]string{}
	if email == "" {
		fields["email"] = "required"
	}
	if problem := checkNewPassword(password); problem != "" {
		fields["password"] = problem
	}
	if len(fields) > 0 {
		return nil, &common.ValidationError{Fields: fields}
	}
	if locale == "" {
		locale = "en"
	}

	digest, err := s.pool.Hash(ctx, password)
	if err != nil {
		s.log.Error(ctx, "register: hash password", "error", err)
		return nil, common.ErrInternal
	}

	account := &models.Account{ID: uuid.NewString(), Email: email, PasswordHash: digest, Locale: locale}
	if err := s.repomanager.Accounts(s.db).Create(ctx, account); err != nil {
		if errors.Is(err, common.ErrConflict) {
			return nil, common.ErrConflict
		}
		s.log.Error(ctx, "register: create account", "error", err)
		return nil, common.ErrInternal
	}

	s.log.Info(ctx, "account registered", "account_id", account.ID)
	return &User{ID: account.ID, Email: account.Email, Locale: account.Locale, Roles: []string{}}, nil
}

// Login checks the password and, when the account has a confirmed TOTP
// secret, the one-time code. It returns common.ErrSecondFactorRequired when
// the password is right but totpCode is empty, and common.ErrUnauthenticated
// for every other credential failure.
func (s *IdentityService) Login(ctx context.Context, email, password, totpCode string) (*Tokens, error) {
	email = common.NormalizeEmail(email)
	if email == "" || password == "" {
		fields := map[string]string{}
		if email == "" {
			fields["email"] = "required"
		}
		if password == "" {
			fields["password"] = "required"
		}
		return nil, &common.ValidationError{Fields: fields}
	}
	if len(password) > common.MaxPasswordLength {
		return nil, common.NewValidationError("password", tooLong)
	}

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		s.log.Error(ctx, "login: load account", "error", err)
		metrics.RecordLogin("error")
		return nil, common.ErrInternal
	}
	if account == nil || account.Deleted() {
		_, _ = s.pool.Verify(ctx, s.dummyDigest, password)
		metrics.RecordLogin("failure")
		return nil, common.ErrUnauthenticated
	}

	ok, err := s.pool.Verify(ctx, account.PasswordHash, password)
	if err != nil {
		metrics.RecordLogin("error")
		return nil, err
	}
	if !ok {
		metrics.RecordLogin("failure")
		return nil, common.ErrUnauthenticated
	}

	if err := s.checkSecondFactor(ctx, account.ID, totpCode); err != nil {
		if errors.Is(err, common.ErrSecondFactorRequired) {
			metrics.RecordLogin("second_factor_required")
		} else {
			metrics.RecordLogin("failure")
		}
		return nil, err
	}

	if s.pool.NeedsRehash(account.PasswordHash) {
		s.rehash(ctx, account.ID, password)
	}

	roles, err := s.repomanager.Roles(s.db).List(ctx, account.ID)
	if err != nil {
		s.log.Error(ctx, "login: load roles", "account_id", account.ID, "error", err)
		metrics.RecordLogin("error")
		return nil, common.ErrInternal
	}

	user := &User{ID: account.ID, Email: account.Email, Locale: account.Locale, Roles: roles}
	tokens, err := s.issue(user, true)
	if err != nil {
		s.log.Error(ctx, "login: issue tokens", "account_id", account.ID, "error", err)
		metrics.RecordLogin("error")
		return nil, common.ErrInternal
	}

	metrics.RecordLogin("success")
	s.log.Info(ctx, "login succeeded", "account_id", account.ID)
	return tokens, nil
}

func (s *IdentityService) checkSecondFactor(ctx context.Context, accountID, code string) error {
	secret, err := s.repomanager.TotpSecrets(s.db).Get(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		s.log.Error(ctx, "login: load totp secret", "account_id", accountID, "error", err)
		return common.ErrInternal
	}
	if !secret.Verified {
		return nil
	}
	if code == "" {
		return common.ErrSecondFactorRequired
	}

	ok, err := s.totp.Verify(ctx, code, secret.Secret, s.now())
	if err != nil {
		s.log.Error(ctx, "login: verify totp", "account_id", accountID, "error", err)
		return common.ErrInternal
	}
	metrics.RecordTotp(ok)
	if !ok {
		return common.ErrUnauthenticated
	}
	return nil
}

// rehash upgrades a digest made with older parameters. Failure only costs
// another attempt at the next login.
func (s *IdentityService) rehash(ctx context.Context, accountID, password string) {
	digest, err := s.pool.Hash(ctx, password)
	if err == nil {
		err = s.repomanager.Accounts(s.db).UpdatePasswordHash(ctx, accountID, digest)
	}
	if err != nil {
		s.log.Warn(ctx, "rehash password", "account_id", accountID, "error", err)
		return
	}
	s.log.Info(ctx, "password digest upgraded", "account_id", accountID)
}

// Refresh mints a new access token from verified refresh claims, after
// re-checking the account and reloading its roles.
func (s *IdentityService) Refresh(ctx context.Context, claims *auth.AccessClaims) (*Tokens, error) {
	user, err := s.gate.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}

	tokens, err := s.issue(user, false)
	if err != nil {
		s.log.Error(ctx, "refresh: issue token", "account_id", user.ID, "error", err)
		return nil, common.ErrInternal
	}
	return tokens, nil
}

// ChangePassword replaces the caller's password after checking the current one.
func (s *IdentityService) ChangePassword(ctx context.Context, claims *auth.AccessClaims, current, next string) error {
	if len(current) > common.MaxPasswordLength {
		return common.NewValidationError("currentPassword", tooLong)
	}
	if problem := checkNewPassword(next); problem != "" {
		return common.NewValidationError("newPassword", problem)
	}

	user, err := s.gate.Authenticate(ctx, claims)
	if err != nil {
		return err
	}

	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, user.ID)
	if err != nil {
		s.log.Error(ctx, "change password: load account", "account_id", user.ID, "error", err)
		return common.ErrInternal
	}
	ok, err := s.pool.Verify(ctx, account.PasswordHash, current)
	if err != nil {
		return err
	}
	if !ok {
		return common.ErrUnauthenticated
	}

	digest, err := s.pool.Hash(ctx, next)
	if err != nil {
		s.log.Error(ctx, "change password: hash", "error", err)
		return common.ErrInternal
	}
	if err := s.repomanager.Accounts(s.db).UpdatePasswordHash(ctx, user.ID, digest); err != nil {
		s.log.Error(ctx, "change password: update", "account_id", user.ID, "error", err)
		return common.ErrInternal
	}

	s.log.Info(ctx, "password changed", "account_id", user.ID)
	return nil
}

func (s *IdentityService) issue(user *User, withRefresh bool) (*Tokens, error) {
	claims := auth.AccessClaims{Subject: user.ID, Email: user.Email, Roles: user.Roles}

	access, err := s.codec.Issue(auth.KindAccess, claims, s.ttls.Access)
	if err != nil {
		return nil, err
	}
	tokens := &Tokens{Access: access, User: user}
	if !withRefresh {
		return tokens, nil
	}

	// Roles in a refresh token would only go stale.
	tokens.Refresh, err = s.codec.Issue(auth.KindRefresh, auth.AccessClaims{Subject: user.ID, Email: user.Email}, s.ttls.Refresh)
	if err != nil {
		return nil, err
	}
	return tokens, nil
}

var (
	tooShort = fmt.Sprintf("must be at least %d characters", common.MinPasswordLength)
	tooLong  = fmt.Sprintf("must be at most %d characters", common.MaxPasswordLength)
)

// checkNewPassword returns the reason a password may not be set, or "".
func checkNewPassword(password string) string {
	switch {
	case len(password) < common.MinPasswordLength:
		return tooShort
	case len(password) > common.MaxPasswordLength:
		return tooLong
	}
	return ""
}
