package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/mail"
	"github.com/dmitrijs2005/sitekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
)

type ResetOptions struct {
	MailFrom string
	// BaseURL is the reset page; the token is appended as ?token=.
	BaseURL string
}

// ResetService runs the forgot-password and reset-password flows.
type ResetService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	store       *ResetTokenStore
	pool        PasswordPool
	mailer      MailDispatcher
	opts        ResetOptions
	log         logging.Logger
}

func NewResetService(db *sql.DB, rm repomanager.RepositoryManager, store *ResetTokenStore, pool PasswordPool,
	mailer MailDispatcher, opts ResetOptions, log logging.Logger) *ResetService {
	return &ResetService{
		db:          db,
		repomanager: rm,
		store:       store,
		pool:        pool,
		mailer:      mailer,
		opts:        opts,
		log:         log.With("module", "reset"),
	}
}

// RequestReset mails a reset link when email belongs to a live account. The
// result is the same whether or not it does; store and mail failures are
// logged only.
func (s *ResetService) RequestReset(ctx context.Context, email string) error {
	email = common.NormalizeEmail(email)
	if email == "" {
		return common.NewValidationError("email", "required")
	}
	metrics.RecordResetRequest()

	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, common.ErrNotFound) {
			s.log.Error(ctx, "reset request: load account", "error", err)
		}
		return nil
	}
	if account.Deleted() {
		return nil
	}

	token, expiresAt, err := s.store.IssueFor(ctx, account.ID)
	if err != nil {
		s.log.Error(ctx, "reset request: issue token", "account_id", account.ID, "error", err)
		return nil
	}

	msg, err := mail.ResetMessage(s.opts.MailFrom, account.Email, s.opts.BaseURL, token, expiresAt)
	if err != nil {
		s.log.Error(ctx, "reset request: render mail", "account_id", account.ID, "error", err)
		return nil
	}
	s.mailer.Dispatch(msg)

	s.log.Info(ctx, "reset token issued", "account_id", account.ID)
	return nil
}

// ResetPassword redeems token and sets newPassword in one transaction. A
// short password is rejected before the store is touched.
func (s *ResetService) ResetPassword(ctx context.Context, token, newPassword string) error {
	if token == "" {
		return common.NewValidationError("token", "required")
	}
	if problem := checkNewPassword(newPassword); problem != "" {
		return common.NewValidationError("newPassword", problem)
	}

	digest, err := s.pool.Hash(ctx, newPassword)
	if err != nil {
		s.log.Error(ctx, "reset: hash password", "error", err)
		return common.ErrInternal
	}

	var accountID string
	err = dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		id, err := s.store.WithTx(tx).Redeem(ctx, token)
		if err != nil {
			return err
		}
		if err := s.repomanager.Accounts(tx).UpdatePasswordHash(ctx, id, digest); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.ErrInvalidOrExpired
			}
			return err
		}
		accountID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrInvalidOrExpired) {
			metrics.RecordResetRedeem("invalid")
			return common.ErrInvalidOrExpired
		}
		metrics.RecordResetRedeem("error")
		s.log.Error(ctx, "reset: redeem", "error", err)
		return common.ErrInternal
	}

	metrics.RecordResetRedeem("success")
	s.log.Info(ctx, "password reset", "account_id", accountID)
	return nil
}
