package services

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
)

// MFAService enrolls callers in TOTP. A secret starts unverified and only
// guards logins once a first code has been confirmed.
type MFAService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	totp        TotpService
	gate        *Gate
	log         logging.Logger
	now         func() time.Time
}

func NewMFAService(db *sql.DB, rm repomanager.RepositoryManager, totp TotpService, gate *Gate, log logging.Logger) *MFAService {
	return &MFAService{db: db, repomanager: rm, totp: totp, gate: gate, log: log.With("module", "mfa"), now: time.Now}
}

// Enroll creates a new secret for the caller. An unconfirmed secret is
// replaced; a confirmed one stays in force until Confirm accepts a code for
// the new secret. The returned secret and URI are shown once and never again.
func (s *MFAService) Enroll(ctx context.Context, claims *auth.AccessClaims) (*auth.Enrollment, error) {
	user, err := s.gate.Authenticate(ctx, claims)
	if err != nil {
		return nil, err
	}

	enrollment, err := s.totp.Enroll(user.Email)
	if err != nil {
		s.log.Error(ctx, "totp enroll", "account_id", user.ID, "error", err)
		return nil, common.ErrInternal
	}
	if err := s.repomanager.TotpSecrets(s.db).Upsert(ctx, user.ID, enrollment.Secret); err != nil {
		s.log.Error(ctx, "totp enroll: store secret", "account_id", user.ID, "error", err)
		return nil, common.ErrInternal
	}

	s.log.Info(ctx, "totp enrolled", "account_id", user.ID)
	return enrollment, nil
}

// Confirm checks a code against the newest enrolled secret and puts it in
// force. A verified secret keeps guarding logins until a re-enrollment is
// confirmed here. A wrong code, a caller who never enrolled, or an
// enrollment replaced concurrently gets a validation error.
func (s *MFAService) Confirm(ctx context.Context, claims *auth.AccessClaims, code string) error {
	if code == "" {
		return common.NewValidationError("code", "required")
	}
	user, err := s.gate.Authenticate(ctx, claims)
	if err != nil {
		return err
	}

	repo := s.repomanager.TotpSecrets(s.db)
	secret, err := repo.Get(ctx, user.ID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.NewValidationError("code", "no pending enrollment")
		}
		s.log.Error(ctx, "totp confirm: load secret", "account_id", user.ID, "error", err)
		return common.ErrInternal
	}

	ok, err := s.totp.Verify(ctx, code, secret.Candidate(), s.now())
	if err != nil {
		s.log.Error(ctx, "totp confirm: verify", "account_id", user.ID, "error", err)
		return common.ErrInternal
	}
	metrics.RecordTotp(ok)
	if !ok {
		return common.NewValidationError("code", "invalid")
	}

	if secret.NeedsConfirmation() {
		if err := repo.MarkVerified(ctx, user.ID, secret.Generation); err != nil {
			if errors.Is(err, common.ErrNotFound) {
				return common.NewValidationError("code", "enrollment superseded")
			}
			s.log.Error(ctx, "totp confirm: mark verified", "account_id", user.ID, "error", err)
			return common.ErrInternal
		}
	}
	s.log.Info(ctx, "totp confirmed", "account_id", user.ID)
	return nil
}
