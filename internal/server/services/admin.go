package services

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
	"github.com/google/uuid"
)

// AdminService performs administrative changes to accounts and roles. It
// does not authorize; the HTTP layer guards it with Gate.Require("admin")
// and the CLI runs with direct database access.
type AdminService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	identity    *IdentityService
	log         logging.Logger
	now         func() time.Time
}

func NewAdminService(db *sql.DB, rm repomanager.RepositoryManager, identity *IdentityService, log logging.Logger) *AdminService {
	return &AdminService{db: db, repomanager: rm, identity: identity, log: log.With("module", "admin"), now: time.Now}
}

// CreateAccount registers an account and grants it roles.
func (s *AdminService) CreateAccount(ctx context.Context, email, password, locale string, roles ...string) (*User, error) {
	user, err := s.identity.Register(ctx, email, password, locale)
	if err != nil {
		return nil, err
	}
	for _, role := range roles {
		if err := s.GrantRole(ctx, user.ID, role); err != nil {
			return nil, err
		}
		user.Roles = append(user.Roles, normalizeRole(role))
	}
	return user, nil
}

// FindAccount looks an account up by email, soft-deleted ones included.
func (s *AdminService) FindAccount(ctx context.Context, email string) (*models.Account, error) {
	account, err := s.repomanager.Accounts(s.db).GetByEmail(ctx, common.NormalizeEmail(email))
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.log.Error(ctx, "find account", "error", err)
		return nil, common.ErrInternal
	}
	return account, nil
}

func (s *AdminService) GrantRole(ctx context.Context, accountID, role string) error {
	role = normalizeRole(role)
	if role == "" {
		return common.NewValidationError("role", "required")
	}
	if _, err := s.liveAccount(ctx, accountID); err != nil {
		return err
	}
	if err := s.repomanager.Roles(s.db).Grant(ctx, accountID, role); err != nil {
		s.log.Error(ctx, "grant role", "account_id", accountID, "role", role, "error", err)
		return common.ErrInternal
	}
	s.log.Info(ctx, "role granted", "account_id", accountID, "role", role)
	return nil
}

// RevokeRole takes effect on the caller's next request: decisions never
// rely on roles embedded in tokens.
func (s *AdminService) RevokeRole(ctx context.Context, accountID, role string) error {
	role = normalizeRole(role)
	if role == "" {
		return common.NewValidationError("role", "required")
	}
	if err := checkAccountID(accountID); err != nil {
		return err
	}
	if err := s.repomanager.Roles(s.db).Revoke(ctx, accountID, role); err != nil {
		s.log.Error(ctx, "revoke role", "account_id", accountID, "role", role, "error", err)
		return common.ErrInternal
	}
	s.log.Info(ctx, "role revoked", "account_id", accountID, "role", role)
	return nil
}

// DeleteAccount soft-deletes the account. Its outstanding tokens stop
// authenticating immediately.
func (s *AdminService) DeleteAccount(ctx context.Context, accountID string) error {
	if err := checkAccountID(accountID); err != nil {
		return err
	}
	if err := s.repomanager.Accounts(s.db).SoftDelete(ctx, accountID, s.now()); err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		s.log.Error(ctx, "delete account", "account_id", accountID, "error", err)
		return common.ErrInternal
	}
	s.log.Info(ctx, "account deleted", "account_id", accountID)
	return nil
}

func (s *AdminService) liveAccount(ctx context.Context, accountID string) (*models.Account, error) {
	if err := checkAccountID(accountID); err != nil {
		return nil, err
	}
	account, err := s.repomanager.Accounts(s.db).GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		s.log.Error(ctx, "load account", "account_id", accountID, "error", err)
		return nil, common.ErrInternal
	}
	if account.Deleted() {
		return nil, common.ErrNotFound
	}
	return account, nil
}

// checkAccountID rejects ids the uuid column would refuse.
func checkAccountID(accountID string) error {
	if _, err := uuid.Parse(accountID); err != nil {
		return common.NewValidationError("id", "invalid")
	}
	return nil
}

func normalizeRole(role string) string {
	return strings.ToLower(strings.TrimSpace(role))
}
