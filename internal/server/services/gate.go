package services

import (
	"context"
	"database/sql"
	"errors"
	"slices"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/auth"
	"github.com/dmitrijs2005/sitekeeper/internal/server/metrics"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
)

// Gate makes authorization decisions from the live identity store. Claims
// only name the caller; deletion state and roles are always re-read.
type Gate struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	log         logging.Logger
}

func NewGate(db *sql.DB, rm repomanager.RepositoryManager, log logging.Logger) *Gate {
	return &Gate{db: db, repomanager: rm, log: log.With("module", "gate")}
}

// Authenticate returns the caller's current account view. Absent claims, an
// unknown account and a soft-deleted account all yield
// common.ErrUnauthenticated.
func (g *Gate) Authenticate(ctx context.Context, claims *auth.AccessClaims) (*User, error) {
	if claims == nil {
		return nil, common.ErrUnauthenticated
	}

	account, err := g.repomanager.Accounts(g.db).GetByID(ctx, claims.Subject)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.ErrUnauthenticated
		}
		g.log.Error(ctx, "load account", "account_id", claims.Subject, "error", err)
		return nil, common.ErrInternal
	}
	if account.Deleted() {
		g.log.Debug(ctx, "token of deleted account", "account_id", account.ID)
		return nil, common.ErrUnauthenticated
	}

	roles, err := g.repomanager.Roles(g.db).List(ctx, account.ID)
	if err != nil {
		g.log.Error(ctx, "load roles", "account_id", account.ID, "error", err)
		return nil, common.ErrInternal
	}

	return &User{ID: account.ID, Email: account.Email, Locale: account.Locale, Roles: roles}, nil
}

// Require allows the caller when the live account holds role. It returns
// nil, common.ErrUnauthenticated, common.ErrForbidden or common.ErrInternal.
func (g *Gate) Require(ctx context.Context, claims *auth.AccessClaims, role string) error {
	user, err := g.Authenticate(ctx, claims)
	if err != nil {
		if errors.Is(err, common.ErrUnauthenticated) {
			metrics.RecordAuthzDecision("unauthenticated")
		}
		return err
	}
	if !slices.Contains(user.Roles, role) {
		metrics.RecordAuthzDecision("forbidden")
		return common.ErrForbidden
	}
	metrics.RecordAuthzDecision("allow")
	return nil
}
