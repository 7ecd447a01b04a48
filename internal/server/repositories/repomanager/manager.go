package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/totpreplay"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/totpsecrets"
)

// RepositoryManager vends repositories bound to a DBTX, so that a service can
// run several of them inside one dbx.WithTx call.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Accounts(db dbx.DBTX) accounts.Repository
	Roles(db dbx.DBTX) roles.Repository
	ResetTokens(db dbx.DBTX) resettokens.Repository
	TotpSecrets(db dbx.DBTX) totpsecrets.Repository
	TotpReplay(db dbx.DBTX) totpreplay.Repository
}
