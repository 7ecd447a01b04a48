package admincli

import (
	"context"

	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server"
	"github.com/dmitrijs2005/sitekeeper/internal/server/config"
	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/sitekeeper/internal/server/services"
)

// Backend is the administrative surface the commands drive.
type Backend interface {
	Migrate(ctx context.Context) error
	CreateAccount(ctx context.Context, email, password, locale string, roles ...string) (*services.User, error)
	FindAccount(ctx context.Context, email string) (*models.Account, error)
	GrantRole(ctx context.Context, accountID, role string) error
	RevokeRole(ctx context.Context, accountID, role string) error
	DeleteAccount(ctx context.Context, accountID string) error
	Close() error
}

// Opener connects a Backend for one command invocation.
type Opener func(ctx context.Context, opts GlobalOptions) (Backend, error)

type coreBackend struct {
	*services.AdminService
	core *server.Core
}

func (b *coreBackend) Migrate(ctx context.Context) error {
	return b.core.Repos.RunMigrations(ctx, b.core.DB)
}

func (b *coreBackend) Close() error {
	return b.core.Close()
}

// OpenDatabase is the production Opener: it loads the server configuration
// and connects to its database. Mail goes to the log mailer and the
// database replay guard is used, whatever the file says.
func OpenDatabase(ctx context.Context, opts GlobalOptions) (Backend, error) {
	var args []string
	if opts.ConfigPath != "" {
		args = append(args, "-c", opts.ConfigPath)
	}
	cfg := config.Load(args, opts.Lookup)
	if opts.DSN != "" {
		cfg.DatabaseDSN = opts.DSN
	}
	cfg.MailTransport = "log"
	cfg.RedisAddr = ""

	log := logging.NewJSONLogger(opts.LogOutput, "warn")

	rm, err := server.NewRepositoryManager(cfg)
	if err != nil {
		return nil, err
	}
	db, err := repomanager.Open(ctx, cfg.DatabaseDSN)
	if err != nil {
		return nil, err
	}
	core, err := server.NewCore(ctx, cfg, db, rm, log)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &coreBackend{AdminService: core.Admin, core: core}, nil
}
