// Package repomanager wires the PostgreSQL repository constructors together
// and applies the embedded goose migrations.
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
	"github.com/dmitrijs2005/sitekeeper/internal/server/migrations"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/accounts"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/resettokens"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/roles"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/totpreplay"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/totpsecrets"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type PostgresRepositoryManager struct {
	sealer totpsecrets.Sealer
}

type Option func(*PostgresRepositoryManager)

// WithSecretSealer stores TOTP secrets encrypted with s.
func WithSecretSealer(s totpsecrets.Sealer) Option {
	return func(m *PostgresRepositoryManager) {
		m.sealer = s
	}
}

func (m *PostgresRepositoryManager) Accounts(db dbx.DBTX) accounts.Repository {
	return accounts.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) Roles(db dbx.DBTX) roles.Repository {
	return roles.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) ResetTokens(db dbx.DBTX) resettokens.Repository {
	return resettokens.NewPostgresRepository(db)
}

func (m *PostgresRepositoryManager) TotpSecrets(db dbx.DBTX) totpsecrets.Repository {
	repo := totpsecrets.NewPostgresRepository(db)
	if m.sealer == nil {
		return repo
	}
	return totpsecrets.NewSealedRepository(repo, m.sealer)
}

func (m *PostgresRepositoryManager) TotpReplay(db dbx.DBTX) totpreplay.Repository {
	return totpreplay.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations applies every pending embedded migration.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	if err := goose.SetDialect("pgx"); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func NewPostgresRepositoryManager(opts ...Option) *PostgresRepositoryManager {
	m := &PostgresRepositoryManager{}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Open opens the pgx-backed pool for dsn and checks that it answers.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}
	return db, nil
}
