package totpreplay

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Consume(ctx context.Context, key string, counter int64, expiresAt time.Time) (bool, error) {
	query := `
		INSERT INTO totp_replay (key, counter, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (key, counter) DO NOTHING
	`
	res, err := r.db.ExecContext(ctx, query, key, counter, expiresAt)
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}
	return n == 1, nil
}

func (r *PostgresRepository) Purge(ctx context.Context, now time.Time) (int64, error) {
	query := `
		DELETE FROM totp_replay
		WHERE expires_at <= $1
	`
	res, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
