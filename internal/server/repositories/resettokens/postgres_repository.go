package resettokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, accountID, tokenHash string, expiresAt, now time.Time) error {
	query := `
		INSERT INTO password_reset_tokens (user_id, token, expires_at, used_at, created_at)
		VALUES ($1, $2, $3, NULL, $4)
		ON CONFLICT (user_id) DO UPDATE
		SET token = EXCLUDED.token,
		    expires_at = EXCLUDED.expires_at,
		    used_at = NULL,
		    created_at = EXCLUDED.created_at
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, tokenHash, expiresAt, now); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Consume(ctx context.Context, tokenHash string, now time.Time) (string, error) {
	query := `
		UPDATE password_reset_tokens
		SET used_at = $2
		WHERE token = $1 AND used_at IS NULL AND expires_at > $2
		RETURNING user_id
	`
	var accountID string
	if err := r.db.QueryRowContext(ctx, query, tokenHash, now).Scan(&accountID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", common.ErrNotFound
		}
		return "", fmt.Errorf("db error: %w", err)
	}
	return accountID, nil
}

func (r *PostgresRepository) CountForAccount(ctx context.Context, accountID string) (int, error) {
	query := `
		SELECT count(*)
		FROM password_reset_tokens
		WHERE user_id = $1
	`
	var n int
	if err := r.db.QueryRowContext(ctx, query, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
