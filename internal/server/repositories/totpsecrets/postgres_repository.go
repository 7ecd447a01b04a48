package totpsecrets

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Upsert(ctx context.Context, accountID, secret string) error {
	query := `
		INSERT INTO totp_secrets (account_id, secret, verified, generation, created_at)
		VALUES ($1, $2, FALSE, 1, now())
		ON CONFLICT (account_id) DO UPDATE
		SET secret = CASE WHEN totp_secrets.verified THEN totp_secrets.secret ELSE EXCLUDED.secret END,
		    pending_secret = CASE WHEN totp_secrets.verified THEN EXCLUDED.secret END,
		    generation = totp_secrets.generation + 1,
		    created_at = CASE WHEN totp_secrets.verified THEN totp_secrets.created_at ELSE now() END
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, secret); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Get(ctx context.Context, accountID string) (*models.TotpSecret, error) {
	query := `
		SELECT account_id, secret, pending_secret, verified, generation, created_at
		FROM totp_secrets
		WHERE account_id = $1
	`
	s := &models.TotpSecret{}
	var pending sql.NullString
	err := r.db.QueryRowContext(ctx, query, accountID).
		Scan(&s.AccountID, &s.Secret, &pending, &s.Verified, &s.Generation, &s.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	s.PendingSecret = pending.String
	return s, nil
}

func (r *PostgresRepository) MarkVerified(ctx context.Context, accountID string, generation int64) error {
	query := `
		UPDATE totp_secrets
		SET secret = COALESCE(pending_secret, secret),
		    pending_secret = NULL,
		    verified = TRUE
		WHERE account_id = $1 AND generation = $2
	`
	res, err := r.db.ExecContext(ctx, query, accountID, generation)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrNotFound
	}
	return nil
}
