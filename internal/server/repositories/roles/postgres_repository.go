package roles

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) List(ctx context.Context, accountID string) ([]string, error) {
	query := `
		SELECT role
		FROM role_assignments
		WHERE account_id = $1
		ORDER BY role
	`
	rows, err := r.db.QueryContext(ctx, query, accountID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	result := make([]string, 0)
	for rows.Next() {
		var role string
		if err := rows.Scan(&role); err != nil {
			return nil, fmt.Errorf("db error: %w", err)
		}
		result = append(result, role)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return result, nil
}

func (r *PostgresRepository) Grant(ctx context.Context, accountID, role string) error {
	query := `
		INSERT INTO role_assignments (account_id, role)
		VALUES ($1, $2)
		ON CONFLICT (account_id, role) DO NOTHING
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, role); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, accountID, role string) error {
	query := `
		DELETE FROM role_assignments
		WHERE account_id = $1 AND role = $2
	`
	if _, err := r.db.ExecContext(ctx, query, accountID, role); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}
