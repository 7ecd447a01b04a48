package totpsecrets

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/sitekeeper/internal/server/models"
)

// Sealer encrypts values bound to an owner.
type Sealer interface {
	Seal(plaintext, owner []byte) (string, error)
	Open(sealed string, owner []byte) ([]byte, error)
}

// SealedRepository keeps secrets encrypted in the underlying repository and
// hands out plaintext to callers. Each secret is bound to its account id, so
// a row copied to another account does not open.
type SealedRepository struct {
	inner  Repository
	sealer Sealer
}

func NewSealedRepository(inner Repository, sealer Sealer) *SealedRepository {
	return &SealedRepository{inner: inner, sealer: sealer}
}

func (r *SealedRepository) Upsert(ctx context.Context, accountID, secret string) error {
	sealed, err := r.sealer.Seal([]byte(secret), []byte(accountID))
	if err != nil {
		return fmt.Errorf("seal totp secret: %w", err)
	}
	return r.inner.Upsert(ctx, accountID, sealed)
}

func (r *SealedRepository) Get(ctx context.Context, accountID string) (*models.TotpSecret, error) {
	s, err := r.inner.Get(ctx, accountID)
	if err != nil {
		return nil, err
	}
	if s.Secret, err = r.open(s.Secret, accountID); err != nil {
		return nil, err
	}
	if s.PendingSecret != "" {
		if s.PendingSecret, err = r.open(s.PendingSecret, accountID); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (r *SealedRepository) open(sealed, accountID string) (string, error) {
	plain, err := r.sealer.Open(sealed, []byte(accountID))
	if err != nil {
		return "", fmt.Errorf("open totp secret: %w", err)
	}
	return string(plain), nil
}

func (r *SealedRepository) MarkVerified(ctx context.Context, accountID string, generation int64) error {
	return r.inner.MarkVerified(ctx, accountID, generation)
}
