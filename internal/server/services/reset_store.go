package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/common"
	"github.com/dmitrijs2005/sitekeeper/internal/dbx"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/repomanager"
)

// ResetTokenStore issues and redeems single-use password-reset tokens. Only
// the SHA-256 of a token is stored; the plaintext exists in the mail alone.
type ResetTokenStore struct {
	db          dbx.DBTX
	repomanager repomanager.RepositoryManager
	ttl         time.Duration
	now         func() time.Time
}

func NewResetTokenStore(db dbx.DBTX, rm repomanager.RepositoryManager, ttl time.Duration) *ResetTokenStore {
	return &ResetTokenStore{db: db, repomanager: rm, ttl: ttl, now: time.Now}
}

// WithTx returns a copy of the store that runs on tx.
func (s *ResetTokenStore) WithTx(tx dbx.DBTX) *ResetTokenStore {
	c := *s
	c.db = tx
	return &c
}

// IssueFor creates a token for the account, replacing any previous one.
func (s *ResetTokenStore) IssueFor(ctx context.Context, accountID string) (string, time.Time, error) {
	token, err := common.MakeRandHexString(common.ResetTokenBytes)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("generate reset token: %w", err)
	}

	now := s.now()
	expiresAt := now.Add(s.ttl)
	if err := s.repomanager.ResetTokens(s.db).Upsert(ctx, accountID, common.HashToken(token), expiresAt, now); err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Redeem consumes token and returns its account id. Unknown, used and
// expired tokens all yield common.ErrInvalidOrExpired; of two concurrent
// redemptions at most one succeeds.
func (s *ResetTokenStore) Redeem(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", common.ErrInvalidOrExpired
	}

	accountID, err := s.repomanager.ResetTokens(s.db).Consume(ctx, common.HashToken(token), s.now())
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return "", common.ErrInvalidOrExpired
		}
		return "", err
	}
	return accountID, nil
}
