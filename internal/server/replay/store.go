package replay

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/logging"
	"github.com/dmitrijs2005/sitekeeper/internal/server/repositories/totpreplay"
)

// StoreGuard keeps consumed pairs in the totp_replay table.
type StoreGuard struct {
	repo totpreplay.Repository
	now  func() time.Time
	log  logging.Logger
}

func NewStoreGuard(repo totpreplay.Repository, log logging.Logger) *StoreGuard {
	return &StoreGuard{repo: repo, now: time.Now, log: log.With("module", "replay")}
}

func (g *StoreGuard) Consume(ctx context.Context, key string, counter int64, ttl time.Duration) (bool, error) {
	return g.repo.Consume(ctx, key, counter, g.now().Add(ttl))
}

// RunPurger deletes expired records every interval until ctx is done.
func (g *StoreGuard) RunPurger(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := g.repo.Purge(ctx, g.now())
			if err != nil {
				g.log.Warn(ctx, "purge totp replay records", "error", err)
				continue
			}
			if n > 0 {
				g.log.Debug(ctx, "purged totp replay records", "count", n)
			}
		}
	}
}
