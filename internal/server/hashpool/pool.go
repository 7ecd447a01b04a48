// Package hashpool runs password hashing on a bounded number of concurrent
// slots so a burst of logins queues instead of saturating every CPU.
package hashpool

import (
	"context"
	"time"

	"github.com/dmitrijs2005/sitekeeper/internal/server/metrics"
	"golang.org/x/sync/semaphore"
)

// Hasher is the CPU-bound work the pool schedules.
type Hasher interface {
	Hash(plaintext string) (string, error)
	Verify(digest, plaintext string) bool
	NeedsRehash(digest string) bool
}

type Pool struct {
	hasher Hasher
	sem    *semaphore.Weighted
}

// New allows at most workers hashes at once; workers below 1 means 1.
func New(hasher Hasher, workers int) *Pool {
	if workers < 1 {
		workers = 1
	}
	return &Pool{hasher: hasher, sem: semaphore.NewWeighted(int64(workers))}
}

// Hash waits for a free slot, or returns ctx.Err() if ctx ends first.
func (p *Pool) Hash(ctx context.Context, plaintext string) (string, error) {
	if err := p.acquire(ctx); err != nil {
		return "", err
	}
	defer p.sem.Release(1)
	return p.hasher.Hash(plaintext)
}

// Verify waits for a free slot like Hash. A cancelled wait is a mismatch
// accompanied by ctx.Err().
func (p *Pool) Verify(ctx context.Context, digest, plaintext string) (bool, error) {
	if err := p.acquire(ctx); err != nil {
		return false, err
	}
	defer p.sem.Release(1)
	return p.hasher.Verify(digest, plaintext), nil
}

func (p *Pool) NeedsRehash(digest string) bool {
	return p.hasher.NeedsRehash(digest)
}

func (p *Pool) acquire(ctx context.Context) error {
	start := time.Now()
	err := p.sem.Acquire(ctx, 1)
	metrics.HashQueueWait.Observe(time.Since(start).Seconds())
	return err
}
