package crawl

import (
	"context"
	"fmt"
	"time"

	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/logger"
)

// DefaultSweepGrace keeps blobs younger than this so an in-flight cycle's
// body is never removed before its metadata row lands.
const DefaultSweepGrace = time.Hour

// SweepResult reports one sweep.
type SweepResult struct {
	Scanned int `json:"scanned"`
	Deleted int `json:"deleted"`
	Failed  int `json:"failed"`
}

// Sweeper deletes content blobs that no article references.
type Sweeper struct {
	repo  article.Repository
	store content.Store
	grace time.Duration
	log   logger.Logger
	now   func() time.Time
}

// NewSweeper creates a sweeper. A non-positive grace uses DefaultSweepGrace.
func NewSweeper(repo article.Repository, store content.Store, grace time.Duration, log logger.Logger) *Sweeper {
	if grace <= 0 {
		grace = DefaultSweepGrace
	}
	return &Sweeper{repo: repo, store: store, grace: grace, log: log, now: time.Now}
}

// Sweep lists the store, subtracts every referenced key and deletes the
// unreferenced objects older than the grace period.
func (s *Sweeper) Sweep(ctx context.Context) (*SweepResult, error) {
	objects, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list content: %w", err)
	}

	// Referenced keys are read after listing so a row committed in between
	// still protects its blob.
	referenced, err := s.repo.ContentKeys(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load content keys: %w", err)
	}

	cutoff := s.now().Add(-s.grace)
	result := &SweepResult{Scanned: len(objects)}

	for _, obj := range objects {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}
		if _, ok := referenced[obj.Key]; ok {
			continue
		}
		if obj.ModifiedAt.After(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, obj.Key); err != nil {
			result.Failed++
			s.log.Warn("Failed to delete orphaned content", logger.String("key", obj.Key), logger.Err(err))
			continue
		}
		result.Deleted++
		s.log.Debug("Deleted orphaned content", logger.String("key", obj.Key))
	}

	s.log.Info("Orphan sweep finished",
		logger.Int("scanned", result.Scanned),
		logger.Int("deleted", result.Deleted),
		logger.Int("failed", result.Failed))

	return result, nil
}
