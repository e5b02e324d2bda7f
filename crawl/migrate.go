package crawl

import (
	"context"
	"errors"
	"fmt"

	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/logger"
)

// DefaultMigrationBatch is the number of legacy rows read per query.
const DefaultMigrationBatch = 100

// Migrator moves inline bodies of legacy articles into the content store.
type Migrator struct {
	repo  article.Repository
	store content.Store
	log   logger.Logger
}

// NewMigrator creates a migrator.
func NewMigrator(repo article.Repository, store content.Store, log logger.Logger) *Migrator {
	return &Migrator{repo: repo, store: store, log: log}
}

// Run migrates legacy rows in batches until none are left and returns the
// number migrated. A row that fails is logged and skipped; Run stops when a
// whole batch fails so the same rows are not retried forever.
func (m *Migrator) Run(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = DefaultMigrationBatch
	}

	migrated := 0
	for {
		rows, err := m.repo.ListLegacy(ctx, batchSize)
		if err != nil {
			return migrated, fmt.Errorf("failed to list legacy articles: %w", err)
		}
		if len(rows) == 0 {
			break
		}

		done := 0
		for _, a := range rows {
			if ctx.Err() != nil {
				return migrated, ctx.Err()
			}
			if err := m.migrate(ctx, a); err != nil {
				m.log.Warn("Failed to migrate article",
					logger.String("id", a.ID.String()),
					logger.String("url", a.URL),
					logger.Err(err))
				continue
			}
			done++
		}

		migrated += done
		if done == 0 {
			return migrated, errors.New("no legacy articles could be migrated in the last batch")
		}
	}

	m.log.Info("Content migration finished", logger.Int("migrated", migrated))
	return migrated, nil
}

// migrate writes the body before attaching its key.
func (m *Migrator) migrate(ctx context.Context, a article.Article) error {
	key, err := m.store.Put(ctx, a.URL, a.Content)
	if err != nil {
		return fmt.Errorf("failed to store body: %w", err)
	}
	if err := m.repo.AttachContent(ctx, a.ID, key, article.Excerpt(a.Content)); err != nil {
		return fmt.Errorf("failed to attach content: %w", err)
	}
	return nil
}
