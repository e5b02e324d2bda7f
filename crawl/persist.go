package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/scraper"
)

// Outcome is the result of persisting one candidate.
type Outcome string

const (
	OutcomeSaved     Outcome = "saved"
	OutcomeDuplicate Outcome = "duplicate"
	OutcomeFailed    Outcome = "failed"
)

// Persister records new articles body first, metadata second, so that no
// metadata row ever references a blob that was not written.
type Persister struct {
	repo  article.Repository
	store content.Store
	log   logger.Logger
	now   func() time.Time
}

// NewPersister creates a persister over repo and store.
func NewPersister(repo article.Repository, store content.Store, log logger.Logger) *Persister {
	return &Persister{repo: repo, store: store, log: log, now: time.Now}
}

// Persist stores c with tags. A blob write failure returns OutcomeFailed
// before any metadata is written. A URL already present returns
// OutcomeDuplicate with a nil error.
func (p *Persister) Persist(ctx context.Context, c scraper.Candidate, tags article.GeopoliticalTags) (Outcome, error) {
	log := p.log.With(logger.String("source", c.Source), logger.String("url", c.URL))

	var contentKey *string
	if c.Body != "" {
		key, err := p.store.Put(ctx, c.URL, c.Body)
		if err != nil {
			return OutcomeFailed, fmt.Errorf("failed to store body: %w", err)
		}
		contentKey = &key
	}

	crawledAt := p.now().UTC()
	publishedAt := crawledAt
	if c.PublishedAt != nil {
		publishedAt = c.PublishedAt.UTC()
	}

	a := &article.Article{
		ID:          uuid.New(),
		URL:         c.URL,
		Title:       c.Title,
		Excerpt:     article.Excerpt(c.Body),
		ContentKey:  contentKey,
		Source:      c.Source,
		PublishedAt: publishedAt,
		CrawledAt:   crawledAt,
		Tags:        tags,
		Metadata:    c.Metadata,
	}

	if err := p.repo.Insert(ctx, a); err != nil {
		if errors.Is(err, article.ErrDuplicateURL) {
			log.Warn("Article inserted concurrently, skipping")
			p.discard(ctx, contentKey, log)
			return OutcomeDuplicate, nil
		}
		// The blob stays behind until the orphan sweep removes it.
		return OutcomeFailed, fmt.Errorf("failed to insert article: %w", err)
	}

	log.Debug("Saved article",
		logger.String("id", a.ID.String()),
		logger.Int("countries", len(tags.Countries)))

	return OutcomeSaved, nil
}

// discard removes a body written for a row that was never inserted. A
// failure only leaves an orphan for the sweep.
func (p *Persister) discard(ctx context.Context, key *string, log logger.Logger) {
	if key == nil {
		return
	}
	if err := p.store.Delete(ctx, *key); err != nil {
		log.Warn("Failed to remove unreferenced content",
			logger.String("content_key", *key), logger.Err(err))
	}
}
