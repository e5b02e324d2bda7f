// Package crawl runs crawl cycles: it sequences the source extractors over
// one shared session, deduplicates candidates against the repository, tags
// them and persists each new article.
package crawl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/scraper"
	"github.com/pevans/newscrawl/tagging"
)

// ErrSessionUnavailable is returned when no rendering session can be opened.
// It is the only fault that aborts a cycle once the guard is held.
var ErrSessionUnavailable = errors.New("rendering session unavailable")

// SourceError records a source that failed during a cycle.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// Summary describes one completed cycle. No run history is kept beyond it.
type Summary struct {
	TotalFound      int           `json:"total_found"`
	TotalSaved      int           `json:"total_saved"`
	Duplicates      int           `json:"duplicates"`
	Failed          int           `json:"failed"`
	PerSourceErrors []SourceError `json:"per_source_errors"`
	StartedAt       time.Time     `json:"started_at"`
	Duration        time.Duration `json:"duration_ns"`
}

// Config wires an Orchestrator.
type Config struct {
	Browser    scraper.Browser
	Extractors []scraper.Extractor // run in this order
	Repository article.Repository
	Content    content.Store
	Matcher    *tagging.Matcher
	Guard      Guard    // defaults to a LocalGuard
	Metrics    *Metrics // optional
	// CycleTimeout bounds a whole cycle. Zero means no deadline.
	CycleTimeout time.Duration
	Logger       logger.Logger
}

// DeadlinePersistGrace bounds persisting the candidates collected before a
// cycle deadline fired.
const DeadlinePersistGrace = 30 * time.Second

// Orchestrator runs crawl cycles.
type Orchestrator struct {
	browser      scraper.Browser
	extractors   []scraper.Extractor
	repo         article.Repository
	persister    *Persister
	matcher      *tagging.Matcher
	guard        Guard
	metrics      *Metrics
	cycleTimeout time.Duration
	log          logger.Logger
}

// NewOrchestrator creates an orchestrator from cfg.
func NewOrchestrator(cfg Config) *Orchestrator {
	log := cfg.Logger
	if log == nil {
		log = logger.NewNop()
	}
	guard := cfg.Guard
	if guard == nil {
		guard = NewLocalGuard()
	}
	matcher := cfg.Matcher
	if matcher == nil {
		matcher = tagging.NewMatcher(tagging.DefaultCountries)
	}

	return &Orchestrator{
		browser:      cfg.Browser,
		extractors:   cfg.Extractors,
		repo:         cfg.Repository,
		persister:    NewPersister(cfg.Repository, cfg.Content, log),
		matcher:      matcher,
		guard:        guard,
		metrics:      cfg.Metrics,
		cycleTimeout: cfg.CycleTimeout,
		log:          log,
	}
}

// Sources returns the extractor names in run order.
func (o *Orchestrator) Sources() []string {
	names := make([]string, len(o.extractors))
	for i, e := range o.extractors {
		names[i] = e.Name()
	}
	return names
}

// RunCycle runs every extractor once and persists the new articles.
//
// Per-source and per-article faults are logged and reflected in the
// summary. Only a held guard (ErrCycleInProgress), a guard backend failure
// or a session that cannot be opened (ErrSessionUnavailable) return an
// error. Cancelling ctx stops the cycle early and returns the partial
// summary. When the cycle deadline fires instead, candidates extracted so
// far are still persisted.
func (o *Orchestrator) RunCycle(ctx context.Context) (*Summary, error) {
	release, err := o.guard.Acquire(ctx)
	if err != nil {
		if errors.Is(err, ErrCycleInProgress) {
			o.metrics.cycle("rejected", 0)
		} else {
			o.metrics.cycle("error", 0)
		}
		return nil, err
	}
	defer release()

	parent := ctx
	if o.cycleTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cycleTimeout)
		defer cancel()
	}

	summary := &Summary{
		StartedAt:       time.Now().UTC(),
		PerSourceErrors: []SourceError{},
	}
	o.log.Info("Crawl cycle starting", logger.Int("sources", len(o.extractors)))

	session, err := o.browser.Open(ctx)
	if err != nil {
		o.log.Error("Failed to open rendering session", logger.Err(err))
		o.metrics.cycle("error", 0)
		return nil, fmt.Errorf("%w: %w", ErrSessionUnavailable, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			o.log.Warn("Failed to close rendering session", logger.Err(err))
		}
	}()

	candidates := o.collect(ctx, session, summary)

	persistCtx := ctx
	if ctx.Err() != nil && parent.Err() == nil {
		// Only the cycle deadline fired: keep what was already extracted.
		o.log.Warn("Cycle deadline reached, persisting collected candidates",
			logger.Int("candidates", len(candidates)))
		var cancel context.CancelFunc
		persistCtx, cancel = context.WithTimeout(context.WithoutCancel(parent), DeadlinePersistGrace)
		defer cancel()
	}
	if persistCtx.Err() == nil {
		o.persistNew(persistCtx, candidates, summary)
	}

	summary.Duration = time.Since(summary.StartedAt)

	outcome := "completed"
	if ctx.Err() != nil {
		outcome = "cancelled"
		o.log.Warn("Crawl cycle cut short", logger.Err(ctx.Err()))
	}
	o.metrics.cycle(outcome, summary.Duration.Seconds())

	o.log.Info("Crawl cycle finished",
		logger.Int("found", summary.TotalFound),
		logger.Int("saved", summary.TotalSaved),
		logger.Int("duplicates", summary.Duplicates),
		logger.Int("failed", summary.Failed),
		logger.Int("source_errors", len(summary.PerSourceErrors)),
		logger.Duration("duration", summary.Duration))

	return summary, nil
}

// collect runs the extractors in order. A failing source contributes no
// candidates and is recorded in the summary.
func (o *Orchestrator) collect(ctx context.Context, session scraper.Session, summary *Summary) []scraper.Candidate {
	var all []scraper.Candidate

	for _, e := range o.extractors {
		if ctx.Err() != nil {
			break
		}

		log := o.log.With(logger.String("source", e.Name()))
		start := time.Now()

		candidates, err := o.extract(ctx, e, session)
		if err != nil {
			log.Error("Source failed", logger.Err(err))
			summary.PerSourceErrors = append(summary.PerSourceErrors, SourceError{
				Source: e.Name(),
				Error:  err.Error(),
			})
			o.metrics.sourceError(e.Name())
			continue
		}

		log.Info("Source extracted",
			logger.Int("candidates", len(candidates)),
			logger.Duration("elapsed", time.Since(start)))

		summary.TotalFound += len(candidates)
		all = append(all, candidates...)
	}

	return all
}

// extract runs one extractor, converting a panic into an error.
func (o *Orchestrator) extract(ctx context.Context, e scraper.Extractor, session scraper.Session) (candidates []scraper.Candidate, err error) {
	defer func() {
		if r := recover(); r != nil {
			candidates = nil
			err = fmt.Errorf("extractor panicked: %v", r)
		}
	}()
	return e.Extract(ctx, session)
}

// persistNew drops candidates already stored (or repeated within this
// cycle) and persists the rest in discovery order.
func (o *Orchestrator) persistNew(ctx context.Context, candidates []scraper.Candidate, summary *Summary) {
	if len(candidates) == 0 {
		return
	}

	seen := make(map[string]struct{}, len(candidates))
	var fresh []scraper.Candidate
	var urls []string
	for _, c := range candidates {
		if _, dup := seen[c.URL]; dup {
			summary.Duplicates++
			o.metrics.article(c.Source, OutcomeDuplicate)
			continue
		}
		seen[c.URL] = struct{}{}
		fresh = append(fresh, c)
		urls = append(urls, c.URL)
	}

	existing, err := o.repo.FindExistingURLs(ctx, urls)
	if err != nil {
		// The repository's unique constraint still rejects duplicates.
		o.log.Warn("Bulk URL check failed, relying on insert uniqueness", logger.Err(err))
		existing = map[string]struct{}{}
	}

	for _, c := range fresh {
		if ctx.Err() != nil {
			return
		}
		if _, ok := existing[c.URL]; ok {
			summary.Duplicates++
			o.metrics.article(c.Source, OutcomeDuplicate)
			continue
		}

		tags := o.matcher.Tag(c.Body)
		outcome, err := o.persister.Persist(ctx, c, tags)
		switch outcome {
		case OutcomeSaved:
			summary.TotalSaved++
		case OutcomeDuplicate:
			summary.Duplicates++
		case OutcomeFailed:
			summary.Failed++
			o.log.Error("Failed to persist article",
				logger.String("source", c.Source),
				logger.String("url", c.URL),
				logger.Err(err))
		}
		o.metrics.article(c.Source, outcome)
	}
}
