package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"

	"github.com/pevans/newscrawl/logger"
)

// Candidate is an article extracted during a crawl that has not yet been
// deduplicated or persisted.
type Candidate struct {
	URL         string
	Title       string
	Body        string
	PublishedAt *time.Time
	Source      string
	Metadata    map[string]any
}

// Extractor pulls candidates from one news site.
type Extractor interface {
	Name() string
	// Extract returns the candidates found on the site. A non-nil error
	// means the source as a whole failed; individual article failures are
	// logged and skipped.
	Extract(ctx context.Context, s Session) ([]Candidate, error)
}

// Discovery methods recorded in candidate metadata.
const (
	DiscoveredViaFeed    = "feed"
	DiscoveredViaLanding = "landing"
)

// SelectorExtractor drives link discovery and article extraction from a
// SiteConfig.
type SelectorExtractor struct {
	cfg     SiteConfig
	base    *url.URL
	pattern *regexp.Regexp
	log     logger.Logger
}

// NewSelectorExtractor validates cfg and builds an extractor for it.
func NewSelectorExtractor(cfg SiteConfig, log logger.Logger) (*SelectorExtractor, error) {
	cfg = cfg.WithDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("site %q: invalid base_url: %w", cfg.Name, err)
	}

	var pattern *regexp.Regexp
	if cfg.List.LinkPattern != "" {
		pattern = regexp.MustCompile(cfg.List.LinkPattern)
	}

	return &SelectorExtractor{
		cfg:     cfg,
		base:    base,
		pattern: pattern,
		log:     log.With(logger.String("source", cfg.Name)),
	}, nil
}

// Name returns the site name.
func (e *SelectorExtractor) Name() string {
	return e.cfg.Name
}

// Config returns the effective site config.
func (e *SelectorExtractor) Config() SiteConfig {
	return e.cfg
}

// Extract discovers article links and extracts each article in turn. The
// session's courtesy delay applies between fetches.
func (e *SelectorExtractor) Extract(ctx context.Context, s Session) ([]Candidate, error) {
	links, via, err := e.discover(ctx, s)
	if err != nil {
		return nil, err
	}

	e.log.Info("Discovered article links",
		logger.Int("links", len(links)),
		logger.String("discovered_via", via))

	var candidates []Candidate
	for _, l := range links {
		if ctx.Err() != nil {
			return candidates, ctx.Err()
		}

		c, err := e.extractOne(ctx, s, l)
		if err != nil {
			if ctx.Err() != nil {
				return candidates, ctx.Err()
			}
			if errors.Is(err, ErrIncompleteArticle) {
				e.log.Debug("Skipping incomplete article", logger.String("url", l.URL))
			} else {
				e.log.Warn("Failed to extract article", logger.String("url", l.URL), logger.Err(err))
			}
			continue
		}

		c.Metadata["discovered_via"] = via
		candidates = append(candidates, *c)
	}

	return candidates, nil
}

// discover returns article links from the feed when configured, otherwise
// (or when the feed yields nothing) from the landing page. A feed failure is
// returned as an error when the site has no landing selectors.
func (e *SelectorExtractor) discover(ctx context.Context, s Session) ([]link, string, error) {
	hasLanding := len(e.cfg.List.LinkSelectors) > 0

	if e.cfg.FeedURL != "" {
		links, err := e.discoverFeed(ctx, s)
		if err != nil {
			if ctx.Err() != nil {
				return nil, "", ctx.Err()
			}
			if !hasLanding {
				return nil, "", fmt.Errorf("failed to load feed: %w", err)
			}
			e.log.Warn("Feed discovery failed, falling back to landing page", logger.Err(err))
		}
		if len(links) > 0 {
			return links, DiscoveredViaFeed, nil
		}
	}

	if !hasLanding {
		return nil, DiscoveredViaFeed, nil
	}

	page, err := s.Fetch(ctx, e.cfg.LandingURL)
	if err != nil {
		return nil, "", fmt.Errorf("failed to load landing page: %w", err)
	}
	doc, err := page.Document()
	if err != nil {
		return nil, "", fmt.Errorf("failed to load landing page: %w", err)
	}

	return selectLinks(doc, e.cfg.List.LinkSelectors, e.newFilter), DiscoveredViaLanding, nil
}

func (e *SelectorExtractor) discoverFeed(ctx context.Context, s Session) ([]link, error) {
	page, err := s.Fetch(ctx, e.cfg.FeedURL)
	if err != nil {
		return nil, err
	}
	return feedLinks(page.Body, e.newFilter())
}

func (e *SelectorExtractor) newFilter() *linkFilter {
	return newLinkFilter(e.base, e.pattern, e.cfg.MaxArticles)
}

func (e *SelectorExtractor) extractOne(ctx context.Context, s Session, l link) (*Candidate, error) {
	page, err := s.Fetch(ctx, l.URL)
	if err != nil {
		return nil, err
	}
	doc, err := page.Document()
	if err != nil {
		return nil, err
	}

	a, err := ExtractArticle(doc, e.cfg.Article, l.PublishedAt)
	if err != nil {
		return nil, err
	}

	metadata := map[string]any{"word_count": a.WordCount}
	if a.Description != "" {
		metadata["description"] = a.Description
	}
	if a.Category != "" {
		metadata["category"] = a.Category
	}

	return &Candidate{
		URL:         l.URL,
		Title:       a.Title,
		Body:        a.Body,
		PublishedAt: a.PublishedAt,
		Source:      e.cfg.Name,
		Metadata:    metadata,
	}, nil
}
