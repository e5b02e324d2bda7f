package scraper

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"github.com/pevans/newscrawl/logger"
	"golang.org/x/time/rate"
)

// ErrSessionClosed is returned by Fetch after Close.
var ErrSessionClosed = errors.New("session closed")

// Browser opens rendering sessions. A session is exclusively owned by one
// crawl cycle.
type Browser interface {
	Open(ctx context.Context) (Session, error)
}

// Session fetches pages. Implementations pace fetches with the configured
// courtesy delay and bound each one by the navigation timeout.
type Session interface {
	Fetch(ctx context.Context, url string) (*Page, error)
	Close() error
}

// Page is one fetched document.
type Page struct {
	URL        string // final URL after redirects
	StatusCode int
	Body       []byte
}

// Document parses the page as HTML.
func (p *Page) Document() (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(p.Body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

// BrowserConfig controls fetch behaviour.
type BrowserConfig struct {
	UserAgent         string
	NavigationTimeout time.Duration
	CourtesyDelay     time.Duration
	CourtesyJitter    time.Duration
}

// Defaults for BrowserConfig.
const (
	DefaultUserAgent         = "newscrawl/1.0 (+news aggregation crawler)"
	DefaultNavigationTimeout = 30 * time.Second
	DefaultCourtesyDelay     = 2 * time.Second
	DefaultCourtesyJitter    = time.Second
)

// CollyBrowser opens colly-backed sessions.
type CollyBrowser struct {
	cfg BrowserConfig
	log logger.Logger
}

// NewCollyBrowser creates a browser. A zero NavigationTimeout or empty
// UserAgent is replaced by its default; zero delays disable pacing.
func NewCollyBrowser(cfg BrowserConfig, log logger.Logger) *CollyBrowser {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = DefaultNavigationTimeout
	}
	return &CollyBrowser{cfg: cfg, log: log}
}

// Open creates a session with its own connection pool.
func (b *CollyBrowser) Open(ctx context.Context) (Session, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	transport, ok := http.DefaultTransport.(*http.Transport)
	if !ok {
		return nil, errors.New("default transport is not an *http.Transport")
	}
	transport = transport.Clone()

	c := colly.NewCollector(
		colly.UserAgent(b.cfg.UserAgent),
		colly.AllowURLRevisit(),
		colly.IgnoreRobotsTxt(),
	)
	c.WithTransport(transport)
	c.SetRequestTimeout(b.cfg.NavigationTimeout)

	limit := rate.Inf
	if b.cfg.CourtesyDelay > 0 {
		limit = rate.Every(b.cfg.CourtesyDelay)
	}

	return &collySession{
		collector: c,
		transport: transport,
		limiter:   rate.NewLimiter(limit, 1),
		jitter:    b.cfg.CourtesyJitter,
		timeout:   b.cfg.NavigationTimeout,
		log:       b.log,
	}, nil
}

type collySession struct {
	collector *colly.Collector
	transport *http.Transport
	limiter   *rate.Limiter
	jitter    time.Duration
	timeout   time.Duration
	log       logger.Logger

	mu     sync.Mutex
	closed bool
}

// Fetch waits for the courtesy delay, then GETs url within the navigation
// timeout.
func (s *collySession) Fetch(ctx context.Context, url string) (*Page, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrSessionClosed
	}

	if err := s.pace(ctx); err != nil {
		return nil, err
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	c := s.collector.Clone()
	c.Context = fetchCtx

	var page *Page
	c.OnResponse(func(r *colly.Response) {
		page = &Page{
			URL:        r.Request.URL.String(),
			StatusCode: r.StatusCode,
			Body:       r.Body,
		}
	})

	start := time.Now()
	if err := c.Visit(url); err != nil {
		if ctxErr := fetchCtx.Err(); ctxErr != nil && ctx.Err() == nil {
			return nil, fmt.Errorf("navigation timeout after %s: %w", s.timeout, ctxErr)
		}
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}
	if page == nil {
		return nil, fmt.Errorf("failed to fetch %s: no response", url)
	}

	s.log.Debug("Fetched page",
		logger.String("url", url),
		logger.Int("status", page.StatusCode),
		logger.Duration("elapsed", time.Since(start)))

	return page, nil
}

func (s *collySession) pace(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}
	if s.jitter <= 0 {
		return nil
	}

	timer := time.NewTimer(rand.N(s.jitter))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close releases pooled connections. It is safe to call more than once.
func (s *collySession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	s.transport.CloseIdleConnections()
	return nil
}
