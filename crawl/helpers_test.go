package crawl

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"

	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/scraper"
	"github.com/stretchr/testify/require"
)

// fakeSession records whether it was closed
type fakeSession struct {
	mu     sync.Mutex
	closed int
}

func (s *fakeSession) Fetch(ctx context.Context, url string) (*scraper.Page, error) {
	return nil, errors.New("fake session does not fetch")
}

func (s *fakeSession) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *fakeSession) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// fakeBrowser hands out one fakeSession per Open
type fakeBrowser struct {
	err      error
	sessions []*fakeSession
}

func (b *fakeBrowser) Open(ctx context.Context) (scraper.Session, error) {
	if b.err != nil {
		return nil, b.err
	}
	s := &fakeSession{}
	b.sessions = append(b.sessions, s)
	return s, nil
}

// fakeExtractor returns canned candidates, an error, or panics
type fakeExtractor struct {
	name       string
	candidates []scraper.Candidate
	err        error
	panicWith  any
	block      chan struct{} // if set, waits for close or ctx
	started    chan struct{} // if set, receives once Extract begins
	calls      int
}

func (e *fakeExtractor) Name() string { return e.name }

func (e *fakeExtractor) Extract(ctx context.Context, s scraper.Session) ([]scraper.Candidate, error) {
	e.calls++
	if e.started != nil {
		e.started <- struct{}{}
	}
	if e.block != nil {
		select {
		case <-e.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if e.panicWith != nil {
		panic(e.panicWith)
	}
	if e.err != nil {
		return nil, e.err
	}
	return e.candidates, nil
}

// flakyStore fails Put for selected URLs
type flakyStore struct {
	content.Store
	mu      sync.Mutex
	failFor map[string]bool
}

func (s *flakyStore) Put(ctx context.Context, articleURL, body string) (string, error) {
	s.mu.Lock()
	fail := s.failFor[articleURL]
	s.mu.Unlock()
	if fail {
		return "", errors.New("blob store unavailable")
	}
	return s.Store.Put(ctx, articleURL, body)
}

func (s *flakyStore) setFail(url string, fail bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFor[url] = fail
}

// brokenLookupRepo fails bulk URL checks
type brokenLookupRepo struct {
	article.Repository
}

func (r brokenLookupRepo) FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error) {
	return nil, errors.New("query timeout")
}

// Test helper: create a SQLite repository and file store in a temp dir
func createTestStores(t *testing.T) (*article.SQLiteRepository, *content.FileStore) {
	dir := t.TempDir()
	repo, err := article.NewSQLiteRepository(filepath.Join(dir, "articles.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	store, err := content.NewFileStore(filepath.Join(dir, "content"), "http://localhost:8080", []byte("key"))
	require.NoError(t, err)

	return repo, store
}

// Test helper: build a candidate
func candidate(source, url, body string) scraper.Candidate {
	return scraper.Candidate{
		URL:      url,
		Title:    fmt.Sprintf("Title of %s", url),
		Body:     body,
		Source:   source,
		Metadata: map[string]any{"word_count": 3},
	}
}
