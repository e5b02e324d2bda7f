package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/crawl"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// stubRunner returns a canned result and counts calls
type stubRunner struct {
	mu      sync.Mutex
	summary *crawl.Summary
	err     error
	calls   int
}

func (r *stubRunner) RunCycle(ctx context.Context) (*crawl.Summary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.summary, r.err
}

type testServer struct {
	repo   *article.SQLiteRepository
	store  *content.FileStore
	runner *stubRunner
	router *gin.Engine
}

// Test helper: create a server backed by SQLite and a file store
func setupTestServer(t *testing.T) *testServer {
	t.Helper()
	dir := t.TempDir()

	repo, err := article.NewSQLiteRepository(filepath.Join(dir, "news.db"))
	require.NoError(t, err)
	t.Cleanup(func() { repo.Close() })

	store, err := content.NewFileStore(filepath.Join(dir, "content"), "http://news.test", []byte("test-signing-key"))
	require.NoError(t, err)

	runner := &stubRunner{summary: &crawl.Summary{}}
	server := NewServer(Config{
		Repository: repo,
		Content:    store,
		Runner:     runner,
		Sources:    []string{"BBC News", "NPR"},
		Gatherer:   prometheus.NewRegistry(),
	})

	return &testServer{repo: repo, store: store, runner: runner, router: server.SetupRouter()}
}

// Test helper: store an article whose body lives in the content store
func (ts *testServer) addArticle(t *testing.T, url, source, body string, publishedAt time.Time, countries ...string) *article.Article {
	t.Helper()
	ctx := context.Background()

	key, err := ts.store.Put(ctx, url, body)
	require.NoError(t, err)

	a := &article.Article{
		URL:         url,
		Title:       "Title " + url,
		Excerpt:     article.Excerpt(body),
		ContentKey:  &key,
		Source:      source,
		PublishedAt: publishedAt,
		CrawledAt:   time.Now(),
		Tags:        article.NewGeopoliticalTags(countries),
	}
	require.NoError(t, ts.repo.Insert(ctx, a))
	return a
}

// Test helper: perform a request and return the recorder
func (ts *testServer) do(method, target string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, nil)
	ts.router.ServeHTTP(w, req)
	return w
}

// Test helper: decode a JSON body
func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

type errorBody struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

var day = time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

// TestListNews verifies newest-first listing and default pagination
func TestListNews(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArticle(t, "https://a.test/1", "BBC", "one", day)
	ts.addArticle(t, "https://a.test/2", "BBC", "two", day.Add(time.Hour))

	w := ts.do(http.MethodGet, "/news")
	require.Equal(t, http.StatusOK, w.Code)

	resp := decode[ListNewsResponse](t, w)
	require.Len(t, resp.Articles, 2)
	assert.Equal(t, "https://a.test/2", resp.Articles[0].URL)
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, 50, resp.Limit)
	assert.Equal(t, 0, resp.Offset)
}

// TestListNews_Empty verifies an empty store yields an empty array
func TestListNews_Empty(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(http.MethodGet, "/news")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"articles":[]`)
}

// TestListNews_Pagination verifies limit, offset and the limit cap
func TestListNews_Pagination(t *testing.T) {
	ts := setupTestServer(t)
	for i := range 3 {
		ts.addArticle(t, "https://a.test/"+string(rune('a'+i)), "BBC", "body", day.Add(time.Duration(i)*time.Hour))
	}

	w := ts.do(http.MethodGet, "/news?limit=1&offset=1")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ListNewsResponse](t, w)
	require.Len(t, resp.Articles, 1)
	assert.Equal(t, "https://a.test/b", resp.Articles[0].URL)

	w = ts.do(http.MethodGet, "/news?limit=5000")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1000, decode[ListNewsResponse](t, w).Limit)
}

// TestListNews_InvalidPagination verifies bad parameters are rejected
func TestListNews_InvalidPagination(t *testing.T) {
	ts := setupTestServer(t)

	for _, target := range []string{"/news?limit=0", "/news?limit=abc", "/news?offset=-1"} {
		w := ts.do(http.MethodGet, target)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
		assert.Equal(t, "invalid_parameter", decode[errorBody](t, w).Error.Code)
	}
}

// TestFilteredListings verifies search, source, country and geopolitical
// routes
func TestFilteredListings(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArticle(t, "https://bbc.test/china-trade", "BBC", "China trade", day, "China")
	ts.addArticle(t, "https://npr.test/weather", "NPR", "Weather", day.Add(time.Hour))

	tests := []struct {
		target string
		want   []string
	}{
		{"/news/search?q=china", []string{"https://bbc.test/china-trade"}},
		{"/news/search?q=", []string{"https://npr.test/weather", "https://bbc.test/china-trade"}},
		{"/news/source/NPR", []string{"https://npr.test/weather"}},
		{"/news/source/Reuters", []string{}},
		{"/news/country/China", []string{"https://bbc.test/china-trade"}},
		{"/news/country/china", []string{}},
		{"/news/geopolitical", []string{"https://bbc.test/china-trade"}},
	}

	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			w := ts.do(http.MethodGet, tt.target)
			require.Equal(t, http.StatusOK, w.Code)

			urls := []string{}
			for _, a := range decode[ListNewsResponse](t, w).Articles {
				urls = append(urls, a.URL)
			}
			assert.Equal(t, tt.want, urls)
		})
	}
}

// TestStatistics verifies aggregate counts and the top parameter
func TestStatistics(t *testing.T) {
	ts := setupTestServer(t)
	ts.addArticle(t, "https://a.test/1", "BBC", "x", day, "China", "Russia")
	ts.addArticle(t, "https://a.test/2", "BBC", "x", day, "China")
	ts.addArticle(t, "https://a.test/3", "NPR", "x", day)

	w := ts.do(http.MethodGet, "/news/statistics?top=1")
	require.Equal(t, http.StatusOK, w.Code)

	stats := decode[article.Stats](t, w)
	assert.Equal(t, 3, stats.Total)
	assert.Equal(t, map[string]int{"BBC": 2, "NPR": 1}, stats.BySource)
	assert.Equal(t, []article.CountryCount{{Country: "China", Count: 2}}, stats.TopCountries)

	w = ts.do(http.MethodGet, "/news/statistics?top=zero")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

// TestGetArticle verifies lookup by ID and the error codes
func TestGetArticle(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.addArticle(t, "https://a.test/1", "BBC", "body", day)

	w := ts.do(http.MethodGet, "/news/"+a.ID.String())
	require.Equal(t, http.StatusOK, w.Code)
	got := decode[article.Article](t, w)
	assert.Equal(t, a.URL, got.URL)
	assert.Equal(t, []string{}, got.Tags.Regions)

	w = ts.do(http.MethodGet, "/news/not-a-uuid")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "invalid_id", decode[errorBody](t, w).Error.Code)

	w = ts.do(http.MethodGet, "/news/00000000-0000-0000-0000-000000000001")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode[errorBody](t, w).Error.Code)
}

// TestGetContent verifies the body is pulled through from the content store
func TestGetContent(t *testing.T) {
	ts := setupTestServer(t)
	body := strings.Repeat("long body ", 100)
	a := ts.addArticle(t, "https://a.test/1", "BBC", body, day)

	w := ts.do(http.MethodGet, "/news/"+a.ID.String()+"/content")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, body, decode[ContentResponse](t, w).Content)
}

// TestGetContent_Legacy verifies legacy rows serve their inline body
func TestGetContent_Legacy(t *testing.T) {
	ts := setupTestServer(t)
	legacy := &article.Article{
		URL:         "https://a.test/legacy",
		Title:       "Legacy",
		Content:     "inline body",
		Source:      "BBC",
		PublishedAt: day,
		CrawledAt:   day,
	}
	require.NoError(t, ts.repo.Insert(context.Background(), legacy))

	w := ts.do(http.MethodGet, "/news/"+legacy.ID.String()+"/content")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "inline body", decode[ContentResponse](t, w).Content)

	w = ts.do(http.MethodGet, "/news/"+legacy.ID.String()+"/content-url")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "no_content", decode[errorBody](t, w).Error.Code)
}

// TestGetContent_MissingBlob verifies a dangling key reports not found
func TestGetContent_MissingBlob(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.addArticle(t, "https://a.test/1", "BBC", "body", day)
	require.NoError(t, ts.store.Delete(context.Background(), *a.ContentKey))

	w := ts.do(http.MethodGet, "/news/"+a.ID.String()+"/content")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "content_not_found", decode[errorBody](t, w).Error.Code)
}

// TestContentURL_RoundTrip verifies a signed URL can be fetched through
// the content route and that tampering is rejected
func TestContentURL_RoundTrip(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.addArticle(t, "https://a.test/1", "BBC", "the full text", day)

	w := ts.do(http.MethodGet, "/news/"+a.ID.String()+"/content-url")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[ContentURLResponse](t, w)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	require.True(t, strings.HasPrefix(resp.URL, "http://news.test/content/"))

	signed, err := url.Parse(resp.URL)
	require.NoError(t, err)

	w = ts.do(http.MethodGet, signed.RequestURI())
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "the full text", w.Body.String())
	assert.Contains(t, w.Header().Get("Content-Type"), "text/plain")

	q := signed.Query()
	q.Set("signature", strings.Repeat("0", 64))
	signed.RawQuery = q.Encode()
	w = ts.do(http.MethodGet, signed.RequestURI())
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "invalid_signature", decode[errorBody](t, w).Error.Code)
}

// TestContentURL_Expiry verifies the expiry parameter bounds
func TestContentURL_Expiry(t *testing.T) {
	ts := setupTestServer(t)
	a := ts.addArticle(t, "https://a.test/1", "BBC", "body", day)
	base := "/news/" + a.ID.String() + "/content-url?expiry="

	w := ts.do(http.MethodGet, base+"30m")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(1800), decode[ContentURLResponse](t, w).ExpiresIn)

	w = ts.do(http.MethodGet, base+"120")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(120), decode[ContentURLResponse](t, w).ExpiresIn)

	for _, bad := range []string{"0", "-5m", "200h", "soon"} {
		w = ts.do(http.MethodGet, base+bad)
		assert.Equal(t, http.StatusBadRequest, w.Code, bad)
	}
}

// TestTriggerCrawl verifies the success, conflict and failure responses
func TestTriggerCrawl(t *testing.T) {
	ts := setupTestServer(t)

	ts.runner.summary = &crawl.Summary{
		TotalFound:      3,
		TotalSaved:      2,
		Duplicates:      1,
		PerSourceErrors: []crawl.SourceError{{Source: "B", Error: "boom"}},
	}
	w := ts.do(http.MethodPost, "/scheduler/crawl")
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[CrawlResponse](t, w)
	assert.True(t, resp.Success)
	assert.Contains(t, resp.Message, "B")
	require.NotNil(t, resp.Summary)
	assert.Equal(t, 2, resp.Summary.TotalSaved)

	ts.runner.summary, ts.runner.err = nil, crawl.ErrCycleInProgress
	w = ts.do(http.MethodPost, "/scheduler/crawl")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.False(t, decode[CrawlResponse](t, w).Success)

	ts.runner.err = errors.Join(crawl.ErrSessionUnavailable, errors.New("no browser"))
	w = ts.do(http.MethodPost, "/scheduler/crawl")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	resp = decode[CrawlResponse](t, w)
	assert.False(t, resp.Success)
	assert.Nil(t, resp.Summary)

	assert.Equal(t, 3, ts.runner.calls)
}

// TestTriggerCrawl_NoRunner verifies the read-only server rejects triggers
func TestTriggerCrawl_NoRunner(t *testing.T) {
	ts := setupTestServer(t)
	router := NewServer(Config{Repository: ts.repo, Content: ts.store}).SetupRouter()

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/scheduler/crawl", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

// TestMiscRoutes verifies health, sources, metrics and CORS preflight
func TestMiscRoutes(t *testing.T) {
	ts := setupTestServer(t)

	w := ts.do(http.MethodGet, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodGet, "/sources")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"sources":["BBC News","NPR"]}`, w.Body.String())

	w = ts.do(http.MethodGet, "/metrics")
	assert.Equal(t, http.StatusOK, w.Code)

	w = ts.do(http.MethodOptions, "/news")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
