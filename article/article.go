// Package article holds the Article record and the repository that persists
// article metadata.
package article

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository errors.
var (
	ErrDuplicateURL    = errors.New("article with this URL already exists")
	ErrArticleNotFound = errors.New("article not found")
)

const (
	// ExcerptLength is the number of characters of body kept inline.
	ExcerptLength = 200
	// TruncationMarker is appended to excerpts cut at ExcerptLength.
	TruncationMarker = "..."
)

// GeopoliticalTags is the derived tag structure attached to each article.
// Only Countries is populated by the keyword matcher.
type GeopoliticalTags struct {
	Countries     []string `json:"countries" bson:"countries"`
	Regions       []string `json:"regions" bson:"regions"`
	Organizations []string `json:"organizations" bson:"organizations"`
	Events        []string `json:"events" bson:"events"`
}

// NewGeopoliticalTags returns tags with the given countries and empty, non-nil
// placeholder categories.
func NewGeopoliticalTags(countries []string) GeopoliticalTags {
	if countries == nil {
		countries = []string{}
	}
	return GeopoliticalTags{
		Countries:     countries,
		Regions:       []string{},
		Organizations: []string{},
		Events:        []string{},
	}
}

// IsEmpty reports whether every tag category is empty.
func (g GeopoliticalTags) IsEmpty() bool {
	return len(g.Countries) == 0 && len(g.Regions) == 0 &&
		len(g.Organizations) == 0 && len(g.Events) == 0
}

// normalize replaces nil categories with empty slices so JSON output is
// stable.
func (g GeopoliticalTags) normalize() GeopoliticalTags {
	if g.Countries == nil {
		g.Countries = []string{}
	}
	if g.Regions == nil {
		g.Regions = []string{}
	}
	if g.Organizations == nil {
		g.Organizations = []string{}
	}
	if g.Events == nil {
		g.Events = []string{}
	}
	return g
}

// Article is one stored news article. URL is the identity; ID is a surrogate
// used to address the record over the API.
type Article struct {
	ID          uuid.UUID        `json:"id"`
	URL         string           `json:"url"`
	Title       string           `json:"title"`
	Excerpt     string           `json:"excerpt"`
	Content     string           `json:"content,omitempty"` // legacy inline body, pre-offload rows only
	ContentKey  *string          `json:"content_key,omitempty"`
	Source      string           `json:"source"`
	PublishedAt time.Time        `json:"published_at"`
	CrawledAt   time.Time        `json:"crawled_at"`
	Tags        GeopoliticalTags `json:"geopolitical_tags"`
	Metadata    map[string]any   `json:"metadata,omitempty"`
}

// IsLegacy reports whether the article still carries its body inline
// without a content key.
func (a *Article) IsLegacy() bool {
	return a.ContentKey == nil && a.Content != ""
}

// Excerpt returns the inline preview for body: the first ExcerptLength
// characters followed by TruncationMarker when body is longer, otherwise body
// unchanged.
func Excerpt(body string) string {
	runes := []rune(body)
	if len(runes) <= ExcerptLength {
		return body
	}
	return string(runes[:ExcerptLength]) + TruncationMarker
}

// Filter selects articles for List. Nil pointers and zero values mean "no
// constraint".
type Filter struct {
	Source       *string
	Country      *string
	Search       *string // case-insensitive title match; empty matches all
	Geopolitical bool    // only articles with at least one non-empty tag category
	Limit        int
	Offset       int
}

// CountryCount is one row of the country statistics.
type CountryCount struct {
	Country string `json:"country" bson:"_id"`
	Count   int    `json:"count" bson:"count"`
}

// Stats holds aggregate counts over stored articles.
type Stats struct {
	Total        int            `json:"total"`
	BySource     map[string]int `json:"by_source"`
	TopCountries []CountryCount `json:"top_countries"`
}

// Repository stores article metadata and enforces URL uniqueness.
type Repository interface {
	// Insert stores a new article. Returns ErrDuplicateURL if the URL is
	// already present; the existing record is left untouched.
	Insert(ctx context.Context, a *Article) error
	// FindExistingURLs returns the subset of urls already stored.
	FindExistingURLs(ctx context.Context, urls []string) (map[string]struct{}, error)
	// List returns articles matching filter, newest PublishedAt first.
	List(ctx context.Context, filter Filter) ([]Article, error)
	// Get returns one article or ErrArticleNotFound.
	Get(ctx context.Context, id uuid.UUID) (*Article, error)
	// Stats returns totals, per-source counts and the topN countries.
	Stats(ctx context.Context, topN int) (*Stats, error)
	// ContentKeys returns every content key referenced by a stored article.
	ContentKeys(ctx context.Context) (map[string]struct{}, error)
	// ListLegacy returns up to limit articles with an inline body and no
	// content key.
	ListLegacy(ctx context.Context, limit int) ([]Article, error)
	// AttachContent sets the content key of a legacy article, replaces its
	// excerpt and clears the inline body.
	AttachContent(ctx context.Context, id uuid.UUID, contentKey, excerpt string) error
	Close() error
}

// urlChunkSize bounds the number of URLs checked per existence query.
const urlChunkSize = 500

func chunkURLs(urls []string) [][]string {
	var chunks [][]string
	for start := 0; start < len(urls); start += urlChunkSize {
		end := min(start+urlChunkSize, len(urls))
		chunks = append(chunks, urls[start:end])
	}
	return chunks
}
