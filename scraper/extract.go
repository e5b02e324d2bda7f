package scraper

import (
	"errors"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// ErrIncompleteArticle is returned when a page yields no title or no body.
var ErrIncompleteArticle = errors.New("article is missing a title or body")

// ExtractedArticle holds the fields pulled from one article page.
type ExtractedArticle struct {
	Title       string
	Body        string
	PublishedAt *time.Time
	Description string
	Category    string
	WordCount   int
}

// defaultDateFormats are tried after any site-specific formats.
var defaultDateFormats = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
	time.RFC1123Z,
	time.RFC1123,
	"Mon, 2 Jan 2006 15:04:05 MST",
	"January 2, 2006",
	"2 January 2006",
	"Jan 2, 2006",
	"2 Jan 2006",
}

// ExtractArticle pulls the title, body and publication date out of doc.
//
// Title: the first title selector with text, then og:title, then <title>.
// Body: every match of the first body selector with text, joined by blank
// lines; then all <p> elements; then the whole <body>. Date: the first
// parseable datetime/content attribute or text among the date selectors,
// then article:published_time, then fallbackDate.
func ExtractArticle(doc *goquery.Document, cfg ArticleConfig, fallbackDate *time.Time) (*ExtractedArticle, error) {
	a := &ExtractedArticle{
		Title:       extractTitle(doc, cfg.TitleSelectors),
		Body:        extractBody(doc, cfg.BodySelectors),
		Description: metaContent(doc, `meta[name="description"]`, `meta[property="og:description"]`),
		Category:    metaContent(doc, `meta[property="article:section"]`),
	}

	if a.Title == "" || a.Body == "" {
		return nil, ErrIncompleteArticle
	}

	a.WordCount = len(strings.Fields(a.Body))
	a.PublishedAt = extractDate(doc, cfg)
	if a.PublishedAt == nil && fallbackDate != nil {
		t := fallbackDate.UTC()
		a.PublishedAt = &t
	}

	return a, nil
}

func extractTitle(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		var title string
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			title = normalizeSpace(s.Text())
			return title == ""
		})
		if title != "" {
			return title
		}
	}

	if title := metaContent(doc, `meta[property="og:title"]`); title != "" {
		return title
	}

	return normalizeSpace(doc.Find("title").First().Text())
}

func extractBody(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		if body := joinText(doc.Find(sel)); body != "" {
			return body
		}
	}

	if body := joinText(doc.Find("p")); body != "" {
		return body
	}

	return normalizeSpace(doc.Find("body").Text())
}

// joinText returns the normalized text of each non-empty element in sel,
// separated by blank lines.
func joinText(sel *goquery.Selection) string {
	var parts []string
	sel.Each(func(_ int, s *goquery.Selection) {
		if text := normalizeSpace(s.Text()); text != "" {
			parts = append(parts, text)
		}
	})
	return strings.Join(parts, "\n\n")
}

func extractDate(doc *goquery.Document, cfg ArticleConfig) *time.Time {
	formats := append(append([]string{}, cfg.DateFormats...), defaultDateFormats...)

	for _, sel := range cfg.DateSelectors {
		var found *time.Time
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			for _, value := range []string{s.AttrOr("datetime", ""), s.AttrOr("content", ""), s.Text()} {
				if t, ok := parseDate(value, formats); ok {
					found = &t
					return false
				}
			}
			return true
		})
		if found != nil {
			return found
		}
	}

	if value := metaContent(doc, `meta[property="article:published_time"]`); value != "" {
		if t, ok := parseDate(value, formats); ok {
			return &t
		}
	}

	return nil
}

func parseDate(value string, formats []string) (time.Time, bool) {
	value = normalizeSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range formats {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// metaContent returns the content attribute of the first matching selector
// with a non-empty value.
func metaContent(doc *goquery.Document, selectors ...string) string {
	for _, sel := range selectors {
		if v := normalizeSpace(doc.Find(sel).First().AttrOr("content", "")); v != "" {
			return v
		}
	}
	return ""
}

// normalizeSpace collapses runs of whitespace into single spaces.
func normalizeSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
