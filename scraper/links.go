package scraper

import (
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// link is a discovered article URL plus whatever the listing told us about
// it.
type link struct {
	URL         string
	Title       string
	PublishedAt *time.Time
}

// linkFilter resolves hrefs against a base URL and keeps same-site article
// links.
type linkFilter struct {
	base    *url.URL
	pattern *regexp.Regexp
	limit   int
	seen    map[string]struct{}
	links   []link
}

func newLinkFilter(base *url.URL, pattern *regexp.Regexp, limit int) *linkFilter {
	return &linkFilter{
		base:    base,
		pattern: pattern,
		limit:   limit,
		seen:    make(map[string]struct{}),
	}
}

// add resolves href and appends it if it passes the filters. It returns
// false once the limit is reached.
func (f *linkFilter) add(href string, l link) bool {
	if f.full() {
		return false
	}

	resolved, ok := f.resolve(href)
	if !ok {
		return true
	}
	if _, dup := f.seen[resolved]; dup {
		return true
	}

	f.seen[resolved] = struct{}{}
	l.URL = resolved
	f.links = append(f.links, l)
	return !f.full()
}

func (f *linkFilter) full() bool {
	return f.limit > 0 && len(f.links) >= f.limit
}

func (f *linkFilter) resolve(href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	u := f.base.ResolveReference(ref)
	u.Fragment = ""
	u.RawFragment = ""

	if u.Scheme != "http" && u.Scheme != "https" {
		return "", false
	}
	if !sameSite(u.Hostname(), f.base.Hostname()) {
		return "", false
	}
	if f.pattern != nil && !f.pattern.MatchString(u.Path) {
		return "", false
	}

	return u.String(), true
}

// sameSite reports whether host is baseHost or one of its subdomains,
// ignoring a leading "www.".
func sameSite(host, baseHost string) bool {
	host = strings.TrimPrefix(strings.ToLower(host), "www.")
	baseHost = strings.TrimPrefix(strings.ToLower(baseHost), "www.")
	return host == baseHost || strings.HasSuffix(host, "."+baseHost)
}

// selectLinks applies the link selectors in order and returns the links
// from the first selector that yields any.
func selectLinks(doc *goquery.Document, selectors []string, newFilter func() *linkFilter) []link {
	for _, sel := range selectors {
		f := newFilter()
		doc.Find(sel).EachWithBreak(func(_ int, s *goquery.Selection) bool {
			href, ok := s.Attr("href")
			if !ok {
				href, ok = s.Find("a[href]").First().Attr("href")
			}
			if !ok {
				return true
			}
			return f.add(href, link{Title: normalizeSpace(s.Text())})
		})
		if len(f.links) > 0 {
			return f.links
		}
	}
	return nil
}
