// Package tagging derives geopolitical tags from article bodies by keyword
// matching.
package tagging

import (
	"strings"

	ahocorasick "github.com/cloudflare/ahocorasick"
	"github.com/pevans/newscrawl/article"
)

// DefaultCountries is the configured country list used when none is given.
var DefaultCountries = []string{
	"United States", "China", "Russia", "Ukraine", "Israel", "Palestine",
	"Iran", "Iraq", "Syria", "Lebanon", "Saudi Arabia", "Yemen", "Turkey",
	"Egypt", "Sudan", "Ethiopia", "Nigeria", "South Africa", "Kenya",
	"India", "Pakistan", "Afghanistan", "Bangladesh", "Japan",
	"North Korea", "South Korea", "Taiwan", "Vietnam", "Indonesia",
	"Philippines", "Australia", "United Kingdom", "France", "Germany",
	"Italy", "Spain", "Poland", "Canada", "Mexico", "Brazil", "Argentina",
	"Venezuela", "Colombia",
}

// Matcher tags bodies with every configured country whose name appears in
// them, ignoring case. It is safe for concurrent use.
type Matcher struct {
	countries []string
	matcher   *ahocorasick.Matcher
	// owners maps a dictionary index to the countries sharing that
	// lowercased name.
	owners [][]int
}

// NewMatcher builds a matcher over countries. Names are matched in a single
// pass over the body. Empty names are ignored.
func NewMatcher(countries []string) *Matcher {
	m := &Matcher{countries: countries}

	index := make(map[string]int)
	var keywords []string
	for i, name := range countries {
		kw := strings.ToLower(strings.TrimSpace(name))
		if kw == "" {
			continue
		}
		pos, ok := index[kw]
		if !ok {
			pos = len(keywords)
			index[kw] = pos
			keywords = append(keywords, kw)
			m.owners = append(m.owners, nil)
		}
		m.owners[pos] = append(m.owners[pos], i)
	}

	if len(keywords) > 0 {
		m.matcher = ahocorasick.NewStringMatcher(keywords)
	}

	return m
}

// Countries returns the configured list.
func (m *Matcher) Countries() []string {
	return m.countries
}

// Tag returns the geopolitical tags for body. Countries are listed in
// configured order, each at most once.
func (m *Matcher) Tag(body string) article.GeopoliticalTags {
	if m.matcher == nil || body == "" {
		return article.NewGeopoliticalTags(nil)
	}

	found := make([]bool, len(m.countries))
	for _, hit := range m.matcher.MatchThreadSafe([]byte(strings.ToLower(body))) {
		for _, i := range m.owners[hit] {
			found[i] = true
		}
	}

	var countries []string
	seen := make(map[string]struct{})
	for i, ok := range found {
		if !ok {
			continue
		}
		if _, dup := seen[m.countries[i]]; dup {
			continue
		}
		seen[m.countries[i]] = struct{}{}
		countries = append(countries, m.countries[i])
	}

	return article.NewGeopoliticalTags(countries)
}
