package scraper

import (
	"net/url"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: build a link filter for https://www.news.test
func testFilter(t *testing.T, pattern string, limit int) *linkFilter {
	t.Helper()
	base, err := url.Parse("https://www.news.test/world/")
	require.NoError(t, err)

	var re *regexp.Regexp
	if pattern != "" {
		re = regexp.MustCompile(pattern)
	}
	return newLinkFilter(base, re, limit)
}

func linkURLs(links []link) []string {
	urls := make([]string, len(links))
	for i, l := range links {
		urls[i] = l.URL
	}
	return urls
}

// TestLinkFilter verifies resolution, fragment stripping, scheme and host
// checks, and dedup
func TestLinkFilter(t *testing.T) {
	f := testFilter(t, "", 0)

	for _, href := range []string{
		"story-1",
		"/world/story-2#comments",
		"https://news.test/world/story-2",
		"https://www.news.test/world/story-2",
		"https://live.news.test/feed/3",
		"https://other.test/world/story-4",
		"mailto:desk@news.test",
		"javascript:void(0)",
		"#top",
		"",
	} {
		f.add(href, link{})
	}

	assert.Equal(t, []string{
		"https://www.news.test/world/story-1",
		"https://www.news.test/world/story-2",
		"https://news.test/world/story-2",
		"https://live.news.test/feed/3",
	}, linkURLs(f.links))
}

// TestLinkFilter_PatternAndLimit verifies the path pattern and the limit
func TestLinkFilter_PatternAndLimit(t *testing.T) {
	f := testFilter(t, `^/world/\d+`, 2)

	assert.True(t, f.add("/sport/1", link{}))
	assert.True(t, f.add("/world/1", link{}))
	assert.False(t, f.add("/world/2", link{}), "limit reached")
	assert.False(t, f.add("/world/3", link{}))

	assert.Equal(t, []string{
		"https://www.news.test/world/1",
		"https://www.news.test/world/2",
	}, linkURLs(f.links))
}

// TestSelectLinks verifies the first selector with results wins and that
// container elements fall back to their first anchor
func TestSelectLinks(t *testing.T) {
	doc := parseHTML(t, `<html><body>
		<div class="promo"><a href="/world/1">  First
			story </a></div>
		<div class="promo"><h3>Second</h3><a href="/world/2">read</a></div>
		<a class="headline" href="/world/9">Never used</a>
	</body></html>`)

	links := selectLinks(doc, []string{"article a", "div.promo", "a.headline"}, func() *linkFilter {
		return testFilter(t, "", 0)
	})

	require.Len(t, links, 2)
	assert.Equal(t, "https://www.news.test/world/1", links[0].URL)
	assert.Equal(t, "First story", links[0].Title)
	assert.Equal(t, "https://www.news.test/world/2", links[1].URL)

	assert.Nil(t, selectLinks(doc, []string{"nav a"}, func() *linkFilter {
		return testFilter(t, "", 0)
	}))
}

// TestFeedLinks verifies RSS items become links with their dates
func TestFeedLinks(t *testing.T) {
	rss := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>World</title>
	<item><title>One</title><link>https://www.news.test/world/1</link>
		<pubDate>Wed, 01 May 2024 10:00:00 GMT</pubDate></item>
	<item><title>Offsite</title><link>https://other.test/x</link></item>
	<item><title>Two</title><link>https://www.news.test/world/2</link></item>
</channel></rss>`

	links, err := feedLinks([]byte(rss), testFilter(t, "", 0))
	require.NoError(t, err)
	require.Len(t, links, 2)

	assert.Equal(t, "https://www.news.test/world/1", links[0].URL)
	assert.Equal(t, "One", links[0].Title)
	require.NotNil(t, links[0].PublishedAt)
	assert.True(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC).Equal(*links[0].PublishedAt))
	assert.Nil(t, links[1].PublishedAt)
}

// TestFeedLinks_Invalid verifies unparsable feeds are reported
func TestFeedLinks_Invalid(t *testing.T) {
	_, err := feedLinks([]byte("not a feed"), testFilter(t, "", 0))
	assert.Error(t, err)
}
