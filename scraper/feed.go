package scraper

import (
	"fmt"

	"github.com/mmcdole/gofeed"
)

// feedLinks parses an RSS or Atom document and returns its item links in
// feed order. gofeed detects the format.
func feedLinks(body []byte, f *linkFilter) ([]link, error) {
	feed, err := gofeed.NewParser().ParseString(string(body))
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	for _, item := range feed.Items {
		href := item.Link
		if href == "" && len(item.Links) > 0 {
			href = item.Links[0]
		}

		// <pubDate> (RSS) or <published>/<updated> (Atom)
		publishedAt := item.PublishedParsed
		if publishedAt == nil {
			publishedAt = item.UpdatedParsed
		}

		if !f.add(href, link{Title: item.Title, PublishedAt: publishedAt}) {
			break
		}
	}

	return f.links, nil
}
