// Package sources holds the catalog of news sites crawled each cycle.
package sources

import (
	"errors"
	"fmt"
	"os"

	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/scraper"
	"gopkg.in/yaml.v3"
)

// ErrDuplicateSource is returned when two sites share a name.
var ErrDuplicateSource = errors.New("duplicate source name")

// File is the on-disk shape of a sources file.
type File struct {
	Sites []scraper.SiteConfig `yaml:"sites"`
}

// Defaults returns the built-in site catalog.
func Defaults() []scraper.SiteConfig {
	return []scraper.SiteConfig{
		{
			Name:       "BBC News",
			BaseURL:    "https://www.bbc.com",
			LandingURL: "https://www.bbc.com/news",
			FeedURL:    "https://feeds.bbci.co.uk/news/world/rss.xml",
			List: scraper.ListConfig{
				LinkSelectors: []string{
					`a[data-testid="internal-link"]`,
					`a.gs-c-promo-heading`,
					`h3 a`,
				},
				LinkPattern: `^/news/(articles/|[a-z-]+-\d+$)`,
			},
			Article: scraper.ArticleConfig{
				TitleSelectors: []string{"h1#main-heading", "article h1", "h1"},
				BodySelectors:  []string{`div[data-component="text-block"] p`, "article p"},
				DateSelectors:  []string{"time[datetime]"},
			},
		},
		{
			Name:       "Al Jazeera",
			BaseURL:    "https://www.aljazeera.com",
			LandingURL: "https://www.aljazeera.com/news/",
			FeedURL:    "https://www.aljazeera.com/xml/rss/all.xml",
			List: scraper.ListConfig{
				LinkSelectors: []string{"a.u-clickable-card__link", "article h3 a"},
				LinkPattern:   `^/news/\d{4}/`,
			},
			Article: scraper.ArticleConfig{
				TitleSelectors: []string{"header.article-header h1", "h1"},
				BodySelectors:  []string{"div.wysiwyg p", "main p"},
				DateSelectors:  []string{`div.date-simple span[aria-hidden="true"]`, "time[datetime]"},
				DateFormats:    []string{"2 Jan 2006"},
			},
		},
		{
			Name:       "The Guardian",
			BaseURL:    "https://www.theguardian.com",
			LandingURL: "https://www.theguardian.com/world",
			FeedURL:    "https://www.theguardian.com/world/rss",
			List: scraper.ListConfig{
				LinkSelectors: []string{`a[data-link-name="article"]`, "div.fc-item__container a"},
				LinkPattern:   `^/[a-z-]+(/[a-z-]+)?/\d{4}/[a-z]{3}/\d{2}/`,
			},
			Article: scraper.ArticleConfig{
				TitleSelectors: []string{`div[data-gu-name="headline"] h1`, "h1"},
				BodySelectors:  []string{`div#maincontent p`, "article p"},
				DateSelectors:  []string{"details summary span", `meta[property="article:published_time"]`},
			},
		},
		{
			Name:       "NPR",
			BaseURL:    "https://www.npr.org",
			LandingURL: "https://www.npr.org/sections/world/",
			FeedURL:    "https://feeds.npr.org/1004/rss.xml",
			List: scraper.ListConfig{
				LinkSelectors: []string{"h2.title a", "article a"},
				LinkPattern:   `^/\d{4}/\d{2}/\d{2}/`,
			},
			Article: scraper.ArticleConfig{
				TitleSelectors: []string{"div.storytitle h1", "h1"},
				BodySelectors:  []string{"div#storytext > p", "article p"},
				DateSelectors:  []string{"time[datetime]"},
			},
		},
		{
			Name:       "DW",
			BaseURL:    "https://www.dw.com",
			LandingURL: "https://www.dw.com/en/top-stories/s-9097",
			FeedURL:    "https://rss.dw.com/rdf/rss-en-world",
			List: scraper.ListConfig{
				LinkSelectors: []string{`a[href*="/en/"][href*="/a-"]`},
				LinkPattern:   `^/en/.+/a-\d+$`,
			},
			Article: scraper.ArticleConfig{
				TitleSelectors: []string{"article h1", "h1"},
				BodySelectors:  []string{"div.rich-text p", "article p"},
				DateSelectors:  []string{"span.publication time", "time[datetime]"},
			},
		},
	}
}

// Load reads the sites from a YAML file. An empty path returns Defaults.
func Load(path string) ([]scraper.SiteConfig, error) {
	if path == "" {
		return Defaults(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sources file: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse sources file: %w", err)
	}
	if len(f.Sites) == 0 {
		return nil, fmt.Errorf("sources file %s defines no sites", path)
	}

	return f.Sites, nil
}

// Build creates an extractor for every enabled site. Invalid configs and
// duplicate names are errors.
func Build(sites []scraper.SiteConfig, maxArticles int, log logger.Logger) ([]scraper.Extractor, error) {
	seen := make(map[string]struct{})
	var extractors []scraper.Extractor

	for _, site := range sites {
		if _, dup := seen[site.Name]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateSource, site.Name)
		}
		seen[site.Name] = struct{}{}

		if !site.IsEnabled() {
			log.Info("Source disabled", logger.String("source", site.Name))
			continue
		}
		if site.MaxArticles <= 0 {
			site.MaxArticles = maxArticles
		}

		e, err := scraper.NewSelectorExtractor(site, log)
		if err != nil {
			return nil, err
		}
		extractors = append(extractors, e)
	}

	return extractors, nil
}
