package scraper

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
)

// DefaultMaxArticles caps the links taken from one source per cycle.
const DefaultMaxArticles = 20

// SiteConfig describes how to crawl one news site.
type SiteConfig struct {
	Name       string `yaml:"name"`
	BaseURL    string `yaml:"base_url"`
	LandingURL string `yaml:"landing_url"`
	// FeedURL, if set, is tried for link discovery before the landing page.
	FeedURL     string        `yaml:"feed_url,omitempty"`
	MaxArticles int           `yaml:"max_articles,omitempty"`
	Enabled     *bool         `yaml:"enabled,omitempty"` // nil means enabled
	List        ListConfig    `yaml:"list"`
	Article     ArticleConfig `yaml:"article"`
}

// ListConfig defines how article links are found on the landing page.
type ListConfig struct {
	// LinkSelectors are tried in order; the first one yielding at least one
	// link wins.
	LinkSelectors []string `yaml:"link_selectors"`
	// LinkPattern, if set, is a regular expression the link path must match.
	LinkPattern string `yaml:"link_pattern,omitempty"`
}

// ArticleConfig defines how fields are extracted from an article page. Each
// list is tried in order.
type ArticleConfig struct {
	TitleSelectors []string `yaml:"title_selectors"`
	BodySelectors  []string `yaml:"body_selectors"`
	DateSelectors  []string `yaml:"date_selectors,omitempty"`
	DateFormats    []string `yaml:"date_formats,omitempty"` // Go time layouts
}

// IsEnabled reports whether the site should be crawled.
func (c SiteConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// WithDefaults fills in unset optional fields.
func (c SiteConfig) WithDefaults() SiteConfig {
	if c.MaxArticles <= 0 {
		c.MaxArticles = DefaultMaxArticles
	}
	if c.LandingURL == "" {
		c.LandingURL = c.BaseURL
	}
	return c
}

// Validate checks that the config can drive an extractor.
func (c SiteConfig) Validate() error {
	if c.Name == "" {
		return errors.New("site name is required")
	}

	base, err := url.Parse(c.BaseURL)
	if err != nil || base.Host == "" || (base.Scheme != "http" && base.Scheme != "https") {
		return fmt.Errorf("site %q: base_url must be an absolute http(s) URL", c.Name)
	}

	if len(c.List.LinkSelectors) == 0 && c.FeedURL == "" {
		return fmt.Errorf("site %q: link_selectors or feed_url is required", c.Name)
	}
	if c.List.LinkPattern != "" {
		if _, err := regexp.Compile(c.List.LinkPattern); err != nil {
			return fmt.Errorf("site %q: invalid link_pattern: %w", c.Name, err)
		}
	}

	return nil
}
