package sources

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/scraper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper: write a sources file into a temp dir
func writeSourcesFile(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "sources.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

// TestDefaults_Valid verifies every built-in site builds an extractor
func TestDefaults_Valid(t *testing.T) {
	sites := Defaults()
	require.Len(t, sites, 5)

	extractors, err := Build(sites, 0, logger.NewNop())
	require.NoError(t, err)
	require.Len(t, extractors, 5)

	names := make([]string, 0, len(extractors))
	for _, e := range extractors {
		names = append(names, e.Name())
	}
	assert.Equal(t, []string{"BBC News", "Al Jazeera", "The Guardian", "NPR", "DW"}, names)
}

// TestLoad_EmptyPath verifies the defaults are returned
func TestLoad_EmptyPath(t *testing.T) {
	sites, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Defaults(), sites)
}

// TestLoad_File verifies a YAML sources file is parsed
func TestLoad_File(t *testing.T) {
	path := writeSourcesFile(t, `
sites:
  - name: Example
    base_url: https://example.com
    landing_url: https://example.com/world
    max_articles: 5
    list:
      link_selectors: ["a.story"]
      link_pattern: ^/world/
    article:
      title_selectors: ["h1"]
      body_selectors: ["article p"]
      date_formats: ["2006-01-02"]
  - name: Disabled
    base_url: https://disabled.example
    enabled: false
    list:
      link_selectors: ["a"]
`)

	sites, err := Load(path)
	require.NoError(t, err)
	require.Len(t, sites, 2)
	assert.Equal(t, "Example", sites[0].Name)
	assert.Equal(t, 5, sites[0].MaxArticles)
	assert.Equal(t, []string{"a.story"}, sites[0].List.LinkSelectors)
	assert.Equal(t, []string{"2006-01-02"}, sites[0].Article.DateFormats)
	assert.True(t, sites[0].IsEnabled())
	assert.False(t, sites[1].IsEnabled())

	extractors, err := Build(sites, 10, logger.NewNop())
	require.NoError(t, err)
	require.Len(t, extractors, 1, "disabled sites are skipped")
	se, ok := extractors[0].(*scraper.SelectorExtractor)
	require.True(t, ok)
	assert.Equal(t, 5, se.Config().MaxArticles)
}

// TestLoad_Errors verifies unreadable and empty files fail
func TestLoad_Errors(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)

	_, err = Load(writeSourcesFile(t, "sites: []\n"))
	assert.Error(t, err)

	_, err = Load(writeSourcesFile(t, "sites: [unclosed\n"))
	assert.Error(t, err)
}

// TestBuild_DefaultMaxArticles verifies the global cap applies to sites
// without their own
func TestBuild_DefaultMaxArticles(t *testing.T) {
	sites := []scraper.SiteConfig{{
		Name:    "Example",
		BaseURL: "https://example.com",
		List:    scraper.ListConfig{LinkSelectors: []string{"a"}},
	}}

	extractors, err := Build(sites, 7, logger.NewNop())
	require.NoError(t, err)
	require.Len(t, extractors, 1)
	assert.Equal(t, 7, extractors[0].(*scraper.SelectorExtractor).Config().MaxArticles)
}

// TestBuild_Errors verifies duplicates and invalid configs are rejected
func TestBuild_Errors(t *testing.T) {
	site := scraper.SiteConfig{
		Name:    "Example",
		BaseURL: "https://example.com",
		List:    scraper.ListConfig{LinkSelectors: []string{"a"}},
	}

	_, err := Build([]scraper.SiteConfig{site, site}, 0, logger.NewNop())
	assert.ErrorIs(t, err, ErrDuplicateSource)

	_, err = Build([]scraper.SiteConfig{{Name: "Broken"}}, 0, logger.NewNop())
	assert.Error(t, err)
}
