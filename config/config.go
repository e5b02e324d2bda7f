// Package config loads newscrawl configuration from defaults, an optional
// YAML file and NEWSCRAWL_* environment variables, in increasing order of
// precedence.
package config

import (
	"fmt"
	"time"

	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/logger"
)

// Config is the complete runtime configuration.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Crawl   CrawlConfig   `yaml:"crawl"`
	Lock    LockConfig    `yaml:"lock"`
	Sweep   SweepConfig   `yaml:"sweep"`
	Logging logger.Config `yaml:"logging"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Address string `yaml:"address"`
	// PublicURL is the externally reachable base URL, used in signed
	// content links served by the file backend.
	PublicURL string `yaml:"public_url"`
}

// StorageConfig selects the metadata and content backends.
type StorageConfig struct {
	Metadata MetadataConfig `yaml:"metadata"`
	Content  ContentConfig  `yaml:"content"`
}

// MetadataConfig configures the article repository.
type MetadataConfig struct {
	Type     string `yaml:"type"` // "sqlite" or "mongo"
	DSN      string `yaml:"dsn"`  // file path or mongodb:// URI
	Database string `yaml:"database"`
}

// ContentConfig configures the body store.
type ContentConfig struct {
	Type       string              `yaml:"type"` // "file" or "minio"
	Dir        string              `yaml:"dir"`
	SigningKey string              `yaml:"signing_key"`
	Minio      content.MinioConfig `yaml:"minio"`
}

// CrawlConfig controls crawl cycles.
type CrawlConfig struct {
	// Interval is a Go duration or a cron expression.
	Interval          string        `yaml:"interval"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	CourtesyDelay     time.Duration `yaml:"courtesy_delay"`
	CourtesyJitter    time.Duration `yaml:"courtesy_jitter"`
	// CycleTimeout bounds a whole cycle; zero disables it.
	CycleTimeout time.Duration `yaml:"cycle_timeout"`
	UserAgent    string        `yaml:"user_agent"`
	MaxArticles  int           `yaml:"max_articles"`
	RunOnStart   bool          `yaml:"run_on_start"`
	SourcesFile  string        `yaml:"sources_file"`
	Countries    []string      `yaml:"countries"`
}

// LockConfig selects the cycle guard.
type LockConfig struct {
	Type          string        `yaml:"type"` // "local" or "redis"
	RedisAddr     string        `yaml:"redis_addr"`
	RedisPassword string        `yaml:"redis_password"`
	RedisDB       int           `yaml:"redis_db"`
	Key           string        `yaml:"key"`
	TTL           time.Duration `yaml:"ttl"`
}

// SweepConfig controls orphaned content cleanup.
type SweepConfig struct {
	Grace time.Duration `yaml:"grace"`
}

// Storage and lock backend names.
const (
	MetadataSQLite = "sqlite"
	MetadataMongo  = "mongo"
	ContentFile    = "file"
	ContentMinio   = "minio"
	LockLocal      = "local"
	LockRedis      = "redis"
)

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address:   ":8080",
			PublicURL: "http://localhost:8080",
		},
		Storage: StorageConfig{
			Metadata: MetadataConfig{
				Type:     MetadataSQLite,
				DSN:      "newscrawl.db",
				Database: "newscrawl",
			},
			Content: ContentConfig{
				Type: ContentFile,
				Dir:  ".newscrawl-content",
				Minio: content.MinioConfig{
					Bucket: "newscrawl-articles",
					Region: "us-east-1",
				},
			},
		},
		Crawl: CrawlConfig{
			Interval:          "1h",
			NavigationTimeout: 30 * time.Second,
			CourtesyDelay:     2 * time.Second,
			CourtesyJitter:    time.Second,
			MaxArticles:       20,
		},
		Lock: LockConfig{
			Type:      LockLocal,
			RedisAddr: "localhost:6379",
			Key:       "newscrawl:cycle",
			TTL:       30 * time.Minute,
		},
		Sweep: SweepConfig{
			Grace: time.Hour,
		},
		Logging: logger.Config{
			Level: "info",
		},
	}
}

// Validate checks backend names and numeric bounds.
func (c *Config) Validate() error {
	switch c.Storage.Metadata.Type {
	case MetadataSQLite, MetadataMongo:
	default:
		return fmt.Errorf("storage.metadata.type must be %q or %q, got %q",
			MetadataSQLite, MetadataMongo, c.Storage.Metadata.Type)
	}
	if c.Storage.Metadata.DSN == "" {
		return fmt.Errorf("storage.metadata.dsn is required")
	}

	switch c.Storage.Content.Type {
	case ContentFile:
		if c.Storage.Content.Dir == "" {
			return fmt.Errorf("storage.content.dir is required for the file backend")
		}
	case ContentMinio:
		if c.Storage.Content.Minio.Endpoint == "" || c.Storage.Content.Minio.Bucket == "" {
			return fmt.Errorf("storage.content.minio endpoint and bucket are required")
		}
	default:
		return fmt.Errorf("storage.content.type must be %q or %q, got %q",
			ContentFile, ContentMinio, c.Storage.Content.Type)
	}

	switch c.Lock.Type {
	case LockLocal, LockRedis:
	default:
		return fmt.Errorf("lock.type must be %q or %q, got %q", LockLocal, LockRedis, c.Lock.Type)
	}

	if c.Crawl.NavigationTimeout <= 0 {
		return fmt.Errorf("crawl.navigation_timeout must be positive")
	}
	if c.Crawl.CourtesyDelay < 0 || c.Crawl.CourtesyJitter < 0 || c.Crawl.CycleTimeout < 0 {
		return fmt.Errorf("crawl delays and timeouts must not be negative")
	}
	if c.Crawl.MaxArticles <= 0 {
		return fmt.Errorf("crawl.max_articles must be positive")
	}

	return nil
}
