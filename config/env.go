package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// applyEnv overrides cfg with NEWSCRAWL_* variables.
func applyEnv(cfg *Config) error {
	envString("NEWSCRAWL_SERVER_ADDRESS", &cfg.Server.Address)
	envString("NEWSCRAWL_PUBLIC_URL", &cfg.Server.PublicURL)

	envString("NEWSCRAWL_METADATA_TYPE", &cfg.Storage.Metadata.Type)
	envString("NEWSCRAWL_METADATA_DSN", &cfg.Storage.Metadata.DSN)
	envString("NEWSCRAWL_METADATA_DATABASE", &cfg.Storage.Metadata.Database)

	envString("NEWSCRAWL_CONTENT_TYPE", &cfg.Storage.Content.Type)
	envString("NEWSCRAWL_CONTENT_DIR", &cfg.Storage.Content.Dir)
	envString("NEWSCRAWL_CONTENT_SIGNING_KEY", &cfg.Storage.Content.SigningKey)
	envString("NEWSCRAWL_MINIO_ENDPOINT", &cfg.Storage.Content.Minio.Endpoint)
	envString("NEWSCRAWL_MINIO_BUCKET", &cfg.Storage.Content.Minio.Bucket)
	envString("NEWSCRAWL_MINIO_REGION", &cfg.Storage.Content.Minio.Region)
	envString("NEWSCRAWL_MINIO_ACCESS_KEY", &cfg.Storage.Content.Minio.AccessKey)
	envString("NEWSCRAWL_MINIO_SECRET_KEY", &cfg.Storage.Content.Minio.SecretKey)

	envString("NEWSCRAWL_CRAWL_INTERVAL", &cfg.Crawl.Interval)
	envString("NEWSCRAWL_USER_AGENT", &cfg.Crawl.UserAgent)
	envString("NEWSCRAWL_SOURCES_FILE", &cfg.Crawl.SourcesFile)
	if val := os.Getenv("NEWSCRAWL_COUNTRIES"); val != "" {
		cfg.Crawl.Countries = splitList(val)
	}

	envString("NEWSCRAWL_LOCK_TYPE", &cfg.Lock.Type)
	envString("NEWSCRAWL_REDIS_ADDR", &cfg.Lock.RedisAddr)
	envString("NEWSCRAWL_REDIS_PASSWORD", &cfg.Lock.RedisPassword)
	envString("NEWSCRAWL_LOCK_KEY", &cfg.Lock.Key)

	envString("NEWSCRAWL_LOG_LEVEL", &cfg.Logging.Level)

	var err error
	set := func(e error) {
		if err == nil {
			err = e
		}
	}
	set(envBool("NEWSCRAWL_MINIO_USE_SSL", &cfg.Storage.Content.Minio.UseSSL))
	set(envDuration("NEWSCRAWL_NAVIGATION_TIMEOUT", &cfg.Crawl.NavigationTimeout))
	set(envDuration("NEWSCRAWL_COURTESY_DELAY", &cfg.Crawl.CourtesyDelay))
	set(envDuration("NEWSCRAWL_COURTESY_JITTER", &cfg.Crawl.CourtesyJitter))
	set(envDuration("NEWSCRAWL_CYCLE_TIMEOUT", &cfg.Crawl.CycleTimeout))
	set(envInt("NEWSCRAWL_MAX_ARTICLES", &cfg.Crawl.MaxArticles))
	set(envBool("NEWSCRAWL_RUN_ON_START", &cfg.Crawl.RunOnStart))
	set(envInt("NEWSCRAWL_REDIS_DB", &cfg.Lock.RedisDB))
	set(envDuration("NEWSCRAWL_LOCK_TTL", &cfg.Lock.TTL))
	set(envDuration("NEWSCRAWL_SWEEP_GRACE", &cfg.Sweep.Grace))
	set(envBool("NEWSCRAWL_LOG_DEVELOPMENT", &cfg.Logging.Development))

	return err
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, val)
	}
	*dst = n
	return nil
}

func envBool(key string, dst *bool) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return fmt.Errorf("%s: invalid boolean %q", key, val)
	}
	*dst = b
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	val := os.Getenv(key)
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, val)
	}
	*dst = d
	return nil
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
