package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/pevans/newscrawl/article"
	"github.com/pevans/newscrawl/config"
	"github.com/pevans/newscrawl/content"
	"github.com/pevans/newscrawl/crawl"
	"github.com/pevans/newscrawl/logger"
	"github.com/pevans/newscrawl/scraper"
	"github.com/pevans/newscrawl/sources"
	"github.com/pevans/newscrawl/tagging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
)

const connectTimeout = 10 * time.Second

// app holds the long-lived collaborators shared by every command.
type app struct {
	cfg      *config.Config
	log      logger.Logger
	repo     article.Repository
	store    content.Store
	registry *prometheus.Registry
	redis    *redis.Client
}

// newApp loads configuration and opens the metadata and content stores.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	log, err := logger.New(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	a := &app{cfg: cfg, log: log}

	a.repo, err = openRepository(ctx, cfg.Storage.Metadata)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.store, err = openContentStore(ctx, cfg, log)
	if err != nil {
		a.Close()
		return nil, err
	}

	return a, nil
}

func openRepository(ctx context.Context, cfg config.MetadataConfig) (article.Repository, error) {
	switch cfg.Type {
	case config.MetadataMongo:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		repo, err := article.NewMongoRepository(ctx, cfg.DSN, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("failed to open mongo repository: %w", err)
		}
		return repo, nil
	default:
		repo, err := article.NewSQLiteRepository(cfg.DSN)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite repository: %w", err)
		}
		return repo, nil
	}
}

func openContentStore(ctx context.Context, cfg *config.Config, log logger.Logger) (content.Store, error) {
	cc := cfg.Storage.Content
	switch cc.Type {
	case config.ContentMinio:
		ctx, cancel := context.WithTimeout(ctx, connectTimeout)
		defer cancel()
		store, err := content.NewMinioStore(ctx, cc.Minio, log)
		if err != nil {
			return nil, fmt.Errorf("failed to open minio content store: %w", err)
		}
		return store, nil
	default:
		key := []byte(cc.SigningKey)
		if len(key) == 0 {
			// Links signed with an ephemeral key stop working on restart.
			log.Warn("No content signing key configured, generating an ephemeral one")
			key = make([]byte, 32)
			if _, err := rand.Read(key); err != nil {
				return nil, fmt.Errorf("failed to generate signing key: %w", err)
			}
		}
		store, err := content.NewFileStore(cc.Dir, cfg.Server.PublicURL, key)
		if err != nil {
			return nil, fmt.Errorf("failed to open file content store: %w", err)
		}
		return store, nil
	}
}

// metricsRegistry returns the process-wide registry, creating it on first
// use.
func (a *app) metricsRegistry() *prometheus.Registry {
	if a.registry == nil {
		a.registry = prometheus.NewRegistry()
		a.registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	return a.registry
}

// guard builds the configured cycle guard.
func (a *app) guard(ctx context.Context) (crawl.Guard, error) {
	if a.cfg.Lock.Type != config.LockRedis {
		return crawl.NewLocalGuard(), nil
	}

	a.redis = redis.NewClient(&redis.Options{
		Addr:     a.cfg.Lock.RedisAddr,
		Password: a.cfg.Lock.RedisPassword,
		DB:       a.cfg.Lock.RedisDB,
	})

	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := a.redis.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", a.cfg.Lock.RedisAddr, err)
	}

	return crawl.NewRedisGuard(a.redis, a.cfg.Lock.Key, a.cfg.Lock.TTL, a.log), nil
}

// orchestrator wires the crawl pipeline from configuration.
func (a *app) orchestrator(ctx context.Context) (*crawl.Orchestrator, error) {
	sites, err := sources.Load(a.cfg.Crawl.SourcesFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load sources: %w", err)
	}
	extractors, err := sources.Build(sites, a.cfg.Crawl.MaxArticles, a.log)
	if err != nil {
		return nil, fmt.Errorf("failed to build extractors: %w", err)
	}
	if len(extractors) == 0 {
		return nil, errors.New("no enabled sources configured")
	}

	guard, err := a.guard(ctx)
	if err != nil {
		return nil, err
	}

	countries := a.cfg.Crawl.Countries
	if len(countries) == 0 {
		countries = tagging.DefaultCountries
	}

	browser := scraper.NewCollyBrowser(scraper.BrowserConfig{
		UserAgent:         a.cfg.Crawl.UserAgent,
		NavigationTimeout: a.cfg.Crawl.NavigationTimeout,
		CourtesyDelay:     a.cfg.Crawl.CourtesyDelay,
		CourtesyJitter:    a.cfg.Crawl.CourtesyJitter,
	}, a.log)

	return crawl.NewOrchestrator(crawl.Config{
		Browser:      browser,
		Extractors:   extractors,
		Repository:   a.repo,
		Content:      a.store,
		Matcher:      tagging.NewMatcher(countries),
		Guard:        guard,
		Metrics:      crawl.NewMetrics(a.metricsRegistry()),
		CycleTimeout: a.cfg.Crawl.CycleTimeout,
		Logger:       a.log,
	}), nil
}

// Close releases every open resource.
func (a *app) Close() {
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn("Failed to close redis client", logger.Err(err))
		}
	}
	if a.repo != nil {
		if err := a.repo.Close(); err != nil {
			a.log.Warn("Failed to close repository", logger.Err(err))
		}
	}
	_ = a.log.Sync()
}
