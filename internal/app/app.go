// Package app wires configuration into the services every command shares.
package app

import (
	"context"
	"fmt"

	"github.com/brandpulse/social-listening/internal/analytics"
	"github.com/brandpulse/social-listening/internal/cache"
	"github.com/brandpulse/social-listening/internal/classify"
	"github.com/brandpulse/social-listening/internal/config"
	"github.com/brandpulse/social-listening/internal/mentions"
	"github.com/brandpulse/social-listening/internal/notifications"
	"github.com/brandpulse/social-listening/internal/scrapers"
	"github.com/brandpulse/social-listening/internal/storage"
	"github.com/brandpulse/social-listening/internal/worker"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// App holds the wired services
type App struct {
	Config     *config.Config
	Store      *storage.GormStore
	Cache      *cache.Redis
	Registry   *scrapers.Registry
	Queue      *worker.Queue
	Worker     *worker.Worker
	Analytics  *analytics.Service
	Classifier *classify.Service
}

// LoadConfig reads .env when present, loads the configuration and sets up
// logging
func LoadConfig() (*config.Config, error) {
	if err := godotenv.Load(); err != nil {
		logrus.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	logrus.SetLevel(logrus.InfoLevel)
	if cfg.Debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	logrus.SetFormatter(&logrus.JSONFormatter{})
	return cfg, nil
}

// NewRegistry builds the Apify-backed scrapers
func NewRegistry(cfg *config.Config) *scrapers.Registry {
	apify := scrapers.NewApifyClient(cfg.ApifyToken, cfg.ApifyBaseURL, cfg.ScrapeTimeout)
	return scrapers.NewRegistry(
		scrapers.NewInstagramScraper(apify, cfg.InstagramActorID),
		scrapers.NewTikTokScraper(apify, cfg.TikTokActorID),
	)
}

// New connects to Postgres, Redis and blob storage and builds the services
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	store, err := storage.OpenPostgres(ctx, cfg.DatabaseURL, cfg.Debug)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	redisCache, err := cache.New(ctx, cfg.RedisURL)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	var notifier notifications.Notifier = notifications.Noop{}
	if svc := notifications.NewService(cfg); svc.Enabled() {
		notifier = svc
	}

	registry := NewRegistry(cfg)
	w := worker.New(cfg, store, registry, mentions.NewSaver(store, cfg.MentionBatchSize))
	if redisCache != nil {
		w.SetLocker(redisCache)
	}
	if cfg.StorageAccount != "" {
		archive, err := storage.NewAzureArchive(ctx, cfg.StorageAccount, cfg.StorageContainer)
		if err != nil {
			logrus.Warnf("Raw payload archive disabled: %v", err)
		} else {
			w.SetArchive(archive)
		}
	}

	return &App{
		Config:     cfg,
		Store:      store,
		Cache:      redisCache,
		Registry:   registry,
		Queue:      worker.NewQueue(store, registry),
		Worker:     w,
		Analytics:  analytics.NewService(cfg, store, notifier, redisCache),
		Classifier: classify.NewService(store, classify.NewLexiconClassifier(), 0),
	}, nil
}

// Close releases connections
func (a *App) Close() {
	if err := a.Cache.Close(); err != nil {
		logrus.Warnf("Failed to close cache: %v", err)
	}
	if err := a.Store.Close(); err != nil {
		logrus.Warnf("Failed to close database: %v", err)
	}
}
