package commands

import (
	"context"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/helpers"
	"sjsage522/mallcrawler/internal/crawler"
	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/services/cache"
	"sjsage522/mallcrawler/services/publisher"
	"sjsage522/mallcrawler/services/storage"
	"sjsage522/mallcrawler/services/worker"
)

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     *storage.Store
	Fetcher   *helpers.Fetcher
	ErrorLog  *helpers.ErrorLog
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		if err := s.Publisher.Close(); err != nil {
			logger.LogError("publisher", err, "Failed to close publisher")
		}
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) *Services {
	return &Services{
		Cache:     cache.New(cfg.MemcacheAddr),
		Publisher: publisher.New(ctx, cfg),
		Store:     storage.NewStore(cfg.OutputDir),
		Fetcher:   newFetcher(cfg),
		ErrorLog:  helpers.NewErrorLog(cfg.ErrorLogFile),
	}
}

func newFetcher(cfg *config.Config) *helpers.Fetcher {
	return helpers.NewFetcher(cfg.RequestTimeout, helpers.RetryPolicy{
		MaxRetries: cfg.MaxRetries,
		BaseDelay:  cfg.RetryBaseDelay,
	})
}

// newWorker wires crawlers for sites into a worker. catalogSites are the
// keys whose snapshots make up all-products.json.
func newWorker(cfg *config.Config, svc *Services, sites []config.SiteConfig, catalogSites []string) *worker.Worker {
	crawlers := crawler.CreateCrawlers(cfg, sites, svc.Cache, svc.Fetcher)
	return worker.NewWorker(crawlers, svc.Publisher, svc.Cache, svc.Store, svc.ErrorLog, worker.Options{
		CrawlInterval: cfg.CrawlInterval,
		MaxConcurrent: cfg.MaxConcurrentMalls,
		Publish:       cfg.PublishEnabled,
		SeenTTL:       cfg.SeenTTL,
		CatalogSites:  catalogSites,
		Production:    cfg.IsProduction(),
	})
}

func siteKeys(sites []config.SiteConfig) []string {
	keys := make([]string, 0, len(sites))
	for _, site := range sites {
		keys = append(keys, site.Key)
	}
	return keys
}
