package crawler

import (
	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/services/cache"
)

// CreateCrawlers creates a mall crawler for every enabled site. Sites
// whose configuration cannot be turned into a crawler are logged and
// skipped.
func CreateCrawlers(cfg *config.Config, sites []config.SiteConfig, cacheSvc cache.CacheService, fetcher PageFetcher) []Crawler {
	var crawlers []Crawler
	for _, site := range sites {
		if site.Disabled {
			logger.Debug("Skipping disabled site %s", site.Key)
			continue
		}
		site.ApplyDefaults(cfg)

		c, err := NewMallCrawler(site, cacheSvc, fetcher)
		if err != nil {
			logger.Error("Skipping site %s: %v", site.Key, err)
			continue
		}
		crawlers = append(crawlers, c)
	}

	logger.Info("Created %d crawlers", len(crawlers))
	for i, c := range crawlers {
		logger.Debug("Crawler %d: %s (%s)", i, c.GetName(), c.GetProvider())
	}

	return crawlers
}
