package crawler

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/helpers"
	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/pkg/errors"
	"sjsage522/mallcrawler/services/cache"
)

// PageFetcher downloads a page and returns it as UTF-8
type PageFetcher interface {
	Fetch(ctx context.Context, provider, rawURL, forcedEncoding string) (*helpers.Page, error)
}

// BaseCrawler provides common functionality for all crawlers
type BaseCrawler struct {
	Site     config.SiteConfig
	CacheKey string
	CacheSvc cache.CacheService
	Fetcher  PageFetcher

	log         *logger.Logger
	mu          sync.Mutex
	lastRequest time.Time
}

// blockedKey returns the cache key that marks the site as rate limited
func blockedKey(siteKey string) string {
	return siteKey + "_rate_limited"
}

// fetchDocument fetches a page honoring the site's delay and rate-limit
// block, and parses it.
func (c *BaseCrawler) fetchDocument(ctx context.Context, pageURL string) (*goquery.Document, *helpers.Page, error) {
	// Check if the site is rate limited
	if c.CacheSvc != nil && c.CacheKey != "" {
		if _, err := c.CacheSvc.Get(c.CacheKey); err == nil {
			return nil, nil, errors.NewBlocked(c.Site.Key, c.Site.BlockTime())
		}
	}

	if err := c.throttle(ctx); err != nil {
		return nil, nil, err
	}

	page, err := c.Fetcher.Fetch(ctx, c.Site.Key, pageURL, c.Site.Encoding)
	if err != nil {
		if errors.IsRateLimited(err) && c.CacheSvc != nil && c.CacheKey != "" {
			blockTime := c.Site.BlockTime()
			if setErr := c.CacheSvc.Set(c.CacheKey, []byte(strconv.Itoa(int(blockTime/time.Second))), blockTime); setErr != nil {
				c.logger().Warn().Err(setErr).Msg("Failed to set rate limit block")
			}
		}
		return nil, nil, err
	}

	doc, err := c.createDocument(page)
	if err != nil {
		return nil, nil, err
	}
	return doc, page, nil
}

// throttle waits until the site's delay has passed since the last request
func (c *BaseCrawler) throttle(ctx context.Context) error {
	c.mu.Lock()
	wait := time.Duration(0)
	if !c.lastRequest.IsZero() {
		wait = c.Site.Delay() - time.Since(c.lastRequest)
	}
	c.mu.Unlock()

	if wait > 0 {
		timer := time.NewTimer(wait)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}

	c.mu.Lock()
	c.lastRequest = time.Now()
	c.mu.Unlock()
	return nil
}

// createDocument creates a goquery document from a fetched page
func (c *BaseCrawler) createDocument(page *helpers.Page) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, errors.NewParsing(c.Site.Key, "HTML parsing error", err)
	}
	return doc, nil
}

type processed struct {
	index   int
	product *Product
	err     error
}

// processProducts processes product containers in parallel and returns
// them in document order. Containers the processor skips (nil, nil) are
// dropped.
func (c *BaseCrawler) processProducts(selections *goquery.Selection, processor ProcessorFunc) ([]Product, []error) {
	results := make(chan processed, selections.Length())
	var wg sync.WaitGroup

	selections.Each(func(i int, s *goquery.Selection) {
		wg.Add(1)
		go func(i int, s *goquery.Selection) {
			defer wg.Done()
			product, err := processor(s)
			results <- processed{index: i, product: product, err: err}
		}(i, s)
	})

	wg.Wait()
	close(results)

	ordered := make([]processed, selections.Length())
	for r := range results {
		ordered[r.index] = r
	}

	var products []Product
	var errs []error
	for _, r := range ordered {
		if r.err != nil {
			errs = append(errs, fmt.Errorf("item %d: %w", r.index, r.err))
			continue
		}
		if r.product != nil {
			products = append(products, *r.product)
		}
	}
	return products, errs
}

func (c *BaseCrawler) logger() *logger.Logger {
	if c.log == nil {
		c.log = logger.ForSite(c.Site.Key)
	}
	return c.log
}

// GetName returns the mall's display name
func (c *BaseCrawler) GetName() string {
	return c.Site.Name
}

// GetProvider returns the site key
func (c *BaseCrawler) GetProvider() string {
	return c.Site.Key
}
