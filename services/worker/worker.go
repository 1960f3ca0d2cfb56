package worker

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"sjsage522/mallcrawler/helpers"
	"sjsage522/mallcrawler/internal/crawler"
	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/services/cache"
	"sjsage522/mallcrawler/services/publisher"
	"sjsage522/mallcrawler/services/storage"
)

// ResultStore persists crawl results
type ResultStore interface {
	Save(snapshot *crawler.Snapshot, crawlErr error) (*storage.Summary, error)
	LoadSnapshots(siteKeys []string) ([]*crawler.Snapshot, error)
	WriteAll(snapshots []*crawler.Snapshot) (*storage.Catalog, error)
}

// Options tunes a Worker
type Options struct {
	CrawlInterval time.Duration
	MaxConcurrent int
	// Publish sends unseen products to the publisher
	Publish bool
	SeenTTL time.Duration
	// CatalogSites lists the site keys whose latest stored snapshots make
	// up all-products.json. Empty means the sites crawled in this run.
	CatalogSites []string
	Production   bool
}

// Result is the outcome of crawling one mall
type Result struct {
	Site      string
	Name      string
	Summary   *storage.Summary
	Published int
	Err       error
}

// Report is the outcome of one pass over all malls
type Report struct {
	Results       []Result
	TotalProducts int
	Duration      time.Duration
}

// Failed returns the number of malls whose crawl returned an error
func (r *Report) Failed() int {
	failed := 0
	for _, result := range r.Results {
		if result.Err != nil {
			failed++
		}
	}
	return failed
}

// Worker handles the crawling, storing and publishing process
type Worker struct {
	crawlers  []crawler.Crawler
	publisher publisher.Publisher
	cache     cache.CacheService
	store     ResultStore
	logger    helpers.LoggerInterface
	opts      Options
	log       *logger.Logger
}

// NewWorker creates a new worker
func NewWorker(
	crawlers []crawler.Crawler,
	pub publisher.Publisher,
	cacheSvc cache.CacheService,
	store ResultStore,
	errorLog helpers.LoggerInterface,
	opts Options,
) *Worker {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Worker{
		crawlers:  crawlers,
		publisher: pub,
		cache:     cacheSvc,
		store:     store,
		logger:    errorLog,
		opts:      opts,
		log:       logger.ForWorker(),
	}
}

// Start runs a pass every CrawlInterval until ctx is cancelled
func (w *Worker) Start(ctx context.Context) error {
	for {
		report, err := w.RunOnce(ctx)
		if err != nil {
			return err
		}
		if !w.opts.Production {
			w.logger.LogInfo("크롤링 소요 시간: %s", report.Duration)
		}

		timer := time.NewTimer(w.opts.CrawlInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce crawls every mall with bounded concurrency, stores the results,
// publishes new products and trims the streams. Per-mall failures are
// logged and reported; only cancellation returns an error.
func (w *Worker) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	results := make([]Result, len(w.crawlers))

	sem := make(chan struct{}, w.opts.MaxConcurrent)
	var wg sync.WaitGroup

	for i, c := range w.crawlers {
		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return nil, ctx.Err()
		}

		wg.Add(1)
		go func(i int, c crawler.Crawler) {
			defer wg.Done()
			defer func() { <-sem }()
			results[i] = w.crawlAndPublish(ctx, c)
		}(i, c)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	report := &Report{Results: results}
	if catalog, err := w.writeCatalog(); err != nil {
		w.logger.LogError("Catalog", err)
	} else {
		report.TotalProducts = catalog.TotalProducts
	}

	if w.opts.Publish {
		if err := w.publisher.TrimStreams(); err != nil {
			w.logger.LogError("StreamTrimming", err)
		}
	}

	report.Duration = time.Since(start)
	w.log.Info().
		Int("malls", len(results)).
		Int("failed", report.Failed()).
		Int("products", report.TotalProducts).
		Dur("elapsed", report.Duration).
		Msg("Crawl pass finished")
	return report, nil
}

// writeCatalog rebuilds all-products.json from the stored snapshots, so a
// mall whose crawl failed keeps its last good products.
func (w *Worker) writeCatalog() (*storage.Catalog, error) {
	siteKeys := w.opts.CatalogSites
	if len(siteKeys) == 0 {
		for _, c := range w.crawlers {
			siteKeys = append(siteKeys, c.GetProvider())
		}
	}
	snapshots, err := w.store.LoadSnapshots(siteKeys)
	if err != nil {
		return nil, err
	}
	return w.store.WriteAll(snapshots)
}

// crawlAndPublish crawls one mall, stores the result and
// publishes the products not seen before.
func (w *Worker) crawlAndPublish(ctx context.Context, c crawler.Crawler) Result {
	crawlerName := c.GetName()
	if crawlerName == "" {
		crawlerName = reflect.TypeOf(c).Elem().Name()
	}
	result := Result{Site: c.GetProvider(), Name: crawlerName}

	snapshot, err := c.Crawl(ctx)
	if err != nil {
		result.Err = err
		w.logger.LogError(c.GetProvider(), err)
	}
	if snapshot == nil {
		return result
	}
	if ctx.Err() != nil {
		// partial results of a cancelled run are not saved
		return result
	}

	summary, saveErr := w.store.Save(snapshot, err)
	if saveErr != nil {
		w.logger.LogError(c.GetProvider(), saveErr)
	}
	result.Summary = summary

	if w.opts.Publish {
		result.Published = w.publishNew(c.GetProvider(), snapshot)
	}

	if !w.opts.Production && len(snapshot.Products) > 0 {
		w.logSample(c.GetProvider(), snapshot.Products[0])
	}
	return result
}

// publishNew publishes products whose seen key is absent and marks them
// seen for SeenTTL.
func (w *Worker) publishNew(siteKey string, snapshot *crawler.Snapshot) int {
	published := 0
	for _, product := range snapshot.Products {
		key := cache.SeenKey(siteKey, product.ID)
		if _, err := w.cache.Get(key); err == nil {
			continue
		}

		data, err := json.MarshalNoEscape(product)
		if err != nil {
			w.logger.LogError(siteKey, err)
			continue
		}
		if err := w.publisher.Publish(publisher.ProductField, data); err != nil {
			w.logger.LogError(siteKey, err)
			continue
		}
		published++

		if err := w.cache.Set(key, []byte("1"), w.opts.SeenTTL); err != nil {
			w.logger.LogError(siteKey, err)
		}
	}

	if published > 0 {
		w.log.Info().Str("site", siteKey).Int("published", published).Msg("Published new products")
	}
	return published
}

// logSample logs the first product of a mall with the image elided
func (w *Worker) logSample(siteKey string, product crawler.Product) {
	if product.ImageURL != "" {
		product.ImageURL = "OK"
	}
	data, err := json.MarshalNoEscape(product)
	if err != nil {
		w.logger.LogError(siteKey, err)
		return
	}
	w.logger.LogInfo("크롤링 데이터: %s", string(data))
}
