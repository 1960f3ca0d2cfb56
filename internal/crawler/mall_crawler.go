package crawler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/pkg/errors"
	"sjsage522/mallcrawler/services/cache"
)

var imageAttrs = []string{"data-original", "data-src", "ec-data-src", "data-lazy", "src"}

// MallCrawler crawls one mall: homepage, category links, paginated
// category listings, product containers.
type MallCrawler struct {
	BaseCrawler
	platform Platform
	now      func() time.Time
}

// NewMallCrawler creates a crawler for site. A non-empty platform in the
// site configuration skips detection.
func NewMallCrawler(site config.SiteConfig, cacheSvc cache.CacheService, fetcher PageFetcher) (*MallCrawler, error) {
	platform, err := ParsePlatform(site.Platform)
	if err != nil {
		return nil, errors.NewConfiguration(site.Key+": "+err.Error(), nil)
	}

	return &MallCrawler{
		BaseCrawler: BaseCrawler{
			Site:     site,
			CacheKey: blockedKey(site.Key),
			CacheSvc: cacheSvc,
			Fetcher:  fetcher,
			log:      logger.ForSite(site.Key),
		},
		platform: platform,
		now:      time.Now,
	}, nil
}

// crawlState accumulates one run
type crawlState struct {
	snapshot  *Snapshot
	selectors resolvedSelectors
	seen      map[string]bool
	scrapedAt time.Time
}

func (s *crawlState) full(limit int) bool {
	return len(s.snapshot.Products) >= limit
}

func (s *crawlState) recordError(pageURL, stage string, err error) {
	errType := string(errors.TypeOf(err))
	if errType == "" {
		errType = "unknown"
	}
	s.snapshot.Errors = append(s.snapshot.Errors, ItemError{
		URL:     pageURL,
		Stage:   stage,
		Type:    errType,
		Message: err.Error(),
	})
}

// Crawl scrapes the mall
func (c *MallCrawler) Crawl(ctx context.Context) (*Snapshot, error) {
	start := c.now()
	state := &crawlState{
		snapshot: &Snapshot{
			Site:       c.Site.Key,
			Name:       c.Site.Name,
			Region:     c.Site.Region,
			URL:        c.Site.URL,
			Platform:   PlatformUnknown,
			ScrapedAt:  start,
			Categories: []Category{},
			Products:   []Product{},
		},
		seen:      make(map[string]bool),
		scrapedAt: start,
	}
	defer func() {
		state.snapshot.Duration = c.now().Sub(start)
	}()

	doc, page, err := c.fetchDocument(ctx, c.Site.URL)
	if err != nil {
		state.recordError(c.Site.URL, StageHomepage, err)
		return state.snapshot, err
	}

	platform := c.platform
	if platform == "" {
		platform = DetectPlatform(string(page.Body), page.URL)
	}
	state.snapshot.Platform = platform
	state.selectors = resolveSelectors(c.Site.Selectors, platform)

	c.logger().Info().
		Str("platform", string(platform)).
		Str("encoding", page.Encoding).
		Msg("Fetched homepage")

	categories := c.extractCategories(doc, page.URL, state.selectors.CategoryLinks)
	if len(categories) == 0 {
		c.logger().Warn().Msg("No category links found, treating homepage as the listing")
		home := Category{ID: "home", Name: "전체", URL: page.URL}
		added := c.collectPage(doc, page.URL, &home, state)
		home.ProductCount = added
		state.snapshot.Categories = append(state.snapshot.Categories, home)
		if added == 0 {
			state.recordError(page.URL, StageCategory, errors.NewSelector(c.Site.Key, "product list"))
		}
		return state.snapshot, nil
	}

	for i := range categories {
		if state.full(c.Site.MaxProducts) {
			break
		}
		if err := c.crawlCategory(ctx, &categories[i], state); err != nil {
			state.snapshot.Categories = append(state.snapshot.Categories, categories[i:]...)
			return state.snapshot, err
		}
		state.snapshot.Categories = append(state.snapshot.Categories, categories[i])
	}

	c.logger().Info().
		Int("categories", len(state.snapshot.Categories)).
		Int("products", len(state.snapshot.Products)).
		Int("errors", len(state.snapshot.Errors)).
		Msg("Crawl finished")

	return state.snapshot, nil
}

// crawlCategory walks the category's pages until one adds no new product.
// Only cancellation and rate limiting abort the whole mall.
func (c *MallCrawler) crawlCategory(ctx context.Context, category *Category, state *crawlState) error {
	for page := 1; page <= c.Site.MaxPages; page++ {
		if state.full(c.Site.MaxProducts) {
			return nil
		}

		pageURL := PageURL(category.URL, c.Site.PageParam, page)
		doc, fetched, err := c.fetchDocument(ctx, pageURL)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			state.recordError(pageURL, StageCategory, err)
			c.logger().Warn().Err(err).Str("url", pageURL).Msg("Failed to fetch category page")
			if errors.IsRateLimited(err) {
				return err
			}
			return nil
		}

		items, _ := state.selectors.ProductList.Find(doc)
		if items.Length() == 0 {
			if page == 1 {
				state.recordError(pageURL, StageCategory, errors.NewSelector(c.Site.Key, "product list"))
			}
			return nil
		}

		added := c.collectPage(doc, fetched.URL, category, state)
		category.ProductCount += added

		c.logger().Debug().
			Str("category", category.Name).
			Int("page", page).
			Int("items", items.Length()).
			Int("added", added).
			Msg("Processed listing page")

		if added == 0 {
			return nil
		}
	}
	return nil
}

// collectPage extracts the products of one listing page into state and
// returns how many new products were added.
func (c *MallCrawler) collectPage(doc *goquery.Document, pageURL string, category *Category, state *crawlState) int {
	items, _ := state.selectors.ProductList.Find(doc)
	if items.Length() == 0 {
		return 0
	}

	products, errs := c.processProducts(items, func(s *goquery.Selection) (*Product, error) {
		return c.processProduct(s, pageURL, category.Name, state)
	})
	for _, err := range errs {
		state.recordError(pageURL, StageProduct, err)
	}

	added := 0
	for _, product := range products {
		if state.full(c.Site.MaxProducts) {
			break
		}
		if state.seen[product.ID] {
			continue
		}
		state.seen[product.ID] = true
		state.snapshot.Products = append(state.snapshot.Products, product)
		added++
	}
	return added
}

// extractCategories returns de-duplicated same-site category links
func (c *MallCrawler) extractCategories(doc *goquery.Document, pageURL string, cascade Cascade) []Category {
	links, _ := cascade.Find(doc)

	seen := make(map[string]bool)
	var categories []Category
	links.EachWithBreak(func(_ int, s *goquery.Selection) bool {
		if len(categories) >= c.Site.MaxCategories {
			return false
		}

		href, _ := s.Attr("href")
		link := ResolveURL(pageURL, href)
		if link == "" || !SameSite(link, pageURL) {
			return true
		}
		if c.Site.CategoryPattern != "" && !strings.Contains(link, c.Site.CategoryPattern) {
			return true
		}

		link = CanonicalURL(link)
		if seen[link] || link == CanonicalURL(pageURL) {
			return true
		}

		name := CleanText(s.Text())
		if name == "" {
			name = CleanText(s.AttrOr("title", ""))
		}
		if name == "" {
			return true
		}

		seen[link] = true
		categories = append(categories, Category{
			ID:   CategoryID(link),
			Name: name,
			URL:  link,
		})
		return true
	})
	return categories
}

// processProduct extracts one product container. Containers without a
// name are skipped.
func (c *MallCrawler) processProduct(s *goquery.Selection, pageURL, categoryName string, state *crawlState) (*Product, error) {
	sel := state.selectors

	name := sel.Title.Text(s)
	if name == "" {
		name = CleanText(sel.Image.Attr(s, "alt", "title"))
	}
	if name == "" {
		return nil, nil
	}

	href := sel.Link.Attr(s, "href")
	if href == "" && goquery.NodeName(s) == "a" {
		href = s.AttrOr("href", "")
	}
	link := ResolveURL(pageURL, href)

	var id string
	if link == "" {
		// No usable link: anchor the product to its listing page.
		id = HashID(categoryName + "|" + name)
		link = pageURL
	} else {
		link = CanonicalURL(link)
		id = ExtractProductID(link)
	}

	priceText := sel.Price.Text(s)
	price, original := SplitPrices(priceText)
	if explicit := ParsePrice(sel.OriginalPrice.Text(s)); explicit > price && price > 0 {
		original = explicit
	}

	image := ResolveURL(pageURL, sel.Image.Attr(s, imageAttrs...))

	if price < 0 {
		return nil, fmt.Errorf("negative price %d for %s", price, name)
	}

	return &Product{
		ID:            id,
		Name:          name,
		Price:         price,
		OriginalPrice: original,
		PriceText:     priceText,
		ImageURL:      image,
		URL:           link,
		Category:      categoryName,
		Mall:          c.Site.Name,
		Region:        c.Site.Region,
		Platform:      state.snapshot.Platform,
		ScrapedAt:     state.scrapedAt,
	}, nil
}
