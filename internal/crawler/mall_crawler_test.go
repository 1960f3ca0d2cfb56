package crawler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/korean"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/helpers"
	"sjsage522/mallcrawler/pkg/errors"
)

const cafe24Home = `<html><head><title>테스트몰</title></head><body>
<ul class="xans-element- xans-layout xans-layout-category">
	<li><a href="/product/list.html?cate_no=24">과일</a></li>
	<li><a href="/product/list.html?cate_no=24#top">과일</a></li>
	<li><a href="/product/list.html?cate_no=25">수산</a></li>
	<li><a href="https://other.example.com/product/list.html?cate_no=99">외부</a></li>
	<li><a href="javascript:void(0)">메뉴</a></li>
</ul>
</body></html>`

type fixtureProduct struct {
	no       int
	name     string
	price    string
	consumer string
}

func cafe24Listing(products ...fixtureProduct) string {
	var b strings.Builder
	b.WriteString(`<html><body><ul class="prdList grid4">`)
	for _, p := range products {
		fmt.Fprintf(&b, `<li id="anchorBoxId_%d">
			<div class="thumbnail"><a href="/product/detail.html?product_no=%d&cate_no=24"><img ec-data-src="/web/%d.jpg" src="/web/blank.gif" alt="%s"></a></div>
			<div class="description">
				<p class="name"><a href="/product/detail.html?product_no=%d"><span class="title">상품명</span> <span>%s</span></a></p>
				<ul class="xans-element- xans-product">`, p.no, p.no, p.no, p.name, p.no, p.name)
		if p.consumer != "" {
			fmt.Fprintf(&b, `<li rel="소비자가"><span>%s</span></li>`, p.consumer)
		}
		fmt.Fprintf(&b, `<li rel="판매가"><span>%s</span></li></ul></div></li>`, p.price)
	}
	b.WriteString(`</ul></body></html>`)
	return b.String()
}

var (
	apple  = fixtureProduct{no: 101, name: "사과 5kg", price: "12,900원", consumer: "15,000원"}
	pear   = fixtureProduct{no: 102, name: "배 3kg", price: "20,000원"}
	squid  = fixtureProduct{no: 103, name: "손질 오징어 1kg", price: "18,500원"}
	cafe24 = map[string]string{
		"24:1": cafe24Listing(apple),
		"24:2": cafe24Listing(pear),
		"24:3": cafe24Listing(pear),
		"25:1": cafe24Listing(squid, apple),
		"25:2": cafe24Listing(),
	}
)

func newCafe24Server(t *testing.T, listStatus int) (*httptest.Server, *int32) {
	var requests int32
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if r.URL.Path != "/" {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, cafe24Home)
	})
	mux.HandleFunc("/product/list.html", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		if listStatus != http.StatusOK {
			w.WriteHeader(listStatus)
			return
		}
		page := r.URL.Query().Get("page")
		if page == "" {
			page = "1"
		}
		body, ok := cafe24[r.URL.Query().Get("cate_no")+":"+page]
		if !ok {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, body)
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server, &requests
}

func testSite(url string) config.SiteConfig {
	return config.SiteConfig{
		Key:           "testmall",
		Name:          "테스트몰",
		Region:        "전남",
		URL:           url,
		PageParam:     "page",
		MaxPages:      5,
		MaxCategories: 10,
		MaxProducts:   100,
		DelayMS:       1,
		BlockSeconds:  60,
	}
}

func newTestMallCrawler(t *testing.T, site config.SiteConfig, cacheSvc *MockCacheService, fetcher PageFetcher) *MallCrawler {
	c, err := NewMallCrawler(site, cacheSvc, fetcher)
	require.NoError(t, err)
	return c
}

func TestMallCrawlerCafe24(t *testing.T) {
	server, requests := newCafe24Server(t, http.StatusOK)
	fetcher := helpers.NewFetcher(5*time.Second, helpers.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond})
	c := newTestMallCrawler(t, testSite(server.URL), NewMockCacheService(), fetcher)

	snapshot, err := c.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "testmall", snapshot.Site)
	assert.Equal(t, PlatformCafe24, snapshot.Platform)
	assert.Empty(t, snapshot.Errors)

	require.Len(t, snapshot.Categories, 2)
	assert.Equal(t, "24", snapshot.Categories[0].ID)
	assert.Equal(t, "과일", snapshot.Categories[0].Name)
	assert.Equal(t, 2, snapshot.Categories[0].ProductCount)
	assert.Equal(t, "수산", snapshot.Categories[1].Name)
	assert.Equal(t, 1, snapshot.Categories[1].ProductCount)

	require.Len(t, snapshot.Products, 3)
	first := snapshot.Products[0]
	assert.Equal(t, "101", first.ID)
	assert.Equal(t, "사과 5kg", first.Name)
	assert.Equal(t, 12900, first.Price)
	assert.Equal(t, 15000, first.OriginalPrice)
	assert.Equal(t, "과일", first.Category)
	assert.Equal(t, "테스트몰", first.Mall)
	assert.Equal(t, "전남", first.Region)
	assert.Equal(t, PlatformCafe24, first.Platform)
	assert.Equal(t, server.URL+"/product/detail.html?product_no=101&cate_no=24", first.URL)
	assert.Equal(t, server.URL+"/web/101.jpg", first.ImageURL)

	assert.Equal(t, "102", snapshot.Products[1].ID)
	assert.Equal(t, 20000, snapshot.Products[1].Price)
	assert.Zero(t, snapshot.Products[1].OriginalPrice)
	assert.Equal(t, "103", snapshot.Products[2].ID)
	assert.Equal(t, "수산", snapshot.Products[2].Category)

	// home, 24 pages 1-3, 25 pages 1-2
	assert.Equal(t, int32(6), atomic.LoadInt32(requests))
}

func TestMallCrawlerRateLimitBlocksSite(t *testing.T) {
	server, requests := newCafe24Server(t, http.StatusTooManyRequests)
	fetcher := helpers.NewFetcher(5*time.Second, helpers.RetryPolicy{MaxRetries: 2, BaseDelay: time.Millisecond})
	cacheSvc := NewMockCacheService()
	c := newTestMallCrawler(t, testSite(server.URL), cacheSvc, fetcher)

	snapshot, err := c.Crawl(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
	assert.Len(t, snapshot.Categories, 2)
	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, StageCategory, snapshot.Errors[0].Stage)
	assert.Equal(t, "rate_limit", snapshot.Errors[0].Type)

	_, err = cacheSvc.Get(blockedKey("testmall"))
	require.NoError(t, err)
	// home and the first listing; rate limits are not retried
	assert.Equal(t, int32(2), atomic.LoadInt32(requests))

	_, err = c.Crawl(context.Background())
	require.Error(t, err)
	assert.True(t, errors.IsRateLimited(err))
	assert.Equal(t, int32(2), atomic.LoadInt32(requests))
}

func TestMallCrawlerEUCKRHomepageListing(t *testing.T) {
	html := `<html><head><meta charset="euc-kr"><title>농사랑</title></head><body>
<ul class="goods_list">
	<li><a href="/product/5"><span class="goods_name">고구마 5kg</span></a><span class="sale_price">23,000원</span></li>
	<li><a href="/product/6"><span class="goods_name">감자 10kg</span></a><span class="sale_price">19,900원</span></li>
</ul></body></html>`
	encoded, err := korean.EUCKR.NewEncoder().String(html)
	require.NoError(t, err)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=euc-kr")
		fmt.Fprint(w, encoded)
	}))
	defer server.Close()

	site := testSite(server.URL)
	site.Encoding = "euc-kr"
	fetcher := helpers.NewFetcher(5*time.Second, helpers.RetryPolicy{MaxRetries: 0, BaseDelay: time.Millisecond})
	c := newTestMallCrawler(t, site, NewMockCacheService(), fetcher)

	snapshot, err := c.Crawl(context.Background())
	require.NoError(t, err)

	assert.Equal(t, PlatformUnknown, snapshot.Platform)
	require.Len(t, snapshot.Categories, 1)
	assert.Equal(t, "전체", snapshot.Categories[0].Name)
	assert.Equal(t, 2, snapshot.Categories[0].ProductCount)

	require.Len(t, snapshot.Products, 2)
	assert.Equal(t, "고구마 5kg", snapshot.Products[0].Name)
	assert.Equal(t, "5", snapshot.Products[0].ID)
	assert.Equal(t, 23000, snapshot.Products[0].Price)
	assert.Equal(t, "감자 10kg", snapshot.Products[1].Name)
	assert.Equal(t, 19900, snapshot.Products[1].Price)
}

const mockHome = "https://mall.example.com/"

func mockMall() *mockFetcher {
	fetcher := newMockFetcher()
	fetcher.pages[mockHome] = cafe24Home
	fetcher.pages["https://mall.example.com/product/list.html?cate_no=24"] = cafe24Listing(apple, pear)
	fetcher.pages["https://mall.example.com/product/list.html?cate_no=24&page=2"] = cafe24Listing()
	fetcher.pages["https://mall.example.com/product/list.html?cate_no=25"] = cafe24Listing(squid)
	fetcher.pages["https://mall.example.com/product/list.html?cate_no=25&page=2"] = cafe24Listing()
	return fetcher
}

func TestMallCrawlerHomepageFailure(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.errs[mockHome] = errors.NewHTTP("testmall", http.StatusNotFound, mockHome)
	c := newTestMallCrawler(t, testSite(mockHome), NewMockCacheService(), fetcher)

	snapshot, err := c.Crawl(context.Background())
	require.Error(t, err)
	require.NotNil(t, snapshot)
	assert.Empty(t, snapshot.Products)
	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, StageHomepage, snapshot.Errors[0].Stage)
	assert.Equal(t, "http", snapshot.Errors[0].Type)
}

func TestMallCrawlerCategoryFailureContinues(t *testing.T) {
	fetcher := mockMall()
	fetcher.errs["https://mall.example.com/product/list.html?cate_no=24"] = errors.NewHTTP("testmall", http.StatusInternalServerError, "list")
	c := newTestMallCrawler(t, testSite(mockHome), NewMockCacheService(), fetcher)

	snapshot, err := c.Crawl(context.Background())
	require.NoError(t, err)

	require.Len(t, snapshot.Products, 1)
	assert.Equal(t, "103", snapshot.Products[0].ID)
	require.Len(t, snapshot.Errors, 1)
	assert.Equal(t, StageCategory, snapshot.Errors[0].Stage)
	assert.Len(t, snapshot.Categories, 2)
}

func TestMallCrawlerMaxProducts(t *testing.T) {
	site := testSite(mockHome)
	site.MaxProducts = 2
	c := newTestMallCrawler(t, site, NewMockCacheService(), mockMall())

	snapshot, err := c.Crawl(context.Background())
	require.NoError(t, err)
	assert.Len(t, snapshot.Products, 2)
	assert.Len(t, snapshot.Categories, 1)
}

func TestMallCrawlerMaxCategories(t *testing.T) {
	site := testSite(mockHome)
	site.MaxCategories = 1
	c := newTestMallCrawler(t, site, NewMockCacheService(), mockMall())

	snapshot, err := c.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Categories, 1)
	assert.Equal(t, "24", snapshot.Categories[0].ID)
	assert.Len(t, snapshot.Products, 2)
}

func TestMallCrawlerCategoryPattern(t *testing.T) {
	site := testSite(mockHome)
	site.CategoryPattern = "cate_no=25"
	c := newTestMallCrawler(t, site, NewMockCacheService(), mockMall())

	snapshot, err := c.Crawl(context.Background())
	require.NoError(t, err)
	require.Len(t, snapshot.Categories, 1)
	assert.Equal(t, "수산", snapshot.Categories[0].Name)
}

func TestMallCrawlerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	c := newTestMallCrawler(t, testSite(mockHome), NewMockCacheService(), mockMall())
	_, err := c.Crawl(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewMallCrawlerRejectsUnknownPlatform(t *testing.T) {
	site := testSite(mockHome)
	site.Platform = "shopify"
	_, err := NewMallCrawler(site, NewMockCacheService(), newMockFetcher())
	assert.Error(t, err)
}

func TestCreateCrawlers(t *testing.T) {
	cfg := &config.Config{MaxPages: 3, MaxCategories: 5, MaxProducts: 50, RequestDelay: time.Second, BlockTime: time.Minute}
	sites := []config.SiteConfig{
		{Key: "a", Name: "A", URL: "https://a.kr"},
		{Key: "b", Name: "B", URL: "https://b.kr", Disabled: true},
		{Key: "c", Name: "C", URL: "https://c.kr", Platform: "nope"},
		{Key: "d", Name: "D", URL: "https://d.kr", Platform: "godo"},
	}

	crawlers := CreateCrawlers(cfg, sites, NewMockCacheService(), newMockFetcher())
	require.Len(t, crawlers, 2)
	assert.Equal(t, "a", crawlers[0].GetProvider())
	assert.Equal(t, "D", crawlers[1].GetName())

	mall := crawlers[0].(*MallCrawler)
	assert.Equal(t, 3, mall.Site.MaxPages)
	assert.Equal(t, "page", mall.Site.PageParam)
	assert.Equal(t, time.Second, mall.Site.Delay())
}

func TestInspect(t *testing.T) {
	fetcher := newMockFetcher()
	fetcher.pages[mockHome] = cafe24Home

	inspection, err := Inspect(context.Background(), fetcher, mockHome, "")
	require.NoError(t, err)
	assert.Equal(t, PlatformCafe24, inspection.Platform)
	assert.Equal(t, "테스트몰", inspection.Title)
	require.NotEmpty(t, inspection.CategoryLinks)
	assert.Equal(t, "ul.xans-layout-category li a", inspection.CategoryLinks[0].Selector)
	assert.Equal(t, 5, inspection.CategoryLinks[0].Matches)

	// each selector of the resolved cascade is reported once, in cascade order
	resolved := resolveSelectors(config.Selectors{}, PlatformCafe24)
	seen := make(map[string]bool)
	last := -1
	for _, m := range inspection.ProductLists {
		assert.False(t, seen[m.Selector], m.Selector)
		seen[m.Selector] = true
		idx := indexOf(resolved.ProductList, m.Selector)
		assert.Greater(t, idx, last, m.Selector)
		last = idx
	}
}

func indexOf(cascade Cascade, sel string) int {
	for i, s := range cascade {
		if s == sel {
			return i
		}
	}
	return -1
}
