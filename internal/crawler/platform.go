package crawler

import (
	"fmt"
	"strings"

	"sjsage522/mallcrawler/config"
)

// Platform is the storefront software a mall runs on
type Platform string

const (
	PlatformUnknown   Platform = "unknown"
	PlatformCYSO      Platform = "cyso"
	PlatformCafe24    Platform = "cafe24"
	PlatformGodo      Platform = "godo"
	PlatformFirstmall Platform = "firstmall"
	PlatformMakeshop  Platform = "makeshop"
	PlatformYoungcart Platform = "youngcart"
)

type fingerprint struct {
	platform Platform
	markers  []string
}

// Order breaks ties: earlier entries win.
var fingerprints = []fingerprint{
	{PlatformCafe24, []string{"cafe24", "xans-", "ec-base-", "/product/list.html", "/product/detail.html"}},
	{PlatformGodo, []string{"godomall", "godo.co.kr", "/goods/goods_list.php", "/goods/goods_view.php"}},
	{PlatformCYSO, []string{"cyso", "/goods/list.do", "/goods/view.do"}},
	{PlatformFirstmall, []string{"firstmall", "/goods/catalog?code=", "/goods/view?no="}},
	{PlatformMakeshop, []string{"makeshop", "/shop/shopbrand.html", "/shop/shopdetail.html"}},
	{PlatformYoungcart, []string{"youngcart", "/shop/list.php?ca_id=", "/shop/item.php?it_id=", "sct_li"}},
}

// ParsePlatform maps a configured platform name to a Platform.
// The empty string means "detect".
func ParsePlatform(name string) (Platform, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return "", nil
	}
	if Platform(name) == PlatformUnknown {
		return PlatformUnknown, nil
	}
	for _, fp := range fingerprints {
		if Platform(name) == fp.platform {
			return fp.platform, nil
		}
	}
	return "", fmt.Errorf("unknown platform %q", name)
}

// DetectPlatform fingerprints a page by counting platform markers in
// its HTML and URL. The platform with the most markers wins.
func DetectPlatform(html, pageURL string) Platform {
	haystack := strings.ToLower(html) + "\n" + strings.ToLower(pageURL)

	best, bestScore := PlatformUnknown, 0
	for _, fp := range fingerprints {
		score := 0
		for _, marker := range fp.markers {
			if strings.Contains(haystack, marker) {
				score++
			}
		}
		if score > bestScore {
			best, bestScore = fp.platform, score
		}
	}
	return best
}

var platformPresets = map[Platform]config.Selectors{
	PlatformCafe24: {
		CategoryLinks: []string{"ul.xans-layout-category li a", "#category a[href*='cate_no']", "a[href*='/product/list.html']"},
		ProductList:   []string{"ul.prdList > li", "ul.xans-product-listnormal > li", "div.xans-product-normalpackage li[id^='anchorBoxId_']"},
		Title:         []string{".description .name a span:last-child", ".description .name a", ".name"},
		Price:         []string{"li[rel='판매가'] span", "li.xans-record- span.price", ".price"},
		OriginalPrice: []string{"li[rel='소비자가'] span", ".custom"},
		Image:         []string{".thumbnail img", ".prdImg img"},
		Link:          []string{".thumbnail a", ".description .name a", ".prdImg a"},
	},
	PlatformGodo: {
		CategoryLinks: []string{"a[href*='goods_list.php?cateCd']", "#gnb a[href*='cateCd']"},
		ProductList:   []string{"div.item_gallery_type ul li", "div.goods_list_cont .item_cont", "ul.goods_list li"},
		Title:         []string{".item_name", ".item_tit_box strong", ".txt strong"},
		Price:         []string{".item_money_box strong", ".item_price span", ".price"},
		OriginalPrice: []string{".item_money_box del", ".item_price del"},
		Image:         []string{".item_photo_box img", ".thumbnail img"},
		Link:          []string{".item_photo_box a", ".item_tit_box a", "a[href*='goods_view.php']"},
	},
	PlatformCYSO: {
		CategoryLinks: []string{"a[href*='/goods/list.do']", "#gnb a[href*='cate']"},
		ProductList:   []string{"ul.goods_list > li", "ul.prd_list > li", "div.goods_item"},
		Title:         []string{".goods_name", ".prd_name", ".name"},
		Price:         []string{".sale_price", ".price strong", ".price"},
		OriginalPrice: []string{".consumer_price", "del"},
		Image:         []string{".goods_img img", ".thumb img"},
		Link:          []string{"a[href*='view.do']", ".goods_img a", "a"},
	},
	PlatformFirstmall: {
		CategoryLinks: []string{"a[href*='/goods/catalog?code=']"},
		ProductList:   []string{"ul.goods_list li.gl_item", "div.displayTabContentsContainer li", "li.goods_list_item"},
		Title:         []string{".gl_name a", ".goods_name", ".name"},
		Price:         []string{".gl_price .num", ".sale_price .num", ".price"},
		OriginalPrice: []string{".gl_consumer_price .num", ".consumer_price .num"},
		Image:         []string{".gl_image img", "img.goodsDisplayImage"},
		Link:          []string{".gl_name a", "a[href*='/goods/view']"},
	},
	PlatformMakeshop: {
		CategoryLinks: []string{"a[href*='shopbrand.html?xcode']"},
		ProductList:   []string{"div.item-list li", "ul.prd-list > li", "table.product_table td.prd"},
		Title:         []string{".prd-name", ".item-name", ".name"},
		Price:         []string{".prd-price", ".item-price", ".price"},
		OriginalPrice: []string{".prd-consumer", "strike"},
		Image:         []string{".thumb img", ".prd-img img"},
		Link:          []string{"a[href*='shopdetail.html']", ".thumb a"},
	},
	PlatformYoungcart: {
		CategoryLinks: []string{"a[href*='list.php?ca_id']"},
		ProductList:   []string{"ul.sct li.sct_li", "li.sct_li"},
		Title:         []string{".sct_txt a", ".sct_txt"},
		Price:         []string{".sct_cost"},
		OriginalPrice: []string{".sct_cost strike", ".sct_discount"},
		Image:         []string{".sct_img img"},
		Link:          []string{".sct_img a", ".sct_txt a"},
	},
}

// genericSelectors are tried after the site's own and the platform's
var genericSelectors = config.Selectors{
	CategoryLinks: []string{"nav a[href*='cate']", "a[href*='category']", "a[href*='cate']"},
	ProductList:   []string{"ul.goods_list > li", "ul.product-list > li", ".product-item", ".goods-item", "ul.prdList > li", "li.item"},
	Title:         []string{".goods_name", ".product-name", ".prd_name", ".name", ".title", "h3", "h4"},
	Price:         []string{".sale_price", ".sell_price", ".price", "[class*='price']"},
	OriginalPrice: []string{".consumer_price", ".org_price", "del", "strike", "s"},
	Image:         []string{"img"},
	Link:          []string{"a[href]"},
}

// PlatformPreset returns the selector preset of p
func PlatformPreset(p Platform) config.Selectors {
	return platformPresets[p]
}

// resolvedSelectors holds the final cascade per field for one site
type resolvedSelectors struct {
	CategoryLinks Cascade
	ProductList   Cascade
	Title         Cascade
	Price         Cascade
	OriginalPrice Cascade
	Image         Cascade
	Link          Cascade
}

// resolveSelectors layers site selectors over the platform preset over
// the generic fallbacks.
func resolveSelectors(site config.Selectors, p Platform) resolvedSelectors {
	preset := platformPresets[p]
	return resolvedSelectors{
		CategoryLinks: MergeCascades(site.CategoryLinks, preset.CategoryLinks, genericSelectors.CategoryLinks),
		ProductList:   MergeCascades(site.ProductList, preset.ProductList, genericSelectors.ProductList),
		Title:         MergeCascades(site.Title, preset.Title, genericSelectors.Title),
		Price:         MergeCascades(site.Price, preset.Price, genericSelectors.Price),
		OriginalPrice: MergeCascades(site.OriginalPrice, preset.OriginalPrice, genericSelectors.OriginalPrice),
		Image:         MergeCascades(site.Image, preset.Image, genericSelectors.Image),
		Link:          MergeCascades(site.Link, preset.Link, genericSelectors.Link),
	}
}
