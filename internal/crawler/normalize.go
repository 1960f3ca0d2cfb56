package crawler

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"sjsage522/mallcrawler/helpers"
)

const maxPrice = 1_000_000_000

var (
	priceToken   = regexp.MustCompile(`(\d[\d,]*)\s*(원|%|(?i:kg|g|ml|l)|개|입|\+)?`)
	numericToken = regexp.MustCompile(`^\d+$`)

	// Query parameters that carry a product identifier on the platforms we crawl
	productIDParams = []string{"product_no", "goodsNo", "goods_no", "goodsno", "it_id", "branduid", "no", "idx", "pno", "product_id", "gno"}
)

// CleanText collapses whitespace and trims
func CleanText(s string) string {
	return helpers.CleanString(s)
}

// amountQualifiers mark an amount that is not the product price when they
// directly precede it: unit prices ("100g당 1,075원"), reward points
// ("적립금 129원") and bundle counts ("1+1").
var amountQualifiers = []string{"당", "적립", "적립금", "+"}

// PriceCandidates returns every amount in text, in order of appearance.
// Percentages, quantities ("100g", "2개") and implausible values are
// skipped. When any amount is written in 원 only those are returned.
func PriceCandidates(text string) []int {
	var all, won []int
	for _, m := range priceToken.FindAllStringSubmatchIndex(text, -1) {
		unit := ""
		if m[4] >= 0 {
			unit = text[m[4]:m[5]]
		}
		if unit != "" && unit != "원" {
			continue
		}
		if qualified(text[:m[0]]) {
			continue
		}

		value, err := strconv.Atoi(strings.ReplaceAll(text[m[2]:m[3]], ",", ""))
		if err != nil || value <= 0 || value >= maxPrice {
			continue
		}
		all = append(all, value)
		if unit == "원" {
			won = append(won, value)
		}
	}

	if len(won) > 0 {
		return won
	}
	return all
}

func qualified(prefix string) bool {
	prefix = strings.TrimRight(prefix, " \t:")
	for _, q := range amountQualifiers {
		if strings.HasSuffix(prefix, q) {
			return true
		}
	}
	return false
}

// ParsePrice strips everything but digits from the first amount in text
// ("12,900원" -> 12900). It returns 0 when no amount is present.
func ParsePrice(text string) int {
	prices := PriceCandidates(text)
	if len(prices) == 0 {
		return 0
	}
	return prices[0]
}

// SplitPrices derives the sale and original price from a price block that
// may show both. With several amounts the lowest is the sale price and
// the highest the original; original is 0 when only one amount exists.
func SplitPrices(text string) (sale, original int) {
	prices := PriceCandidates(text)
	switch len(prices) {
	case 0:
		return 0, 0
	case 1:
		return prices[0], 0
	}

	sale, original = prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < sale {
			sale = p
		}
		if p > original {
			original = p
		}
	}
	if original == sale {
		original = 0
	}
	return sale, original
}

// ResolveURL makes href absolute against base. Script, anchor, mail and
// phone links resolve to "".
func ResolveURL(base, href string) string {
	href = strings.TrimSpace(href)
	lower := strings.ToLower(href)
	if href == "" || strings.HasPrefix(href, "#") ||
		strings.HasPrefix(lower, "javascript:") ||
		strings.HasPrefix(lower, "mailto:") ||
		strings.HasPrefix(lower, "tel:") ||
		strings.HasPrefix(lower, "data:") {
		return ""
	}

	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return ""
	}

	resolved := baseURL.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

// CanonicalURL drops the fragment so the same page is not crawled twice
func CanonicalURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	u.Fragment = ""
	u.RawFragment = ""
	return u.String()
}

// SameSite reports whether two absolute URLs share a host, ignoring "www."
func SameSite(a, b string) bool {
	ua, errA := url.Parse(a)
	ub, errB := url.Parse(b)
	if errA != nil || errB != nil {
		return false
	}
	return strings.TrimPrefix(strings.ToLower(ua.Hostname()), "www.") ==
		strings.TrimPrefix(strings.ToLower(ub.Hostname()), "www.")
}

// PageURL returns the listing URL for the given page number. Page 1 is
// the category URL unchanged.
func PageURL(categoryURL, param string, page int) string {
	if page <= 1 {
		return categoryURL
	}
	u, err := url.Parse(categoryURL)
	if err != nil {
		return categoryURL
	}
	q := u.Query()
	q.Set(param, strconv.Itoa(page))
	u.RawQuery = q.Encode()
	return u.String()
}

// ExtractProductID pulls a stable identifier out of a product URL: a
// known query parameter, then the last numeric path segment, then a
// hash of the canonical URL.
func ExtractProductID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return HashID(link)
	}

	q := u.Query()
	for _, param := range productIDParams {
		if value := strings.TrimSpace(q.Get(param)); value != "" {
			return value
		}
	}

	segments := strings.Split(strings.Trim(u.Path, "/"), "/")
	// Cafe24 SEO links: /product/<slug>/<product_no>/category/...
	if len(segments) >= 3 && segments[0] == "product" && numericToken.MatchString(segments[2]) {
		return segments[2]
	}
	for i := len(segments) - 1; i >= 0; i-- {
		segment := strings.TrimSuffix(segments[i], path.Ext(segments[i]))
		if numericToken.MatchString(segment) {
			return segment
		}
	}

	return HashID(CanonicalURL(link))
}

// HashID returns a short stable identifier for s
func HashID(s string) string {
	sum := sha1.Sum([]byte(s))
	return hex.EncodeToString(sum[:])[:12]
}

// CategoryID derives an identifier for a category URL
func CategoryID(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return HashID(link)
	}
	q := u.Query()
	for _, param := range []string{"cate_no", "cateCd", "code", "ca_id", "xcode", "cate", "category"} {
		if value := strings.TrimSpace(q.Get(param)); value != "" {
			return value
		}
	}
	return HashID(CanonicalURL(link))
}
