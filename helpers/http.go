package helpers

import (
	"context"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"slices"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/net/idna"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/korean"
	"golang.org/x/text/transform"

	"sjsage522/mallcrawler/logger"
	"sjsage522/mallcrawler/pkg/errors"
)

const defaultMaxBodySize = 10 * 1024 * 1024

// HTTP header configurations
var (
	userAgents = []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:125.0) Gecko/20100101 Firefox/125.0",
	}

	referers = []string{
		"https://www.google.com/",
		"https://www.naver.com/",
		"https://www.daum.net/",
	}
)

// Page is a fetched document converted to UTF-8
type Page struct {
	URL         string
	Body        []byte
	ContentType string
	Encoding    string
}

// Fetcher issues browser-like GET requests against mall sites
type Fetcher struct {
	client      *http.Client
	retry       RetryPolicy
	maxBodySize int64
}

// NewFetcher creates a fetcher with the given per-request timeout
func NewFetcher(timeout time.Duration, retry RetryPolicy) *Fetcher {
	return &Fetcher{
		client:      &http.Client{Timeout: timeout},
		retry:       retry,
		maxBodySize: defaultMaxBodySize,
	}
}

// Fetch downloads rawURL, retrying transient failures, and returns the
// body as UTF-8. forcedEncoding overrides charset detection for legacy
// sites that mislabel EUC-KR pages.
func (f *Fetcher) Fetch(ctx context.Context, provider, rawURL, forcedEncoding string) (*Page, error) {
	target, err := NormalizeURL(rawURL)
	if err != nil {
		return nil, errors.NewValidation(provider, fmt.Sprintf("invalid url %q: %v", rawURL, err))
	}

	var page *Page
	err = f.retry.Do(ctx, provider, func() error {
		var fetchErr error
		page, fetchErr = f.fetchOnce(ctx, provider, target, forcedEncoding)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return page, nil
}

func (f *Fetcher) fetchOnce(ctx context.Context, provider, target, forcedEncoding string) (*Page, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.NewValidation(provider, fmt.Sprintf("failed to create request: %v", err))
	}
	setBrowserHeaders(req)

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, errors.NewNetwork(provider, "failed to fetch URL "+target, err)
	}
	defer resp.Body.Close()

	// Check for rate limiting
	if slices.Contains([]int{http.StatusTooManyRequests, 430}, resp.StatusCode) {
		return nil, errors.NewRateLimit(provider, resp.Header.Get("Retry-After"))
	}

	if resp.StatusCode != http.StatusOK {
		return nil, errors.NewHTTP(provider, resp.StatusCode, target)
	}

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBodySize+1))
	if err != nil {
		return nil, errors.NewNetwork(provider, "failed to read response body", err)
	}
	if int64(len(bodyBytes)) > f.maxBodySize {
		return nil, errors.NewParsing(provider, fmt.Sprintf("response body exceeds %d bytes", f.maxBodySize), nil)
	}

	contentType := resp.Header.Get("Content-Type")
	utf8Body, name, err := DecodeToUTF8(bodyBytes, contentType, forcedEncoding)
	if err != nil {
		return nil, errors.NewParsing(provider, "failed to convert body to UTF-8", err)
	}

	logger.Debug("fetched %s (%d bytes, %s)", target, len(utf8Body), name)

	return &Page{
		URL:         resp.Request.URL.String(),
		Body:        utf8Body,
		ContentType: contentType,
		Encoding:    name,
	}, nil
}

func setBrowserHeaders(req *http.Request) {
	req.Header.Set("User-Agent", userAgents[rand.IntN(len(userAgents))])
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,image/avif,image/webp,*/*;q=0.8")
	req.Header.Set("Accept-Language", "ko-KR,ko;q=0.9,en-US;q=0.8,en;q=0.7")
	req.Header.Set("Cache-Control", "no-cache")
	req.Header.Set("Pragma", "no-cache")
	req.Header.Set("Referer", referers[rand.IntN(len(referers))])
	req.Header.Set("Upgrade-Insecure-Requests", "1")
}

// DecodeToUTF8 converts body to UTF-8. A forced encoding wins over the
// Content-Type header and <meta> sniffing.
func DecodeToUTF8(body []byte, contentType, forcedEncoding string) ([]byte, string, error) {
	var enc encoding.Encoding
	var name string

	switch strings.ToLower(forcedEncoding) {
	case "euc-kr", "cp949":
		enc, name = korean.EUCKR, "euc-kr"
	case "utf-8":
		return body, "utf-8", nil
	default:
		enc, name, _ = charset.DetermineEncoding(body, contentType)
	}

	if strings.EqualFold(name, "utf-8") {
		return body, "utf-8", nil
	}

	decoded, _, err := transform.Bytes(enc.NewDecoder(), body)
	if err != nil {
		return nil, name, err
	}
	return decoded, name, nil
}

// NormalizeURL converts internationalized host names to punycode so
// domains like "여주몰.kr" can be dialed.
func NormalizeURL(rawURL string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return "", err
	}
	if u.Scheme == "" || u.Host == "" {
		return "", fmt.Errorf("url must be absolute")
	}

	host := u.Hostname()
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return "", err
	}
	if ascii != host {
		if port := u.Port(); port != "" {
			u.Host = ascii + ":" + port
		} else {
			u.Host = ascii
		}
	}
	return u.String(), nil
}
