package crawler

import (
	"bytes"
	"context"

	"github.com/PuerkitoBio/goquery"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/pkg/errors"
)

// SelectorMatch is one selector of a cascade and how many elements it matched
type SelectorMatch struct {
	Selector string `json:"selector"`
	Matches  int    `json:"matches"`
}

// Inspection describes what the crawler would see on a page
type Inspection struct {
	URL           string          `json:"url"`
	Encoding      string          `json:"encoding"`
	Platform      Platform        `json:"platform"`
	Title         string          `json:"title"`
	CategoryLinks []SelectorMatch `json:"category_links"`
	ProductLists  []SelectorMatch `json:"product_lists"`
}

// Inspect fetches pageURL, detects its platform and reports which of the
// resolved category and product list selectors match.
func Inspect(ctx context.Context, fetcher PageFetcher, pageURL, encoding string) (*Inspection, error) {
	page, err := fetcher.Fetch(ctx, "detect", pageURL, encoding)
	if err != nil {
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, errors.NewParsing("detect", "HTML parsing error", err)
	}

	platform := DetectPlatform(string(page.Body), page.URL)
	selectors := resolveSelectors(config.Selectors{}, platform)

	return &Inspection{
		URL:           page.URL,
		Encoding:      page.Encoding,
		Platform:      platform,
		Title:         CleanText(doc.Find("title").First().Text()),
		CategoryLinks: countMatches(doc, selectors.CategoryLinks),
		ProductLists:  countMatches(doc, selectors.ProductList),
	}, nil
}

func countMatches(doc *goquery.Document, cascade Cascade) []SelectorMatch {
	var matches []SelectorMatch
	for _, sel := range cascade {
		if n := doc.Find(sel).Length(); n > 0 {
			matches = append(matches, SelectorMatch{Selector: sel, Matches: n})
		}
	}
	return matches
}
