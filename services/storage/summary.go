package storage

import (
	"time"

	"sjsage522/mallcrawler/internal/crawler"
)

// maxSamples is the number of products copied into a summary
const maxSamples = 5

// Summary is derived from a Snapshot alone
type Summary struct {
	Site              string            `json:"site"`
	Name              string            `json:"name"`
	Region            string            `json:"region,omitempty"`
	Platform          crawler.Platform  `json:"platform"`
	ScrapedAt         time.Time         `json:"scraped_at"`
	DurationMS        int64             `json:"duration_ms"`
	TotalCategories   int               `json:"total_categories"`
	TotalProducts     int               `json:"total_products"`
	ProductsWithPrice int               `json:"products_with_price"`
	MinPrice          int               `json:"min_price"`
	MaxPrice          int               `json:"max_price"`
	AvgPrice          int               `json:"avg_price"`
	CategoryCounts    map[string]int    `json:"category_counts"`
	Samples           []crawler.Product `json:"samples"`
	ErrorCount        int               `json:"error_count"`
}

// BuildSummary computes counts, price statistics and samples. Products
// without a price are left out of the price statistics.
func BuildSummary(snapshot *crawler.Snapshot) *Summary {
	summary := &Summary{
		Site:            snapshot.Site,
		Name:            snapshot.Name,
		Region:          snapshot.Region,
		Platform:        snapshot.Platform,
		ScrapedAt:       snapshot.ScrapedAt,
		DurationMS:      snapshot.Duration.Milliseconds(),
		TotalCategories: len(snapshot.Categories),
		TotalProducts:   len(snapshot.Products),
		CategoryCounts:  make(map[string]int),
		Samples:         []crawler.Product{},
		ErrorCount:      len(snapshot.Errors),
	}

	total := 0
	for i, p := range snapshot.Products {
		if i < maxSamples {
			summary.Samples = append(summary.Samples, p)
		}
		if p.Category != "" {
			summary.CategoryCounts[p.Category]++
		}
		if p.Price <= 0 {
			continue
		}
		if summary.ProductsWithPrice == 0 || p.Price < summary.MinPrice {
			summary.MinPrice = p.Price
		}
		if p.Price > summary.MaxPrice {
			summary.MaxPrice = p.Price
		}
		summary.ProductsWithPrice++
		total += p.Price
	}
	if summary.ProductsWithPrice > 0 {
		summary.AvgPrice = total / summary.ProductsWithPrice
	}

	return summary
}
