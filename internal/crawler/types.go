package crawler

import (
	"context"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Product represents a scraped mall product
type Product struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Price         int       `json:"price"`
	OriginalPrice int       `json:"original_price,omitempty"`
	PriceText     string    `json:"price_text,omitempty"`
	ImageURL      string    `json:"image_url,omitempty"`
	URL           string    `json:"url"`
	Category      string    `json:"category,omitempty"`
	Mall          string    `json:"mall"`
	Region        string    `json:"region,omitempty"`
	Platform      Platform  `json:"platform"`
	ScrapedAt     time.Time `json:"scraped_at"`
}

// Category is a listing page discovered on a mall homepage
type Category struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	URL          string `json:"url"`
	ProductCount int    `json:"product_count"`
}

// Stages at which an ItemError can occur
const (
	StageHomepage = "homepage"
	StageCategory = "category"
	StageProduct  = "product"
)

// ItemError records a failure that was skipped while crawling
type ItemError struct {
	URL     string `json:"url"`
	Stage   string `json:"stage"`
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Snapshot is everything scraped from one mall in one run
type Snapshot struct {
	Site       string        `json:"site"`
	Name       string        `json:"name"`
	Region     string        `json:"region,omitempty"`
	URL        string        `json:"url"`
	Platform   Platform      `json:"platform"`
	ScrapedAt  time.Time     `json:"scraped_at"`
	Duration   time.Duration `json:"duration"`
	Categories []Category    `json:"categories"`
	Products   []Product     `json:"products"`
	Errors     []ItemError   `json:"errors,omitempty"`
}

// Crawler interface defines the contract for all crawler implementations
type Crawler interface {
	// Crawl scrapes the mall and returns what was collected. A non-nil
	// error means the run was cut short; the snapshot still holds
	// whatever was gathered before that.
	Crawl(ctx context.Context) (*Snapshot, error)

	// GetName returns the mall's display name for logging
	GetName() string

	// GetProvider returns the site key used for cache keys and files
	GetProvider() string
}

// ProcessorFunc defines the function signature for processing a single product container
type ProcessorFunc func(*goquery.Selection) (*Product, error)
