package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"sjsage522/mallcrawler/pkg/errors"
)

// Config represents the application configuration
type Config struct {
	// Output configuration
	OutputDir    string
	SitesFile    string
	ErrorLogFile string

	// Fetch configuration
	RequestTimeout time.Duration
	RequestDelay   time.Duration
	MaxRetries     int
	RetryBaseDelay time.Duration
	BlockTime      time.Duration

	// Crawl limits applied to sites that do not set their own
	MaxPages      int
	MaxCategories int
	MaxProducts   int

	// Worker configuration
	CrawlInterval      time.Duration
	MaxConcurrentMalls int

	// Memcache configuration; empty means in-process cache
	MemcacheAddr string
	SeenTTL      time.Duration

	// Redis configuration
	PublishEnabled       bool
	RedisAddr            string
	RedisDB              int
	RedisStream          string
	RedisStreamCount     int
	RedisStreamMaxLength int

	// Environment
	Environment string
}

// LoadConfig loads the configuration from environment variables with defaults
func LoadConfig() *Config {
	outputDir := getEnv("OUTPUT_DIR", "output")

	return &Config{
		OutputDir:    outputDir,
		SitesFile:    getEnv("SITES_FILE", "sites.json5"),
		ErrorLogFile: getEnv("ERROR_LOG_FILE", filepath.Join(outputDir, "errors.log")),

		RequestTimeout: time.Duration(getEnvInt("REQUEST_TIMEOUT_SECONDS", 15)) * time.Second,
		RequestDelay:   time.Duration(getEnvInt("REQUEST_DELAY_MS", 1500)) * time.Millisecond,
		MaxRetries:     getEnvInt("MAX_RETRIES", 3),
		RetryBaseDelay: time.Duration(getEnvInt("RETRY_BASE_DELAY_MS", 1000)) * time.Millisecond,
		BlockTime:      time.Duration(getEnvInt("BLOCK_TIME_SECONDS", 600)) * time.Second,

		MaxPages:      getEnvInt("MAX_PAGES", 5),
		MaxCategories: getEnvInt("MAX_CATEGORIES", 30),
		MaxProducts:   getEnvInt("MAX_PRODUCTS", 2000),

		CrawlInterval:      time.Duration(getEnvInt("CRAWL_INTERVAL_SECONDS", 21600)) * time.Second,
		MaxConcurrentMalls: getEnvInt("MAX_CONCURRENT_MALLS", 4),

		MemcacheAddr: getEnv("MEMCACHE_ADDR", ""),
		SeenTTL:      time.Duration(getEnvInt("SEEN_TTL_HOURS", 168)) * time.Hour,

		PublishEnabled:       getEnvBool("PUBLISH_ENABLED", false),
		RedisAddr:            getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:              getEnvInt("REDIS_DB", 0),
		RedisStream:          getEnv("REDIS_STREAM", "mallproducts"),
		RedisStreamCount:     getEnvInt("REDIS_STREAM_COUNT", 1),
		RedisStreamMaxLength: getEnvInt("REDIS_STREAM_MAX_LENGTH", 10000),

		Environment: getEnv("MALL_ENVIRONMENT", "development"),
	}
}

// Validate checks that every limit and duration is usable
func (c *Config) Validate() error {
	switch {
	case c.OutputDir == "":
		return errors.NewConfiguration("OUTPUT_DIR must not be empty", nil)
	case c.RequestTimeout <= 0:
		return errors.NewConfiguration("REQUEST_TIMEOUT_SECONDS must be positive", nil)
	case c.RequestDelay < 0:
		return errors.NewConfiguration("REQUEST_DELAY_MS must not be negative", nil)
	case c.MaxRetries < 0:
		return errors.NewConfiguration("MAX_RETRIES must not be negative", nil)
	case c.MaxPages <= 0 || c.MaxCategories <= 0 || c.MaxProducts <= 0:
		return errors.NewConfiguration("MAX_PAGES, MAX_CATEGORIES and MAX_PRODUCTS must be positive", nil)
	case c.CrawlInterval <= 0:
		return errors.NewConfiguration("CRAWL_INTERVAL_SECONDS must be positive", nil)
	case c.MaxConcurrentMalls <= 0:
		return errors.NewConfiguration("MAX_CONCURRENT_MALLS must be positive", nil)
	case c.PublishEnabled && (c.RedisAddr == "" || c.RedisStream == "" || c.RedisStreamCount <= 0):
		return errors.NewConfiguration("REDIS_ADDR, REDIS_STREAM and REDIS_STREAM_COUNT are required when publishing", nil)
	}
	return nil
}

// IsProduction reports whether the worker runs in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvInt(key string, defaultValue int) int {
	value, err := strconv.Atoi(getEnv(key, ""))
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(getEnv(key, "")) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return defaultValue
}
