package cache

import (
	stderrors "errors"
	"time"

	"sjsage522/mallcrawler/logger"
)

// ErrCacheMiss is returned by Get when the key is absent or expired
var ErrCacheMiss = stderrors.New("cache: miss")

// CacheService represents a generic cache service
type CacheService interface {
	// Get retrieves a value from the cache
	Get(key string) ([]byte, error)

	// Set stores a value in the cache with an expiration time
	Set(key string, value []byte, expiration time.Duration) error

	// Delete removes a value from the cache
	Delete(key string) error
}

// SeenKey is the key marking a product as already published
func SeenKey(siteKey, productID string) string {
	return "seen:" + siteKey + ":" + productID
}

// New returns a memcache-backed service for addr, or an in-process one
// when addr is empty.
func New(addr string) CacheService {
	if addr == "" {
		logger.ForCache().Info().Msg("No memcache address configured, using in-process cache")
		return NewMemoryService()
	}
	logger.ForCache().Info().Str("addr", addr).Msg("Using memcache")
	return NewMemcacheService(addr)
}
