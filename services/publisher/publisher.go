package publisher

import (
	"context"

	"sjsage522/mallcrawler/config"
	"sjsage522/mallcrawler/logger"
)

// ProductField is the stream entry field carrying a base64 encoded product
const ProductField = "b64_product"

// Publisher represents a service for publishing messages
type Publisher interface {
	// Publish publishes a message to a stream
	Publish(key string, message []byte) error

	// TrimStreams trims all streams to the configured maximum length
	TrimStreams() error

	// Close closes the publisher connection
	Close() error
}

// New returns a Redis stream publisher when publishing is enabled and a
// NopPublisher otherwise.
func New(ctx context.Context, cfg *config.Config) Publisher {
	if !cfg.PublishEnabled {
		logger.ForPublisher().Info().Msg("Publishing disabled")
		return NopPublisher{}
	}
	logger.ForPublisher().Info().
		Str("addr", cfg.RedisAddr).
		Str("stream", cfg.RedisStream).
		Int("streams", cfg.RedisStreamCount).
		Msg("Publishing to Redis streams")
	return NewRedisPublisher(ctx, cfg.RedisAddr, cfg.RedisDB, cfg.RedisStream, cfg.RedisStreamCount, cfg.RedisStreamMaxLength)
}

// NopPublisher discards everything
type NopPublisher struct{}

func (NopPublisher) Publish(string, []byte) error { return nil }
func (NopPublisher) TrimStreams() error           { return nil }
func (NopPublisher) Close() error                 { return nil }
