package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents network-related errors (dial, timeout, reset)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeHTTP represents a non-200 response that is not a rate limit
	ErrorTypeHTTP ErrorType = "http"
	// ErrorTypeParsing represents HTML parsing or decoding errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeSelector represents a selector cascade that matched nothing
	ErrorTypeSelector ErrorType = "selector"
	// ErrorTypeRateLimit represents rate limiting errors
	ErrorTypeRateLimit ErrorType = "rate_limit"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeStorage represents snapshot writing errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypeConfiguration represents configuration errors
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a crawler-specific error
type CrawlerError struct {
	Type       ErrorType
	Provider   string
	Message    string
	StatusCode int
	RetryAfter string
	Err        error
	Time       time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Provider, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Provider, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether the failure is transient.
// Network failures and 5xx responses are; 4xx, rate limits, parse and
// selector misses are not.
func (e *CrawlerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork:
		return true
	case ErrorTypeHTTP:
		return e.StatusCode >= http.StatusInternalServerError
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, provider, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Provider: provider,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new network error
func NewNetwork(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, provider, message, err)
}

// NewHTTP creates an error for an unexpected response status
func NewHTTP(provider string, statusCode int, url string) *CrawlerError {
	e := New(ErrorTypeHTTP, provider, fmt.Sprintf("fetch %s unexpected status code: %d", url, statusCode), nil)
	e.StatusCode = statusCode
	return e
}

// NewParsing creates a new parsing error
func NewParsing(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, provider, message, err)
}

// NewSelector creates an error for a cascade that produced no matches
func NewSelector(provider, field string) *CrawlerError {
	return New(ErrorTypeSelector, provider, fmt.Sprintf("no selector matched for %s", field), nil)
}

// NewRateLimit creates a new rate limit error
func NewRateLimit(provider string, retryAfter string) *CrawlerError {
	message := "rate limited"
	if retryAfter != "" {
		message = fmt.Sprintf("rate limited; retry after %s", retryAfter)
	}
	e := New(ErrorTypeRateLimit, provider, message, nil)
	e.StatusCode = http.StatusTooManyRequests
	e.RetryAfter = retryAfter
	return e
}

// NewBlocked creates a rate limit error for a site still inside its block window
func NewBlocked(provider string, duration time.Duration) *CrawlerError {
	return New(ErrorTypeRateLimit, provider, fmt.Sprintf("blocked for %v after rate limit", duration), nil)
}

// NewCache creates a new cache error
func NewCache(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, provider, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(provider, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, provider, message, err)
}

// NewStorage creates a new storage error
func NewStorage(provider, message string, err error) *CrawlerError {
	return New(ErrorTypeStorage, provider, message, err)
}

// NewValidation creates a new validation error
func NewValidation(provider, message string) *CrawlerError {
	return New(ErrorTypeValidation, provider, message, nil)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// TypeOf returns the ErrorType of err, or "" if err is not a CrawlerError
func TypeOf(err error) ErrorType {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.Type
	}
	return ""
}

// IsRetryable reports whether err wraps a retryable CrawlerError
func IsRetryable(err error) bool {
	var ce *CrawlerError
	if stderrors.As(err, &ce) {
		return ce.IsRetryable()
	}
	return false
}

// IsRateLimited reports whether err wraps a rate limit error
func IsRateLimited(err error) bool {
	return TypeOf(err) == ErrorTypeRateLimit
}
