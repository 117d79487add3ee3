package errors

import (
	"errors"
	"fmt"
	"time"
)

// ErrorType represents the type of error
type ErrorType string

const (
	// ErrorTypeNetwork represents transport-level errors (timeouts, connection resets)
	ErrorTypeNetwork ErrorType = "network"
	// ErrorTypeNotFound represents a terminal HTTP 404
	ErrorTypeNotFound ErrorType = "not_found"
	// ErrorTypeServer represents an HTTP 5xx from the target site
	ErrorTypeServer ErrorType = "server"
	// ErrorTypeAntiBot represents a response flagged as a bot-verification page
	ErrorTypeAntiBot ErrorType = "anti_bot"
	// ErrorTypeParsing represents HTML parsing errors
	ErrorTypeParsing ErrorType = "parsing"
	// ErrorTypeProxyExhausted represents an empty proxy pool under a proxy-required policy
	ErrorTypeProxyExhausted ErrorType = "proxy_exhausted"
	// ErrorTypeCache represents cache-related errors
	ErrorTypeCache ErrorType = "cache"
	// ErrorTypePublisher represents publisher-related errors
	ErrorTypePublisher ErrorType = "publisher"
	// ErrorTypeConfiguration represents configuration errors (caller bugs)
	ErrorTypeConfiguration ErrorType = "configuration"
)

// CrawlerError represents a crawler-specific error
type CrawlerError struct {
	Type     ErrorType
	Platform string
	Message  string
	Err      error
	Time     time.Time
}

// Error implements the error interface
func (e *CrawlerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %s - %v", e.Type, e.Platform, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Type, e.Platform, e.Message)
}

// Unwrap returns the underlying error
func (e *CrawlerError) Unwrap() error {
	return e.Err
}

// IsRetryable returns true if another attempt may succeed
func (e *CrawlerError) IsRetryable() bool {
	switch e.Type {
	case ErrorTypeNetwork, ErrorTypeServer, ErrorTypeAntiBot, ErrorTypeProxyExhausted:
		return true
	default:
		return false
	}
}

// New creates a new CrawlerError
func New(errType ErrorType, platform, message string, err error) *CrawlerError {
	return &CrawlerError{
		Type:     errType,
		Platform: platform,
		Message:  message,
		Err:      err,
		Time:     time.Now(),
	}
}

// NewNetwork creates a new transport error
func NewNetwork(platform, message string, err error) *CrawlerError {
	return New(ErrorTypeNetwork, platform, message, err)
}

// NewNotFound creates a new not-found error
func NewNotFound(platform, message string) *CrawlerError {
	return New(ErrorTypeNotFound, platform, message, nil)
}

// NewServer creates a new server error
func NewServer(platform, message string, err error) *CrawlerError {
	return New(ErrorTypeServer, platform, message, err)
}

// NewAntiBot creates a new anti-bot detection error
func NewAntiBot(platform, message string) *CrawlerError {
	return New(ErrorTypeAntiBot, platform, message, nil)
}

// NewParsing creates a new parsing error
func NewParsing(platform, message string, err error) *CrawlerError {
	return New(ErrorTypeParsing, platform, message, err)
}

// NewProxyExhausted creates a new proxy-exhausted error
func NewProxyExhausted(platform string) *CrawlerError {
	return New(ErrorTypeProxyExhausted, platform, "no selectable proxy in pool", nil)
}

// NewCache creates a new cache error
func NewCache(platform, message string, err error) *CrawlerError {
	return New(ErrorTypeCache, platform, message, err)
}

// NewPublisher creates a new publisher error
func NewPublisher(platform, message string, err error) *CrawlerError {
	return New(ErrorTypePublisher, platform, message, err)
}

// NewConfiguration creates a new configuration error
func NewConfiguration(message string, err error) *CrawlerError {
	return New(ErrorTypeConfiguration, "", message, err)
}

// IsType reports whether err is a CrawlerError of the given type
func IsType(err error, errType ErrorType) bool {
	var ce *CrawlerError
	if errors.As(err, &ce) {
		return ce.Type == errType
	}
	return false
}
