// Package lastfm provides a read-only client for the Last.fm API 2.0.
//
// This package implements the user history endpoints
// (user.getRecentTracks, user.getLovedTracks, user.getTopTracks) one page
// at a time.
// It is designed to be used as a standalone SDK.
//
// Example usage:
//
//	import "github.com/jfmyers9/scrobstat/pkg/lastfm"
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    APIKey:   "your-api-key",
//	    Username: "rj",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	page, err := client.FetchPage(ctx, lastfm.RecentTracks, 1, lastfm.MaxPageSize)
package lastfm

import (
	"fmt"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Config holds client configuration.
type Config struct {
	APIKey            string        // Required: Last.fm API key
	Username          string        // Required: user whose history is read
	HTTPClient        *http.Client  // Optional: HTTP client (defaults to a client with Timeout)
	Timeout           time.Duration // Optional: per-request timeout when HTTPClient is nil (default 30s)
	BaseURL           string        // Optional: Base URL for API (defaults to Last.fm API, used for testing)
	UserAgent         string        // Optional: User-Agent header
	RequestsPerSecond float64       // Optional: request pacing (default 5, negative disables)
	From              time.Time     // Optional: only recent tracks scrobbled at or after From
	To                time.Time     // Optional: only recent tracks scrobbled at or before To
	Period            Period        // Optional: TopTracks chart range (default overall)
	Logger            Logger        // Optional: Logger interface for debug logging
}

// Logger is an optional interface for logging.
type Logger interface {
	// Debugf logs a debug message with format and arguments.
	Debugf(format string, args ...interface{})
}

// Client is the main entry point for Last.fm API operations.
//
// A Client is immutable after construction and safe for concurrent use.
type Client struct {
	apiKey     string
	username   string
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	from       time.Time
	to         time.Time
	period     Period
	logger     Logger
}

const (
	// DefaultBaseURL is the default Last.fm API endpoint.
	DefaultBaseURL = "https://ws.audioscrobbler.com/2.0/"

	// DefaultRequestsPerSecond follows the Last.fm API terms (5 requests per second).
	DefaultRequestsPerSecond = 5

	// DefaultTimeout bounds a single request when no HTTP client is supplied.
	DefaultTimeout = 30 * time.Second

	defaultUserAgent = "scrobstat/1.0"
)

// NewClient creates a new Last.fm API client.
//
// Returns an error if required configuration (APIKey, Username) is missing.
func NewClient(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%w: APIKey is required", ErrInvalidConfig)
	}
	if cfg.Username == "" {
		return nil, fmt.Errorf("%w: Username is required", ErrInvalidConfig)
	}
	if !cfg.From.IsZero() && !cfg.To.IsZero() && cfg.To.Before(cfg.From) {
		return nil, fmt.Errorf("%w: To is before From", ErrInvalidConfig)
	}

	period, err := ParsePeriod(string(cfg.Period))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}

	userAgent := cfg.UserAgent
	if userAgent == "" {
		userAgent = defaultUserAgent
	}

	var limiter *rate.Limiter
	switch {
	case cfg.RequestsPerSecond == 0:
		limiter = rate.NewLimiter(rate.Limit(DefaultRequestsPerSecond), 1)
	case cfg.RequestsPerSecond > 0:
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &Client{
		apiKey:     cfg.APIKey,
		username:   cfg.Username,
		httpClient: httpClient,
		baseURL:    baseURL,
		userAgent:  userAgent,
		limiter:    limiter,
		from:       cfg.From,
		to:         cfg.To,
		period:     period,
		logger:     cfg.Logger,
	}, nil
}

// Username returns the user whose history this client reads.
func (c *Client) Username() string {
	return c.username
}

// logDebugf logs a debug message if a logger is configured.
func (c *Client) logDebugf(format string, args ...interface{}) {
	if c.logger != nil {
		c.logger.Debugf(format, args...)
	}
}
