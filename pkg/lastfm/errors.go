package lastfm

import (
	"errors"
	"fmt"
	"time"
)

// Error represents a Last.fm API error.
//
// The Error type provides structured error information including
// the Last.fm error code and message. It implements error, and
// provides additional methods for retry logic.
type Error struct {
	Code    int    // Last.fm error code
	Message string // Error message from Last.fm
}

// Error returns the error message.
func (e *Error) Error() string {
	return fmt.Sprintf("lastfm: error %d: %s", e.Code, e.Message)
}

// Is checks if the target error is a Last.fm error.
//
// This allows errors.Is() to work with *Error types.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// Temporary returns true if the error is temporary and the request
// may succeed when repeated later.
//
// The following Last.fm error codes are considered temporary:
//   - 11: Service Offline - temporarily unavailable
//   - 16: Service Temporarily Unavailable
//   - 29: Rate Limit Exceeded
func (e *Error) Temporary() bool {
	switch e.Code {
	case ErrCodeServiceOffline, ErrCodeTempUnavailable, ErrCodeRateLimitExceeded:
		return true
	default:
		return false
	}
}

// RateLimited reports whether Last.fm throttled the request.
func (e *Error) RateLimited() bool {
	return e.Code == ErrCodeRateLimitExceeded
}

// Common Last.fm error codes.
const (
	ErrCodeInvalidService       = 2
	ErrCodeInvalidMethod        = 3
	ErrCodeAuthenticationFailed = 4
	ErrCodeInvalidFormat        = 5
	ErrCodeInvalidParameters    = 6
	ErrCodeInvalidResourceSpec  = 7
	ErrCodeOperationFailed      = 8
	ErrCodeInvalidSessionKey    = 9
	ErrCodeInvalidAPIKey        = 10
	ErrCodeServiceOffline       = 11
	ErrCodeSubscribersOnly      = 12
	ErrCodeInvalidSignature     = 13
	ErrCodeUnauthorizedToken    = 14
	ErrCodeExpiredToken         = 15
	ErrCodeTempUnavailable      = 16
	ErrCodeRateLimitExceeded    = 29
)

// Error kinds. Every failed request returns a *RequestError whose Kind is
// one of these, so callers can branch with errors.Is.
var (
	// ErrNetwork is a transport failure: connection refused, timeout, DNS,
	// or an upstream 5xx without a Last.fm error body.
	ErrNetwork = errors.New("lastfm: network error")

	// ErrDecode is returned when a response does not match the expected schema.
	ErrDecode = errors.New("lastfm: decode error")

	// ErrRateLimited is returned for HTTP 429 or Last.fm error 29.
	ErrRateLimited = errors.New("lastfm: rate limited")

	// ErrAPI is any other error reported by Last.fm (unknown user, bad key...).
	ErrAPI = errors.New("lastfm: api error")

	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("lastfm: invalid configuration")
)

// RequestError describes a failed page request.
type RequestError struct {
	Kind       error         // One of ErrNetwork, ErrDecode, ErrRateLimited, ErrAPI
	Method     Method        // API method that was called
	Page       int           // Requested page
	RetryAfter time.Duration // Server-suggested wait, zero if none was sent
	Err        error         // Underlying cause
}

// Error returns the error message.
func (e *RequestError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s page %d", e.Kind, e.Method, e.Page)
	}
	return fmt.Sprintf("%v: %s page %d: %v", e.Kind, e.Method, e.Page, e.Err)
}

// Unwrap exposes both the kind and the cause to errors.Is and errors.As.
func (e *RequestError) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// IsRetryable reports whether a request that failed with err may be repeated
// as-is. Only throttling qualifies; network and decode failures abort a fetch.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// RetryAfter returns the server-suggested wait carried by err, if any.
func RetryAfter(err error) time.Duration {
	var reqErr *RequestError
	if errors.As(err, &reqErr) {
		return reqErr.RetryAfter
	}
	return 0
}
