package lastfm

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

// apiErrorBody is the JSON body Last.fm sends on failure, sometimes with a
// 200 status.
type apiErrorBody struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// call makes one GET request to the Last.fm API.
//
// It handles:
// - Request pacing
// - Query construction (method, api_key, format)
// - Classification of failures into error kinds
// - Context cancellation
//
// It never retries. Retrying is the caller's decision.
func (c *Client) call(ctx context.Context, method Method, page int, params url.Values) ([]byte, error) {
	fail := func(kind error, err error) *RequestError {
		return &RequestError{Kind: kind, Method: method, Page: page, Err: err}
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fail(ErrNetwork, err)
		}
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("method", method.String())
	q.Set("api_key", c.apiKey)
	q.Set("format", "json")

	reqURL := c.baseURL
	if strings.Contains(reqURL, "?") {
		reqURL += "&" + q.Encode()
	} else {
		reqURL += "?" + q.Encode()
	}

	c.logDebugf("lastfm: calling %s page %d", method, page)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fail(ErrNetwork, fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fail(ErrNetwork, fmt.Errorf("http request failed: %w", err))
	}

	body, err := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if err != nil {
		return nil, fail(ErrNetwork, fmt.Errorf("failed to read response: %w", err))
	}

	// Last.fm reports most failures as an error object, whatever the status.
	var apiErr apiErrorBody
	if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != 0 {
		lastfmErr := &Error{Code: apiErr.Error, Message: apiErr.Message}
		if lastfmErr.RateLimited() {
			reqErr := fail(ErrRateLimited, lastfmErr)
			reqErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
			return nil, reqErr
		}
		if lastfmErr.Temporary() {
			return nil, fail(ErrNetwork, lastfmErr)
		}
		return nil, fail(ErrAPI, lastfmErr)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		reqErr := fail(ErrRateLimited, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
		reqErr.RetryAfter = parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, reqErr
	case resp.StatusCode >= 500:
		return nil, fail(ErrNetwork, fmt.Errorf("server error: %d %s", resp.StatusCode, resp.Status))
	case resp.StatusCode != http.StatusOK:
		return nil, fail(ErrAPI, fmt.Errorf("unexpected status code: %d", resp.StatusCode))
	}

	c.logDebugf("lastfm: %s page %d succeeded", method, page)
	return body, nil
}

// parseRetryAfter reads a Retry-After header given in seconds or as an HTTP
// date. Unparseable values yield zero.
func parseRetryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}
