// Package history walks a user's paginated Last.fm history into one ordered,
// deduplicated slice of tracks.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jfmyers9/scrobstat/internal/metrics"
	"github.com/jfmyers9/scrobstat/pkg/lastfm"
	"github.com/rs/zerolog"
)

// Defaults applied to zero Config fields.
const (
	DefaultMaxRetries = 5
	DefaultMinBackoff = 1 * time.Second
	DefaultMaxBackoff = 30 * time.Second
)

// preallocPages bounds the initial result capacity, in pages.
const preallocPages = 16

// PageSource fetches a single page of history. *lastfm.Client implements it.
type PageSource interface {
	FetchPage(ctx context.Context, method lastfm.Method, page, perPage int) (*lastfm.Page, error)
}

// Config holds fetcher configuration.
type Config struct {
	PageSize   int           // Records per request, 1..lastfm.MaxPageSize (default MaxPageSize)
	MaxRetries int           // Retries per page after rate limiting (default 5, negative disables)
	MinBackoff time.Duration // First retry delay (default 1s)
	MaxBackoff time.Duration // Retry delay cap (default 30s)
}

// Fetcher drives a PageSource across every page of a history feed.
//
// A Fetcher holds no per-run state; concurrent FetchAll calls are safe as
// long as the PageSource is.
type Fetcher struct {
	source PageSource
	config Config
	logger zerolog.Logger
	sleep  func(ctx context.Context, d time.Duration) bool
}

// New creates a Fetcher, filling unset Config fields with defaults.
func New(source PageSource, cfg Config, logger zerolog.Logger) *Fetcher {
	if cfg.PageSize <= 0 || cfg.PageSize > lastfm.MaxPageSize {
		cfg.PageSize = lastfm.MaxPageSize
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = DefaultMaxRetries
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = DefaultMinBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultMaxBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = cfg.MinBackoff
	}

	return &Fetcher{
		source: source,
		config: cfg,
		logger: logger.With().Str("component", "history").Logger(),
		sleep:  sleep,
	}
}

// FetchAll returns the user's history for method, newest first.
//
// With Limited(n) the result holds exactly min(n, available) records. With
// Unlimited every page is read. Records repeated at the top of a page
// because history shifted mid-fetch are dropped. Now-playing entries are
// kept.
//
// Rate-limited pages are retried with exponential backoff; any other
// failure, or cancellation of ctx, aborts the run and no records are
// returned.
func (f *Fetcher) FetchAll(ctx context.Context, method lastfm.Method, limit Limit) ([]lastfm.Track, error) {
	if err := limit.Validate(); err != nil {
		return nil, err
	}

	start := time.Now()
	logger := f.logger.With().
		Str("run_id", uuid.NewString()).
		Str("method", method.ShortName()).
		Str("limit", limit.String()).
		Logger()

	tracks, err := f.fetchAll(ctx, logger, method, limit)

	status := metrics.StatusOK
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		status = metrics.StatusCancelled
	default:
		status = metrics.StatusFailed
	}
	metrics.FetchDuration.WithLabelValues(method.ShortName(), status).Observe(time.Since(start).Seconds())

	if err != nil {
		logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("Fetch aborted")
		return nil, err
	}

	metrics.TracksFetched.WithLabelValues(method.ShortName()).Add(float64(len(tracks)))
	logger.Info().
		Int("tracks", len(tracks)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetch complete")
	return tracks, nil
}

// trackKey identifies a completed play for page-boundary deduplication.
type trackKey struct {
	unix   int64
	artist string
	name   string
}

func (f *Fetcher) fetchAll(ctx context.Context, logger zerolog.Logger, method lastfm.Method, limit Limit) ([]lastfm.Track, error) {
	want, limited := limit.Count()

	perPage := f.config.PageSize
	if limited && want < perPage {
		perPage = want
	}

	tracks := make([]lastfm.Track, 0)
	var previous map[trackKey]struct{}
	totalPages := 0

	for page := 1; ; page++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		result, err := f.fetchPage(ctx, logger, method, page, perPage)
		if err != nil {
			return nil, err
		}

		if page == 1 {
			totalPages = result.Info.TotalPages
			// Total is reported by the server; trust it only up to a few pages.
			expected := result.Info.Total + 1
			if limited && want < expected {
				expected = want
			}
			expected = min(expected, perPage*preallocPages)
			if expected > cap(tracks) {
				tracks = make([]lastfm.Track, 0, expected)
			}
			logger.Info().
				Int("total", result.Info.Total).
				Int("total_pages", totalPages).
				Int("per_page", perPage).
				Msg("Fetching history")
		}

		current := make(map[trackKey]struct{}, len(result.Tracks))
		dropped := 0
		for _, track := range result.Tracks {
			if track.HasTimestamp() {
				key := trackKey{unix: track.Date.Unix(), artist: track.Artist, name: track.Name}
				if _, seen := previous[key]; seen {
					dropped++
					continue
				}
				current[key] = struct{}{}
			}
			tracks = append(tracks, track)
		}
		previous = current

		if dropped > 0 {
			metrics.DuplicatesDropped.WithLabelValues(method.ShortName()).Add(float64(dropped))
			logger.Debug().Int("page", page).Int("dropped", dropped).Msg("Dropped records repeated from previous page")
		}

		logger.Debug().
			Int("page", page).
			Int("total_pages", totalPages).
			Int("received", len(result.Tracks)).
			Int("accumulated", len(tracks)).
			Msg("Page fetched")

		if limited && len(tracks) >= want {
			return tracks[:want], nil
		}
		if len(result.Tracks) == 0 || page >= totalPages {
			return tracks, nil
		}
	}
}

// fetchPage requests one page, retrying while the source reports rate limiting.
func (f *Fetcher) fetchPage(ctx context.Context, logger zerolog.Logger, method lastfm.Method, page, perPage int) (*lastfm.Page, error) {
	backoff := f.config.MinBackoff

	for attempt := 0; ; attempt++ {
		result, err := f.source.FetchPage(ctx, method, page, perPage)
		if err == nil {
			metrics.PagesFetched.WithLabelValues(method.ShortName(), metrics.OutcomeSuccess).Inc()
			return result, nil
		}

		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}

		if !lastfm.IsRetryable(err) {
			metrics.PagesFetched.WithLabelValues(method.ShortName(), metrics.OutcomeError).Inc()
			return nil, err
		}
		metrics.PagesFetched.WithLabelValues(method.ShortName(), metrics.OutcomeRateLimited).Inc()

		if attempt >= f.config.MaxRetries {
			return nil, fmt.Errorf("page %d still rate limited after %d retries: %w", page, attempt, err)
		}

		delay := retryDelay(backoff, lastfm.RetryAfter(err), f.config.MaxBackoff)
		logger.Warn().
			Err(err).
			Int("page", page).
			Int("attempt", attempt+1).
			Dur("backoff", delay).
			Msg("Rate limited, backing off")
		metrics.RateLimitRetries.WithLabelValues(method.ShortName()).Inc()

		if !f.sleep(ctx, delay) {
			return nil, ctx.Err()
		}
		backoff = nextBackoff(backoff, f.config.MaxBackoff)
	}
}
