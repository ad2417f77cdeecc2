package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jfmyers9/scrobstat/internal/config"
	"github.com/jfmyers9/scrobstat/internal/export"
	"github.com/jfmyers9/scrobstat/internal/history"
	"github.com/jfmyers9/scrobstat/internal/stats"
	"github.com/jfmyers9/scrobstat/pkg/lastfm"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var (
	fetchMethod      string
	fetchLimit       string
	fetchFormat      string
	fetchDataDir     string
	fetchUsername    string
	fetchFrom        string
	fetchTo          string
	fetchPeriod      string
	fetchNoSave      bool
	fetchAnalyze     bool
	fetchSaveStats   bool
	fetchTop         int
	fetchThreshold   int
	fetchNowPlaying  bool
	fetchMetricsAddr string
)

// fetchCmd represents the fetch command
var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download listening history from Last.fm",
	Long: `Download a user's recent tracks, loved tracks or top tracks chart from Last.fm.

Pages are requested one at a time, newest first. When Last.fm rate limits a
request, the page is retried with exponential backoff. Any other failure
aborts the fetch and nothing is saved for that feed.

The top tracks chart covers the range given by --period and carries a play
count per track instead of a timestamp.

The result is written to the data directory as
<username>_<method>_<YYYYMMDD_HHMMSS>.<ext>. A second export in the same
second gets a _2 suffix, and so on.

Examples:
  scrobstat fetch --limit 500
  scrobstat fetch --method all --limit all --format sqlite
  scrobstat fetch --from 2024-01-01 --to 2024-12-31 --analyze --top 20
  scrobstat fetch --method top --period 7day --analyze`,
	Args: cobra.NoArgs,
	RunE: runFetch,
}

func init() {
	rootCmd.AddCommand(fetchCmd)

	fetchCmd.Flags().StringVarP(&fetchMethod, "method", "m", "recent", "History to fetch (recent, loved, top, all = recent and loved)")
	fetchCmd.Flags().StringVarP(&fetchLimit, "limit", "n", "all", "Number of tracks to fetch, or \"all\"")
	fetchCmd.Flags().StringVarP(&fetchFormat, "format", "f", "json", "Export format (json, csv, sqlite)")
	fetchCmd.Flags().StringVar(&fetchDataDir, "data-dir", "", "Directory for exports (overrides config)")
	fetchCmd.Flags().StringVarP(&fetchUsername, "user", "u", "", "Last.fm username (overrides config)")
	fetchCmd.Flags().StringVar(&fetchFrom, "from", "", "Only recent tracks at or after this date (YYYY-MM-DD, RFC3339 or unix seconds)")
	fetchCmd.Flags().StringVar(&fetchTo, "to", "", "Only recent tracks at or before this date (YYYY-MM-DD, RFC3339 or unix seconds)")
	fetchCmd.Flags().StringVar(&fetchPeriod, "period", "", "Top tracks range: overall, 7day, 1month, 3month, 6month, 12month (overrides config)")
	fetchCmd.Flags().BoolVar(&fetchNoSave, "no-save", false, "Do not write an export file")
	fetchCmd.Flags().BoolVarP(&fetchAnalyze, "analyze", "a", false, "Print statistics after fetching")
	fetchCmd.Flags().BoolVar(&fetchSaveStats, "save-stats", false, "Write statistics as JSON next to the export")
	fetchCmd.Flags().IntVarP(&fetchTop, "top", "t", 10, "Number of top artists and tracks to show")
	fetchCmd.Flags().IntVar(&fetchThreshold, "threshold", 0, "Report artists and tracks with at least this many plays")
	fetchCmd.Flags().BoolVar(&fetchNowPlaying, "include-now-playing", false, "Count the now-playing track per artist and track")
	fetchCmd.Flags().StringVar(&fetchMetricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while fetching (e.g. :9090)")
}

// fetchOptions is everything a fetch run needs once flags and config are resolved.
type fetchOptions struct {
	Username  string
	Methods   []lastfm.Method
	Limit     history.Limit
	Format    export.Format
	DataDir   string
	Save      bool
	Analyze   bool
	SaveStats bool
	Stats     stats.Options
	Threshold int
}

func runFetch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if fetchUsername != "" {
		cfg.LastFM.Username = fetchUsername
	}
	if fetchDataDir != "" {
		cfg.DataDir = fetchDataDir
	}
	if fetchPeriod != "" {
		cfg.Fetch.Period = strings.ToLower(strings.TrimSpace(fetchPeriod))
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	// Reject bad input before any request is made.
	opts, err := resolveFetchOptions(cfg)
	if err != nil {
		return err
	}
	filter, err := resolveFeedFilter(cfg)
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.LogFile, cfg.LogLevel)

	client, err := newClient(cfg, logger, filter)
	if err != nil {
		return err
	}
	fetcher := history.New(client, historyConfig(cfg.Fetch), logger)

	ctx, cancel := signalContext(logger)
	defer cancel()

	if fetchMetricsAddr != "" {
		stop := serveMetrics(fetchMetricsAddr, logger)
		defer stop()
	}

	return executeFetch(ctx, fetcher, opts, cmd.OutOrStdout(), logger)
}

func resolveFetchOptions(cfg *config.Config) (fetchOptions, error) {
	limit, err := history.ParseLimit(fetchLimit)
	if err != nil {
		return fetchOptions{}, err
	}
	if err := limit.Validate(); err != nil {
		return fetchOptions{}, err
	}

	methods, err := parseMethods(fetchMethod)
	if err != nil {
		return fetchOptions{}, err
	}

	format, err := export.ParseFormat(fetchFormat)
	if err != nil {
		return fetchOptions{}, err
	}

	return fetchOptions{
		Username:  cfg.LastFM.Username,
		Methods:   methods,
		Limit:     limit,
		Format:    format,
		DataDir:   cfg.DataDir,
		Save:      !fetchNoSave,
		Analyze:   fetchAnalyze,
		SaveStats: fetchSaveStats,
		Stats:     stats.Options{TopN: fetchTop, IncludeNowPlaying: fetchNowPlaying},
		Threshold: fetchThreshold,
	}, nil
}

// feedFilter narrows what the client requests.
type feedFilter struct {
	From   time.Time
	To     time.Time
	Period lastfm.Period
}

func resolveFeedFilter(cfg *config.Config) (feedFilter, error) {
	from, err := parseTimeFlag(fetchFrom)
	if err != nil {
		return feedFilter{}, fmt.Errorf("invalid --from: %w", err)
	}
	to, err := parseTimeFlag(fetchTo)
	if err != nil {
		return feedFilter{}, fmt.Errorf("invalid --to: %w", err)
	}
	period, err := lastfm.ParsePeriod(cfg.Fetch.Period)
	if err != nil {
		return feedFilter{}, fmt.Errorf("invalid --period: %w: %w", history.ErrValidation, err)
	}
	return feedFilter{From: from, To: to, Period: period}, nil
}

// fetchResult is the outcome of one feed.
type fetchResult struct {
	method lastfm.Method
	tracks []lastfm.Track
	err    error
}

// executeFetch fetches every requested feed concurrently, then saves and
// reports each successful one in the order requested. Failed feeds are
// returned joined; they do not prevent the others from being saved.
func executeFetch(ctx context.Context, fetcher *history.Fetcher, opts fetchOptions, out io.Writer, logger zerolog.Logger) error {
	results := make([]fetchResult, len(opts.Methods))

	var wg sync.WaitGroup
	for i, method := range opts.Methods {
		wg.Add(1)
		go func(i int, method lastfm.Method) {
			defer wg.Done()
			tracks, err := fetcher.FetchAll(ctx, method, opts.Limit)
			results[i] = fetchResult{method: method, tracks: tracks, err: err}
		}(i, method)
	}
	wg.Wait()

	var errs []error
	for _, res := range results {
		if res.err != nil {
			errs = append(errs, fmt.Errorf("failed to fetch %s tracks: %w", res.method.ShortName(), res.err))
			continue
		}
		if err := handleResult(res, opts, out, logger); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

func handleResult(res fetchResult, opts fetchOptions, out io.Writer, logger zerolog.Logger) error {
	prefix := opts.Username + "_" + res.method.ShortName()
	fmt.Fprintf(out, "Fetched %d %s tracks for %s\n", len(res.tracks), res.method.ShortName(), opts.Username)

	if opts.Save {
		path, err := export.Save(opts.DataDir, prefix, opts.Format, res.tracks)
		if err != nil {
			return fmt.Errorf("failed to save %s tracks: %w", res.method.ShortName(), err)
		}
		logger.Info().Str("path", path).Int("tracks", len(res.tracks)).Msg("Saved export")
		fmt.Fprintf(out, "Saved to %s\n", path)
	}

	if !opts.Analyze && !opts.SaveStats {
		return nil
	}

	s := stats.Analyze(res.tracks, opts.Stats)
	if opts.Analyze {
		fmt.Fprintln(out)
		title := fmt.Sprintf("%s: %s tracks", opts.Username, res.method.ShortName())
		if err := stats.Report(out, s, stats.ReportOptions{Title: title, Threshold: opts.Threshold}); err != nil {
			return err
		}
		fmt.Fprintln(out)
	}
	if opts.SaveStats {
		path, err := export.SaveStats(opts.DataDir, prefix, s)
		if err != nil {
			return fmt.Errorf("failed to save %s statistics: %w", res.method.ShortName(), err)
		}
		fmt.Fprintf(out, "Saved statistics to %s\n", path)
	}
	return nil
}

// newClient builds a Last.fm client from configuration.
func newClient(cfg *config.Config, logger zerolog.Logger, filter feedFilter) (*lastfm.Client, error) {
	rps := cfg.Fetch.RequestsPerSecond
	if rps == 0 {
		rps = -1 // disabled
	}

	client, err := lastfm.NewClient(lastfm.Config{
		APIKey:            cfg.LastFM.APIKey,
		Username:          cfg.LastFM.Username,
		BaseURL:           cfg.LastFM.BaseURL,
		Timeout:           cfg.Fetch.Timeout,
		RequestsPerSecond: rps,
		From:              filter.From,
		To:                filter.To,
		Period:            filter.Period,
		UserAgent:         "scrobstat/" + version,
		Logger:            clientLogger{logger: logger.With().Str("component", "lastfm").Logger()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Last.fm client: %w", err)
	}
	return client, nil
}

func historyConfig(f config.FetchConfig) history.Config {
	retries := f.MaxRetries
	if retries == 0 {
		retries = -1 // no retries
	}
	return history.Config{
		PageSize:   f.PageSize,
		MaxRetries: retries,
		MinBackoff: f.MinBackoff,
		MaxBackoff: f.MaxBackoff,
	}
}

// parseMethods expands a --method value into the feeds to fetch.
func parseMethods(s string) ([]lastfm.Method, error) {
	if strings.EqualFold(strings.TrimSpace(s), "all") {
		return []lastfm.Method{lastfm.RecentTracks, lastfm.LovedTracks}, nil
	}
	m, err := lastfm.ParseMethod(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", history.ErrValidation, err)
	}
	return []lastfm.Method{m}, nil
}

// parseTimeFlag accepts YYYY-MM-DD, RFC3339 or unix seconds. Empty means unset.
func parseTimeFlag(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	if unix, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(unix, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02", s, time.Local); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("%w: cannot parse time %q", history.ErrValidation, s)
}

// serveMetrics exposes the default Prometheus registry on addr until the
// returned stop function is called.
func serveMetrics(addr string, logger zerolog.Logger) func() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		logger.Info().Str("addr", addr).Msg("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error().Err(err).Msg("Metrics server failed")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to stop metrics server: %v\n", err)
		}
	}
}
