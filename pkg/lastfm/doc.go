// Package lastfm provides a client library for the Last.fm API 2.0.
//
// # Overview
//
// This package implements the read side of the Last.fm API that is needed
// to walk a user's listening history: recent tracks (scrobbles), loved
// tracks and the top tracks chart, one page at a time. It provides context support, request pacing
// and structured errors. It does not retry; callers own the retry policy.
//
// # Installation
//
//	go get github.com/jfmyers9/scrobstat/pkg/lastfm
//
// # Quick Start
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
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("page %d/%d, %d scrobbles total\n",
//	    page.Info.Page, page.Info.TotalPages, page.Info.Total)
//
// # Top Tracks
//
// TopTracks pages through the user's chart for Config.Period. Chart entries
// have no Date; PlayCount and Rank are set instead.
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    APIKey:   "your-api-key",
//	    Username: "rj",
//	    Period:   lastfm.PeriodMonth,
//	})
//	page, err := client.FetchPage(ctx, lastfm.TopTracks, 1, 50)
//	for _, t := range page.Tracks {
//	    fmt.Printf("%d. %s - %s (%d plays)\n", t.Rank, t.Artist, t.Name, t.PlayCount)
//	}
//
// # Now Playing
//
// The first entry of page 1 of recent tracks may be the track currently
// playing. It has a nil Date and Last.fm does not count it in Total.
//
//	track, err := client.NowPlaying(ctx)
//	if err == nil && track != nil {
//	    fmt.Println(track.Artist, "-", track.Name)
//	}
//
// # Error Handling
//
// Every failed request returns a *RequestError classified by kind:
//
//	page, err := client.FetchPage(ctx, lastfm.LovedTracks, 3, 200)
//	switch {
//	case errors.Is(err, lastfm.ErrRateLimited):
//	    // wait lastfm.RetryAfter(err) (or longer) and try page 3 again
//	case errors.Is(err, lastfm.ErrNetwork), errors.Is(err, lastfm.ErrDecode):
//	    // give up
//	}
//
// Errors reported by Last.fm itself are also available as *Error:
//
//	var lastfmErr *lastfm.Error
//	if errors.As(err, &lastfmErr) && lastfmErr.Code == lastfm.ErrCodeInvalidParameters {
//	    // unknown user
//	}
//
// # Configuration
//
// The client can be configured with custom HTTP clients, base URLs (for testing),
// request pacing, a time window for recent tracks, and optional loggers:
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    APIKey:            "your-api-key",
//	    Username:          "rj",
//	    HTTPClient:        &http.Client{Timeout: 30 * time.Second},
//	    RequestsPerSecond: 2,
//	    From:              time.Now().AddDate(0, -1, 0),
//	    Logger:            myLogger, // Implements lastfm.Logger interface
//	})
//
// # API Coverage
//
// Currently implemented:
//   - user.getRecentTracks
//   - user.getLovedTracks
//
// # Last.fm API Documentation
//
// For more information about the Last.fm API:
// https://www.last.fm/api/show/user.getRecentTracks
package lastfm
