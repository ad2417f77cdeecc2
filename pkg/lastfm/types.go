package lastfm

import (
	"fmt"
	"time"
)

// Method selects which user history feed to read.
type Method string

const (
	// RecentTracks is the user's scrobble history, newest first.
	RecentTracks Method = "user.getrecenttracks"

	// LovedTracks is the user's loved tracks, most recently loved first.
	LovedTracks Method = "user.getlovedtracks"

	// TopTracks is the user's most played tracks for a Period, by rank.
	TopTracks Method = "user.gettoptracks"
)

// MaxPageSize is the largest page Last.fm serves for history methods.
const MaxPageSize = 200

// ParseMethod maps a short name ("recent", "loved", "top") or a full API
// method name to a Method.
func ParseMethod(s string) (Method, error) {
	switch s {
	case "recent", string(RecentTracks):
		return RecentTracks, nil
	case "loved", string(LovedTracks):
		return LovedTracks, nil
	case "top", string(TopTracks):
		return TopTracks, nil
	default:
		return "", fmt.Errorf("lastfm: unknown method %q (want recent, loved or top)", s)
	}
}

// ShortName returns the short form used in file names and flags.
func (m Method) ShortName() string {
	switch m {
	case RecentTracks:
		return "recent"
	case LovedTracks:
		return "loved"
	case TopTracks:
		return "top"
	default:
		return string(m)
	}
}

// String returns the API method name.
func (m Method) String() string {
	return string(m)
}

// Period is the time range of a TopTracks chart.
type Period string

const (
	PeriodOverall     Period = "overall"
	PeriodWeek        Period = "7day"
	PeriodMonth       Period = "1month"
	PeriodThreeMonths Period = "3month"
	PeriodSixMonths   Period = "6month"
	PeriodYear        Period = "12month"
)

// ParsePeriod parses a Last.fm period name. Empty means PeriodOverall.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case "":
		return PeriodOverall, nil
	case PeriodOverall, PeriodWeek, PeriodMonth, PeriodThreeMonths, PeriodSixMonths, PeriodYear:
		return p, nil
	default:
		return "", fmt.Errorf("lastfm: unknown period %q (want overall, 7day, 1month, 3month, 6month or 12month)", s)
	}
}

// Track is one history entry: a scrobble, a loved track or a chart entry.
type Track struct {
	Artist    string     `json:"artist"`              // Artist name
	Name      string     `json:"name"`                // Track name
	Album     string     `json:"album,omitempty"`     // Optional: Album name
	MBID      string     `json:"mbid,omitempty"`      // Optional: MusicBrainz track ID
	URL       string     `json:"url,omitempty"`       // Optional: Last.fm track page
	Date      *time.Time `json:"date,omitempty"`      // When it was played or loved; nil while now playing
	PlayCount int        `json:"playcount,omitempty"` // TopTracks only: plays in the period
	Rank      int        `json:"rank,omitempty"`      // TopTracks only: chart position, 1-based
}

// ArtistName returns the artist name.
func (t Track) ArtistName() string {
	return t.Artist
}

// TrackName returns the track name.
func (t Track) TrackName() string {
	return t.Name
}

// HasTimestamp reports whether the entry is a completed play.
func (t Track) HasTimestamp() bool {
	return t.Date != nil
}

// NowPlaying reports whether the entry is an in-progress play. Chart
// entries are undated but never now playing.
func (t Track) NowPlaying() bool {
	return t.Date == nil && t.PlayCount == 0
}

// Plays returns the number of plays the entry stands for: PlayCount for
// chart entries, otherwise 0.
func (t Track) Plays() int {
	return t.PlayCount
}

// PageInfo is the pagination metadata Last.fm returns with every page.
type PageInfo struct {
	Page       int // Current page, 1-based
	PerPage    int // Items per page
	TotalPages int // Total number of pages
	Total      int // Total number of items
}

// Page is one decoded page of history.
type Page struct {
	Tracks []Track
	Info   PageInfo
}
