// Package stats aggregates listening history into play counts and rankings.
//
// Analyze accepts any record type exposing artist, track and timestamp
// presence, so fetched tracks, re-loaded exports and caller-defined records
// all go through the same counting.
//
// Now-playing entries (records without a timestamp) never count toward the
// total. By default they are also left out of the per-artist and per-track
// counts and only reported through NowPlaying; Options.IncludeNowPlaying
// counts them per key.
//
// Records that implement Weighted with a positive play count, such as top
// tracks chart entries, count as that many completed plays.
package stats

import (
	"sort"

	"github.com/goccy/go-json"
)

// Analyzable is a record that can be aggregated.
type Analyzable interface {
	ArtistName() string
	TrackName() string
	HasTimestamp() bool
}

// Weighted is implemented by records that stand for several plays.
type Weighted interface {
	Plays() int
}

// playsOf returns how many completed plays r stands for, or 0 for a
// now-playing entry.
func playsOf[T Analyzable](r T) int {
	if w, ok := any(r).(Weighted); ok {
		if n := w.Plays(); n > 0 {
			return n
		}
	}
	if r.HasTimestamp() {
		return 1
	}
	return 0
}

// Options configures Analyze.
type Options struct {
	// TopN is the length of the ranked lists. Zero or negative yields
	// empty lists.
	TopN int

	// IncludeNowPlaying counts now-playing entries per artist and track.
	IncludeNowPlaying bool
}

// TrackKey identifies a track by exact artist and title.
type TrackKey struct {
	Artist string
	Track  string
}

// String returns "Artist - Track".
func (k TrackKey) String() string {
	return k.Artist + " - " + k.Track
}

// MarshalText lets TrackKey be used as a JSON object key.
func (k TrackKey) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ArtistCount is one entry of the artist ranking.
type ArtistCount struct {
	Artist string `json:"artist"`
	Count  int    `json:"count"`
}

// TrackCount is one entry of the track ranking.
type TrackCount struct {
	Artist string `json:"artist"`
	Track  string `json:"track"`
	Count  int    `json:"count"`
}

// Key returns the track's TrackKey.
func (c TrackCount) Key() TrackKey {
	return TrackKey{Artist: c.Artist, Track: c.Track}
}

// Stats is an immutable aggregation of a record sequence. Accessors return
// copies.
type Stats struct {
	total      int
	nowPlaying int
	topN       int

	// Full rankings: count descending, ties in first-seen order.
	artists []ArtistCount
	tracks  []TrackCount

	artistIndex map[string]int
	trackIndex  map[TrackKey]int
}

// Analyze aggregates records. It performs no I/O and does not retain records.
func Analyze[T Analyzable](records []T, opts Options) *Stats {
	s := &Stats{
		topN:        opts.TopN,
		artists:     make([]ArtistCount, 0),
		tracks:      make([]TrackCount, 0),
		artistIndex: make(map[string]int),
		trackIndex:  make(map[TrackKey]int),
	}
	if s.topN < 0 {
		s.topN = 0
	}

	for _, r := range records {
		plays := playsOf(r)
		if plays > 0 {
			s.total += plays
		} else {
			s.nowPlaying++
			if !opts.IncludeNowPlaying {
				continue
			}
			plays = 1
		}

		artist := r.ArtistName()
		i, ok := s.artistIndex[artist]
		if !ok {
			i = len(s.artists)
			s.artistIndex[artist] = i
			s.artists = append(s.artists, ArtistCount{Artist: artist})
		}
		s.artists[i].Count += plays

		key := TrackKey{Artist: artist, Track: r.TrackName()}
		j, ok := s.trackIndex[key]
		if !ok {
			j = len(s.tracks)
			s.trackIndex[key] = j
			s.tracks = append(s.tracks, TrackCount{Artist: key.Artist, Track: key.Track})
		}
		s.tracks[j].Count += plays
	}

	// Entries were appended in first-seen order, so a stable sort keeps
	// that order among equal counts.
	sort.SliceStable(s.artists, func(i, j int) bool { return s.artists[i].Count > s.artists[j].Count })
	sort.SliceStable(s.tracks, func(i, j int) bool { return s.tracks[i].Count > s.tracks[j].Count })

	for i, a := range s.artists {
		s.artistIndex[a.Artist] = i
	}
	for i, t := range s.tracks {
		s.trackIndex[t.Key()] = i
	}

	return s
}

// Total returns the number of records with a timestamp.
func (s *Stats) Total() int { return s.total }

// NowPlaying returns the number of records without a timestamp.
func (s *Stats) NowPlaying() int { return s.nowPlaying }

// TopN returns the configured ranking length.
func (s *Stats) TopN() int { return s.topN }

// DistinctArtists returns the number of counted artists.
func (s *Stats) DistinctArtists() int { return len(s.artists) }

// DistinctTracks returns the number of counted tracks.
func (s *Stats) DistinctTracks() int { return len(s.tracks) }

// ArtistPlays returns the play count for artist, or 0.
func (s *Stats) ArtistPlays(artist string) int {
	if i, ok := s.artistIndex[artist]; ok {
		return s.artists[i].Count
	}
	return 0
}

// TrackPlays returns the play count for a track, or 0.
func (s *Stats) TrackPlays(artist, track string) int {
	if i, ok := s.trackIndex[TrackKey{Artist: artist, Track: track}]; ok {
		return s.tracks[i].Count
	}
	return 0
}

// Artists returns the artist to play count mapping.
func (s *Stats) Artists() map[string]int {
	return s.ArtistsAtLeast(0)
}

// Tracks returns the track to play count mapping.
func (s *Stats) Tracks() map[TrackKey]int {
	return s.TracksAtLeast(0)
}

// RankedArtists returns every artist, most played first.
func (s *Stats) RankedArtists() []ArtistCount {
	return append([]ArtistCount(nil), s.artists...)
}

// RankedTracks returns every track, most played first.
func (s *Stats) RankedTracks() []TrackCount {
	return append([]TrackCount(nil), s.tracks...)
}

// TopArtists returns the first TopN entries of the artist ranking.
func (s *Stats) TopArtists() []ArtistCount {
	n := min(s.topN, len(s.artists))
	return append(make([]ArtistCount, 0, n), s.artists[:n]...)
}

// TopTracks returns the first TopN entries of the track ranking.
func (s *Stats) TopTracks() []TrackCount {
	n := min(s.topN, len(s.tracks))
	return append(make([]TrackCount, 0, n), s.tracks[:n]...)
}

// MostPlayedArtist returns the top-ranked artist, if any.
func (s *Stats) MostPlayedArtist() (ArtistCount, bool) {
	if len(s.artists) == 0 {
		return ArtistCount{}, false
	}
	return s.artists[0], true
}

// MostPlayedTrack returns the top-ranked track, if any.
func (s *Stats) MostPlayedTrack() (TrackCount, bool) {
	if len(s.tracks) == 0 {
		return TrackCount{}, false
	}
	return s.tracks[0], true
}

// ArtistsAtLeast returns artists played at least threshold times. A
// threshold of zero or less returns every artist.
func (s *Stats) ArtistsAtLeast(threshold int) map[string]int {
	out := make(map[string]int)
	for _, a := range s.artists {
		if a.Count >= threshold {
			out[a.Artist] = a.Count
		}
	}
	return out
}

// TracksAtLeast returns tracks played at least threshold times. A
// threshold of zero or less returns every track.
func (s *Stats) TracksAtLeast(threshold int) map[TrackKey]int {
	out := make(map[TrackKey]int)
	for _, t := range s.tracks {
		if t.Count >= threshold {
			out[t.Key()] = t.Count
		}
	}
	return out
}

// TracksBelow returns tracks played fewer than threshold times.
func (s *Stats) TracksBelow(threshold int) map[TrackKey]int {
	out := make(map[TrackKey]int)
	for _, t := range s.tracks {
		if t.Count < threshold {
			out[t.Key()] = t.Count
		}
	}
	return out
}

type summary struct {
	Total           int           `json:"total"`
	NowPlaying      int           `json:"now_playing"`
	DistinctArtists int           `json:"distinct_artists"`
	DistinctTracks  int           `json:"distinct_tracks"`
	TopArtists      []ArtistCount `json:"top_artists"`
	TopTracks       []TrackCount  `json:"top_tracks"`
	Artists         []ArtistCount `json:"artists"`
	Tracks          []TrackCount  `json:"tracks"`
}

// MarshalJSON encodes the statistics with rankings as ordered arrays, so
// equal Stats always encode to identical bytes.
func (s *Stats) MarshalJSON() ([]byte, error) {
	return json.Marshal(summary{
		Total:           s.total,
		NowPlaying:      s.nowPlaying,
		DistinctArtists: len(s.artists),
		DistinctTracks:  len(s.tracks),
		TopArtists:      s.TopArtists(),
		TopTracks:       s.TopTracks(),
		Artists:         s.artists,
		Tracks:          s.tracks,
	})
}
