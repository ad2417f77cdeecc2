package lastfm

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/goccy/go-json"
)

// FetchPage fetches one page of the user's history for method.
//
// page is 1-based and perPage is clamped to [1, MaxPageSize]. The returned
// tracks keep the order Last.fm sent them in (newest first). On page 1 of
// RecentTracks the first entry may be a now-playing entry with a nil Date,
// which Last.fm does not count in PageInfo.Total.
//
// Failures are returned as *RequestError; the request is never retried here.
//
// Example:
//
//	page, err := client.FetchPage(ctx, lastfm.RecentTracks, 1, 200)
//	if errors.Is(err, lastfm.ErrRateLimited) {
//	    // back off and try the same page again
//	}
func (c *Client) FetchPage(ctx context.Context, method Method, page, perPage int) (*Page, error) {
	switch method {
	case RecentTracks, LovedTracks, TopTracks:
	default:
		return nil, fmt.Errorf("%w: unsupported method %q", ErrInvalidConfig, method)
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPageSize {
		perPage = MaxPageSize
	}

	params := url.Values{}
	params.Set("user", c.username)
	params.Set("page", strconv.Itoa(page))
	params.Set("limit", strconv.Itoa(perPage))
	switch method {
	case RecentTracks:
		if !c.from.IsZero() {
			params.Set("from", strconv.FormatInt(c.from.Unix(), 10))
		}
		if !c.to.IsZero() {
			params.Set("to", strconv.FormatInt(c.to.Unix(), 10))
		}
	case TopTracks:
		params.Set("period", string(c.period))
	}

	body, err := c.call(ctx, method, page, params)
	if err != nil {
		return nil, err
	}

	result, err := decodePage(method, body)
	if err != nil {
		return nil, &RequestError{Kind: ErrDecode, Method: method, Page: page, Err: err}
	}
	return result, nil
}

// NowPlaying returns the track the user is currently playing, or nil if
// nothing is playing.
func (c *Client) NowPlaying(ctx context.Context) (*Track, error) {
	page, err := c.FetchPage(ctx, RecentTracks, 1, 1)
	if err != nil {
		return nil, err
	}
	if len(page.Tracks) == 0 || page.Tracks[0].HasTimestamp() {
		return nil, nil
	}
	track := page.Tracks[0]
	return &track, nil
}

// flexInt decodes Last.fm numbers, which arrive as JSON strings or numbers.
type flexInt int

func (n *flexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}
	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s == "" {
			*n = 0
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid number %q: %w", s, err)
		}
		*n = flexInt(v)
		return nil
	}
	var v int
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	*n = flexInt(v)
	return nil
}

// pageAttr is the "@attr" pagination object.
type pageAttr struct {
	User       string  `json:"user"`
	Page       flexInt `json:"page"`
	PerPage    flexInt `json:"perPage"`
	TotalPages flexInt `json:"totalPages"`
	Total      flexInt `json:"total"`
}

// trackList is the container shared by recenttracks, lovedtracks and
// toptracks.
type trackList struct {
	Track json.RawMessage `json:"track"`
	Attr  *pageAttr       `json:"@attr"`
}

type pageEnvelope struct {
	RecentTracks *trackList `json:"recenttracks"`
	LovedTracks  *trackList `json:"lovedtracks"`
	TopTracks    *trackList `json:"toptracks"`
}

// nameRef covers both artist shapes: {"#text": …} in recent tracks and
// {"name": …} in loved, top and extended recent tracks.
type nameRef struct {
	Text string `json:"#text"`
	Name string `json:"name"`
	MBID string `json:"mbid"`
}

func (r nameRef) value() string {
	if r.Name != "" {
		return r.Name
	}
	return r.Text
}

type apiTrack struct {
	Name      string   `json:"name"`
	MBID      string   `json:"mbid"`
	URL       string   `json:"url"`
	Artist    nameRef  `json:"artist"`
	Album     *nameRef `json:"album"`
	PlayCount flexInt  `json:"playcount"`
	Date      *struct {
		UTS flexInt `json:"uts"`
	} `json:"date"`
	Attr *struct {
		NowPlaying string  `json:"nowplaying"`
		Rank       flexInt `json:"rank"`
	} `json:"@attr"`
}

// decodePage turns a raw response body into a Page.
func decodePage(method Method, body []byte) (*Page, error) {
	var env pageEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return nil, fmt.Errorf("failed to parse JSON response: %w", err)
	}

	var list *trackList
	switch method {
	case LovedTracks:
		list = env.LovedTracks
	case TopTracks:
		list = env.TopTracks
	default:
		list = env.RecentTracks
	}
	if list == nil {
		return nil, fmt.Errorf("response has no %s object", containerName(method))
	}
	if list.Attr == nil {
		return nil, errors.New("response has no @attr pagination object")
	}

	raw, err := decodeTrackArray(list.Track)
	if err != nil {
		return nil, err
	}

	tracks := make([]Track, 0, len(raw))
	for i, t := range raw {
		track, err := t.toTrack(method)
		if err != nil {
			return nil, fmt.Errorf("track %d: %w", i, err)
		}
		tracks = append(tracks, track)
	}

	return &Page{
		Tracks: tracks,
		Info: PageInfo{
			Page:       int(list.Attr.Page),
			PerPage:    int(list.Attr.PerPage),
			TotalPages: int(list.Attr.TotalPages),
			Total:      int(list.Attr.Total),
		},
	}, nil
}

// decodeTrackArray accepts an array, a single object (Last.fm collapses
// one-element lists), or nothing.
func decodeTrackArray(data json.RawMessage) ([]apiTrack, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		return nil, nil
	}
	switch data[0] {
	case '[':
		var tracks []apiTrack
		if err := json.Unmarshal(data, &tracks); err != nil {
			return nil, fmt.Errorf("failed to parse track list: %w", err)
		}
		return tracks, nil
	case '{':
		var track apiTrack
		if err := json.Unmarshal(data, &track); err != nil {
			return nil, fmt.Errorf("failed to parse track: %w", err)
		}
		return []apiTrack{track}, nil
	default:
		return nil, fmt.Errorf("unexpected track value %.20q", data)
	}
}

func (t apiTrack) toTrack(method Method) (Track, error) {
	track := Track{
		Artist: t.Artist.value(),
		Name:   t.Name,
		MBID:   t.MBID,
		URL:    t.URL,
	}
	if track.Artist == "" && track.Name == "" {
		return Track{}, errors.New("entry has neither artist nor name")
	}
	if t.Album != nil {
		track.Album = t.Album.value()
	}

	if method == TopTracks {
		if t.PlayCount <= 0 {
			return Track{}, fmt.Errorf("invalid playcount %d", t.PlayCount)
		}
		track.PlayCount = int(t.PlayCount)
		if t.Attr != nil {
			track.Rank = int(t.Attr.Rank)
		}
		return track, nil
	}

	nowPlaying := t.Attr != nil && t.Attr.NowPlaying == "true"
	if t.Date != nil && !nowPlaying {
		if t.Date.UTS <= 0 {
			return Track{}, fmt.Errorf("invalid date.uts %d", t.Date.UTS)
		}
		date := time.Unix(int64(t.Date.UTS), 0).UTC()
		track.Date = &date
	}
	return track, nil
}

func containerName(method Method) string {
	switch method {
	case LovedTracks:
		return "lovedtracks"
	case TopTracks:
		return "toptracks"
	default:
		return "recenttracks"
	}
}
