package stats

import (
	"fmt"
	"io"
	"strings"

	"github.com/jfmyers9/scrobstat/internal/display"
)

// DefaultNameWidth is the column width for names in a report.
const DefaultNameWidth = 40

// ReportOptions configures Report.
type ReportOptions struct {
	Title     string // Heading, e.g. "rj recent tracks"
	NameWidth int    // Name column width (default DefaultNameWidth)
	Threshold int    // Play count for the threshold section; 0 omits it
}

// Report writes a human-readable summary of s to w.
func Report(w io.Writer, s *Stats, opts ReportOptions) error {
	width := opts.NameWidth
	if width <= 0 {
		width = DefaultNameWidth
	}

	r := &reportWriter{w: w}

	if opts.Title != "" {
		r.printf("%s\n%s\n", opts.Title, strings.Repeat("=", len(opts.Title)))
	}
	r.printf("Scrobbles:        %d\n", s.Total())
	if s.NowPlaying() > 0 {
		r.printf("Now playing:      %d\n", s.NowPlaying())
	}
	r.printf("Distinct artists: %d\n", s.DistinctArtists())
	r.printf("Distinct tracks:  %d\n", s.DistinctTracks())

	if a, ok := s.MostPlayedArtist(); ok {
		r.printf("Most played artist: %s (%d)\n", a.Artist, a.Count)
	}
	if t, ok := s.MostPlayedTrack(); ok {
		r.printf("Most played track:  %s (%d)\n", t.Key(), t.Count)
	}

	if top := s.TopArtists(); len(top) > 0 {
		r.printf("\nTop %d artists\n", len(top))
		for i, a := range top {
			r.printf("%4d. %s %6d\n", i+1, display.PadToWidth(a.Artist, width), a.Count)
		}
	}

	if top := s.TopTracks(); len(top) > 0 {
		r.printf("\nTop %d tracks\n", len(top))
		for i, t := range top {
			r.printf("%4d. %s %6d\n", i+1, display.PadToWidth(t.Key().String(), width), t.Count)
		}
	}

	if opts.Threshold > 0 {
		r.printf("\nArtists with at least %d plays: %d\n", opts.Threshold, len(s.ArtistsAtLeast(opts.Threshold)))
		r.printf("Tracks with at least %d plays:  %d\n", opts.Threshold, len(s.TracksAtLeast(opts.Threshold)))
		r.printf("Tracks with fewer plays:        %d\n", len(s.TracksBelow(opts.Threshold)))
	}

	if r.err != nil {
		return fmt.Errorf("failed to write report: %w", r.err)
	}
	return nil
}

// reportWriter keeps the first write error so Report can check once.
type reportWriter struct {
	w   io.Writer
	err error
}

func (r *reportWriter) printf(format string, args ...interface{}) {
	if r.err != nil {
		return
	}
	_, r.err = fmt.Fprintf(r.w, format, args...)
}
