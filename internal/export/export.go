package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/goccy/go-json"
	"github.com/jfmyers9/scrobstat/internal/stats"
	"github.com/jfmyers9/scrobstat/pkg/lastfm"
)

var csvHeader = []string{"artist", "name", "album", "mbid", "url", "date", "playcount", "rank"}

// csvHistoryColumns is the column count of files without chart columns.
const csvHistoryColumns = 6

// Save writes tracks to a new timestamp-named file in dir, creating dir if
// needed, and returns the file's path.
func Save(dir, prefix string, format Format, tracks []lastfm.Track) (string, error) {
	return saveAt(dir, prefix, format, tracks, time.Now())
}

func saveAt(dir, prefix string, format Format, tracks []lastfm.Track, now time.Time) (path string, err error) {
	switch format {
	case JSON, CSV, SQLite:
	default:
		return "", fmt.Errorf("%w: unsupported format %q", ErrStorage, format)
	}

	path, err = reservePath(dir, prefix, format, now)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	switch format {
	case JSON:
		err = writeFileAtomic(path, func(w io.Writer) error { return encodeJSON(w, tracks) })
	case CSV:
		err = writeFileAtomic(path, func(w io.Writer) error { return encodeCSV(w, tracks) })
	case SQLite:
		err = writeSQLiteAtomic(path, tracks)
	}
	if err != nil {
		return "", err
	}
	return path, nil
}

// SaveStats writes the JSON summary of s to a new timestamp-named file in
// dir and returns its path.
func SaveStats(dir, prefix string, s *stats.Stats) (string, error) {
	return saveStatsAt(dir, prefix, s, time.Now())
}

func saveStatsAt(dir, prefix string, s *stats.Stats, now time.Time) (path string, err error) {
	path, err = reservePath(dir, prefix+"_stats", JSON, now)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = os.Remove(path)
		}
	}()

	err = writeFileAtomic(path, func(w io.Writer) error {
		data, err := json.MarshalIndent(s, "", "  ")
		if err != nil {
			return err
		}
		_, err = w.Write(append(data, '\n'))
		return err
	})
	if err != nil {
		return "", err
	}
	return path, nil
}

// maxNameAttempts bounds the numeric suffixes tried for one timestamp.
const maxNameAttempts = 1000

// reservePath creates dir if needed and claims an unused file name for
// prefix at now, appending _2, _3, ... when earlier saves in the same
// second took the plain name. The empty placeholder it creates is replaced
// by the caller's atomic write.
func reservePath(dir, prefix string, format Format, now time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("%w: failed to create data directory: %w", ErrStorage, err)
	}

	for n := 1; n <= maxNameAttempts; n++ {
		path := filepath.Join(dir, numberedFilename(prefix, format, now, n))
		f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, fs.ErrExist) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("%w: failed to create %s: %w", ErrStorage, path, err)
		}
		if err := f.Close(); err != nil {
			_ = os.Remove(path)
			return "", fmt.Errorf("%w: failed to close %s: %w", ErrStorage, path, err)
		}
		return path, nil
	}
	return "", fmt.Errorf("%w: no free file name for %s in %s", ErrStorage, Filename(prefix, format, now), dir)
}

// Load reads a file written by Save. The format is taken from the extension.
func Load(path string) ([]lastfm.Track, error) {
	format, err := FormatFromPath(path)
	if err != nil {
		return nil, err
	}

	if format == SQLite {
		return loadSQLite(path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrStorage, path, err)
	}
	defer f.Close()

	var tracks []lastfm.Track
	if format == JSON {
		tracks, err = decodeJSON(f)
	} else {
		tracks, err = decodeCSV(f)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %s: %w", ErrStorage, lastfm.ErrDecode, path, err)
	}
	return tracks, nil
}

// writeFileAtomic writes to a temporary file next to path, syncs it and
// renames it over path. On failure the temporary file is removed.
func writeFileAtomic(path string, write func(w io.Writer) error) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrStorage, err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()

	bw := bufio.NewWriter(tmp)
	if err = write(bw); err != nil {
		return fmt.Errorf("%w: failed to encode %s: %w", ErrStorage, path, err)
	}
	if err = bw.Flush(); err != nil {
		return fmt.Errorf("%w: failed to write %s: %w", ErrStorage, path, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("%w: failed to sync %s: %w", ErrStorage, path, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("%w: failed to close %s: %w", ErrStorage, path, err)
	}
	if err = os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("%w: failed to rename into %s: %w", ErrStorage, path, err)
	}
	return nil
}

func encodeJSON(w io.Writer, tracks []lastfm.Track) error {
	if tracks == nil {
		tracks = []lastfm.Track{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(tracks)
}

func decodeJSON(r io.Reader) ([]lastfm.Track, error) {
	var tracks []lastfm.Track
	if err := json.NewDecoder(r).Decode(&tracks); err != nil {
		return nil, err
	}
	if tracks == nil {
		tracks = []lastfm.Track{}
	}
	for i, t := range tracks {
		if t.Artist == "" && t.Name == "" {
			return nil, fmt.Errorf("record %d has neither artist nor name", i)
		}
	}
	return tracks, nil
}

func encodeCSV(w io.Writer, tracks []lastfm.Track) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, t := range tracks {
		date := ""
		if t.Date != nil {
			date = strconv.FormatInt(t.Date.Unix(), 10)
		}
		playCount, rank := "", ""
		if t.PlayCount > 0 {
			playCount = strconv.Itoa(t.PlayCount)
		}
		if t.Rank > 0 {
			rank = strconv.Itoa(t.Rank)
		}
		if err := cw.Write([]string{t.Artist, t.Name, t.Album, t.MBID, t.URL, date, playCount, rank}); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func decodeCSV(r io.Reader) ([]lastfm.Track, error) {
	// Every row must have as many fields as the header.
	cr := csv.NewReader(r)

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if len(header) != len(csvHeader) && len(header) != csvHistoryColumns {
		return nil, fmt.Errorf("expected %d or %d columns, got %d", csvHistoryColumns, len(csvHeader), len(header))
	}
	for i, name := range header {
		if name != csvHeader[i] {
			return nil, fmt.Errorf("unexpected column %q at %d, want %q", name, i, csvHeader[i])
		}
	}

	tracks := make([]lastfm.Track, 0)
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		t := lastfm.Track{Artist: row[0], Name: row[1], Album: row[2], MBID: row[3], URL: row[4]}
		if t.Artist == "" && t.Name == "" {
			return nil, fmt.Errorf("row %d has neither artist nor name", len(tracks)+1)
		}
		if row[5] != "" {
			unix, err := strconv.ParseInt(row[5], 10, 64)
			if err != nil {
				return nil, fmt.Errorf("row %d: invalid date %q", len(tracks)+1, row[5])
			}
			date := time.Unix(unix, 0).UTC()
			t.Date = &date
		}
		if len(row) > csvHistoryColumns {
			if t.PlayCount, err = parseCount(row[6]); err != nil {
				return nil, fmt.Errorf("row %d: invalid playcount %q", len(tracks)+1, row[6])
			}
			if t.Rank, err = parseCount(row[7]); err != nil {
				return nil, fmt.Errorf("row %d: invalid rank %q", len(tracks)+1, row[7])
			}
		}
		tracks = append(tracks, t)
	}
	return tracks, nil
}

// parseCount parses an optional non-negative CSV integer; empty is zero.
func parseCount(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("negative count %d", n)
	}
	return n, nil
}
