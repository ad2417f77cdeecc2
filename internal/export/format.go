// Package export saves fetched history to disk and loads it back.
//
// Three encodings are supported: a JSON array of tracks, a flat CSV table
// and a SQLite database. Each round-trips every track field, and a
// now-playing entry stays distinguishable from a dated one. Files are
// written to a temporary name and renamed into place, so a failed save
// never leaves a partial file behind.
package export

import (
	"errors"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ErrStorage wraps every read or write failure in this package.
var ErrStorage = errors.New("export: storage error")

// Format is a file encoding.
type Format string

const (
	JSON   Format = "json"
	CSV    Format = "csv"
	SQLite Format = "sqlite"
)

// TimestampLayout is the timestamp part of generated file names.
const TimestampLayout = "20060102_150405"

// ParseFormat parses a format name as given on the command line.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "json":
		return JSON, nil
	case "csv":
		return CSV, nil
	case "sqlite", "sqlite3", "db":
		return SQLite, nil
	}
	return "", fmt.Errorf("unknown export format %q (want json, csv or sqlite)", s)
}

// FormatFromPath picks the format from a file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return JSON, nil
	case ".csv":
		return CSV, nil
	case ".db", ".sqlite", ".sqlite3":
		return SQLite, nil
	}
	return "", fmt.Errorf("%w: cannot infer format of %s", ErrStorage, path)
}

// Ext returns the file extension, including the dot.
func (f Format) Ext() string {
	if f == SQLite {
		return ".db"
	}
	return "." + string(f)
}

// Filename returns "<prefix>_<YYYYMMDD_HHMMSS><ext>" for t.
func Filename(prefix string, format Format, t time.Time) string {
	return numberedFilename(prefix, format, t, 1)
}

// numberedFilename is Filename with a _n suffix for n > 1.
func numberedFilename(prefix string, format Format, t time.Time, n int) string {
	name := prefix + "_" + t.Format(TimestampLayout)
	if n > 1 {
		name += "_" + strconv.Itoa(n)
	}
	return name + format.Ext()
}
