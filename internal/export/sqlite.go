package export

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/jfmyers9/scrobstat/pkg/lastfm"
	_ "modernc.org/sqlite"
)

const trackSchema = `
	CREATE TABLE IF NOT EXISTS tracks (
		position INTEGER PRIMARY KEY,
		artist TEXT NOT NULL,
		name TEXT NOT NULL,
		album TEXT NOT NULL DEFAULT '',
		mbid TEXT NOT NULL DEFAULT '',
		url TEXT NOT NULL DEFAULT '',
		date INTEGER,
		playcount INTEGER NOT NULL DEFAULT 0,
		rank INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_tracks_date ON tracks(date);
	CREATE INDEX IF NOT EXISTS idx_tracks_artist ON tracks(artist, name);
`

// openTrackDB opens a single-connection SQLite database for export files.
func openTrackDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Rollback journal rather than WAL: the file is renamed after writing
	// and must be self-contained.
	pragmas := []string{
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = FULL",
		"PRAGMA journal_mode = DELETE",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA cache_size = -64000",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	return db, nil
}

// writeSQLiteAtomic builds the database under a temporary name and renames
// it over path once it is closed and synced.
func writeSQLiteAtomic(path string, tracks []lastfm.Track) (err error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: failed to create temp file: %w", ErrStorage, err)
	}
	tmpPath := tmp.Name()
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("%w: failed to close temp file: %w", ErrStorage, err)
	}
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
			_ = os.Remove(tmpPath + "-journal")
		}
	}()

	if err := insertTracks(tmpPath, tracks); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrStorage, path, err)
	}

	if err := syncFile(tmpPath); err != nil {
		return fmt.Errorf("%w: failed to sync %s: %w", ErrStorage, path, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("%w: failed to rename into %s: %w", ErrStorage, path, err)
	}
	return nil
}

func insertTracks(path string, tracks []lastfm.Track) error {
	db, err := openTrackDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(trackSchema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(`
		INSERT INTO tracks (position, artist, name, album, mbid, url, date, playcount, rank)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, t := range tracks {
		var date sql.NullInt64
		if t.Date != nil {
			date = sql.NullInt64{Int64: t.Date.Unix(), Valid: true}
		}
		if _, err := stmt.Exec(i, t.Artist, t.Name, t.Album, t.MBID, t.URL, date, t.PlayCount, t.Rank); err != nil {
			return fmt.Errorf("failed to insert track %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit tracks: %w", err)
	}
	return db.Close()
}

func loadSQLite(path string) ([]lastfm.Track, error) {
	// sql.Open would create a missing file.
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: failed to open %s: %w", ErrStorage, path, err)
	}

	db, err := openTrackDB(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrStorage, path, err)
	}
	defer db.Close()

	rows, err := db.Query(`
		SELECT artist, name, album, mbid, url, date, playcount, rank
		FROM tracks
		ORDER BY position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: failed to query tracks in %s: %w", ErrStorage, lastfm.ErrDecode, path, err)
	}
	defer rows.Close()

	tracks := make([]lastfm.Track, 0)
	for rows.Next() {
		var t lastfm.Track
		var date sql.NullInt64
		if err := rows.Scan(&t.Artist, &t.Name, &t.Album, &t.MBID, &t.URL, &date, &t.PlayCount, &t.Rank); err != nil {
			return nil, fmt.Errorf("%w: %w: failed to scan track: %w", ErrStorage, lastfm.ErrDecode, err)
		}
		if date.Valid {
			d := time.Unix(date.Int64, 0).UTC()
			t.Date = &d
		}
		tracks = append(tracks, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: failed to iterate tracks: %w", ErrStorage, err)
	}

	return tracks, nil
}

func syncFile(path string) error {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
