//go:build integration
// +build integration

package main

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// fakeRecentTracks serves a fixed recent-tracks history, one page per request.
func fakeRecentTracks(t *testing.T, total int) *httptest.Server {
	t.Helper()

	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		if q.Get("method") != "user.getrecenttracks" {
			w.WriteHeader(http.StatusBadRequest)
			fmt.Fprint(w, `{"error": 6, "message": "Invalid parameters"}`)
			return
		}
		page, _ := strconv.Atoi(q.Get("page"))
		limit, _ := strconv.Atoi(q.Get("limit"))
		totalPages := (total + limit - 1) / limit

		var tracks []string
		for i := (page - 1) * limit; i < page*limit && i < total; i++ {
			tracks = append(tracks, fmt.Sprintf(
				`{"artist": {"#text": "Artist %d"}, "name": "Track %d", "album": {"#text": ""}, "url": "", "date": {"uts": "%d"}}`,
				i%3, i, 1700000000-i*60))
		}

		fmt.Fprintf(w, `{"recenttracks": {"track": [%s], "@attr": {"user": %q, "page": "%d", "perPage": "%d", "totalPages": "%d", "total": "%d"}}}`,
			strings.Join(tracks, ","), q.Get("user"), page, limit, totalPages, total)
	}))
}

func buildBinary(t *testing.T) string {
	t.Helper()

	bin := filepath.Join(t.TempDir(), "scrobstat_test")
	buildCmd := exec.Command("go", "build", "-o", bin, ".")
	if output, err := buildCmd.CombinedOutput(); err != nil {
		t.Fatalf("Failed to build binary: %v\n%s", err, output)
	}
	return bin
}

// testEnv isolates the binary from the user's config file.
func testEnv(t *testing.T, baseURL string) []string {
	t.Helper()

	return append(os.Environ(),
		"HOME="+t.TempDir(),
		"SCROBSTAT_LASTFM_API_KEY=test_key",
		"SCROBSTAT_LASTFM_USERNAME=rj",
		"SCROBSTAT_LASTFM_BASE_URL="+baseURL,
		"SCROBSTAT_FETCH_REQUESTS_PER_SECOND=0",
	)
}

// TestFetchAndAnalyze fetches a history into a data directory, then analyzes
// the saved export offline.
func TestFetchAndAnalyze(t *testing.T) {
	bin := buildBinary(t)
	server := fakeRecentTracks(t, 45)
	defer server.Close()

	dataDir := t.TempDir()

	fetch := exec.Command(bin, "fetch",
		"--data-dir", dataDir,
		"--limit", "all",
		"--format", "csv",
		"--log-level", "debug")
	fetch.Dir = t.TempDir()
	fetch.Env = testEnv(t, server.URL)
	output, err := fetch.CombinedOutput()
	if err != nil {
		t.Fatalf("Fetch failed: %v\n%s", err, output)
	}
	if !strings.Contains(string(output), "Fetched 45 recent tracks for rj") {
		t.Errorf("Unexpected fetch output:\n%s", output)
	}

	exports, _ := filepath.Glob(filepath.Join(dataDir, "rj_recent_*.csv"))
	if len(exports) != 1 {
		t.Fatalf("Expected one export, got %v", exports)
	}

	analyze := exec.Command(bin, "analyze", exports[0], "--top", "2", "--threshold", "15")
	analyze.Dir = t.TempDir()
	analyze.Env = testEnv(t, server.URL)
	output, err = analyze.CombinedOutput()
	if err != nil {
		t.Fatalf("Analyze failed: %v\n%s", err, output)
	}
	for _, want := range []string{
		"Scrobbles:        45",
		"Distinct artists: 3",
		"Distinct tracks:  45",
		"Artists with at least 15 plays: 3",
	} {
		if !strings.Contains(string(output), want) {
			t.Errorf("Expected analyze output to contain %q, got:\n%s", want, output)
		}
	}
}

// TestFetchInvalidLimit checks that a bad limit fails before any request.
func TestFetchInvalidLimit(t *testing.T) {
	bin := buildBinary(t)

	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requests++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cmd := exec.Command(bin, "fetch", "--limit", "0", "--data-dir", t.TempDir())
	cmd.Dir = t.TempDir()
	cmd.Env = testEnv(t, server.URL)
	output, err := cmd.CombinedOutput()
	if err == nil {
		t.Fatalf("Expected fetch to fail, got:\n%s", output)
	}
	if requests != 0 {
		t.Errorf("Expected no requests, got %d", requests)
	}
}

// TestNowCommand checks the exit code when nothing is playing.
func TestNowCommand(t *testing.T) {
	bin := buildBinary(t)
	server := fakeRecentTracks(t, 3)
	defer server.Close()

	cmd := exec.Command(bin, "now")
	cmd.Dir = t.TempDir()
	cmd.Env = testEnv(t, server.URL)
	output, err := cmd.CombinedOutput()

	exitErr, ok := err.(*exec.ExitError)
	if !ok || exitErr.ExitCode() != 1 {
		t.Fatalf("Expected exit code 1 with nothing playing, got %v\n%s", err, output)
	}
}

// BenchmarkAnalyzeCommand measures analyzing a saved export end to end.
func BenchmarkAnalyzeCommand(b *testing.B) {
	buildCmd := exec.Command("go", "build", "-o", "scrobstat_test", ".")
	if err := buildCmd.Run(); err != nil {
		b.Fatalf("Failed to build binary: %v", err)
	}
	defer os.Remove("scrobstat_test")

	var sb strings.Builder
	sb.WriteString("artist,name,album,mbid,url,date\n")
	for i := 0; i < 5000; i++ {
		fmt.Fprintf(&sb, "Artist %d,Track %d,,,,%d\n", i%50, i%700, 1700000000-i*60)
	}
	export := filepath.Join(b.TempDir(), "bench_recent_20240101_000000.csv")
	if err := os.WriteFile(export, []byte(sb.String()), 0o644); err != nil {
		b.Fatalf("Failed to write export: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cmd := exec.Command("./scrobstat_test", "analyze", export)
		cmd.Env = append(os.Environ(), "HOME="+b.TempDir())
		if err := cmd.Run(); err != nil {
			b.Fatalf("Analyze failed: %v", err)
		}
	}
}
