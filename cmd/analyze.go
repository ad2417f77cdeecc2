package cmd

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/jfmyers9/scrobstat/internal/export"
	"github.com/jfmyers9/scrobstat/internal/stats"
	"github.com/spf13/cobra"
)

var (
	analyzeTop        int
	analyzeThreshold  int
	analyzeNowPlaying bool
	analyzeSaveStats  bool
	analyzeWidth      int
)

// analyzeCmd represents the analyze command
var analyzeCmd = &cobra.Command{
	Use:   "analyze FILE...",
	Short: "Report statistics for saved history",
	Long: `Load one or more files written by 'scrobstat fetch' and print play counts,
most played artists and tracks, and threshold counts. The file format is
taken from the extension (.json, .csv, .db).

No requests are made to Last.fm.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAnalyze,
}

func init() {
	rootCmd.AddCommand(analyzeCmd)

	analyzeCmd.Flags().IntVarP(&analyzeTop, "top", "t", 10, "Number of top artists and tracks to show")
	analyzeCmd.Flags().IntVar(&analyzeThreshold, "threshold", 0, "Report artists and tracks with at least this many plays")
	analyzeCmd.Flags().BoolVar(&analyzeNowPlaying, "include-now-playing", false, "Count now-playing entries per artist and track")
	analyzeCmd.Flags().BoolVar(&analyzeSaveStats, "save-stats", false, "Write statistics as JSON to the data directory")
	analyzeCmd.Flags().IntVarP(&analyzeWidth, "width", "w", stats.DefaultNameWidth, "Width of the name column")
}

func runAnalyze(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := setupLogger(cfg.LogFile, cfg.LogLevel)
	out := cmd.OutOrStdout()

	for i, path := range args {
		tracks, err := export.Load(path)
		if err != nil {
			return fmt.Errorf("failed to load %s: %w", path, err)
		}
		logger.Debug().Str("path", path).Int("tracks", len(tracks)).Msg("Loaded export")

		s := stats.Analyze(tracks, stats.Options{TopN: analyzeTop, IncludeNowPlaying: analyzeNowPlaying})

		if i > 0 {
			fmt.Fprintln(out)
		}
		err = stats.Report(out, s, stats.ReportOptions{
			Title:     filepath.Base(path),
			NameWidth: analyzeWidth,
			Threshold: analyzeThreshold,
		})
		if err != nil {
			return err
		}

		if analyzeSaveStats {
			saved, err := export.SaveStats(cfg.DataDir, exportPrefix(path), s)
			if err != nil {
				return fmt.Errorf("failed to save statistics: %w", err)
			}
			fmt.Fprintf(out, "\nSaved statistics to %s\n", saved)
		}
	}

	return nil
}

// exportName matches "<prefix>_<YYYYMMDD>_<HHMMSS>" with an optional "_<n>"
// added when several exports were written in the same second.
var exportName = regexp.MustCompile(`^(.+)_\d{8}_\d{6}(?:_\d+)?$`)

// exportPrefix recovers "<user>_<method>" from an export file name,
// falling back to the bare file name.
func exportPrefix(path string) string {
	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	if m := exportName.FindStringSubmatch(name); m != nil {
		return m[1]
	}
	return name
}
