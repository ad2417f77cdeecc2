package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"text/template"
	"time"

	"github.com/jfmyers9/scrobstat/internal/display"
	"github.com/jfmyers9/scrobstat/pkg/lastfm"
	"github.com/spf13/cobra"
)

// nowCmd represents the now command
var nowCmd = &cobra.Command{
	Use:   "now",
	Short: "Display the track a Last.fm user is playing",
	Long: `Ask Last.fm for the user's now-playing track and print it.

The output format can be customized in ~/.config/scrobstat/config.yaml
using a Go template. Available fields: .Artist, .Name, .Album, .URL

Exit codes:
  0 - Track is currently playing
  1 - Nothing playing, or the request failed`,
	Args: cobra.NoArgs,
	RunE: runNow,
}

func init() {
	rootCmd.AddCommand(nowCmd)

	nowCmd.Flags().StringP("format", "f", "", "Output format template (overrides config)")
	nowCmd.Flags().IntP("width", "w", 0, "Fixed output width (0=disabled, overrides config)")
	nowCmd.Flags().Bool("marquee", false, "Enable marquee scrolling for long text (overrides config)")
	nowCmd.Flags().StringP("user", "u", "", "Last.fm username (overrides config)")
}

func runNow(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if user, _ := cmd.Flags().GetString("user"); user != "" {
		cfg.LastFM.Username = user
	}
	if formatFlag, _ := cmd.Flags().GetString("format"); formatFlag != "" {
		cfg.OutputFormat = formatFlag
	}
	if err := cfg.RequireCredentials(); err != nil {
		return err
	}

	logger := setupLogger(cfg.LogFile, cfg.LogLevel)
	client, err := newClient(cfg, logger, feedFilter{})
	if err != nil {
		return err
	}

	track, err := client.NowPlaying(ctx)
	if err != nil {
		return fmt.Errorf("failed to get now playing track: %w", err)
	}

	// Nothing playing
	if track == nil {
		os.Exit(1)
		return nil
	}

	output, err := formatTrack(track, cfg.OutputFormat)
	if err != nil {
		return fmt.Errorf("failed to format output: %w", err)
	}

	width, _ := cmd.Flags().GetInt("width")
	if width == 0 {
		width = cfg.OutputWidth
	}

	marquee := cfg.MarqueeEnabled
	if cmd.Flags().Changed("marquee") {
		marquee, _ = cmd.Flags().GetBool("marquee")
	}

	if width > 0 {
		if marquee {
			output = display.Marquee(output, width, cfg.MarqueeSpeed, cfg.MarqueeSeparator, time.Now())
		} else {
			output = display.PadToWidth(output, width)
		}
	}

	fmt.Fprintln(cmd.OutOrStdout(), output)
	return nil
}

// formatTrack applies the template to the track data
func formatTrack(track *lastfm.Track, templateStr string) (string, error) {
	tmpl, err := template.New("output").Parse(templateStr)
	if err != nil {
		return "", fmt.Errorf("invalid template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, track); err != nil {
		return "", fmt.Errorf("template execution failed: %w", err)
	}

	return buf.String(), nil
}
