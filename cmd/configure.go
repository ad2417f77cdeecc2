package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jfmyers9/scrobstat/internal/config"
	"github.com/jfmyers9/scrobstat/pkg/lastfm"
	"github.com/spf13/cobra"
)

var configureSkipCheck bool

var configureCmd = &cobra.Command{
	Use:   "configure",
	Short: "Set the Last.fm API key and username",
	Long: `Prompt for a Last.fm API key and username, check them against Last.fm,
and save them to the config file.

You can get an API key from: https://www.last.fm/api/account/create`,
	Args: cobra.NoArgs,
	RunE: runConfigure,
}

func init() {
	rootCmd.AddCommand(configureCmd)

	configureCmd.Flags().BoolVar(&configureSkipCheck, "skip-check", false, "Save without checking the credentials against Last.fm")
}

func runConfigure(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	fmt.Fprintln(out, "Last.fm Configuration")
	fmt.Fprintln(out, "=====================")
	fmt.Fprintln(out)

	if err := promptCredentials(reader, out, cfg); err != nil {
		return err
	}

	if !configureSkipCheck {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		fmt.Fprintln(out, "\nChecking credentials...")
		total, err := checkCredentials(ctx, cfg)
		if err != nil {
			return fmt.Errorf("credential check failed: %w", err)
		}
		fmt.Fprintf(out, "✓ %s has %d scrobbles\n", cfg.LastFM.Username, total)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save config: %w", err)
	}

	fmt.Fprintf(out, "✓ Saved to %s/config.yaml\n", config.GetConfigDir())
	fmt.Fprintln(out, "\nYou can now run 'scrobstat fetch'.")
	return nil
}

// promptCredentials asks for an API key and username, offering to keep
// values already configured.
func promptCredentials(reader *bufio.Reader, out io.Writer, cfg *config.Config) error {
	if cfg.LastFM.APIKey != "" && cfg.LastFM.Username != "" {
		fmt.Fprintf(out, "Found existing configuration.\n")
		fmt.Fprintf(out, "API Key:  %s\n", cfg.LastFM.APIKey)
		fmt.Fprintf(out, "Username: %s\n", cfg.LastFM.Username)
		fmt.Fprint(out, "\nKeep existing settings? [Y/n]: ")
		response, err := reader.ReadString('\n')
		if err != nil {
			response = "y"
		}
		response = strings.TrimSpace(strings.ToLower(response))
		if response != "" && response != "y" && response != "yes" {
			cfg.LastFM.APIKey = ""
			cfg.LastFM.Username = ""
		}
	}

	if cfg.LastFM.APIKey == "" {
		fmt.Fprint(out, "Enter your Last.fm API Key: ")
		apiKey, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		cfg.LastFM.APIKey = strings.TrimSpace(apiKey)
	}

	if cfg.LastFM.Username == "" {
		fmt.Fprint(out, "Enter the Last.fm username to fetch: ")
		username, err := reader.ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("failed to read username: %w", err)
		}
		cfg.LastFM.Username = strings.TrimSpace(username)
	}

	return cfg.RequireCredentials()
}

// checkCredentials fetches a single scrobble to confirm the key and user
// are valid, returning the user's scrobble count.
func checkCredentials(ctx context.Context, cfg *config.Config) (int, error) {
	client, err := lastfm.NewClient(lastfm.Config{
		APIKey:   cfg.LastFM.APIKey,
		Username: cfg.LastFM.Username,
		BaseURL:  cfg.LastFM.BaseURL,
		Timeout:  cfg.Fetch.Timeout,
	})
	if err != nil {
		return 0, err
	}

	page, err := client.FetchPage(ctx, lastfm.RecentTracks, 1, 1)
	if err != nil {
		return 0, err
	}
	return page.Info.Total, nil
}
