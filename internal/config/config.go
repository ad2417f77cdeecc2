package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// ErrInvalid is returned when configuration values fail validation.
var ErrInvalid = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	// Last.fm API access
	LastFM LastFMConfig

	// History fetch tuning
	Fetch FetchConfig

	// Directory exports are written to
	// Default: "data"
	DataDir string `validate:"required"`

	// Log level: debug, info, warn, error
	LogLevel string `validate:"oneof=debug info warn error"`

	// Log file path; empty logs to stderr
	LogFile string

	// Output format template for the now command
	// Default: "{{.Artist}} - {{.Name}}"
	OutputFormat string `validate:"required"`

	// Fixed output width for the now command (0 = disabled)
	OutputWidth int `validate:"min=0"`

	// Marquee scrolling for the now command
	MarqueeEnabled   bool
	MarqueeSpeed     int `validate:"min=1"`
	MarqueeSeparator string
}

// LastFMConfig holds Last.fm specific configuration
type LastFMConfig struct {
	APIKey   string `validate:"required"`
	Username string `validate:"required"`
	BaseURL  string `validate:"omitempty,url"`
}

// FetchConfig controls pagination, pacing and rate-limit backoff.
type FetchConfig struct {
	PageSize          int           `validate:"min=1,max=200"`
	MaxRetries        int           `validate:"min=0,max=50"`
	MinBackoff        time.Duration `validate:"gt=0"`
	MaxBackoff        time.Duration `validate:"gtefield=MinBackoff"`
	RequestsPerSecond float64       `validate:"gte=0"` // 0 disables pacing
	Timeout           time.Duration `validate:"gt=0"`
	Period            string        `validate:"oneof=overall 7day 1month 3month 6month 12month"` // Top tracks chart range
}

var (
	validate     *validator.Validate
	validateOnce sync.Once
)

func getValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New(validator.WithRequiredStructEnabled())
	})
	return validate
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from the default locations
// when path is empty. A missing default config file is not an error.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")

		// Config file locations (in order of precedence)
		v.AddConfigPath(getConfigDir())
		v.AddConfigPath(".")
	}

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Read from environment variables, e.g. SCROBSTAT_LASTFM_API_KEY
	v.SetEnvPrefix("SCROBSTAT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	cfg := &Config{
		LastFM: LastFMConfig{
			APIKey:   v.GetString("lastfm.api_key"),
			Username: v.GetString("lastfm.username"),
			BaseURL:  v.GetString("lastfm.base_url"),
		},
		Fetch: FetchConfig{
			PageSize:          v.GetInt("fetch.page_size"),
			MaxRetries:        v.GetInt("fetch.max_retries"),
			MinBackoff:        v.GetDuration("fetch.min_backoff"),
			MaxBackoff:        v.GetDuration("fetch.max_backoff"),
			RequestsPerSecond: v.GetFloat64("fetch.requests_per_second"),
			Timeout:           v.GetDuration("fetch.timeout"),
			Period:            v.GetString("fetch.period"),
		},
		DataDir:          v.GetString("data_dir"),
		LogLevel:         strings.ToLower(v.GetString("log_level")),
		LogFile:          v.GetString("log_file"),
		OutputFormat:     v.GetString("output_format"),
		OutputWidth:      v.GetInt("output_width"),
		MarqueeEnabled:   v.GetBool("marquee_enabled"),
		MarqueeSpeed:     v.GetInt("marquee_speed"),
		MarqueeSeparator: v.GetString("marquee_separator"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("lastfm.api_key", "")
	v.SetDefault("lastfm.username", "")
	v.SetDefault("lastfm.base_url", "")
	v.SetDefault("fetch.page_size", 200)
	v.SetDefault("fetch.max_retries", 5)
	v.SetDefault("fetch.min_backoff", "1s")
	v.SetDefault("fetch.max_backoff", "30s")
	v.SetDefault("fetch.requests_per_second", 5)
	v.SetDefault("fetch.timeout", "30s")
	v.SetDefault("fetch.period", "overall")
	v.SetDefault("data_dir", "data")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_file", "")
	v.SetDefault("output_format", "{{.Artist}} - {{.Name}}")
	v.SetDefault("output_width", 0)
	v.SetDefault("marquee_enabled", false)
	v.SetDefault("marquee_speed", 2)
	v.SetDefault("marquee_separator", " • ")
}

// Validate checks every setting except the Last.fm credentials, which only
// commands that talk to Last.fm need (see RequireCredentials).
func (c *Config) Validate() error {
	return describe(getValidator().StructExcept(c, "LastFM.APIKey", "LastFM.Username"))
}

// RequireCredentials checks that an API key and username are configured.
func (c *Config) RequireCredentials() error {
	if err := describe(getValidator().Struct(c.LastFM)); err != nil {
		return fmt.Errorf("%w (run 'scrobstat configure' or set SCROBSTAT_LASTFM_API_KEY and SCROBSTAT_LASTFM_USERNAME)", err)
	}
	return nil
}

// describe turns validator output into a single ErrInvalid error.
func describe(err error) error {
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return fmt.Errorf("%w: %w", ErrInvalid, err)
	}

	messages := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msg := fmt.Sprintf("%s failed '%s'", fe.StructNamespace(), fe.Tag())
		if fe.Param() != "" {
			msg = fmt.Sprintf("%s failed '%s=%s'", fe.StructNamespace(), fe.Tag(), fe.Param())
		}
		messages = append(messages, msg)
	}
	return fmt.Errorf("%w: %s", ErrInvalid, strings.Join(messages, "; "))
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "scrobstat")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to the default config file
func (c *Config) Save() error {
	return c.SaveFile(filepath.Join(getConfigDir(), "config.yaml"))
}

// SaveFile writes configuration to path as YAML
func (c *Config) SaveFile(path string) error {
	v := viper.New()

	v.Set("lastfm.api_key", c.LastFM.APIKey)
	v.Set("lastfm.username", c.LastFM.Username)
	v.Set("lastfm.base_url", c.LastFM.BaseURL)
	v.Set("fetch.page_size", c.Fetch.PageSize)
	v.Set("fetch.max_retries", c.Fetch.MaxRetries)
	v.Set("fetch.min_backoff", c.Fetch.MinBackoff.String())
	v.Set("fetch.max_backoff", c.Fetch.MaxBackoff.String())
	v.Set("fetch.requests_per_second", c.Fetch.RequestsPerSecond)
	v.Set("fetch.timeout", c.Fetch.Timeout.String())
	v.Set("fetch.period", c.Fetch.Period)
	v.Set("data_dir", c.DataDir)
	v.Set("log_level", c.LogLevel)
	v.Set("log_file", c.LogFile)
	v.Set("output_format", c.OutputFormat)
	v.Set("output_width", c.OutputWidth)
	v.Set("marquee_enabled", c.MarqueeEnabled)
	v.Set("marquee_speed", c.MarqueeSpeed)
	v.Set("marquee_separator", c.MarqueeSeparator)

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
