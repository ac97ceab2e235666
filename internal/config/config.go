package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jfmyers9/firstscrobbles/internal/fetch"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds application configuration
type Config struct {
	// Last.fm API credentials
	LastFM LastFMConfig

	// Default user to fetch when none is given on the command line
	Username string

	// Where exported files are written
	// Default: "."
	OutputDir string

	// Output format: xlsx, csv or table
	// Default: "xlsx"
	Format string

	// Row order: first-seen, date or artist
	// Default: "first-seen"
	Sort string

	// IANA time zone for reported dates ("" or "Local" = system zone)
	Timezone string

	// Fetch tuning
	Fetch FetchConfig

	// Result store
	Store StoreConfig
}

// LastFMConfig holds Last.fm specific configuration
type LastFMConfig struct {
	APIKey  string
	BaseURL string
}

// FetchConfig holds pagination, pacing and retry settings.
type FetchConfig struct {
	MaxRetries     int
	Limit          int
	RateLimitDelay time.Duration
	BatchSize      int
	BatchDelay     time.Duration
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	RequestTimeout time.Duration
}

// StoreConfig holds the SQLite result store settings.
type StoreConfig struct {
	// Database path; empty disables the store
	Path string
}

// Load reads configuration from a .env file, the config file and the
// environment, in increasing order of precedence.
func Load() (*Config, error) {
	// A .env next to the binary is optional; existing env vars win.
	_ = godotenv.Load()

	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	// Config file locations (in order of precedence)
	configDir := getConfigDir()
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	// Read config file (optional - don't fail if missing)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	// Read from environment variables, e.g. FIRSTSCROBBLES_FETCH_BATCH_SIZE
	v.SetEnvPrefix("FIRSTSCROBBLES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("lastfm.api_key", "FIRSTSCROBBLES_LASTFM_API_KEY", "LASTFM_API_KEY")

	// Map config to struct
	cfg := &Config{
		LastFM: LastFMConfig{
			APIKey:  v.GetString("lastfm.api_key"),
			BaseURL: v.GetString("lastfm.base_url"),
		},
		Username:  v.GetString("username"),
		OutputDir: v.GetString("output_dir"),
		Format:    v.GetString("format"),
		Sort:      v.GetString("sort"),
		Timezone:  v.GetString("timezone"),
		Fetch: FetchConfig{
			MaxRetries:     v.GetInt("fetch.max_retries"),
			Limit:          v.GetInt("fetch.limit"),
			RateLimitDelay: v.GetDuration("fetch.rate_limit_delay"),
			BatchSize:      v.GetInt("fetch.batch_size"),
			BatchDelay:     v.GetDuration("fetch.batch_delay"),
			InitialBackoff: v.GetDuration("fetch.initial_backoff"),
			MaxBackoff:     v.GetDuration("fetch.max_backoff"),
			RequestTimeout: v.GetDuration("fetch.request_timeout"),
		},
		Store: StoreConfig{
			Path: v.GetString("store.path"),
		},
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	defaults := fetch.DefaultConfig()

	v.SetDefault("lastfm.base_url", "")
	v.SetDefault("username", "")
	v.SetDefault("output_dir", ".")
	v.SetDefault("format", "xlsx")
	v.SetDefault("sort", "first-seen")
	v.SetDefault("timezone", "Local")
	v.SetDefault("fetch.max_retries", defaults.MaxRetries)
	v.SetDefault("fetch.limit", defaults.Limit)
	v.SetDefault("fetch.rate_limit_delay", defaults.RateLimitDelay)
	v.SetDefault("fetch.batch_size", defaults.BatchSize)
	v.SetDefault("fetch.batch_delay", defaults.BatchDelay)
	v.SetDefault("fetch.initial_backoff", defaults.InitialBackoff)
	v.SetDefault("fetch.max_backoff", defaults.MaxBackoff)
	v.SetDefault("fetch.request_timeout", defaults.RequestTimeout)
	v.SetDefault("store.path", filepath.Join(configDir, "runs.db"))
}

// Validate checks that the configuration can drive a fetch.
func (c *Config) Validate() error {
	var errs []error

	if c.LastFM.APIKey == "" {
		errs = append(errs, errors.New("lastfm.api_key is not set (run 'firstscrobbles configure' or set LASTFM_API_KEY)"))
	}

	f := c.Fetch
	if f.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("fetch.max_retries must be >= 0, got %d", f.MaxRetries))
	}
	if f.Limit < 1 || f.Limit > 200 {
		errs = append(errs, fmt.Errorf("fetch.limit must be between 1 and 200, got %d", f.Limit))
	}
	if f.BatchSize < 1 {
		errs = append(errs, fmt.Errorf("fetch.batch_size must be positive, got %d", f.BatchSize))
	}
	if f.RateLimitDelay < 0 || f.BatchDelay < 0 {
		errs = append(errs, errors.New("fetch delays must not be negative"))
	}
	if f.InitialBackoff <= 0 || f.MaxBackoff < f.InitialBackoff {
		errs = append(errs, fmt.Errorf("fetch backoff must satisfy 0 < initial (%s) <= max (%s)", f.InitialBackoff, f.MaxBackoff))
	}
	if f.RequestTimeout < 0 {
		errs = append(errs, fmt.Errorf("fetch.request_timeout must not be negative, got %s", f.RequestTimeout))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	switch c.Timezone {
	case "", "Local", "local":
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// DriverConfig converts the fetch settings for the pagination driver.
func (c *Config) DriverConfig() fetch.Config {
	return fetch.Config{
		Limit:          c.Fetch.Limit,
		MaxRetries:     c.Fetch.MaxRetries,
		RateLimitDelay: c.Fetch.RateLimitDelay,
		BatchSize:      c.Fetch.BatchSize,
		BatchDelay:     c.Fetch.BatchDelay,
		InitialBackoff: c.Fetch.InitialBackoff,
		MaxBackoff:     c.Fetch.MaxBackoff,
		RequestTimeout: c.Fetch.RequestTimeout,
	}
}

// getConfigDir returns the configuration directory path
// Creates the directory if it doesn't exist
func getConfigDir() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	configDir := filepath.Join(homeDir, ".config", "firstscrobbles")

	// Create config directory if it doesn't exist
	_ = os.MkdirAll(configDir, 0755)

	return configDir
}

// GetConfigDir returns the configuration directory path (public helper)
func GetConfigDir() string {
	return getConfigDir()
}

// Save writes configuration to file
func (c *Config) Save() error {
	v := viper.New()

	configFile := filepath.Join(getConfigDir(), "config.yaml")

	v.Set("lastfm.api_key", c.LastFM.APIKey)
	if c.LastFM.BaseURL != "" {
		v.Set("lastfm.base_url", c.LastFM.BaseURL)
	}
	v.Set("username", c.Username)
	v.Set("output_dir", c.OutputDir)
	v.Set("format", c.Format)
	v.Set("sort", c.Sort)
	v.Set("timezone", c.Timezone)
	v.Set("fetch.max_retries", c.Fetch.MaxRetries)
	v.Set("fetch.limit", c.Fetch.Limit)
	v.Set("fetch.rate_limit_delay", c.Fetch.RateLimitDelay.String())
	v.Set("fetch.batch_size", c.Fetch.BatchSize)
	v.Set("fetch.batch_delay", c.Fetch.BatchDelay.String())
	v.Set("fetch.initial_backoff", c.Fetch.InitialBackoff.String())
	v.Set("fetch.max_backoff", c.Fetch.MaxBackoff.String())
	v.Set("fetch.request_timeout", c.Fetch.RequestTimeout.String())
	v.Set("store.path", c.Store.Path)

	// Write to file
	return v.WriteConfigAs(configFile)
}
