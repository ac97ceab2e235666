package config

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// isolate points the config directory at a temp home and clears the
// environment variables Load reads.
func isolate(t *testing.T) string {
	t.Helper()

	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LASTFM_API_KEY", "")
	t.Setenv("FIRSTSCROBBLES_LASTFM_API_KEY", "")
	t.Setenv("FIRSTSCROBBLES_USERNAME", "")
	t.Setenv("FIRSTSCROBBLES_FETCH_BATCH_SIZE", "")
	return home
}

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Format != "xlsx" || cfg.Sort != "first-seen" || cfg.OutputDir != "." {
		t.Errorf("output defaults = %q/%q/%q", cfg.Format, cfg.Sort, cfg.OutputDir)
	}

	want := FetchConfig{
		MaxRetries:     3,
		Limit:          200,
		RateLimitDelay: 250 * time.Millisecond,
		BatchSize:      10,
		BatchDelay:     2 * time.Second,
		InitialBackoff: time.Second,
		MaxBackoff:     30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
	if cfg.Fetch != want {
		t.Errorf("Fetch = %+v, want %+v", cfg.Fetch, want)
	}

	wantStore := filepath.Join(home, ".config", "firstscrobbles", "runs.db")
	if cfg.Store.Path != wantStore {
		t.Errorf("Store.Path = %q, want %q", cfg.Store.Path, wantStore)
	}
}

func TestLoad_Environment(t *testing.T) {
	isolate(t)
	t.Setenv("LASTFM_API_KEY", "from-env")
	t.Setenv("FIRSTSCROBBLES_USERNAME", "rj")
	t.Setenv("FIRSTSCROBBLES_FETCH_BATCH_SIZE", "4")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.LastFM.APIKey != "from-env" {
		t.Errorf("APIKey = %q, want from-env", cfg.LastFM.APIKey)
	}
	if cfg.Username != "rj" {
		t.Errorf("Username = %q, want rj", cfg.Username)
	}
	if cfg.Fetch.BatchSize != 4 {
		t.Errorf("BatchSize = %d, want 4", cfg.Fetch.BatchSize)
	}
}

func TestSaveAndLoad(t *testing.T) {
	isolate(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	cfg.LastFM.APIKey = "saved-key"
	cfg.Username = "alice"
	cfg.Timezone = "Asia/Tokyo"
	cfg.Fetch.BatchDelay = 5 * time.Second

	if err := cfg.Save(); err != nil {
		t.Fatalf("failed to save: %v", err)
	}

	loaded, err := Load()
	if err != nil {
		t.Fatalf("failed to reload: %v", err)
	}

	if loaded.LastFM.APIKey != "saved-key" || loaded.Username != "alice" {
		t.Errorf("credentials not saved: %+v", loaded)
	}
	if loaded.Timezone != "Asia/Tokyo" {
		t.Errorf("Timezone = %q", loaded.Timezone)
	}
	if loaded.Fetch.BatchDelay != 5*time.Second {
		t.Errorf("BatchDelay = %s, want 5s", loaded.Fetch.BatchDelay)
	}
	if loaded.Fetch.RateLimitDelay != 250*time.Millisecond {
		t.Errorf("RateLimitDelay = %s, want 250ms", loaded.Fetch.RateLimitDelay)
	}
}

func validConfig() *Config {
	return &Config{
		LastFM:   LastFMConfig{APIKey: "key"},
		Timezone: "UTC",
		Fetch: FetchConfig{
			MaxRetries:     3,
			Limit:          200,
			RateLimitDelay: 250 * time.Millisecond,
			BatchSize:      10,
			BatchDelay:     2 * time.Second,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(*Config) {}, ""},
		{"missing api key", func(c *Config) { c.LastFM.APIKey = "" }, "lastfm.api_key"},
		{"zero batch size", func(c *Config) { c.Fetch.BatchSize = 0 }, "batch_size"},
		{"limit too large", func(c *Config) { c.Fetch.Limit = 500 }, "fetch.limit"},
		{"negative retries", func(c *Config) { c.Fetch.MaxRetries = -1 }, "max_retries"},
		{"negative delay", func(c *Config) { c.Fetch.BatchDelay = -time.Second }, "delays"},
		{"backoff inverted", func(c *Config) { c.Fetch.MaxBackoff = time.Millisecond }, "backoff"},
		{"bad timezone", func(c *Config) { c.Timezone = "Mars/Olympus" }, "timezone"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	for _, tz := range []string{"", "Local", "local"} {
		cfg := &Config{Timezone: tz}
		loc, err := cfg.Location()
		if err != nil || loc != time.Local {
			t.Errorf("Location(%q) = %v, %v; want Local", tz, loc, err)
		}
	}

	cfg := &Config{Timezone: "Europe/Berlin"}
	loc, err := cfg.Location()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if loc.String() != "Europe/Berlin" {
		t.Errorf("Location() = %v", loc)
	}
}

func TestDriverConfig(t *testing.T) {
	cfg := validConfig()
	dc := cfg.DriverConfig()

	if dc.BatchSize != 10 || dc.MaxRetries != 3 || dc.Limit != 200 || dc.BatchDelay != 2*time.Second {
		t.Errorf("DriverConfig() = %+v", dc)
	}
}
