package lastfm

import (
	"net/http"
	"testing"
	"time"
)

func TestNewClient(t *testing.T) {
	t.Run("requires api key", func(t *testing.T) {
		if _, err := NewClient(Config{}); err == nil {
			t.Fatal("expected error for missing API key")
		}
	})

	t.Run("defaults", func(t *testing.T) {
		client, err := NewClient(Config{APIKey: "k"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.baseURL != DefaultBaseURL {
			t.Errorf("expected base URL %s, got %s", DefaultBaseURL, client.baseURL)
		}
		if client.httpClient != http.DefaultClient {
			t.Error("expected http.DefaultClient")
		}
		if client.userAgent != DefaultUserAgent {
			t.Errorf("expected user agent %s, got %s", DefaultUserAgent, client.userAgent)
		}
		if client.User() == nil {
			t.Error("expected user service")
		}
	})

	t.Run("overrides", func(t *testing.T) {
		hc := &http.Client{Timeout: 5 * time.Second}
		client, err := NewClient(Config{
			APIKey:     "k",
			HTTPClient: hc,
			BaseURL:    "http://localhost:1234/",
			UserAgent:  "test/0",
		})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if client.httpClient != hc {
			t.Error("expected custom http client")
		}
		if client.baseURL != "http://localhost:1234/" {
			t.Errorf("unexpected base URL %s", client.baseURL)
		}
		if client.userAgent != "test/0" {
			t.Errorf("unexpected user agent %s", client.userAgent)
		}
	})
}
