package lastfm

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

// newTestClient creates a client pointed at server.
func newTestClient(t *testing.T, server *httptest.Server) *Client {
	t.Helper()

	client, err := NewClient(Config{
		APIKey:  "test-api-key",
		BaseURL: server.URL,
	})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}
	return client
}

// TestUserService_GetInfo tests the GetInfo method.
func TestUserService_GetInfo(t *testing.T) {
	tests := []struct {
		name           string
		response       string
		statusCode     int
		wantErr        bool
		wantNotFound   bool
		wantMalformed  bool
		wantRegistered int64
	}{
		{
			name: "success",
			response: `{"user":{"name":"RJ","realname":"Richard Jones","playcount":"150316",
				"registered":{"unixtime":"1037793040","#text":1037793040}}}`,
			statusCode:     http.StatusOK,
			wantRegistered: 1037793040,
		},
		{
			name:           "numeric unixtime",
			response:       `{"user":{"name":"RJ","playcount":12,"registered":{"unixtime":1037793040}}}`,
			statusCode:     http.StatusOK,
			wantRegistered: 1037793040,
		},
		{
			name:         "user not found",
			response:     `{"error":6,"message":"User not found","links":[]}`,
			statusCode:   http.StatusNotFound,
			wantErr:      true,
			wantNotFound: true,
		},
		{
			name:          "missing user object",
			response:      `{"something":"else"}`,
			statusCode:    http.StatusOK,
			wantErr:       true,
			wantMalformed: true,
		},
		{
			name:          "not json",
			response:      `<html>oops</html>`,
			statusCode:    http.StatusOK,
			wantErr:       true,
			wantMalformed: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodGet {
					t.Errorf("expected GET request, got %s", r.Method)
				}
				q := r.URL.Query()
				if method := q.Get("method"); method != "user.getinfo" {
					t.Errorf("expected method user.getinfo, got %s", method)
				}
				if user := q.Get("user"); user != "rj" {
					t.Errorf("expected user rj, got %s", user)
				}
				if key := q.Get("api_key"); key != "test-api-key" {
					t.Errorf("expected api_key test-api-key, got %s", key)
				}
				if format := q.Get("format"); format != "json" {
					t.Errorf("expected format json, got %s", format)
				}

				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.response)); err != nil {
					t.Fatalf("failed to write response body: %v", err)
				}
			}))
			defer server.Close()

			client := newTestClient(t, server)
			info, err := client.User().GetInfo(context.Background(), "rj")

			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error, got nil")
				}
				if tt.wantNotFound && !errors.Is(err, ErrUserNotFound) {
					t.Errorf("expected ErrUserNotFound, got %v", err)
				}
				if tt.wantMalformed && !errors.Is(err, ErrMalformedResponse) {
					t.Errorf("expected ErrMalformedResponse, got %v", err)
				}
				if IsTemporary(err) {
					t.Errorf("expected non-temporary error, got %v", err)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if info.RegisteredAt != tt.wantRegistered {
				t.Errorf("expected registered %d, got %d", tt.wantRegistered, info.RegisteredAt)
			}
			if !info.Registered.Equal(time.Unix(tt.wantRegistered, 0)) {
				t.Errorf("expected registered time %v, got %v", time.Unix(tt.wantRegistered, 0), info.Registered)
			}
			if info.Name != "RJ" {
				t.Errorf("expected name RJ, got %s", info.Name)
			}
		})
	}
}

// TestUserService_GetRecentTracks tests decoding of user.getRecentTracks pages.
func TestUserService_GetRecentTracks(t *testing.T) {
	tests := []struct {
		name           string
		response       string
		wantTotalPages int
		wantTracks     []RecentTrack
	}{
		{
			name: "array with now playing",
			response: `{"recenttracks":{"track":[
				{"artist":{"mbid":"","#text":"Beyoncé"},"album":{"#text":"Lemonade"},"name":"Hold Up",
				 "@attr":{"nowplaying":"true"}},
				{"artist":{"#text":"坂本龍一"},"album":{"#text":"async"},"name":"andata",
				 "date":{"uts":"1700000100","#text":"14 Nov 2023, 22:15"}},
				{"artist":{"#text":"Björk"},"album":{"#text":""},"name":"Joga",
				 "date":{"uts":"1700000000"}}
			],"@attr":{"user":"rj","totalPages":"12","page":"1","perPage":"3","total":"36"}}}`,
			wantTotalPages: 12,
			wantTracks: []RecentTrack{
				{Artist: "Beyoncé", Track: "Hold Up", Album: "Lemonade", NowPlaying: true},
				{Artist: "坂本龍一", Track: "andata", Album: "async", Timestamp: 1700000100},
				{Artist: "Björk", Track: "Joga", Album: "", Timestamp: 1700000000},
			},
		},
		{
			name: "single object track",
			response: `{"recenttracks":{"track":
				{"artist":{"#text":"Nina Simone"},"album":{"#text":"Pastel Blues"},"name":"Sinnerman",
				 "date":{"uts":"1500000000"}},
			"@attr":{"user":"rj","totalPages":"1","page":"1","perPage":"200","total":"1"}}}`,
			wantTotalPages: 1,
			wantTracks: []RecentTrack{
				{Artist: "Nina Simone", Track: "Sinnerman", Album: "Pastel Blues", Timestamp: 1500000000},
			},
		},
		{
			name:           "empty history",
			response:       `{"recenttracks":{"track":[],"@attr":{"user":"rj","totalPages":"0","page":"1","perPage":"200","total":"0"}}}`,
			wantTotalPages: 0,
			wantTracks:     []RecentTrack{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				q := r.URL.Query()
				if method := q.Get("method"); method != "user.getrecenttracks" {
					t.Errorf("expected method user.getrecenttracks, got %s", method)
				}
				if page := q.Get("page"); page != "1" {
					t.Errorf("expected page 1, got %s", page)
				}
				if limit := q.Get("limit"); limit != "200" {
					t.Errorf("expected limit capped at 200, got %s", limit)
				}
				if from := q.Get("from"); from != "1000" {
					t.Errorf("expected from 1000, got %s", from)
				}
				if to := q.Get("to"); to != "" {
					t.Errorf("expected no to parameter, got %s", to)
				}

				w.WriteHeader(http.StatusOK)
				if _, err := w.Write([]byte(tt.response)); err != nil {
					t.Fatalf("failed to write response body: %v", err)
				}
			}))
			defer server.Close()

			client := newTestClient(t, server)
			page, err := client.User().GetRecentTracks(context.Background(), RecentTracksParams{
				User:  "rj",
				Page:  1,
				Limit: 500,
				From:  1000,
			})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if page.TotalPages != tt.wantTotalPages {
				t.Errorf("expected %d total pages, got %d", tt.wantTotalPages, page.TotalPages)
			}
			if len(page.Tracks) != len(tt.wantTracks) {
				t.Fatalf("expected %d tracks, got %d", len(tt.wantTracks), len(page.Tracks))
			}
			for i, want := range tt.wantTracks {
				if page.Tracks[i] != want {
					t.Errorf("track %d: expected %+v, got %+v", i, want, page.Tracks[i])
				}
			}
		})
	}
}

// TestUserService_GetRecentTracks_Errors tests error classification.
func TestUserService_GetRecentTracks_Errors(t *testing.T) {
	tests := []struct {
		name          string
		response      string
		statusCode    int
		wantTemporary bool
		wantAuth      bool
		errContains   string
	}{
		{
			name:          "rate limit exceeded",
			response:      `{"error":29,"message":"Rate Limit Exceeded"}`,
			statusCode:    http.StatusTooManyRequests,
			wantTemporary: true,
			errContains:   "error 29",
		},
		{
			name:          "bare 429",
			response:      `Too Many Requests`,
			statusCode:    http.StatusTooManyRequests,
			wantTemporary: true,
			errContains:   "429",
		},
		{
			name:          "bad gateway",
			response:      `<html>502</html>`,
			statusCode:    http.StatusBadGateway,
			wantTemporary: true,
			errContains:   "502",
		},
		{
			name:          "operation failed",
			response:      `{"error":8,"message":"Operation failed - Most likely the backend service failed. Please try again."}`,
			statusCode:    http.StatusInternalServerError,
			wantTemporary: true,
			errContains:   "error 8",
		},
		{
			name:        "invalid api key",
			response:    `{"error":10,"message":"Invalid API key - You must be granted a valid key by last.fm"}`,
			statusCode:  http.StatusForbidden,
			wantAuth:    true,
			errContains: "error 10",
		},
		{
			name:        "bad request",
			response:    `nope`,
			statusCode:  http.StatusBadRequest,
			errContains: "400",
		},
		{
			name:        "malformed page",
			response:    `{"recenttracks":{"track":"not-a-track"}}`,
			statusCode:  http.StatusOK,
			errContains: "malformed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
				if _, err := w.Write([]byte(tt.response)); err != nil {
					t.Fatalf("failed to write response body: %v", err)
				}
			}))
			defer server.Close()

			client := newTestClient(t, server)
			_, err := client.User().GetRecentTracks(context.Background(), RecentTracksParams{User: "rj", Page: 3})
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tt.errContains) {
				t.Errorf("expected error to contain %q, got %v", tt.errContains, err)
			}
			if got := IsTemporary(err); got != tt.wantTemporary {
				t.Errorf("IsTemporary() = %v, want %v (err: %v)", got, tt.wantTemporary, err)
			}
			if got := IsAuthError(err); got != tt.wantAuth {
				t.Errorf("IsAuthError() = %v, want %v", got, tt.wantAuth)
			}
		})
	}
}

// TestUserService_ContextCancellation tests that a cancelled context aborts the request.
func TestUserService_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := newTestClient(t, server)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.User().GetRecentTracks(ctx, RecentTracksParams{User: "rj"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestUserService_RequiresUser(t *testing.T) {
	client, err := NewClient(Config{APIKey: "k"})
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.User().GetInfo(context.Background(), ""); err == nil {
		t.Error("expected error for empty user in GetInfo")
	}
	if _, err := client.User().GetRecentTracks(context.Background(), RecentTracksParams{}); err == nil {
		t.Error("expected error for empty user in GetRecentTracks")
	}
}
