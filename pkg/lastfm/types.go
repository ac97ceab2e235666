package lastfm

import (
	"time"
)

// UserInfo represents the response from user.getInfo.
type UserInfo struct {
	Name         string    // Canonical username
	RealName     string    // Optional display name
	PlayCount    int64     // Total scrobbles
	Registered   time.Time // Account registration time (UTC)
	RegisteredAt int64     // Registration time as UNIX seconds
}

// RecentTrack is a single entry from user.getRecentTracks.
//
// The currently playing track carries NowPlaying=true and a zero
// Timestamp; every other entry has the UNIX time it was scrobbled.
type RecentTrack struct {
	Artist     string
	Track      string
	Album      string
	Timestamp  int64 // UNIX seconds, 0 when absent
	NowPlaying bool
}

// RecentTracksParams are the request parameters for user.getRecentTracks.
type RecentTracksParams struct {
	User  string // Required: Last.fm username
	Page  int    // Optional: 1-based page number (default 1)
	Limit int    // Optional: items per page, Last.fm caps this at 200
	From  int64  // Optional: only scrobbles at or after this UNIX time
	To    int64  // Optional: only scrobbles before this UNIX time
}

// RecentTracksPage is one page of user.getRecentTracks.
type RecentTracksPage struct {
	User       string
	Page       int
	PerPage    int
	TotalPages int
	Total      int
	Tracks     []RecentTrack
}
