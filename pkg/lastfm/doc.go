// Package lastfm provides a client library for the Last.fm API 2.0.
//
// # Overview
//
// This package implements a small Go client for the read side of the
// Last.fm API, focusing on walking a user's scrobble history. It provides
// a type-safe API with context support and structured errors that tell a
// caller which failures are worth retrying.
//
// # Quick Start
//
// Create a client with your API key. Read-only methods do not need an
// API secret or a session:
//
//	import "github.com/jfmyers9/firstscrobbles/pkg/lastfm"
//
//	client, err := lastfm.NewClient(lastfm.Config{
//	    APIKey: "your-api-key",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// # Users
//
//	info, err := client.User().GetInfo(ctx, "rj")
//
//	page, err := client.User().GetRecentTracks(ctx, lastfm.RecentTracksParams{
//	    User:  "rj",
//	    Page:  2,
//	    Limit: 200,
//	    From:  info.RegisteredAt,
//	})
//	for _, t := range page.Tracks {
//	    if t.NowPlaying {
//	        continue
//	    }
//	    fmt.Println(t.Artist, t.Track, t.Timestamp)
//	}
//
// # Error Handling
//
// Each call makes exactly one HTTP request. Use IsTemporary to decide
// whether to retry:
//
//	page, err := client.User().GetRecentTracks(ctx, params)
//	if err != nil {
//	    switch {
//	    case errors.Is(err, lastfm.ErrUserNotFound):
//	        // give up
//	    case lastfm.IsTemporary(err):
//	        // back off and retry
//	    }
//	}
//
// API error bodies are returned as *Error, other non-200 responses as
// *StatusError, and undecodable bodies wrap ErrMalformedResponse.
//
// # API Coverage
//
// Currently implemented:
//   - user.getInfo
//   - user.getRecentTracks
//
// # Last.fm API Documentation
//
// For more information about the Last.fm API:
// https://www.last.fm/api/show/user.getRecentTracks
package lastfm
