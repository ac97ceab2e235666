package lastfm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// UserService provides read operations on Last.fm user profiles.
type UserService struct {
	client *Client
}

const (
	// MaxPageLimit is the largest page size user.getRecentTracks accepts.
	MaxPageLimit = 200
)

// GetInfo fetches a user's profile, including the registration time.
//
// An unknown username yields an error matching ErrUserNotFound.
//
// Example:
//
//	info, err := client.User().GetInfo(ctx, "rj")
//	if errors.Is(err, lastfm.ErrUserNotFound) {
//	    log.Fatal("no such user")
//	}
//	fmt.Println("registered:", info.Registered)
func (s *UserService) GetInfo(ctx context.Context, user string) (*UserInfo, error) {
	if user == "" {
		return nil, fmt.Errorf("lastfm: user is required")
	}

	body, err := s.client.call(ctx, "user.getinfo", map[string]string{"user": user})
	if err != nil {
		return nil, err
	}

	info, err := unmarshalUserInfo(body)
	if err != nil {
		return nil, fmt.Errorf("%w: user.getinfo: %v", ErrMalformedResponse, err)
	}

	return info, nil
}

// GetRecentTracks fetches one page of a user's scrobble history, newest
// first. The currently playing track, if any, is included on page 1
// with NowPlaying set.
//
// Example:
//
//	page, err := client.User().GetRecentTracks(ctx, lastfm.RecentTracksParams{
//	    User:  "rj",
//	    Page:  1,
//	    Limit: 200,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("page %d of %d\n", page.Page, page.TotalPages)
func (s *UserService) GetRecentTracks(ctx context.Context, params RecentTracksParams) (*RecentTracksPage, error) {
	if params.User == "" {
		return nil, fmt.Errorf("lastfm: user is required")
	}

	query := map[string]string{
		"user": params.User,
	}

	// Add optional parameters
	if params.Page > 0 {
		query["page"] = strconv.Itoa(params.Page)
	}
	if params.Limit > 0 {
		limit := params.Limit
		if limit > MaxPageLimit {
			limit = MaxPageLimit
		}
		query["limit"] = strconv.Itoa(limit)
	}
	if params.From > 0 {
		query["from"] = strconv.FormatInt(params.From, 10)
	}
	if params.To > 0 {
		query["to"] = strconv.FormatInt(params.To, 10)
	}

	body, err := s.client.call(ctx, "user.getrecenttracks", query)
	if err != nil {
		return nil, err
	}

	page, err := unmarshalRecentTracks(body)
	if err != nil {
		return nil, fmt.Errorf("%w: user.getrecenttracks page %d: %v", ErrMalformedResponse, params.Page, err)
	}

	return page, nil
}

// userInfoResponse represents the JSON response from user.getInfo.
type userInfoResponse struct {
	User *struct {
		Name       string  `json:"name"`
		RealName   string  `json:"realname"`
		PlayCount  flexInt `json:"playcount"`
		Registered struct {
			UnixTime flexInt `json:"unixtime"`
		} `json:"registered"`
	} `json:"user"`
}

// unmarshalUserInfo parses the JSON response from user.getInfo.
func unmarshalUserInfo(data []byte) (*UserInfo, error) {
	var resp userInfoResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal user info: %w", err)
	}
	if resp.User == nil {
		return nil, fmt.Errorf("missing user object")
	}

	registered := int64(resp.User.Registered.UnixTime)

	return &UserInfo{
		Name:         resp.User.Name,
		RealName:     resp.User.RealName,
		PlayCount:    int64(resp.User.PlayCount),
		Registered:   time.Unix(registered, 0).UTC(),
		RegisteredAt: registered,
	}, nil
}

// textField is Last.fm's {"#text": "..."} wrapper for names.
type textField struct {
	Text string `json:"#text"`
}

// recentTrack represents one track entry in the JSON response.
type recentTrack struct {
	Artist textField `json:"artist"`
	Album  textField `json:"album"`
	Name   string    `json:"name"`
	Date   *struct {
		UTS flexInt `json:"uts"`
	} `json:"date"`
	Attr *struct {
		NowPlaying string `json:"nowplaying"`
	} `json:"@attr"`
}

// trackList accepts both a JSON array and the single object Last.fm
// sends when a page holds exactly one track.
type trackList []recentTrack

func (l *trackList) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || string(trimmed) == "null" {
		*l = nil
		return nil
	}
	if trimmed[0] == '{' {
		var one recentTrack
		if err := json.Unmarshal(trimmed, &one); err != nil {
			return err
		}
		*l = trackList{one}
		return nil
	}

	var many []recentTrack
	if err := json.Unmarshal(trimmed, &many); err != nil {
		return err
	}
	*l = many
	return nil
}

// recentTracksResponse represents the JSON response from user.getRecentTracks.
type recentTracksResponse struct {
	RecentTracks *struct {
		Track trackList `json:"track"`
		Attr  struct {
			User       string  `json:"user"`
			Page       flexInt `json:"page"`
			PerPage    flexInt `json:"perPage"`
			TotalPages flexInt `json:"totalPages"`
			Total      flexInt `json:"total"`
		} `json:"@attr"`
	} `json:"recenttracks"`
}

// unmarshalRecentTracks parses the JSON response from user.getRecentTracks.
func unmarshalRecentTracks(data []byte) (*RecentTracksPage, error) {
	var resp recentTracksResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal recent tracks: %w", err)
	}
	if resp.RecentTracks == nil {
		return nil, fmt.Errorf("missing recenttracks object")
	}

	rt := resp.RecentTracks
	page := &RecentTracksPage{
		User:       rt.Attr.User,
		Page:       int(rt.Attr.Page),
		PerPage:    int(rt.Attr.PerPage),
		TotalPages: int(rt.Attr.TotalPages),
		Total:      int(rt.Attr.Total),
		Tracks:     make([]RecentTrack, 0, len(rt.Track)),
	}

	for _, t := range rt.Track {
		track := RecentTrack{
			Artist: t.Artist.Text,
			Track:  t.Name,
			Album:  t.Album.Text,
		}
		if t.Attr != nil && t.Attr.NowPlaying == "true" {
			track.NowPlaying = true
		}
		if t.Date != nil {
			track.Timestamp = int64(t.Date.UTS)
		}
		page.Tracks = append(page.Tracks, track)
	}

	return page, nil
}
