package fetch

import (
	"context"
	"time"

	"github.com/jfmyers9/firstscrobbles/pkg/lastfm"
)

// ScrobbleEvent is one play parsed from a history page.
type ScrobbleEvent struct {
	Artist     string
	Track      string
	Album      string
	Timestamp  int64 // UTC seconds since epoch, 0 when absent
	NowPlaying bool
}

// HasTimestamp reports whether the event carries a scrobble time.
func (e ScrobbleEvent) HasTimestamp() bool {
	return !e.NowPlaying && e.Timestamp != 0
}

// Page is one parsed history page.
type Page struct {
	Number     int
	TotalPages int
	Events     []ScrobbleEvent
}

// Source is the slice of the Last.fm API the driver needs.
// *lastfm.UserService satisfies it.
type Source interface {
	GetInfo(ctx context.Context, user string) (*lastfm.UserInfo, error)
	GetRecentTracks(ctx context.Context, params lastfm.RecentTracksParams) (*lastfm.RecentTracksPage, error)
}

// PageFetcher fetches and parses single pages of one user's history.
// Every attempt waits for a limiter slot and runs under the retry
// policy.
type PageFetcher struct {
	source  Source
	limiter *Limiter
	retry   *RetryPolicy
	timeout time.Duration

	user  string
	limit int
	from  int64
}

// Fetch returns page number n. Failures are *PageFetchFailed unless ctx
// was done.
func (f *PageFetcher) Fetch(ctx context.Context, n int) (*Page, error) {
	var resp *lastfm.RecentTracksPage

	err := f.retry.Do(ctx, n, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return err
		}

		reqCtx := ctx
		if f.timeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}

		start := time.Now()
		page, err := f.source.GetRecentTracks(reqCtx, lastfm.RecentTracksParams{
			User:  f.user,
			Page:  n,
			Limit: f.limit,
			From:  f.from,
		})
		requestDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			return err
		}

		resp = page
		return nil
	})
	if err != nil {
		return nil, err
	}

	return parsePage(n, resp), nil
}

// parsePage converts API tracks into events, keeping API order.
func parsePage(n int, resp *lastfm.RecentTracksPage) *Page {
	page := &Page{
		Number:     n,
		TotalPages: resp.TotalPages,
		Events:     make([]ScrobbleEvent, 0, len(resp.Tracks)),
	}

	for _, t := range resp.Tracks {
		ev := ScrobbleEvent{
			Artist:     t.Artist,
			Track:      t.Track,
			Album:      t.Album,
			NowPlaying: t.NowPlaying,
		}
		if !t.NowPlaying {
			ev.Timestamp = t.Timestamp
		}
		page.Events = append(page.Events, ev)
	}

	return page
}
