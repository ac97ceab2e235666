// Package firsts reduces a scrobble history to the first scrobble of
// every artist.
package firsts

import (
	"iter"
	"sync"
	"time"

	"github.com/jfmyers9/firstscrobbles/internal/fetch"
)

// ArtistFirstScrobble is the earliest accepted scrobble of one artist.
type ArtistFirstScrobble struct {
	Artist           string
	FirstTrack       string
	FirstAlbum       string
	FirstScrobbledAt time.Time
}

// Reducer keeps the earliest event per exact artist string.
//
// An event replaces the stored one only if its timestamp is strictly
// earlier, so on a tie the first event added wins. Artists keep the
// order in which they were first added. Add is safe for concurrent use.
type Reducer struct {
	mu      sync.Mutex
	firsts  map[string]fetch.ScrobbleEvent
	artists []string
}

// NewReducer creates an empty Reducer.
func NewReducer() *Reducer {
	return &Reducer{
		firsts: make(map[string]fetch.ScrobbleEvent),
	}
}

// Add folds one event into the table.
func (r *Reducer) Add(ev fetch.ScrobbleEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	current, ok := r.firsts[ev.Artist]
	if !ok {
		r.firsts[ev.Artist] = ev
		r.artists = append(r.artists, ev.Artist)
		return
	}
	if ev.Timestamp < current.Timestamp {
		r.firsts[ev.Artist] = ev
	}
}

// Fold adds every event of seq and returns r.
func (r *Reducer) Fold(seq iter.Seq[fetch.ScrobbleEvent]) *Reducer {
	for ev := range seq {
		r.Add(ev)
	}
	return r
}

// Len returns the number of distinct artists.
func (r *Reducer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.artists)
}

// Results returns one record per artist in first-seen order, with times
// in loc. A nil loc means time.Local.
func (r *Reducer) Results(loc *time.Location) []ArtistFirstScrobble {
	if loc == nil {
		loc = time.Local
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	results := make([]ArtistFirstScrobble, 0, len(r.artists))
	for _, artist := range r.artists {
		ev := r.firsts[artist]
		results = append(results, ArtistFirstScrobble{
			Artist:           ev.Artist,
			FirstTrack:       ev.Track,
			FirstAlbum:       ev.Album,
			FirstScrobbledAt: time.Unix(ev.Timestamp, 0).In(loc),
		})
	}
	return results
}
