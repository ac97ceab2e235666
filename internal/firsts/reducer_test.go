package firsts

import (
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/jfmyers9/firstscrobbles/internal/fetch"
)

func event(artist, track string, ts int64) fetch.ScrobbleEvent {
	return fetch.ScrobbleEvent{Artist: artist, Track: track, Album: track + " LP", Timestamp: ts}
}

func TestAccept(t *testing.T) {
	const registeredAt = 1000

	tests := []struct {
		name string
		ev   fetch.ScrobbleEvent
		want bool
	}{
		{"after registration", event("A", "x", 1500), true},
		{"at registration", event("A", "x", 1000), true},
		{"before registration", event("A", "x", 999), false},
		{"no timestamp", event("A", "x", 0), false},
		{"now playing", fetch.ScrobbleEvent{Artist: "A", Track: "x", NowPlaying: true}, false},
		{"now playing with stray timestamp", fetch.ScrobbleEvent{Artist: "A", Timestamp: 2000, NowPlaying: true}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Accept(tt.ev, registeredAt); got != tt.want {
				t.Errorf("Accept() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestReducer_KeepsEarliest(t *testing.T) {
	r := NewReducer()
	r.Add(event("A", "late", 1500))
	r.Add(event("B", "only", 1700))
	r.Add(event("A", "early", 1200))
	r.Add(event("A", "later", 1600))

	got := r.Results(time.UTC)
	want := []ArtistFirstScrobble{
		{Artist: "A", FirstTrack: "early", FirstAlbum: "early LP", FirstScrobbledAt: time.Unix(1200, 0).UTC()},
		{Artist: "B", FirstTrack: "only", FirstAlbum: "only LP", FirstScrobbledAt: time.Unix(1700, 0).UTC()},
	}

	if !slices.Equal(got, want) {
		t.Errorf("Results() = %+v, want %+v", got, want)
	}
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}
}

func TestReducer_TieKeepsFirst(t *testing.T) {
	r := NewReducer()
	r.Add(event("A", "first", 1200))
	r.Add(event("A", "second", 1200))

	got := r.Results(time.UTC)
	if len(got) != 1 || got[0].FirstTrack != "first" {
		t.Errorf("expected the first event to win a tie, got %+v", got)
	}
}

func TestReducer_ExactArtistMatch(t *testing.T) {
	r := NewReducer()
	r.Add(event("Beyoncé", "x", 1200))
	r.Add(event("beyoncé", "y", 1100))
	r.Add(event("Beyonce", "z", 1000))

	if r.Len() != 3 {
		t.Errorf("artist names differing in case or accents must stay distinct, got %d artists", r.Len())
	}
}

func TestReducer_Location(t *testing.T) {
	tokyo := time.FixedZone("JST", 9*60*60)

	r := NewReducer()
	r.Add(event("A", "x", 1_700_000_000))

	got := r.Results(tokyo)[0].FirstScrobbledAt
	if got.Location() != tokyo {
		t.Errorf("location = %v, want JST", got.Location())
	}
	if got.Unix() != 1_700_000_000 {
		t.Errorf("instant changed: %d", got.Unix())
	}
}

// TestReducer_OrderInvariance checks that the earliest scrobble per
// artist does not depend on the order events arrive in.
func TestReducer_OrderInvariance(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))

	var events []fetch.ScrobbleEvent
	for i := range 500 {
		artist := fmt.Sprintf("artist-%d", rng.IntN(40))
		// Distinct timestamps so the minimum event is unambiguous.
		events = append(events, event(artist, fmt.Sprintf("track-%d", i), int64(1000+i)))
	}
	rng.Shuffle(len(events), func(i, j int) { events[i], events[j] = events[j], events[i] })

	want := byArtist(NewReducer().Fold(slices.Values(events)).Results(time.UTC))

	for round := range 20 {
		shuffled := slices.Clone(events)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

		got := byArtist(NewReducer().Fold(slices.Values(shuffled)).Results(time.UTC))
		if len(got) != len(want) {
			t.Fatalf("round %d: %d artists, want %d", round, len(got), len(want))
		}
		for artist, rec := range want {
			if got[artist] != rec {
				t.Errorf("round %d: %s = %+v, want %+v", round, artist, got[artist], rec)
			}
		}
	}

	// The minimum is the true minimum.
	minimum := make(map[string]int64)
	for _, ev := range events {
		if ts, ok := minimum[ev.Artist]; !ok || ev.Timestamp < ts {
			minimum[ev.Artist] = ev.Timestamp
		}
	}
	for artist, ts := range minimum {
		if want[artist].FirstScrobbledAt.Unix() != ts {
			t.Errorf("%s: first scrobble %d, want %d", artist, want[artist].FirstScrobbledAt.Unix(), ts)
		}
	}
}

func TestReducer_ConcurrentAdd(t *testing.T) {
	r := NewReducer()

	var wg sync.WaitGroup
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range 200 {
				r.Add(event(fmt.Sprintf("artist-%d", i%25), "x", int64(2000+w*200+i)))
			}
		}()
	}
	wg.Wait()

	results := r.Results(time.UTC)
	if len(results) != 25 {
		t.Fatalf("got %d artists, want 25", len(results))
	}
	for _, rec := range results {
		var n int
		fmt.Sscanf(rec.Artist, "artist-%d", &n)
		// Worker 0 adds each artist's earliest timestamp.
		if want := int64(2000 + n); rec.FirstScrobbledAt.Unix() != want {
			t.Errorf("%s: first scrobble %d, want %d", rec.Artist, rec.FirstScrobbledAt.Unix(), want)
		}
	}
}

func byArtist(records []ArtistFirstScrobble) map[string]ArtistFirstScrobble {
	m := make(map[string]ArtistFirstScrobble, len(records))
	for _, rec := range records {
		m[rec.Artist] = rec
	}
	return m
}
