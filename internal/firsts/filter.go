package firsts

import "github.com/jfmyers9/firstscrobbles/internal/fetch"

// Accept reports whether ev counts towards an artist's first scrobble.
// Now-playing entries, events without a timestamp and events from
// before the account was registered are rejected.
func Accept(ev fetch.ScrobbleEvent, registeredAt int64) bool {
	if !ev.HasTimestamp() {
		return false
	}
	return ev.Timestamp >= registeredAt
}
