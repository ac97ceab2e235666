package firsts

import (
	"strings"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
)

// controlChars matches C0 control characters and DEL. Everything from
// U+0020 upwards (except U+007F) is printable for our purposes.
var controlChars = runes.Predicate(func(r rune) bool {
	return r < 0x20 || r == 0x7f
})

// Clean removes control characters that break spreadsheet and CSV cells.
// Invalid UTF-8 bytes are replaced by U+FFFD, so the result is always
// valid UTF-8. Clean(Clean(s)) == Clean(s).
func Clean(s string) string {
	out, _, err := transform.String(runes.Remove(controlChars), s)
	if err != nil {
		// Unreachable for in-memory strings; fall back to a plain filter.
		return strings.Map(func(r rune) rune {
			if controlChars.Contains(r) {
				return -1
			}
			return r
		}, s)
	}
	return out
}

// CleanRecord sanitizes the text fields of a record. The timestamp is
// left alone.
func CleanRecord(rec ArtistFirstScrobble) ArtistFirstScrobble {
	rec.Artist = Clean(rec.Artist)
	rec.FirstTrack = Clean(rec.FirstTrack)
	rec.FirstAlbum = Clean(rec.FirstAlbum)
	return rec
}
