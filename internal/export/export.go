// Package export writes first-scrobble tables to spreadsheets, CSV,
// the terminal and a SQLite result store.
package export

import (
	"cmp"
	"errors"
	"fmt"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/jfmyers9/firstscrobbles/internal/firsts"
	"github.com/rs/zerolog"
)

// DateLayout is how first scrobble times are written.
const DateLayout = "2006-01-02 15:04:05"

// MaxCellLength is the largest number of characters a spreadsheet cell
// accepts.
const MaxCellLength = 32767

// Columns are the table headers, in order.
var Columns = []string{"#", "Artist", "First Track", "First Album", "First Scrobbled Date"}

// ErrRowRejected marks a row that cannot be written. Write skips such
// rows instead of failing the export.
var ErrRowRejected = errors.New("export: row rejected")

// Row is one line of the output table.
type Row struct {
	Index          int
	Artist         string
	FirstTrack     string
	FirstAlbum     string
	FirstScrobbled time.Time
}

// Cells returns the row formatted as column values.
func (r Row) Cells() []string {
	return []string{
		strconv.Itoa(r.Index),
		r.Artist,
		r.FirstTrack,
		r.FirstAlbum,
		r.FirstScrobbled.Format(DateLayout),
	}
}

// SortOrder selects the row order of an export.
type SortOrder string

const (
	SortFirstSeen SortOrder = "first-seen" // order artists were first encountered
	SortDate      SortOrder = "date"       // oldest first scrobble first
	SortArtist    SortOrder = "artist"     // alphabetical
)

// ParseSortOrder validates a sort order name. The empty string means
// SortFirstSeen.
func ParseSortOrder(s string) (SortOrder, error) {
	switch order := SortOrder(strings.ToLower(strings.TrimSpace(s))); order {
	case "":
		return SortFirstSeen, nil
	case SortFirstSeen, SortDate, SortArtist:
		return order, nil
	default:
		return "", fmt.Errorf("unknown sort order %q (want first-seen, date or artist)", s)
	}
}

// BuildRows orders artists and numbers them from 1.
func BuildRows(artists []firsts.ArtistFirstScrobble, order SortOrder) []Row {
	sorted := slices.Clone(artists)

	switch order {
	case SortDate:
		slices.SortStableFunc(sorted, func(a, b firsts.ArtistFirstScrobble) int {
			return a.FirstScrobbledAt.Compare(b.FirstScrobbledAt)
		})
	case SortArtist:
		slices.SortStableFunc(sorted, func(a, b firsts.ArtistFirstScrobble) int {
			return cmp.Or(
				cmp.Compare(strings.ToLower(a.Artist), strings.ToLower(b.Artist)),
				cmp.Compare(a.Artist, b.Artist),
			)
		})
	}

	rows := make([]Row, 0, len(sorted))
	for i, a := range sorted {
		rows = append(rows, Row{
			Index:          i + 1,
			Artist:         a.Artist,
			FirstTrack:     a.FirstTrack,
			FirstAlbum:     a.FirstAlbum,
			FirstScrobbled: a.FirstScrobbledAt,
		})
	}
	return rows
}

// ValidateRow checks that every cell of r can be serialized. Failures
// wrap ErrRowRejected.
func ValidateRow(r Row) error {
	for i, cell := range r.Cells() {
		if !utf8.ValidString(cell) {
			return fmt.Errorf("%w: column %q is not valid UTF-8", ErrRowRejected, Columns[i])
		}
		if n := utf8.RuneCountInString(cell); n > MaxCellLength {
			return fmt.Errorf("%w: column %q has %d characters (max %d)", ErrRowRejected, Columns[i], n, MaxCellLength)
		}
	}
	if r.FirstScrobbled.IsZero() {
		return fmt.Errorf("%w: missing first scrobble date", ErrRowRejected)
	}
	return nil
}

// Writer is a sink for an output table.
type Writer interface {
	WriteHeader() error
	WriteRow(Row) error
	Close() error
}

// Write writes the header and rows to w and returns how many rows were
// written. Rows that fail validation or that w rejects with
// ErrRowRejected are logged and skipped; any other error stops the
// export. Write does not close w.
func Write(w Writer, rows []Row, logger zerolog.Logger) (int, error) {
	if err := w.WriteHeader(); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	written := 0
	for _, row := range rows {
		err := ValidateRow(row)
		if err == nil {
			err = w.WriteRow(row)
		}
		if err != nil {
			if errors.Is(err, ErrRowRejected) {
				logger.Error().
					Err(err).
					Int("index", row.Index).
					Str("artist", row.Artist).
					Str("track", row.FirstTrack).
					Str("row", fmt.Sprintf("%q", row.Cells())).
					Msg("Skipping row that cannot be exported")
				continue
			}
			return written, fmt.Errorf("write row %d: %w", row.Index, err)
		}
		written++
	}

	return written, nil
}

// Format names an output format.
type Format string

const (
	FormatXLSX  Format = "xlsx"
	FormatCSV   Format = "csv"
	FormatTable Format = "table"
)

// ParseFormat validates a format name. The empty string means
// FormatXLSX.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(strings.TrimSpace(s))); f {
	case "":
		return FormatXLSX, nil
	case FormatXLSX, FormatCSV, FormatTable:
		return f, nil
	default:
		return "", fmt.Errorf("unknown format %q (want xlsx, csv or table)", s)
	}
}

// Filename returns the output path for a user's export created at t,
// e.g. "out/rj_1st_scrobbles_1700000000.xlsx".
func Filename(dir, username string, t time.Time, format Format) string {
	name := fmt.Sprintf("%s_1st_scrobbles_%d.%s", safeName(username), t.Unix(), format)
	return filepath.Join(dir, name)
}

// safeName keeps a username usable as a file name component.
func safeName(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, s)
}
