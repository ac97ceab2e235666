package firsts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jfmyers9/firstscrobbles/internal/fetch"
	"github.com/rs/zerolog"
)

// HistoryFetcher starts a walk of a user's history. *fetch.Driver
// satisfies it.
type HistoryFetcher interface {
	FetchAll(ctx context.Context, username string) (*fetch.Run, error)
}

// Options configures an Engine.
type Options struct {
	// Location is the time zone results are reported in. Nil means
	// time.Local.
	Location *time.Location
}

// Summary describes one completed or aborted run.
type Summary struct {
	RunID          string
	Username       string
	TotalPages     int
	PagesFetched   int
	MissingPages   []int
	EventsSeen     int
	EventsAccepted int
	TotalArtists   int
	FatalError     string
	StartedAt      time.Time
	FinishedAt     time.Time
}

// MissingPageCount returns the number of pages dropped from the run.
func (s Summary) MissingPageCount() int {
	return len(s.MissingPages)
}

// Result is the outcome of a run.
type Result struct {
	Artists []ArtistFirstScrobble
	Summary Summary
}

// Engine turns a user's full history into one first scrobble per artist.
type Engine struct {
	fetcher  HistoryFetcher
	location *time.Location
	logger   zerolog.Logger
}

// NewEngine creates an Engine.
func NewEngine(fetcher HistoryFetcher, opts Options, logger zerolog.Logger) *Engine {
	loc := opts.Location
	if loc == nil {
		loc = time.Local
	}
	return &Engine{
		fetcher:  fetcher,
		location: loc,
		logger:   logger.With().Str("component", "engine").Logger(),
	}
}

// Run fetches username's history and reduces it.
//
// A run-fatal error is returned together with a Result whose Summary
// records it; Artists is empty in that case. Dropped pages are not
// errors and only show up in Summary.MissingPages.
//
// Artists are told apart by their raw names and cleaned afterwards, so
// names that differ only in control characters give separate records
// that read the same.
func (e *Engine) Run(ctx context.Context, username string) (*Result, error) {
	result := &Result{
		Summary: Summary{
			RunID:     uuid.NewString(),
			Username:  username,
			StartedAt: time.Now().UTC(),
		},
	}
	summary := &result.Summary

	logger := e.logger.With().Str("run_id", summary.RunID).Str("user", username).Logger()
	logger.Info().Msg("Run started")

	run, err := e.fetcher.FetchAll(ctx, username)
	if err != nil {
		return e.abort(result, logger, err)
	}

	registeredAt := run.Progress().RegisteredAt
	accepted := func(yield func(fetch.ScrobbleEvent) bool) {
		for ev := range run.Events() {
			summary.EventsSeen++
			if !Accept(ev, registeredAt) {
				continue
			}
			summary.EventsAccepted++
			if !yield(ev) {
				return
			}
		}
	}
	reducer := NewReducer().Fold(accepted)

	progress := run.Progress()
	summary.TotalPages = progress.TotalPages
	summary.PagesFetched = progress.PagesCompleted
	summary.MissingPages = run.Missing()

	if err := run.Err(); err != nil {
		return e.abort(result, logger, fmt.Errorf("fetch history for %q: %w", username, err))
	}

	artists := reducer.Results(e.location)
	for i := range artists {
		artists[i] = CleanRecord(artists[i])
	}

	result.Artists = artists
	summary.TotalArtists = len(artists)
	summary.FinishedAt = time.Now().UTC()

	event := logger.Info()
	if summary.MissingPageCount() > 0 {
		event = logger.Warn().Ints("missing_pages", summary.MissingPages)
	}
	event.
		Int("total_pages", summary.TotalPages).
		Int("pages_fetched", summary.PagesFetched).
		Int("events_seen", summary.EventsSeen).
		Int("events_accepted", summary.EventsAccepted).
		Int("artists", summary.TotalArtists).
		Dur("elapsed", summary.FinishedAt.Sub(summary.StartedAt)).
		Msg("Run complete")

	return result, nil
}

func (e *Engine) abort(result *Result, logger zerolog.Logger, err error) (*Result, error) {
	result.Summary.FatalError = err.Error()
	result.Summary.FinishedAt = time.Now().UTC()

	logger.Error().
		Err(err).
		Int("pages_fetched", result.Summary.PagesFetched).
		Msg("Run aborted")

	return result, err
}
