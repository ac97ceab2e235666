package fetch

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"sync"
	"time"

	"github.com/jfmyers9/firstscrobbles/pkg/lastfm"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config holds driver configuration. Every knob the pacing depends on
// is here; nothing is read from package state.
type Config struct {
	Limit          int           // Items per page (Last.fm max 200)
	MaxRetries     int           // Retries per request after the first attempt
	RateLimitDelay time.Duration // Minimum spacing between requests
	BatchSize      int           // Pages fetched concurrently per batch
	BatchDelay     time.Duration // Cool-down between batches
	InitialBackoff time.Duration // First retry backoff
	MaxBackoff     time.Duration // Backoff cap
	RequestTimeout time.Duration // Per-attempt timeout (0 = none)
}

// DefaultConfig returns conservative defaults for the public Last.fm API.
func DefaultConfig() Config {
	return Config{
		Limit:          lastfm.MaxPageLimit,
		MaxRetries:     3,
		RateLimitDelay: 250 * time.Millisecond,
		BatchSize:      10,
		BatchDelay:     2 * time.Second,
		InitialBackoff: 1 * time.Second,
		MaxBackoff:     30 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}

// FetchProgress describes how far a run has got.
type FetchProgress struct {
	TotalPages     int
	PagesCompleted int
	RegisteredAt   int64 // Account registration, UTC seconds
}

// Driver walks a user's whole history in rate-limited batches.
type Driver struct {
	source  Source
	config  Config
	limiter *Limiter
	retry   *RetryPolicy
	logger  zerolog.Logger
}

// NewDriver creates a Driver. A nil clock means the wall clock.
func NewDriver(source Source, cfg Config, clock Clock, logger zerolog.Logger) *Driver {
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = 1
	}
	if cfg.Limit <= 0 {
		cfg.Limit = lastfm.MaxPageLimit
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &Driver{
		source:  source,
		config:  cfg,
		limiter: NewLimiter(clock, cfg.RateLimitDelay, cfg.BatchDelay),
		retry: NewRetryPolicy(RetryConfig{
			MaxRetries:     cfg.MaxRetries,
			InitialBackoff: cfg.InitialBackoff,
			MaxBackoff:     cfg.MaxBackoff,
		}, clock, logger),
		logger: logger.With().Str("component", "driver").Logger(),
	}
}

// FetchAll looks up the user and the first history page, then returns a
// Run whose Events iterate the full history. Unknown users, rejected
// credentials and an unusable first page fail here, before any
// pagination starts.
func (d *Driver) FetchAll(ctx context.Context, username string) (*Run, error) {
	var info *lastfm.UserInfo
	err := d.retry.Do(ctx, 0, func(ctx context.Context) error {
		if err := d.limiter.Wait(ctx); err != nil {
			return err
		}

		reqCtx := ctx
		if d.config.RequestTimeout > 0 {
			var cancel context.CancelFunc
			reqCtx, cancel = context.WithTimeout(ctx, d.config.RequestTimeout)
			defer cancel()
		}

		var err error
		info, err = d.source.GetInfo(reqCtx, username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fetch user info for %q: %w", username, err)
	}

	fetcher := &PageFetcher{
		source:  d.source,
		limiter: d.limiter,
		retry:   d.retry,
		timeout: d.config.RequestTimeout,
		user:    username,
		limit:   d.config.Limit,
		from:    info.RegisteredAt,
	}

	first, err := fetcher.Fetch(ctx, 1)
	if err != nil {
		return nil, fmt.Errorf("fetch first page for %q: %w", username, err)
	}
	pagesFetchedTotal.Inc()

	d.logger.Info().
		Str("user", username).
		Int("total_pages", first.TotalPages).
		Int64("registered_at", info.RegisteredAt).
		Int("batch_size", d.config.BatchSize).
		Msg("Starting history fetch")

	run := &Run{
		ctx:     ctx,
		fetcher: fetcher,
		limiter: d.limiter,
		first:   first,
		batches: PlanBatches(first.TotalPages, d.config.BatchSize),
		logger:  d.logger.With().Str("user", username).Logger(),
		progress: FetchProgress{
			TotalPages:   first.TotalPages,
			RegisteredAt: info.RegisteredAt,
		},
	}
	if first.TotalPages > 0 {
		run.progress.PagesCompleted = 1
	}

	return run, nil
}

// PlanBatches partitions pages 1..total into consecutive batches of at
// most size pages.
func PlanBatches(total, size int) [][]int {
	if total <= 0 {
		return nil
	}
	if size <= 0 {
		size = 1
	}

	batches := make([][]int, 0, (total+size-1)/size)
	for start := 1; start <= total; start += size {
		end := min(start+size-1, total)
		batch := make([]int, 0, end-start+1)
		for p := start; p <= end; p++ {
			batch = append(batch, p)
		}
		batches = append(batches, batch)
	}
	return batches
}

// IsRunFatal reports whether a page error must abort the whole run
// rather than just drop the page. Cancellation of the run's context is
// always fatal and is not covered here.
func IsRunFatal(err error) bool {
	return errors.Is(err, lastfm.ErrUserNotFound) || lastfm.IsAuthError(err)
}

// Run is one in-progress walk of a user's history.
type Run struct {
	ctx     context.Context
	fetcher *PageFetcher
	limiter *Limiter
	first   *Page
	batches [][]int
	logger  zerolog.Logger

	mu       sync.Mutex
	started  bool
	progress FetchProgress
	missing  []int
	err      error
}

// Events returns the history as a lazy sequence. Batches are fetched as
// the sequence is consumed: all pages of a batch concurrently, the next
// batch only after the previous one finished and the batch delay has
// passed. Within a batch, pages are yielded in page order. Breaking out
// of the loop stops fetching.
//
// The sequence can be consumed once; later calls yield nothing. After
// iteration, Err reports a run-fatal error and Missing the dropped pages.
func (r *Run) Events() iter.Seq[ScrobbleEvent] {
	return func(yield func(ScrobbleEvent) bool) {
		r.mu.Lock()
		if r.started {
			r.mu.Unlock()
			return
		}
		r.started = true
		r.mu.Unlock()

		for i, batch := range r.batches {
			if i > 0 {
				r.limiter.Cooldown()
			}

			pages, err := r.fetchBatch(batch)
			if err != nil {
				r.fail(err)
				return
			}
			batchesTotal.Inc()

			progress := r.Progress()
			r.logger.Info().
				Int("batch", i+1).
				Int("batches", len(r.batches)).
				Int("pages_completed", progress.PagesCompleted).
				Int("total_pages", progress.TotalPages).
				Msg("Batch complete")

			for _, page := range pages {
				for _, ev := range page.Events {
					if !yield(ev) {
						return
					}
				}
			}
		}
	}
}

// fetchBatch fetches every page in batch concurrently. Pages that fail
// with a page-level error are recorded as missing and left out.
func (r *Run) fetchBatch(batch []int) ([]*Page, error) {
	results := make([]*Page, len(batch))
	g, ctx := errgroup.WithContext(r.ctx)

	for i, n := range batch {
		if n == 1 {
			results[i] = r.first
			continue
		}

		g.Go(func() error {
			page, err := r.fetcher.Fetch(ctx, n)
			if err != nil {
				var failed *PageFetchFailed
				if errors.As(err, &failed) && !IsRunFatal(failed.Err) {
					r.markMissing(n, err)
					return nil
				}
				return err
			}

			pagesFetchedTotal.Inc()
			results[i] = page
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	pages := make([]*Page, 0, len(results))
	fetched := 0
	for i, page := range results {
		if page == nil {
			continue
		}
		pages = append(pages, page)
		if batch[i] != 1 {
			fetched++
		}
	}

	r.mu.Lock()
	r.progress.PagesCompleted += fetched
	r.mu.Unlock()

	return pages, nil
}

func (r *Run) markMissing(page int, err error) {
	pagesMissingTotal.Inc()
	r.logger.Warn().
		Err(err).
		Int("page", page).
		Msg("Dropping page after failed fetch")

	r.mu.Lock()
	r.missing = append(r.missing, page)
	r.mu.Unlock()
}

func (r *Run) fail(err error) {
	r.logger.Error().Err(err).Msg("History fetch aborted")

	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Progress returns a snapshot of the run's progress.
func (r *Run) Progress() FetchProgress {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.progress
}

// Missing returns the sorted page numbers dropped after failed fetches.
func (r *Run) Missing() []int {
	r.mu.Lock()
	defer r.mu.Unlock()

	missing := slices.Clone(r.missing)
	slices.Sort(missing)
	return missing
}

// Err returns the error that aborted the run, if any.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}
