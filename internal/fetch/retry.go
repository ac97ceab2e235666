package fetch

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/jfmyers9/firstscrobbles/pkg/lastfm"
	"github.com/rs/zerolog"
)

// PageFetchFailed is returned when a page could not be fetched, either
// because a non-transient error occurred or because every retry failed.
// It unwraps to the last error seen.
type PageFetchFailed struct {
	Page     int
	Attempts int
	Err      error
}

func (e *PageFetchFailed) Error() string {
	return fmt.Sprintf("page %d failed after %d attempt(s): %v", e.Page, e.Attempts, e.Err)
}

func (e *PageFetchFailed) Unwrap() error {
	return e.Err
}

// RetryConfig holds the configuration for retry logic.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// InitialBackoff is the wait before the first retry. It doubles on
	// every following retry.
	InitialBackoff time.Duration

	// MaxBackoff caps the wait between attempts.
	MaxBackoff time.Duration
}

// RetryPolicy wraps a single page request with bounded retries and
// exponential backoff.
type RetryPolicy struct {
	config    RetryConfig
	clock     Clock
	retryable func(error) bool
	logger    zerolog.Logger
}

// NewRetryPolicy creates a RetryPolicy that retries lastfm.IsTemporary
// errors.
func NewRetryPolicy(cfg RetryConfig, clock Clock, logger zerolog.Logger) *RetryPolicy {
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = time.Second
	}
	if cfg.MaxBackoff < cfg.InitialBackoff {
		cfg.MaxBackoff = cfg.InitialBackoff
	}
	if clock == nil {
		clock = RealClock{}
	}

	return &RetryPolicy{
		config:    cfg,
		clock:     clock,
		retryable: lastfm.IsTemporary,
		logger:    logger.With().Str("component", "retry").Logger(),
	}
}

// Do runs fn until it succeeds, fails with a non-transient error, or
// runs out of retries. Failures come back as *PageFetchFailed; a done
// ctx comes back as ctx.Err().
func (p *RetryPolicy) Do(ctx context.Context, page int, fn func(context.Context) error) error {
	var lastErr error
	backoff := p.config.InitialBackoff
	attempts := 0

	for attempt := 0; attempt <= p.config.MaxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		attempts++
		err := fn(ctx)
		if err == nil {
			if attempt > 0 {
				p.logger.Info().
					Int("page", page).
					Int("attempt", attempts).
					Msg("Request succeeded after retry")
			}
			return nil
		}
		lastErr = err

		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}

		if !p.retryable(err) {
			p.logger.Debug().
				Err(err).
				Int("page", page).
				Msg("Non-transient error, not retrying")
			return &PageFetchFailed{Page: page, Attempts: attempts, Err: err}
		}

		if attempt == p.config.MaxRetries {
			break
		}

		class := errorClass(err)
		retriesTotal.WithLabelValues(class).Inc()

		// Add jitter (±20% randomness)
		wait := time.Duration(float64(backoff) * (0.8 + rand.Float64()*0.4))
		retryBackoffSeconds.Observe(wait.Seconds())

		p.logger.Warn().
			Err(err).
			Int("page", page).
			Str("error_class", class).
			Int("attempt", attempts).
			Int("max_retries", p.config.MaxRetries).
			Dur("backoff", wait).
			Msg("Retrying page after backoff")

		if err := p.clock.Sleep(ctx, wait); err != nil {
			return err
		}

		backoff = nextBackoff(backoff, p.config.MaxBackoff)
	}

	retryExhaustedTotal.Inc()
	p.logger.Warn().
		Err(lastErr).
		Int("page", page).
		Int("attempts", attempts).
		Msg("Retry attempts exhausted")

	return &PageFetchFailed{Page: page, Attempts: attempts, Err: lastErr}
}

// nextBackoff doubles current, capped at limit.
func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

// errorClass labels a transient error for metrics and logs.
func errorClass(err error) string {
	var apiErr *lastfm.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == lastfm.ErrCodeRateLimitExceeded {
			return "rate_limit"
		}
		return "api"
	}

	var statusErr *lastfm.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == 429 {
			return "rate_limit"
		}
		return "server"
	}

	return "network"
}
