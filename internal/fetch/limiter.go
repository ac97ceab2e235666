package fetch

import (
	"context"
	"sync"
	"time"
)

// Limiter hands out request slots at a minimum spacing. Cooldown holds
// back the next slot for longer, between batches.
//
// Slots are reserved under the mutex and waited for outside it, so
// concurrent callers queue up behind each other instead of sharing a
// spacing window.
type Limiter struct {
	clock      Clock
	delay      time.Duration
	batchDelay time.Duration

	mu      sync.Mutex
	next    time.Time // earliest time the next slot may be granted
	last    time.Time // start of the most recent slot
	granted int
}

// NewLimiter creates a Limiter.
func NewLimiter(clock Clock, delay, batchDelay time.Duration) *Limiter {
	if clock == nil {
		clock = RealClock{}
	}
	return &Limiter{
		clock:      clock,
		delay:      delay,
		batchDelay: batchDelay,
	}
}

// Wait blocks until the caller's slot comes up or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	at, now := l.reserve()
	return l.clock.Sleep(ctx, at.Sub(now))
}

// reserve claims the next slot and returns when it starts.
func (l *Limiter) reserve() (at, now time.Time) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now = l.clock.Now()
	at = l.next
	if at.Before(now) {
		at = now
	}

	l.granted++
	l.last = at
	l.next = at.Add(l.delay)

	return at, now
}

// Cooldown holds the next slot back until the batch delay has passed
// since now, or since the last slot started if that is later.
func (l *Limiter) Cooldown() {
	l.mu.Lock()
	defer l.mu.Unlock()

	from := l.clock.Now()
	if l.last.After(from) {
		from = l.last
	}
	if until := from.Add(l.batchDelay); until.After(l.next) {
		l.next = until
	}
}

// Granted returns the number of slots handed out so far.
func (l *Limiter) Granted() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.granted
}
