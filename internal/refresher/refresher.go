// Package refresher keeps sportsbook sessions alive by reloading open tabs on
// a randomized timer, skipping reloads inside a nightly blackout window. The
// window is evaluated in a fixed reference zone so behaviour does not drift
// with the host machine's locale or daylight saving.
package refresher

import (
	"context"
	"log/slog"
	"math/rand"
	"time"
)

// Reference zone: UTC-7, no DST adjustment.
var referenceZone = time.FixedZone("UTC-7", -7*60*60)

const (
	DefaultMinMinutes = 7
	DefaultMaxMinutes = 15

	// Blackout window in minutes since midnight, reference zone.
	// Start is inclusive, end is exclusive; the window wraps midnight.
	DefaultBlackoutStart = 22*60 + 45 // 22:45
	DefaultBlackoutEnd   = 5*60 + 30  // 05:30
)

// Reloader reloads all open sportsbook tabs and reports how many it touched.
type Reloader interface {
	ReloadMatching(ctx context.Context) (int, error)
}

// Refresher is a perpetual self-rescheduling timer. Exactly one fire is
// outstanding at any time: each fire performs (or skips) the reload and then
// arms the next one before the loop blocks again.
type Refresher struct {
	reloader Reloader

	minMinutes    int
	maxMinutes    int
	blackoutStart int
	blackoutEnd   int

	now     func() time.Time
	randInt func(n int) int
}

// New builds a refresher with the given interval range and blackout window,
// both expressed in the units the config layer produces (whole minutes and
// minutes-since-midnight).
func New(reloader Reloader, minMinutes, maxMinutes, blackoutStart, blackoutEnd int) *Refresher {
	if minMinutes <= 0 {
		minMinutes = DefaultMinMinutes
	}
	if maxMinutes < minMinutes {
		maxMinutes = minMinutes
	}
	return &Refresher{
		reloader:      reloader,
		minMinutes:    minMinutes,
		maxMinutes:    maxMinutes,
		blackoutStart: blackoutStart,
		blackoutEnd:   blackoutEnd,
		now:           time.Now,
		randInt:       rand.Intn,
	}
}

// Start arms the first fire and runs the timer chain until ctx ends.
func (r *Refresher) Start(ctx context.Context) {
	go r.run(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	delay := r.nextDelay()
	slog.Info("tab refresh scheduler armed", "first_fire_in", delay)

	timer := time.NewTimer(delay)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("tab refresh scheduler stopped")
			return
		case <-timer.C:
			next := r.fire(ctx)
			timer.Reset(next)
		}
	}
}

// fire performs one scheduler pass and returns the delay until the next one.
// The reschedule happens on every branch; the chain must never stall.
func (r *Refresher) fire(ctx context.Context) time.Duration {
	next := r.nextDelay()

	now := r.now()
	if r.inBlackout(now) {
		slog.Debug("refresh skipped, blackout window", "reference_time", now.In(referenceZone).Format("15:04"), "next_fire_in", next)
		return next
	}

	count, err := r.reloader.ReloadMatching(ctx)
	if err != nil {
		slog.Warn("tab refresh failed", "error", err, "next_fire_in", next)
		return next
	}
	slog.Info("tabs refreshed", "count", count, "next_fire_in", next)
	return next
}

// inBlackout reports whether t falls inside the blackout window, evaluated
// in the reference zone. Start inclusive, end exclusive, wraps midnight.
func (r *Refresher) inBlackout(t time.Time) bool {
	ref := t.In(referenceZone)
	m := ref.Hour()*60 + ref.Minute()
	if r.blackoutStart > r.blackoutEnd {
		return m >= r.blackoutStart || m < r.blackoutEnd
	}
	return m >= r.blackoutStart && m < r.blackoutEnd
}

// nextDelay draws uniformly from the inclusive integer minute range.
func (r *Refresher) nextDelay() time.Duration {
	minutes := r.minMinutes + r.randInt(r.maxMinutes-r.minMinutes+1)
	return time.Duration(minutes) * time.Minute
}
