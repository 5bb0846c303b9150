package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Job is invoked once per interval with the cycle start time.
type Job func(ctx context.Context, at time.Time) error

// Runner abstracts the cadence driver so the monitor can be exercised
// in tests with a hand-cranked fake.
type Runner interface {
	Run(ctx context.Context, job Job) error
}

// Options tune the interval loop.
type Options struct {
	// Interval between cycle starts.
	Interval time.Duration
	// AlignToStart truncates cycle times to interval boundaries, so a
	// 1m cadence fires at :00 of every minute rather than at an offset
	// determined by process start.
	AlignToStart bool
	// StartupDelay postpones the first cycle, giving ingestion a chance
	// to seed data after a cold start.
	StartupDelay time.Duration
}

// IntervalRunner drives a job on a fixed cadence. A slow job delays the
// following cycle; cycles never overlap.
type IntervalRunner struct {
	opts   Options
	logger zerolog.Logger
}

func NewInterval(opts Options, logger zerolog.Logger) *IntervalRunner {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &IntervalRunner{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking job every interval until ctx is cancelled. Job
// errors are logged and the loop continues; only cancellation stops it.
func (r *IntervalRunner) Run(ctx context.Context, job Job) error {
	if r.opts.StartupDelay > 0 {
		timer := time.NewTimer(r.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	next := r.nextCycle(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = r.nextCycle(time.Now().UTC())
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		r.logger.Debug().Time("next_cycle", next).Msg("waiting for next cycle")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		at := r.cycleStart(next)
		if err := job(ctx, at); err != nil {
			r.logger.Error().Err(err).Time("cycle", at).Msg("cycle failed")
		}

		next = next.Add(r.opts.Interval)
	}
}

func (r *IntervalRunner) nextCycle(now time.Time) time.Time {
	if !r.opts.AlignToStart {
		return now.Add(r.opts.Interval)
	}
	cycle := now.Truncate(r.opts.Interval)
	if !cycle.After(now) {
		cycle = cycle.Add(r.opts.Interval)
	}
	return cycle
}

func (r *IntervalRunner) cycleStart(t time.Time) time.Time {
	if !r.opts.AlignToStart {
		return t
	}
	return t.Truncate(r.opts.Interval)
}

var _ Runner = (*IntervalRunner)(nil)
