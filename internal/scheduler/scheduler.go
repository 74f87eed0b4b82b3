package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval with the scheduled instant.
type TickFunc func(ctx context.Context, at time.Time) error

// Options tune scheduler behaviour.
type Options struct {
	Name         string
	Interval     time.Duration
	AlignToStart bool
	StartupDelay time.Duration
	// MaxRetries is how many times a failed tick is re-run before it is dropped.
	MaxRetries int
	RetryDelay time.Duration
}

// Scheduler drives one periodic job.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Str("job", opts.Name).Logger()}
}

// Run blocks, invoking the tick function at each interval until ctx is cancelled.
// A tick that overruns its interval delays the next one; runs never overlap.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		if err := sleep(ctx, s.opts.StartupDelay); err != nil {
			return err
		}
	}

	next := s.nextTick(time.Now().UTC())
	for {
		delay := time.Until(next)
		if delay < 0 {
			next = s.nextTick(time.Now().UTC())
			delay = time.Until(next)
		}

		s.logger.Debug().Time("next_run", next).Msg("waiting for next run")
		if err := sleep(ctx, delay); err != nil {
			return err
		}

		at := s.bucketStart(next)
		if err := s.runWithRetry(ctx, at, tick); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error().Err(err).Time("at", at).Msg("tick dropped after retries")
		}

		next = next.Add(s.opts.Interval)
	}
}

// runWithRetry re-executes a failed tick with a fixed delay between attempts.
func (s *Scheduler) runWithRetry(ctx context.Context, at time.Time, tick TickFunc) error {
	var err error
	for attempt := 0; attempt <= s.opts.MaxRetries; attempt++ {
		if attempt > 0 {
			s.logger.Warn().Err(err).Int("attempt", attempt).Dur("delay", s.opts.RetryDelay).Msg("retrying tick")
			if serr := sleep(ctx, s.opts.RetryDelay); serr != nil {
				return serr
			}
		}
		if err = tick(ctx, at); err == nil {
			return nil
		}
		s.logger.Error().Err(err).Time("at", at).Int("attempt", attempt+1).Msg("tick execution failed")
	}
	return err
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (s *Scheduler) nextTick(now time.Time) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(s.opts.Interval)
	}
	bucket := now.Truncate(s.opts.Interval)
	if !bucket.After(now) {
		bucket = bucket.Add(s.opts.Interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(s.opts.Interval)
}
