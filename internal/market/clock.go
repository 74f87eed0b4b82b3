package market

import (
	"fmt"
	"time"

	"stock-alerts/internal/model"
)

// Options describe one exchange session. Offsets are measured from local midnight.
type Options struct {
	Location  *time.Location
	Weekend   []time.Weekday
	PreOpen   time.Duration
	Open      time.Duration
	Close     time.Duration
	PostClose time.Duration
}

// Clock answers trading-session questions for a fixed exchange calendar.
type Clock struct {
	opts    Options
	weekend map[time.Weekday]struct{}
}

// NewClock validates the session boundaries and returns a Clock.
func NewClock(opts Options) (*Clock, error) {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if !(opts.PreOpen <= opts.Open && opts.Open < opts.Close && opts.Close <= opts.PostClose) {
		return nil, fmt.Errorf("session boundaries out of order: pre=%s open=%s close=%s post=%s",
			opts.PreOpen, opts.Open, opts.Close, opts.PostClose)
	}
	if opts.PostClose > 24*time.Hour {
		return nil, fmt.Errorf("post close %s beyond end of day", opts.PostClose)
	}
	weekend := make(map[time.Weekday]struct{}, len(opts.Weekend))
	for _, d := range opts.Weekend {
		weekend[d] = struct{}{}
	}
	return &Clock{opts: opts, weekend: weekend}, nil
}

// Phase maps an instant onto pre_market, open, post_market or closed.
func (c *Clock) Phase(now time.Time) model.Phase {
	local := now.In(c.opts.Location)
	if _, off := c.weekend[local.Weekday()]; off {
		return model.PhaseClosed
	}
	offset := sinceMidnight(local)
	switch {
	case offset >= c.opts.PreOpen && offset < c.opts.Open:
		return model.PhasePreMarket
	case offset >= c.opts.Open && offset < c.opts.Close:
		return model.PhaseOpen
	case offset >= c.opts.Close && offset < c.opts.PostClose:
		return model.PhasePostMarket
	default:
		return model.PhaseClosed
	}
}

// IsOpen reports whether the regular session is running.
func (c *Clock) IsOpen(now time.Time) bool {
	return c.Phase(now) == model.PhaseOpen
}

// SinceOpen returns the elapsed session time, or a negative value before the open.
func (c *Clock) SinceOpen(now time.Time) time.Duration {
	return sinceMidnight(now.In(c.opts.Location)) - c.opts.Open
}

// Location returns the exchange timezone.
func (c *Clock) Location() *time.Location {
	return c.opts.Location
}

func sinceMidnight(t time.Time) time.Duration {
	return time.Duration(t.Hour())*time.Hour +
		time.Duration(t.Minute())*time.Minute +
		time.Duration(t.Second())*time.Second +
		time.Duration(t.Nanosecond())
}

// ParseSessionTime converts "HH:MM" into an offset from midnight.
func ParseSessionTime(value string) (time.Duration, error) {
	parsed, err := time.Parse("15:04", value)
	if err != nil {
		return 0, fmt.Errorf("parse session time %q: %w", value, err)
	}
	return time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute, nil
}
