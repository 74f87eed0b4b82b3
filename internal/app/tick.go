package app

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"stock-alerts/internal/service"
)

// Tick executes one monitor tick immediately and prints its report.
func (a *App) Tick(ctx context.Context, opts TickOptions) error {
	switch opts.Tick {
	case service.TickSnapshot, service.TickGap, service.TickWindow:
	default:
		return fmt.Errorf("unknown tick %q (want snapshot, gap or window)", opts.Tick)
	}

	c, err := a.wire(ctx)
	if err != nil {
		return err
	}
	defer c.Close()

	if opts.Force {
		a.Logger.Warn().Str("tick", opts.Tick).Msg("market gates bypassed")
	}

	report, err := a.newMonitor(c).RunTick(ctx, opts.Tick, time.Now().UTC(), opts.Force)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(a.Out)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
