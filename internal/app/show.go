package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// Show prints recent alert delivery events.
func (a *App) Show(ctx context.Context, opts ShowOptions) error {
	c, err := a.wire(ctx)
	if err != nil {
		return err
	}
	defer c.Close()
	if c.pg == nil {
		return errors.New("database not configured; cannot show alert events")
	}

	events, err := c.store.ListRecentEvents(ctx, opts.Limit)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		fmt.Fprintln(a.Out, "no alert events found")
		return nil
	}

	writer := tabwriter.NewWriter(a.Out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Time (UTC)\tRule\tSymbol\tPrice\tPrev Close\tChange%\tSent\tDelivery\tError")

	for _, ev := range events {
		fmt.Fprintf(
			writer,
			"%s\t#%d\t%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
			ev.TriggeredAt.UTC().Format(time.RFC3339),
			ev.RuleID,
			ev.Symbol,
			ev.Price.StringFixed(2),
			ev.PreviousPrice.StringFixed(2),
			ev.PercentChange.StringFixed(2),
			ev.Sent,
			ev.DeliveryID,
			sanitizeInline(ev.Error),
		)
	}

	return writer.Flush()
}

func sanitizeInline(v string) string {
	cleaned := strings.ReplaceAll(v, "\n", " ")
	cleaned = strings.ReplaceAll(cleaned, "\r", " ")
	return cleaned
}
