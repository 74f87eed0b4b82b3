package app

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"stock-alerts/internal/alerting"
	"stock-alerts/internal/model"
	"stock-alerts/internal/storage"
)

// SimulateOptions describe a synthetic gap scenario.
type SimulateOptions struct {
	Symbol    string
	PrevClose decimal.Decimal
	Open      decimal.Decimal
	// Current defaults to Open.
	Current   decimal.Decimal
	Threshold decimal.Decimal
	To        string
}

// SimulateAlert evaluates a synthetic gap rule and, when it fires, delivers
// the alert through the configured transport. Nothing is persisted.
func (a *App) SimulateAlert(ctx context.Context, opts SimulateOptions) error {
	if opts.PrevClose.Sign() <= 0 || opts.Open.Sign() <= 0 {
		return errors.New("--prev-close and --open must be greater than zero")
	}
	if opts.Threshold.Sign() == 0 {
		return errors.New("--threshold must be non-zero")
	}
	if opts.To == "" {
		return errors.New("--to is required")
	}
	if opts.Current.IsZero() {
		opts.Current = opts.Open
	}

	sender, err := a.newSender()
	if err != nil {
		return err
	}

	kind := model.KindGapUp
	if opts.Threshold.Sign() < 0 {
		kind = model.KindGapDown
	}
	symbol := strings.ToUpper(opts.Symbol)
	rule := model.Rule{Symbol: symbol, Kind: kind, Threshold: opts.Threshold, Recipient: opts.To}
	quote := model.Quote{
		Symbol:        symbol,
		Ticker:        symbol,
		Current:       opts.Current,
		Open:          opts.Open,
		PreviousClose: opts.PrevClose,
		FetchedAt:     time.Now().UTC(),
	}

	evaluator := alerting.NewEvaluator(storage.NewMemoryStore(nil), a.Logger)
	decision, err := evaluator.Evaluate(ctx, rule, quote, quote.FetchedAt)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.Out, "%s: gap %s%% against threshold %s%% -> triggered=%t\n",
		rule.Short(), decision.Move.StringFixed(2), opts.Threshold.String(), decision.Triggered)
	if !decision.Triggered {
		return nil
	}

	gate := alerting.NewGate(sender, alerting.GateOptions{
		From:            a.Config.Notify.Twilio.FromNumber,
		Currency:        a.Config.Notify.CurrencySymbol,
		DeliveryTimeout: a.Config.Monitor.DeliveryTimeout,
	}, nil, a.Logger)

	event := gate.Deliver(ctx, rule, quote, quote.FetchedAt, nil)
	if !event.Sent {
		return fmt.Errorf("delivery failed: %s", event.Error)
	}
	fmt.Fprintf(a.Out, "delivered to %s (id %s)\n", opts.To, event.DeliveryID)
	return nil
}
