package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-alerts/internal/model"
)

// WindowReader answers rolling-window extremes.
type WindowReader interface {
	WindowMax(ctx context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error)
	WindowMin(ctx context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error)
}

// Decision is the outcome of evaluating one rule against one quote.
type Decision struct {
	Triggered bool
	// Move is the computed percentage: gap, drop from high or rise from low.
	Move decimal.Decimal
	// Reference is the price Move is measured against.
	Reference decimal.Decimal
	// Skipped explains why the rule could not be evaluated, if it could not.
	Skipped string
}

// Evaluator decides whether a rule fires. It holds no state.
type Evaluator struct {
	windows WindowReader
	logger  zerolog.Logger
}

// NewEvaluator constructs an evaluator reading windows from w.
func NewEvaluator(w WindowReader, logger zerolog.Logger) *Evaluator {
	return &Evaluator{windows: w, logger: logger.With().Str("component", "evaluator").Logger()}
}

// Evaluate applies the rule. Missing quote fields or an empty window yield a
// skipped, non-triggered decision; err is reserved for window lookup failures.
func (e *Evaluator) Evaluate(ctx context.Context, rule model.Rule, quote model.Quote, now time.Time) (Decision, error) {
	switch rule.Kind {
	case model.KindGapDown, model.KindGapUp:
		if quote.Open.IsZero() || quote.PreviousClose.IsZero() {
			return skipped("quote lacks open or previous close"), nil
		}
		gap := quote.Gap()
		d := Decision{Move: gap, Reference: quote.PreviousClose}
		if rule.Kind == model.KindGapDown {
			d.Triggered = gap.LessThanOrEqual(rule.Threshold)
		} else {
			d.Triggered = gap.GreaterThanOrEqual(rule.Threshold)
		}
		return d, nil

	case model.KindDropWindow:
		if quote.Current.IsZero() {
			return skipped("quote lacks current price"), nil
		}
		high, ok, err := e.windows.WindowMax(ctx, rule.Symbol, now, rule.Window())
		if err != nil {
			return Decision{}, fmt.Errorf("window max %s: %w", rule.Symbol, err)
		}
		if !ok || high.IsZero() {
			return skipped("no snapshots in window"), nil
		}
		drop := model.PercentChange(quote.Current, high)
		return Decision{Triggered: drop.LessThanOrEqual(rule.Threshold), Move: drop, Reference: high}, nil

	case model.KindSpikeWindow:
		if quote.Current.IsZero() {
			return skipped("quote lacks current price"), nil
		}
		low, ok, err := e.windows.WindowMin(ctx, rule.Symbol, now, rule.Window())
		if err != nil {
			return Decision{}, fmt.Errorf("window min %s: %w", rule.Symbol, err)
		}
		if !ok || low.IsZero() {
			return skipped("no snapshots in window"), nil
		}
		rise := model.PercentChange(quote.Current, low)
		return Decision{Triggered: rise.GreaterThanOrEqual(rule.Threshold), Move: rise, Reference: low}, nil
	}

	e.logger.Warn().Int64("rule_id", rule.ID).Str("kind", string(rule.Kind)).Msg("unknown alert kind")
	return skipped(fmt.Sprintf("unknown alert kind %q", rule.Kind)), nil
}

func skipped(reason string) Decision {
	return Decision{Skipped: reason}
}
