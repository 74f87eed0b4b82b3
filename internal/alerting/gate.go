package alerting

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"stock-alerts/internal/metrics"
	"stock-alerts/internal/model"
	"stock-alerts/internal/storage"
)

// GateOptions configure the notification gate.
type GateOptions struct {
	Cooldown        time.Duration
	From            string
	Currency        string
	DeliveryTimeout time.Duration
}

// Gate applies the cooldown, sends the message and records the outcome.
type Gate struct {
	sender  Sender
	opts    GateOptions
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewGate constructs a notification gate around sender.
func NewGate(sender Sender, opts GateOptions, m *metrics.Metrics, logger zerolog.Logger) *Gate {
	if opts.DeliveryTimeout <= 0 {
		opts.DeliveryTimeout = 10 * time.Second
	}
	return &Gate{
		sender:  sender,
		opts:    opts,
		metrics: m,
		logger:  logger.With().Str("component", "notification_gate").Logger(),
	}
}

// CanSend reports whether the cooldown since the last successful trigger has elapsed.
func (g *Gate) CanSend(rule model.Rule, now time.Time) bool {
	if rule.LastTriggeredAt == nil {
		return true
	}
	return now.Sub(*rule.LastTriggeredAt) >= g.opts.Cooldown
}

// Deliver sends the alert and appends its audit event to commit. Only a
// successful send marks the rule triggered; a failed one stays eligible.
func (g *Gate) Deliver(ctx context.Context, rule model.Rule, quote model.Quote, now time.Time, commit *storage.GroupCommit) model.AlertEvent {
	event := model.AlertEvent{
		RuleID:        rule.ID,
		Symbol:        rule.Symbol,
		TriggeredAt:   now,
		Price:         quote.Current,
		PreviousPrice: quote.PreviousClose,
		PercentChange: quote.PercentChange(),
	}

	sendCtx, cancel := context.WithTimeout(ctx, g.opts.DeliveryTimeout)
	defer cancel()

	id, err := g.sender.Send(sendCtx, rule.Recipient, g.opts.From, RenderAlert(g.opts.Currency, rule, quote))
	if err != nil {
		event.Error = err.Error()
		g.logger.Error().Err(err).Int64("rule_id", rule.ID).Str("symbol", rule.Symbol).Msg("alert delivery failed")
	} else {
		event.Sent = true
		event.DeliveryID = id
		g.logger.Info().Int64("rule_id", rule.ID).Str("symbol", rule.Symbol).Str("delivery_id", id).Msg("alert delivered")
	}
	g.metrics.Delivery(event.Sent)

	if commit != nil {
		commit.Events = append(commit.Events, event)
		if event.Sent {
			commit.Triggered = append(commit.Triggered, rule.ID)
		}
	}
	return event
}
