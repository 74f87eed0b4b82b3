package command

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-alerts/internal/alerting"
	"stock-alerts/internal/metrics"
	"stock-alerts/internal/model"
	"stock-alerts/internal/pricing"
	"stock-alerts/internal/registry"
)

// Options tune reply rendering.
type Options struct {
	Currency string
	// Location renders last-check times; defaults to UTC.
	Location *time.Location
}

// Handler turns inbound messages into replies.
type Handler struct {
	registry *registry.Registry
	source   pricing.QuoteSource
	opts     Options
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

// NewHandler constructs a command handler.
func NewHandler(reg *registry.Registry, source pricing.QuoteSource, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Handler {
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	return &Handler{
		registry: reg,
		source:   source,
		opts:     opts,
		metrics:  m,
		logger:   logger.With().Str("component", "command").Logger(),
	}
}

// Handle returns the reply for one message from phone. Failures are reported
// to the user in the reply and logged.
func (h *Handler) Handle(ctx context.Context, phone, text string) string {
	phone = NormalizePhone(phone)
	cmd, ok := Parse(text)
	if !ok {
		h.metrics.Command("unknown")
		return defaultReply
	}
	h.metrics.Command(strings.TrimSuffix(cmd.Name+"_"+cmd.Action, "_"))

	log := h.logger.With().Str("phone", phone).Str("command", cmd.Name).Str("action", cmd.Action).Logger()
	log.Info().Strs("args", cmd.Args).Msg("handling command")

	switch cmd.Name {
	case NamePrice:
		return h.price(ctx, cmd.Args[0], log)
	case NameHelp:
		return helpText
	}

	switch cmd.Action {
	case ActionAdd:
		return h.add(ctx, phone, cmd.Args[0], cmd.Args[1], log)
	case ActionList:
		return h.list(ctx, phone, log)
	case ActionRemove:
		return h.remove(ctx, phone, cmd.Args[0], log)
	}
	return defaultReply
}

func (h *Handler) price(ctx context.Context, symbol string, log zerolog.Logger) string {
	quote, err := h.source.GetQuote(ctx, symbol)
	if err != nil {
		log.Warn().Err(err).Str("symbol", symbol).Msg("price lookup failed")
		if pricing.IsTransient(err) {
			return fmt.Sprintf(replyPriceDown, symbol)
		}
		return fmt.Sprintf(replyPriceNotFound, symbol)
	}
	return h.priceCard(quote)
}

func (h *Handler) priceCard(q model.Quote) string {
	ticker := q.Ticker
	if ticker == "" {
		ticker = q.Symbol
	}
	return fmt.Sprintf("📊 %s (%s)\n\nCurrent Price: %s\nPrevious Close: %s\nChange: %s",
		q.Symbol, ticker,
		alerting.FormatPrice(h.opts.Currency, q.Current),
		alerting.FormatPrice(h.opts.Currency, q.PreviousClose),
		alerting.FormatChange(q.PercentChange()))
}

func (h *Handler) add(ctx context.Context, phone, symbol, rawThreshold string, log zerolog.Logger) string {
	threshold, err := ParseThreshold(rawThreshold)
	if err != nil {
		return fmt.Sprintf(replyInvalidThreshold, rawThreshold)
	}
	if _, err := registry.NormalizeSymbol(symbol); err != nil {
		return fmt.Sprintf(replyInvalidSymbol, symbol)
	}

	user, err := h.registry.EnsureUser(ctx, phone)
	if err != nil {
		log.Error().Err(err).Msg("ensure user failed")
		return replyProcessingError
	}

	rules, err := h.registry.CreateTriplet(ctx, user.ID, symbol, threshold)
	var dup *registry.DuplicateError
	switch {
	case errors.As(err, &dup):
		ids := make([]string, 0, len(dup.IDs))
		for _, id := range dup.IDs {
			ids = append(ids, fmt.Sprintf("#%d", id))
		}
		return fmt.Sprintf(replyDuplicate, threshold.Abs().IntPart(), direction(threshold), dup.Symbol, strings.Join(ids, ", "), dup.Symbol)
	case errors.Is(err, registry.ErrUnsupportedThreshold):
		return fmt.Sprintf(replyInvalidThreshold, rawThreshold)
	case errors.Is(err, registry.ErrInvalidSymbol):
		return fmt.Sprintf(replyInvalidSymbol, symbol)
	case err != nil:
		log.Error().Err(err).Msg("create alerts failed")
		return replyProcessingError
	}

	return renderCreated(rules, threshold)
}

func renderCreated(rules []model.Rule, threshold decimal.Decimal) string {
	magnitude := threshold.Abs().IntPart()
	word := direction(threshold)

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("✅ %d Alerts created successfully!\n\n", len(rules)))
	b.WriteString(fmt.Sprintf("Stock: %s\n", rules[0].Symbol))
	b.WriteString(fmt.Sprintf("Threshold: %d%% %s\n", magnitude, word))
	b.WriteString(fmt.Sprintf("Check Frequency: Every %s\n\n", alerting.DescribeInterval(rules[0].CheckInterval)))
	for _, r := range rules {
		b.WriteString(fmt.Sprintf("• #%d: %s (%d%% %s)\n", r.ID, r.Label(), magnitude, word))
	}

	b.WriteString("\n📊 What these alerts do:\n")
	if threshold.Sign() < 0 {
		b.WriteString(fmt.Sprintf("1️⃣ Gap Down: Triggers if stock opens %d%% below yesterday's close\n", magnitude))
		b.WriteString(fmt.Sprintf("2️⃣ 1-Hour Drop: Triggers if stock drops %d%% from highest price in last 60 min\n", magnitude))
		b.WriteString(fmt.Sprintf("3️⃣ 2-Hour Drop: Triggers if stock drops %d%% from highest price in last 120 min\n", magnitude))
	} else {
		b.WriteString(fmt.Sprintf("1️⃣ Gap Up: Triggers if stock opens %d%% above yesterday's close\n", magnitude))
		b.WriteString(fmt.Sprintf("2️⃣ 1-Hour Spike: Triggers if stock rises %d%% from lowest price in last 60 min\n", magnitude))
		b.WriteString(fmt.Sprintf("3️⃣ 2-Hour Spike: Triggers if stock rises %d%% from lowest price in last 120 min\n", magnitude))
	}
	b.WriteString("\n⏰ Alerts run during market hours only\n")
	b.WriteString("♻️ Alerts stay active until you remove them\n")
	b.WriteString("Type 'alert list' to see all your alerts.")
	return b.String()
}

func (h *Handler) list(ctx context.Context, phone string, log zerolog.Logger) string {
	user, err := h.registry.FindUser(ctx, phone)
	if errors.Is(err, registry.ErrNotFound) {
		return replyNoAlerts
	}
	if err != nil {
		log.Error().Err(err).Msg("find user failed")
		return replyProcessingError
	}

	rules, err := h.registry.ListActive(ctx, user.ID)
	if err != nil {
		log.Error().Err(err).Msg("list alerts failed")
		return replyProcessingError
	}
	if len(rules) == 0 {
		return replyNoAlerts
	}

	b := strings.Builder{}
	b.WriteString("📋 *Your Active Alerts*\n\n")
	for _, r := range rules {
		b.WriteString(fmt.Sprintf("#%d • %s • %s", r.ID, r.Symbol, r.Short()))
		if r.LastCheckedAt != nil {
			b.WriteString(" • " + r.LastCheckedAt.In(h.opts.Location).Format("15:04"))
		}
		b.WriteString("\n")
	}
	b.WriteString(fmt.Sprintf("\n📊 Total: %d alert(s)", len(rules)))
	b.WriteString("\n\nTo remove: `alert remove <ID>` or `alert remove TCS`")
	return b.String()
}

func (h *Handler) remove(ctx context.Context, phone, identifier string, log zerolog.Logger) string {
	user, err := h.registry.FindUser(ctx, phone)
	if errors.Is(err, registry.ErrNotFound) {
		return replyNoAlertsFound
	}
	if err != nil {
		log.Error().Err(err).Msg("find user failed")
		return replyProcessingError
	}

	id, symbol := ParseIdentifier(identifier)
	if id > 0 {
		err := h.registry.Deactivate(ctx, user.ID, id)
		switch {
		case errors.Is(err, registry.ErrNotFound):
			return fmt.Sprintf(replyAlertNotFound, id)
		case err != nil:
			log.Error().Err(err).Int64("rule_id", id).Msg("remove alert failed")
			return replyProcessingError
		}
		return fmt.Sprintf(replyAlertRemoved, id)
	}

	ids, err := h.registry.DeactivateBySymbol(ctx, user.ID, symbol)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		return fmt.Sprintf(replySymbolNotFound, symbol)
	case errors.Is(err, registry.ErrInvalidSymbol):
		return fmt.Sprintf(replyInvalidSymbol, symbol)
	case err != nil:
		log.Error().Err(err).Str("symbol", symbol).Msg("remove alerts failed")
		return replyProcessingError
	}
	return fmt.Sprintf(replyAlertsRemoved, len(ids), symbol)
}

func direction(threshold decimal.Decimal) string {
	if threshold.Sign() < 0 {
		return "drop"
	}
	return "spike"
}
