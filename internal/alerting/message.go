package alerting

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"stock-alerts/internal/model"
)

const (
	arrowDown = "⬇️"
	arrowUp   = "⬆️"
)

// FormatPrice renders a price with two decimals and thousands separators, e.g. ₹3,220.00.
func FormatPrice(currency string, d decimal.Decimal) string {
	fixed := d.Abs().StringFixed(2)
	whole, frac, _ := strings.Cut(fixed, ".")

	var b strings.Builder
	for i, r := range whole {
		if i > 0 && (len(whole)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}

	sign := ""
	if d.Sign() < 0 {
		sign = "-"
	}
	return sign + currency + b.String() + "." + frac
}

// FormatChange renders a signed percentage with its arrow, e.g. "-8.00% ⬇️".
func FormatChange(pct decimal.Decimal) string {
	if pct.Sign() < 0 {
		return pct.StringFixed(2) + "% " + arrowDown
	}
	return "+" + pct.StringFixed(2) + "% " + arrowUp
}

// RenderAlert builds the notification body for a triggered rule.
func RenderAlert(currency string, rule model.Rule, quote model.Quote) string {
	direction := "drop"
	if !rule.IsDrop() {
		direction = "spike"
	}

	b := strings.Builder{}
	b.WriteString(fmt.Sprintf("🚨 STOCK ALERT: %s\n\n", rule.Symbol))
	b.WriteString(fmt.Sprintf("Current Price: %s\n", FormatPrice(currency, quote.Current)))
	b.WriteString(fmt.Sprintf("Previous Close: %s\n", FormatPrice(currency, quote.PreviousClose)))
	b.WriteString(fmt.Sprintf("Change: %s\n\n", FormatChange(quote.PercentChange())))
	b.WriteString(fmt.Sprintf("Alert: %s %d%% (%s threshold reached)\n", rule.Label(), rule.Magnitude(), direction))
	b.WriteString(fmt.Sprintf("Alert ID: #%d\n\n", rule.ID))
	b.WriteString(fmt.Sprintf("This alert will continue monitoring. To stop, use: alert remove %d", rule.ID))
	return b.String()
}
