package command

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"stock-alerts/internal/alerting"
)

// Command names.
const (
	NamePrice = "price"
	NameAlert = "alert"
	NameHelp  = "help"
)

// Alert actions.
const (
	ActionAdd    = "add"
	ActionList   = "list"
	ActionRemove = "remove"
)

// ErrInvalidThreshold rejects a threshold argument that is not one of the supported magnitudes.
var ErrInvalidThreshold = errors.New("command: invalid threshold")

// Command is a parsed user message.
type Command struct {
	Name   string
	Action string
	Args   []string
	Raw    string
}

// Parse recognises the bot's command grammar. ok is false for free text or an
// incomplete command.
func Parse(text string) (Command, bool) {
	raw := strings.TrimSpace(text)
	parts := strings.Fields(raw)
	if len(parts) == 0 {
		return Command{}, false
	}

	switch strings.ToLower(parts[0]) {
	case NamePrice:
		if len(parts) < 2 {
			return Command{}, false
		}
		return Command{Name: NamePrice, Args: []string{strings.ToUpper(parts[1])}, Raw: raw}, true

	case NameAlert:
		if len(parts) < 2 {
			return Command{}, false
		}
		switch strings.ToLower(parts[1]) {
		case ActionList:
			return Command{Name: NameAlert, Action: ActionList, Raw: raw}, true
		case ActionAdd:
			if len(parts) < 4 {
				return Command{}, false
			}
			return Command{Name: NameAlert, Action: ActionAdd, Args: []string{strings.ToUpper(parts[2]), parts[3]}, Raw: raw}, true
		case ActionRemove, "delete":
			if len(parts) < 3 {
				return Command{}, false
			}
			return Command{Name: NameAlert, Action: ActionRemove, Args: []string{parts[2]}, Raw: raw}, true
		}

	case NameHelp:
		return Command{Name: NameHelp, Raw: raw}, true
	}

	return Command{}, false
}

// ParseThreshold turns "-8", "+8", "8" or "8%" into a signed threshold. A
// leading minus means drop; anything else is a spike.
func ParseThreshold(raw string) (decimal.Decimal, error) {
	value := strings.TrimSpace(strings.ReplaceAll(raw, "%", ""))
	drop := strings.HasPrefix(value, "-")

	parsed, err := strconv.ParseFloat(value, 64)
	magnitude := math.Abs(parsed)
	if err != nil || magnitude != float64(int64(magnitude)) || !alerting.IsSupportedMagnitude(int64(magnitude)) {
		return decimal.Zero, ErrInvalidThreshold
	}

	threshold := decimal.NewFromInt(int64(magnitude))
	if drop {
		threshold = threshold.Neg()
	}
	return threshold, nil
}

// ParseIdentifier reports whether s names a rule id or a symbol.
func ParseIdentifier(s string) (id int64, symbol string) {
	s = strings.TrimSpace(s)
	if n, err := strconv.ParseInt(strings.TrimPrefix(s, "#"), 10, 64); err == nil && n > 0 {
		return n, ""
	}
	return 0, strings.ToUpper(s)
}

// NormalizePhone strips the channel prefix from an inbound address.
func NormalizePhone(addr string) string {
	return strings.TrimPrefix(strings.TrimSpace(addr), "whatsapp:")
}
