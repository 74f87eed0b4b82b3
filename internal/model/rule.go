package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Kind enumerates the alert taxonomy.
type Kind string

const (
	KindGapDown     Kind = "gap_down"
	KindGapUp       Kind = "gap_up"
	KindDropWindow  Kind = "drop_window"
	KindSpikeWindow Kind = "spike_window"
)

// LegacyIntraday prefixes single-window rules that predate drop/spike
// windows; they evaluate exactly like a drop window.
const LegacyIntraday = "intraday"

// ParseKind maps a persisted kind string onto the closed Kind set.
func ParseKind(raw string) (Kind, error) {
	kind, _, err := ParseKindWindow(raw)
	return kind, err
}

// ParseKindWindow is ParseKind plus the window hours encoded in legacy
// names such as "intraday_2h" or "intraday_2h_8". hours is 0 when the name
// carries none.
func ParseKindWindow(raw string) (kind Kind, hours int, err error) {
	value := strings.ToLower(strings.TrimSpace(raw))
	switch Kind(value) {
	case KindGapDown, KindGapUp, KindDropWindow, KindSpikeWindow:
		return Kind(value), 0, nil
	}
	if value == LegacyIntraday {
		return KindDropWindow, 0, nil
	}
	if suffix, ok := strings.CutPrefix(value, LegacyIntraday+"_"); ok {
		window, _, _ := strings.Cut(suffix, "_")
		digits, ok := strings.CutSuffix(window, "h")
		if !ok {
			return "", 0, fmt.Errorf("unknown alert kind %q", raw)
		}
		n, convErr := strconv.Atoi(digits)
		if convErr != nil || n <= 0 {
			return "", 0, fmt.Errorf("unknown alert kind %q", raw)
		}
		return KindDropWindow, n, nil
	}
	return "", 0, fmt.Errorf("unknown alert kind %q", raw)
}

// IsGap reports whether the kind compares session open to previous close.
func (k Kind) IsGap() bool {
	return k == KindGapDown || k == KindGapUp
}

// IsWindow reports whether the kind needs rolling-window snapshots.
func (k Kind) IsWindow() bool {
	return k == KindDropWindow || k == KindSpikeWindow
}

// GapKinds and WindowKinds partition the taxonomy between ticks.
var (
	GapKinds    = []Kind{KindGapDown, KindGapUp}
	WindowKinds = []Kind{KindDropWindow, KindSpikeWindow}
)

// SupportedWindows lists the rolling windows a rule may use, in hours.
var SupportedWindows = []int{1, 2}

// MaxWindow is the largest rolling window any rule evaluates.
const MaxWindow = 2 * time.Hour

// Rule is a user-owned alert definition.
type Rule struct {
	ID              int64
	UserID          int64
	Symbol          string
	Kind            Kind
	WindowHours     int
	Threshold       decimal.Decimal
	CheckInterval   time.Duration
	Active          bool
	CreatedAt       time.Time
	LastCheckedAt   *time.Time
	LastTriggeredAt *time.Time
	ReferencePrice  *decimal.Decimal
	ReferenceAt     *time.Time

	// Recipient is the owner's phone number, filled when listing for evaluation.
	Recipient string
}

// Window returns the rolling window size; zero for gap rules.
func (r Rule) Window() time.Duration {
	return time.Duration(r.WindowHours) * time.Hour
}

// Magnitude returns |threshold| as an integer percent.
func (r Rule) Magnitude() int64 {
	return r.Threshold.Abs().IntPart()
}

// IsDrop reports whether the rule watches a downward move.
func (r Rule) IsDrop() bool {
	return r.Threshold.Sign() < 0
}

// Due reports whether the rule's check interval has elapsed since the last evaluation.
func (r Rule) Due(now time.Time) bool {
	if r.LastCheckedAt == nil {
		return true
	}
	return now.Sub(*r.LastCheckedAt) >= r.CheckInterval
}

// Short renders the compact label used in listings, e.g. "1h Drop 8%".
func (r Rule) Short() string {
	m := r.Magnitude()
	switch r.Kind {
	case KindGapDown:
		return fmt.Sprintf("Gap Down %d%%", m)
	case KindGapUp:
		return fmt.Sprintf("Gap Up %d%%", m)
	case KindDropWindow:
		return fmt.Sprintf("%dh Drop %d%%", r.WindowHours, m)
	case KindSpikeWindow:
		return fmt.Sprintf("%dh Spike %d%%", r.WindowHours, m)
	}
	return fmt.Sprintf("%d%%", m)
}

// Label renders the long form used in notifications, e.g. "2-Hour Drop".
func (r Rule) Label() string {
	switch r.Kind {
	case KindGapDown:
		return "Gap Down"
	case KindGapUp:
		return "Gap Up"
	case KindDropWindow:
		return fmt.Sprintf("%d-Hour Drop", r.WindowHours)
	case KindSpikeWindow:
		return fmt.Sprintf("%d-Hour Spike", r.WindowHours)
	}
	return string(r.Kind)
}
