package model

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	cases := map[string]Kind{
		"gap_down":     KindGapDown,
		"GAP_UP":       KindGapUp,
		"drop_window":  KindDropWindow,
		"spike_window": KindSpikeWindow,
		"intraday":     KindDropWindow,
		"intraday_1h":  KindDropWindow,
		"intraday_2h":  KindDropWindow,
	}
	for raw, want := range cases {
		got, err := ParseKind(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParseKind("drop_8")
	assert.Error(t, err)
}

func TestParseKindWindowKeepsLegacyHours(t *testing.T) {
	cases := map[string]int{
		"intraday":      0,
		"intraday_1h":   1,
		"intraday_2h":   2,
		"intraday_2h_8": 2,
		"drop_window":   0,
		"gap_down":      0,
	}
	for raw, want := range cases {
		_, hours, err := ParseKindWindow(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, hours, raw)
	}

	for _, raw := range []string{"intraday_", "intraday_2", "intraday_xh", "intraday_0h"} {
		_, _, err := ParseKindWindow(raw)
		assert.Error(t, err, raw)
	}
}

func TestRuleDue(t *testing.T) {
	now := time.Date(2025, 1, 6, 10, 0, 0, 0, time.UTC)
	rule := Rule{CheckInterval: 15 * time.Minute}
	assert.True(t, rule.Due(now), "never checked")

	last := now.Add(-14 * time.Minute)
	rule.LastCheckedAt = &last
	assert.False(t, rule.Due(now))

	last = now.Add(-15 * time.Minute)
	rule.LastCheckedAt = &last
	assert.True(t, rule.Due(now), "boundary is inclusive")
}

func TestRuleLabels(t *testing.T) {
	rule := Rule{Kind: KindDropWindow, WindowHours: 2, Threshold: decimal.NewFromInt(-8)}
	assert.Equal(t, "2h Drop 8%", rule.Short())
	assert.Equal(t, "2-Hour Drop", rule.Label())
	assert.True(t, rule.IsDrop())

	gap := Rule{Kind: KindGapUp, Threshold: decimal.NewFromInt(5)}
	assert.Equal(t, "Gap Up 5%", gap.Short())
	assert.Zero(t, gap.Window())
}

func TestPercentChange(t *testing.T) {
	got := PercentChange(decimal.NewFromInt(3220), decimal.NewFromInt(3500))
	assert.True(t, got.Equal(decimal.NewFromInt(-8)), got.String())
	assert.True(t, PercentChange(decimal.NewFromInt(10), decimal.Zero).IsZero())

	q := Quote{Current: decimal.NewFromInt(110), PreviousClose: decimal.NewFromInt(100), Open: decimal.NewFromInt(95)}
	assert.True(t, q.PercentChange().Equal(decimal.NewFromInt(10)))
	assert.True(t, q.Gap().Equal(decimal.NewFromInt(-5)))
}
