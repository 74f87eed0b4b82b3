package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerts/internal/config"
	"stock-alerts/internal/model"
)

// Runs against a throwaway database, e.g.
// STOCKALERT_TEST_DATABASE_DSN=postgres://postgres@localhost:5432/stockalert_test?sslmode=disable
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("STOCKALERT_TEST_DATABASE_DSN")
	if dsn == "" {
		t.Skip("STOCKALERT_TEST_DATABASE_DSN not set")
	}
	ctx := context.Background()
	pool, err := NewPool(ctx, config.DatabaseConfig{DSN: dsn})
	require.NoError(t, err)
	store := NewStore(pool)
	t.Cleanup(store.Close)

	_, err = store.Migrate(ctx, "../../migrations")
	require.NoError(t, err)
	_, err = pool.Exec(ctx, `TRUNCATE alert_events, alert_rules, users, price_snapshots, stock_price_cache RESTART IDENTITY CASCADE`)
	require.NoError(t, err)
	return store
}

func TestStoreRulesAndCommit(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user, err := store.EnsureUser(ctx, "whatsapp:+911111111111")
	require.NoError(t, err)
	again, err := store.EnsureUser(ctx, "whatsapp:+911111111111")
	require.NoError(t, err)
	assert.Equal(t, user.ID, again.ID)

	created, err := store.CreateRules(ctx, []model.Rule{
		{UserID: user.ID, Symbol: "TCS", Kind: model.KindGapDown, Threshold: decimal.NewFromInt(-8), CheckInterval: 15 * time.Minute},
		{UserID: user.ID, Symbol: "TCS", Kind: model.KindDropWindow, WindowHours: 2, Threshold: decimal.NewFromInt(-8), CheckInterval: 15 * time.Minute},
	})
	require.NoError(t, err)
	require.Len(t, created, 2)

	found, err := store.FindActiveRules(ctx, user.ID, "TCS", decimal.NewFromInt(-8))
	require.NoError(t, err)
	assert.Len(t, found, 2)

	windows, err := store.ListActiveRulesByKind(ctx, model.WindowKinds)
	require.NoError(t, err)
	require.Len(t, windows, 1)
	assert.Equal(t, 2, windows[0].WindowHours)
	assert.Equal(t, 15*time.Minute, windows[0].CheckInterval)
	assert.Equal(t, user.PhoneNumber, windows[0].Recipient)

	now := time.Now().UTC().Truncate(time.Second)
	require.NoError(t, store.CommitGroup(ctx, GroupCommit{
		Symbol:  "TCS",
		At:      now,
		Checked: []int64{created[0].ID},
		Events: []model.AlertEvent{{
			RuleID: created[0].ID, TriggeredAt: now,
			Price: decimal.NewFromInt(3220), PreviousPrice: decimal.NewFromInt(3500), PercentChange: decimal.NewFromInt(-8),
			Sent: false, Error: "transport down",
		}},
	}))
	events, err := store.ListRecentEvents(ctx, 5)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Sent)
	assert.Equal(t, "transport down", events[0].Error)

	ok, err := store.DeactivateRule(ctx, user.ID, created[0].ID)
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = store.DeactivateRule(ctx, user.ID, created[0].ID)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreSnapshotsAndQuotes(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	for i, p := range []int64{3500, 3450, 3400} {
		require.NoError(t, store.AppendSnapshot(ctx, model.Snapshot{
			Symbol: "TCS", Ticker: "TCS.NS", Price: decimal.NewFromInt(p),
			SampledAt: now.Add(time.Duration(i-2) * 20 * time.Minute), Phase: model.PhaseOpen,
		}))
	}
	high, ok, err := store.WindowMax(ctx, "TCS", now, time.Hour)
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, high.Equal(decimal.NewFromInt(3500)))

	_, ok, err = store.WindowMin(ctx, "WIPRO", now, time.Hour)
	require.NoError(t, err)
	assert.False(t, ok)

	n, err := store.PurgeSnapshotsBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = store.PurgeSnapshotsBefore(ctx, now.Add(-30*time.Minute))
	require.NoError(t, err)
	assert.Zero(t, n)

	quote := model.Quote{Symbol: "TCS", Ticker: "TCS.NS", Current: decimal.NewFromInt(3400), PreviousClose: decimal.NewFromInt(3500), FetchedAt: now}
	require.NoError(t, store.UpsertCachedQuote(ctx, quote))
	got, ok, err := store.GetCachedQuote(ctx, "TCS")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Current.Equal(quote.Current))
	assert.True(t, got.Open.IsZero())
	assert.True(t, got.FetchedAt.Equal(now))
}

func TestKindFilterIncludesLegacyOnlyForDrops(t *testing.T) {
	names, legacy := kindFilter(model.WindowKinds)
	assert.Equal(t, []string{"drop_window", "spike_window"}, names)
	assert.True(t, legacy)

	names, legacy = kindFilter(model.GapKinds)
	assert.Equal(t, []string{"gap_down", "gap_up"}, names)
	assert.False(t, legacy)
}

func TestStoreSelectsLegacyIntradayRules(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()

	user, err := store.EnsureUser(ctx, "whatsapp:+912222222222")
	require.NoError(t, err)
	for _, kind := range []string{"intraday", "intraday_1h_5", "intraday_2h"} {
		_, err := store.pool.Exec(ctx, `INSERT INTO alert_rules
            (user_id, stock_symbol, alert_kind, threshold_percent, check_interval_seconds, is_active)
            VALUES ($1, 'INFY', $2, -8, 900, TRUE)`, user.ID, kind)
		require.NoError(t, err)
	}

	windows, err := store.ListActiveRulesByKind(ctx, model.WindowKinds)
	require.NoError(t, err)
	require.Len(t, windows, 3)
	hours := make([]int, 0, len(windows))
	for _, r := range windows {
		assert.Equal(t, model.KindDropWindow, r.Kind)
		hours = append(hours, r.WindowHours)
	}
	assert.Equal(t, []int{1, 1, 2}, hours)

	gaps, err := store.ListActiveRulesByKind(ctx, model.GapKinds)
	require.NoError(t, err)
	assert.Empty(t, gaps)
}
