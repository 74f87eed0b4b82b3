package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerts/internal/alerting"
	"stock-alerts/internal/model"
	"stock-alerts/internal/pricing"
	"stock-alerts/internal/storage"
)

var tickAt = time.Date(2025, 1, 6, 4, 0, 0, 0, time.UTC)

type fakeClock struct {
	open      bool
	sinceOpen time.Duration
}

func (c fakeClock) Phase(time.Time) model.Phase {
	if c.open {
		return model.PhaseOpen
	}
	return model.PhaseClosed
}

func (c fakeClock) IsOpen(time.Time) bool { return c.open }

func (c fakeClock) SinceOpen(time.Time) time.Duration { return c.sinceOpen }

type fakeSource struct {
	mu     sync.Mutex
	quotes map[string]model.Quote
	errs   map[string]error
	calls  map[string]int
}

func (s *fakeSource) GetQuote(_ context.Context, symbol string) (model.Quote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.calls == nil {
		s.calls = map[string]int{}
	}
	s.calls[symbol]++
	if err := s.errs[symbol]; err != nil {
		return model.Quote{}, err
	}
	q, ok := s.quotes[symbol]
	if !ok {
		return model.Quote{}, &pricing.FetchError{Symbol: symbol, Err: errors.New("unknown")}
	}
	return q, nil
}

type fakeSender struct {
	mu   sync.Mutex
	sent []string
	err  error
}

func (s *fakeSender) Send(_ context.Context, to, _ string, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	s.sent = append(s.sent, to)
	return "msg-1", nil
}

func (s *fakeSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type harness struct {
	store   *storage.MemoryStore
	source  *fakeSource
	sender  *fakeSender
	monitor *Monitor
	user    model.User
}

func newHarness(t *testing.T, clock fakeClock) *harness {
	t.Helper()
	store := storage.NewMemoryStore(func() time.Time { return tickAt })
	source := &fakeSource{quotes: map[string]model.Quote{}, errs: map[string]error{}}
	sender := &fakeSender{}
	logger := zerolog.Nop()

	gate := alerting.NewGate(sender, alerting.GateOptions{Cooldown: time.Hour, Currency: "₹"}, nil, logger)
	monitor := New(clock, source, store, alerting.NewEvaluator(store, logger), gate,
		Options{SnapshotHorizon: 2 * time.Hour, GapCheckWindow: 10 * time.Minute, FetchConcurrency: 2}, nil, logger)

	user, err := store.EnsureUser(context.Background(), "+919800000001")
	require.NoError(t, err)
	return &harness{store: store, source: source, sender: sender, monitor: monitor, user: user}
}

func (h *harness) addRule(t *testing.T, rule model.Rule) model.Rule {
	t.Helper()
	rule.UserID = h.user.ID
	if rule.CheckInterval == 0 {
		rule.CheckInterval = alerting.CheckInterval(rule.Magnitude())
	}
	created, err := h.store.CreateRules(context.Background(), []model.Rule{rule})
	require.NoError(t, err)
	return created[0]
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func gapDownQuote(symbol string) model.Quote {
	return model.Quote{Symbol: symbol, Current: dec("3300"), Open: dec("3220"), PreviousClose: dec("3500")}
}

func TestSnapshotTickCollectsAndPurges(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	ctx := context.Background()
	h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-8")})
	h.addRule(t, model.Rule{Symbol: "INFY", Kind: model.KindDropWindow, WindowHours: 1, Threshold: dec("-5")})
	h.source.quotes["TCS"] = gapDownQuote("TCS")
	h.source.quotes["INFY"] = model.Quote{Symbol: "INFY", Current: dec("1500")}

	require.NoError(t, h.store.AppendSnapshot(ctx, model.Snapshot{Symbol: "TCS", Price: dec("1"), SampledAt: tickAt.Add(-3 * time.Hour)}))

	report, err := h.monitor.RunTick(ctx, TickSnapshot, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, report.Status)
	assert.Equal(t, 2, report.Symbols)
	assert.Equal(t, 2, report.SnapshotsCollected)
	assert.Equal(t, int64(1), report.SnapshotsPurged)
	assert.Equal(t, 2, h.store.SnapshotCount())

	report, err = h.monitor.RunTick(ctx, TickSnapshot, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, int64(0), report.SnapshotsPurged)

	snaps, err := h.store.ListSnapshots(ctx, "TCS", tickAt.Add(-time.Minute), tickAt.Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, snaps, 2)
	assert.Equal(t, model.PhaseOpen, snaps[0].Phase)
	require.NotNil(t, snaps[0].Open)
	assert.True(t, snaps[0].Open.Equal(dec("3220")))
}

func TestTicksSkipWhenMarketClosed(t *testing.T) {
	h := newHarness(t, fakeClock{open: false})
	h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-8")})
	h.source.quotes["TCS"] = gapDownQuote("TCS")

	for _, tick := range []string{TickSnapshot, TickGap, TickWindow} {
		report, err := h.monitor.RunTick(context.Background(), tick, tickAt, false)
		require.NoError(t, err)
		assert.Equal(t, StatusSkipped, report.Status)
		assert.Equal(t, "market closed", report.Reason)
	}
	assert.Empty(t, h.source.calls)

	report, err := h.monitor.RunTick(context.Background(), TickSnapshot, tickAt, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.SnapshotsCollected)
}

func TestGapTickOutsideCheckWindow(t *testing.T) {
	h := newHarness(t, fakeClock{open: true, sinceOpen: 30 * time.Minute})

	report, err := h.monitor.RunTick(context.Background(), TickGap, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, StatusSkipped, report.Status)
	assert.Equal(t, "outside gap check window", report.Reason)
}

func TestGapTickDeliversOnceThenCoolsDown(t *testing.T) {
	h := newHarness(t, fakeClock{open: true, sinceOpen: 5 * time.Minute})
	ctx := context.Background()
	rule := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-8")})
	miss := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-9")})
	h.source.quotes["TCS"] = gapDownQuote("TCS")

	report, err := h.monitor.RunTick(ctx, TickGap, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Symbols)
	assert.Equal(t, 2, report.Checked)
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 1, report.Sent)
	assert.Equal(t, 1, h.source.calls["TCS"])
	assert.Equal(t, []string{"+919800000001"}, h.sender.sent)

	stored, _ := h.store.Rule(rule.ID)
	require.NotNil(t, stored.LastTriggeredAt)
	assert.True(t, stored.LastTriggeredAt.Equal(tickAt))
	assert.True(t, stored.Active)

	other, _ := h.store.Rule(miss.ID)
	require.NotNil(t, other.LastCheckedAt)
	assert.Nil(t, other.LastTriggeredAt)

	// same inputs again: evaluated and triggered, but the cooldown holds the message back
	report, err = h.monitor.RunTick(ctx, TickGap, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Triggered)
	assert.Equal(t, 0, report.Sent)
	assert.Equal(t, 1, h.sender.count())

	events, err := h.store.ListRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.True(t, events[0].Sent)
	assert.Equal(t, "msg-1", events[0].DeliveryID)
}

func TestDeliveryFailureKeepsRuleEligible(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	h.sender.err = errors.New("transport down")
	ctx := context.Background()
	rule := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-8")})
	h.source.quotes["TCS"] = gapDownQuote("TCS")

	report, err := h.monitor.RunTick(ctx, TickGap, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	stored, _ := h.store.Rule(rule.ID)
	assert.Nil(t, stored.LastTriggeredAt)
	require.NotNil(t, stored.LastCheckedAt)

	events, err := h.store.ListRecentEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.False(t, events[0].Sent)
	assert.Equal(t, "transport down", events[0].Error)

	h.sender.err = nil
	report, err = h.monitor.RunTick(ctx, TickGap, tickAt.Add(time.Minute), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Sent)
}

func TestWindowTickHonoursCheckInterval(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	ctx := context.Background()
	rule := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindDropWindow, WindowHours: 1, Threshold: dec("-5")})
	assert.Equal(t, 30*time.Minute, rule.CheckInterval)

	require.NoError(t, h.store.AppendSnapshot(ctx, model.Snapshot{Symbol: "TCS", Price: dec("3500"), SampledAt: tickAt.Add(-10 * time.Minute)}))
	h.source.quotes["TCS"] = model.Quote{Symbol: "TCS", Current: dec("3300"), PreviousClose: dec("3400")}

	report, err := h.monitor.RunTick(ctx, TickWindow, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Sent)

	report, err = h.monitor.RunTick(ctx, TickWindow, tickAt.Add(29*time.Minute), false)
	require.NoError(t, err)
	assert.Equal(t, 0, report.Symbols)
	assert.Equal(t, 0, report.Checked)

	report, err = h.monitor.RunTick(ctx, TickWindow, tickAt.Add(30*time.Minute), false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 1, report.Triggered)
	// still inside the one hour cooldown
	assert.Equal(t, 0, report.Sent)
}

func TestWindowTickWithoutSnapshotsDoesNotTrigger(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	rule := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindSpikeWindow, WindowHours: 2, Threshold: dec("5")})
	h.source.quotes["TCS"] = model.Quote{Symbol: "TCS", Current: dec("3300")}

	report, err := h.monitor.RunTick(context.Background(), TickWindow, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Checked)
	assert.Equal(t, 0, report.Triggered)

	stored, _ := h.store.Rule(rule.ID)
	require.NotNil(t, stored.LastCheckedAt)
}

func TestSymbolFailuresAreIsolated(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	ctx := context.Background()
	tcs := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-8")})
	infy := h.addRule(t, model.Rule{Symbol: "INFY", Kind: model.KindGapDown, Threshold: dec("-8")})
	wipro := h.addRule(t, model.Rule{Symbol: "WIPRO", Kind: model.KindGapDown, Threshold: dec("-8")})

	h.source.quotes["TCS"] = gapDownQuote("TCS")
	h.source.errs["INFY"] = &pricing.FetchError{Symbol: "INFY", Transient: true, Err: errors.New("timeout")}
	h.source.errs["WIPRO"] = &pricing.FetchError{Symbol: "WIPRO", Err: errors.New("delisted")}

	report, err := h.monitor.RunTick(ctx, TickGap, tickAt, false)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Symbols)
	assert.Equal(t, 1, report.Sent)

	stored, _ := h.store.Rule(tcs.ID)
	assert.NotNil(t, stored.LastTriggeredAt)
	stored, _ = h.store.Rule(infy.ID)
	assert.Nil(t, stored.LastCheckedAt)
	stored, _ = h.store.Rule(wipro.ID)
	assert.Nil(t, stored.LastCheckedAt)
}

func TestAllTransientFailuresFailTheTick(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-8")})
	h.source.errs["TCS"] = &pricing.FetchError{Symbol: "TCS", Transient: true, Err: errors.New("timeout")}

	report, err := h.monitor.RunTick(context.Background(), TickGap, tickAt, false)
	assert.Error(t, err)
	assert.Equal(t, StatusFailed, report.Status)

	_, err = h.monitor.RunTick(context.Background(), TickSnapshot, tickAt, false)
	assert.Error(t, err)
}

func TestCommitFailureIsolatesGroup(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	ctx := context.Background()
	tcs := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindGapDown, Threshold: dec("-9")})
	infy := h.addRule(t, model.Rule{Symbol: "INFY", Kind: model.KindGapDown, Threshold: dec("-9")})
	h.source.quotes["TCS"] = gapDownQuote("TCS")
	h.source.quotes["INFY"] = gapDownQuote("INFY")
	h.store.FailCommit = func(c storage.GroupCommit) error {
		if c.Symbol == "TCS" {
			return errors.New("deadlock detected")
		}
		return nil
	}

	_, err := h.monitor.RunTick(ctx, TickGap, tickAt, false)
	require.NoError(t, err)

	stored, _ := h.store.Rule(tcs.ID)
	assert.Nil(t, stored.LastCheckedAt)
	stored, _ = h.store.Rule(infy.ID)
	assert.NotNil(t, stored.LastCheckedAt)
}

type brokenWindows struct{}

func (brokenWindows) WindowMax(context.Context, string, time.Time, time.Duration) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, errors.New("connection refused")
}

func (brokenWindows) WindowMin(context.Context, string, time.Time, time.Duration) (decimal.Decimal, bool, error) {
	return decimal.Zero, false, errors.New("connection refused")
}

func TestWindowLookupFailureSkipsGroupAndFailsTick(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	ctx := context.Background()
	logger := zerolog.Nop()
	gate := alerting.NewGate(h.sender, alerting.GateOptions{Cooldown: time.Hour}, nil, logger)
	h.monitor = New(fakeClock{open: true}, h.source, h.store, alerting.NewEvaluator(brokenWindows{}, logger), gate,
		Options{SnapshotHorizon: 2 * time.Hour, FetchConcurrency: 2}, nil, logger)

	rule := h.addRule(t, model.Rule{Symbol: "TCS", Kind: model.KindDropWindow, WindowHours: 1, Threshold: dec("-5")})
	h.source.quotes["TCS"] = model.Quote{Symbol: "TCS", Current: dec("3300")}

	report, err := h.monitor.RunTick(ctx, TickWindow, tickAt, false)
	require.Error(t, err)
	assert.Equal(t, StatusFailed, report.Status)
	assert.Equal(t, 0, report.Checked)

	stored, _ := h.store.Rule(rule.ID)
	assert.Nil(t, stored.LastCheckedAt)
	assert.Zero(t, h.sender.count())

	// still due on the next tick
	report, err = h.monitor.RunTick(ctx, TickWindow, tickAt.Add(time.Minute), false)
	require.Error(t, err)
	assert.Equal(t, 1, report.Symbols)
}

func TestUnknownTick(t *testing.T) {
	h := newHarness(t, fakeClock{open: true})
	_, err := h.monitor.RunTick(context.Background(), "hourly", tickAt, false)
	assert.Error(t, err)
}
