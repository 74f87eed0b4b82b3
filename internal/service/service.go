package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"stock-alerts/internal/alerting"
	"stock-alerts/internal/metrics"
	"stock-alerts/internal/model"
	"stock-alerts/internal/pricing"
	"stock-alerts/internal/scheduler"
	"stock-alerts/internal/storage"
)

// SessionClock is the market calendar the monitor gates on.
type SessionClock interface {
	Phase(now time.Time) model.Phase
	IsOpen(now time.Time) bool
	SinceOpen(now time.Time) time.Duration
}

// Options tune the monitor.
type Options struct {
	SnapshotHorizon time.Duration
	// GapCheckWindow limits gap evaluation to the first part of the session; 0 means all of it.
	GapCheckWindow   time.Duration
	FetchConcurrency int
	AdvisoryLockKey  int64
}

// Monitor drives snapshot collection and rule evaluation.
type Monitor struct {
	clock     SessionClock
	source    pricing.QuoteSource
	store     storage.Repository
	locker    storage.AdvisoryLocker
	evaluator *alerting.Evaluator
	gate      *alerting.Gate
	metrics   *metrics.Metrics
	opts      Options
	logger    zerolog.Logger
}

// New constructs the monitor. The store doubles as advisory locker when it supports it.
func New(clock SessionClock, source pricing.QuoteSource, store storage.Repository, evaluator *alerting.Evaluator, gate *alerting.Gate, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Monitor {
	if opts.SnapshotHorizon < model.MaxWindow {
		opts.SnapshotHorizon = model.MaxWindow
	}
	if opts.FetchConcurrency <= 0 {
		opts.FetchConcurrency = 1
	}

	var locker storage.AdvisoryLocker
	if l, ok := store.(storage.AdvisoryLocker); ok {
		locker = l
	}

	return &Monitor{
		clock:     clock,
		source:    source,
		store:     store,
		locker:    locker,
		evaluator: evaluator,
		gate:      gate,
		metrics:   m,
		opts:      opts,
		logger:    logger.With().Str("component", "monitor").Logger(),
	}
}

// Schedules holds one runner per tick kind. A nil runner disables that tick.
type Schedules struct {
	Snapshot *scheduler.Scheduler
	Gap      *scheduler.Scheduler
	Window   *scheduler.Scheduler
}

// Run drives the three ticks until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context, s Schedules) error {
	g, gctx := errgroup.WithContext(ctx)
	start := func(sched *scheduler.Scheduler, tick scheduler.TickFunc) {
		if sched == nil {
			return
		}
		g.Go(func() error {
			err := sched.Run(gctx, tick)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		})
	}
	start(s.Snapshot, m.SnapshotTick)
	start(s.Gap, m.GapTick)
	start(s.Window, m.WindowTick)
	return g.Wait()
}

// SnapshotTick samples every watched symbol and prunes old samples.
func (m *Monitor) SnapshotTick(ctx context.Context, at time.Time) error {
	_, err := m.RunTick(ctx, TickSnapshot, at, false)
	return err
}

// GapTick evaluates gap rules near the session open.
func (m *Monitor) GapTick(ctx context.Context, at time.Time) error {
	_, err := m.RunTick(ctx, TickGap, at, false)
	return err
}

// WindowTick evaluates due rolling-window rules.
func (m *Monitor) WindowTick(ctx context.Context, at time.Time) error {
	_, err := m.RunTick(ctx, TickWindow, at, false)
	return err
}

// RunTick executes one tick at the given instant. force bypasses the market gates.
func (m *Monitor) RunTick(ctx context.Context, tick string, at time.Time, force bool) (Report, error) {
	offset, known := lockOffsets[tick]
	if !known {
		return Report{}, fmt.Errorf("unknown tick %q", tick)
	}

	report := Report{Tick: tick, RunID: uuid.NewString(), Status: StatusSuccess}
	log := m.logger.With().Str("tick", tick).Str("run_id", report.RunID).Logger()
	started := time.Now()

	if reason := m.gateReason(tick, at, force); reason != "" {
		report.Status, report.Reason = StatusSkipped, reason
		m.metrics.ObserveTick(tick, report.Status, time.Since(started))
		log.Debug().Object("report", report).Msg("tick skipped")
		return report, nil
	}

	unlock, proceed, err := m.acquireLock(ctx, offset)
	if err != nil {
		m.metrics.ObserveTick(tick, StatusFailed, time.Since(started))
		return report, err
	}
	if !proceed {
		report.Status, report.Reason = StatusSkipped, "advisory lock held elsewhere"
		m.metrics.ObserveTick(tick, report.Status, time.Since(started))
		log.Debug().Msg("skip tick because advisory lock held elsewhere")
		return report, nil
	}
	if unlock != nil {
		defer unlock()
	}

	switch tick {
	case TickSnapshot:
		err = m.collectSnapshots(ctx, at, &report, log)
	case TickGap:
		err = m.evaluate(ctx, at, model.GapKinds, false, &report, log)
	case TickWindow:
		err = m.evaluate(ctx, at, model.WindowKinds, true, &report, log)
	}

	if err != nil {
		report.Status, report.Reason = StatusFailed, err.Error()
		m.metrics.ObserveTick(tick, report.Status, time.Since(started))
		log.Error().Err(err).Object("report", report).Msg("tick failed")
		return report, err
	}
	m.metrics.ObserveTick(tick, report.Status, time.Since(started))
	log.Info().Object("report", report).Dur("elapsed", time.Since(started)).Msg("tick complete")
	return report, nil
}

func (m *Monitor) gateReason(tick string, at time.Time, force bool) string {
	if force {
		return ""
	}
	if !m.clock.IsOpen(at) {
		return "market closed"
	}
	if tick == TickGap && m.opts.GapCheckWindow > 0 && m.clock.SinceOpen(at) > m.opts.GapCheckWindow {
		return "outside gap check window"
	}
	return ""
}

func (m *Monitor) collectSnapshots(ctx context.Context, at time.Time, report *Report, log zerolog.Logger) error {
	symbols, err := m.store.ActiveSymbols(ctx)
	if err != nil {
		return fmt.Errorf("list active symbols: %w", err)
	}
	report.Symbols = len(symbols)
	phase := m.clock.Phase(at)

	var (
		mu        sync.Mutex
		transient int
		g         errgroup.Group
	)
	g.SetLimit(m.opts.FetchConcurrency)
	for _, symbol := range symbols {
		g.Go(func() error {
			quote, err := m.source.GetQuote(ctx, symbol)
			if err == nil {
				err = m.store.AppendSnapshot(ctx, model.SnapshotFromQuote(quote, at, phase))
				if err != nil {
					err = fmt.Errorf("append snapshot %s: %w", symbol, err)
				}
			}

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.SnapshotsCollected++
			case errors.Is(err, pricing.ErrNoData):
				log.Info().Err(err).Str("symbol", symbol).Msg("no price for snapshot")
			default:
				transient++
				log.Error().Err(err).Str("symbol", symbol).Msg("snapshot failed")
			}
			return nil
		})
	}
	_ = g.Wait()
	m.metrics.SnapshotsCollected(report.SnapshotsCollected)

	purged, err := m.store.PurgeSnapshotsBefore(ctx, at.Add(-m.opts.SnapshotHorizon))
	if err != nil {
		return fmt.Errorf("purge snapshots: %w", err)
	}
	report.SnapshotsPurged = purged
	m.metrics.SnapshotsPurged(purged)

	if transient > 0 && transient == len(symbols) {
		return fmt.Errorf("all %d symbols failed", transient)
	}
	return nil
}

type groupResult struct {
	checked, triggered, sent, failed int
}

func (m *Monitor) evaluate(ctx context.Context, at time.Time, kinds []model.Kind, dueOnly bool, report *Report, log zerolog.Logger) error {
	rules, err := m.store.ListActiveRulesByKind(ctx, kinds)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}

	order := make([]string, 0)
	groups := make(map[string][]model.Rule)
	for _, rule := range rules {
		if dueOnly && !rule.Due(at) {
			continue
		}
		if _, seen := groups[rule.Symbol]; !seen {
			order = append(order, rule.Symbol)
		}
		groups[rule.Symbol] = append(groups[rule.Symbol], rule)
	}
	report.Symbols = len(order)
	if len(order) == 0 {
		return nil
	}

	var (
		mu        sync.Mutex
		transient int
		g         errgroup.Group
	)
	g.SetLimit(m.opts.FetchConcurrency)
	for _, symbol := range order {
		g.Go(func() error {
			res, err := m.processGroup(ctx, report.Tick, symbol, groups[symbol], at, log)

			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				report.Checked += res.checked
				report.Triggered += res.triggered
				report.Sent += res.sent
				report.Failed += res.failed
			case errors.Is(err, pricing.ErrNoData):
				log.Info().Err(err).Str("symbol", symbol).Msg("no price, group skipped")
			default:
				transient++
				log.Error().Err(err).Str("symbol", symbol).Msg("symbol group failed")
			}
			return nil
		})
	}
	_ = g.Wait()

	if transient == len(order) {
		return fmt.Errorf("all %d symbol groups failed", transient)
	}
	return nil
}

// processGroup evaluates every rule on one symbol against a single quote and
// commits the group's state transition as a unit. A failed window lookup
// abandons the whole group before anything is delivered or committed.
func (m *Monitor) processGroup(ctx context.Context, tick, symbol string, rules []model.Rule, at time.Time, log zerolog.Logger) (groupResult, error) {
	var res groupResult

	quote, err := m.source.GetQuote(ctx, symbol)
	if err != nil {
		return res, err
	}

	decisions := make([]alerting.Decision, len(rules))
	for i, rule := range rules {
		d, err := m.evaluator.Evaluate(ctx, rule, quote, at)
		if err != nil {
			return res, fmt.Errorf("evaluate rule %d: %w", rule.ID, err)
		}
		decisions[i] = d
	}

	commit := storage.GroupCommit{Symbol: symbol, At: at}
	for i, rule := range rules {
		d := decisions[i]
		commit.Checked = append(commit.Checked, rule.ID)
		res.checked++
		m.metrics.RuleEvaluated(tick)

		if d.Skipped != "" {
			log.Info().Int64("rule_id", rule.ID).Str("symbol", symbol).Str("reason", d.Skipped).Msg("rule not evaluated")
			continue
		}
		if !d.Triggered {
			continue
		}

		res.triggered++
		m.metrics.RuleTriggered(string(rule.Kind))
		log.Info().Int64("rule_id", rule.ID).Str("symbol", symbol).
			Str("move_pct", d.Move.StringFixed(2)).Str("reference", d.Reference.String()).
			Msg("rule triggered")

		if !m.gate.CanSend(rule, at) {
			m.metrics.Suppressed()
			log.Info().Int64("rule_id", rule.ID).Msg("suppressed by cooldown")
			continue
		}
		if ev := m.gate.Deliver(ctx, rule, quote, at, &commit); ev.Sent {
			res.sent++
		} else {
			res.failed++
		}
	}

	if err := m.store.CommitGroup(ctx, commit); err != nil {
		return res, fmt.Errorf("commit %s: %w", symbol, err)
	}
	return res, nil
}

func (m *Monitor) acquireLock(ctx context.Context, offset int64) (func(), bool, error) {
	if m.opts.AdvisoryLockKey == 0 || m.locker == nil {
		return nil, true, nil
	}
	unlock, acquired, err := m.locker.TryAdvisoryLock(ctx, m.opts.AdvisoryLockKey+offset)
	if err != nil {
		return nil, false, fmt.Errorf("acquire advisory lock: %w", err)
	}
	if !acquired {
		return nil, false, nil
	}
	return unlock, true, nil
}
