package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"stock-alerts/internal/model"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
	// ErrNotFound indicates the addressed row does not exist or is inactive.
	ErrNotFound = errors.New("storage: not found")
)

// RuleStore covers alert rule persistence.
type RuleStore interface {
	CreateRules(ctx context.Context, rules []model.Rule) ([]model.Rule, error)
	ListActiveRules(ctx context.Context, userID int64) ([]model.Rule, error)
	FindActiveRules(ctx context.Context, userID int64, symbol string, threshold decimal.Decimal) ([]model.Rule, error)
	ListActiveRulesByKind(ctx context.Context, kinds []model.Kind) ([]model.Rule, error)
	DeactivateRule(ctx context.Context, userID, ruleID int64) (bool, error)
	DeactivateRulesBySymbol(ctx context.Context, userID int64, symbol string) ([]int64, error)
	ActiveSymbols(ctx context.Context) ([]string, error)
}

// UserStore covers user lookup.
type UserStore interface {
	EnsureUser(ctx context.Context, phone string) (model.User, error)
	FindUserByPhone(ctx context.Context, phone string) (model.User, error)
}

// SnapshotStore is the rolling price-sample log.
type SnapshotStore interface {
	AppendSnapshot(ctx context.Context, snap model.Snapshot) error
	WindowMax(ctx context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error)
	WindowMin(ctx context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error)
	PurgeSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error)
	ListSnapshots(ctx context.Context, symbol string, from, to time.Time) ([]model.Snapshot, error)
}

// EventStore reads the delivery audit trail.
type EventStore interface {
	ListRecentEvents(ctx context.Context, limit int) ([]model.AlertEvent, error)
}

// GroupCommitter applies a symbol group's state transition atomically.
type GroupCommitter interface {
	CommitGroup(ctx context.Context, commit GroupCommit) error
}

// QuoteCache is the durable quote tier.
type QuoteCache interface {
	GetCachedQuote(ctx context.Context, symbol string) (model.Quote, bool, error)
	UpsertCachedQuote(ctx context.Context, quote model.Quote) error
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Repository is everything the application needs from persistence.
type Repository interface {
	RuleStore
	UserStore
	SnapshotStore
	EventStore
	GroupCommitter
	QuoteCache
	Close()
}

// Store is the PostgreSQL-backed Repository.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

func parseDecimal(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse %s: %w", field, err)
	}
	return d, nil
}

func nullableDecimal(d *decimal.Decimal) interface{} {
	if d == nil {
		return nil
	}
	return d.String()
}

var (
	_ Repository     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
