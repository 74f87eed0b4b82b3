package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"stock-alerts/internal/model"
)

// MemoryStore is an in-process Repository used when no database is
// configured and as the test double for the relational store.
type MemoryStore struct {
	mu        sync.Mutex
	now       func() time.Time
	nextID    int64
	users     map[int64]model.User
	rules     map[int64]model.Rule
	events    []model.AlertEvent
	snapshots []model.Snapshot
	quotes    map[string]model.Quote

	// FailCommit, when set, makes CommitGroup fail for the returned error.
	FailCommit func(commit GroupCommit) error
}

// NewMemoryStore returns an empty store. now stamps created_at; nil means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		now:    now,
		users:  make(map[int64]model.User),
		rules:  make(map[int64]model.Rule),
		quotes: make(map[string]model.Quote),
	}
}

func (m *MemoryStore) id() int64 {
	m.nextID++
	return m.nextID
}

func (m *MemoryStore) Close() {}

func (m *MemoryStore) EnsureUser(_ context.Context, phone string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PhoneNumber == phone {
			return u, nil
		}
	}
	u := model.User{ID: m.id(), PhoneNumber: phone, Active: true, CreatedAt: m.now().UTC()}
	m.users[u.ID] = u
	return u, nil
}

func (m *MemoryStore) FindUserByPhone(_ context.Context, phone string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.PhoneNumber == phone {
			return u, nil
		}
	}
	return model.User{}, ErrNotFound
}

func (m *MemoryStore) CreateRules(_ context.Context, rules []model.Rule) ([]model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	created := make([]model.Rule, 0, len(rules))
	for _, r := range rules {
		r.ID = m.id()
		r.Active = true
		r.CreatedAt = m.now().UTC()
		m.rules[r.ID] = r
		created = append(created, m.withRecipient(r))
	}
	return created, nil
}

func (m *MemoryStore) withRecipient(r model.Rule) model.Rule {
	r.Recipient = m.users[r.UserID].PhoneNumber
	return r
}

func (m *MemoryStore) selectRules(keep func(model.Rule) bool) []model.Rule {
	out := make([]model.Rule, 0)
	for _, r := range m.rules {
		if keep(r) {
			out = append(out, m.withRecipient(r))
		}
	}
	return out
}

func (m *MemoryStore) ListActiveRules(_ context.Context, userID int64) ([]model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.selectRules(func(r model.Rule) bool { return r.Active && r.UserID == userID })
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) FindActiveRules(_ context.Context, userID int64, symbol string, threshold decimal.Decimal) ([]model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.selectRules(func(r model.Rule) bool {
		return r.Active && r.UserID == userID && r.Symbol == symbol && r.Threshold.Equal(threshold)
	})
	sortByID(out)
	return out, nil
}

func (m *MemoryStore) ListActiveRulesByKind(_ context.Context, kinds []model.Kind) ([]model.Rule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	wanted := make(map[model.Kind]struct{}, len(kinds))
	for _, k := range kinds {
		wanted[k] = struct{}{}
	}
	out := m.selectRules(func(r model.Rule) bool {
		_, ok := wanted[r.Kind]
		return ok && r.Active && m.users[r.UserID].Active
	})
	sort.Slice(out, func(i, j int) bool {
		if out[i].Symbol != out[j].Symbol {
			return out[i].Symbol < out[j].Symbol
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *MemoryStore) DeactivateRule(_ context.Context, userID, ruleID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[ruleID]
	if !ok || !r.Active || r.UserID != userID {
		return false, nil
	}
	r.Active = false
	m.rules[ruleID] = r
	return true, nil
}

func (m *MemoryStore) DeactivateRulesBySymbol(_ context.Context, userID int64, symbol string) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	symbol = strings.ToUpper(symbol)
	ids := make([]int64, 0)
	for id, r := range m.rules {
		if r.Active && r.UserID == userID && r.Symbol == symbol {
			r.Active = false
			m.rules[id] = r
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *MemoryStore) ActiveSymbols(_ context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	seen := make(map[string]struct{})
	for _, r := range m.rules {
		if r.Active && m.users[r.UserID].Active {
			seen[r.Symbol] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Strings(out)
	return out, nil
}

// Rule returns a copy of a rule by id, for assertions.
func (m *MemoryStore) Rule(id int64) (model.Rule, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rules[id]
	return m.withRecipient(r), ok
}

func (m *MemoryStore) AppendSnapshot(_ context.Context, snap model.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	snap.ID = m.id()
	m.snapshots = append(m.snapshots, snap)
	return nil
}

func (m *MemoryStore) WindowMax(_ context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error) {
	return m.extreme(symbol, now, window, func(a, b decimal.Decimal) bool { return a.GreaterThan(b) })
}

func (m *MemoryStore) WindowMin(_ context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error) {
	return m.extreme(symbol, now, window, func(a, b decimal.Decimal) bool { return a.LessThan(b) })
}

func (m *MemoryStore) extreme(symbol string, now time.Time, window time.Duration, better func(a, b decimal.Decimal) bool) (decimal.Decimal, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	from := now.Add(-window)
	var (
		best  decimal.Decimal
		found bool
	)
	for _, s := range m.snapshots {
		if s.Symbol != symbol || s.SampledAt.Before(from) || s.SampledAt.After(now) {
			continue
		}
		if !found || better(s.Price, best) {
			best = s.Price
			found = true
		}
	}
	return best, found, nil
}

func (m *MemoryStore) PurgeSnapshotsBefore(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.snapshots[:0]
	var purged int64
	for _, s := range m.snapshots {
		if s.SampledAt.Before(cutoff) {
			purged++
			continue
		}
		kept = append(kept, s)
	}
	m.snapshots = kept
	return purged, nil
}

func (m *MemoryStore) ListSnapshots(_ context.Context, symbol string, from, to time.Time) ([]model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.Snapshot, 0)
	for _, s := range m.snapshots {
		if s.Symbol == symbol && !s.SampledAt.Before(from) && s.SampledAt.Before(to) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SampledAt.Before(out[j].SampledAt) })
	return out, nil
}

// SnapshotCount returns the number of stored samples.
func (m *MemoryStore) SnapshotCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.snapshots)
}

func (m *MemoryStore) CommitGroup(_ context.Context, commit GroupCommit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCommit != nil {
		if err := m.FailCommit(commit); err != nil {
			return err
		}
	}
	for _, ev := range commit.Events {
		ev.ID = m.id()
		ev.Symbol = m.rules[ev.RuleID].Symbol
		m.events = append(m.events, ev)
	}
	at := commit.At
	for _, id := range commit.Triggered {
		if r, ok := m.rules[id]; ok {
			r.LastTriggeredAt = &at
			m.rules[id] = r
		}
	}
	for _, id := range commit.Checked {
		if r, ok := m.rules[id]; ok {
			r.LastCheckedAt = &at
			m.rules[id] = r
		}
	}
	return nil
}

func (m *MemoryStore) ListRecentEvents(_ context.Context, limit int) ([]model.AlertEvent, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.AlertEvent, 0, len(m.events))
	for i := len(m.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		out = append(out, m.events[i])
	}
	return out, nil
}

func (m *MemoryStore) GetCachedQuote(_ context.Context, symbol string) (model.Quote, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	q, ok := m.quotes[symbol]
	return q, ok, nil
}

func (m *MemoryStore) UpsertCachedQuote(_ context.Context, quote model.Quote) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.quotes[quote.Symbol] = quote
	return nil
}

func sortByID(rules []model.Rule) {
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
}

var _ Repository = (*MemoryStore)(nil)
