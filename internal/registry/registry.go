package registry

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-alerts/internal/alerting"
	"stock-alerts/internal/model"
	"stock-alerts/internal/storage"
)

var (
	// ErrUnsupportedThreshold rejects magnitudes outside the supported set.
	ErrUnsupportedThreshold = errors.New("registry: unsupported threshold")
	// ErrInvalidSymbol rejects malformed instrument symbols.
	ErrInvalidSymbol = errors.New("registry: invalid symbol")
	// ErrNotFound is returned when a rule is missing, inactive or owned by someone else.
	ErrNotFound = errors.New("registry: alert not found")
)

// DuplicateError reports the active rules that already cover a request.
type DuplicateError struct {
	Symbol string
	IDs    []int64
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("registry: %s already has active alerts %v", e.Symbol, e.IDs)
}

var symbolPattern = regexp.MustCompile(`^[A-Z0-9][A-Z0-9&.\-^]{0,19}$`)

// NormalizeSymbol uppercases and validates an instrument symbol.
func NormalizeSymbol(raw string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(raw))
	if !symbolPattern.MatchString(symbol) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, raw)
	}
	return symbol, nil
}

// Store is the persistence the registry needs.
type Store interface {
	storage.RuleStore
	storage.UserStore
}

// Registry manages per-user alert rules.
type Registry struct {
	store  Store
	logger zerolog.Logger
}

// New constructs a registry over store.
func New(store Store, logger zerolog.Logger) *Registry {
	return &Registry{store: store, logger: logger.With().Str("component", "registry").Logger()}
}

// EnsureUser returns the user for phone, creating it on first contact.
func (r *Registry) EnsureUser(ctx context.Context, phone string) (model.User, error) {
	return r.store.EnsureUser(ctx, strings.TrimSpace(phone))
}

// FindUser looks a user up without creating one.
func (r *Registry) FindUser(ctx context.Context, phone string) (model.User, error) {
	u, err := r.store.FindUserByPhone(ctx, strings.TrimSpace(phone))
	if errors.Is(err, storage.ErrNotFound) {
		return model.User{}, ErrNotFound
	}
	return u, err
}

// CreateTriplet registers the gap, 1h window and 2h window rules for one
// signed threshold. All three share the derived check interval.
func (r *Registry) CreateTriplet(ctx context.Context, userID int64, rawSymbol string, threshold decimal.Decimal) ([]model.Rule, error) {
	symbol, err := NormalizeSymbol(rawSymbol)
	if err != nil {
		return nil, err
	}
	if threshold.Sign() == 0 || !threshold.Equal(threshold.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedThreshold, threshold)
	}
	magnitude := threshold.Abs().IntPart()
	if !alerting.IsSupportedMagnitude(magnitude) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedThreshold, threshold)
	}

	existing, err := r.store.FindActiveRules(ctx, userID, symbol, threshold)
	if err != nil {
		return nil, fmt.Errorf("check duplicates: %w", err)
	}
	if len(existing) > 0 {
		ids := make([]int64, 0, len(existing))
		for _, rule := range existing {
			ids = append(ids, rule.ID)
		}
		return nil, &DuplicateError{Symbol: symbol, IDs: ids}
	}

	gapKind, windowKind := model.KindGapUp, model.KindSpikeWindow
	if threshold.Sign() < 0 {
		gapKind, windowKind = model.KindGapDown, model.KindDropWindow
	}
	interval := alerting.CheckInterval(magnitude)

	rules := []model.Rule{{UserID: userID, Symbol: symbol, Kind: gapKind, Threshold: threshold, CheckInterval: interval}}
	for _, hours := range model.SupportedWindows {
		rules = append(rules, model.Rule{
			UserID:        userID,
			Symbol:        symbol,
			Kind:          windowKind,
			WindowHours:   hours,
			Threshold:     threshold,
			CheckInterval: interval,
		})
	}

	created, err := r.store.CreateRules(ctx, rules)
	if err != nil {
		return nil, fmt.Errorf("create rules: %w", err)
	}
	r.logger.Info().Int64("user_id", userID).Str("symbol", symbol).
		Str("threshold", threshold.String()).Dur("check_interval", interval).
		Msg("alert triplet created")
	return created, nil
}

// ListActive returns the user's active rules, newest first.
func (r *Registry) ListActive(ctx context.Context, userID int64) ([]model.Rule, error) {
	return r.store.ListActiveRules(ctx, userID)
}

// Deactivate soft-deletes one rule. An already-inactive rule is ErrNotFound.
func (r *Registry) Deactivate(ctx context.Context, userID, ruleID int64) error {
	ok, err := r.store.DeactivateRule(ctx, userID, ruleID)
	if err != nil {
		return fmt.Errorf("deactivate rule %d: %w", ruleID, err)
	}
	if !ok {
		return ErrNotFound
	}
	r.logger.Info().Int64("user_id", userID).Int64("rule_id", ruleID).Msg("alert deactivated")
	return nil
}

// DeactivateBySymbol soft-deletes every active rule the user holds on symbol.
func (r *Registry) DeactivateBySymbol(ctx context.Context, userID int64, rawSymbol string) ([]int64, error) {
	symbol, err := NormalizeSymbol(rawSymbol)
	if err != nil {
		return nil, err
	}
	ids, err := r.store.DeactivateRulesBySymbol(ctx, userID, symbol)
	if err != nil {
		return nil, fmt.Errorf("deactivate %s: %w", symbol, err)
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	r.logger.Info().Int64("user_id", userID).Str("symbol", symbol).Int("count", len(ids)).Msg("alerts deactivated")
	return ids, nil
}
