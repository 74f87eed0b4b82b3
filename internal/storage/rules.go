package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"stock-alerts/internal/model"
)

const (
	ruleColumns = `r.id, r.user_id, r.stock_symbol, r.alert_kind, r.window_hours, r.threshold_percent::text,
        r.check_interval_seconds, r.is_active, r.created_at, r.last_checked_at, r.last_triggered_at,
        r.reference_price::text, r.reference_at`

	insertRuleSQL = `INSERT INTO alert_rules (
        user_id,
        stock_symbol,
        alert_kind,
        window_hours,
        threshold_percent,
        check_interval_seconds,
        is_active
    ) VALUES (
        $1,$2,$3,$4,$5,$6,TRUE
    )
    RETURNING id, created_at;`

	listActiveRulesSQL = `SELECT ` + ruleColumns + `, u.phone_number
    FROM alert_rules r
    JOIN users u ON u.id = r.user_id
    WHERE r.user_id = $1
      AND r.is_active
    ORDER BY r.created_at DESC, r.id DESC;`

	findActiveRulesSQL = `SELECT ` + ruleColumns + `, u.phone_number
    FROM alert_rules r
    JOIN users u ON u.id = r.user_id
    WHERE r.user_id = $1
      AND r.stock_symbol = $2
      AND r.threshold_percent = $3
      AND r.is_active
    ORDER BY r.id;`

	listActiveRulesByKindSQL = `SELECT ` + ruleColumns + `, u.phone_number
    FROM alert_rules r
    JOIN users u ON u.id = r.user_id
    WHERE r.is_active
      AND u.is_active
      AND (r.alert_kind = ANY($1) OR ($2 AND r.alert_kind LIKE '` + model.LegacyIntraday + `%'))
    ORDER BY r.stock_symbol, r.id;`

	deactivateRuleSQL = `UPDATE alert_rules
    SET is_active = FALSE
    WHERE id = $1
      AND user_id = $2
      AND is_active;`

	deactivateRulesBySymbolSQL = `UPDATE alert_rules
    SET is_active = FALSE
    WHERE user_id = $1
      AND stock_symbol = $2
      AND is_active
    RETURNING id;`

	activeSymbolsSQL = `SELECT DISTINCT r.stock_symbol
    FROM alert_rules r
    JOIN users u ON u.id = r.user_id
    WHERE r.is_active AND u.is_active
    ORDER BY r.stock_symbol;`
)

// CreateRules inserts all rules in one transaction and returns them with ids assigned.
func (s *Store) CreateRules(ctx context.Context, rules []model.Rule) ([]model.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	created := make([]model.Rule, 0, len(rules))
	err = pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, rule := range rules {
			row := tx.QueryRow(ctx, insertRuleSQL,
				rule.UserID,
				rule.Symbol,
				string(rule.Kind),
				rule.WindowHours,
				rule.Threshold.String(),
				int64(rule.CheckInterval/time.Second),
			)
			if err := row.Scan(&rule.ID, &rule.CreatedAt); err != nil {
				return fmt.Errorf("insert rule %s/%s: %w", rule.Symbol, rule.Kind, err)
			}
			rule.Active = true
			created = append(created, rule)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// ListActiveRules lists a user's active rules, newest first.
func (s *Store) ListActiveRules(ctx context.Context, userID int64) ([]model.Rule, error) {
	return s.queryRules(ctx, "list active rules", listActiveRulesSQL, userID)
}

// FindActiveRules returns active rules matching symbol and signed threshold.
func (s *Store) FindActiveRules(ctx context.Context, userID int64, symbol string, threshold decimal.Decimal) ([]model.Rule, error) {
	return s.queryRules(ctx, "find active rules", findActiveRulesSQL, userID, symbol, threshold.String())
}

// ListActiveRulesByKind lists active rules of the given kinds with recipients attached.
func (s *Store) ListActiveRulesByKind(ctx context.Context, kinds []model.Kind) ([]model.Rule, error) {
	names, legacy := kindFilter(kinds)
	return s.queryRules(ctx, "list rules by kind", listActiveRulesByKindSQL, names, legacy)
}

// kindFilter returns the stored kind names to match and whether legacy
// intraday_* rows belong to the selection.
func kindFilter(kinds []model.Kind) (names []string, legacy bool) {
	names = make([]string, 0, len(kinds))
	for _, k := range kinds {
		names = append(names, string(k))
		if k == model.KindDropWindow {
			legacy = true
		}
	}
	return names, legacy
}

// DeactivateRule soft-deletes one rule; false means it was missing or already inactive.
func (s *Store) DeactivateRule(ctx context.Context, userID, ruleID int64) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, err := pool.Exec(ctx, deactivateRuleSQL, ruleID, userID)
	if err != nil {
		return false, fmt.Errorf("deactivate rule: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// DeactivateRulesBySymbol soft-deletes every active rule of a user for symbol.
func (s *Store) DeactivateRulesBySymbol(ctx context.Context, userID int64, symbol string) ([]int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, deactivateRulesBySymbolSQL, userID, strings.ToUpper(symbol))
	if err != nil {
		return nil, fmt.Errorf("deactivate rules by symbol: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("deactivate rules by symbol: %w", err)
	}
	return ids, nil
}

// ActiveSymbols lists distinct symbols watched by any active rule.
func (s *Store) ActiveSymbols(ctx context.Context) ([]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}
	rows, err := pool.Query(ctx, activeSymbolsSQL)
	if err != nil {
		return nil, fmt.Errorf("active symbols: %w", err)
	}
	symbols, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("active symbols: %w", err)
	}
	return symbols, nil
}

func (s *Store) queryRules(ctx context.Context, op, query string, args ...interface{}) ([]model.Rule, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	defer rows.Close()

	rules := make([]model.Rule, 0)
	for rows.Next() {
		rule, scanErr := scanRule(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("%s: %w", op, scanErr)
		}
		rules = append(rules, rule)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return rules, nil
}

func scanRule(rows pgx.Rows) (model.Rule, error) {
	var (
		rule         model.Rule
		kind         string
		thresholdStr string
		intervalSecs int64
		refPrice     sql.NullString
		phone        string
	)

	if err := rows.Scan(
		&rule.ID,
		&rule.UserID,
		&rule.Symbol,
		&kind,
		&rule.WindowHours,
		&thresholdStr,
		&intervalSecs,
		&rule.Active,
		&rule.CreatedAt,
		&rule.LastCheckedAt,
		&rule.LastTriggeredAt,
		&refPrice,
		&rule.ReferenceAt,
		&phone,
	); err != nil {
		return model.Rule{}, err
	}

	parsedKind, legacyHours, err := model.ParseKindWindow(kind)
	if err != nil {
		return model.Rule{}, err
	}
	rule.Kind = parsedKind
	switch {
	case legacyHours > 0:
		rule.WindowHours = legacyHours
	case rule.Kind == model.KindDropWindow && rule.WindowHours == 0:
		rule.WindowHours = 1
	}

	rule.Threshold, err = parseDecimal("threshold_percent", thresholdStr)
	if err != nil {
		return model.Rule{}, err
	}
	rule.CheckInterval = time.Duration(intervalSecs) * time.Second

	if refPrice.Valid {
		price, err := parseDecimal("reference_price", refPrice.String)
		if err != nil {
			return model.Rule{}, err
		}
		rule.ReferencePrice = &price
	}
	rule.Recipient = phone
	return rule, nil
}
