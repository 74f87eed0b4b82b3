package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stock-alerts/internal/model"
)

const (
	insertEventSQL = `INSERT INTO alert_events (
        alert_rule_id,
        triggered_at,
        stock_price,
        previous_price,
        percent_change,
        notification_sent,
        notification_sid,
        error_message
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	markCheckedSQL = `UPDATE alert_rules
    SET last_checked_at = $2
    WHERE id = ANY($1);`

	markTriggeredSQL = `UPDATE alert_rules
    SET last_triggered_at = $2
    WHERE id = ANY($1);`

	listRecentEventsSQL = `SELECT
        e.id,
        e.alert_rule_id,
        r.stock_symbol,
        e.triggered_at,
        e.stock_price::text,
        e.previous_price::text,
        e.percent_change::text,
        e.notification_sent,
        e.notification_sid,
        e.error_message
    FROM alert_events e
    JOIN alert_rules r ON r.id = e.alert_rule_id
    ORDER BY e.triggered_at DESC, e.id DESC
    LIMIT $1;`
)

// CommitGroup writes events and rule timestamps for one symbol group in a single transaction.
func (s *Store) CommitGroup(ctx context.Context, commit GroupCommit) error {
	if commit.Empty() {
		return nil
	}
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	return pgx.BeginFunc(ctx, pool, func(tx pgx.Tx) error {
		for _, ev := range commit.Events {
			if _, err := tx.Exec(ctx, insertEventSQL,
				ev.RuleID,
				ev.TriggeredAt,
				ev.Price.String(),
				ev.PreviousPrice.String(),
				ev.PercentChange.Round(4).String(),
				ev.Sent,
				nullString(ev.DeliveryID),
				nullString(ev.Error),
			); err != nil {
				return fmt.Errorf("insert alert event for rule %d: %w", ev.RuleID, err)
			}
		}
		if len(commit.Triggered) > 0 {
			if _, err := tx.Exec(ctx, markTriggeredSQL, commit.Triggered, commit.At); err != nil {
				return fmt.Errorf("mark triggered: %w", err)
			}
		}
		if len(commit.Checked) > 0 {
			if _, err := tx.Exec(ctx, markCheckedSQL, commit.Checked, commit.At); err != nil {
				return fmt.Errorf("mark checked: %w", err)
			}
		}
		return nil
	})
}

// ListRecentEvents lists the newest delivery attempts.
func (s *Store) ListRecentEvents(ctx context.Context, limit int) ([]model.AlertEvent, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listRecentEventsSQL, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent events: %w", err)
	}
	defer rows.Close()

	events := make([]model.AlertEvent, 0, limit)
	for rows.Next() {
		var (
			ev                        model.AlertEvent
			priceStr, prevStr, pctStr string
			sid, errMsg               sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.RuleID, &ev.Symbol, &ev.TriggeredAt, &priceStr, &prevStr, &pctStr, &ev.Sent, &sid, &errMsg); err != nil {
			return nil, err
		}
		if ev.Price, err = parseDecimal("stock_price", priceStr); err != nil {
			return nil, err
		}
		if ev.PreviousPrice, err = parseDecimal("previous_price", prevStr); err != nil {
			return nil, err
		}
		if ev.PercentChange, err = parseDecimal("percent_change", pctStr); err != nil {
			return nil, err
		}
		ev.DeliveryID = sid.String
		ev.Error = errMsg.String
		events = append(events, ev)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return events, nil
}

func nullString(v string) interface{} {
	if v == "" {
		return nil
	}
	return v
}
