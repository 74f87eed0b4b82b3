package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"stock-alerts/internal/model"
)

const (
	insertSnapshotSQL = `INSERT INTO price_snapshots (
        stock_symbol,
        ticker_symbol,
        price,
        open_price,
        previous_close,
        volume,
        sampled_at,
        market_phase
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    );`

	windowMaxSQL = `SELECT MAX(price)::text
    FROM price_snapshots
    WHERE stock_symbol = $1
      AND sampled_at >= $2
      AND sampled_at <= $3;`

	windowMinSQL = `SELECT MIN(price)::text
    FROM price_snapshots
    WHERE stock_symbol = $1
      AND sampled_at >= $2
      AND sampled_at <= $3;`

	purgeSnapshotsSQL = `DELETE FROM price_snapshots WHERE sampled_at < $1;`

	listSnapshotsSQL = `SELECT
        id,
        stock_symbol,
        ticker_symbol,
        price::text,
        open_price::text,
        previous_close::text,
        volume,
        sampled_at,
        market_phase
    FROM price_snapshots
    WHERE stock_symbol = $1
      AND sampled_at >= $2
      AND sampled_at < $3
    ORDER BY sampled_at;`
)

// AppendSnapshot inserts one price sample.
func (s *Store) AppendSnapshot(ctx context.Context, snap model.Snapshot) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var volume interface{}
	if snap.Volume != nil {
		volume = *snap.Volume
	}

	if _, err := pool.Exec(ctx, insertSnapshotSQL,
		snap.Symbol,
		snap.Ticker,
		snap.Price.String(),
		nullableDecimal(snap.Open),
		nullableDecimal(snap.PrevClose),
		volume,
		snap.SampledAt,
		string(snap.Phase),
	); err != nil {
		return fmt.Errorf("append snapshot %s: %w", snap.Symbol, err)
	}
	return nil
}

// WindowMax returns the highest price sampled in [now-window, now]; ok=false when empty.
func (s *Store) WindowMax(ctx context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error) {
	return s.windowExtreme(ctx, windowMaxSQL, symbol, now, window)
}

// WindowMin returns the lowest price sampled in [now-window, now]; ok=false when empty.
func (s *Store) WindowMin(ctx context.Context, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error) {
	return s.windowExtreme(ctx, windowMinSQL, symbol, now, window)
}

func (s *Store) windowExtreme(ctx context.Context, query, symbol string, now time.Time, window time.Duration) (decimal.Decimal, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return decimal.Decimal{}, false, err
	}

	var raw sql.NullString
	if err := pool.QueryRow(ctx, query, symbol, now.Add(-window), now).Scan(&raw); err != nil {
		return decimal.Decimal{}, false, fmt.Errorf("window extreme %s: %w", symbol, err)
	}
	if !raw.Valid {
		return decimal.Decimal{}, false, nil
	}
	price, err := parseDecimal("window price", raw.String)
	if err != nil {
		return decimal.Decimal{}, false, err
	}
	return price, true, nil
}

// PurgeSnapshotsBefore deletes samples strictly older than cutoff.
func (s *Store) PurgeSnapshotsBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, err := pool.Exec(ctx, purgeSnapshotsSQL, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge snapshots: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ListSnapshots returns samples for symbol in [from, to) ordered by time.
func (s *Store) ListSnapshots(ctx context.Context, symbol string, from, to time.Time) ([]model.Snapshot, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, err := pool.Query(ctx, listSnapshotsSQL, symbol, from, to)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	snaps := make([]model.Snapshot, 0)
	for rows.Next() {
		var (
			snap     model.Snapshot
			priceStr string
			openStr  sql.NullString
			prevStr  sql.NullString
			volume   sql.NullInt64
			phase    string
		)
		if err := rows.Scan(&snap.ID, &snap.Symbol, &snap.Ticker, &priceStr, &openStr, &prevStr, &volume, &snap.SampledAt, &phase); err != nil {
			return nil, err
		}
		if snap.Price, err = parseDecimal("price", priceStr); err != nil {
			return nil, err
		}
		if openStr.Valid {
			open, err := parseDecimal("open_price", openStr.String)
			if err != nil {
				return nil, err
			}
			snap.Open = &open
		}
		if prevStr.Valid {
			prev, err := parseDecimal("previous_close", prevStr.String)
			if err != nil {
				return nil, err
			}
			snap.PrevClose = &prev
		}
		if volume.Valid {
			v := volume.Int64
			snap.Volume = &v
		}
		snap.Phase = model.Phase(phase)
		snaps = append(snaps, snap)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return snaps, nil
}
