package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"stock-alerts/internal/model"
)

const (
	getCachedQuoteSQL = `SELECT
        stock_symbol,
        ticker_symbol,
        current_price::text,
        open_price::text,
        previous_close::text,
        volume,
        last_updated
    FROM stock_price_cache
    WHERE stock_symbol = $1;`

	upsertCachedQuoteSQL = `INSERT INTO stock_price_cache (
        stock_symbol,
        ticker_symbol,
        current_price,
        open_price,
        previous_close,
        volume,
        last_updated
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7
    )
    ON CONFLICT (stock_symbol) DO UPDATE
    SET
        ticker_symbol  = EXCLUDED.ticker_symbol,
        current_price  = EXCLUDED.current_price,
        open_price     = EXCLUDED.open_price,
        previous_close = EXCLUDED.previous_close,
        volume         = EXCLUDED.volume,
        last_updated   = EXCLUDED.last_updated;`
)

// GetCachedQuote reads the durable quote row; FetchedAt carries last_updated.
func (s *Store) GetCachedQuote(ctx context.Context, symbol string) (model.Quote, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return model.Quote{}, false, err
	}

	var (
		quote            model.Quote
		currentStr       string
		openStr, prevStr sql.NullString
		volume           sql.NullInt64
	)
	err = pool.QueryRow(ctx, getCachedQuoteSQL, symbol).Scan(
		&quote.Symbol, &quote.Ticker, &currentStr, &openStr, &prevStr, &volume, &quote.FetchedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.Quote{}, false, nil
	}
	if err != nil {
		return model.Quote{}, false, fmt.Errorf("get cached quote %s: %w", symbol, err)
	}

	if quote.Current, err = parseDecimal("current_price", currentStr); err != nil {
		return model.Quote{}, false, err
	}
	if openStr.Valid {
		if quote.Open, err = parseDecimal("open_price", openStr.String); err != nil {
			return model.Quote{}, false, err
		}
	}
	if prevStr.Valid {
		if quote.PreviousClose, err = parseDecimal("previous_close", prevStr.String); err != nil {
			return model.Quote{}, false, err
		}
	}
	quote.Volume = volume.Int64
	return quote, true, nil
}

// UpsertCachedQuote replaces the durable quote row for the symbol.
func (s *Store) UpsertCachedQuote(ctx context.Context, quote model.Quote) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	var open, prev, volume interface{}
	if !quote.Open.IsZero() {
		open = quote.Open.String()
	}
	if !quote.PreviousClose.IsZero() {
		prev = quote.PreviousClose.String()
	}
	if quote.Volume > 0 {
		volume = quote.Volume
	}

	if _, err := pool.Exec(ctx, upsertCachedQuoteSQL,
		quote.Symbol,
		quote.Ticker,
		quote.Current.String(),
		open,
		prev,
		volume,
		quote.FetchedAt,
	); err != nil {
		return fmt.Errorf("upsert cached quote %s: %w", quote.Symbol, err)
	}
	return nil
}
