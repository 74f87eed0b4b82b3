// Package pricecache holds the short-TTL quote tier that sits in front of
// the durable cache table.
package pricecache

import (
	"context"
	"strings"

	"stock-alerts/internal/model"
)

// KeyPrefix namespaces quote entries in shared caches.
const KeyPrefix = "stock_price:"

// Cache is a TTL-bounded quote store keyed by symbol.
type Cache interface {
	// Get returns ok=false on a miss; err reports infrastructure failures only.
	Get(ctx context.Context, symbol string) (quote model.Quote, ok bool, err error)
	Set(ctx context.Context, quote model.Quote) error
}

// Key builds the cache key for a symbol.
func Key(symbol string) string {
	return KeyPrefix + strings.ToUpper(symbol)
}
