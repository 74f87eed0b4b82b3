package pricecache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"stock-alerts/internal/model"
)

// Local is an in-process fast tier for single-replica deployments.
type Local struct {
	items *gocache.Cache
	ttl   time.Duration
}

// NewLocal creates a process-local cache whose entries expire after ttl.
func NewLocal(ttl time.Duration) *Local {
	cleanup := 2 * ttl
	if cleanup < time.Minute {
		cleanup = time.Minute
	}
	return &Local{items: gocache.New(ttl, cleanup), ttl: ttl}
}

func (l *Local) Get(_ context.Context, symbol string) (model.Quote, bool, error) {
	v, ok := l.items.Get(Key(symbol))
	if !ok {
		return model.Quote{}, false, nil
	}
	quote, ok := v.(model.Quote)
	return quote, ok, nil
}

func (l *Local) Set(_ context.Context, quote model.Quote) error {
	l.items.Set(Key(quote.Symbol), quote, l.ttl)
	return nil
}

// Flush drops every entry.
func (l *Local) Flush() {
	l.items.Flush()
}

var _ Cache = (*Local)(nil)
