package pricecache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerts/internal/model"
)

func sampleQuote(symbol string) model.Quote {
	return model.Quote{
		Symbol:        symbol,
		Ticker:        symbol + ".NS",
		Current:       decimal.RequireFromString("3450.5"),
		Open:          decimal.NewFromInt(3480),
		PreviousClose: decimal.NewFromInt(3500),
		FetchedAt:     time.Date(2025, 1, 6, 4, 0, 0, 0, time.UTC),
	}
}

func TestLocalRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewLocal(time.Minute)

	_, ok, err := cache.Get(ctx, "TCS")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, cache.Set(ctx, sampleQuote("TCS")))
	got, ok, err := cache.Get(ctx, "tcs")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Current.Equal(decimal.RequireFromString("3450.5")))

	cache.Flush()
	_, ok, _ = cache.Get(ctx, "TCS")
	assert.False(t, ok)
}

func TestLocalExpires(t *testing.T) {
	cache := NewLocal(20 * time.Millisecond)
	require.NoError(t, cache.Set(context.Background(), sampleQuote("INFY")))
	time.Sleep(40 * time.Millisecond)
	_, ok, _ := cache.Get(context.Background(), "INFY")
	assert.False(t, ok)
}

func TestRedisRoundTrip(t *testing.T) {
	addr := os.Getenv("STOCKALERT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STOCKALERT_TEST_REDIS_ADDR not set")
	}
	ctx := context.Background()
	cache := NewRedis(RedisOptions{Addr: addr, TTL: time.Minute})
	defer cache.Close()
	require.NoError(t, cache.Ping(ctx))

	require.NoError(t, cache.Set(ctx, sampleQuote("WIPRO")))
	got, ok, err := cache.Get(ctx, "WIPRO")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "WIPRO.NS", got.Ticker)
	assert.True(t, got.PreviousClose.Equal(decimal.NewFromInt(3500)))
}
