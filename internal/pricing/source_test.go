package pricing

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerts/internal/fetcher"
	"stock-alerts/internal/model"
	"stock-alerts/internal/pricecache"
)

type fakeRemote struct {
	quote model.Quote
	err   error
	calls int
}

func (f *fakeRemote) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	f.calls++
	if f.err != nil {
		return model.Quote{}, f.err
	}
	q := f.quote
	q.Symbol = symbol
	return q, nil
}

type fakeDurable struct {
	rows    map[string]model.Quote
	readErr error
	writes  int
}

func (f *fakeDurable) GetCachedQuote(ctx context.Context, symbol string) (model.Quote, bool, error) {
	if f.readErr != nil {
		return model.Quote{}, false, f.readErr
	}
	q, ok := f.rows[symbol]
	return q, ok, nil
}

func (f *fakeDurable) UpsertCachedQuote(ctx context.Context, quote model.Quote) error {
	f.writes++
	f.rows[quote.Symbol] = quote
	return nil
}

var now = time.Date(2025, 1, 6, 5, 0, 0, 0, time.UTC)

func newSource(fast pricecache.Cache, durable *fakeDurable, remote *fakeRemote) *Source {
	var tier DurableCache
	if durable != nil {
		tier = durable
	}
	return NewSource(fast, tier, remote, Options{
		DurableTTL: 5 * time.Minute,
		Now:        func() time.Time { return now },
	}, nil, zerolog.Nop())
}

func quoteAt(price int64, at time.Time) model.Quote {
	return model.Quote{
		Symbol:        "TCS",
		Current:       decimal.NewFromInt(price),
		PreviousClose: decimal.NewFromInt(3500),
		FetchedAt:     at,
	}
}

func TestFastHitSkipsOtherTiers(t *testing.T) {
	fast := pricecache.NewLocal(time.Minute)
	require.NoError(t, fast.Set(context.Background(), quoteAt(3400, now.Add(-time.Hour))))
	durable := &fakeDurable{rows: map[string]model.Quote{}}
	remote := &fakeRemote{}

	got, err := newSource(fast, durable, remote).GetQuote(context.Background(), "tcs")
	require.NoError(t, err)
	assert.True(t, got.Current.Equal(decimal.NewFromInt(3400)), "fast hit is not revalidated")
	assert.Zero(t, remote.calls)
}

func TestFreshDurableHitPopulatesFast(t *testing.T) {
	fast := pricecache.NewLocal(time.Minute)
	durable := &fakeDurable{rows: map[string]model.Quote{"TCS": quoteAt(3410, now.Add(-5*time.Minute))}}
	remote := &fakeRemote{}

	got, err := newSource(fast, durable, remote).GetQuote(context.Background(), "TCS")
	require.NoError(t, err)
	assert.True(t, got.Current.Equal(decimal.NewFromInt(3410)), "age equal to TTL is still fresh")
	assert.Zero(t, remote.calls)

	cached, ok, _ := fast.Get(context.Background(), "TCS")
	require.True(t, ok)
	assert.True(t, cached.Current.Equal(decimal.NewFromInt(3410)))
}

func TestStaleDurableFallsThroughAndWritesBoth(t *testing.T) {
	fast := pricecache.NewLocal(time.Minute)
	durable := &fakeDurable{rows: map[string]model.Quote{"TCS": quoteAt(3410, now.Add(-5*time.Minute-time.Second))}}
	remote := &fakeRemote{quote: quoteAt(3220, now)}

	got, err := newSource(fast, durable, remote).GetQuote(context.Background(), "TCS")
	require.NoError(t, err)
	assert.True(t, got.Current.Equal(decimal.NewFromInt(3220)))
	assert.Equal(t, 1, remote.calls)
	assert.Equal(t, 1, durable.writes)
	assert.True(t, durable.rows["TCS"].Current.Equal(decimal.NewFromInt(3220)))

	_, ok, _ := fast.Get(context.Background(), "TCS")
	assert.True(t, ok)
}

func TestCacheReadErrorsFallThrough(t *testing.T) {
	durable := &fakeDurable{rows: map[string]model.Quote{}, readErr: errors.New("db down")}
	remote := &fakeRemote{quote: quoteAt(3300, now)}

	_, err := newSource(nil, durable, remote).GetQuote(context.Background(), "TCS")
	require.NoError(t, err)
	assert.Equal(t, 1, remote.calls)
}

func TestRemoteFailureClassification(t *testing.T) {
	cases := []struct {
		name      string
		err       error
		transient bool
	}{
		{"no data", fmt.Errorf("TCS.NS: %w", fetcher.ErrNoData), false},
		{"bad request", &fetcher.StatusError{Status: 400}, false},
		{"rate limited", &fetcher.StatusError{Status: 429}, true},
		{"network", errors.New("dial tcp: connection refused"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			remote := &fakeRemote{err: tc.err}
			_, err := newSource(nil, nil, remote).GetQuote(context.Background(), "TCS")
			require.Error(t, err)
			assert.Equal(t, tc.transient, IsTransient(err))
			assert.Equal(t, !tc.transient, errors.Is(err, ErrNoData))
		})
	}
}
