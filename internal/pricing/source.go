package pricing

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"stock-alerts/internal/fetcher"
	"stock-alerts/internal/metrics"
	"stock-alerts/internal/model"
	"stock-alerts/internal/pricecache"
)

// DurableCache is the longer-lived quote tier, normally a database table.
type DurableCache interface {
	GetCachedQuote(ctx context.Context, symbol string) (model.Quote, bool, error)
	UpsertCachedQuote(ctx context.Context, quote model.Quote) error
}

// QuoteSource is what ticks and the command layer depend on.
type QuoteSource interface {
	GetQuote(ctx context.Context, symbol string) (model.Quote, error)
}

// Options tune the tiered lookup.
type Options struct {
	DurableTTL time.Duration
	Now        func() time.Time
}

// Source resolves quotes through fast cache, durable cache and remote provider, in that order.
type Source struct {
	fast    pricecache.Cache
	durable DurableCache
	remote  fetcher.QuoteFetcher
	opts    Options
	metrics *metrics.Metrics
	logger  zerolog.Logger
}

// NewSource wires the tiers. fast and durable may be nil.
func NewSource(fast pricecache.Cache, durable DurableCache, remote fetcher.QuoteFetcher, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Source {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.DurableTTL <= 0 {
		opts.DurableTTL = 5 * time.Minute
	}
	return &Source{
		fast:    fast,
		durable: durable,
		remote:  remote,
		opts:    opts,
		metrics: m,
		logger:  logger.With().Str("component", "price_source").Logger(),
	}
}

// GetQuote returns a quote or a *FetchError matching ErrNoData or ErrUnavailable.
func (s *Source) GetQuote(ctx context.Context, symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	log := s.logger.With().Str("symbol", symbol).Logger()

	if s.fast != nil {
		quote, ok, err := s.fast.Get(ctx, symbol)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("fast cache read failed")
		case ok:
			s.metrics.QuoteLookup("fast")
			return quote, nil
		}
	}

	if s.durable != nil {
		quote, ok, err := s.durable.GetCachedQuote(ctx, symbol)
		switch {
		case err != nil:
			log.Warn().Err(err).Msg("durable cache read failed")
		case ok && s.opts.Now().Sub(quote.FetchedAt) <= s.opts.DurableTTL:
			s.metrics.QuoteLookup("durable")
			s.fillFast(ctx, quote, log)
			return quote, nil
		}
	}

	if s.remote == nil {
		s.metrics.QuoteLookup("miss")
		return model.Quote{}, &FetchError{Symbol: symbol, Err: errors.New("no remote provider configured")}
	}

	quote, err := s.remote.FetchQuote(ctx, symbol)
	if err != nil {
		s.metrics.QuoteLookup("miss")
		fe := classify(symbol, err)
		log.Info().Err(err).Bool("transient", fe.Transient).Msg("remote quote unavailable")
		return model.Quote{}, fe
	}
	s.metrics.QuoteLookup("remote")

	if s.durable != nil {
		if err := s.durable.UpsertCachedQuote(ctx, quote); err != nil {
			log.Warn().Err(err).Msg("durable cache write failed")
		}
	}
	s.fillFast(ctx, quote, log)
	return quote, nil
}

func (s *Source) fillFast(ctx context.Context, quote model.Quote, log zerolog.Logger) {
	if s.fast == nil {
		return
	}
	if err := s.fast.Set(ctx, quote); err != nil {
		log.Warn().Err(err).Msg("fast cache write failed")
	}
}

func classify(symbol string, err error) *FetchError {
	fe := &FetchError{Symbol: symbol, Err: err}
	if errors.Is(err, fetcher.ErrNoData) {
		return fe
	}
	var statusErr *fetcher.StatusError
	if errors.As(err, &statusErr) {
		fe.Transient = statusErr.Temporary()
		return fe
	}
	// network failures, timeouts and cancellations
	fe.Transient = true
	return fe
}

var _ QuoteSource = (*Source)(nil)
