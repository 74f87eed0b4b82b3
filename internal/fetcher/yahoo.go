package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"stock-alerts/internal/model"
	"stock-alerts/internal/version"
)

const chartPath = "/v8/finance/chart/"

// YahooOptions parameterise the chart API fetcher.
type YahooOptions struct {
	BaseURL         string
	Timeout         time.Duration
	UserAgent       string
	ExchangeSuffix  string
	ExchangeSymbols []string
	Now             func() time.Time
}

// Yahoo fetches daily bars from the Yahoo Finance chart endpoint.
type Yahoo struct {
	opts     YahooOptions
	logger   zerolog.Logger
	client   *http.Client
	baseURL  string
	exchange map[string]struct{}
}

// NewYahoo constructs a chart API fetcher.
func NewYahoo(opts YahooOptions, logger zerolog.Logger) *Yahoo {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://query1.finance.yahoo.com"
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	exchange := make(map[string]struct{}, len(opts.ExchangeSymbols))
	for _, sym := range opts.ExchangeSymbols {
		exchange[strings.ToUpper(strings.TrimSpace(sym))] = struct{}{}
	}

	return &Yahoo{
		opts:     opts,
		logger:   logger.With().Str("component", "yahoo_fetcher").Logger(),
		client:   &http.Client{Timeout: timeout},
		baseURL:  baseURL,
		exchange: exchange,
	}
}

// ResolveTicker appends the exchange suffix to allow-listed symbols only.
func (y *Yahoo) ResolveTicker(symbol string) string {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if _, ok := y.exchange[symbol]; ok && y.opts.ExchangeSuffix != "" {
		return symbol + y.opts.ExchangeSuffix
	}
	return symbol
}

// FetchQuote retrieves the latest two sessions for symbol.
func (y *Yahoo) FetchQuote(ctx context.Context, symbol string) (model.Quote, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return model.Quote{}, fmt.Errorf("empty symbol: %w", ErrNoData)
	}
	ticker := y.ResolveTicker(symbol)

	endpoint := y.baseURL + chartPath + url.PathEscape(ticker) + "?interval=1d&range=5d"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return model.Quote{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(y.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", version.UserAgent())
	}

	resp, err := y.client.Do(req)
	if err != nil {
		return model.Quote{}, fmt.Errorf("request %s: %w", ticker, err)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return model.Quote{}, fmt.Errorf("read %s: %w", ticker, err)
	}

	if resp.StatusCode != http.StatusOK {
		return model.Quote{}, parseHTTPError(resp.StatusCode, payload)
	}

	var chart chartResponse
	if err := json.Unmarshal(payload, &chart); err != nil {
		return model.Quote{}, fmt.Errorf("decode %s: %v: %w", ticker, err, ErrNoData)
	}

	quote, err := chart.toQuote()
	if err != nil {
		return model.Quote{}, fmt.Errorf("%s: %w", ticker, err)
	}
	quote.Symbol = symbol
	quote.Ticker = ticker
	quote.FetchedAt = y.opts.Now().UTC()

	y.logger.Debug().Str("symbol", symbol).Str("ticker", ticker).
		Str("current", quote.Current.String()).
		Str("previous_close", quote.PreviousClose.String()).
		Msg("quote fetched")
	return quote, nil
}

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol             string   `json:"symbol"`
		PreviousClose      *float64 `json:"previousClose"`
		ChartPreviousClose *float64 `json:"chartPreviousClose"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
	} `json:"indicators"`
}

// toQuote takes current and previous close from the two most recent valid bars,
// and the open of the bar that supplied the current close.
func (c chartResponse) toQuote() (model.Quote, error) {
	if c.Chart.Error != nil && c.Chart.Error.Description != "" {
		return model.Quote{}, fmt.Errorf("%s: %w", c.Chart.Error.Description, ErrNoData)
	}
	if len(c.Chart.Result) == 0 {
		return model.Quote{}, fmt.Errorf("empty chart result: %w", ErrNoData)
	}
	result := c.Chart.Result[0]
	if len(result.Timestamp) == 0 || len(result.Indicators.Quote) == 0 {
		return model.Quote{}, fmt.Errorf("missing timestamps or indicators: %w", ErrNoData)
	}
	bars := result.Indicators.Quote[0]

	var closes []int
	for i := len(bars.Close) - 1; i >= 0 && len(closes) < 2; i-- {
		if bars.Close[i] != nil {
			closes = append(closes, i)
		}
	}
	if len(closes) == 0 {
		return model.Quote{}, fmt.Errorf("no valid close prices: %w", ErrNoData)
	}

	last := closes[0]
	quote := model.Quote{Current: decimal.NewFromFloat(*bars.Close[last])}

	switch {
	case len(closes) == 2:
		quote.PreviousClose = decimal.NewFromFloat(*bars.Close[closes[1]])
	case result.Meta.PreviousClose != nil:
		quote.PreviousClose = decimal.NewFromFloat(*result.Meta.PreviousClose)
	case result.Meta.ChartPreviousClose != nil:
		quote.PreviousClose = decimal.NewFromFloat(*result.Meta.ChartPreviousClose)
	default:
		return model.Quote{}, fmt.Errorf("single close without previous close metadata: %w", ErrNoData)
	}

	if last < len(bars.Open) && bars.Open[last] != nil {
		quote.Open = decimal.NewFromFloat(*bars.Open[last])
	}
	if last < len(bars.Volume) && bars.Volume[last] != nil {
		quote.Volume = *bars.Volume[last]
	}
	return quote, nil
}

type errorResponse struct {
	Chart struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
	Message string `json:"message"`
}

func parseHTTPError(status int, payload []byte) error {
	var apiErr errorResponse
	detail := ""
	if err := json.Unmarshal(payload, &apiErr); err == nil {
		switch {
		case apiErr.Chart.Error.Description != "":
			detail = apiErr.Chart.Error.Description
		case apiErr.Chart.Error.Code != "":
			detail = apiErr.Chart.Error.Code
		case apiErr.Message != "":
			detail = apiErr.Message
		}
	}
	if detail == "" && len(payload) > 0 && len(payload) < 256 {
		detail = strings.TrimSpace(string(payload))
	}
	statusErr := &StatusError{Status: status, Detail: detail}
	if status == http.StatusNotFound {
		return fmt.Errorf("%w: %w", statusErr, ErrNoData)
	}
	return statusErr
}

var _ QuoteFetcher = (*Yahoo)(nil)
