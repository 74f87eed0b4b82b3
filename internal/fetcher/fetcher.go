package fetcher

import (
	"context"
	"errors"
	"fmt"

	"stock-alerts/internal/model"
)

// ErrNoData marks a response that carried no usable quote for the symbol.
var ErrNoData = errors.New("fetcher: no quote data")

// QuoteFetcher retrieves a live quote from a remote provider.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context, symbol string) (model.Quote, error)
}

// StatusError is a non-2xx provider response.
type StatusError struct {
	Status int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("quote api error (%d)", e.Status)
	}
	return fmt.Sprintf("quote api error (%d): %s", e.Status, e.Detail)
}

// Temporary reports whether retrying later may succeed.
func (e *StatusError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}
