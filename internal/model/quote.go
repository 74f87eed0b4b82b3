package model

import (
	"time"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Quote is a normalised price observation for one symbol.
// A zero price field means the provider did not supply it.
type Quote struct {
	Symbol        string          `json:"symbol"`
	Ticker        string          `json:"ticker"`
	Current       decimal.Decimal `json:"current"`
	Open          decimal.Decimal `json:"open"`
	PreviousClose decimal.Decimal `json:"previous_close"`
	Volume        int64           `json:"volume,omitempty"`
	FetchedAt     time.Time       `json:"fetched_at"`
}

// PercentChange is the move from previous close to current price.
func (q Quote) PercentChange() decimal.Decimal {
	return PercentChange(q.Current, q.PreviousClose)
}

// Gap is the move from previous close to the session open.
func (q Quote) Gap() decimal.Decimal {
	return PercentChange(q.Open, q.PreviousClose)
}

// PercentChange returns (value-base)/base*100, or zero when base is zero.
func PercentChange(value, base decimal.Decimal) decimal.Decimal {
	if base.IsZero() {
		return decimal.Zero
	}
	return value.Sub(base).Div(base).Mul(hundred)
}
