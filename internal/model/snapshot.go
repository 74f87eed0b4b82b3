package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Phase tags the trading-session state at a given instant.
type Phase string

const (
	PhasePreMarket  Phase = "pre_market"
	PhaseOpen       Phase = "open"
	PhasePostMarket Phase = "post_market"
	PhaseClosed     Phase = "closed"
)

// Snapshot is one timestamped price sample for rolling-window extremes.
type Snapshot struct {
	ID        int64
	Symbol    string
	Ticker    string
	Price     decimal.Decimal
	Open      *decimal.Decimal
	PrevClose *decimal.Decimal
	Volume    *int64
	SampledAt time.Time
	Phase     Phase
}

// SnapshotFromQuote derives a sample from a quote.
func SnapshotFromQuote(q Quote, at time.Time, phase Phase) Snapshot {
	snap := Snapshot{
		Symbol:    q.Symbol,
		Ticker:    q.Ticker,
		Price:     q.Current,
		SampledAt: at,
		Phase:     phase,
	}
	if !q.Open.IsZero() {
		open := q.Open
		snap.Open = &open
	}
	if !q.PreviousClose.IsZero() {
		prev := q.PreviousClose
		snap.PrevClose = &prev
	}
	if q.Volume > 0 {
		vol := q.Volume
		snap.Volume = &vol
	}
	return snap
}
