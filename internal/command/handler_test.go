package command

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"stock-alerts/internal/model"
	"stock-alerts/internal/pricing"
	"stock-alerts/internal/registry"
	"stock-alerts/internal/storage"
)

const phone = "whatsapp:+919800000001"

type stubSource map[string]model.Quote

func (s stubSource) GetQuote(_ context.Context, symbol string) (model.Quote, error) {
	if symbol == "DOWN" {
		return model.Quote{}, &pricing.FetchError{Symbol: symbol, Transient: true, Err: errors.New("connection reset")}
	}
	q, ok := s[symbol]
	if !ok {
		return model.Quote{}, &pricing.FetchError{Symbol: symbol, Err: errors.New("no chart data")}
	}
	return q, nil
}

func newHandler(t *testing.T) (*Handler, *storage.MemoryStore) {
	t.Helper()
	store := storage.NewMemoryStore(nil)
	source := stubSource{
		"TCS": {
			Symbol:        "TCS",
			Ticker:        "TCS.NS",
			Current:       decimal.RequireFromString("3300"),
			PreviousClose: decimal.RequireFromString("3500"),
		},
	}
	h := NewHandler(registry.New(store, zerolog.Nop()), source, Options{Currency: "₹"}, nil, zerolog.Nop())
	return h, store
}

func TestHandlePrice(t *testing.T) {
	h, _ := newHandler(t)

	reply := h.Handle(context.Background(), phone, "price tcs")
	assert.Contains(t, reply, "📊 TCS (TCS.NS)")
	assert.Contains(t, reply, "Current Price: ₹3,300.00")
	assert.Contains(t, reply, "Previous Close: ₹3,500.00")
	assert.Contains(t, reply, "Change: -5.71% ⬇️")

	reply = h.Handle(context.Background(), phone, "price NOPE")
	assert.Contains(t, reply, "Unable to fetch price for NOPE")

	reply = h.Handle(context.Background(), phone, "price DOWN")
	assert.Contains(t, reply, "Please try DOWN again in a minute")
}

func TestHandleAddListRemove(t *testing.T) {
	h, store := newHandler(t)
	ctx := context.Background()

	// the user takes id 1, so the rules start at 2
	reply := h.Handle(ctx, phone, "alert add tcs -8%")
	assert.Contains(t, reply, "✅ 3 Alerts created successfully!")
	assert.Contains(t, reply, "Threshold: 8% drop")
	assert.Contains(t, reply, "Check Frequency: Every 15 minutes")
	assert.Contains(t, reply, "• #2: Gap Down (8% drop)")
	assert.Contains(t, reply, "• #3: 1-Hour Drop (8% drop)")
	assert.Contains(t, reply, "• #4: 2-Hour Drop (8% drop)")

	user, err := store.FindUserByPhone(ctx, "+919800000001")
	require.NoError(t, err)

	reply = h.Handle(ctx, phone, "alert add TCS -8")
	assert.Contains(t, reply, "already have active 8% drop alerts for TCS")
	assert.Contains(t, reply, "#2, #3, #4")

	reply = h.Handle(ctx, phone, "alert add TCS 10")
	assert.Contains(t, reply, "Threshold: 10% spike")
	assert.Contains(t, reply, "Every 5 minutes (urgent)")

	checked := time.Date(2025, 1, 6, 4, 5, 0, 0, time.UTC)
	require.NoError(t, store.CommitGroup(ctx, storage.GroupCommit{Symbol: "TCS", At: checked, Checked: []int64{2}}))

	reply = h.Handle(ctx, phone, "alert list")
	assert.Contains(t, reply, "#2 • TCS • Gap Down 8% • 04:05")
	assert.Contains(t, reply, "#3 • TCS • 1h Drop 8%")
	assert.Contains(t, reply, "#7 • TCS • 2h Spike 10%")
	assert.Contains(t, reply, "Total: 6 alert(s)")

	assert.Equal(t, "✅ Alert removed successfully (ID: #2)", h.Handle(ctx, phone, "alert remove 2"))
	assert.Equal(t, "❌ Alert #2 not found or already removed.", h.Handle(ctx, phone, "alert remove 2"))
	assert.Equal(t, "✅ Removed 5 alert(s) for TCS", h.Handle(ctx, phone, "alert delete tcs"))
	assert.Equal(t, "❌ No active alerts found for TCS.", h.Handle(ctx, phone, "alert remove TCS"))

	rules, err := store.ListActiveRules(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, rules)
	assert.Equal(t, replyNoAlerts, h.Handle(ctx, phone, "alert list"))
}

func TestHandleRejectsBadInput(t *testing.T) {
	h, store := newHandler(t)
	ctx := context.Background()

	assert.Contains(t, h.Handle(ctx, phone, "alert add TCS -6"), "Invalid threshold: -6")
	assert.Contains(t, h.Handle(ctx, phone, "alert add TCS intraday"), "Invalid threshold: intraday")
	assert.Contains(t, h.Handle(ctx, phone, "alert add T$S -8"), "Invalid stock symbol")

	// rejected requests create no user
	_, err := store.FindUserByPhone(ctx, "+919800000001")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.Equal(t, replyNoAlerts, h.Handle(ctx, phone, "alert list"))
	assert.Equal(t, replyNoAlertsFound, h.Handle(ctx, phone, "alert remove 1"))
}

func TestHandleHelpAndDefault(t *testing.T) {
	h, _ := newHandler(t)
	assert.Equal(t, helpText, h.Handle(context.Background(), phone, "HELP"))
	assert.Equal(t, defaultReply, h.Handle(context.Background(), phone, "hello there"))
}
