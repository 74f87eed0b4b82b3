package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// AlertEvent is the immutable audit row for one delivery attempt.
type AlertEvent struct {
	ID            int64
	RuleID        int64
	Symbol        string
	TriggeredAt   time.Time
	Price         decimal.Decimal
	PreviousPrice decimal.Decimal
	PercentChange decimal.Decimal
	Sent          bool
	DeliveryID    string
	Error         string
}

// User owns alert rules and receives notifications on PhoneNumber.
type User struct {
	ID          int64
	PhoneNumber string
	Active      bool
	CreatedAt   time.Time
}
