package storage

import (
	"time"

	"stock-alerts/internal/model"
)

// GroupCommit is the state transition produced by evaluating one symbol group.
// It is applied in a single transaction so a failure leaves the group untouched.
type GroupCommit struct {
	Symbol    string
	At        time.Time
	Checked   []int64
	Triggered []int64
	Events    []model.AlertEvent
}

// Empty reports whether applying the commit would change nothing.
func (g GroupCommit) Empty() bool {
	return len(g.Checked) == 0 && len(g.Triggered) == 0 && len(g.Events) == 0
}
