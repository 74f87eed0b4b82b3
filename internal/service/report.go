package service

import "github.com/rs/zerolog"

// Tick names, also used as metric labels.
const (
	TickSnapshot = "snapshot"
	TickGap      = "gap"
	TickWindow   = "window"
)

// lockOffsets keep each tick kind on its own advisory lock.
var lockOffsets = map[string]int64{
	TickSnapshot: 0,
	TickGap:      1,
	TickWindow:   2,
}

// Report status values.
const (
	StatusSkipped = "skipped"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Report summarises one tick run.
type Report struct {
	Tick               string `json:"tick"`
	RunID              string `json:"run_id"`
	Status             string `json:"status"`
	Reason             string `json:"reason,omitempty"`
	Symbols            int    `json:"symbols"`
	Checked            int    `json:"checked"`
	Triggered          int    `json:"triggered"`
	Sent               int    `json:"sent"`
	Failed             int    `json:"failed"`
	SnapshotsCollected int    `json:"snapshots_collected"`
	SnapshotsPurged    int64  `json:"snapshots_purged"`
}

func (r Report) MarshalZerologObject(e *zerolog.Event) {
	e.Str("tick", r.Tick).
		Str("status", r.Status).
		Int("symbols", r.Symbols).
		Int("checked", r.Checked).
		Int("triggered", r.Triggered).
		Int("sent", r.Sent).
		Int("failed", r.Failed).
		Int("snapshots_collected", r.SnapshotsCollected).
		Int64("snapshots_purged", r.SnapshotsPurged)
	if r.Reason != "" {
		e.Str("reason", r.Reason)
	}
}
