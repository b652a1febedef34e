package model

import "time"

// StatsSnapshot is a point-in-time view of scan counters. Any snapshot taken
// from the aggregator satisfies Checked == Found+Empty.
type StatsSnapshot struct {
	Generated     uint64    `json:"generated"`
	Checked       uint64    `json:"checked"`
	Found         uint64    `json:"found"`
	Empty         uint64    `json:"empty"`
	CheckFailures uint64    `json:"check_failures"`
	StoreFailures uint64    `json:"store_failures"`
	Undelivered   uint64    `json:"undelivered"`
	StartedAt     time.Time `json:"started_at"`
}

// ScanSummary is the final accounting a completed (or cancelled) run reports:
// the closing snapshot plus wall-clock duration and checked-per-second rate.
type ScanSummary struct {
	Stats   StatsSnapshot `json:"stats"`
	Elapsed time.Duration `json:"elapsed"`
	Rate    float64       `json:"rate"`
}
