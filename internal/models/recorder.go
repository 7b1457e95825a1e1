package models

import "time"

// IOType distinguishes which backend a recorded call targeted.
type IOType string

const (
	IOTypeFS      IOType = "fs"
	IOTypeVikingDB IOType = "vikingdb"
)

// IORecord is one JSONL line written by the recorder: a canonical
// request/response pair plus timing and outcome.
type IORecord struct {
	Timestamp  time.Time   `json:"timestamp"`
	IOType     IOType      `json:"io_type"`
	Operation  string      `json:"operation"`
	Request    interface{} `json:"request"`
	Response   interface{} `json:"response"`
	LatencyMS  float64     `json:"latency_ms"`
	Success    bool        `json:"success"`
	Error      string      `json:"error,omitempty"`
	AGFSCalls  []string    `json:"agfs_calls,omitempty"`
}

// PlayerOperationStats is the per-operation replay summary the player
// reports: count, average original latency, average replay latency.
type PlayerOperationStats struct {
	Operation string  `json:"operation"`
	Count     int     `json:"count"`
	OrigAvgMS float64 `json:"orig_avg_ms"`
	PlayAvgMS float64 `json:"play_avg_ms"`
}

// PlayerReport is the full result of a player run.
type PlayerReport struct {
	TotalRecords int                             `json:"total_records"`
	SuccessCount int                             `json:"success_count"`
	FailureCount int                             `json:"failure_count"`
	Operations   map[string]*PlayerOperationStats `json:"operations"`
	SpeedupRatio float64                         `json:"speedup_ratio"`
}
