package models

import "time"

// SyncRunSummary counts the batches of one apiKey~~type::action run.
type SyncRunSummary struct {
	Key     string                      `json:"key"`
	APIKey  string                      `json:"api_key"`
	Type    string                      `json:"type"`
	Action  Action                      `json:"action"`
	Skipped bool                        `json:"skipped,omitempty"`
	Batches map[IndexerResultStatus]int `json:"batches"`
}

// SyncCompletedEvent is raised once a sync orchestration has visited every
// requested account and indexer.
type SyncCompletedEvent struct {
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	StartedAt  time.Time        `json:"started_at"`
	FinishedAt time.Time        `json:"finished_at"`
	Runs       []SyncRunSummary `json:"runs"`
}
