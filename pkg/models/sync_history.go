package models

import (
	"fmt"
	"time"
)

// SyncHistoryEntityRecord is one sync attempt of one mirror row.
type SyncHistoryEntityRecord struct {
	ID               int64     `json:"sync_history_id" db:"sync_history_id"`
	TargetEntityType string    `json:"target_entity_type" db:"target_entity_type" validate:"required,max=63"`
	TargetID         int64     `json:"target_id" db:"target_id" validate:"min=0"`
	TargetParentID   *int64    `json:"target_parent_id,omitempty" db:"target_parent_id" validate:"omitempty,min=0"`
	APIKey           string    `json:"api_key" db:"api_key" validate:"required,max=31"`
	Action           Action    `json:"action" db:"action" validate:"required,oneof=NoAction Add Update Delete"`
	ActionTimestamp  time.Time `json:"action_timestamp" db:"action_timestamp" validate:"required"`
	IsSuccess        bool      `json:"is_success" db:"is_success"`
	Message          string    `json:"message" db:"message" validate:"max=65535"`
}

func (r SyncHistoryEntityRecord) ParentID() int64 {
	if r.TargetParentID == nil {
		return 0
	}
	return *r.TargetParentID
}

// SyncHistoryEntry is one element of a consolidated history array.
type SyncHistoryEntry struct {
	Action          Action    `json:"action"`
	ActionTimestamp time.Time `json:"action_timestamp"`
	IsSuccess       bool      `json:"is_success"`
	Message         string    `json:"message"`
}

// SyncHistoryEntityConsolidationRecord folds all same-day history rows of
// one mirror row into an ordered history array.
type SyncHistoryEntityConsolidationRecord struct {
	ID               int64              `json:"sync_history_consolidation_id" db:"sync_history_consolidation_id"`
	TargetEntityType string             `json:"target_entity_type" validate:"required,max=63"`
	TargetID         int64              `json:"target_id" validate:"min=0"`
	TargetParentID   *int64             `json:"target_parent_id,omitempty" validate:"omitempty,min=0"`
	APIKey           string             `json:"api_key" validate:"required,max=31"`
	History          []SyncHistoryEntry `json:"history" validate:"required,min=1"`
	Date             time.Time          `json:"date" validate:"required"`
}

func (r SyncHistoryEntityConsolidationRecord) ParentID() int64 {
	if r.TargetParentID == nil {
		return 0
	}
	return *r.TargetParentID
}

// SyncHistoryGroup identifies the history rows folded into one
// consolidation record.
type SyncHistoryGroup struct {
	Date             time.Time `db:"action_date"`
	APIKey           string    `db:"api_key"`
	TargetEntityType string    `db:"target_entity_type"`
	TargetID         int64     `db:"target_id"`
	TargetParentID   int64     `db:"target_parent_id"`
}

func (g SyncHistoryGroup) String() string {
	return fmt.Sprintf("%s/%s/%s/%d-%d", g.Date.Format(time.DateOnly), g.APIKey, g.TargetEntityType, g.TargetID, g.TargetParentID)
}
