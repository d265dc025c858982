package models

import (
	"fmt"
	"time"
)

// IndexingEntity is the mirror row holding the sync state of one source
// entity for one account.
// Unique on (target_entity_type, target_id, target_parent_id, api_key).
type IndexingEntity struct {
	ID                  int64      `json:"entity_id" db:"entity_id"`
	TargetEntityType    string     `json:"target_entity_type" db:"target_entity_type" validate:"required,max=63"`
	TargetEntitySubtype *string    `json:"target_entity_subtype,omitempty" db:"target_entity_subtype" validate:"omitempty,max=63"`
	TargetID            int64      `json:"target_id" db:"target_id" validate:"min=0"`
	TargetParentID      *int64     `json:"target_parent_id,omitempty" db:"target_parent_id" validate:"omitempty,min=0"`
	APIKey              string     `json:"api_key" db:"api_key" validate:"required,max=31"`
	NextAction          Action     `json:"next_action" db:"next_action" validate:"required,oneof=NoAction Add Update Delete"`
	LastAction          Action     `json:"last_action" db:"last_action" validate:"required,oneof=NoAction Add Update Delete"`
	LastActionTimestamp *time.Time `json:"last_action_timestamp,omitempty" db:"last_action_timestamp"`
	LockTimestamp       *time.Time `json:"lock_timestamp,omitempty" db:"lock_timestamp"`
	IsIndexable         bool       `json:"is_indexable" db:"is_indexable"`
	RequiresUpdate      bool       `json:"requires_update" db:"requires_update"`
}

// ParentID returns the parent id, normalized to 0 when absent.
func (e IndexingEntity) ParentID() int64 {
	if e.TargetParentID == nil {
		return 0
	}
	return *e.TargetParentID
}

// Key is the composite match key shared with MagentoEntity.Key.
func (e IndexingEntity) Key() string {
	return EntityKey(e.TargetID, e.ParentID(), e.APIKey, e.TargetEntityType)
}

// EntityKey builds the targetId-targetParentId-apiKey-type match key.
func EntityKey(targetID, parentID int64, apiKey, entityType string) string {
	return fmt.Sprintf("%d-%d-%s-%s", targetID, parentID, apiKey, entityType)
}

// IndexingEntityQuery filters mirror rows. Nil and empty fields do not
// constrain the result.
type IndexingEntityQuery struct {
	EntityType         string
	APIKeys            []string
	TargetIDs          []int64
	Subtypes           []string
	IsIndexable        *bool
	RequiresUpdate     *bool
	NextActions        []Action
	ExcludeNextActions []Action
	LastActions        []Action
	// FromID is the pagination cursor (inclusive). Rows are ordered by id.
	FromID int64
	Limit  int
	// UnlockedBefore excludes rows holding a lock taken at or after this time.
	UnlockedBefore *time.Time
}
