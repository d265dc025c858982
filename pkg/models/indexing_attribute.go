package models

import (
	"fmt"
	"time"
)

// IndexingAttribute is the mirror row holding the sync state of one source
// attribute for one account.
// Unique on (target_attribute_type, target_id, api_key).
type IndexingAttribute struct {
	ID                  int64      `json:"entity_id" db:"entity_id"`
	TargetAttributeType string     `json:"target_attribute_type" db:"target_attribute_type" validate:"required,max=63"`
	TargetID            int64      `json:"target_id" db:"target_id" validate:"min=0"`
	TargetCode          string     `json:"target_code" db:"target_code" validate:"required,max=255"`
	APIKey              string     `json:"api_key" db:"api_key" validate:"required,max=31"`
	NextAction          Action     `json:"next_action" db:"next_action" validate:"required,oneof=NoAction Add Update Delete"`
	LastAction          Action     `json:"last_action" db:"last_action" validate:"required,oneof=NoAction Add Update Delete"`
	LastActionTimestamp *time.Time `json:"last_action_timestamp,omitempty" db:"last_action_timestamp"`
	LockTimestamp       *time.Time `json:"lock_timestamp,omitempty" db:"lock_timestamp"`
	IsIndexable         bool       `json:"is_indexable" db:"is_indexable"`
}

func (a IndexingAttribute) Key() string {
	return AttributeKey(a.TargetID, a.APIKey, a.TargetAttributeType)
}

// AttributeKey builds the targetId-apiKey-type match key.
func AttributeKey(targetID int64, apiKey, attributeType string) string {
	return fmt.Sprintf("%d-%s-%s", targetID, apiKey, attributeType)
}

type IndexingAttributeQuery struct {
	AttributeType      string
	APIKeys            []string
	TargetIDs          []int64
	TargetCodes        []string
	IsIndexable        *bool
	NextActions        []Action
	ExcludeNextActions []Action
	LastActions        []Action
	FromID             int64
	Limit              int
	UnlockedBefore     *time.Time
}
