package validator

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

func validEntity() models.IndexingEntity {
	return models.IndexingEntity{
		TargetEntityType: "KLEVU_PRODUCT",
		TargetID:         5,
		APIKey:           "klevu-1234567890",
		NextAction:       models.ActionAdd,
		LastAction:       models.ActionNoAction,
		IsIndexable:      true,
	}
}

func TestBatchSizeValidator(t *testing.T) {
	tests := []struct {
		name      string
		candidate any
		valid     bool
	}{
		{name: "zero is below minimum", candidate: 0, valid: false},
		{name: "above maximum", candidate: 10_000_000, valid: false},
		{name: "default", candidate: 2500, valid: true},
		{name: "minimum", candidate: 1, valid: true},
		{name: "maximum", candidate: 9_999_999, valid: true},
		{name: "int64", candidate: int64(100), valid: true},
		{name: "negative", candidate: -1, valid: false},
		{name: "string", candidate: "2500", valid: false},
		{name: "float", candidate: 25.0, valid: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewBatchSizeValidator()
			assert.Equal(t, tt.valid, v.IsValid(tt.candidate))
			if tt.valid {
				assert.Empty(t, v.Messages())
			} else {
				assert.Len(t, v.Messages(), 1)
			}
		})
	}
}

func TestValidateBatchSize(t *testing.T) {
	assert.NoError(t, ValidateBatchSize(DefaultBatchSize))
	assert.Error(t, ValidateBatchSize(0))
}

func TestIndexingEntityValidator(t *testing.T) {
	parent := int64(3)
	subtype := strings.Repeat("s", 64)

	tests := []struct {
		name      string
		candidate func() any
		valid     bool
		message   string
	}{
		{
			name:      "valid value",
			candidate: func() any { return validEntity() },
			valid:     true,
		},
		{
			name: "valid pointer with parent",
			candidate: func() any {
				e := validEntity()
				e.TargetParentID = &parent
				return &e
			},
			valid: true,
		},
		{
			name:      "wrong type",
			candidate: func() any { return models.IndexingAttribute{} },
			valid:     false,
			message:   "Invalid type provided",
		},
		{
			name:      "nil pointer",
			candidate: func() any { return (*models.IndexingEntity)(nil) },
			valid:     false,
			message:   "Invalid type provided",
		},
		{
			name: "unknown next action",
			candidate: func() any {
				e := validEntity()
				e.NextAction = "Purge"
				return e
			},
			valid:   false,
			message: "NextAction",
		},
		{
			name: "api key too long",
			candidate: func() any {
				e := validEntity()
				e.APIKey = strings.Repeat("k", 32)
				return e
			},
			valid:   false,
			message: "maximum length of 31",
		},
		{
			name: "type too long",
			candidate: func() any {
				e := validEntity()
				e.TargetEntityType = strings.Repeat("t", 64)
				return e
			},
			valid:   false,
			message: "maximum length of 63",
		},
		{
			name: "subtype too long",
			candidate: func() any {
				e := validEntity()
				e.TargetEntitySubtype = &subtype
				return e
			},
			valid:   false,
			message: "TargetEntitySubtype",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewIndexingEntityValidator()
			assert.Equal(t, tt.valid, v.IsValid(tt.candidate()))
			if tt.message != "" {
				assert.Contains(t, strings.Join(v.Messages(), "\n"), tt.message)
			}
		})
	}
}

func TestRecordValidator_TypeErrorsShortCircuitLength(t *testing.T) {
	e := validEntity()
	e.NextAction = "Purge"
	e.APIKey = strings.Repeat("k", 40)

	v := NewIndexingEntityValidator()
	assert.False(t, v.IsValid(e))
	assert.Len(t, v.Messages(), 1)
	assert.Contains(t, v.Messages()[0], "NextAction")
}

func TestRecordValidator_ResetsMessages(t *testing.T) {
	v := NewIndexingEntityValidator()
	assert.False(t, v.IsValid("nope"))
	assert.NotEmpty(t, v.Messages())

	assert.True(t, v.IsValid(validEntity()))
	assert.Empty(t, v.Messages())
}

func TestSyncHistoryValidators(t *testing.T) {
	record := models.SyncHistoryEntityRecord{
		TargetEntityType: "KLEVU_CMS",
		TargetID:         1,
		APIKey:           "klevu-1",
		Action:           models.ActionUpdate,
		ActionTimestamp:  time.Now(),
		IsSuccess:        true,
	}
	assert.True(t, NewSyncHistoryEntityRecordValidator().IsValid(record))

	record.ActionTimestamp = time.Time{}
	assert.False(t, NewSyncHistoryEntityRecordValidator().IsValid(record))

	consolidation := models.SyncHistoryEntityConsolidationRecord{
		TargetEntityType: "KLEVU_CMS",
		TargetID:         1,
		APIKey:           "klevu-1",
		Date:             time.Now(),
	}
	v := NewSyncHistoryConsolidationRecordValidator()
	assert.False(t, v.IsValid(consolidation))
	assert.Contains(t, strings.Join(v.Messages(), "\n"), "History")

	consolidation.History = []models.SyncHistoryEntry{{Action: models.ActionAdd, ActionTimestamp: time.Now()}}
	assert.True(t, v.IsValid(&consolidation))
}

func TestIndexingAttributeValidator(t *testing.T) {
	attr := models.IndexingAttribute{
		TargetAttributeType: "KLEVU_ATTRIBUTE",
		TargetID:            42,
		TargetCode:          "color",
		APIKey:              "klevu-1",
		NextAction:          models.ActionNoAction,
		LastAction:          models.ActionNoAction,
	}
	v := NewIndexingAttributeValidator()
	assert.True(t, v.IsValid(attr))

	attr.TargetCode = ""
	assert.False(t, v.IsValid(attr))
}
