package synchistory

import (
	"time"

	"github.com/klevu/module-m2-indexing-sub002/pkg/database"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

const (
	historyTable       = "sync_history_entity"
	consolidationTable = "sync_history_entity_consolidation"
)

// ConsolidationRow is the database row of a consolidation record.
type ConsolidationRow struct {
	ID               int64                                       `db:"sync_history_consolidation_id"`
	TargetEntityType string                                      `db:"target_entity_type"`
	TargetID         int64                                       `db:"target_id"`
	TargetParentID   int64                                       `db:"target_parent_id"`
	APIKey           string                                      `db:"api_key"`
	History          database.JSONB[[]models.SyncHistoryEntry] `db:"history"`
	Date             time.Time                                   `db:"date"`
}

var (
	historyStruct       = database.NewStruct(new(models.SyncHistoryEntityRecord))
	consolidationStruct = database.NewStruct(new(ConsolidationRow))
)

func FromConsolidation(r *models.SyncHistoryEntityConsolidationRecord) *ConsolidationRow {
	return &ConsolidationRow{
		ID:               r.ID,
		TargetEntityType: r.TargetEntityType,
		TargetID:         r.TargetID,
		TargetParentID:   r.ParentID(),
		APIKey:           r.APIKey,
		History:          database.JSONB[[]models.SyncHistoryEntry]{Data: r.History},
		Date:             dateOnly(r.Date),
	}
}

func ToConsolidation(row *ConsolidationRow) *models.SyncHistoryEntityConsolidationRecord {
	record := &models.SyncHistoryEntityConsolidationRecord{
		ID:               row.ID,
		TargetEntityType: row.TargetEntityType,
		TargetID:         row.TargetID,
		APIKey:           row.APIKey,
		History:          row.History.Data,
		Date:             row.Date,
	}
	if row.TargetParentID != 0 {
		record.TargetParentID = models.Ptr(row.TargetParentID)
	}
	return record
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
