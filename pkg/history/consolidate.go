package history

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// ConsolidationSummary counts the work of one consolidation sweep.
type ConsolidationSummary struct {
	Groups  int `json:"groups"`
	Records int `json:"records"`
	Failed  int `json:"failed"`
}

// ConsolidateSyncHistoryService folds history rows into one consolidation
// row per (date, api key, type, target id, parent id).
type ConsolidateSyncHistoryService struct {
	store  store.HistoryStore
	logger ectologger.Logger
	now    func() time.Time
}

func NewConsolidateSyncHistoryService(history store.HistoryStore, logger ectologger.Logger) *ConsolidateSyncHistoryService {
	return &ConsolidateSyncHistoryService{store: history, logger: logger, now: time.Now}
}

// Execute consolidates every history row dated today or earlier. Each
// group is saved and its source rows deleted in one transaction. A failed
// group is logged and left for the next sweep.
func (s *ConsolidateSyncHistoryService) Execute(ctx context.Context) (ConsolidationSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "ConsolidateSyncHistoryService.Execute")
	defer span.End()

	summary := ConsolidationSummary{}
	tomorrow := startOfDay(s.now()).AddDate(0, 0, 1)
	groups, err := s.store.ListHistoryGroups(ctx, tomorrow)
	if err != nil {
		metrics.HistoryFailuresTotal.WithLabelValues("consolidate").Inc()
		s.logger.WithContext(ctx).WithError(err).Error("Failed to list sync history groups")
		return summary, err
	}

	for _, group := range groups {
		summary.Groups++
		count, err := s.consolidate(ctx, group)
		if err != nil {
			summary.Failed++
			metrics.HistoryFailuresTotal.WithLabelValues("consolidate").Inc()
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"date":               group.Date.Format(time.DateOnly),
				"api_key":            group.APIKey,
				"target_entity_type": group.TargetEntityType,
				"target_id":          group.TargetID,
				"target_parent_id":   group.TargetParentID,
			}).Error("Failed to consolidate sync history")
			continue
		}
		summary.Records += count
		metrics.HistoryRecordsConsolidated.Add(float64(count))
	}

	return summary, nil
}

func (s *ConsolidateSyncHistoryService) consolidate(ctx context.Context, group models.SyncHistoryGroup) (int, error) {
	count := 0
	err := s.store.WithTx(ctx, func(ctx context.Context) error {
		records, err := s.store.ListHistoryForGroup(ctx, group)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			return nil
		}

		consolidation := Fold(group, records)
		if err := s.store.SaveConsolidation(ctx, consolidation); err != nil {
			return err
		}

		ids := make([]int64, len(records))
		for i, r := range records {
			ids[i] = r.ID
		}
		if err := s.store.DeleteHistory(ctx, ids); err != nil {
			return err
		}
		count = len(records)
		return nil
	})
	return count, err
}

// Fold builds the consolidation row of one group from its history rows,
// which must be in chronological order.
func Fold(group models.SyncHistoryGroup, records []models.SyncHistoryEntityRecord) *models.SyncHistoryEntityConsolidationRecord {
	entries := make([]models.SyncHistoryEntry, 0, len(records))
	for _, r := range records {
		entries = append(entries, models.SyncHistoryEntry{
			Action:          r.Action,
			ActionTimestamp: r.ActionTimestamp.UTC(),
			IsSuccess:       r.IsSuccess,
			Message:         r.Message,
		})
	}

	var parentID *int64
	if group.TargetParentID != 0 {
		parentID = models.Ptr(group.TargetParentID)
	}
	return &models.SyncHistoryEntityConsolidationRecord{
		TargetEntityType: group.TargetEntityType,
		TargetID:         group.TargetID,
		TargetParentID:   parentID,
		APIKey:           group.APIKey,
		History:          entries,
		Date:             startOfDay(group.Date),
	}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
