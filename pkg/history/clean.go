package history

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

const DefaultRetentionDays = 180

// CleanSummary counts the work of one cleanup sweep.
type CleanSummary struct {
	Cutoff  string `json:"cutoff"`
	Deleted int    `json:"deleted"`
	Failed  int    `json:"failed"`
}

// CleanConsolidatedSyncHistoryService removes consolidation rows older
// than the retention period.
type CleanConsolidatedSyncHistoryService struct {
	store         store.HistoryStore
	retentionDays int
	logger        ectologger.Logger
	now           func() time.Time
}

// NewCleanConsolidatedSyncHistoryService uses DefaultRetentionDays when
// retentionDays is 0.
func NewCleanConsolidatedSyncHistoryService(history store.HistoryStore, retentionDays int, logger ectologger.Logger) (*CleanConsolidatedSyncHistoryService, error) {
	if retentionDays == 0 {
		retentionDays = DefaultRetentionDays
	}
	if retentionDays < 0 {
		return nil, fmt.Errorf("history retention must be a positive number of days, got %d", retentionDays)
	}
	return &CleanConsolidatedSyncHistoryService{
		store:         history,
		retentionDays: retentionDays,
		logger:        logger,
		now:           time.Now,
	}, nil
}

// Cutoff is today minus the retention period. Rows dated on or before it
// are removed.
func (s *CleanConsolidatedSyncHistoryService) Cutoff() time.Time {
	return startOfDay(s.now()).AddDate(0, 0, -s.retentionDays)
}

// Execute deletes rows one by one. A failed delete is logged and the sweep
// carries on.
func (s *CleanConsolidatedSyncHistoryService) Execute(ctx context.Context) (CleanSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "CleanConsolidatedSyncHistoryService.Execute")
	defer span.End()

	cutoff := s.Cutoff()
	summary := CleanSummary{Cutoff: cutoff.Format(time.DateOnly)}
	ids, err := s.store.ListConsolidationIDsOnOrBefore(ctx, cutoff)
	if err != nil {
		metrics.HistoryFailuresTotal.WithLabelValues("clean").Inc()
		s.logger.WithContext(ctx).WithError(err).WithField("cutoff", summary.Cutoff).Error("Failed to list expired sync history")
		return summary, err
	}

	for _, id := range ids {
		if err := s.store.DeleteConsolidation(ctx, id); err != nil {
			summary.Failed++
			metrics.HistoryFailuresTotal.WithLabelValues("clean").Inc()
			s.logger.WithContext(ctx).WithError(err).WithField("sync_history_consolidation_id", id).Error("Failed to delete consolidated sync history")
			continue
		}
		summary.Deleted++
		metrics.HistoryConsolidationsDeleted.Inc()
	}

	return summary, nil
}
