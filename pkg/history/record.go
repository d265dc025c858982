// Package history records sync attempts per mirror row and folds them
// into daily consolidation rows.
package history

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

const maxMessageLength = 65535

// RecordIndexingEntityHistoryService writes one history row per mirror row
// of a synced batch. Failures are logged and never returned.
type RecordIndexingEntityHistoryService struct {
	store  store.HistoryStore
	logger ectologger.Logger
	now    func() time.Time
}

func NewRecordIndexingEntityHistoryService(history store.HistoryStore, logger ectologger.Logger) *RecordIndexingEntityHistoryService {
	return &RecordIndexingEntityHistoryService{store: history, logger: logger, now: time.Now}
}

// Execute stores the batch outcome for every row. Each row gets the
// aggregate success flag of the batch and its joined messages.
func (s *RecordIndexingEntityHistoryService) Execute(ctx context.Context, result *models.IndexerResult, action models.Action, rows []models.IndexingEntity) {
	ctx, span := tracing.StartSpan(ctx, "RecordIndexingEntityHistoryService.Execute")
	defer span.End()

	if result == nil || len(rows) == 0 {
		return
	}

	now := s.now().UTC()
	message := truncateMessage(strings.Join(result.Messages, "\n"))

	records := make([]models.SyncHistoryEntityRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.SyncHistoryEntityRecord{
			TargetEntityType: row.TargetEntityType,
			TargetID:         row.TargetID,
			TargetParentID:   row.TargetParentID,
			APIKey:           row.APIKey,
			Action:           action,
			ActionTimestamp:  now,
			IsSuccess:        result.IsSuccess(),
			Message:          message,
		})
	}

	if err := s.store.InsertHistory(ctx, records); err != nil {
		metrics.HistoryFailuresTotal.WithLabelValues("record").Inc()
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action":  action,
			"status":  result.Status,
			"records": len(records),
		}).Error("Failed to record sync history")
	}
}

// truncateMessage keeps at most maxMessageLength runes of valid UTF-8.
func truncateMessage(message string) string {
	message = strings.ToValidUTF8(message, "\uFFFD")
	if utf8.RuneCountInString(message) <= maxMessageLength {
		return message
	}
	runes := 0
	for i := range message {
		if runes == maxMessageLength {
			return message[:i]
		}
		runes++
	}
	return message
}
