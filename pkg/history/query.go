package history

import (
	"context"

	"github.com/Gobusters/ectologger"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// SyncHistoryQueryService reads the consolidated sync history of an account.
type SyncHistoryQueryService struct {
	store  store.HistoryStore
	logger ectologger.Logger
}

func NewSyncHistoryQueryService(history store.HistoryStore, logger ectologger.Logger) *SyncHistoryQueryService {
	return &SyncHistoryQueryService{store: history, logger: logger}
}

// Execute returns the consolidation records of apiKey, newest first,
// optionally limited to targetIDs.
func (s *SyncHistoryQueryService) Execute(ctx context.Context, apiKey string, targetIDs []int64) ([]*models.SyncHistoryEntityConsolidationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryQueryService.Execute")
	defer span.End()

	if apiKey == "" {
		return nil, apperrors.NewBadRequestError("api key is required")
	}

	records, err := s.store.ListConsolidations(ctx, apiKey, targetIDs)
	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"api_key":    apiKey,
			"target_ids": targetIDs,
		}).Error("Failed to list sync history")
		return nil, err
	}
	return records, nil
}
