package history

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// completedChanges is the row state after action was synced.
func completedChanges(action models.Action, now time.Time) models.MirrorRowChanges {
	changes := models.MirrorRowChanges{
		LastAction:          models.Ptr(action),
		LastActionTimestamp: models.Ptr(now),
		NextAction:          models.Ptr(models.ActionNoAction),
		ClearLock:           true,
	}
	if action == models.ActionDelete {
		changes.IsIndexable = models.Ptr(false)
	}
	return changes
}

// UpdateIndexingEntitiesActionsService marks the rows of a successful
// batch as synced.
type UpdateIndexingEntitiesActionsService struct {
	store  store.EntityStore
	logger ectologger.Logger
	now    func() time.Time
}

func NewUpdateIndexingEntitiesActionsService(entities store.EntityStore, logger ectologger.Logger) *UpdateIndexingEntitiesActionsService {
	return &UpdateIndexingEntitiesActionsService{store: entities, logger: logger, now: time.Now}
}

// Execute does nothing unless result is a Success.
func (s *UpdateIndexingEntitiesActionsService) Execute(ctx context.Context, result *models.IndexerResult, action models.Action, rows []models.IndexingEntity) error {
	ctx, span := tracing.StartSpan(ctx, "UpdateIndexingEntitiesActionsService.Execute")
	defer span.End()

	if !result.IsSuccess() || len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	changes := completedChanges(action, s.now().UTC())
	changes.RequiresUpdate = models.Ptr(false)
	if err := s.store.Update(ctx, ids, changes); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action": action,
			"ids":    ids,
		}).Error("Failed to update indexing entity actions")
		return err
	}
	return nil
}

// UpdateIndexingAttributesActionsService marks the rows of a successful
// attribute batch as synced.
type UpdateIndexingAttributesActionsService struct {
	store  store.AttributeStore
	logger ectologger.Logger
	now    func() time.Time
}

func NewUpdateIndexingAttributesActionsService(attributes store.AttributeStore, logger ectologger.Logger) *UpdateIndexingAttributesActionsService {
	return &UpdateIndexingAttributesActionsService{store: attributes, logger: logger, now: time.Now}
}

func (s *UpdateIndexingAttributesActionsService) Execute(ctx context.Context, result *models.IndexerResult, action models.Action, rows []models.IndexingAttribute) error {
	ctx, span := tracing.StartSpan(ctx, "UpdateIndexingAttributesActionsService.Execute")
	defer span.End()

	if !result.IsSuccess() || len(rows) == 0 {
		return nil
	}
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = row.ID
	}

	if err := s.store.Update(ctx, ids, completedChanges(action, s.now().UTC())); err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"action": action,
			"ids":    ids,
		}).Error("Failed to update indexing attribute actions")
		return err
	}
	return nil
}
