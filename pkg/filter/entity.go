package filter

import (
	"context"
	"iter"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// RequiresUpdateDeterminer decides whether a row flagged requires_update
// should be queued for an Update.
type RequiresUpdateDeterminer interface {
	RequiresUpdate(ctx context.Context, entity models.IndexingEntity) bool
}

// RequiresUpdateFunc adapts a function to RequiresUpdateDeterminer.
type RequiresUpdateFunc func(ctx context.Context, entity models.IndexingEntity) bool

func (f RequiresUpdateFunc) RequiresUpdate(ctx context.Context, entity models.IndexingEntity) bool {
	return f(ctx, entity)
}

// SyncedEntityDeterminer accepts dirty rows the remote service already
// holds, meaning their last completed action was an Add or an Update.
// A non-empty Types limits it to those entity types.
type SyncedEntityDeterminer struct {
	Types []string
}

func (d SyncedEntityDeterminer) RequiresUpdate(_ context.Context, entity models.IndexingEntity) bool {
	if len(d.Types) > 0 && !ectolinq.Contains(d.Types, entity.TargetEntityType) {
		return false
	}
	return entity.LastAction == models.ActionAdd || entity.LastAction == models.ActionUpdate
}

// EntityFilters diffs entity snapshots against the indexing_entity table.
type EntityFilters struct {
	store     store.EntityStore
	batchSize int
	logger    ectologger.Logger
}

// NewEntityFilters returns an error when batchSize is outside the valid
// batch size range. Zero selects the default.
func NewEntityFilters(entities store.EntityStore, batchSize int, logger ectologger.Logger) (*EntityFilters, error) {
	size, err := checkBatchSize(batchSize)
	if err != nil {
		return nil, err
	}
	return &EntityFilters{
		store:     entities,
		batchSize: size,
		logger:    logger,
	}, nil
}

func (f *EntityFilters) BatchSize() int {
	return f.batchSize
}

// FilterToAdd returns the source entities with no mirror row yet, grouped
// by account.
func (f *EntityFilters) FilterToAdd(ctx context.Context, entityType string, snapshot models.EntitySnapshot) (models.EntitySnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityFilters.FilterToAdd")
	defer span.End()

	out := models.EntitySnapshot{}
	for apiKey, sourceEntities := range snapshot {
		if len(sourceEntities) == 0 {
			continue
		}
		rows, err := f.mirror(ctx, models.IndexingEntityQuery{
			EntityType: entityType,
			APIKeys:    []string{apiKey},
		})
		if err != nil {
			return nil, err
		}
		known := entityKeys(rows)

		for _, e := range sourceEntities {
			key := e.Key(entityType)
			if _, ok := known[key]; ok {
				continue
			}
			known[key] = struct{}{}
			out[apiKey] = append(out[apiKey], e)
		}
	}

	f.logger.WithContext(ctx).WithFields(map[string]any{
		"target_entity_type": entityType,
		"accounts":           len(out),
	}).Debug("Filtered entities to add")
	return out, nil
}

// FilterToDelete returns the ids of indexable mirror rows whose source
// entity is non-indexable or missing. A snapshot without any entity means
// every requested account is evaluated against an empty source.
func (f *EntityFilters) FilterToDelete(ctx context.Context, entityType string, snapshot models.EntitySnapshot, scope Scope) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityFilters.FilterToDelete")
	defer span.End()

	apiKeys := deleteAccounts(snapshot, scope)
	rows, err := f.mirror(ctx, models.IndexingEntityQuery{
		EntityType:         entityType,
		APIKeys:            apiKeys,
		TargetIDs:          scope.TargetIDs,
		Subtypes:           scope.Subtypes,
		IsIndexable:        models.Ptr(true),
		ExcludeNextActions: []models.Action{models.ActionDelete},
	})
	if err != nil {
		return nil, err
	}

	indexable := sourceKeys(snapshot, entityType, true)
	ids := []int64{}
	for _, row := range rows {
		if _, ok := indexable[row.Key()]; !ok {
			ids = append(ids, row.ID)
		}
	}
	return dedupe(ids), nil
}

// FilterToSetIndexable returns the ids of non-indexable mirror rows whose
// source entity is now indexable.
func (f *EntityFilters) FilterToSetIndexable(ctx context.Context, entityType string, snapshot models.EntitySnapshot, scope Scope) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityFilters.FilterToSetIndexable")
	defer span.End()

	apiKeys := snapshotAccounts(snapshot)
	if len(apiKeys) == 0 {
		return []int64{}, nil
	}

	rows, err := f.mirror(ctx, models.IndexingEntityQuery{
		EntityType:  entityType,
		APIKeys:     apiKeys,
		TargetIDs:   scope.TargetIDs,
		Subtypes:    scope.Subtypes,
		IsIndexable: models.Ptr(false),
	})
	if err != nil {
		return nil, err
	}

	indexable := sourceKeys(snapshot, entityType, true)
	ids := []int64{}
	for _, row := range rows {
		if _, ok := indexable[row.Key()]; ok {
			ids = append(ids, row.ID)
		}
	}
	return dedupe(ids), nil
}

// FilterToPurge returns the ids of rows whose Delete already completed
// and whose source entity no longer exists at all.
func (f *EntityFilters) FilterToPurge(ctx context.Context, entityType string, snapshot models.EntitySnapshot, scope Scope) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityFilters.FilterToPurge")
	defer span.End()

	apiKeys := deleteAccounts(snapshot, scope)
	rows, err := f.mirror(ctx, models.IndexingEntityQuery{
		EntityType:  entityType,
		APIKeys:     apiKeys,
		TargetIDs:   scope.TargetIDs,
		Subtypes:    scope.Subtypes,
		IsIndexable: models.Ptr(false),
		NextActions: []models.Action{models.ActionNoAction},
		LastActions: []models.Action{models.ActionDelete},
	})
	if err != nil {
		return nil, err
	}

	existing := sourceKeys(snapshot, entityType, false)
	ids := []int64{}
	for _, row := range rows {
		if _, ok := existing[row.Key()]; !ok {
			ids = append(ids, row.ID)
		}
	}
	return dedupe(ids), nil
}

// FilterToFlagRequiresUpdate returns the ids of indexable rows not yet
// flagged requires_update whose source entity is indexable and reported
// as changed.
func (f *EntityFilters) FilterToFlagRequiresUpdate(ctx context.Context, entityType string, snapshot models.EntitySnapshot, scope Scope) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "EntityFilters.FilterToFlagRequiresUpdate")
	defer span.End()

	changed := map[string]struct{}{}
	apiKeys := []string{}
	for apiKey, entities := range snapshot {
		for _, e := range entities {
			if e.IsIndexable && e.RequiresUpdate {
				changed[e.Key(entityType)] = struct{}{}
				if !ectolinq.Contains(apiKeys, apiKey) {
					apiKeys = append(apiKeys, apiKey)
				}
			}
		}
	}
	if len(changed) == 0 {
		return []int64{}, nil
	}

	rows, err := f.mirror(ctx, models.IndexingEntityQuery{
		EntityType:     entityType,
		APIKeys:        apiKeys,
		TargetIDs:      scope.TargetIDs,
		Subtypes:       scope.Subtypes,
		IsIndexable:    models.Ptr(true),
		RequiresUpdate: models.Ptr(false),
	})
	if err != nil {
		return nil, err
	}

	ids := []int64{}
	for _, row := range rows {
		if _, ok := changed[row.Key()]; ok {
			ids = append(ids, row.ID)
		}
	}
	return dedupe(ids), nil
}

// FilterToUpdate pages through indexable rows in scope that have no
// pending next action.
func (f *EntityFilters) FilterToUpdate(ctx context.Context, entityType string, scope Scope) iter.Seq2[[]int64, error] {
	q := models.IndexingEntityQuery{
		EntityType:  entityType,
		APIKeys:     scope.APIKeys,
		TargetIDs:   scope.TargetIDs,
		Subtypes:    scope.Subtypes,
		IsIndexable: models.Ptr(true),
		NextActions: []models.Action{models.ActionNoAction},
	}
	return paginate(ctx, f.batchSize, f.page(q), entityID, nil)
}

// FilterRequiresUpdate pages through indexable rows flagged
// requires_update with no pending next action and keeps those the
// determiner accepts.
func (f *EntityFilters) FilterRequiresUpdate(ctx context.Context, entityType string, scope Scope, determiner RequiresUpdateDeterminer) iter.Seq2[[]int64, error] {
	q := models.IndexingEntityQuery{
		EntityType:     entityType,
		APIKeys:        scope.APIKeys,
		TargetIDs:      scope.TargetIDs,
		Subtypes:       scope.Subtypes,
		IsIndexable:    models.Ptr(true),
		RequiresUpdate: models.Ptr(true),
		NextActions:    []models.Action{models.ActionNoAction},
	}
	return paginate(ctx, f.batchSize, f.page(q), entityID, func(e models.IndexingEntity) bool {
		return determiner.RequiresUpdate(ctx, e)
	})
}

func (f *EntityFilters) page(q models.IndexingEntityQuery) pageFunc[models.IndexingEntity] {
	return func(ctx context.Context, fromID int64, limit int) ([]models.IndexingEntity, error) {
		q.FromID = fromID
		q.Limit = limit
		rows, err := f.store.List(ctx, q)
		if err != nil {
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"target_entity_type": q.EntityType,
				"from_id":            fromID,
			}).Error("Failed to page indexing entities")
		}
		return rows, err
	}
}

func (f *EntityFilters) mirror(ctx context.Context, q models.IndexingEntityQuery) ([]models.IndexingEntity, error) {
	return collectAll(ctx, f.batchSize, f.page(q), entityID)
}

func entityID(e models.IndexingEntity) int64 {
	return e.ID
}

func entityKeys(rows []models.IndexingEntity) map[string]struct{} {
	keys := make(map[string]struct{}, len(rows))
	for _, row := range rows {
		keys[row.Key()] = struct{}{}
	}
	return keys
}

// sourceKeys returns the match keys of the snapshot, optionally only of
// indexable entities.
func sourceKeys(snapshot models.EntitySnapshot, entityType string, onlyIndexable bool) map[string]struct{} {
	keys := map[string]struct{}{}
	for _, entities := range snapshot {
		for _, e := range entities {
			if onlyIndexable && !e.IsIndexable {
				continue
			}
			keys[e.Key(entityType)] = struct{}{}
		}
	}
	return keys
}

func snapshotAccounts(snapshot models.EntitySnapshot) []string {
	apiKeys := []string{}
	for apiKey, entities := range snapshot {
		if len(entities) > 0 {
			apiKeys = append(apiKeys, apiKey)
		}
	}
	return apiKeys
}

// deleteAccounts picks the accounts whose rows are checked for removal.
// A nil result evaluates every account.
func deleteAccounts(snapshot models.EntitySnapshot, scope Scope) []string {
	total := 0
	for _, entities := range snapshot {
		total += len(entities)
	}
	if total == 0 {
		// a provider returning nothing at all means every requested
		// account lost its entities
		return scope.APIKeys
	}
	return scopedAccounts(snapshot, scope)
}
