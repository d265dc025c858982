package filter

import (
	"context"
	"iter"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// AttributeFilters diffs attribute snapshots against the
// indexing_attribute table. Standard attribute codes exist remotely at
// all times and are never proposed for add or removal.
type AttributeFilters struct {
	store     store.AttributeStore
	batchSize int
	standard  map[string]struct{}
	logger    ectologger.Logger
}

func NewAttributeFilters(attributes store.AttributeStore, batchSize int, standardAttributes []string, logger ectologger.Logger) (*AttributeFilters, error) {
	size, err := checkBatchSize(batchSize)
	if err != nil {
		return nil, err
	}
	standard := make(map[string]struct{}, len(standardAttributes))
	for _, code := range standardAttributes {
		standard[code] = struct{}{}
	}
	return &AttributeFilters{
		store:     attributes,
		batchSize: size,
		standard:  standard,
		logger:    logger,
	}, nil
}

func (f *AttributeFilters) IsStandard(code string) bool {
	_, ok := f.standard[code]
	return ok
}

// FilterToAdd returns the non-standard source attributes with no mirror
// row yet, grouped by account.
func (f *AttributeFilters) FilterToAdd(ctx context.Context, attributeType string, snapshot models.AttributeSnapshot) (models.AttributeSnapshot, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeFilters.FilterToAdd")
	defer span.End()

	out := models.AttributeSnapshot{}
	for apiKey, sourceAttributes := range snapshot {
		if len(sourceAttributes) == 0 {
			continue
		}
		rows, err := f.mirror(ctx, models.IndexingAttributeQuery{
			AttributeType: attributeType,
			APIKeys:       []string{apiKey},
		})
		if err != nil {
			return nil, err
		}
		known := make(map[string]struct{}, len(rows))
		for _, row := range rows {
			known[row.Key()] = struct{}{}
		}

		for _, a := range sourceAttributes {
			key := a.Key(attributeType)
			if _, ok := known[key]; ok || f.IsStandard(a.AttributeCode) {
				continue
			}
			known[key] = struct{}{}
			out[apiKey] = append(out[apiKey], a)
		}
	}
	return out, nil
}

// FilterToDelete returns the ids of indexable rows already synced with Add
// or Update whose source attribute is gone or non-indexable.
func (f *AttributeFilters) FilterToDelete(ctx context.Context, attributeType string, snapshot models.AttributeSnapshot, scope Scope) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeFilters.FilterToDelete")
	defer span.End()

	return f.notIndexableInSource(ctx, attributeType, snapshot, scope, []models.Action{models.ActionAdd, models.ActionUpdate})
}

// FilterToSetNotIndexable returns the ids of indexable rows whose last
// action was NoAction or Delete and whose source attribute is gone or
// non-indexable. These rows are never sent to the remote service.
func (f *AttributeFilters) FilterToSetNotIndexable(ctx context.Context, attributeType string, snapshot models.AttributeSnapshot, scope Scope) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeFilters.FilterToSetNotIndexable")
	defer span.End()

	return f.notIndexableInSource(ctx, attributeType, snapshot, scope, []models.Action{models.ActionNoAction, models.ActionDelete})
}

func (f *AttributeFilters) notIndexableInSource(ctx context.Context, attributeType string, snapshot models.AttributeSnapshot, scope Scope, lastActions []models.Action) ([]int64, error) {
	apiKeys := attributeAccounts(snapshot, scope)
	if len(apiKeys) == 0 {
		return []int64{}, nil
	}

	rows, err := f.mirror(ctx, models.IndexingAttributeQuery{
		AttributeType:      attributeType,
		APIKeys:            apiKeys,
		TargetIDs:          scope.TargetIDs,
		IsIndexable:        models.Ptr(true),
		LastActions:        lastActions,
		ExcludeNextActions: []models.Action{models.ActionDelete},
	})
	if err != nil {
		return nil, err
	}

	indexable := attributeSourceKeys(snapshot, attributeType)
	ids := []int64{}
	for _, row := range rows {
		if f.IsStandard(row.TargetCode) {
			continue
		}
		if _, ok := indexable[row.Key()]; !ok {
			ids = append(ids, row.ID)
		}
	}
	return dedupe(ids), nil
}

// FilterToSetIndexable returns the ids of non-indexable rows whose source
// attribute is now indexable.
func (f *AttributeFilters) FilterToSetIndexable(ctx context.Context, attributeType string, snapshot models.AttributeSnapshot, scope Scope) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeFilters.FilterToSetIndexable")
	defer span.End()

	apiKeys := attributeAccounts(snapshot, scope)
	if len(apiKeys) == 0 {
		return []int64{}, nil
	}

	rows, err := f.mirror(ctx, models.IndexingAttributeQuery{
		AttributeType: attributeType,
		APIKeys:       apiKeys,
		TargetIDs:     scope.TargetIDs,
		IsIndexable:   models.Ptr(false),
	})
	if err != nil {
		return nil, err
	}

	indexable := attributeSourceKeys(snapshot, attributeType)
	ids := []int64{}
	for _, row := range rows {
		if _, ok := indexable[row.Key()]; ok {
			ids = append(ids, row.ID)
		}
	}
	return dedupe(ids), nil
}

// FilterToUpdate pages through indexable rows in scope that have no
// pending next action.
func (f *AttributeFilters) FilterToUpdate(ctx context.Context, attributeType string, scope Scope) iter.Seq2[[]int64, error] {
	q := models.IndexingAttributeQuery{
		AttributeType: attributeType,
		APIKeys:       scope.APIKeys,
		TargetIDs:     scope.TargetIDs,
		IsIndexable:   models.Ptr(true),
		NextActions:   []models.Action{models.ActionNoAction},
	}
	return paginate(ctx, f.batchSize, f.page(q), attributeID, func(a models.IndexingAttribute) bool {
		return !f.IsStandard(a.TargetCode)
	})
}

func (f *AttributeFilters) page(q models.IndexingAttributeQuery) pageFunc[models.IndexingAttribute] {
	return func(ctx context.Context, fromID int64, limit int) ([]models.IndexingAttribute, error) {
		q.FromID = fromID
		q.Limit = limit
		rows, err := f.store.List(ctx, q)
		if err != nil {
			f.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"target_attribute_type": q.AttributeType,
				"from_id":               fromID,
			}).Error("Failed to page indexing attributes")
		}
		return rows, err
	}
}

func (f *AttributeFilters) mirror(ctx context.Context, q models.IndexingAttributeQuery) ([]models.IndexingAttribute, error) {
	return collectAll(ctx, f.batchSize, f.page(q), attributeID)
}

func attributeID(a models.IndexingAttribute) int64 {
	return a.ID
}

func attributeSourceKeys(snapshot models.AttributeSnapshot, attributeType string) map[string]struct{} {
	keys := map[string]struct{}{}
	for _, attributes := range snapshot {
		for _, a := range attributes {
			if a.IsIndexable {
				keys[a.Key(attributeType)] = struct{}{}
			}
		}
	}
	return keys
}

// attributeAccounts returns the accounts an attribute filter evaluates.
// An empty snapshot without requested accounts evaluates nothing.
func attributeAccounts(snapshot models.AttributeSnapshot, scope Scope) []string {
	return scopedAccounts(snapshot, scope)
}
