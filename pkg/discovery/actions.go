package discovery

import (
	"context"

	"github.com/Gobusters/ectologger"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

// EntityActions applies discovery transitions to indexing_entity rows.
// Every call is an idempotent bulk mutation.
type EntityActions interface {
	AddIndexingEntities(ctx context.Context, entityType string, entities []models.MagentoEntity) error
	SetIndexingEntitiesToBeIndexable(ctx context.Context, ids []int64) error
	SetIndexingEntitiesRequireUpdate(ctx context.Context, ids []int64) error
	SetIndexingEntitiesToUpdate(ctx context.Context, ids []int64) error
	SetIndexingEntitiesToDelete(ctx context.Context, ids []int64) error
	PurgeIndexingEntities(ctx context.Context, ids []int64) error
}

// AttributeActions applies discovery transitions to indexing_attribute rows.
type AttributeActions interface {
	AddIndexingAttributes(ctx context.Context, attributeType string, attributes []models.MagentoAttribute) error
	SetIndexingAttributesToBeIndexable(ctx context.Context, ids []int64) error
	SetIndexingAttributesToUpdate(ctx context.Context, ids []int64) error
	SetIndexingAttributesToDelete(ctx context.Context, ids []int64) error
	SetIndexingAttributesNotIndexable(ctx context.Context, ids []int64) error
}

// StoreEntityActions implements EntityActions over an EntityStore.
type StoreEntityActions struct {
	store  store.EntityStore
	logger ectologger.Logger
}

func NewStoreEntityActions(entities store.EntityStore, logger ectologger.Logger) *StoreEntityActions {
	return &StoreEntityActions{store: entities, logger: logger}
}

// AddIndexingEntities inserts a row per source entity. Invalid rows are
// reported after the valid ones are saved.
func (a *StoreEntityActions) AddIndexingEntities(ctx context.Context, entityType string, entities []models.MagentoEntity) error {
	v := validator.NewIndexingEntityValidator()
	rows := make([]models.IndexingEntity, 0, len(entities))
	var invalid []string
	for _, e := range entities {
		row := models.IndexingEntity{
			TargetEntityType:    entityType,
			TargetEntitySubtype: e.EntitySubtype,
			TargetID:            e.EntityID,
			TargetParentID:      e.EntityParentID,
			APIKey:              e.APIKey,
			NextAction:          models.ActionNoAction,
			LastAction:          models.ActionNoAction,
			IsIndexable:         e.IsIndexable,
		}
		if e.IsIndexable {
			row.NextAction = models.ActionAdd
		}
		if !v.IsValid(row) {
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"target_entity_type": entityType,
				"target_id":          e.EntityID,
				"target_parent_id":   e.ParentID(),
				"api_key":            e.APIKey,
			}).Warnf("Skipping invalid indexing entity: %v", v.Messages())
			invalid = append(invalid, v.Messages()...)
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := a.store.Insert(ctx, rows); err != nil {
			return err
		}
	}
	if len(invalid) > 0 {
		return apperrors.NewValidationError("indexing entity", invalid)
	}
	return nil
}

func (a *StoreEntityActions) SetIndexingEntitiesToBeIndexable(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		IsIndexable: models.Ptr(true),
		NextAction:  models.Ptr(models.ActionAdd),
	})
}

// SetIndexingEntitiesRequireUpdate flags rows dirty for the requires-update
// pass.
func (a *StoreEntityActions) SetIndexingEntitiesRequireUpdate(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		RequiresUpdate: models.Ptr(true),
	})
}

func (a *StoreEntityActions) SetIndexingEntitiesToUpdate(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		NextAction:      models.Ptr(models.ActionUpdate),
		OnlyNextActions: []models.Action{models.ActionNoAction},
	})
}

// SetIndexingEntitiesToDelete queues a Delete, replacing any pending Add
// or Update.
func (a *StoreEntityActions) SetIndexingEntitiesToDelete(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		NextAction: models.Ptr(models.ActionDelete),
	})
}

func (a *StoreEntityActions) PurgeIndexingEntities(ctx context.Context, ids []int64) error {
	return a.store.Delete(ctx, ids)
}

// StoreAttributeActions implements AttributeActions over an AttributeStore.
type StoreAttributeActions struct {
	store  store.AttributeStore
	logger ectologger.Logger
}

func NewStoreAttributeActions(attributes store.AttributeStore, logger ectologger.Logger) *StoreAttributeActions {
	return &StoreAttributeActions{store: attributes, logger: logger}
}

func (a *StoreAttributeActions) AddIndexingAttributes(ctx context.Context, attributeType string, attributes []models.MagentoAttribute) error {
	v := validator.NewIndexingAttributeValidator()
	rows := make([]models.IndexingAttribute, 0, len(attributes))
	var invalid []string
	for _, attr := range attributes {
		row := models.IndexingAttribute{
			TargetAttributeType: attributeType,
			TargetID:            attr.AttributeID,
			TargetCode:          attr.AttributeCode,
			APIKey:              attr.APIKey,
			NextAction:          models.ActionNoAction,
			LastAction:          models.ActionNoAction,
			IsIndexable:         attr.IsIndexable,
		}
		if attr.IsIndexable {
			row.NextAction = models.ActionAdd
		}
		if !v.IsValid(row) {
			a.logger.WithContext(ctx).WithFields(map[string]any{
				"target_attribute_type": attributeType,
				"target_id":             attr.AttributeID,
				"target_code":           attr.AttributeCode,
				"api_key":               attr.APIKey,
			}).Warnf("Skipping invalid indexing attribute: %v", v.Messages())
			invalid = append(invalid, v.Messages()...)
			continue
		}
		rows = append(rows, row)
	}

	if len(rows) > 0 {
		if err := a.store.Insert(ctx, rows); err != nil {
			return err
		}
	}
	if len(invalid) > 0 {
		return apperrors.NewValidationError("indexing attribute", invalid)
	}
	return nil
}

func (a *StoreAttributeActions) SetIndexingAttributesToBeIndexable(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		IsIndexable: models.Ptr(true),
		NextAction:  models.Ptr(models.ActionAdd),
	})
}

func (a *StoreAttributeActions) SetIndexingAttributesToUpdate(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		NextAction:      models.Ptr(models.ActionUpdate),
		OnlyNextActions: []models.Action{models.ActionNoAction},
	})
}

func (a *StoreAttributeActions) SetIndexingAttributesToDelete(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		NextAction: models.Ptr(models.ActionDelete),
	})
}

// SetIndexingAttributesNotIndexable keeps the rows but drops them from
// sync. Attributes that were never synced are not deleted remotely.
func (a *StoreAttributeActions) SetIndexingAttributesNotIndexable(ctx context.Context, ids []int64) error {
	return a.store.Update(ctx, ids, models.MirrorRowChanges{
		IsIndexable: models.Ptr(false),
		NextAction:  models.Ptr(models.ActionNoAction),
	})
}
