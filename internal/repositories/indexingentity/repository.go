package indexingentity

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/database"
	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

const (
	table      = "indexing_entity"
	entityName = "indexing entity"
	// chunkSize bounds the bind parameters of a single statement.
	chunkSize = 1000
)

var entityStruct = database.NewStruct(new(models.IndexingEntity))

var insertColumns = []string{
	"target_entity_type", "target_entity_subtype", "target_id", "target_parent_id", "api_key",
	"next_action", "last_action", "last_action_timestamp", "lock_timestamp", "is_indexable", "requires_update",
}

// Repository stores indexing entities in Postgres.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Get returns the entity with the given internal id.
func (r *Repository) Get(ctx context.Context, id int64) (*models.IndexingEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "IndexingEntityRepository.Get")
	defer span.End()

	sb := entityStruct.SelectFrom(table)
	sb.Where(sb.Equal("entity_id", id))
	query, args := sb.Build()

	var entity models.IndexingEntity
	if err := r.db.Q(ctx).GetContext(ctx, &entity, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.NewNotFoundError(entityName, "entity_id", id)
		}
		r.logger.WithContext(ctx).WithError(err).WithField("entity_id", id).Error("Failed to get indexing entity")
		return nil, err
	}

	return &entity, nil
}

// List returns entities matching q ordered by internal id.
func (r *Repository) List(ctx context.Context, q models.IndexingEntityQuery) ([]models.IndexingEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "IndexingEntityRepository.List")
	defer span.End()

	sb := entityStruct.SelectFrom(table)
	var where []string
	if q.EntityType != "" {
		where = append(where, sb.Equal("target_entity_type", q.EntityType))
	}
	if len(q.APIKeys) > 0 {
		where = append(where, sb.In("api_key", database.Args(q.APIKeys)...))
	}
	if len(q.TargetIDs) > 0 {
		where = append(where, sb.In("target_id", database.Args(q.TargetIDs)...))
	}
	if len(q.Subtypes) > 0 {
		where = append(where, sb.In("target_entity_subtype", database.Args(q.Subtypes)...))
	}
	if q.IsIndexable != nil {
		where = append(where, sb.Equal("is_indexable", *q.IsIndexable))
	}
	if q.RequiresUpdate != nil {
		where = append(where, sb.Equal("requires_update", *q.RequiresUpdate))
	}
	if len(q.NextActions) > 0 {
		where = append(where, sb.In("next_action", database.Args(q.NextActions)...))
	}
	if len(q.ExcludeNextActions) > 0 {
		where = append(where, sb.NotIn("next_action", database.Args(q.ExcludeNextActions)...))
	}
	if len(q.LastActions) > 0 {
		where = append(where, sb.In("last_action", database.Args(q.LastActions)...))
	}
	if q.FromID > 0 {
		where = append(where, sb.GreaterEqualThan("entity_id", q.FromID))
	}
	if q.UnlockedBefore != nil {
		where = append(where, sb.Or(sb.IsNull("lock_timestamp"), sb.LessThan("lock_timestamp", *q.UnlockedBefore)))
	}
	if len(where) > 0 {
		sb.Where(where...)
	}
	sb.OrderBy("entity_id").Asc()
	if q.Limit > 0 {
		sb.Limit(q.Limit)
	}
	query, args := sb.Build()

	entities := []models.IndexingEntity{}
	if err := r.db.Q(ctx).SelectContext(ctx, &entities, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"target_entity_type": q.EntityType,
			"api_keys":           q.APIKeys,
		}).Error("Failed to list indexing entities")
		return nil, err
	}

	return entities, nil
}

// Insert creates new rows. A unique violation is returned as an
// already-exists error, anything else as could-not-save.
func (r *Repository) Insert(ctx context.Context, entities []models.IndexingEntity) error {
	ctx, span := tracing.StartSpan(ctx, "IndexingEntityRepository.Insert")
	defer span.End()

	v := validator.NewIndexingEntityValidator()
	for _, entity := range entities {
		if !v.IsValid(entity) {
			r.logger.WithContext(ctx).WithFields(entityFields(entity)).Warnf("Invalid indexing entity: %v", v.Messages())
			return apperrors.NewValidationError(entityName, v.Messages())
		}
	}

	for _, chunk := range database.Chunk(entities, chunkSize) {
		ib := database.NewInsertBuilder()
		ib.InsertInto(table).Cols(insertColumns...)
		for _, e := range chunk {
			ib.Values(e.TargetEntityType, e.TargetEntitySubtype, e.TargetID, e.TargetParentID, e.APIKey,
				e.NextAction, e.LastAction, e.LastActionTimestamp, e.LockTimestamp, e.IsIndexable, e.RequiresUpdate)
		}
		query, args := ib.Build()

		if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
			fields := entityFields(chunk[0])
			fields["count"] = len(chunk)
			if database.IsUniqueViolation(err) {
				r.logger.WithContext(ctx).WithError(err).WithFields(fields).Warn("Indexing entity already exists")
				return apperrors.NewAlreadyExistsError(entityName, chunk[0].Key())
			}
			r.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("Failed to insert indexing entities")
			return apperrors.NewCouldNotSaveError(entityName, err)
		}
	}

	return nil
}

// Update applies changes to every row in ids.
func (r *Repository) Update(ctx context.Context, ids []int64, changes models.MirrorRowChanges) error {
	ctx, span := tracing.StartSpan(ctx, "IndexingEntityRepository.Update")
	defer span.End()

	if len(ids) == 0 || changes.IsEmpty() {
		return nil
	}

	for _, chunk := range database.Chunk(ids, chunkSize) {
		ub := database.NewUpdateBuilder()
		ub.Update(table)
		ub.Set(assignments(ub, changes)...)
		where := []string{ub.In("entity_id", database.Args(chunk)...)}
		if len(changes.OnlyNextActions) > 0 {
			where = append(where, ub.In("next_action", database.Args(changes.OnlyNextActions)...))
		}
		ub.Where(where...)
		query, args := ub.Build()

		if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("entity_ids", chunk).Error("Failed to update indexing entities")
			return apperrors.NewCouldNotSaveError(entityName, err)
		}
	}

	return nil
}

// Lock stamps lock_timestamp on rows that are unlocked or whose lock is
// older than staleBefore and returns the ids it locked.
func (r *Repository) Lock(ctx context.Context, ids []int64, now, staleBefore time.Time) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "IndexingEntityRepository.Lock")
	defer span.End()

	locked := []int64{}
	for _, chunk := range database.Chunk(ids, chunkSize) {
		ub := database.NewUpdateBuilder()
		ub.Update(table)
		ub.Set(ub.Assign("lock_timestamp", now))
		ub.Where(
			ub.In("entity_id", database.Args(chunk)...),
			ub.Or(ub.IsNull("lock_timestamp"), ub.LessThan("lock_timestamp", staleBefore)),
		)
		ub.SQL("RETURNING entity_id")
		query, args := ub.Build()

		var got []int64
		if err := r.db.Q(ctx).SelectContext(ctx, &got, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("entity_ids", chunk).Error("Failed to lock indexing entities")
			return nil, apperrors.NewCouldNotSaveError(entityName, err)
		}
		locked = append(locked, got...)
	}

	return locked, nil
}

// Unlock clears lock_timestamp on ids.
func (r *Repository) Unlock(ctx context.Context, ids []int64) error {
	return r.Update(ctx, ids, models.MirrorRowChanges{ClearLock: true})
}

// Delete removes rows by internal id.
func (r *Repository) Delete(ctx context.Context, ids []int64) error {
	ctx, span := tracing.StartSpan(ctx, "IndexingEntityRepository.Delete")
	defer span.End()

	for _, chunk := range database.Chunk(ids, chunkSize) {
		del := database.NewDeleteBuilder()
		del.DeleteFrom(table)
		del.Where(del.In("entity_id", database.Args(chunk)...))
		query, args := del.Build()

		if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("entity_ids", chunk).Error("Failed to delete indexing entities")
			return apperrors.NewCouldNotDeleteError(entityName, err)
		}
	}

	return nil
}

func assignments(ub *database.UpdateBuilder, c models.MirrorRowChanges) []string {
	var set []string
	if c.NextAction != nil {
		set = append(set, ub.Assign("next_action", *c.NextAction))
	}
	if c.LastAction != nil {
		set = append(set, ub.Assign("last_action", *c.LastAction))
	}
	if c.LastActionTimestamp != nil {
		set = append(set, ub.Assign("last_action_timestamp", *c.LastActionTimestamp))
	}
	if c.IsIndexable != nil {
		set = append(set, ub.Assign("is_indexable", *c.IsIndexable))
	}
	if c.RequiresUpdate != nil {
		set = append(set, ub.Assign("requires_update", *c.RequiresUpdate))
	}
	if c.ClearLock {
		set = append(set, ub.Assign("lock_timestamp", nil))
	}
	return set
}

func entityFields(e models.IndexingEntity) map[string]any {
	return map[string]any{
		"target_entity_type": e.TargetEntityType,
		"target_id":          e.TargetID,
		"target_parent_id":   e.ParentID(),
		"api_key":            e.APIKey,
	}
}
