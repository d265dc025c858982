package synchistory

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/klevu/module-m2-indexing-sub002/pkg/database"
	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

const (
	historyName       = "sync history record"
	consolidationName = "sync history consolidation record"
	chunkSize         = 1000
	actionDate        = "(action_timestamp AT TIME ZONE 'UTC')::date"
)

var historyColumns = []string{
	"target_entity_type", "target_id", "target_parent_id", "api_key",
	"action", "action_timestamp", "is_success", "message",
}

// Repository stores sync history and its consolidated form.
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

// WithTx runs fn in one transaction shared by every repository call made
// with the ctx it receives.
func (r *Repository) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return database.WithTx(ctx, r.db, fn)
}

func (r *Repository) InsertHistory(ctx context.Context, records []models.SyncHistoryEntityRecord) error {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.InsertHistory")
	defer span.End()

	v := validator.NewSyncHistoryEntityRecordValidator()
	for _, record := range records {
		if !v.IsValid(record) {
			return apperrors.NewValidationError(historyName, v.Messages())
		}
	}

	for _, chunk := range database.Chunk(records, chunkSize) {
		ib := database.NewInsertBuilder()
		ib.InsertInto(historyTable).Cols(historyColumns...)
		for _, h := range chunk {
			ib.Values(h.TargetEntityType, h.TargetID, h.TargetParentID, h.APIKey,
				h.Action, h.ActionTimestamp.UTC(), h.IsSuccess, h.Message)
		}
		query, args := ib.Build()

		if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"api_key":            chunk[0].APIKey,
				"target_entity_type": chunk[0].TargetEntityType,
				"count":              len(chunk),
			}).Error("Failed to insert sync history")
			return apperrors.NewCouldNotSaveError(historyName, err)
		}
	}

	return nil
}

// ListHistoryGroups returns the distinct consolidation keys of history
// rows recorded before the given time.
func (r *Repository) ListHistoryGroups(ctx context.Context, before time.Time) ([]models.SyncHistoryGroup, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.ListHistoryGroups")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select(
		actionDate+" AS action_date",
		"api_key",
		"target_entity_type",
		"target_id",
		"COALESCE(target_parent_id, 0) AS target_parent_id",
	)
	sb.From(historyTable)
	sb.Where(sb.LessThan("action_timestamp", before.UTC()))
	sb.GroupBy("1", "2", "3", "4", "5")
	sb.OrderBy("1", "2", "3", "4", "5")
	query, args := sb.Build()

	groups := []models.SyncHistoryGroup{}
	if err := r.db.Q(ctx).SelectContext(ctx, &groups, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list sync history groups")
		return nil, err
	}

	return groups, nil
}

// ListHistoryForGroup returns the group's rows in chronological order.
func (r *Repository) ListHistoryForGroup(ctx context.Context, group models.SyncHistoryGroup) ([]models.SyncHistoryEntityRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.ListHistoryForGroup")
	defer span.End()

	sb := historyStruct.SelectFrom(historyTable)
	sb.Where(
		sb.Equal(actionDate, group.Date.Format(time.DateOnly)),
		sb.Equal("api_key", group.APIKey),
		sb.Equal("target_entity_type", group.TargetEntityType),
		sb.Equal("target_id", group.TargetID),
		sb.Equal("COALESCE(target_parent_id, 0)", group.TargetParentID),
	)
	sb.OrderBy("action_timestamp", "sync_history_id").Asc()
	query, args := sb.Build()

	records := []models.SyncHistoryEntityRecord{}
	if err := r.db.Q(ctx).SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("group", group.String()).Error("Failed to list sync history for group")
		return nil, err
	}

	return records, nil
}

func (r *Repository) DeleteHistory(ctx context.Context, ids []int64) error {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.DeleteHistory")
	defer span.End()

	for _, chunk := range database.Chunk(ids, chunkSize) {
		del := database.NewDeleteBuilder()
		del.DeleteFrom(historyTable)
		del.Where(del.In("sync_history_id", database.Args(chunk)...))
		query, args := del.Build()

		if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithField("sync_history_ids", chunk).Error("Failed to delete sync history")
			return apperrors.NewCouldNotDeleteError(historyName, err)
		}
	}

	return nil
}

// SaveConsolidation inserts the record, or appends its history to the
// existing record with the same key.
func (r *Repository) SaveConsolidation(ctx context.Context, record *models.SyncHistoryEntityConsolidationRecord) error {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.SaveConsolidation")
	defer span.End()

	v := validator.NewSyncHistoryConsolidationRecordValidator()
	if !v.IsValid(record) {
		return apperrors.NewValidationError(consolidationName, v.Messages())
	}

	row := FromConsolidation(record)
	ib := database.NewInsertBuilder()
	ib.InsertInto(consolidationTable).
		Cols("target_entity_type", "target_id", "target_parent_id", "api_key", "history", "date").
		Values(row.TargetEntityType, row.TargetID, row.TargetParentID, row.APIKey, row.History, row.Date.Format(time.DateOnly))
	ub := ib.OnConflict("date", "api_key", "target_entity_type", "target_id", "target_parent_id")
	ub.Set(ub.Assign("history", sqlbuilder.Raw(consolidationTable+".history || EXCLUDED.history")))
	query, args := ib.Build()

	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"api_key":            record.APIKey,
			"target_entity_type": record.TargetEntityType,
			"target_id":          record.TargetID,
			"target_parent_id":   record.ParentID(),
		}).Error("Failed to save sync history consolidation")
		return apperrors.NewCouldNotSaveError(consolidationName, err)
	}

	return nil
}

// ListConsolidations returns consolidation records for an account,
// optionally limited to target ids, newest first.
func (r *Repository) ListConsolidations(ctx context.Context, apiKey string, targetIDs []int64) ([]*models.SyncHistoryEntityConsolidationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.ListConsolidations")
	defer span.End()

	sb := consolidationStruct.SelectFrom(consolidationTable)
	where := []string{sb.Equal("api_key", apiKey)}
	if len(targetIDs) > 0 {
		where = append(where, sb.In("target_id", database.Args(targetIDs)...))
	}
	sb.Where(where...)
	sb.OrderBy("date").Desc()
	query, args := sb.Build()

	rows := []ConsolidationRow{}
	if err := r.db.Q(ctx).SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("api_key", apiKey).Error("Failed to list sync history consolidations")
		return nil, err
	}

	records := make([]*models.SyncHistoryEntityConsolidationRecord, len(rows))
	for i := range rows {
		records[i] = ToConsolidation(&rows[i])
	}
	return records, nil
}

// ListConsolidationIDsOnOrBefore returns ids of records dated on or before cutoff.
func (r *Repository) ListConsolidationIDsOnOrBefore(ctx context.Context, cutoff time.Time) ([]int64, error) {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.ListConsolidationIDsOnOrBefore")
	defer span.End()

	sb := database.NewSelectBuilder()
	sb.Select("sync_history_consolidation_id").From(consolidationTable)
	sb.Where(sb.LessEqualThan("date", cutoff.Format(time.DateOnly)))
	sb.OrderBy("sync_history_consolidation_id")
	query, args := sb.Build()

	ids := []int64{}
	if err := r.db.Q(ctx).SelectContext(ctx, &ids, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("cutoff", cutoff).Error("Failed to list expired sync history consolidations")
		return nil, err
	}

	return ids, nil
}

func (r *Repository) DeleteConsolidation(ctx context.Context, id int64) error {
	ctx, span := tracing.StartSpan(ctx, "SyncHistoryRepository.DeleteConsolidation")
	defer span.End()

	del := database.NewDeleteBuilder()
	del.DeleteFrom(consolidationTable)
	del.Where(del.Equal("sync_history_consolidation_id", id))
	query, args := del.Build()

	if _, err := r.db.Q(ctx).ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithField("sync_history_consolidation_id", id).Error("Failed to delete sync history consolidation")
		return apperrors.NewCouldNotDeleteError(consolidationName, err)
	}

	return nil
}
