// Package indexer streams mirror rows that need one sync action through a
// pipeline, one locked batch at a time.
package indexer

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/pipeline"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

const DefaultLockTTL = 30 * time.Minute

// Config selects the rows an indexer syncs and how many it locks at once.
type Config struct {
	Action    models.Action
	BatchSize int
	// LockTTL is how long a row lock is honored. Older locks are taken over.
	LockTTL time.Duration
}

func (c Config) withDefaults() (Config, error) {
	if c.Action != models.ActionAdd && c.Action != models.ActionUpdate && c.Action != models.ActionDelete {
		return c, fmt.Errorf("indexers sync Add, Update or Delete, got %q", c.Action)
	}
	if c.BatchSize == 0 {
		c.BatchSize = validator.DefaultBatchSize
	}
	if err := validator.ValidateBatchSize(c.BatchSize); err != nil {
		return c, err
	}
	if c.LockTTL <= 0 {
		c.LockTTL = DefaultLockTTL
	}
	return c, nil
}

// source adapts one mirror table to the batch loop.
type source[T any] struct {
	targetType string
	list       func(ctx context.Context, apiKey string, fromID int64, limit int, unlockedBefore time.Time) ([]T, error)
	lock       func(ctx context.Context, ids []int64, now, staleBefore time.Time) ([]int64, error)
	unlock     func(ctx context.Context, ids []int64) error
	id         func(T) int64
	attach     func(result *models.IndexerResult, rows []T)
}

type core[T any] struct {
	src      source[T]
	config   Config
	pipeline pipeline.Pipeline
	contexts []pipeline.ContextProvider
	logger   ectologger.Logger
	now      func() time.Time
}

// execute yields one result per batch. Rows stay locked until the
// consumer asks for the next batch.
func (c *core[T]) execute(ctx context.Context, apiKey string) iter.Seq[*models.IndexerResult] {
	return func(yield func(*models.IndexerResult) bool) {
		log := c.logger.WithContext(ctx).WithFields(map[string]any{
			"api_key":     apiKey,
			"target_type": c.src.targetType,
			"action":      c.config.Action,
		})

		pctx, err := pipeline.BuildContext(ctx, apiKey, c.contexts...)
		if err != nil {
			log.WithError(err).Error("Failed to build pipeline context")
			yield(c.errorResult(pipeline.FlattenErrors(err)))
			return
		}

		var fromID int64
		for {
			if ctx.Err() != nil {
				return
			}
			now := c.now()
			staleBefore := now.Add(-c.config.LockTTL)

			rows, err := c.src.list(ctx, apiKey, fromID, c.config.BatchSize, staleBefore)
			if err != nil {
				log.WithError(err).WithField("from_id", fromID).Error("Failed to load rows to sync")
				yield(c.errorResult([]string{err.Error()}))
				return
			}
			if len(rows) == 0 {
				return
			}
			lastID := c.src.id(rows[len(rows)-1])

			result, locked := c.batch(ctx, log, rows, now, staleBefore, pctx)
			more := yield(result)
			if len(locked) > 0 {
				if err := c.src.unlock(ctx, locked); err != nil {
					log.WithError(err).WithField("ids", locked).Error("Failed to unlock synced rows")
				}
			}
			if !more || lastID == 0 || len(rows) < c.config.BatchSize {
				return
			}
			fromID = lastID + 1
		}
	}
}

func (c *core[T]) batch(ctx context.Context, log ectologger.Logger, rows []T, now, staleBefore time.Time, pctx pipeline.Context) (*models.IndexerResult, []int64) {
	ids := make([]int64, len(rows))
	for i, row := range rows {
		ids[i] = c.src.id(row)
	}

	locked, err := c.src.lock(ctx, ids, now, staleBefore)
	if err != nil {
		log.WithError(err).WithField("ids", ids).Error("Failed to lock rows to sync")
		return c.errorResult([]string{err.Error()}), nil
	}
	if len(locked) < len(ids) {
		log.WithField("skipped", len(ids)-len(locked)).Debugf("Skipping rows locked by another sync run")
	}

	held := make(map[int64]struct{}, len(locked))
	for _, id := range locked {
		held[id] = struct{}{}
	}
	batch := make([]T, 0, len(locked))
	payload := make(pipeline.Payload, 0, len(locked))
	for _, row := range rows {
		id := c.src.id(row)
		if _, ok := held[id]; ok {
			batch = append(batch, row)
			payload = append(payload, pipeline.Item{ID: id, Record: row})
		}
	}

	result := &models.IndexerResult{Action: c.config.Action, Messages: []string{}}
	c.src.attach(result, batch)
	if len(payload) == 0 {
		result.Status = models.IndexerResultStatusNoop
		return result, locked
	}

	outcomes, err := c.pipeline.Execute(ctx, payload, pctx)
	if err != nil {
		log.WithError(err).WithField("ids", locked).Error("Sync pipeline failed")
		result.Status = models.IndexerResultStatusError
		result.Messages = pipeline.FlattenErrors(err)
		return result, locked
	}

	result.Payload = outcomes
	result.Status = Status(outcomes)
	for _, o := range outcomes {
		if !o.IsSuccess {
			for _, msg := range o.Messages {
				result.Messages = append(result.Messages, fmt.Sprintf("%d: %s", o.ID, msg))
			}
		}
	}
	return result, locked
}

func (c *core[T]) errorResult(messages []string) *models.IndexerResult {
	return &models.IndexerResult{
		Status:   models.IndexerResultStatusError,
		Action:   c.config.Action,
		Messages: messages,
	}
}

// Status derives a batch status from its pipeline outcomes. Any failed
// item makes the batch Partial, even when every item failed.
func Status(outcomes []models.ItemOutcome) models.IndexerResultStatus {
	if len(outcomes) == 0 {
		return models.IndexerResultStatusNoop
	}
	for _, o := range outcomes {
		if !o.IsSuccess {
			return models.IndexerResultStatusPartial
		}
	}
	return models.IndexerResultStatusSuccess
}

func nextActionQuery(action models.Action) (isIndexable *bool, next []models.Action) {
	if action == models.ActionDelete {
		return nil, []models.Action{models.ActionDelete}
	}
	return models.Ptr(true), []models.Action{action}
}
