package indexer

import (
	"context"
	"iter"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/pipeline"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// EntityIndexer syncs one (entity type, action) pair for an account.
type EntityIndexer struct {
	entityType string
	core       *core[models.IndexingEntity]
}

func NewEntityIndexer(
	entityType string,
	config Config,
	entities store.EntityStore,
	p pipeline.Pipeline,
	logger ectologger.Logger,
	contexts ...pipeline.ContextProvider,
) (*EntityIndexer, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	isIndexable, next := nextActionQuery(config.Action)

	src := source[models.IndexingEntity]{
		targetType: entityType,
		list: func(ctx context.Context, apiKey string, fromID int64, limit int, unlockedBefore time.Time) ([]models.IndexingEntity, error) {
			return entities.List(ctx, models.IndexingEntityQuery{
				EntityType:     entityType,
				APIKeys:        []string{apiKey},
				IsIndexable:    isIndexable,
				NextActions:    next,
				FromID:         fromID,
				Limit:          limit,
				UnlockedBefore: &unlockedBefore,
			})
		},
		lock:   entities.Lock,
		unlock: entities.Unlock,
		id:     func(e models.IndexingEntity) int64 { return e.ID },
		attach: func(result *models.IndexerResult, rows []models.IndexingEntity) { result.Entities = rows },
	}

	return &EntityIndexer{
		entityType: entityType,
		core: &core[models.IndexingEntity]{
			src:      src,
			config:   config,
			pipeline: p,
			contexts: contexts,
			logger:   logger,
			now:      time.Now,
		},
	}, nil
}

func (i *EntityIndexer) EntityType() string {
	return i.entityType
}

func (i *EntityIndexer) Action() models.Action {
	return i.core.config.Action
}

// Execute streams the rows of apiKey whose next action is this indexer's
// action.
func (i *EntityIndexer) Execute(ctx context.Context, apiKey string) iter.Seq[*models.IndexerResult] {
	return func(yield func(*models.IndexerResult) bool) {
		ctx, span := tracing.StartSpan(ctx, "EntityIndexer.Execute")
		defer span.End()
		i.core.execute(ctx, apiKey)(yield)
	}
}
