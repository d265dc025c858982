package indexer

import (
	"context"
	"fmt"
	"iter"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/credentials"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/pipeline"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// RemoteSyncAction pushes one attribute change to the remote service.
type RemoteSyncAction interface {
	Execute(ctx context.Context, creds models.AccountCredentials, attribute models.IndexingAttribute, attributeType string) models.SyncResult
}

// RemoteSyncActionFunc adapts a function to RemoteSyncAction.
type RemoteSyncActionFunc func(ctx context.Context, creds models.AccountCredentials, attribute models.IndexingAttribute, attributeType string) models.SyncResult

func (f RemoteSyncActionFunc) Execute(ctx context.Context, creds models.AccountCredentials, attribute models.IndexingAttribute, attributeType string) models.SyncResult {
	return f(ctx, creds, attribute, attributeType)
}

// AttributeDispatcher sends attribute rows through a RemoteSyncAction
// using the credentials of the pipeline context.
func AttributeDispatcher(remote RemoteSyncAction) pipeline.Dispatcher {
	return pipeline.DispatcherFunc(func(ctx context.Context, item pipeline.Item, pctx pipeline.Context) (models.SyncResult, error) {
		attribute, ok := item.Record.(models.IndexingAttribute)
		if !ok {
			return models.SyncResult{}, fmt.Errorf("expected models.IndexingAttribute, received %T", item.Record)
		}
		return remote.Execute(ctx, credentials.FromContext(pctx), attribute, attribute.TargetAttributeType), nil
	})
}

// DefaultAttributePipeline validates each attribute row and dispatches it
// to remote.
func DefaultAttributePipeline(remote RemoteSyncAction) (pipeline.Pipeline, error) {
	r := pipeline.NewRegistry()
	r.RegisterDispatcher("remote_attribute", AttributeDispatcher(remote))
	return pipeline.NewBuilder(r).Build(pipeline.Definition{Stages: []pipeline.StageDefinition{
		{ID: "validate_attribute", Kind: pipeline.StageValidate, Args: map[string]any{"validator": "indexing_attribute"}},
		{ID: "sync_attribute", Kind: pipeline.StageDispatch, Args: map[string]any{"dispatcher": "remote_attribute"}},
	}})
}

// AttributeIndexer syncs one (attribute type, action) pair for an account.
type AttributeIndexer struct {
	attributeType string
	core          *core[models.IndexingAttribute]
}

func NewAttributeIndexer(
	attributeType string,
	config Config,
	attributes store.AttributeStore,
	p pipeline.Pipeline,
	logger ectologger.Logger,
	contexts ...pipeline.ContextProvider,
) (*AttributeIndexer, error) {
	config, err := config.withDefaults()
	if err != nil {
		return nil, err
	}
	isIndexable, next := nextActionQuery(config.Action)

	src := source[models.IndexingAttribute]{
		targetType: attributeType,
		list: func(ctx context.Context, apiKey string, fromID int64, limit int, unlockedBefore time.Time) ([]models.IndexingAttribute, error) {
			return attributes.List(ctx, models.IndexingAttributeQuery{
				AttributeType:  attributeType,
				APIKeys:        []string{apiKey},
				IsIndexable:    isIndexable,
				NextActions:    next,
				FromID:         fromID,
				Limit:          limit,
				UnlockedBefore: &unlockedBefore,
			})
		},
		lock:   attributes.Lock,
		unlock: attributes.Unlock,
		id:     func(a models.IndexingAttribute) int64 { return a.ID },
		attach: func(result *models.IndexerResult, rows []models.IndexingAttribute) { result.Attributes = rows },
	}

	return &AttributeIndexer{
		attributeType: attributeType,
		core: &core[models.IndexingAttribute]{
			src:      src,
			config:   config,
			pipeline: p,
			contexts: contexts,
			logger:   logger,
			now:      time.Now,
		},
	}, nil
}

func (i *AttributeIndexer) AttributeType() string {
	return i.attributeType
}

func (i *AttributeIndexer) Action() models.Action {
	return i.core.config.Action
}

func (i *AttributeIndexer) Execute(ctx context.Context, apiKey string) iter.Seq[*models.IndexerResult] {
	return func(yield func(*models.IndexerResult) bool) {
		ctx, span := tracing.StartSpan(ctx, "AttributeIndexer.Execute")
		defer span.End()
		i.core.execute(ctx, apiKey)(yield)
	}
}
