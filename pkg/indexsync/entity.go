package indexsync

import (
	"context"
	"iter"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

type EntityIndexer interface {
	Indexer
	EntityType() string
}

// EntitySyncOrchestrator runs every registered entity indexer for every
// requested account and raises a completion event at the end.
type EntitySyncOrchestrator struct {
	*orchestrator
}

func NewEntitySyncOrchestrator(accounts AccountCredentialsProvider, indexers []EntityIndexer, options Options, logger ectologger.Logger) (*EntitySyncOrchestrator, error) {
	regs := make([]registered, len(indexers))
	for i, idx := range indexers {
		regs[i] = registered{targetType: idx.EntityType(), indexer: idx}
	}
	o, err := newOrchestrator("entity", accounts, regs, options, logger)
	if err != nil {
		return nil, err
	}
	return &EntitySyncOrchestrator{orchestrator: o}, nil
}

// Execute yields every batch keyed apiKey~~type::action.
func (o *EntitySyncOrchestrator) Execute(ctx context.Context, req SyncRequest) iter.Seq2[string, *models.IndexerResult] {
	return func(yield func(string, *models.IndexerResult) bool) {
		ctx, span := tracing.StartSpan(ctx, "EntitySyncOrchestrator.Execute")
		defer span.End()
		o.execute(ctx, req)(yield)
	}
}
