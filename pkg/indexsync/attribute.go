package indexsync

import (
	"context"
	"iter"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

type AttributeIndexer interface {
	Indexer
	AttributeType() string
}

// AttributeSyncOrchestrator runs every registered attribute indexer for
// every requested account.
type AttributeSyncOrchestrator struct {
	*orchestrator
}

func NewAttributeSyncOrchestrator(accounts AccountCredentialsProvider, indexers []AttributeIndexer, options Options, logger ectologger.Logger) (*AttributeSyncOrchestrator, error) {
	regs := make([]registered, len(indexers))
	for i, idx := range indexers {
		regs[i] = registered{targetType: idx.AttributeType(), indexer: idx}
	}
	o, err := newOrchestrator("attribute", accounts, regs, options, logger)
	if err != nil {
		return nil, err
	}
	return &AttributeSyncOrchestrator{orchestrator: o}, nil
}

func (o *AttributeSyncOrchestrator) Execute(ctx context.Context, req SyncRequest) iter.Seq2[string, *models.IndexerResult] {
	return func(yield func(string, *models.IndexerResult) bool) {
		ctx, span := tracing.StartSpan(ctx, "AttributeSyncOrchestrator.Execute")
		defer span.End()
		o.execute(ctx, req)(yield)
	}
}
