package indexsync

import (
	"context"

	"github.com/klevu/module-m2-indexing-sub002/pkg/history"
	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// EntityHistoryListener writes the history rows of every entity batch.
func EntityHistoryListener(svc *history.RecordIndexingEntityHistoryService) BatchListener {
	return BatchListenerFunc(func(ctx context.Context, run Run, result *models.IndexerResult) {
		svc.Execute(ctx, result, run.Action, result.Entities)
	})
}

// EntityActionsListener marks the rows of successful entity batches as
// synced. Errors are logged by the service.
func EntityActionsListener(svc *history.UpdateIndexingEntitiesActionsService) BatchListener {
	return BatchListenerFunc(func(ctx context.Context, run Run, result *models.IndexerResult) {
		_ = svc.Execute(ctx, result, run.Action, result.Entities)
	})
}

func AttributeActionsListener(svc *history.UpdateIndexingAttributesActionsService) BatchListener {
	return BatchListenerFunc(func(ctx context.Context, run Run, result *models.IndexerResult) {
		_ = svc.Execute(ctx, result, run.Action, result.Attributes)
	})
}

// MetricsListener counts batches by status and records by outcome.
func MetricsListener() BatchListener {
	return BatchListenerFunc(func(_ context.Context, run Run, result *models.IndexerResult) {
		action := run.Action.String()
		metrics.SyncBatchesTotal.WithLabelValues(run.Type, action, string(result.Status)).Inc()

		var succeeded, failed int
		for _, o := range result.Payload {
			if o.IsSuccess {
				succeeded++
			} else {
				failed++
			}
		}
		if result.Status == models.IndexerResultStatusError {
			failed += len(result.Entities) + len(result.Attributes)
		}
		metrics.SyncRecordsTotal.WithLabelValues(run.Type, action, "success").Add(float64(succeeded))
		metrics.SyncRecordsTotal.WithLabelValues(run.Type, action, "failure").Add(float64(failed))
	})
}

// MetricsCompletionListener counts finished orchestrations.
func MetricsCompletionListener() CompletionListener {
	return CompletionListenerFunc(func(_ context.Context, event models.SyncCompletedEvent) {
		metrics.SyncOrchestrationsTotal.WithLabelValues(event.Kind).Inc()
	})
}
