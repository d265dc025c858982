package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/history"
	"github.com/klevu/module-m2-indexing-sub002/pkg/indexsync"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

const (
	JobEntitySync         = "entity-sync"
	JobAttributeSync      = "attribute-sync"
	JobHistoryConsolidate = "history-consolidate"
	JobHistoryClean       = "history-clean"
)

// SyncJob drains one orchestrator over every account and type. Failed
// batches are reported by the listeners and do not fail the job.
func SyncJob(name string, interval time.Duration, o indexsync.Runner, logger ectologger.Logger) Job {
	return Job{
		Name:     name,
		Interval: interval,
		Run: func(ctx context.Context) error {
			counts := map[models.IndexerResultStatus]int{}
			for _, result := range o.Execute(ctx, indexsync.SyncRequest{}) {
				counts[result.Status]++
			}
			logger.WithContext(ctx).WithFields(map[string]any{
				"job":     name,
				"batches": counts,
			}).Info("Sync job finished")
			return ctx.Err()
		},
	}
}

// ConsolidationJob folds the history of past days.
func ConsolidationJob(interval time.Duration, svc *history.ConsolidateSyncHistoryService) Job {
	return Job{
		Name:     JobHistoryConsolidate,
		Interval: interval,
		Run: func(ctx context.Context) error {
			summary, err := svc.Execute(ctx)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d of %d history groups failed to consolidate", summary.Failed, summary.Groups)
			}
			return nil
		},
	}
}

// CleanJob removes expired consolidated history.
func CleanJob(interval time.Duration, svc *history.CleanConsolidatedSyncHistoryService) Job {
	return Job{
		Name:     JobHistoryClean,
		Interval: interval,
		Run: func(ctx context.Context) error {
			summary, err := svc.Execute(ctx)
			if err != nil {
				return err
			}
			if summary.Failed > 0 {
				return fmt.Errorf("%d expired history rows could not be deleted", summary.Failed)
			}
			return nil
		},
	}
}
