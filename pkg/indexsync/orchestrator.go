// Package indexsync fans sync runs out over accounts and registered
// type::action indexers.
package indexsync

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"slices"
	"strings"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/redis"
)

const DefaultRunLockTTL = time.Hour

// AccountCredentialsProvider lists the accounts that can be synced.
type AccountCredentialsProvider interface {
	Accounts(ctx context.Context) ([]models.AccountCredentials, error)
}

// RunLocker keeps two processes from running the same sync key. It
// returns redis.ErrLockNotAcquired when the key is held elsewhere.
type RunLocker interface {
	WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error
}

// Indexer streams the batches of one type::action for an account.
type Indexer interface {
	Action() models.Action
	Execute(ctx context.Context, apiKey string) iter.Seq[*models.IndexerResult]
}

// Runner is satisfied by both sync orchestrators.
type Runner interface {
	Execute(ctx context.Context, req SyncRequest) iter.Seq2[string, *models.IndexerResult]
}

// SyncRequest narrows a sync orchestration. Empty fields do not filter.
type SyncRequest struct {
	APIKeys []string `json:"api_keys"`
	Types   []string `json:"types"`
}

// Run identifies one indexer run for one account.
type Run struct {
	APIKey string
	Type   string
	Action models.Action
}

// Key is apiKey~~type::action.
func (r Run) Key() string {
	return fmt.Sprintf("%s~~%s", r.APIKey, IndexerKey(r.Type, r.Action))
}

// IndexerKey is type::action.
func IndexerKey(targetType string, action models.Action) string {
	return targetType + "::" + action.String()
}

// BatchListener sees every batch before the next one is produced.
type BatchListener interface {
	OnBatch(ctx context.Context, run Run, result *models.IndexerResult)
}

type BatchListenerFunc func(ctx context.Context, run Run, result *models.IndexerResult)

func (f BatchListenerFunc) OnBatch(ctx context.Context, run Run, result *models.IndexerResult) {
	f(ctx, run, result)
}

// CompletionListener is told when an orchestration has finished.
type CompletionListener interface {
	OnComplete(ctx context.Context, event models.SyncCompletedEvent)
}

type CompletionListenerFunc func(ctx context.Context, event models.SyncCompletedEvent)

func (f CompletionListenerFunc) OnComplete(ctx context.Context, event models.SyncCompletedEvent) {
	f(ctx, event)
}

// Options configures the locking and listeners of an orchestrator.
type Options struct {
	Locker              RunLocker
	LockTTL             time.Duration
	BatchListeners      []BatchListener
	CompletionListeners []CompletionListener
}

type registered struct {
	targetType string
	indexer    Indexer
}

type orchestrator struct {
	kind     string
	accounts AccountCredentialsProvider
	indexers []registered
	options  Options
	logger   ectologger.Logger
	now      func() time.Time
}

func newOrchestrator(kind string, accounts AccountCredentialsProvider, indexers []registered, options Options, logger ectologger.Logger) (*orchestrator, error) {
	seen := map[string]struct{}{}
	for _, r := range indexers {
		if r.targetType == "" {
			return nil, fmt.Errorf("%s indexer %T has an empty type", kind, r.indexer)
		}
		key := IndexerKey(r.targetType, r.indexer.Action())
		if _, ok := seen[key]; ok {
			return nil, fmt.Errorf("%s indexer %s is registered twice", kind, key)
		}
		seen[key] = struct{}{}
	}
	slices.SortFunc(indexers, func(a, b registered) int {
		return strings.Compare(IndexerKey(a.targetType, a.indexer.Action()), IndexerKey(b.targetType, b.indexer.Action()))
	})
	if options.LockTTL <= 0 {
		options.LockTTL = DefaultRunLockTTL
	}
	return &orchestrator{
		kind:     kind,
		accounts: accounts,
		indexers: indexers,
		options:  options,
		logger:   logger,
		now:      time.Now,
	}, nil
}

// IndexerKeys lists the registered type::action keys.
func (o *orchestrator) IndexerKeys() []string {
	keys := make([]string, len(o.indexers))
	for i, r := range o.indexers {
		keys[i] = IndexerKey(r.targetType, r.indexer.Action())
	}
	return keys
}

func (o *orchestrator) execute(ctx context.Context, req SyncRequest) iter.Seq2[string, *models.IndexerResult] {
	return func(yield func(string, *models.IndexerResult) bool) {
		event := models.SyncCompletedEvent{
			ID:        uuid.NewString(),
			Kind:      o.kind,
			StartedAt: o.now().UTC(),
			Runs:      []models.SyncRunSummary{},
		}

		for _, apiKey := range o.resolveAccounts(ctx, req.APIKeys) {
			for _, r := range o.indexers {
				if len(req.Types) > 0 && !ectolinq.Contains(req.Types, r.targetType) {
					continue
				}
				run := Run{APIKey: apiKey, Type: r.targetType, Action: r.indexer.Action()}
				summary, more := o.runOne(ctx, run, r.indexer, yield)
				event.Runs = append(event.Runs, summary)
				if !more {
					return
				}
			}
		}

		event.FinishedAt = o.now().UTC()
		for _, l := range o.options.CompletionListeners {
			l.OnComplete(ctx, event)
		}
	}
}

// runOne reports false when the consumer stopped iterating.
func (o *orchestrator) runOne(ctx context.Context, run Run, indexer Indexer, yield func(string, *models.IndexerResult) bool) (models.SyncRunSummary, bool) {
	key := run.Key()
	summary := models.SyncRunSummary{
		Key:     key,
		APIKey:  run.APIKey,
		Type:    run.Type,
		Action:  run.Action,
		Batches: map[models.IndexerResultStatus]int{},
	}
	log := o.logger.WithContext(ctx).WithField("sync_key", key)

	more := true
	body := func() error {
		for result := range indexer.Execute(ctx, run.APIKey) {
			summary.Batches[result.Status]++
			for _, l := range o.options.BatchListeners {
				l.OnBatch(ctx, run, result)
			}
			if !yield(key, result) {
				more = false
				return nil
			}
		}
		return nil
	}

	if o.options.Locker == nil {
		_ = body()
		return summary, more
	}

	err := o.options.Locker.WithLock(ctx, "sync:"+key, o.options.LockTTL, body)
	switch {
	case errors.Is(err, redis.ErrLockNotAcquired):
		summary.Skipped = true
		metrics.SyncRunsSkipped.WithLabelValues(run.Type, run.Action.String()).Inc()
		log.Info("Sync run is already in progress elsewhere, skipping")
	case err != nil:
		summary.Skipped = true
		log.WithError(err).Error("Failed to lock sync run")
	}
	return summary, more
}

// resolveAccounts returns the api keys to sync in provider order. Unknown
// requested keys and provider failures are logged and skipped.
func (o *orchestrator) resolveAccounts(ctx context.Context, requested []string) []string {
	accounts, err := o.accounts.Accounts(ctx)
	if err != nil {
		o.logger.WithContext(ctx).WithError(err).Error("Failed to resolve accounts to sync")
		return nil
	}

	known := map[string]struct{}{}
	apiKeys := []string{}
	for _, a := range accounts {
		if a.APIKey == "" {
			o.logger.WithContext(ctx).Warn("Skipping account without an api key")
			continue
		}
		if _, ok := known[a.APIKey]; ok {
			continue
		}
		known[a.APIKey] = struct{}{}
		if len(requested) > 0 && !ectolinq.Contains(requested, a.APIKey) {
			continue
		}
		apiKeys = append(apiKeys, a.APIKey)
	}

	for _, apiKey := range requested {
		if _, ok := known[apiKey]; !ok {
			o.logger.WithContext(ctx).WithField("api_key", apiKey).Warn("No credentials found for requested api key")
		}
	}
	return apiKeys
}
