// Package app wires the indexing components together.
package app

import (
	"fmt"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/config"
	"github.com/klevu/module-m2-indexing-sub002/pkg/credentials"
	"github.com/klevu/module-m2-indexing-sub002/pkg/discovery"
	"github.com/klevu/module-m2-indexing-sub002/pkg/filter"
	"github.com/klevu/module-m2-indexing-sub002/pkg/health"
	"github.com/klevu/module-m2-indexing-sub002/pkg/history"
	"github.com/klevu/module-m2-indexing-sub002/pkg/indexer"
	"github.com/klevu/module-m2-indexing-sub002/pkg/indexsync"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/notification"
	"github.com/klevu/module-m2-indexing-sub002/pkg/pipeline"
	"github.com/klevu/module-m2-indexing-sub002/pkg/routes"
	discoveryroutes "github.com/klevu/module-m2-indexing-sub002/pkg/routes/discovery"
	historyroutes "github.com/klevu/module-m2-indexing-sub002/pkg/routes/history"
	"github.com/klevu/module-m2-indexing-sub002/pkg/routes/syncrun"
	"github.com/klevu/module-m2-indexing-sub002/pkg/scheduler"
	"github.com/klevu/module-m2-indexing-sub002/pkg/store"
)

var syncActions = []models.Action{models.ActionAdd, models.ActionUpdate, models.ActionDelete}

// Deps are the connections the services are built on.
type Deps struct {
	Config     *config.Config
	Entities   store.EntityStore
	Attributes store.AttributeStore
	History    store.HistoryStore
	Locker     indexsync.RunLocker
	Publisher  notification.Publisher
	Logger     ectologger.Logger
}

// Services holds every domain component of the process.
type Services struct {
	deps Deps

	Accounts      *credentials.StaticProvider
	Notifier      *notification.KafkaNotifier
	Records       *notification.RecordPublisher
	EntitySync    *indexsync.EntitySyncOrchestrator
	AttributeSync *indexsync.AttributeSyncOrchestrator
	Consolidate   *history.ConsolidateSyncHistoryService
	Clean         *history.CleanConsolidatedSyncHistoryService
	History       *history.SyncHistoryQueryService
	Scheduler     *scheduler.Scheduler
}

func NewServices(d Deps) (*Services, error) {
	cfg := d.Config
	accounts, err := cfg.AccountCredentials()
	if err != nil {
		return nil, err
	}
	provider, err := credentials.NewStaticProvider(accounts)
	if err != nil {
		return nil, err
	}

	topics := cfg.Topics()
	s := &Services{
		deps:     d,
		Accounts: provider,
		Notifier: notification.NewKafkaNotifier(d.Publisher, topics.Notifications, d.Logger),
		Records:  notification.NewRecordPublisher(d.Publisher, topics.Records),
	}

	s.Consolidate = history.NewConsolidateSyncHistoryService(d.History, d.Logger)
	s.History = history.NewSyncHistoryQueryService(d.History, d.Logger)
	s.Clean, err = history.NewCleanConsolidatedSyncHistoryService(d.History, cfg.HistoryRetentionDays, d.Logger)
	if err != nil {
		return nil, err
	}

	registry := pipeline.NewRegistry()
	s.Records.Register(registry)
	builder := pipeline.NewBuilder(registry)
	contexts := credentials.NewContextProvider(provider)

	entityIndexers := make([]indexsync.EntityIndexer, 0, len(cfg.EntityTypes)*len(syncActions))
	for _, entityType := range cfg.EntityTypes {
		for _, action := range syncActions {
			p, err := s.buildPipeline(builder, cfg.EntityPipelinePath, entityType, action)
			if err != nil {
				return nil, err
			}
			idx, err := indexer.NewEntityIndexer(entityType, s.indexerConfig(action), d.Entities, p, d.Logger, contexts)
			if err != nil {
				return nil, err
			}
			entityIndexers = append(entityIndexers, idx)
		}
	}

	attributeIndexers := make([]indexsync.AttributeIndexer, 0, len(cfg.AttributeTypes)*len(syncActions))
	for _, attributeType := range cfg.AttributeTypes {
		for _, action := range syncActions {
			p, err := s.buildPipeline(builder, cfg.AttributePipelinePath, attributeType, action)
			if err != nil {
				return nil, err
			}
			idx, err := indexer.NewAttributeIndexer(attributeType, s.indexerConfig(action), d.Attributes, p, d.Logger, contexts)
			if err != nil {
				return nil, err
			}
			attributeIndexers = append(attributeIndexers, idx)
		}
	}

	completion := []indexsync.CompletionListener{
		indexsync.MetricsCompletionListener(),
		notification.NewSyncEventPublisher(d.Publisher, topics.SyncEvents, d.Logger),
	}

	s.EntitySync, err = indexsync.NewEntitySyncOrchestrator(provider, entityIndexers, indexsync.Options{
		Locker:  d.Locker,
		LockTTL: cfg.RunLockTTL,
		BatchListeners: []indexsync.BatchListener{
			indexsync.EntityHistoryListener(history.NewRecordIndexingEntityHistoryService(d.History, d.Logger)),
			indexsync.EntityActionsListener(history.NewUpdateIndexingEntitiesActionsService(d.Entities, d.Logger)),
			indexsync.MetricsListener(),
		},
		CompletionListeners: completion,
	}, d.Logger)
	if err != nil {
		return nil, err
	}

	s.AttributeSync, err = indexsync.NewAttributeSyncOrchestrator(provider, attributeIndexers, indexsync.Options{
		Locker:  d.Locker,
		LockTTL: cfg.RunLockTTL,
		BatchListeners: []indexsync.BatchListener{
			indexsync.AttributeActionsListener(history.NewUpdateIndexingAttributesActionsService(d.Attributes, d.Logger)),
			indexsync.MetricsListener(),
		},
		CompletionListeners: completion,
	}, d.Logger)
	if err != nil {
		return nil, err
	}

	s.Scheduler, err = scheduler.NewScheduler([]scheduler.Job{
		scheduler.SyncJob(scheduler.JobEntitySync, cfg.EntitySyncInterval, s.EntitySync, d.Logger),
		scheduler.SyncJob(scheduler.JobAttributeSync, cfg.AttributeSyncInterval, s.AttributeSync, d.Logger),
		scheduler.ConsolidationJob(cfg.HistoryConsolidateInterval, s.Consolidate),
		scheduler.CleanJob(cfg.HistoryCleanInterval, s.Clean),
	}, d.Locker, cfg.SchedulerLockTTL, d.Logger)
	if err != nil {
		return nil, err
	}

	return s, nil
}

func (s *Services) indexerConfig(action models.Action) indexer.Config {
	return indexer.Config{
		Action:    action,
		BatchSize: s.deps.Config.BatchSize,
		LockTTL:   s.deps.Config.RowLockTTL,
	}
}

func (s *Services) buildPipeline(builder *pipeline.Builder, base, targetType string, action models.Action) (pipeline.Pipeline, error) {
	key := indexsync.IndexerKey(targetType, action)
	p, err := builder.BuildFromFiles(base, s.deps.Config.PipelineOverridesFor(key))
	if err != nil {
		return nil, fmt.Errorf("failed to build %s pipeline: %w", key, err)
	}
	return p, nil
}

// EntityDiscovery builds an entity discovery orchestrator over providers.
func (s *Services) EntityDiscovery(providers []discovery.EntityProvider) (*discovery.EntityOrchestrator, error) {
	filters, err := filter.NewEntityFilters(s.deps.Entities, s.deps.Config.BatchSize, s.deps.Logger)
	if err != nil {
		return nil, err
	}
	return discovery.NewEntityOrchestrator(
		providers,
		filters,
		discovery.NewStoreEntityActions(s.deps.Entities, s.deps.Logger),
		s.entityDiscoveryConfig(),
		s.deps.Logger,
	)
}

func (s *Services) entityDiscoveryConfig() discovery.EntityOrchestratorConfig {
	cfg := discovery.EntityOrchestratorConfig{Purge: s.deps.Config.PurgeDeletedEntities}
	if s.deps.Config.RequiresUpdateEnabled {
		cfg.Determiner = filter.SyncedEntityDeterminer{Types: s.deps.Config.RequiresUpdateTypes}
	}
	return cfg
}

// AttributeDiscovery builds an attribute discovery orchestrator over
// providers. Mapping conflicts are reported through the notifier.
func (s *Services) AttributeDiscovery(providers []discovery.AttributeProvider) (*discovery.AttributeOrchestrator, error) {
	filters, err := filter.NewAttributeFilters(s.deps.Attributes, s.deps.Config.BatchSize, s.deps.Config.StandardAttributes, s.deps.Logger)
	if err != nil {
		return nil, err
	}
	return discovery.NewAttributeOrchestrator(
		providers,
		filters,
		discovery.NewStoreAttributeActions(s.deps.Attributes, s.deps.Logger),
		discovery.NewAttributeConflictHandler(s.Notifier, s.deps.Logger),
		s.deps.Logger,
	)
}

// Handlers returns the route handlers of the admin API.
func (s *Services) Handlers(checker *health.Checker) routes.Handlers {
	return routes.Handlers{
		Discovery: discoveryroutes.NewHandler(s.EntityDiscovery, s.AttributeDiscovery, s.deps.Logger),
		Sync:      syncrun.NewHandler(s.EntitySync, s.AttributeSync, s.deps.Logger),
		History:   historyroutes.NewHandler(s.Consolidate, s.Clean, s.History),
		Health:    checker,
	}
}
