package discovery

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/klevu/module-m2-indexing-sub002/pkg/filter"
	"github.com/klevu/module-m2-indexing-sub002/pkg/metrics"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// EntityOrchestratorConfig holds optional behavior of the entity
// discovery pass.
type EntityOrchestratorConfig struct {
	// Purge removes rows whose Delete completed once their source entity
	// is gone.
	Purge bool
	// Determiner, when set, also queues rows flagged requires_update for
	// an Update. Flags raised by the same pass are included.
	Determiner filter.RequiresUpdateDeterminer
}

// EntityOrchestrator runs discovery passes for entity types.
type EntityOrchestrator struct {
	providers *registry[EntityProvider]
	filters   *filter.EntityFilters
	actions   EntityActions
	config    EntityOrchestratorConfig
	logger    ectologger.Logger
}

// NewEntityOrchestrator fails when two providers share a type or a
// provider has no type.
func NewEntityOrchestrator(
	providers []EntityProvider,
	filters *filter.EntityFilters,
	actions EntityActions,
	config EntityOrchestratorConfig,
	logger ectologger.Logger,
) (*EntityOrchestrator, error) {
	reg, err := newRegistry(providers, func(p EntityProvider) string { return p.EntityType() })
	if err != nil {
		return nil, err
	}
	return &EntityOrchestrator{
		providers: reg,
		filters:   filters,
		actions:   actions,
		config:    config,
		logger:    logger,
	}, nil
}

// entityPlan holds the snapshot transitions of one entity type. It is
// computed in full before any of it is applied. Dirty rows accepted by the
// determiner are read from the store after the flags are applied.
type entityPlan struct {
	entityType   string
	scope        filter.Scope
	add          models.EntitySnapshot
	setIndexable []int64
	flag         []int64
	update       []int64
	delete       []int64
	purge        []int64
}

// Execute never returns an error. Failures of providers, filters and
// actions are reported on the result and the pass carries on.
func (o *EntityOrchestrator) Execute(ctx context.Context, req Request) *models.DiscoveryResult {
	ctx, span := tracing.StartSpan(ctx, "EntityDiscoveryOrchestrator.Execute")
	defer span.End()

	start := time.Now()
	result := models.NewDiscoveryResult()
	defer func() {
		metrics.DiscoveryRunsTotal.WithLabelValues("entity", statusLabel(result)).Inc()
		metrics.DiscoveryDuration.WithLabelValues("entity").Observe(time.Since(start).Seconds())
	}()

	types, msg := o.providers.resolve(req.Types)
	if msg != "" {
		o.logger.WithContext(ctx).WithField("types", req.Types).Warn(msg)
		result.Fail(msg)
		return result
	}

	for _, entityType := range types {
		provider := o.providers.providers[entityType]
		snapshot, err := provider.GetData(ctx, req.APIKeys, req.TargetIDs, req.Subtypes)
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"target_entity_type": entityType,
				"api_keys":           req.APIKeys,
			}).Error("Entity discovery provider failed")
			result.Fail(fmt.Sprintf("Failed to retrieve %s entities: %v", entityType, err))
			continue
		}

		plan := o.plan(ctx, entityType, snapshot, req, result)
		o.apply(ctx, plan, result)
	}

	return result
}

func (o *EntityOrchestrator) plan(ctx context.Context, entityType string, snapshot models.EntitySnapshot, req Request, result *models.DiscoveryResult) *entityPlan {
	scope := req.scope()
	plan := &entityPlan{entityType: entityType, scope: scope}
	fail := func(step string, err error) {
		o.logger.WithContext(ctx).WithError(err).WithField("target_entity_type", entityType).Errorf("Failed to filter entities to %s", step)
		result.Fail(fmt.Sprintf("Failed to filter %s entities to %s: %v", entityType, step, err))
	}

	var err error
	if plan.add, err = o.filters.FilterToAdd(ctx, entityType, snapshot); err != nil {
		fail("add", err)
	}
	if plan.setIndexable, err = o.filters.FilterToSetIndexable(ctx, entityType, snapshot, scope); err != nil {
		fail("set indexable", err)
	}
	if len(req.TargetIDs) > 0 {
		for ids, err := range o.filters.FilterToUpdate(ctx, entityType, scope) {
			if err != nil {
				fail("update", err)
				break
			}
			plan.update = append(plan.update, ids...)
		}
	}
	if o.config.Determiner != nil {
		if plan.flag, err = o.filters.FilterToFlagRequiresUpdate(ctx, entityType, snapshot, scope); err != nil {
			fail("flag requires update", err)
		}
	}
	if plan.delete, err = o.filters.FilterToDelete(ctx, entityType, snapshot, scope); err != nil {
		fail("delete", err)
	}
	if o.config.Purge {
		if plan.purge, err = o.filters.FilterToPurge(ctx, entityType, snapshot, scope); err != nil {
			fail("purge", err)
		}
	}

	return plan
}

func (o *EntityOrchestrator) apply(ctx context.Context, plan *entityPlan, result *models.DiscoveryResult) {
	for apiKey, entities := range plan.add {
		o.run(ctx, result, plan.entityType, "add", apiKey, len(entities), func() error {
			return o.actions.AddIndexingEntities(ctx, plan.entityType, entities)
		})
	}
	o.run(ctx, result, plan.entityType, "set_indexable", "", len(plan.setIndexable), func() error {
		return o.actions.SetIndexingEntitiesToBeIndexable(ctx, plan.setIndexable)
	})
	o.run(ctx, result, plan.entityType, "requires_update", "", len(plan.flag), func() error {
		return o.actions.SetIndexingEntitiesRequireUpdate(ctx, plan.flag)
	})
	update := dedupeIDs(append(plan.update, o.requiresUpdate(ctx, plan, result)...))
	if o.run(ctx, result, plan.entityType, "update", "", len(update), func() error {
		return o.actions.SetIndexingEntitiesToUpdate(ctx, update)
	}) {
		result.ProcessedIDs = append(result.ProcessedIDs, update...)
	}
	o.run(ctx, result, plan.entityType, "delete", "", len(plan.delete), func() error {
		return o.actions.SetIndexingEntitiesToDelete(ctx, plan.delete)
	})
	o.run(ctx, result, plan.entityType, "purge", "", len(plan.purge), func() error {
		return o.actions.PurgeIndexingEntities(ctx, plan.purge)
	})
}

// requiresUpdate returns the dirty rows the determiner accepts.
func (o *EntityOrchestrator) requiresUpdate(ctx context.Context, plan *entityPlan, result *models.DiscoveryResult) []int64 {
	if o.config.Determiner == nil {
		return nil
	}
	var ids []int64
	for page, err := range o.filters.FilterRequiresUpdate(ctx, plan.entityType, plan.scope, o.config.Determiner) {
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).WithField("target_entity_type", plan.entityType).Error("Failed to filter entities requiring update")
			result.Fail(fmt.Sprintf("Failed to filter %s entities requiring update: %v", plan.entityType, err))
			return ids
		}
		ids = append(ids, page...)
	}
	return ids
}

// run executes one action when it has rows to change and reports whether
// it succeeded.
func (o *EntityOrchestrator) run(ctx context.Context, result *models.DiscoveryResult, entityType, transition, apiKey string, count int, action func() error) bool {
	if count == 0 {
		return true
	}
	if err := action(); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"target_entity_type": entityType,
			"transition":         transition,
			"api_key":            apiKey,
			"count":              count,
		}).Error("Failed to apply entity discovery transition")
		result.Fail(err.Error())
		return false
	}
	metrics.DiscoveryTransitionsTotal.WithLabelValues("entity", entityType, transition).Add(float64(count))
	return true
}

func statusLabel(result *models.DiscoveryResult) string {
	if result.IsSuccess {
		return "success"
	}
	return "failure"
}

func dedupeIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}
