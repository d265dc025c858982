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

// AttributeOrchestrator runs discovery passes for attribute types and
// checks the discovered mappings for conflicts.
type AttributeOrchestrator struct {
	providers *registry[AttributeProvider]
	filters   *filter.AttributeFilters
	actions   AttributeActions
	conflicts *AttributeConflictHandler
	logger    ectologger.Logger
}

func NewAttributeOrchestrator(
	providers []AttributeProvider,
	filters *filter.AttributeFilters,
	actions AttributeActions,
	conflicts *AttributeConflictHandler,
	logger ectologger.Logger,
) (*AttributeOrchestrator, error) {
	reg, err := newRegistry(providers, func(p AttributeProvider) string { return p.AttributeType() })
	if err != nil {
		return nil, err
	}
	return &AttributeOrchestrator{
		providers: reg,
		filters:   filters,
		actions:   actions,
		conflicts: conflicts,
		logger:    logger,
	}, nil
}

type attributePlan struct {
	attributeType   string
	add             models.AttributeSnapshot
	setIndexable    []int64
	update          []int64
	delete          []int64
	setNotIndexable []int64
}

func (o *AttributeOrchestrator) Execute(ctx context.Context, req Request) *models.DiscoveryResult {
	ctx, span := tracing.StartSpan(ctx, "AttributeDiscoveryOrchestrator.Execute")
	defer span.End()

	start := time.Now()
	result := models.NewDiscoveryResult()
	defer func() {
		metrics.DiscoveryRunsTotal.WithLabelValues("attribute", statusLabel(result)).Inc()
		metrics.DiscoveryDuration.WithLabelValues("attribute").Observe(time.Since(start).Seconds())
	}()

	types, msg := o.providers.resolve(req.Types)
	if msg != "" {
		o.logger.WithContext(ctx).WithField("types", req.Types).Warn(msg)
		result.Fail(msg)
		return result
	}

	snapshots := map[string]models.AttributeSnapshot{}
	for _, attributeType := range types {
		provider := o.providers.providers[attributeType]
		snapshot, err := provider.GetData(ctx, req.APIKeys, req.TargetIDs)
		if err != nil {
			o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"target_attribute_type": attributeType,
				"api_keys":              req.APIKeys,
			}).Error("Attribute discovery provider failed")
			result.Fail(fmt.Sprintf("Failed to retrieve %s attributes: %v", attributeType, err))
			continue
		}
		snapshots[attributeType] = snapshot

		plan := o.plan(ctx, attributeType, snapshot, req, result)
		o.apply(ctx, plan, result)
	}

	if o.conflicts != nil && len(snapshots) > 0 {
		if err := o.conflicts.Handle(ctx, snapshots); err != nil {
			result.Fail(err.Error())
		}
	}

	return result
}

func (o *AttributeOrchestrator) plan(ctx context.Context, attributeType string, snapshot models.AttributeSnapshot, req Request, result *models.DiscoveryResult) *attributePlan {
	scope := req.scope()
	plan := &attributePlan{attributeType: attributeType}
	fail := func(step string, err error) {
		o.logger.WithContext(ctx).WithError(err).WithField("target_attribute_type", attributeType).Errorf("Failed to filter attributes to %s", step)
		result.Fail(fmt.Sprintf("Failed to filter %s attributes to %s: %v", attributeType, step, err))
	}

	var err error
	if plan.add, err = o.filters.FilterToAdd(ctx, attributeType, snapshot); err != nil {
		fail("add", err)
	}
	if plan.setIndexable, err = o.filters.FilterToSetIndexable(ctx, attributeType, snapshot, scope); err != nil {
		fail("set indexable", err)
	}
	if len(req.TargetIDs) > 0 {
		for ids, err := range o.filters.FilterToUpdate(ctx, attributeType, scope) {
			if err != nil {
				fail("update", err)
				break
			}
			plan.update = append(plan.update, ids...)
		}
	}
	if plan.delete, err = o.filters.FilterToDelete(ctx, attributeType, snapshot, scope); err != nil {
		fail("delete", err)
	}
	if plan.setNotIndexable, err = o.filters.FilterToSetNotIndexable(ctx, attributeType, snapshot, scope); err != nil {
		fail("set not indexable", err)
	}

	return plan
}

func (o *AttributeOrchestrator) apply(ctx context.Context, plan *attributePlan, result *models.DiscoveryResult) {
	for apiKey, attributes := range plan.add {
		o.run(ctx, result, plan.attributeType, "add", apiKey, len(attributes), func() error {
			return o.actions.AddIndexingAttributes(ctx, plan.attributeType, attributes)
		})
	}
	o.run(ctx, result, plan.attributeType, "set_indexable", "", len(plan.setIndexable), func() error {
		return o.actions.SetIndexingAttributesToBeIndexable(ctx, plan.setIndexable)
	})
	if o.run(ctx, result, plan.attributeType, "update", "", len(plan.update), func() error {
		return o.actions.SetIndexingAttributesToUpdate(ctx, plan.update)
	}) {
		result.ProcessedIDs = append(result.ProcessedIDs, plan.update...)
	}
	o.run(ctx, result, plan.attributeType, "delete", "", len(plan.delete), func() error {
		return o.actions.SetIndexingAttributesToDelete(ctx, plan.delete)
	})
	o.run(ctx, result, plan.attributeType, "set_not_indexable", "", len(plan.setNotIndexable), func() error {
		return o.actions.SetIndexingAttributesNotIndexable(ctx, plan.setNotIndexable)
	})
}

func (o *AttributeOrchestrator) run(ctx context.Context, result *models.DiscoveryResult, attributeType, transition, apiKey string, count int, action func() error) bool {
	if count == 0 {
		return true
	}
	if err := action(); err != nil {
		o.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"target_attribute_type": attributeType,
			"transition":            transition,
			"api_key":               apiKey,
			"count":                 count,
		}).Error("Failed to apply attribute discovery transition")
		result.Fail(err.Error())
		return false
	}
	metrics.DiscoveryTransitionsTotal.WithLabelValues("attribute", attributeType, transition).Add(float64(count))
	return true
}
