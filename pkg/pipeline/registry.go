package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

const (
	StageValidate = "validate"
	StageDispatch = "dispatch"
)

// Dispatcher sends one item to the remote service. A returned error aborts
// the batch. A failed SyncResult only fails the item.
type Dispatcher interface {
	Dispatch(ctx context.Context, item Item, pctx Context) (models.SyncResult, error)
}

type DispatcherFunc func(ctx context.Context, item Item, pctx Context) (models.SyncResult, error)

func (f DispatcherFunc) Dispatch(ctx context.Context, item Item, pctx Context) (models.SyncResult, error) {
	return f(ctx, item, pctx)
}

// StageFactory builds a stage of one kind from its definition.
type StageFactory func(def StageDefinition, r *Registry) (Stage, error)

// Registry resolves stage kinds, validators and dispatchers named in
// pipeline definitions.
type Registry struct {
	stages      map[string]StageFactory
	validators  map[string]func() validator.Validator
	dispatchers map[string]Dispatcher
}

// NewRegistry returns a registry with the built-in stages and the mirror
// row validators.
func NewRegistry() *Registry {
	r := &Registry{
		stages:      map[string]StageFactory{},
		validators:  map[string]func() validator.Validator{},
		dispatchers: map[string]Dispatcher{},
	}
	r.RegisterStage(StageValidate, newValidateStage)
	r.RegisterStage(StageDispatch, newDispatchStage)
	r.RegisterValidator("indexing_entity", func() validator.Validator { return validator.NewIndexingEntityValidator() })
	r.RegisterValidator("indexing_attribute", func() validator.Validator { return validator.NewIndexingAttributeValidator() })
	return r
}

func (r *Registry) RegisterStage(kind string, factory StageFactory) {
	r.stages[kind] = factory
}

func (r *Registry) RegisterValidator(name string, factory func() validator.Validator) {
	r.validators[name] = factory
}

func (r *Registry) RegisterDispatcher(name string, d Dispatcher) {
	r.dispatchers[name] = d
}

// Kinds lists the registered stage kinds.
func (r *Registry) Kinds() []string {
	kinds := make([]string, 0, len(r.stages))
	for k := range r.stages {
		kinds = append(kinds, k)
	}
	slices.Sort(kinds)
	return kinds
}

// Build creates the stage described by def.
func (r *Registry) Build(def StageDefinition) (Stage, error) {
	if def.ID == "" {
		return nil, fmt.Errorf("pipeline stage of kind %q has no id", def.Kind)
	}
	factory, ok := r.stages[def.Kind]
	if !ok {
		return nil, fmt.Errorf("pipeline stage %s: unknown stage kind %q", def.ID, def.Kind)
	}
	stage, err := factory(def, r)
	if err != nil {
		return nil, fmt.Errorf("pipeline stage %s: %w", def.ID, err)
	}
	return stage, nil
}

func stringArg(args map[string]any, key string) (string, error) {
	v, ok := args[key]
	if !ok {
		return "", fmt.Errorf("missing argument %q", key)
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", fmt.Errorf("argument %q must be a non-empty string, got %T", key, v)
	}
	return s, nil
}
