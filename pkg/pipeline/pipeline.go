// Package pipeline runs batches of mirror rows through a configured list of
// stages.
//
// A pipeline is an ordered list of stages. Each stage receives the items
// that survived the previous stage and may drop items by reporting a
// failed outcome for them. Items that pass every stage are reported as
// successful. A stage returning an error aborts the batch: the pipeline
// returns no outcomes and a *StageError.
//
// Pipelines are described in YAML and assembled by a Builder:
//
//	stages:
//	  - id: validate_record
//	    stage: validate
//	    args:
//	      validator: indexing_attribute
//	  - id: send
//	    stage: dispatch
//	    args:
//	      dispatcher: remote_attribute
package pipeline

import (
	"context"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// Item is one record travelling through a pipeline. Record is the mirror
// row. Result is set by the stage that produced a payload for the item.
type Item struct {
	ID     int64
	Record any
	Result any
}

// Payload is the batch handed to a pipeline.
type Payload []Item

// Pipeline turns a payload into one outcome per item.
type Pipeline interface {
	Execute(ctx context.Context, payload Payload, pctx Context) ([]models.ItemOutcome, error)
}

// Stage processes the surviving items of a batch. It returns the items
// that continue and the outcomes of the items it rejected.
type Stage interface {
	ID() string
	Process(ctx context.Context, items []Item, pctx Context) ([]Item, []models.ItemOutcome, error)
}

// Chain is a Pipeline running its stages in order.
type Chain struct {
	stages []Stage
}

func NewChain(stages ...Stage) *Chain {
	return &Chain{stages: stages}
}

// Stages returns the stage ids in execution order.
func (c *Chain) Stages() []string {
	ids := make([]string, len(c.stages))
	for i, s := range c.stages {
		ids[i] = s.ID()
	}
	return ids
}

// Execute returns the outcomes in payload order.
func (c *Chain) Execute(ctx context.Context, payload Payload, pctx Context) ([]models.ItemOutcome, error) {
	ctx, span := tracing.StartSpan(ctx, "Pipeline.Execute")
	defer span.End()

	if len(payload) == 0 {
		return []models.ItemOutcome{}, nil
	}

	outcomes := make(map[int64]models.ItemOutcome, len(payload))
	items := append([]Item(nil), payload...)
	for _, stage := range c.stages {
		if len(items) == 0 {
			break
		}
		next, rejected, err := stage.Process(ctx, items, pctx)
		if err != nil {
			return nil, &StageError{Stage: stage.ID(), Err: err}
		}
		for _, o := range rejected {
			outcomes[o.ID] = o
		}
		items = next
	}
	for _, item := range items {
		outcomes[item.ID] = models.ItemOutcome{ID: item.ID, IsSuccess: true, Payload: item.Result}
	}

	out := make([]models.ItemOutcome, 0, len(payload))
	for _, item := range payload {
		if o, ok := outcomes[item.ID]; ok {
			out = append(out, o)
			delete(outcomes, item.ID)
		}
	}
	return out, nil
}
