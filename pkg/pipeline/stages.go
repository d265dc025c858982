package pipeline

import (
	"context"
	"fmt"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

// validateStage drops items whose record fails a named validator.
type validateStage struct {
	id        string
	validator func() validator.Validator
}

func newValidateStage(def StageDefinition, r *Registry) (Stage, error) {
	name, err := stringArg(def.Args, "validator")
	if err != nil {
		return nil, err
	}
	factory, ok := r.validators[name]
	if !ok {
		return nil, fmt.Errorf("unknown validator %q", name)
	}
	return &validateStage{id: def.ID, validator: factory}, nil
}

func (s *validateStage) ID() string {
	return s.id
}

func (s *validateStage) Process(_ context.Context, items []Item, _ Context) ([]Item, []models.ItemOutcome, error) {
	v := s.validator()
	valid := make([]Item, 0, len(items))
	var rejected []models.ItemOutcome
	for _, item := range items {
		if v.IsValid(item.Record) {
			valid = append(valid, item)
			continue
		}
		rejected = append(rejected, models.ItemOutcome{
			ID:       item.ID,
			Messages: append([]string(nil), v.Messages()...),
		})
	}
	return valid, rejected, nil
}

// dispatchStage hands every item to a named Dispatcher.
type dispatchStage struct {
	id         string
	dispatcher Dispatcher
}

func newDispatchStage(def StageDefinition, r *Registry) (Stage, error) {
	name, err := stringArg(def.Args, "dispatcher")
	if err != nil {
		return nil, err
	}
	d, ok := r.dispatchers[name]
	if !ok {
		return nil, fmt.Errorf("unknown dispatcher %q", name)
	}
	return &dispatchStage{id: def.ID, dispatcher: d}, nil
}

func (s *dispatchStage) ID() string {
	return s.id
}

func (s *dispatchStage) Process(ctx context.Context, items []Item, pctx Context) ([]Item, []models.ItemOutcome, error) {
	sent := make([]Item, 0, len(items))
	var rejected []models.ItemOutcome
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}
		result, err := s.dispatcher.Dispatch(ctx, item, pctx)
		if err != nil {
			return nil, nil, &TransformationError{ItemID: item.ID, Message: err.Error()}
		}
		if !result.IsSuccess {
			rejected = append(rejected, models.ItemOutcome{ID: item.ID, Messages: result.Messages, Payload: result})
			continue
		}
		item.Result = result
		sent = append(sent, item)
	}
	return sent, rejected, nil
}
