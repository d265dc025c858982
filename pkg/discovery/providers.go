// Package discovery reconciles source system snapshots with the indexing
// mirror tables.
package discovery

import (
	"context"
	"fmt"
	"slices"

	"github.com/Gobusters/ectolinq"

	"github.com/klevu/module-m2-indexing-sub002/pkg/filter"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

// EntityProvider reads the source entities of one entity type.
type EntityProvider interface {
	EntityType() string
	GetData(ctx context.Context, apiKeys []string, targetIDs []int64, subtypes []string) (models.EntitySnapshot, error)
}

// AttributeProvider reads the source attributes of one attribute type.
type AttributeProvider interface {
	AttributeType() string
	GetData(ctx context.Context, apiKeys []string, attributeIDs []int64) (models.AttributeSnapshot, error)
}

// Request selects what one discovery pass reconciles. Empty fields mean
// every registered type, every account and the whole type.
type Request struct {
	Types     []string `json:"types,omitempty"`
	APIKeys   []string `json:"api_keys,omitempty"`
	TargetIDs []int64  `json:"target_ids,omitempty"`
	Subtypes  []string `json:"subtypes,omitempty"`
}

func (r Request) scope() filter.Scope {
	return filter.Scope{APIKeys: r.APIKeys, TargetIDs: r.TargetIDs, Subtypes: r.Subtypes}
}

// registry indexes providers by type and keeps registration order.
type registry[P any] struct {
	order     []string
	providers map[string]P
}

func newRegistry[P any](providers []P, typeOf func(P) string) (*registry[P], error) {
	r := &registry[P]{providers: map[string]P{}}
	for _, p := range providers {
		t := typeOf(p)
		if t == "" {
			return nil, fmt.Errorf("discovery provider %T has an empty type", p)
		}
		if _, ok := r.providers[t]; ok {
			return nil, fmt.Errorf("discovery provider for type %s is registered twice", t)
		}
		r.order = append(r.order, t)
		r.providers[t] = p
	}
	return r, nil
}

// resolve returns the providers matching types, or every provider when
// types is empty, together with a message when nothing matched.
func (r *registry[P]) resolve(types []string) ([]string, string) {
	if len(r.order) == 0 {
		return nil, "No discovery providers are registered."
	}
	if len(types) == 0 {
		return slices.Clone(r.order), ""
	}
	matched := ectolinq.Filter(r.order, func(t string) bool {
		return ectolinq.Contains(types, t)
	})
	if len(matched) == 0 {
		return nil, fmt.Sprintf("No discovery providers found for types: %v.", types)
	}
	return matched, ""
}
