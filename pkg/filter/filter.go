// Package filter computes the mirror row transitions of a discovery pass
// by diffing source snapshots against the mirror tables.
package filter

import (
	"context"
	"iter"
	"maps"
	"slices"

	"github.com/Gobusters/ectolinq"

	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

// Scope narrows a filter to accounts, target ids and entity subtypes.
// Empty fields do not constrain.
type Scope struct {
	APIKeys   []string `json:"api_keys,omitempty"`
	TargetIDs []int64  `json:"target_ids,omitempty"`
	Subtypes  []string `json:"subtypes,omitempty"`
}

// pageFunc loads up to limit rows with id >= fromID ordered by id.
type pageFunc[T any] func(ctx context.Context, fromID int64, limit int) ([]T, error)

// paginate walks a mirror table by id cursor and yields the ids of each
// page that pass keep. The sequence ends on an empty page, on a page
// whose last id is 0, on the first error, or when the consumer stops.
func paginate[T any](ctx context.Context, batchSize int, fetch pageFunc[T], id func(T) int64, keep func(T) bool) iter.Seq2[[]int64, error] {
	return func(yield func([]int64, error) bool) {
		var fromID int64
		for {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			page, err := fetch(ctx, fromID, batchSize)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(page) == 0 {
				return
			}

			ids := make([]int64, 0, len(page))
			for _, row := range page {
				if keep == nil || keep(row) {
					ids = append(ids, id(row))
				}
			}
			if len(ids) > 0 && !yield(ids, nil) {
				return
			}

			lastID := id(page[len(page)-1])
			if lastID == 0 {
				return
			}
			fromID = lastID + 1
		}
	}
}

// collectAll drains a paginated walk into one slice.
func collectAll[T any](ctx context.Context, batchSize int, fetch pageFunc[T], id func(T) int64) ([]T, error) {
	var out []T
	var fromID int64
	for {
		page, err := fetch(ctx, fromID, batchSize)
		if err != nil {
			return nil, err
		}
		if len(page) == 0 {
			return out, nil
		}
		out = append(out, page...)
		lastID := id(page[len(page)-1])
		if len(page) < batchSize || lastID == 0 {
			return out, nil
		}
		fromID = lastID + 1
	}
}

func checkBatchSize(batchSize int) (int, error) {
	if batchSize == 0 {
		return validator.DefaultBatchSize, nil
	}
	if err := validator.ValidateBatchSize(batchSize); err != nil {
		return 0, err
	}
	return batchSize, nil
}

// dedupe keeps the first occurrence of each id.
func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// scopedAccounts returns the accounts a removal filter evaluates: every
// snapshot account within scope, including accounts listed with no
// entities, plus requested accounts the snapshot does not mention. Either
// kind has no source entities.
func scopedAccounts[S ~map[string][]T, T any](snapshot S, scope Scope) []string {
	if len(scope.APIKeys) == 0 {
		return slices.Sorted(maps.Keys(snapshot))
	}
	apiKeys := ectolinq.Filter(slices.Sorted(maps.Keys(snapshot)), func(apiKey string) bool {
		return ectolinq.Contains(scope.APIKeys, apiKey)
	})
	for _, apiKey := range scope.APIKeys {
		if !ectolinq.Contains(apiKeys, apiKey) {
			apiKeys = append(apiKeys, apiKey)
		}
	}
	return apiKeys
}
