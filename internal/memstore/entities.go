// Package memstore is an in-memory implementation of the store interfaces.
// It follows the query semantics of the Postgres repositories and backs
// the service tests.
package memstore

import (
	"cmp"
	"context"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

// failures lets tests make a named operation return an error.
type failures struct {
	mu   sync.Mutex
	errs map[string]error
}

// Fail makes every later call of op return err. A nil err clears it.
func (f *failures) Fail(op string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.errs == nil {
		f.errs = map[string]error{}
	}
	if err == nil {
		delete(f.errs, op)
		return
	}
	f.errs[op] = err
}

func (f *failures) check(op string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.errs[op]
}

type Entities struct {
	failures
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.IndexingEntity
	// Calls counts invocations per operation.
	Calls map[string]int
}

func NewEntities(seed ...models.IndexingEntity) *Entities {
	s := &Entities{rows: map[int64]models.IndexingEntity{}, Calls: map[string]int{}}
	for _, e := range seed {
		s.nextID++
		if e.ID == 0 {
			e.ID = s.nextID
		} else if e.ID > s.nextID {
			s.nextID = e.ID
		}
		s.rows[e.ID] = e
	}
	return s
}

// Get returns a copy of the row with id, if present.
func (s *Entities) Get(id int64) (models.IndexingEntity, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.rows[id]
	return e, ok
}

// All returns every row ordered by id.
func (s *Entities) All() []models.IndexingEntity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *Entities) sorted() []models.IndexingEntity {
	out := ectolinq.Values(s.rows)
	slices.SortFunc(out, func(a, b models.IndexingEntity) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Entities) List(_ context.Context, q models.IndexingEntityQuery) ([]models.IndexingEntity, error) {
	if err := s.check("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["List"]++

	out := ectolinq.Filter(s.sorted(), func(e models.IndexingEntity) bool {
		switch {
		case q.EntityType != "" && e.TargetEntityType != q.EntityType:
			return false
		case len(q.APIKeys) > 0 && !ectolinq.Contains(q.APIKeys, e.APIKey):
			return false
		case len(q.TargetIDs) > 0 && !ectolinq.Contains(q.TargetIDs, e.TargetID):
			return false
		case len(q.Subtypes) > 0 && (e.TargetEntitySubtype == nil || !ectolinq.Contains(q.Subtypes, *e.TargetEntitySubtype)):
			return false
		case q.IsIndexable != nil && e.IsIndexable != *q.IsIndexable:
			return false
		case q.RequiresUpdate != nil && e.RequiresUpdate != *q.RequiresUpdate:
			return false
		case len(q.NextActions) > 0 && !ectolinq.Contains(q.NextActions, e.NextAction):
			return false
		case len(q.ExcludeNextActions) > 0 && ectolinq.Contains(q.ExcludeNextActions, e.NextAction):
			return false
		case len(q.LastActions) > 0 && !ectolinq.Contains(q.LastActions, e.LastAction):
			return false
		case e.ID < q.FromID:
			return false
		case q.UnlockedBefore != nil && e.LockTimestamp != nil && !e.LockTimestamp.Before(*q.UnlockedBefore):
			return false
		}
		return true
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Entities) Insert(_ context.Context, entities []models.IndexingEntity) error {
	if err := s.check("Insert"); err != nil {
		return err
	}
	v := validator.NewIndexingEntityValidator()
	for _, e := range entities {
		if !v.IsValid(e) {
			return apperrors.NewValidationError("indexing entity", v.Messages())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Insert"]++

	keys := map[string]bool{}
	for _, e := range s.rows {
		keys[e.Key()] = true
	}
	for _, e := range entities {
		if keys[e.Key()] {
			return apperrors.NewAlreadyExistsError("indexing entity", e.Key())
		}
		keys[e.Key()] = true
	}
	for _, e := range entities {
		s.nextID++
		e.ID = s.nextID
		s.rows[e.ID] = e
	}
	return nil
}

func (s *Entities) Update(_ context.Context, ids []int64, changes models.MirrorRowChanges) error {
	if err := s.check("Update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Update"]++

	for _, id := range ids {
		e, ok := s.rows[id]
		if !ok {
			continue
		}
		if len(changes.OnlyNextActions) > 0 && !ectolinq.Contains(changes.OnlyNextActions, e.NextAction) {
			continue
		}
		if changes.NextAction != nil {
			e.NextAction = *changes.NextAction
		}
		if changes.LastAction != nil {
			e.LastAction = *changes.LastAction
		}
		if changes.LastActionTimestamp != nil {
			e.LastActionTimestamp = models.Ptr(*changes.LastActionTimestamp)
		}
		if changes.IsIndexable != nil {
			e.IsIndexable = *changes.IsIndexable
		}
		if changes.RequiresUpdate != nil {
			e.RequiresUpdate = *changes.RequiresUpdate
		}
		if changes.ClearLock {
			e.LockTimestamp = nil
		}
		s.rows[id] = e
	}
	return nil
}

func (s *Entities) Lock(_ context.Context, ids []int64, now, staleBefore time.Time) ([]int64, error) {
	if err := s.check("Lock"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Lock"]++

	locked := []int64{}
	for _, id := range ids {
		e, ok := s.rows[id]
		if !ok || (e.LockTimestamp != nil && !e.LockTimestamp.Before(staleBefore)) {
			continue
		}
		e.LockTimestamp = models.Ptr(now)
		s.rows[id] = e
		locked = append(locked, id)
	}
	return locked, nil
}

func (s *Entities) Unlock(ctx context.Context, ids []int64) error {
	return s.Update(ctx, ids, models.MirrorRowChanges{ClearLock: true})
}

func (s *Entities) Delete(_ context.Context, ids []int64) error {
	if err := s.check("Delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Delete"]++

	for _, id := range ids {
		delete(s.rows, id)
	}
	return nil
}
