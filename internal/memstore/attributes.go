package memstore

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

type Attributes struct {
	failures
	mu     sync.Mutex
	nextID int64
	rows   map[int64]models.IndexingAttribute
	Calls  map[string]int
}

func NewAttributes(seed ...models.IndexingAttribute) *Attributes {
	s := &Attributes{rows: map[int64]models.IndexingAttribute{}, Calls: map[string]int{}}
	for _, a := range seed {
		s.nextID++
		if a.ID == 0 {
			a.ID = s.nextID
		} else if a.ID > s.nextID {
			s.nextID = a.ID
		}
		s.rows[a.ID] = a
	}
	return s
}

func (s *Attributes) Get(id int64) (models.IndexingAttribute, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.rows[id]
	return a, ok
}

func (s *Attributes) All() []models.IndexingAttribute {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sorted()
}

func (s *Attributes) sorted() []models.IndexingAttribute {
	out := ectolinq.Values(s.rows)
	slices.SortFunc(out, func(a, b models.IndexingAttribute) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

func (s *Attributes) List(_ context.Context, q models.IndexingAttributeQuery) ([]models.IndexingAttribute, error) {
	if err := s.check("List"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["List"]++

	out := ectolinq.Filter(s.sorted(), func(a models.IndexingAttribute) bool {
		switch {
		case q.AttributeType != "" && a.TargetAttributeType != q.AttributeType:
			return false
		case len(q.APIKeys) > 0 && !ectolinq.Contains(q.APIKeys, a.APIKey):
			return false
		case len(q.TargetIDs) > 0 && !ectolinq.Contains(q.TargetIDs, a.TargetID):
			return false
		case len(q.TargetCodes) > 0 && !ectolinq.Contains(q.TargetCodes, a.TargetCode):
			return false
		case q.IsIndexable != nil && a.IsIndexable != *q.IsIndexable:
			return false
		case len(q.NextActions) > 0 && !ectolinq.Contains(q.NextActions, a.NextAction):
			return false
		case len(q.ExcludeNextActions) > 0 && ectolinq.Contains(q.ExcludeNextActions, a.NextAction):
			return false
		case len(q.LastActions) > 0 && !ectolinq.Contains(q.LastActions, a.LastAction):
			return false
		case a.ID < q.FromID:
			return false
		case q.UnlockedBefore != nil && a.LockTimestamp != nil && !a.LockTimestamp.Before(*q.UnlockedBefore):
			return false
		}
		return true
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (s *Attributes) Insert(_ context.Context, attributes []models.IndexingAttribute) error {
	if err := s.check("Insert"); err != nil {
		return err
	}
	v := validator.NewIndexingAttributeValidator()
	for _, a := range attributes {
		if !v.IsValid(a) {
			return apperrors.NewValidationError("indexing attribute", v.Messages())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Insert"]++

	keys := map[string]bool{}
	for _, a := range s.rows {
		keys[a.Key()] = true
	}
	for _, a := range attributes {
		if keys[a.Key()] {
			return apperrors.NewAlreadyExistsError("indexing attribute", fmt.Sprintf("%s (%s)", a.Key(), a.TargetCode))
		}
		keys[a.Key()] = true
	}
	for _, a := range attributes {
		s.nextID++
		a.ID = s.nextID
		s.rows[a.ID] = a
	}
	return nil
}

func (s *Attributes) Update(_ context.Context, ids []int64, changes models.MirrorRowChanges) error {
	if err := s.check("Update"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Update"]++

	for _, id := range ids {
		a, ok := s.rows[id]
		if !ok {
			continue
		}
		if len(changes.OnlyNextActions) > 0 && !ectolinq.Contains(changes.OnlyNextActions, a.NextAction) {
			continue
		}
		if changes.NextAction != nil {
			a.NextAction = *changes.NextAction
		}
		if changes.LastAction != nil {
			a.LastAction = *changes.LastAction
		}
		if changes.LastActionTimestamp != nil {
			a.LastActionTimestamp = models.Ptr(*changes.LastActionTimestamp)
		}
		if changes.IsIndexable != nil {
			a.IsIndexable = *changes.IsIndexable
		}
		if changes.ClearLock {
			a.LockTimestamp = nil
		}
		s.rows[id] = a
	}
	return nil
}

func (s *Attributes) Lock(_ context.Context, ids []int64, now, staleBefore time.Time) ([]int64, error) {
	if err := s.check("Lock"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["Lock"]++

	locked := []int64{}
	for _, id := range ids {
		a, ok := s.rows[id]
		if !ok || (a.LockTimestamp != nil && !a.LockTimestamp.Before(staleBefore)) {
			continue
		}
		a.LockTimestamp = models.Ptr(now)
		s.rows[id] = a
		locked = append(locked, id)
	}
	return locked, nil
}

func (s *Attributes) Unlock(ctx context.Context, ids []int64) error {
	return s.Update(ctx, ids, models.MirrorRowChanges{ClearLock: true})
}

func (s *Attributes) Delete(_ context.Context, ids []int64) error {
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
