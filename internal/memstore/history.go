package memstore

import (
	"cmp"
	"context"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/Gobusters/ectolinq"

	apperrors "github.com/klevu/module-m2-indexing-sub002/pkg/errors"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/validator"
)

type History struct {
	failures
	mu             sync.Mutex
	nextID         int64
	history        map[int64]models.SyncHistoryEntityRecord
	consolidations map[int64]models.SyncHistoryEntityConsolidationRecord
	Calls          map[string]int
}

func NewHistory() *History {
	return &History{
		history:        map[int64]models.SyncHistoryEntityRecord{},
		consolidations: map[int64]models.SyncHistoryEntityConsolidationRecord{},
		Calls:          map[string]int{},
	}
}

// Records returns every history row ordered by id.
func (s *History) Records() []models.SyncHistoryEntityRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ectolinq.Values(s.history)
	slices.SortFunc(out, func(a, b models.SyncHistoryEntityRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// Consolidations returns every consolidation row ordered by id.
func (s *History) Consolidations() []models.SyncHistoryEntityConsolidationRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := ectolinq.Values(s.consolidations)
	slices.SortFunc(out, func(a, b models.SyncHistoryEntityConsolidationRecord) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// SeedConsolidation stores record as is and returns its id.
func (s *History) SeedConsolidation(record models.SyncHistoryEntityConsolidationRecord) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	record.ID = s.nextID
	record.Date = utcDate(record.Date)
	s.consolidations[record.ID] = record
	return record.ID
}

// WithTx restores the previous state when fn fails.
func (s *History) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	s.mu.Lock()
	history := maps.Clone(s.history)
	consolidations := maps.Clone(s.consolidations)
	s.mu.Unlock()

	if err := fn(ctx); err != nil {
		s.mu.Lock()
		s.history = history
		s.consolidations = consolidations
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *History) InsertHistory(_ context.Context, records []models.SyncHistoryEntityRecord) error {
	if err := s.check("InsertHistory"); err != nil {
		return err
	}
	v := validator.NewSyncHistoryEntityRecordValidator()
	for _, r := range records {
		if !v.IsValid(r) {
			return apperrors.NewValidationError("sync history record", v.Messages())
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["InsertHistory"]++
	for _, r := range records {
		s.nextID++
		r.ID = s.nextID
		r.ActionTimestamp = r.ActionTimestamp.UTC()
		s.history[r.ID] = r
	}
	return nil
}

func (s *History) ListHistoryGroups(_ context.Context, before time.Time) ([]models.SyncHistoryGroup, error) {
	if err := s.check("ListHistoryGroups"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["ListHistoryGroups"]++

	seen := map[string]models.SyncHistoryGroup{}
	for _, r := range s.history {
		if !r.ActionTimestamp.Before(before) {
			continue
		}
		g := groupOf(r)
		seen[g.String()] = g
	}
	groups := ectolinq.Values(seen)
	slices.SortFunc(groups, func(a, b models.SyncHistoryGroup) int { return cmp.Compare(a.String(), b.String()) })
	return groups, nil
}

func (s *History) ListHistoryForGroup(_ context.Context, group models.SyncHistoryGroup) ([]models.SyncHistoryEntityRecord, error) {
	if err := s.check("ListHistoryForGroup"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["ListHistoryForGroup"]++

	key := group.String()
	out := ectolinq.Filter(ectolinq.Values(s.history), func(r models.SyncHistoryEntityRecord) bool {
		return groupOf(r).String() == key
	})
	slices.SortFunc(out, func(a, b models.SyncHistoryEntityRecord) int {
		if c := a.ActionTimestamp.Compare(b.ActionTimestamp); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

func (s *History) DeleteHistory(_ context.Context, ids []int64) error {
	if err := s.check("DeleteHistory"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["DeleteHistory"]++
	for _, id := range ids {
		delete(s.history, id)
	}
	return nil
}

func (s *History) SaveConsolidation(_ context.Context, record *models.SyncHistoryEntityConsolidationRecord) error {
	if err := s.check("SaveConsolidation"); err != nil {
		return err
	}
	v := validator.NewSyncHistoryConsolidationRecordValidator()
	if !v.IsValid(record) {
		return apperrors.NewValidationError("sync history consolidation record", v.Messages())
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["SaveConsolidation"]++

	date := utcDate(record.Date)
	for id, existing := range s.consolidations {
		if existing.Date.Equal(date) && existing.APIKey == record.APIKey &&
			existing.TargetEntityType == record.TargetEntityType &&
			existing.TargetID == record.TargetID && existing.ParentID() == record.ParentID() {
			existing.History = append(slices.Clone(existing.History), record.History...)
			s.consolidations[id] = existing
			return nil
		}
	}

	s.nextID++
	saved := *record
	saved.ID = s.nextID
	saved.Date = date
	saved.History = slices.Clone(record.History)
	s.consolidations[saved.ID] = saved
	return nil
}

func (s *History) ListConsolidations(_ context.Context, apiKey string, targetIDs []int64) ([]*models.SyncHistoryEntityConsolidationRecord, error) {
	if err := s.check("ListConsolidations"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["ListConsolidations"]++

	out := []*models.SyncHistoryEntityConsolidationRecord{}
	for _, c := range s.consolidations {
		if c.APIKey != apiKey || (len(targetIDs) > 0 && !ectolinq.Contains(targetIDs, c.TargetID)) {
			continue
		}
		out = append(out, &c)
	}
	slices.SortFunc(out, func(a, b *models.SyncHistoryEntityConsolidationRecord) int { return b.Date.Compare(a.Date) })
	return out, nil
}

func (s *History) ListConsolidationIDsOnOrBefore(_ context.Context, cutoff time.Time) ([]int64, error) {
	if err := s.check("ListConsolidationIDsOnOrBefore"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["ListConsolidationIDsOnOrBefore"]++

	cutoff = utcDate(cutoff)
	ids := []int64{}
	for id, c := range s.consolidations {
		if !c.Date.After(cutoff) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids, nil
}

func (s *History) DeleteConsolidation(_ context.Context, id int64) error {
	if err := s.check("DeleteConsolidation"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls["DeleteConsolidation"]++
	delete(s.consolidations, id)
	return nil
}

func groupOf(r models.SyncHistoryEntityRecord) models.SyncHistoryGroup {
	return models.SyncHistoryGroup{
		Date:             utcDate(r.ActionTimestamp),
		APIKey:           r.APIKey,
		TargetEntityType: r.TargetEntityType,
		TargetID:         r.TargetID,
		TargetParentID:   r.ParentID(),
	}
}

func utcDate(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
