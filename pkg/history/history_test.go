package history

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klevu/module-m2-indexing-sub002/internal/memstore"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
)

var today = time.Date(2026, 5, 20, 15, 30, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func entityRow(id, targetID int64, parentID *int64) models.IndexingEntity {
	return models.IndexingEntity{
		ID:               id,
		TargetEntityType: "KLEVU_PRODUCT",
		TargetID:         targetID,
		TargetParentID:   parentID,
		APIKey:           "K",
		NextAction:       models.ActionAdd,
		LastAction:       models.ActionNoAction,
		IsIndexable:      true,
	}
}

func historyRecord(targetID int64, action models.Action, at time.Time, success bool, message string) models.SyncHistoryEntityRecord {
	return models.SyncHistoryEntityRecord{
		TargetEntityType: "KLEVU_PRODUCT",
		TargetID:         targetID,
		APIKey:           "K",
		Action:           action,
		ActionTimestamp:  at,
		IsSuccess:        success,
		Message:          message,
	}
}

func TestRecordIndexingEntityHistoryService_Execute(t *testing.T) {
	h := memstore.NewHistory()
	s := NewRecordIndexingEntityHistoryService(h, testLogger())
	s.now = fixedClock(today)

	result := &models.IndexerResult{Status: models.IndexerResultStatusPartial, Messages: []string{"1: rejected", "2: timeout"}}
	s.Execute(context.Background(), result, models.ActionAdd, []models.IndexingEntity{
		entityRow(1, 10, nil),
		entityRow(2, 11, models.Ptr(int64(5))),
	})

	records := h.Records()
	require.Len(t, records, 2)
	for _, r := range records {
		assert.Equal(t, models.ActionAdd, r.Action)
		assert.False(t, r.IsSuccess)
		assert.Equal(t, "1: rejected\n2: timeout", r.Message)
		assert.Equal(t, today, r.ActionTimestamp)
	}
	assert.Equal(t, int64(5), records[1].ParentID())
}

func TestTruncateMessage(t *testing.T) {
	tests := []struct {
		name      string
		message   string
		wantRunes int
	}{
		{name: "short message unchanged", message: "timeout", wantRunes: 7},
		{name: "ascii cut at limit", message: strings.Repeat("a", maxMessageLength+10), wantRunes: maxMessageLength},
		{name: "multi-byte cut on rune boundary", message: strings.Repeat("é", 40_000) + strings.Repeat("ü", 30_000), wantRunes: maxMessageLength},
		{name: "invalid bytes replaced", message: "bad \xff byte", wantRunes: 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncateMessage(tt.message)
			assert.True(t, utf8.ValidString(got))
			assert.Equal(t, tt.wantRunes, utf8.RuneCountInString(got))
		})
	}
}

func TestRecordIndexingEntityHistoryService_Execute_LongMultiByteMessage(t *testing.T) {
	h := memstore.NewHistory()
	s := NewRecordIndexingEntityHistoryService(h, testLogger())

	result := &models.IndexerResult{Status: models.IndexerResultStatusPartial, Messages: []string{strings.Repeat("é", 40_000)}}
	s.Execute(context.Background(), result, models.ActionAdd, []models.IndexingEntity{entityRow(1, 10, nil)})

	records := h.Records()
	require.Len(t, records, 1)
	assert.True(t, utf8.ValidString(records[0].Message))
	assert.Equal(t, 40_000, utf8.RuneCountInString(records[0].Message))
}

func TestRecordIndexingEntityHistoryService_Execute_FailureIsLogged(t *testing.T) {
	h := memstore.NewHistory()
	h.Fail("InsertHistory", errors.New("disk full"))
	s := NewRecordIndexingEntityHistoryService(h, testLogger())

	assert.NotPanics(t, func() {
		s.Execute(context.Background(), &models.IndexerResult{Status: models.IndexerResultStatusSuccess}, models.ActionUpdate,
			[]models.IndexingEntity{entityRow(1, 10, nil)})
	})
	assert.Empty(t, h.Records())

	s.Execute(context.Background(), nil, models.ActionUpdate, []models.IndexingEntity{entityRow(1, 10, nil)})
	s.Execute(context.Background(), &models.IndexerResult{}, models.ActionUpdate, nil)
	assert.Zero(t, h.Calls["InsertHistory"])
}

func TestConsolidateSyncHistoryService_RoundTrip(t *testing.T) {
	ctx := context.Background()
	h := memstore.NewHistory()
	morning := time.Date(2026, 5, 20, 8, 0, 0, 0, time.UTC)
	yesterday := time.Date(2026, 5, 19, 23, 0, 0, 0, time.UTC)
	require.NoError(t, h.InsertHistory(ctx, []models.SyncHistoryEntityRecord{
		historyRecord(10, models.ActionUpdate, morning.Add(time.Hour), false, "timeout"),
		historyRecord(10, models.ActionAdd, morning, true, ""),
		historyRecord(10, models.ActionUpdate, morning.Add(time.Hour), true, ""),
		historyRecord(11, models.ActionDelete, yesterday, true, ""),
	}))

	s := NewConsolidateSyncHistoryService(h, testLogger())
	s.now = fixedClock(today)
	summary, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, ConsolidationSummary{Groups: 2, Records: 4}, summary)
	assert.Empty(t, h.Records())

	consolidations := h.Consolidations()
	require.Len(t, consolidations, 2)
	byTarget := map[int64]models.SyncHistoryEntityConsolidationRecord{}
	for _, c := range consolidations {
		byTarget[c.TargetID] = c
	}

	c := byTarget[10]
	assert.Equal(t, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), c.Date)
	assert.Equal(t, []models.SyncHistoryEntry{
		{Action: models.ActionAdd, ActionTimestamp: morning, IsSuccess: true},
		{Action: models.ActionUpdate, ActionTimestamp: morning.Add(time.Hour), IsSuccess: false, Message: "timeout"},
		{Action: models.ActionUpdate, ActionTimestamp: morning.Add(time.Hour), IsSuccess: true},
	}, c.History)
	assert.Equal(t, time.Date(2026, 5, 19, 0, 0, 0, 0, time.UTC), byTarget[11].Date)

	require.NoError(t, h.InsertHistory(ctx, []models.SyncHistoryEntityRecord{
		historyRecord(10, models.ActionDelete, morning.Add(2*time.Hour), true, ""),
	}))
	summary, err = s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, ConsolidationSummary{Groups: 1, Records: 1}, summary)

	consolidations = h.Consolidations()
	require.Len(t, consolidations, 2)
	for _, c := range consolidations {
		if c.TargetID == 10 {
			require.Len(t, c.History, 4)
			assert.Equal(t, models.ActionDelete, c.History[3].Action)
		}
	}
}

func TestConsolidateSyncHistoryService_LeavesFutureRows(t *testing.T) {
	ctx := context.Background()
	h := memstore.NewHistory()
	require.NoError(t, h.InsertHistory(ctx, []models.SyncHistoryEntityRecord{
		historyRecord(10, models.ActionAdd, today.Add(24*time.Hour), true, ""),
	}))

	s := NewConsolidateSyncHistoryService(h, testLogger())
	s.now = fixedClock(today)
	summary, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Zero(t, summary.Groups)
	assert.Len(t, h.Records(), 1)
}

func TestConsolidateSyncHistoryService_GroupFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	h := memstore.NewHistory()
	require.NoError(t, h.InsertHistory(ctx, []models.SyncHistoryEntityRecord{
		historyRecord(10, models.ActionAdd, today, true, ""),
		historyRecord(11, models.ActionAdd, today, true, ""),
	}))
	h.Fail("DeleteHistory", errors.New("lock timeout"))

	s := NewConsolidateSyncHistoryService(h, testLogger())
	s.now = fixedClock(today)
	summary, err := s.Execute(ctx)
	require.NoError(t, err)
	assert.Equal(t, ConsolidationSummary{Groups: 2, Failed: 2}, summary)
	assert.Len(t, h.Records(), 2)
	assert.Empty(t, h.Consolidations())
}

func TestConsolidateSyncHistoryService_ListFailure(t *testing.T) {
	h := memstore.NewHistory()
	h.Fail("ListHistoryGroups", errors.New("connection refused"))

	_, err := NewConsolidateSyncHistoryService(h, testLogger()).Execute(context.Background())
	assert.EqualError(t, err, "connection refused")
}

func TestSyncHistoryQueryService_Execute(t *testing.T) {
	h := memstore.NewHistory()
	ctx := context.Background()
	for _, targetID := range []int64{10, 11} {
		require.NoError(t, h.SaveConsolidation(ctx, &models.SyncHistoryEntityConsolidationRecord{
			TargetEntityType: "KLEVU_PRODUCT",
			TargetID:         targetID,
			APIKey:           "K",
			Date:             today,
			History:          []models.SyncHistoryEntry{{Action: models.ActionAdd, ActionTimestamp: today, IsSuccess: true}},
		}))
	}

	tests := []struct {
		name      string
		apiKey    string
		targetIDs []int64
		fail      error
		want      int
		wantErr   bool
	}{
		{name: "whole account", apiKey: "K", want: 2},
		{name: "one target", apiKey: "K", targetIDs: []int64{11}, want: 1},
		{name: "other account", apiKey: "L", want: 0},
		{name: "api key required", apiKey: "", wantErr: true},
		{name: "store failure", apiKey: "K", fail: errors.New("connection refused"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.Fail("ListConsolidations", tt.fail)
			records, err := NewSyncHistoryQueryService(h, testLogger()).Execute(ctx, tt.apiKey, tt.targetIDs)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Len(t, records, tt.want)
		})
	}
}

func TestFold(t *testing.T) {
	group := models.SyncHistoryGroup{Date: today, APIKey: "K", TargetEntityType: "KLEVU_PRODUCT", TargetID: 10, TargetParentID: 3}
	record := Fold(group, []models.SyncHistoryEntityRecord{historyRecord(10, models.ActionAdd, today, true, "")})

	assert.Equal(t, int64(3), record.ParentID())
	assert.Equal(t, time.Date(2026, 5, 20, 0, 0, 0, 0, time.UTC), record.Date)
	assert.Len(t, record.History, 1)

	group.TargetParentID = 0
	assert.Nil(t, Fold(group, nil).TargetParentID)
}

func consolidation(date time.Time) models.SyncHistoryEntityConsolidationRecord {
	return models.SyncHistoryEntityConsolidationRecord{
		TargetEntityType: "KLEVU_PRODUCT",
		TargetID:         10,
		APIKey:           "K",
		Date:             date,
		History:          []models.SyncHistoryEntry{{Action: models.ActionAdd, ActionTimestamp: date, IsSuccess: true}},
	}
}

func TestCleanConsolidatedSyncHistoryService_Execute(t *testing.T) {
	h := memstore.NewHistory()
	h.SeedConsolidation(consolidation(time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)))
	h.SeedConsolidation(consolidation(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	kept := h.SeedConsolidation(consolidation(time.Date(2026, 5, 11, 0, 0, 0, 0, time.UTC)))

	s, err := NewCleanConsolidatedSyncHistoryService(h, 10, testLogger())
	require.NoError(t, err)
	s.now = fixedClock(today)

	summary, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, CleanSummary{Cutoff: "2026-05-10", Deleted: 2}, summary)

	remaining := h.Consolidations()
	require.Len(t, remaining, 1)
	assert.Equal(t, kept, remaining[0].ID)
}

func TestCleanConsolidatedSyncHistoryService_Config(t *testing.T) {
	h := memstore.NewHistory()
	s, err := NewCleanConsolidatedSyncHistoryService(h, 0, testLogger())
	require.NoError(t, err)
	s.now = fixedClock(today)
	assert.Equal(t, time.Date(2025, 11, 21, 0, 0, 0, 0, time.UTC), s.Cutoff())

	_, err = NewCleanConsolidatedSyncHistoryService(h, -1, testLogger())
	assert.Error(t, err)
}

func TestCleanConsolidatedSyncHistoryService_DeleteFailure(t *testing.T) {
	h := memstore.NewHistory()
	h.SeedConsolidation(consolidation(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	h.SeedConsolidation(consolidation(time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)))
	h.Fail("DeleteConsolidation", errors.New("permission denied"))

	s, err := NewCleanConsolidatedSyncHistoryService(h, 30, testLogger())
	require.NoError(t, err)
	s.now = fixedClock(today)

	summary, err := s.Execute(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Failed)
	assert.Zero(t, summary.Deleted)
	assert.Len(t, h.Consolidations(), 2)
}

func TestUpdateIndexingEntitiesActionsService_Execute(t *testing.T) {
	tests := []struct {
		name          string
		status        models.IndexerResultStatus
		action        models.Action
		wantLast      models.Action
		wantNext      models.Action
		wantIndexable bool
	}{
		{name: "add", status: models.IndexerResultStatusSuccess, action: models.ActionAdd, wantLast: models.ActionAdd, wantNext: models.ActionNoAction, wantIndexable: true},
		{name: "delete clears indexable", status: models.IndexerResultStatusSuccess, action: models.ActionDelete, wantLast: models.ActionDelete, wantNext: models.ActionNoAction, wantIndexable: false},
		{name: "partial is ignored", status: models.IndexerResultStatusPartial, action: models.ActionAdd, wantLast: models.ActionNoAction, wantNext: models.ActionAdd, wantIndexable: true},
		{name: "error is ignored", status: models.IndexerResultStatusError, action: models.ActionAdd, wantLast: models.ActionNoAction, wantNext: models.ActionAdd, wantIndexable: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			row := entityRow(1, 10, nil)
			row.RequiresUpdate = true
			row.LockTimestamp = models.Ptr(today)
			s := memstore.NewEntities(row)
			svc := NewUpdateIndexingEntitiesActionsService(s, testLogger())
			svc.now = fixedClock(today)

			err := svc.Execute(context.Background(), &models.IndexerResult{Status: tt.status}, tt.action, []models.IndexingEntity{row})
			require.NoError(t, err)

			got, _ := s.Get(1)
			assert.Equal(t, tt.wantLast, got.LastAction)
			assert.Equal(t, tt.wantNext, got.NextAction)
			assert.Equal(t, tt.wantIndexable, got.IsIndexable)
			if tt.status == models.IndexerResultStatusSuccess {
				assert.Equal(t, today, *got.LastActionTimestamp)
				assert.False(t, got.RequiresUpdate)
				assert.Nil(t, got.LockTimestamp)
			} else {
				assert.Nil(t, got.LastActionTimestamp)
				assert.True(t, got.RequiresUpdate)
			}
		})
	}
}

func TestUpdateIndexingEntitiesActionsService_Execute_StoreFailure(t *testing.T) {
	s := memstore.NewEntities(entityRow(1, 10, nil))
	s.Fail("Update", errors.New("read only"))
	svc := NewUpdateIndexingEntitiesActionsService(s, testLogger())

	err := svc.Execute(context.Background(), &models.IndexerResult{Status: models.IndexerResultStatusSuccess}, models.ActionAdd,
		[]models.IndexingEntity{entityRow(1, 10, nil)})
	assert.EqualError(t, err, "read only")
}

func TestUpdateIndexingAttributesActionsService_Execute(t *testing.T) {
	row := models.IndexingAttribute{ID: 1, TargetAttributeType: "KLEVU_ATTRIBUTE", TargetID: 10, TargetCode: "color", APIKey: "K",
		NextAction: models.ActionDelete, LastAction: models.ActionAdd, IsIndexable: true, LockTimestamp: models.Ptr(today)}
	s := memstore.NewAttributes(row)
	svc := NewUpdateIndexingAttributesActionsService(s, testLogger())
	svc.now = fixedClock(today)

	err := svc.Execute(context.Background(), &models.IndexerResult{Status: models.IndexerResultStatusSuccess}, models.ActionDelete,
		[]models.IndexingAttribute{row})
	require.NoError(t, err)

	got, _ := s.Get(1)
	assert.Equal(t, models.ActionDelete, got.LastAction)
	assert.Equal(t, models.ActionNoAction, got.NextAction)
	assert.False(t, got.IsIndexable)
	assert.Nil(t, got.LockTimestamp)
}
