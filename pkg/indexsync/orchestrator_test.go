package indexsync

import (
	"context"
	"errors"
	"iter"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/redis"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type staticAccounts struct {
	accounts []models.AccountCredentials
	err      error
}

func (s staticAccounts) Accounts(_ context.Context) ([]models.AccountCredentials, error) {
	return s.accounts, s.err
}

func accounts(keys ...string) staticAccounts {
	out := make([]models.AccountCredentials, len(keys))
	for i, k := range keys {
		out[i] = models.AccountCredentials{APIKey: k, RestKey: "rest-" + k}
	}
	return staticAccounts{accounts: out}
}

// fakeIndexer yields one result per status for every api key.
type fakeIndexer struct {
	targetType string
	action     models.Action
	statuses   []models.IndexerResultStatus
	calls      []string
}

func (f *fakeIndexer) Action() models.Action { return f.action }
func (f *fakeIndexer) EntityType() string    { return f.targetType }
func (f *fakeIndexer) AttributeType() string { return f.targetType }

func (f *fakeIndexer) Execute(_ context.Context, apiKey string) iter.Seq[*models.IndexerResult] {
	return func(yield func(*models.IndexerResult) bool) {
		f.calls = append(f.calls, apiKey)
		for _, s := range f.statuses {
			if !yield(&models.IndexerResult{Status: s, Action: f.action, Messages: []string{}}) {
				return
			}
		}
	}
}

type fakeLocker struct {
	held []string
	keys []string
	ttls []time.Duration
	err  error
}

func (l *fakeLocker) WithLock(_ context.Context, key string, ttl time.Duration, fn func() error) error {
	l.keys = append(l.keys, key)
	l.ttls = append(l.ttls, ttl)
	if l.err != nil {
		return l.err
	}
	for _, h := range l.held {
		if h == key {
			return redis.ErrLockNotAcquired
		}
	}
	return fn()
}

func entityIndexers(idx ...*fakeIndexer) []EntityIndexer {
	out := make([]EntityIndexer, len(idx))
	for i, x := range idx {
		out[i] = x
	}
	return out
}

func collectKeys(seq iter.Seq2[string, *models.IndexerResult]) []string {
	var keys []string
	for k := range seq {
		keys = append(keys, k)
	}
	return keys
}

func TestRun_Key(t *testing.T) {
	run := Run{APIKey: "klevu-123", Type: "KLEVU_PRODUCT", Action: models.ActionUpdate}
	assert.Equal(t, "klevu-123~~KLEVU_PRODUCT::Update", run.Key())
	assert.Equal(t, "KLEVU_CMS::Delete", IndexerKey("KLEVU_CMS", models.ActionDelete))
}

func TestNewEntitySyncOrchestrator_Registration(t *testing.T) {
	t.Run("duplicate type and action", func(t *testing.T) {
		_, err := NewEntitySyncOrchestrator(accounts("K"), entityIndexers(
			&fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd},
			&fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd},
		), Options{}, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "KLEVU_PRODUCT::Add is registered twice")
	})

	t.Run("empty type", func(t *testing.T) {
		_, err := NewEntitySyncOrchestrator(accounts("K"), entityIndexers(
			&fakeIndexer{action: models.ActionAdd},
		), Options{}, testLogger())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty type")
	})

	t.Run("keys are sorted", func(t *testing.T) {
		o, err := NewEntitySyncOrchestrator(accounts("K"), entityIndexers(
			&fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionUpdate},
			&fakeIndexer{targetType: "KLEVU_CMS", action: models.ActionAdd},
			&fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd},
		), Options{}, testLogger())
		require.NoError(t, err)
		assert.Equal(t, []string{"KLEVU_CMS::Add", "KLEVU_PRODUCT::Add", "KLEVU_PRODUCT::Update"}, o.IndexerKeys())
	})
}

func TestEntitySyncOrchestrator_Execute(t *testing.T) {
	product := &fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd, statuses: []models.IndexerResultStatus{
		models.IndexerResultStatusSuccess, models.IndexerResultStatusPartial,
	}}
	cms := &fakeIndexer{targetType: "KLEVU_CMS", action: models.ActionDelete, statuses: []models.IndexerResultStatus{
		models.IndexerResultStatusNoop,
	}}

	var events []models.SyncCompletedEvent
	var batches []string
	o, err := NewEntitySyncOrchestrator(accounts("K1", "K2"), entityIndexers(product, cms), Options{
		BatchListeners: []BatchListener{BatchListenerFunc(func(_ context.Context, run Run, result *models.IndexerResult) {
			batches = append(batches, run.Key()+"="+string(result.Status))
		})},
		CompletionListeners: []CompletionListener{CompletionListenerFunc(func(_ context.Context, event models.SyncCompletedEvent) {
			events = append(events, event)
		})},
	}, testLogger())
	require.NoError(t, err)

	keys := collectKeys(o.Execute(context.Background(), SyncRequest{}))

	assert.Equal(t, []string{
		"K1~~KLEVU_CMS::Delete",
		"K1~~KLEVU_PRODUCT::Add",
		"K1~~KLEVU_PRODUCT::Add",
		"K2~~KLEVU_CMS::Delete",
		"K2~~KLEVU_PRODUCT::Add",
		"K2~~KLEVU_PRODUCT::Add",
	}, keys)
	assert.Equal(t, []string{
		"K1~~KLEVU_CMS::Delete=noop",
		"K1~~KLEVU_PRODUCT::Add=success",
		"K1~~KLEVU_PRODUCT::Add=partial",
		"K2~~KLEVU_CMS::Delete=noop",
		"K2~~KLEVU_PRODUCT::Add=success",
		"K2~~KLEVU_PRODUCT::Add=partial",
	}, batches)

	require.Len(t, events, 1)
	event := events[0]
	assert.Equal(t, "entity", event.Kind)
	assert.NotEmpty(t, event.ID)
	require.Len(t, event.Runs, 4)
	assert.Equal(t, "K1~~KLEVU_PRODUCT::Add", event.Runs[1].Key)
	assert.Equal(t, map[models.IndexerResultStatus]int{
		models.IndexerResultStatusSuccess: 1,
		models.IndexerResultStatusPartial: 1,
	}, event.Runs[1].Batches)
	assert.False(t, event.Runs[1].Skipped)
}

func TestEntitySyncOrchestrator_Filters(t *testing.T) {
	tests := []struct {
		name     string
		req      SyncRequest
		expected []string
	}{
		{
			name:     "by api key",
			req:      SyncRequest{APIKeys: []string{"K2"}},
			expected: []string{"K2~~KLEVU_CMS::Add", "K2~~KLEVU_PRODUCT::Add"},
		},
		{
			name:     "by type",
			req:      SyncRequest{Types: []string{"KLEVU_PRODUCT"}},
			expected: []string{"K1~~KLEVU_PRODUCT::Add", "K2~~KLEVU_PRODUCT::Add"},
		},
		{
			name:     "unknown api key is skipped",
			req:      SyncRequest{APIKeys: []string{"K9", "K1"}},
			expected: []string{"K1~~KLEVU_CMS::Add", "K1~~KLEVU_PRODUCT::Add"},
		},
		{
			name:     "nothing matches",
			req:      SyncRequest{Types: []string{"KLEVU_CATEGORY"}},
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o, err := NewEntitySyncOrchestrator(accounts("K1", "K2"), entityIndexers(
				&fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd, statuses: []models.IndexerResultStatus{models.IndexerResultStatusSuccess}},
				&fakeIndexer{targetType: "KLEVU_CMS", action: models.ActionAdd, statuses: []models.IndexerResultStatus{models.IndexerResultStatusSuccess}},
			), Options{}, testLogger())
			require.NoError(t, err)

			assert.Equal(t, tt.expected, collectKeys(o.Execute(context.Background(), tt.req)))
		})
	}
}

func TestEntitySyncOrchestrator_DuplicateAndEmptyAccounts(t *testing.T) {
	provider := staticAccounts{accounts: []models.AccountCredentials{
		{APIKey: "K1"}, {APIKey: ""}, {APIKey: "K1"},
	}}
	idx := &fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd, statuses: []models.IndexerResultStatus{models.IndexerResultStatusNoop}}
	o, err := NewEntitySyncOrchestrator(provider, entityIndexers(idx), Options{}, testLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"K1~~KLEVU_PRODUCT::Add"}, collectKeys(o.Execute(context.Background(), SyncRequest{})))
	assert.Equal(t, []string{"K1"}, idx.calls)
}

func TestEntitySyncOrchestrator_AccountProviderFailure(t *testing.T) {
	var events []models.SyncCompletedEvent
	o, err := NewEntitySyncOrchestrator(staticAccounts{err: errors.New("vault sealed")}, entityIndexers(
		&fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd},
	), Options{CompletionListeners: []CompletionListener{CompletionListenerFunc(func(_ context.Context, e models.SyncCompletedEvent) {
		events = append(events, e)
	})}}, testLogger())
	require.NoError(t, err)

	assert.Empty(t, collectKeys(o.Execute(context.Background(), SyncRequest{})))
	require.Len(t, events, 1)
	assert.Empty(t, events[0].Runs)
}

func TestEntitySyncOrchestrator_Locking(t *testing.T) {
	product := &fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd, statuses: []models.IndexerResultStatus{models.IndexerResultStatusSuccess}}
	locker := &fakeLocker{held: []string{"sync:K1~~KLEVU_PRODUCT::Add"}}

	var events []models.SyncCompletedEvent
	o, err := NewEntitySyncOrchestrator(accounts("K1", "K2"), entityIndexers(product), Options{
		Locker: locker,
		CompletionListeners: []CompletionListener{CompletionListenerFunc(func(_ context.Context, e models.SyncCompletedEvent) {
			events = append(events, e)
		})},
	}, testLogger())
	require.NoError(t, err)

	keys := collectKeys(o.Execute(context.Background(), SyncRequest{}))

	assert.Equal(t, []string{"K2~~KLEVU_PRODUCT::Add"}, keys)
	assert.Equal(t, []string{"sync:K1~~KLEVU_PRODUCT::Add", "sync:K2~~KLEVU_PRODUCT::Add"}, locker.keys)
	assert.Equal(t, []time.Duration{DefaultRunLockTTL, DefaultRunLockTTL}, locker.ttls)
	assert.Equal(t, []string{"K2"}, product.calls)

	require.Len(t, events, 1)
	require.Len(t, events[0].Runs, 2)
	assert.True(t, events[0].Runs[0].Skipped)
	assert.False(t, events[0].Runs[1].Skipped)
}

func TestEntitySyncOrchestrator_LockerFailure(t *testing.T) {
	product := &fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd, statuses: []models.IndexerResultStatus{models.IndexerResultStatusSuccess}}
	locker := &fakeLocker{err: errors.New("redis: connection refused")}

	o, err := NewEntitySyncOrchestrator(accounts("K1"), entityIndexers(product), Options{Locker: locker, LockTTL: time.Minute}, testLogger())
	require.NoError(t, err)

	assert.Empty(t, collectKeys(o.Execute(context.Background(), SyncRequest{})))
	assert.Equal(t, []time.Duration{time.Minute}, locker.ttls)
	assert.Empty(t, product.calls)
}

func TestEntitySyncOrchestrator_StopEarly(t *testing.T) {
	product := &fakeIndexer{targetType: "KLEVU_PRODUCT", action: models.ActionAdd, statuses: []models.IndexerResultStatus{
		models.IndexerResultStatusSuccess, models.IndexerResultStatusSuccess, models.IndexerResultStatusSuccess,
	}}
	completed := 0
	o, err := NewEntitySyncOrchestrator(accounts("K1", "K2"), entityIndexers(product), Options{
		CompletionListeners: []CompletionListener{CompletionListenerFunc(func(context.Context, models.SyncCompletedEvent) {
			completed++
		})},
	}, testLogger())
	require.NoError(t, err)

	n := 0
	for range o.Execute(context.Background(), SyncRequest{}) {
		n++
		if n == 2 {
			break
		}
	}

	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"K1"}, product.calls)
	assert.Zero(t, completed)
}

func TestAttributeSyncOrchestrator_Execute(t *testing.T) {
	add := &fakeIndexer{targetType: "KLEVU_ATTRIBUTE", action: models.ActionAdd, statuses: []models.IndexerResultStatus{models.IndexerResultStatusSuccess}}
	del := &fakeIndexer{targetType: "KLEVU_ATTRIBUTE", action: models.ActionDelete, statuses: []models.IndexerResultStatus{models.IndexerResultStatusError}}

	var kinds []string
	o, err := NewAttributeSyncOrchestrator(accounts("K"), []AttributeIndexer{del, add}, Options{
		CompletionListeners: []CompletionListener{CompletionListenerFunc(func(_ context.Context, e models.SyncCompletedEvent) {
			kinds = append(kinds, e.Kind)
		})},
	}, testLogger())
	require.NoError(t, err)

	results := map[string]models.IndexerResultStatus{}
	for key, result := range o.Execute(context.Background(), SyncRequest{}) {
		results[key] = result.Status
	}

	assert.Equal(t, map[string]models.IndexerResultStatus{
		"K~~KLEVU_ATTRIBUTE::Add":    models.IndexerResultStatusSuccess,
		"K~~KLEVU_ATTRIBUTE::Delete": models.IndexerResultStatusError,
	}, results)
	assert.Equal(t, []string{"attribute"}, kinds)
}

func TestCollect(t *testing.T) {
	seq := func(yield func(string, *models.IndexerResult) bool) {
		if !yield("K~~KLEVU_PRODUCT::Add", &models.IndexerResult{
			Status:   models.IndexerResultStatusPartial,
			Messages: []string{"2: Invalid TargetCode"},
			Entities: []models.IndexingEntity{{ID: 1}, {ID: 2}},
		}) {
			return
		}
		yield("K~~KLEVU_ATTRIBUTE::Delete", &models.IndexerResult{
			Status:     models.IndexerResultStatusSuccess,
			Attributes: []models.IndexingAttribute{{ID: 7}},
		})
	}

	report := Collect(seq)

	assert.Equal(t, map[models.IndexerResultStatus]int{
		models.IndexerResultStatusPartial: 1,
		models.IndexerResultStatusSuccess: 1,
	}, report.Totals)
	assert.Equal(t, []BatchReport{
		{Key: "K~~KLEVU_PRODUCT::Add", Status: models.IndexerResultStatusPartial, Records: 2, Messages: []string{"2: Invalid TargetCode"}},
		{Key: "K~~KLEVU_ATTRIBUTE::Delete", Status: models.IndexerResultStatusSuccess, Records: 1},
	}, report.Batches)
}
