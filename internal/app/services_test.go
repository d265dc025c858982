package app

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/klevu/module-m2-indexing-sub002/config"
	"github.com/klevu/module-m2-indexing-sub002/internal/memstore"
	"github.com/klevu/module-m2-indexing-sub002/pkg/discovery"
	"github.com/klevu/module-m2-indexing-sub002/pkg/indexsync"
	"github.com/klevu/module-m2-indexing-sub002/pkg/kafka"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/notification"
)

const productType = "KLEVU_PRODUCT"

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

type capturePublisher struct {
	mu       sync.Mutex
	messages []kafka.Message
}

func (p *capturePublisher) Publish(_ context.Context, messages ...kafka.Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.messages = append(p.messages, messages...)
	return nil
}

func (p *capturePublisher) byEvent(eventType string) []kafka.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []kafka.Message
	for _, m := range p.messages {
		if m.EventType == eventType {
			out = append(out, m)
		}
	}
	return out
}

type passLocker struct {
	keys []string
}

func (l *passLocker) WithLock(_ context.Context, key string, _ time.Duration, fn func() error) error {
	l.keys = append(l.keys, key)
	return fn()
}

func testConfig() *config.Config {
	return &config.Config{
		AppName:                 "indexing-test",
		BatchSize:               100,
		RowLockTTL:              time.Minute,
		RunLockTTL:              time.Minute,
		SchedulerLockTTL:        time.Minute,
		HistoryRetentionDays:    180,
		EntityTypes:             []string{productType},
		AttributeTypes:          []string{"KLEVU_ATTRIBUTE"},
		EntityPipelinePath:      filepath.Join("..", "..", "pipelines", "entity.yaml"),
		AttributePipelinePath:   filepath.Join("..", "..", "pipelines", "attribute.yaml"),
		KafkaNotificationsTopic: "test.notifications",
		KafkaSyncEventsTopic:    "test.sync-events",
		KafkaRecordsTopic:       "test.records",
		Accounts:                `{"K":"rest-K"}`,
	}
}

type fixture struct {
	services   *Services
	entities   *memstore.Entities
	attributes *memstore.Attributes
	history    *memstore.History
	publisher  *capturePublisher
	locker     *passLocker
}

func newFixture(t *testing.T, cfg *config.Config) *fixture {
	t.Helper()
	f := &fixture{
		entities:   memstore.NewEntities(),
		attributes: memstore.NewAttributes(),
		history:    memstore.NewHistory(),
		publisher:  &capturePublisher{},
		locker:     &passLocker{},
	}
	services, err := NewServices(Deps{
		Config:     cfg,
		Entities:   f.entities,
		Attributes: f.attributes,
		History:    f.history,
		Locker:     f.locker,
		Publisher:  f.publisher,
		Logger:     testLogger(),
	})
	require.NoError(t, err)
	f.services = services
	return f
}

func TestServices_DiscoverThenSyncEntities(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())

	o, err := f.services.EntityDiscovery([]discovery.EntityProvider{
		discovery.NewSnapshotEntityProvider(productType, models.EntitySnapshot{
			"K": {{EntityID: 10, APIKey: "K", IsIndexable: true}},
		}),
	})
	require.NoError(t, err)
	result := o.Execute(ctx, discovery.Request{})
	require.True(t, result.IsSuccess, result.Messages)
	require.Len(t, f.entities.All(), 1)

	report := indexsync.Collect(f.services.EntitySync.Execute(ctx, indexsync.SyncRequest{}))
	assert.Equal(t, 1, report.Totals[models.IndexerResultStatusSuccess])
	assert.Contains(t, f.locker.keys, "sync:K~~KLEVU_PRODUCT::Add")

	dispatched := f.publisher.byEvent(notification.EventRecordDispatched)
	require.Len(t, dispatched, 1)
	assert.Equal(t, "test.records", dispatched[0].Topic)
	assert.Equal(t, "K:KLEVU_PRODUCT", dispatched[0].Key)

	row := f.entities.All()[0]
	assert.Equal(t, models.ActionNoAction, row.NextAction)
	assert.Equal(t, models.ActionAdd, row.LastAction)
	assert.Nil(t, row.LockTimestamp)

	records := f.history.Records()
	require.Len(t, records, 1)
	assert.True(t, records[0].IsSuccess)
	assert.Equal(t, int64(10), records[0].TargetID)

	completed := f.publisher.byEvent(notification.EventSyncCompleted)
	require.Len(t, completed, 1)
	assert.Equal(t, "test.sync-events", completed[0].Topic)
}

func TestServices_ChangedEntityIsUpdated(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.RequiresUpdateEnabled = true
	f := newFixture(t, cfg)

	discover := func(changed bool) {
		t.Helper()
		o, err := f.services.EntityDiscovery([]discovery.EntityProvider{
			discovery.NewSnapshotEntityProvider(productType, models.EntitySnapshot{
				"K": {{EntityID: 10, APIKey: "K", IsIndexable: true, RequiresUpdate: changed}},
			}),
		})
		require.NoError(t, err)
		result := o.Execute(ctx, discovery.Request{})
		require.True(t, result.IsSuccess, result.Messages)
	}

	discover(true)
	row := f.entities.All()[0]
	require.Equal(t, models.ActionAdd, row.NextAction)

	indexsync.Collect(f.services.EntitySync.Execute(ctx, indexsync.SyncRequest{}))
	row = f.entities.All()[0]
	require.Equal(t, models.ActionAdd, row.LastAction)
	require.False(t, row.RequiresUpdate)

	discover(true)
	row = f.entities.All()[0]
	assert.True(t, row.RequiresUpdate)
	assert.Equal(t, models.ActionUpdate, row.NextAction)

	report := indexsync.Collect(f.services.EntitySync.Execute(ctx, indexsync.SyncRequest{}))
	assert.Equal(t, 1, report.Totals[models.IndexerResultStatusSuccess])
	row = f.entities.All()[0]
	assert.Equal(t, models.ActionUpdate, row.LastAction)
	assert.Equal(t, models.ActionNoAction, row.NextAction)
	assert.False(t, row.RequiresUpdate)
	assert.Len(t, f.publisher.byEvent(notification.EventRecordDispatched), 2)

	discover(false)
	assert.Equal(t, models.ActionNoAction, f.entities.All()[0].NextAction)
}

func TestServices_DiscoverThenSyncAttributes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, testConfig())

	o, err := f.services.AttributeDiscovery([]discovery.AttributeProvider{
		discovery.NewSnapshotAttributeProvider("KLEVU_ATTRIBUTE", models.AttributeSnapshot{
			"K": {{AttributeID: 7, AttributeCode: "color", APIKey: "K", IsIndexable: true, KlevuAttributeName: "color"}},
		}),
	})
	require.NoError(t, err)
	require.True(t, o.Execute(ctx, discovery.Request{}).IsSuccess)

	report := indexsync.Collect(f.services.AttributeSync.Execute(ctx, indexsync.SyncRequest{APIKeys: []string{"K"}}))
	assert.Equal(t, 1, report.Totals[models.IndexerResultStatusSuccess])

	dispatched := f.publisher.byEvent(notification.EventRecordDispatched)
	require.Len(t, dispatched, 1)
	assert.Equal(t, "K:KLEVU_ATTRIBUTE", dispatched[0].Key)

	row := f.attributes.All()[0]
	assert.Equal(t, models.ActionNoAction, row.NextAction)
	assert.Equal(t, models.ActionAdd, row.LastAction)
}

func TestNewServices_Errors(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *config.Config)
		message string
	}{
		{
			name:    "invalid accounts",
			mutate:  func(cfg *config.Config) { cfg.Accounts = "not json" },
			message: "invalid account credentials",
		},
		{
			name:    "missing pipeline file",
			mutate:  func(cfg *config.Config) { cfg.EntityPipelinePath = filepath.Join(os.TempDir(), "missing-pipeline.yaml") },
			message: "failed to build KLEVU_PRODUCT::Add pipeline",
		},
		{
			name:    "negative retention",
			mutate:  func(cfg *config.Config) { cfg.HistoryRetentionDays = -1 },
			message: "history retention must be a positive number of days",
		},
		{
			name:    "batch size out of range",
			mutate:  func(cfg *config.Config) { cfg.BatchSize = -5 },
			message: "Invalid Batch Size provided",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig()
			tt.mutate(cfg)
			_, err := NewServices(Deps{
				Config:     cfg,
				Entities:   memstore.NewEntities(),
				Attributes: memstore.NewAttributes(),
				History:    memstore.NewHistory(),
				Locker:     &passLocker{},
				Publisher:  &capturePublisher{},
				Logger:     testLogger(),
			})
			assert.ErrorContains(t, err, tt.message)
		})
	}
}

func TestServices_PipelineOverrides(t *testing.T) {
	dir := t.TempDir()
	override := filepath.Join(dir, "product_add.yaml")
	require.NoError(t, os.WriteFile(override, []byte("stages:\n  - id: dispatch_entity\n    remove: true\n"), 0o600))

	cfg := testConfig()
	cfg.PipelineOverrides = map[string][]string{"klevu_product::add": {override}}
	f := newFixture(t, cfg)

	require.NoError(t, f.entities.Insert(context.Background(), []models.IndexingEntity{{
		TargetEntityType: productType,
		TargetID:         10,
		APIKey:           "K",
		NextAction:       models.ActionAdd,
		LastAction:       models.ActionNoAction,
		IsIndexable:      true,
	}}))

	indexsync.Collect(f.services.EntitySync.Execute(context.Background(), indexsync.SyncRequest{}))
	assert.Empty(t, f.publisher.byEvent(notification.EventRecordDispatched))
}
