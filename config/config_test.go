package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, "indexing", cfg.AppName)
	assert.Equal(t, 2500, cfg.BatchSize)
	assert.Equal(t, 180, cfg.HistoryRetentionDays)
	assert.Equal(t, 30*time.Minute, cfg.RowLockTTL)
	assert.Equal(t, []string{"KLEVU_PRODUCT", "KLEVU_CATEGORY", "KLEVU_CMS"}, cfg.EntityTypes)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka().Brokers)
	assert.Equal(t, "localhost:6379", cfg.Redis().Addr())
	assert.Equal(t, "indexing.notifications", cfg.Topics().Notifications)
	assert.True(t, cfg.RequiresUpdateEnabled)
	assert.Empty(t, cfg.RequiresUpdateTypes)

	accounts, err := cfg.AccountCredentials()
	require.NoError(t, err)
	assert.Empty(t, accounts)
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	t.Setenv("INDEXING_BATCH_SIZE", "500")
	t.Setenv("ENTITY_TYPES", "KLEVU_PRODUCT,KLEVU_CMS")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092")
	t.Setenv("ENTITY_SYNC_INTERVAL", "90s")
	t.Setenv("ACCOUNTS", `{"klevu-2":"rest-2","klevu-1":"rest-1"}`)
	t.Setenv("REQUIRES_UPDATE_ENABLED", "false")
	t.Setenv("REQUIRES_UPDATE_ENTITY_TYPES", "KLEVU_PRODUCT")

	cfg, err := Load(t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, 500, cfg.BatchSize)
	assert.Equal(t, []string{"KLEVU_PRODUCT", "KLEVU_CMS"}, cfg.EntityTypes)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka().Brokers)
	assert.False(t, cfg.RequiresUpdateEnabled)
	assert.Equal(t, []string{"KLEVU_PRODUCT"}, cfg.RequiresUpdateTypes)
	assert.Equal(t, 90*time.Second, cfg.EntitySyncInterval)

	accounts, err := cfg.AccountCredentials()
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, "klevu-1", accounts[0].APIKey)
	assert.Equal(t, "rest-2", accounts[1].RestKey)
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(`
port: 8080
history_retention_days: 30
db_name: indexing_test
pipeline_overrides:
  KLEVU_PRODUCT::Add:
    - pipelines/overrides/product_add.yaml
`), 0o600))

	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 30, cfg.HistoryRetentionDays)
	assert.Equal(t, "indexing_test", cfg.Database().Name)
	assert.Equal(t, []string{"pipelines/overrides/product_add.yaml"}, cfg.PipelineOverridesFor("KLEVU_PRODUCT::Add"))
	assert.Empty(t, cfg.PipelineOverridesFor("KLEVU_PRODUCT::Delete"))
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name    string
		env     map[string]string
		message string
	}{
		{
			name:    "accounts are not json",
			env:     map[string]string{"ACCOUNTS": "klevu-1=rest-1"},
			message: "invalid account credentials",
		},
		{
			name:    "negative retention",
			env:     map[string]string{"HISTORY_RETENTION_DAYS": "-1"},
			message: "history_retention_days must be positive",
		},
		{
			name:    "no brokers",
			env:     map[string]string{"KAFKA_BROKERS": " , "},
			message: "kafka_brokers is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load(t.TempDir())
			assert.ErrorContains(t, err, tt.message)
		})
	}
}
