package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/klevu/module-m2-indexing-sub002/pkg/credentials"
	"github.com/klevu/module-m2-indexing-sub002/pkg/database"
	"github.com/klevu/module-m2-indexing-sub002/pkg/kafka"
	"github.com/klevu/module-m2-indexing-sub002/pkg/models"
	"github.com/klevu/module-m2-indexing-sub002/pkg/notification"
	"github.com/klevu/module-m2-indexing-sub002/pkg/redis"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// Config keys double as environment variable names, upper cased.
type Config struct {
	AppName            string        `mapstructure:"app_name"`
	Version            string        `mapstructure:"app_version"`
	Port               int           `mapstructure:"port"`
	LogLevel           string        `mapstructure:"log_level"`
	PrettyLogs         bool          `mapstructure:"pretty_logs"`
	ShutdownTimeout    time.Duration `mapstructure:"shutdown_timeout"`
	StartupMaxAttempts int           `mapstructure:"startup_max_attempts"`

	// PostgreSQL
	DatabaseHost                  string        `mapstructure:"db_host"`
	DatabasePort                  string        `mapstructure:"db_port"`
	DatabaseUserName              string        `mapstructure:"db_user_name"`
	DatabasePassword              string        `mapstructure:"db_password"`
	DatabaseName                  string        `mapstructure:"db_name"`
	DatabaseSSLMode               string        `mapstructure:"db_ssl_mode"`
	DatabaseMaxOpenConns          int           `mapstructure:"db_max_open_conns"`
	DatabaseMaxIdleConns          int           `mapstructure:"db_max_idle_conns"`
	DatabaseConnMaxLifetime       time.Duration `mapstructure:"db_conn_max_lifetime"`
	DatabaseMigrationFolderPath   string        `mapstructure:"db_migration_folder_path"`
	DatabaseMigrationVersion      uint          `mapstructure:"db_migration_version"`
	DatabaseMigrationForce        int           `mapstructure:"db_migration_force"`
	DatabaseMigrationAutoRollback bool          `mapstructure:"db_migration_auto_rollback"`
	DatabaseMigrateOnStart        bool          `mapstructure:"db_migrate_on_start"`

	// Redis
	RedisHost     string `mapstructure:"redis_host"`
	RedisPort     int    `mapstructure:"redis_port"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	LockPrefix    string `mapstructure:"lock_prefix"`

	// Kafka
	KafkaBrokers            string        `mapstructure:"kafka_brokers"`
	KafkaBatchSize          int           `mapstructure:"kafka_batch_size"`
	KafkaBatchTimeout       time.Duration `mapstructure:"kafka_batch_timeout"`
	KafkaRequiredAcks       int           `mapstructure:"kafka_required_acks"`
	KafkaCompression        string        `mapstructure:"kafka_compression"`
	KafkaNotificationsTopic string        `mapstructure:"kafka_notifications_topic"`
	KafkaSyncEventsTopic    string        `mapstructure:"kafka_sync_events_topic"`
	KafkaRecordsTopic       string        `mapstructure:"kafka_records_topic"`

	// Tracing
	OTLPEnabled  bool          `mapstructure:"otlp_enabled"`
	OTLPEndpoint string        `mapstructure:"otlp_endpoint"`
	OTLPProtocol string        `mapstructure:"otlp_protocol"`
	OTLPInsecure bool          `mapstructure:"otlp_insecure"`
	OTLPTimeout  time.Duration `mapstructure:"otlp_timeout"`

	// Scheduler. A zero interval disables the job.
	SchedulerEnabled           bool          `mapstructure:"scheduler_enabled"`
	SchedulerLockTTL           time.Duration `mapstructure:"scheduler_lock_ttl"`
	EntitySyncInterval         time.Duration `mapstructure:"entity_sync_interval"`
	AttributeSyncInterval      time.Duration `mapstructure:"attribute_sync_interval"`
	HistoryConsolidateInterval time.Duration `mapstructure:"history_consolidate_interval"`
	HistoryCleanInterval       time.Duration `mapstructure:"history_clean_interval"`

	// Indexing
	BatchSize            int           `mapstructure:"indexing_batch_size"`
	RowLockTTL           time.Duration `mapstructure:"indexing_row_lock_ttl"`
	RunLockTTL           time.Duration `mapstructure:"indexing_run_lock_ttl"`
	HistoryRetentionDays int           `mapstructure:"history_retention_days"`
	PurgeDeletedEntities bool          `mapstructure:"purge_deleted_entities"`
	// RequiresUpdateEnabled queues Updates for rows flagged dirty by source
	// snapshots. RequiresUpdateTypes limits it to those entity types.
	RequiresUpdateEnabled bool     `mapstructure:"requires_update_enabled"`
	RequiresUpdateTypes   []string `mapstructure:"requires_update_entity_types"`
	EntityTypes           []string `mapstructure:"entity_types"`
	AttributeTypes        []string `mapstructure:"attribute_types"`
	StandardAttributes    []string `mapstructure:"standard_attributes"`
	EntityPipelinePath    string   `mapstructure:"entity_pipeline_path"`
	AttributePipelinePath string   `mapstructure:"attribute_pipeline_path"`
	// PipelineOverrides maps type::action to override files applied on top
	// of the base pipeline of its kind.
	PipelineOverrides map[string][]string `mapstructure:"pipeline_overrides"`
	// Accounts is a JSON object of api key to rest key.
	Accounts string `mapstructure:"accounts"`
}

var defaults = map[string]any{
	"app_name":             "indexing",
	"app_version":          "dev",
	"port":                 3004,
	"log_level":            "info",
	"pretty_logs":          false,
	"shutdown_timeout":     "30s",
	"startup_max_attempts": 5,

	"db_host":                    "localhost",
	"db_port":                    "5432",
	"db_user_name":               "",
	"db_password":                "",
	"db_name":                    "indexing",
	"db_ssl_mode":                "disable",
	"db_max_open_conns":          25,
	"db_max_idle_conns":          10,
	"db_conn_max_lifetime":       "10s",
	"db_migration_folder_path":   "db/pg",
	"db_migration_version":       0,
	"db_migration_force":         0,
	"db_migration_auto_rollback": true,
	"db_migrate_on_start":        false,

	"redis_host":     "localhost",
	"redis_port":     6379,
	"redis_password": "",
	"redis_db":       0,
	"lock_prefix":    "indexing:lock:",

	"kafka_brokers":             "localhost:9092",
	"kafka_batch_size":          100,
	"kafka_batch_timeout":       "100ms",
	"kafka_required_acks":       1,
	"kafka_compression":         "snappy",
	"kafka_notifications_topic": notification.DefaultTopics().Notifications,
	"kafka_sync_events_topic":   notification.DefaultTopics().SyncEvents,
	"kafka_records_topic":       notification.DefaultTopics().Records,

	"otlp_enabled":  false,
	"otlp_endpoint": "localhost:4317",
	"otlp_protocol": "grpc",
	"otlp_insecure": true,
	"otlp_timeout":  "10s",

	"scheduler_enabled":            true,
	"scheduler_lock_ttl":           "30m",
	"entity_sync_interval":         "5m",
	"attribute_sync_interval":      "15m",
	"history_consolidate_interval": "1h",
	"history_clean_interval":       "24h",

	"indexing_batch_size":          2500,
	"indexing_row_lock_ttl":        "30m",
	"indexing_run_lock_ttl":        "1h",
	"history_retention_days":       180,
	"purge_deleted_entities":       false,
	"requires_update_enabled":      true,
	"requires_update_entity_types": []string{},
	"entity_types":                 []string{"KLEVU_PRODUCT", "KLEVU_CATEGORY", "KLEVU_CMS"},
	"attribute_types":              []string{"KLEVU_ATTRIBUTE"},
	"standard_attributes":          []string{"name", "description", "price", "sku", "url", "image", "visibility"},
	"entity_pipeline_path":         "pipelines/entity.yaml",
	"attribute_pipeline_path":      "pipelines/attribute.yaml",
	"pipeline_overrides":           map[string][]string{},
	"accounts":                     "",
}

// Load reads an optional .env file and an optional config.yaml from
// configPath. Environment variables win over both.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	if configPath != "" {
		v.AddConfigPath(configPath)
	}
	v.AddConfigPath(".")
	v.AutomaticEnv()

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the values no component can default.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 {
		errs = append(errs, fmt.Errorf("port must be positive, got %d", c.Port))
	}
	if c.HistoryRetentionDays <= 0 {
		errs = append(errs, fmt.Errorf("history_retention_days must be positive, got %d", c.HistoryRetentionDays))
	}
	if len(kafka.ParseBrokers(c.KafkaBrokers)) == 0 {
		errs = append(errs, errors.New("kafka_brokers is required"))
	}
	if _, err := credentials.ParseAccounts(c.Accounts); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *Config) Database() database.Config {
	return database.Config{
		Host:            c.DatabaseHost,
		Port:            c.DatabasePort,
		User:            c.DatabaseUserName,
		Password:        c.DatabasePassword,
		Name:            c.DatabaseName,
		SSLMode:         c.DatabaseSSLMode,
		MaxOpenConns:    c.DatabaseMaxOpenConns,
		MaxIdleConns:    c.DatabaseMaxIdleConns,
		ConnMaxLifetime: c.DatabaseConnMaxLifetime,
	}
}

func (c *Config) Migration() *database.MigrationConfig {
	return &database.MigrationConfig{
		MigrationFolderPath: c.DatabaseMigrationFolderPath,
		Version:             c.DatabaseMigrationVersion,
		Force:               c.DatabaseMigrationForce,
		AutoRollback:        c.DatabaseMigrationAutoRollback,
	}
}

func (c *Config) Redis() redis.Config {
	return redis.Config{Host: c.RedisHost, Port: c.RedisPort, Password: c.RedisPassword, DB: c.RedisDB}
}

func (c *Config) Kafka() kafka.Config {
	return kafka.Config{
		Brokers:      kafka.ParseBrokers(c.KafkaBrokers),
		BatchSize:    c.KafkaBatchSize,
		BatchTimeout: c.KafkaBatchTimeout,
		RequiredAcks: c.KafkaRequiredAcks,
		Compression:  c.KafkaCompression,
	}
}

func (c *Config) Topics() notification.Topics {
	return notification.Topics{
		Notifications: c.KafkaNotificationsTopic,
		SyncEvents:    c.KafkaSyncEventsTopic,
		Records:       c.KafkaRecordsTopic,
	}
}

func (c *Config) OTLP() tracing.OTLPConfig {
	return tracing.OTLPConfig{
		Enabled:  c.OTLPEnabled,
		Endpoint: c.OTLPEndpoint,
		Protocol: c.OTLPProtocol,
		Insecure: c.OTLPInsecure,
		Timeout:  c.OTLPTimeout,
	}
}

// AccountCredentials parses Accounts. Load has already validated it.
func (c *Config) AccountCredentials() ([]models.AccountCredentials, error) {
	return credentials.ParseAccounts(c.Accounts)
}

// PipelineOverridesFor returns the override files of one type::action.
// Config keys are case insensitive.
func (c *Config) PipelineOverridesFor(key string) []string {
	return c.PipelineOverrides[strings.ToLower(key)]
}
