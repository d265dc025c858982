package app

import (
	"context"
	"errors"

	"github.com/Gobusters/ectologger"
	"github.com/Gobusters/ectologger/zapadapter"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/klevu/module-m2-indexing-sub002/config"
	"github.com/klevu/module-m2-indexing-sub002/internal/repositories/indexingattribute"
	"github.com/klevu/module-m2-indexing-sub002/internal/repositories/indexingentity"
	"github.com/klevu/module-m2-indexing-sub002/internal/repositories/synchistory"
	"github.com/klevu/module-m2-indexing-sub002/pkg/database"
	"github.com/klevu/module-m2-indexing-sub002/pkg/health"
	"github.com/klevu/module-m2-indexing-sub002/pkg/kafka"
	"github.com/klevu/module-m2-indexing-sub002/pkg/redis"
	"github.com/klevu/module-m2-indexing-sub002/pkg/startup"
	"github.com/klevu/module-m2-indexing-sub002/pkg/tracing"
)

// Startup dependency names.
const (
	DependencyTracer     = "tracer"
	DependencyPostgres   = "postgres"
	DependencyMigrations = "migrations"
	DependencyRedis      = "redis"
	DependencyKafka      = "kafka"
	DependencyServices   = "services"
)

// NewLogger returns a JSON zap logger, or a console one with pretty logs.
func NewLogger(cfg *config.Config) (ectologger.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, err
	}

	zapConfig := zap.NewProductionConfig()
	if cfg.PrettyLogs {
		zapConfig = zap.NewDevelopmentConfig()
	}
	zapConfig.Level = zap.NewAtomicLevelAt(level)

	zapLogger, err := zapConfig.Build()
	if err != nil {
		return nil, err
	}
	return zapadapter.NewZapEctoLogger(zapLogger.With(zap.String("service", cfg.AppName)), nil), nil
}

// Runtime owns the connections of one process and the services built on
// them. It is populated by the dependencies of Startup.
type Runtime struct {
	Config   *config.Config
	Logger   ectologger.Logger
	DB       database.DB
	Redis    *redis.Client
	Producer *kafka.Producer
	Services *Services

	shutdownTracer func(context.Context) error
}

func NewRuntime(cfg *config.Config, logger ectologger.Logger) *Runtime {
	return &Runtime{Config: cfg, Logger: logger}
}

// Startup returns the startup sequence that connects the runtime and
// builds its services. Callers may add their own dependencies before
// starting it.
func (r *Runtime) Startup(migrate bool) *startup.Startup {
	s := startup.NewStartup(r.Logger, r.Config.StartupMaxAttempts)

	s.AddDependency(startup.Func{
		Name:      DependencyTracer,
		StartFunc: r.startTracer,
		StopFunc: func(ctx context.Context) error {
			if r.shutdownTracer == nil {
				return nil
			}
			return r.shutdownTracer(ctx)
		},
	})
	s.AddDependency(r.postgres(DependencyTracer))
	servicesRequire := []string{DependencyPostgres, DependencyRedis, DependencyKafka}
	if migrate {
		s.AddDependency(startup.Func{
			Name:      DependencyMigrations,
			Requires:  []string{DependencyPostgres},
			StartFunc: func(context.Context) error { return r.Migrate() },
		})
		servicesRequire = append(servicesRequire, DependencyMigrations)
	}
	s.AddDependency(startup.Func{
		Name:      DependencyRedis,
		StartFunc: r.connectRedis,
		StopFunc: func(context.Context) error {
			if r.Redis == nil {
				return nil
			}
			return r.Redis.Close()
		},
	})
	s.AddDependency(startup.Func{
		Name:      DependencyKafka,
		StartFunc: r.connectKafka,
		StopFunc: func(context.Context) error {
			if r.Producer == nil {
				return nil
			}
			return r.Producer.Close()
		},
	})
	s.AddDependency(startup.Func{
		Name:      DependencyServices,
		Requires:  servicesRequire,
		StartFunc: func(context.Context) error { return r.buildServices() },
	})
	return s
}

// DatabaseStartup only connects Postgres.
func (r *Runtime) DatabaseStartup() *startup.Startup {
	s := startup.NewStartup(r.Logger, r.Config.StartupMaxAttempts)
	s.AddDependency(r.postgres())
	return s
}

func (r *Runtime) postgres(requires ...string) startup.Func {
	return startup.Func{
		Name:      DependencyPostgres,
		Requires:  requires,
		StartFunc: r.connectPostgres,
		StopFunc: func(context.Context) error {
			if r.DB == nil {
				return nil
			}
			return r.DB.Close()
		},
	}
}

func (r *Runtime) startTracer(ctx context.Context) error {
	shutdown, err := tracing.Setup(ctx, r.Config.AppName, r.Config.OTLP())
	if err != nil {
		return err
	}
	r.shutdownTracer = shutdown
	return nil
}

func (r *Runtime) connectPostgres(ctx context.Context) error {
	if r.DB != nil {
		return nil
	}
	db, err := database.Connect(ctx, r.Config.Database(), r.Logger)
	if err != nil {
		return err
	}
	r.DB = db
	return nil
}

// Migrate applies the Postgres migrations. The database must be connected.
func (r *Runtime) Migrate() error {
	if r.DB == nil {
		return errors.New("postgres is not connected")
	}
	return database.NewMigrationService(r.Logger, r.Config.Migration()).MigratePostgres(r.DB.SQLDB(), r.Config.DatabaseName)
}

func (r *Runtime) connectRedis(ctx context.Context) error {
	if r.Redis != nil {
		return nil
	}
	client, err := redis.NewClient(ctx, r.Config.Redis(), r.Logger)
	if err != nil {
		return err
	}
	r.Redis = client
	return nil
}

// connectKafka checks a broker answers before the producer is created;
// kafka.Writer only dials on the first write.
func (r *Runtime) connectKafka(ctx context.Context) error {
	if r.Producer != nil {
		return nil
	}
	kafkaConfig := r.Config.Kafka()
	if err := health.KafkaCheck(kafkaConfig.Brokers)(ctx); err != nil {
		return err
	}
	r.Producer = kafka.NewProducer(kafkaConfig, r.Logger)
	return nil
}

func (r *Runtime) buildServices() error {
	services, err := NewServices(Deps{
		Config:     r.Config,
		Entities:   indexingentity.NewRepository(r.DB, r.Logger),
		Attributes: indexingattribute.NewRepository(r.DB, r.Logger),
		History:    synchistory.NewRepository(r.DB, r.Logger),
		Locker:     redis.NewLocker(r.Redis, r.Config.LockPrefix),
		Publisher:  r.Producer,
		Logger:     r.Logger,
	})
	if err != nil {
		return err
	}
	r.Services = services
	return nil
}

// HealthChecker checks Postgres and Redis as critical dependencies and
// Kafka as a degrading one.
func (r *Runtime) HealthChecker() *health.Checker {
	checker := health.NewChecker(r.Config.Version)
	checker.AddCheck(DependencyPostgres, true, func(ctx context.Context) error { return r.DB.PingContext(ctx) })
	checker.AddCheck(DependencyRedis, true, func(ctx context.Context) error { return r.Redis.Ping(ctx) })
	checker.AddCheck(DependencyKafka, false, health.KafkaCheck(r.Config.Kafka().Brokers))
	return checker
}
