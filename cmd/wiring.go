package cmd

import (
	"context"
	"fmt"

	"rollbook/internal/adapter/outbound/messaging"
	"rollbook/internal/adapter/outbound/repository"
	"rollbook/internal/application/common/retry"
	"rollbook/internal/application/common/slogger"
	"rollbook/internal/application/service"
	"rollbook/internal/config"
	"rollbook/internal/version"

	"github.com/jackc/pgx/v5/pgxpool"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// runtimeDeps holds everything a command needs to run migrations. close
// releases them in reverse order of creation.
type runtimeDeps struct {
	pool      *pgxpool.Pool
	service   *service.ArchiveMigrationService
	publisher *messaging.NATSMigrationEventPublisher
	reader    *sdkmetric.ManualReader
	provider  *sdkmetric.MeterProvider
}

// setupDatabaseConnection opens the connection pool described by cfg.
func setupDatabaseConnection(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	return repository.NewDatabaseConnection(ctx, databaseConfig(cfg))
}

func databaseConfig(cfg *config.Config) repository.DatabaseConfig {
	return repository.DatabaseConfig{
		Host:           cfg.Database.Host,
		Port:           cfg.Database.Port,
		Database:       cfg.Database.Name,
		Username:       cfg.Database.User,
		Password:       cfg.Database.Password,
		Schema:         cfg.Database.Schema,
		SSLMode:        cfg.Database.SSLMode,
		MaxConnections: cfg.Database.MaxConnections,
		MinConnections: cfg.Database.MaxIdleConnections,
	}
}

// archiveConfig maps the archive configuration section onto the service.
func archiveConfig(cfg *config.Config) service.ArchiveConfig {
	ac := service.DefaultArchiveConfig()
	if cfg.Archive.BatchSize > 0 {
		ac.DefaultBatchSize = cfg.Archive.BatchSize
	}
	ac.MaxRetries = cfg.Archive.MaxRetries
	if cfg.Archive.RetryInitialDelay > 0 {
		ac.RetryInitialDelay = cfg.Archive.RetryInitialDelay
	}
	if cfg.Archive.RetryMaxDelay > 0 {
		ac.RetryMaxDelay = cfg.Archive.RetryMaxDelay
	}
	if cfg.Archive.FallbackCourseName != "" {
		ac.FallbackCourseName = cfg.Archive.FallbackCourseName
	}
	ac.Counters = service.CounterPolicy{
		BaselineElapsedDays:    cfg.Archive.BaselineElapsedDays,
		DefaultCycleLengthDays: cfg.Archive.DefaultCycleLengthDays,
	}
	return ac
}

// buildRuntime connects to the database and, when configured, to NATS and the
// metrics provider, and assembles the archive migration service.
func buildRuntime(ctx context.Context, cfg *config.Config) (*runtimeDeps, error) {
	isolation, err := repository.ParseIsolationLevel(cfg.Archive.Isolation)
	if err != nil {
		return nil, err
	}

	pool, err := setupDatabaseConnection(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	rt := &runtimeDeps{pool: pool}

	metrics := service.NewNoopArchiveMetrics()
	if cfg.Metrics.Enabled {
		provider, reader, err := service.NewArchiveMeterProvider(ctx, cfg.Metrics.ServiceName, version.GetVersion().Version)
		if err != nil {
			rt.close(ctx)
			return nil, fmt.Errorf("failed to create meter provider: %w", err)
		}
		rt.provider, rt.reader = provider, reader
		if metrics, err = service.NewArchiveMetrics(provider); err != nil {
			rt.close(ctx)
			return nil, fmt.Errorf("failed to create archive metrics: %w", err)
		}
	}

	deps := service.ArchiveDependencies{
		Courses:      repository.NewPostgreSQLCourseRepository(pool),
		Counters:     repository.NewPostgreSQLCourseRepository(pool),
		Attendees:    repository.NewPostgreSQLAttendeeRepository(pool),
		Archive:      repository.NewPostgreSQLArchiveRepository(pool),
		TxManager:    repository.NewTransactionManager(pool).WithIsolation(isolation),
		Locker:       repository.NewPostgreSQLMigrationLocker(pool),
		Metrics:      metrics,
		RetryChecker: retry.CheckerFunc(repository.IsRetryableError),
	}

	if cfg.NATS.Enabled() {
		publisher, err := connectPublisher(cfg.NATS)
		if err != nil {
			rt.close(ctx)
			return nil, err
		}
		rt.publisher = publisher
		deps.Publisher = publisher
	}

	rt.service = service.NewArchiveMigrationService(deps, archiveConfig(cfg))
	return rt, nil
}

func connectPublisher(natsCfg config.NATSConfig) (*messaging.NATSMigrationEventPublisher, error) {
	publisher, err := messaging.NewNATSMigrationEventPublisher(natsCfg)
	if err != nil {
		return nil, fmt.Errorf("invalid NATS configuration: %w", err)
	}
	if err := publisher.Connect(); err != nil {
		return nil, err
	}
	if err := publisher.EnsureStream(); err != nil {
		_ = publisher.Disconnect()
		return nil, err
	}
	return publisher, nil
}

// close logs a final metrics snapshot and releases all connections.
func (rt *runtimeDeps) close(ctx context.Context) {
	if rt.reader != nil {
		logMetricsSnapshot(ctx, rt.reader)
	}
	if rt.provider != nil {
		if err := rt.provider.Shutdown(ctx); err != nil {
			slogger.ErrorWithError(ctx, err, "Failed to shut down meter provider", nil)
		}
	}
	if rt.publisher != nil {
		_ = rt.publisher.Disconnect()
	}
	if rt.pool != nil {
		rt.pool.Close()
	}
}

// logMetricsSnapshot collects the archive metrics once and logs their totals.
func logMetricsSnapshot(ctx context.Context, reader *sdkmetric.ManualReader) {
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(ctx, &rm); err != nil {
		slogger.ErrorWithError(ctx, err, "Failed to collect metrics", nil)
		return
	}

	totals := slogger.Fields{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				var total int64
				for _, dp := range data.DataPoints {
					total += dp.Value
				}
				totals[m.Name] = total
			case metricdata.Histogram[float64]:
				var count uint64
				for _, dp := range data.DataPoints {
					count += dp.Count
				}
				totals[m.Name+"_count"] = count
			}
		}
	}
	slogger.Info(ctx, "Archive metrics snapshot", totals)
}
