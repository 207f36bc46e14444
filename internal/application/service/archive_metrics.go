package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

// Metric names for archive migrations.
const (
	ArchiveMigrationCounterName      = "archive_migration_total"
	ArchiveMigrationDurationName     = "archive_migration_duration_seconds"
	ArchiveRecordsArchivedName       = "archive_records_archived_total"
	ArchiveBatchFlushCounterName     = "archive_batch_flush_total"
	ArchiveVerificationMismatchName  = "archive_verification_mismatch_total"
	archiveMetricsInstrumentationLib = "rollbook/archive"
)

// Attribute keys for archive metrics.
const (
	AttrScope  = "scope"
	AttrResult = "result"
)

// ArchiveMetrics records archive migration telemetry with OpenTelemetry.
type ArchiveMetrics struct {
	migrationCounter  metric.Int64Counter
	durationHistogram metric.Float64Histogram
	archivedCounter   metric.Int64Counter
	flushCounter      metric.Int64Counter
	mismatchCounter   metric.Int64Counter
}

// NewArchiveMetrics creates the archive instruments on provider.
func NewArchiveMetrics(provider metric.MeterProvider) (*ArchiveMetrics, error) {
	meter := provider.Meter(archiveMetricsInstrumentationLib)

	migrationCounter, err := meter.Int64Counter(ArchiveMigrationCounterName,
		metric.WithDescription("Total number of archive migrations by scope and result"),
	)
	if err != nil {
		return nil, err
	}

	durationHistogram, err := meter.Float64Histogram(ArchiveMigrationDurationName,
		metric.WithDescription("Archive migration duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	archivedCounter, err := meter.Int64Counter(ArchiveRecordsArchivedName,
		metric.WithDescription("Total number of records moved to the archive store"),
	)
	if err != nil {
		return nil, err
	}

	flushCounter, err := meter.Int64Counter(ArchiveBatchFlushCounterName,
		metric.WithDescription("Total number of bulk upsert flushes"),
	)
	if err != nil {
		return nil, err
	}

	mismatchCounter, err := meter.Int64Counter(ArchiveVerificationMismatchName,
		metric.WithDescription("Total number of migrations aborted by verification"),
	)
	if err != nil {
		return nil, err
	}

	return &ArchiveMetrics{
		migrationCounter:  migrationCounter,
		durationHistogram: durationHistogram,
		archivedCounter:   archivedCounter,
		flushCounter:      flushCounter,
		mismatchCounter:   mismatchCounter,
	}, nil
}

// NewNoopArchiveMetrics returns metrics that record nothing.
func NewNoopArchiveMetrics() *ArchiveMetrics {
	m, _ := NewArchiveMetrics(noop.NewMeterProvider())
	return m
}

// NewArchiveMeterProvider builds an SDK meter provider tagged with the service
// resource. The returned manual reader collects on demand.
func NewArchiveMeterProvider(
	ctx context.Context,
	serviceName, serviceVersion string,
) (*sdkmetric.MeterProvider, *sdkmetric.ManualReader, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", serviceName),
			attribute.String("service.version", serviceVersion),
		),
	)
	if err != nil {
		return nil, nil, err
	}

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	return provider, reader, nil
}

// RecordMigration records one finished migration.
func (m *ArchiveMetrics) RecordMigration(ctx context.Context, scope, result string, duration time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String(AttrScope, scope),
		attribute.String(AttrResult, result),
	)
	m.migrationCounter.Add(ctx, 1, attrs)
	m.durationHistogram.Record(ctx, duration.Seconds(), attrs)
}

// RecordArchived records records moved out of the live store.
func (m *ArchiveMetrics) RecordArchived(ctx context.Context, scope string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.archivedCounter.Add(ctx, int64(count), metric.WithAttributes(attribute.String(AttrScope, scope)))
}

// RecordFlushes records the bulk upsert flushes of one migration.
func (m *ArchiveMetrics) RecordFlushes(ctx context.Context, scope string, flushes int) {
	if m == nil || flushes <= 0 {
		return
	}
	m.flushCounter.Add(ctx, int64(flushes), metric.WithAttributes(attribute.String(AttrScope, scope)))
}

// RecordVerificationMismatch records a migration aborted by the verification gate.
func (m *ArchiveMetrics) RecordVerificationMismatch(ctx context.Context, scope string) {
	if m == nil {
		return
	}
	m.mismatchCounter.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrScope, scope)))
}
