package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTelMetrics holds OpenTelemetry instruments mirroring the hottest
// Prometheus counters, for shipping to an OTLP collector.
type OTelMetrics struct {
	meter metric.Meter

	entityOperations metric.Int64Counter
	edgeOperations   metric.Int64Counter
	policyOperations metric.Int64Counter
	versionConflicts metric.Int64Counter
	bundleBuilds     metric.Int64Counter
	bundleBuildTime  metric.Float64Histogram
}

// NewOTelMetrics creates OpenTelemetry instruments from the global meter
// provider.
func NewOTelMetrics() (*OTelMetrics, error) {
	meter := otel.Meter("github.com/wardenhq/warden")

	entityOps, err := meter.Int64Counter("warden.entity.operations",
		metric.WithDescription("Entity store operations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create entity operations counter: %w", err)
	}

	edgeOps, err := meter.Int64Counter("warden.edge.operations",
		metric.WithDescription("Assignment graph operations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create edge operations counter: %w", err)
	}

	policyOps, err := meter.Int64Counter("warden.policy.operations",
		metric.WithDescription("Policy version engine operations"))
	if err != nil {
		return nil, fmt.Errorf("failed to create policy operations counter: %w", err)
	}

	conflicts, err := meter.Int64Counter("warden.policy.version_conflicts",
		metric.WithDescription("Optimistic concurrency conflicts on policy writes"))
	if err != nil {
		return nil, fmt.Errorf("failed to create version conflicts counter: %w", err)
	}

	builds, err := meter.Int64Counter("warden.bundle.builds",
		metric.WithDescription("Bundle build attempts"))
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle builds counter: %w", err)
	}

	buildTime, err := meter.Float64Histogram("warden.bundle.build_duration",
		metric.WithDescription("Bundle build duration in seconds"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, fmt.Errorf("failed to create bundle build duration histogram: %w", err)
	}

	return &OTelMetrics{
		meter:            meter,
		entityOperations: entityOps,
		edgeOperations:   edgeOps,
		policyOperations: policyOps,
		versionConflicts: conflicts,
		bundleBuilds:     builds,
		bundleBuildTime:  buildTime,
	}, nil
}

// RecordEntityOperation records an entity store operation
func (m *OTelMetrics) RecordEntityOperation(ctx context.Context, kind, operation, result string) {
	m.entityOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}

// RecordEdgeOperation records an assignment graph operation
func (m *OTelMetrics) RecordEdgeOperation(ctx context.Context, kind, operation, result string) {
	m.edgeOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("kind", kind),
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}

// RecordPolicyOperation records a policy version engine operation
func (m *OTelMetrics) RecordPolicyOperation(ctx context.Context, operation, result string) {
	m.policyOperations.Add(ctx, 1, metric.WithAttributes(
		attribute.String("operation", operation),
		attribute.String("result", result),
	))
}

// RecordVersionConflict records an optimistic concurrency conflict
func (m *OTelMetrics) RecordVersionConflict(ctx context.Context) {
	m.versionConflicts.Add(ctx, 1)
}

// RecordBundleBuild records a bundle build attempt and its duration
func (m *OTelMetrics) RecordBundleBuild(ctx context.Context, result string, seconds float64) {
	attrs := metric.WithAttributes(attribute.String("result", result))
	m.bundleBuilds.Add(ctx, 1, attrs)
	m.bundleBuildTime.Record(ctx, seconds, attrs)
}
