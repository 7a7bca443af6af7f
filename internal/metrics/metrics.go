// Package metrics provides Prometheus metrics instrumentation for the operator.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/trace"
)

// Collector provides metrics recording interface.
// This allows components to record metrics without direct prometheus dependency.
type Collector interface {
	// Reconcile metrics
	RecordReconcile(ctx context.Context, controller, outcome string, duration time.Duration)
	RecordReconcileError(ctx context.Context, controller, errorType string)

	// Translation metrics
	RecordTranslation(ctx context.Context, kind string, proxies int)

	// Convergence metrics
	RecordApply(ctx context.Context, mode, outcome string, duration time.Duration)
	RecordStagedSecrets(ctx context.Context, count int)
}

// prometheusCollector implements Collector using Prometheus metrics.
type prometheusCollector struct {
	reconcileDuration    *prometheus.HistogramVec
	reconcilesTotal      *prometheus.CounterVec
	reconcileErrorsTotal *prometheus.CounterVec

	translatedProxies *prometheus.GaugeVec

	applyDuration *prometheus.HistogramVec
	appliesTotal  *prometheus.CounterVec
	stagedSecrets prometheus.Gauge
}

// NewCollector creates a new Prometheus metrics collector and registers metrics.
func NewCollector(reg prometheus.Registerer) Collector {
	c := &prometheusCollector{}
	c.initReconcileMetrics()
	c.initTranslationMetrics()
	c.initApplyMetrics()
	c.register(reg)

	return c
}

// RecordReconcile records one reconcile pass of a controller.
func (c *prometheusCollector) RecordReconcile(
	ctx context.Context,
	controller, outcome string,
	duration time.Duration,
) {
	observeWithExemplar(ctx, c.reconcileDuration.WithLabelValues(controller), duration.Seconds())
	c.reconcilesTotal.WithLabelValues(controller, outcome).Inc()
}

// RecordReconcileError records a reconcile error by classified type.
func (c *prometheusCollector) RecordReconcileError(_ context.Context, controller, errorType string) {
	c.reconcileErrorsTotal.WithLabelValues(controller, errorType).Inc()
}

// RecordTranslation records the number of proxies a workload object
// translated into.
func (c *prometheusCollector) RecordTranslation(_ context.Context, kind string, proxies int) {
	c.translatedProxies.WithLabelValues(kind).Set(float64(proxies))
}

// RecordApply records one fragment apply or cleanup.
func (c *prometheusCollector) RecordApply(
	ctx context.Context,
	mode, outcome string,
	duration time.Duration,
) {
	observeWithExemplar(ctx, c.applyDuration.WithLabelValues(mode), duration.Seconds())
	c.appliesTotal.WithLabelValues(mode, outcome).Inc()
}

// RecordStagedSecrets records the number of TLS secrets currently staged.
func (c *prometheusCollector) RecordStagedSecrets(_ context.Context, count int) {
	c.stagedSecrets.Set(float64(count))
}

// observeWithExemplar attaches the current trace ID as an exemplar when the
// context carries a sampled span.
func observeWithExemplar(ctx context.Context, observer prometheus.Observer, value float64) {
	spanContext := trace.SpanContextFromContext(ctx)

	if spanContext.IsSampled() {
		if exemplarObserver, ok := observer.(prometheus.ExemplarObserver); ok {
			exemplarObserver.ObserveWithExemplar(value, prometheus.Labels{
				"trace_id": spanContext.TraceID().String(),
			})

			return
		}
	}

	observer.Observe(value)
}

func (c *prometheusCollector) initReconcileMetrics() {
	c.reconcileDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frpop_reconcile_duration_seconds",
			Help:    "Duration of reconcile passes",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"controller"},
	)
	c.reconcilesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frpop_reconciles_total",
			Help: "Total reconcile passes by outcome",
		},
		[]string{"controller", "outcome"},
	)
	c.reconcileErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frpop_reconcile_errors_total",
			Help: "Total reconcile errors by type",
		},
		[]string{"controller", "error_type"},
	)
}

func (c *prometheusCollector) initTranslationMetrics() {
	c.translatedProxies = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "frpop_translated_proxies",
			Help: "Proxies produced by the last translation, by source kind",
		},
		[]string{"kind"},
	)
}

func (c *prometheusCollector) initApplyMetrics() {
	c.applyDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "frpop_apply_duration_seconds",
			Help:    "Duration of fragment apply and cleanup operations",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		},
		[]string{"mode"},
	)
	c.appliesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "frpop_applies_total",
			Help: "Total fragment apply and cleanup operations",
		},
		[]string{"mode", "outcome"},
	)
	c.stagedSecrets = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "frpop_staged_secrets",
			Help: "TLS secrets currently staged for the tunnel client",
		},
	)
}

func (c *prometheusCollector) register(reg prometheus.Registerer) {
	reg.MustRegister(
		c.reconcileDuration,
		c.reconcilesTotal,
		c.reconcileErrorsTotal,
		c.translatedProxies,
		c.applyDuration,
		c.appliesTotal,
		c.stagedSecrets,
	)
}

// NoopCollector is a no-op implementation of Collector for testing.
type NoopCollector struct{}

// NewNoopCollector creates a new no-op collector.
func NewNoopCollector() *NoopCollector {
	return &NoopCollector{}
}

// RecordReconcile is a no-op.
func (c *NoopCollector) RecordReconcile(_ context.Context, _, _ string, _ time.Duration) {}

// RecordReconcileError is a no-op.
func (c *NoopCollector) RecordReconcileError(_ context.Context, _, _ string) {}

// RecordTranslation is a no-op.
func (c *NoopCollector) RecordTranslation(_ context.Context, _ string, _ int) {}

// RecordApply is a no-op.
func (c *NoopCollector) RecordApply(_ context.Context, _, _ string, _ time.Duration) {}

// RecordStagedSecrets is a no-op.
func (c *NoopCollector) RecordStagedSecrets(_ context.Context, _ int) {}
