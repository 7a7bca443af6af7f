package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollectorInterfaces(t *testing.T) {
	t.Parallel()

	// Both implementations must satisfy Collector.
	var _ Collector = (*prometheusCollector)(nil)

	var _ Collector = (*NoopCollector)(nil)
}

func TestNewCollector(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg)

	assert.IsType(t, &prometheusCollector{}, collector)
}

func TestRecordReconcile(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)

	collector.RecordReconcile(context.Background(), "ingress", "success", 50*time.Millisecond)
	collector.RecordReconcile(context.Background(), "ingress", "success", 100*time.Millisecond)
	collector.RecordReconcile(context.Background(), "service", "error", 10*time.Millisecond)

	assert.InDelta(t, 2.0,
		testutil.ToFloat64(collector.reconcilesTotal.WithLabelValues("ingress", "success")), 0.001)
	assert.InDelta(t, 1.0,
		testutil.ToFloat64(collector.reconcilesTotal.WithLabelValues("service", "error")), 0.001)

	count := testutil.CollectAndCount(collector.reconcileDuration)
	assert.Equal(t, 2, count)
}

func TestRecordReconcileError(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)

	collector.RecordReconcileError(context.Background(), "ingress", ErrorTypeConflict)
	collector.RecordReconcileError(context.Background(), "ingress", ErrorTypeConflict)

	assert.InDelta(t, 2.0,
		testutil.ToFloat64(collector.reconcileErrorsTotal.WithLabelValues("ingress", ErrorTypeConflict)), 0.001)
}

func TestRecordTranslation(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)

	collector.RecordTranslation(context.Background(), "ingress", 3)
	collector.RecordTranslation(context.Background(), "ingress", 1)

	assert.InDelta(t, 1.0,
		testutil.ToFloat64(collector.translatedProxies.WithLabelValues("ingress")), 0.001)
}

func TestRecordApply(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)

	collector.RecordApply(context.Background(), "cluster", "success", 20*time.Millisecond)
	collector.RecordApply(context.Background(), "agent", "error", 5*time.Millisecond)

	assert.InDelta(t, 1.0,
		testutil.ToFloat64(collector.appliesTotal.WithLabelValues("cluster", "success")), 0.001)
	assert.InDelta(t, 1.0,
		testutil.ToFloat64(collector.appliesTotal.WithLabelValues("agent", "error")), 0.001)
}

func TestRecordStagedSecrets(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)

	collector.RecordStagedSecrets(context.Background(), 4)

	assert.InDelta(t, 4.0, testutil.ToFloat64(collector.stagedSecrets), 0.001)
}

func TestRegistrationIsComplete(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	collector := NewCollector(reg).(*prometheusCollector)

	collector.RecordReconcile(context.Background(), "ingress", "success", time.Millisecond)
	collector.RecordReconcileError(context.Background(), "ingress", ErrorTypeUnknown)
	collector.RecordTranslation(context.Background(), "service", 2)
	collector.RecordApply(context.Background(), "cluster", "success", time.Millisecond)
	collector.RecordStagedSecrets(context.Background(), 1)

	families, err := reg.Gather()
	require.NoError(t, err)

	names := make(map[string]bool, len(families))
	for _, family := range families {
		names[family.GetName()] = true
	}

	for _, want := range []string{
		"frpop_reconcile_duration_seconds",
		"frpop_reconciles_total",
		"frpop_reconcile_errors_total",
		"frpop_translated_proxies",
		"frpop_apply_duration_seconds",
		"frpop_applies_total",
		"frpop_staged_secrets",
	} {
		assert.True(t, names[want], "metric %s not registered", want)
	}
}
