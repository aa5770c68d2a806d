package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMetricsRecordingNilSafe(t *testing.T) {
	var m *Metrics
	m.RecordAgentCall("research", 100*time.Millisecond)
	m.RecordAgentError("research", "agent_failure")
	m.RecordStageTransition("research", "extraction")
	m.SetActiveWorkflows(3)
	m.RecordLockWait("workflow:wf-1", time.Millisecond)
	m.RecordCheckpointWrite("initial", time.Millisecond)
	m.RecordRetryAttempt("advance", "retry")
	m.RecordSchedulerTick("periodic_snapshot", time.Millisecond)
}

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	require.NoError(t, err)
	require.Nil(t, m)
}

func TestNewMetricsEnabledRegistersSeries(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: true})
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordAgentCall("research", 10*time.Millisecond)
	m.RecordStageTransition("research", "extraction")

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)
}

func TestNoopTracerStartIsSafe(t *testing.T) {
	var tr *Tracer
	ctx, span := tr.Start(context.Background(), "test_span")
	require.NotNil(t, ctx)
	span.End()
}

func TestNewTracerDisabledManagerIsNilSafe(t *testing.T) {
	mgr := NoopManager()
	require.False(t, mgr.TracingEnabled())
	require.False(t, mgr.MetricsEnabled())
	require.Nil(t, mgr.Tracer())
	require.Nil(t, mgr.Metrics())
}

func TestManagerWithTracingEnabled(t *testing.T) {
	cfg := &Config{Tracing: TracingConfig{Enabled: true, Exporter: "stdout"}}
	mgr, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	require.True(t, mgr.TracingEnabled())

	ctx, span := mgr.Tracer().StartAdvance(context.Background(), "wf-1", "research")
	require.NotNil(t, ctx)
	span.End()

	require.NoError(t, mgr.Shutdown(context.Background()))
}
