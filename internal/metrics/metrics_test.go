package metrics

import (
	"testing"
	"time"

	"github.com/fulmenhq/gofulmen/telemetry"
	telemetrytesting "github.com/fulmenhq/gofulmen/telemetry/testing"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/observability"
)

func withCollector(t *testing.T) *telemetrytesting.FakeCollector {
	t.Helper()
	collector := telemetrytesting.NewFakeCollector()
	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: collector})
	require.NoError(t, err)

	prev := observability.TelemetrySystem
	observability.TelemetrySystem = sys
	t.Cleanup(func() { observability.TelemetrySystem = prev })
	return collector
}

func TestRelayMetricsEmit(t *testing.T) {
	collector := withCollector(t)

	RecordTurn("telegram", "ok", 120*time.Millisecond)
	RecordRateLimited("http")
	RecordCompaction(false, time.Second)
	RecordBufferTruncation()
	RecordAlert("LLM API Failure", "delivered")
	SetTrackedWindows(12)

	require.Greater(t, collector.CountMetricsByName(TurnsTotal), 0)
	require.Greater(t, collector.CountMetricsByName(TurnDuration), 0)
	require.Greater(t, collector.CountMetricsByName(RateLimitedTotal), 0)
	require.Greater(t, collector.CountMetricsByName(CompactionsTotal), 0)
	require.Greater(t, collector.CountMetricsByName(BufferTruncations), 0)
	require.Greater(t, collector.CountMetricsByName(AlertsTotal), 0)
	require.Greater(t, collector.CountMetricsByName(TrackedWindows), 0)
}

func TestErrorMetricsEmit(t *testing.T) {
	collector := withCollector(t)

	RecordError("RATE_LIMITED", 429)
	RecordErrorByEndpoint("/v1/messages", "RATE_LIMITED")
	RecordPanic()

	require.Greater(t, collector.CountMetricsByName(ErrorsTotalName), 0)
	require.Greater(t, collector.CountMetricsByName(ErrorsByEndpointName), 0)
	require.Greater(t, collector.CountMetricsByName(PanicsTotalName), 0)
}

func TestRecordersAreNoOpsWithoutTelemetry(t *testing.T) {
	prev := observability.TelemetrySystem
	observability.TelemetrySystem = nil
	t.Cleanup(func() { observability.TelemetrySystem = prev })

	require.NotPanics(t, func() {
		RecordTurn("cli", "ok", time.Millisecond)
		RecordHealthCheck("store", true, time.Millisecond)
		SetServerStartTime(time.Now().Unix())
		SetServerUptime(5)
		RecordPanic()
	})
}
