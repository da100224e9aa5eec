// Package metrics records relay and server telemetry. Every recorder is a
// no-op while observability.TelemetrySystem is nil.
package metrics

import (
	"strconv"
	"time"

	"github.com/parlorhq/parlor/internal/observability"
)

// Relay metric names.
const (
	TurnsTotal         = "relay_turns_total"
	TurnDuration       = "relay_turn_duration_ms"
	RateLimitedTotal   = "relay_rate_limited_total"
	CompactionsTotal   = "relay_compactions_total"
	CompactionDuration = "relay_compaction_duration_ms"
	BufferTruncations  = "relay_buffer_truncations_total"
	AlertsTotal        = "relay_alerts_total"
	TrackedWindows     = "relay_tracked_windows"
)

// Server metric names.
const (
	HealthCheckTotal     = "app_health_check_total"
	HealthCheckDuration  = "app_health_check_duration_ms"
	ServerStartTime      = "app_server_start_time_seconds"
	ServerUptime         = "app_server_uptime_seconds"
	ErrorsTotalName      = "errors_total"
	ErrorsByEndpointName = "errors_by_endpoint"
	PanicsTotalName      = "panics_total"
)

func count(name string, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Counter(name, 1, labels)
	}
}

func gauge(name string, value float64) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Gauge(name, value, nil)
	}
}

func observe(name string, d time.Duration, labels map[string]string) {
	if sys := observability.TelemetrySystem; sys != nil {
		_ = sys.Histogram(name, d, labels)
	}
}

func outcome(ok bool, good, bad string) string {
	if ok {
		return good
	}
	return bad
}

// RecordTurn records a finished turn. status is ok, generation_failed or
// persistence_error.
func RecordTurn(transport, status string, d time.Duration) {
	count(TurnsTotal, map[string]string{"transport": transport, "status": status})
	observe(TurnDuration, d, map[string]string{"transport": transport})
}

// RecordRateLimited records a turn dropped by the limiter.
func RecordRateLimited(transport string) {
	count(RateLimitedTotal, map[string]string{"transport": transport})
}

// RecordCompaction records a compaction attempt.
func RecordCompaction(success bool, d time.Duration) {
	count(CompactionsTotal, map[string]string{"status": outcome(success, "success", "failure")})
	observe(CompactionDuration, d, nil)
}

// RecordBufferTruncation records a buffer trimmed past its byte cap.
func RecordBufferTruncation() {
	count(BufferTruncations, nil)
}

// RecordAlert records an alert outcome: delivered, failed or dropped.
func RecordAlert(subject, status string) {
	count(AlertsTotal, map[string]string{"subject": subject, "status": status})
}

// SetTrackedWindows reports how many rate windows are held in memory.
func SetTrackedWindows(n int) {
	if n >= 0 {
		gauge(TrackedWindows, float64(n))
	}
}

// RecordHealthCheck records one health checker run.
func RecordHealthCheck(check string, healthy bool, d time.Duration) {
	count(HealthCheckTotal, map[string]string{"check": check, "status": outcome(healthy, "healthy", "unhealthy")})
	observe(HealthCheckDuration, d, map[string]string{"check": check})
}

// SetServerStartTime records the server start as a Unix timestamp.
func SetServerStartTime(unix int64) {
	gauge(ServerStartTime, float64(unix))
}

// SetServerUptime records uptime in seconds.
func SetServerUptime(seconds int64) {
	gauge(ServerUptime, float64(seconds))
}

// RecordError counts an error response by envelope code and HTTP status.
func RecordError(code string, status int) {
	count(ErrorsTotalName, map[string]string{"error_code": code, "http_status": strconv.Itoa(status)})
}

// RecordErrorByEndpoint counts an error response by route pattern.
func RecordErrorByEndpoint(endpoint, code string) {
	count(ErrorsByEndpointName, map[string]string{"endpoint": endpoint, "error_code": code})
}

// RecordPanic counts a recovered handler panic.
func RecordPanic() {
	count(PanicsTotalName, nil)
}
