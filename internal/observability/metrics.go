package observability

import (
	"errors"
	"fmt"
	"net"
	"strconv"

	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/fulmenhq/gofulmen/telemetry/exporters"
)

// DefaultMetricsPort is reported when the exporter address cannot be parsed.
const DefaultMetricsPort = 9090

var (
	// TelemetrySystem stays nil while metrics are disabled, which turns every
	// recorder in internal/metrics into a no-op.
	TelemetrySystem *telemetry.System

	// PrometheusExporter serves the relay metrics in Prometheus text format.
	PrometheusExporter *exporters.PrometheusExporter

	metricsPort int
)

// InitMetrics starts a Prometheus exporter on port (0 picks a free one) and
// installs the telemetry system that feeds it. namespace defaults to
// serviceName.
func InitMetrics(serviceName string, port int, namespace ...string) error {
	ns := serviceName
	if len(namespace) > 0 && namespace[0] != "" {
		ns = namespace[0]
	}
	port = max(port, 0)

	exporter := exporters.NewPrometheusExporter(ns, ":"+strconv.Itoa(port))
	if err := exporter.Start(); err != nil {
		return fmt.Errorf("start prometheus exporter: %w", err)
	}

	sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: true, Emitter: exporter})
	if err != nil {
		_ = exporter.Stop()
		return fmt.Errorf("create telemetry system: %w", err)
	}

	metricsPort = port
	if _, p, err := net.SplitHostPort(exporter.GetAddr()); err == nil {
		if n, err := strconv.Atoi(p); err == nil {
			metricsPort = n
		}
	} else if port == 0 {
		metricsPort = DefaultMetricsPort
	}

	PrometheusExporter = exporter
	TelemetrySystem = sys
	return nil
}

// ShutdownMetrics stops the exporter and disables recording.
func ShutdownMetrics() error {
	exporter := PrometheusExporter
	PrometheusExporter = nil
	TelemetrySystem = nil
	metricsPort = 0
	if exporter == nil {
		return nil
	}
	if err := exporter.Stop(); err != nil {
		return fmt.Errorf("stop prometheus exporter: %w", err)
	}
	return nil
}

// MetricsEnabled reports whether InitMetrics succeeded.
func MetricsEnabled() bool {
	return TelemetrySystem != nil
}

// GetMetricsPort returns the port the exporter listens on.
func GetMetricsPort() int {
	return metricsPort
}

// CheckMetrics backs the telemetry health check.
func CheckMetrics() error {
	if TelemetrySystem == nil || PrometheusExporter == nil {
		return errors.New("telemetry system not initialized")
	}
	return nil
}
