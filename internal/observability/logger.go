package observability

import (
	"fmt"
	"os"
	"strings"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
)

var (
	// CLILogger serves CLI commands with the SIMPLE profile.
	CLILogger *logging.Logger

	// ServerLogger serves the relay and its transports.
	ServerLogger *logging.Logger
)

// Logging profiles accepted by logging.profile.
const (
	ProfileSimple     = "SIMPLE"
	ProfileStructured = "STRUCTURED"
)

// InitCLILogger installs CLILogger; verbose lowers the level to DEBUG.
func InitCLILogger(serviceName string, verbose bool) {
	logger, err := logging.NewCLI(serviceName)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize CLI logger", err)
	}

	if verbose {
		logger.SetLevel(logging.DEBUG)
	}

	CLILogger = logger
}

// InitServerLogger initializes the service logger. Unknown profiles fall
// back to STRUCTURED. The optional namespace is attached as a static field.
func InitServerLogger(serviceName, logLevel, profile string, namespace ...string) {
	ns := ""
	if len(namespace) > 0 {
		ns = namespace[0]
	}
	logger, err := NewServiceLogger(serviceName, logLevel, profile, ns)
	if err != nil {
		exitWithCodeStderr(foundry.ExitConfigInvalid, "Failed to initialize server logger", err)
	}
	ServerLogger = logger
}

// NewServiceLogger builds a logger for the given profile without touching
// the package globals. SIMPLE writes console lines; anything else writes
// JSON with correlation ids, caller and stack traces.
func NewServiceLogger(serviceName, logLevel, profile, namespace string) (*logging.Logger, error) {
	cfg := &logging.LoggerConfig{
		Profile:      logging.ProfileStructured,
		DefaultLevel: parseLogLevel(logLevel),
		Service:      serviceName,
		Environment:  environment(),
		Sinks:        []logging.SinkConfig{stderrSink("json")},
	}

	if strings.EqualFold(strings.TrimSpace(profile), ProfileSimple) {
		cfg.Profile = logging.ProfileSimple
		cfg.Sinks = []logging.SinkConfig{stderrSink("console")}
		return logging.New(cfg)
	}

	if namespace != "" {
		cfg.StaticFields = map[string]any{"namespace": namespace}
	}
	cfg.Middleware = []logging.MiddlewareConfig{
		{Name: "correlation", Enabled: true, Order: 100, Config: map[string]any{}},
	}
	cfg.EnableCaller = true
	cfg.EnableStacktrace = true
	return logging.New(cfg)
}

func stderrSink(format string) logging.SinkConfig {
	return logging.SinkConfig{
		Type:    "console",
		Format:  format,
		Console: &logging.ConsoleSinkConfig{Stream: "stderr"},
	}
}

// Logger returns the service logger, or the CLI logger when the service
// logger has not been initialized. It may return nil.
func Logger() *logging.Logger {
	if ServerLogger != nil {
		return ServerLogger
	}
	return CLILogger
}

func environment() string {
	if env := strings.TrimSpace(os.Getenv("PARLOR_ENV")); env != "" {
		return env
	}
	return "production"
}

func parseLogLevel(levelStr string) string {
	switch strings.ToLower(strings.TrimSpace(levelStr)) {
	case "trace":
		return "TRACE"
	case "debug":
		return "DEBUG"
	case "warn", "warning":
		return "WARN"
	case "error":
		return "ERROR"
	default:
		return "INFO"
	}
}

// exitWithCodeStderr reports a logger setup failure and exits; no logger
// exists yet to carry it.
func exitWithCodeStderr(exitCode foundry.ExitCode, msg string, err error) {
	fmt.Fprintf(os.Stderr, "FATAL: %s: %v\n", msg, err)
	code := int(exitCode)
	if info, ok := foundry.GetExitCodeInfo(exitCode); ok {
		fmt.Fprintf(os.Stderr, "Exit Code: %d (%s) - %s\n", info.Code, info.Name, info.Description)
		code = info.Code
	}
	os.Exit(code)
}
