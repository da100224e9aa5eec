package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/logging"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/core/store"
	errwrap "github.com/parlorhq/parlor/internal/errors"
	"github.com/parlorhq/parlor/internal/observability"
)

type checkStatus int

const (
	checkOK checkStatus = iota
	checkWarn
	checkFail
	checkSkipped
)

func (s checkStatus) icon() string {
	switch s {
	case checkOK:
		return "✅"
	case checkWarn, checkSkipped:
		return "⚠️ "
	default:
		return "❌"
	}
}

// doctorEnv is shared by the checks; later checks see what earlier ones
// loaded.
type doctorEnv struct {
	ctx context.Context
	cfg *config.Config
	db  *store.Store
}

type doctorCheck struct {
	name string
	// fatal checks abort the run with the returned exit code.
	fatal foundry.ExitCode
	run   func(env *doctorEnv) (checkStatus, string, error)
}

var doctorChecks = []doctorCheck{
	{name: "Go version", run: func(*doctorEnv) (checkStatus, string, error) {
		v := runtime.Version()
		if v >= "go1.23" {
			return checkOK, v, nil
		}
		return checkWarn, v + " (recommended: go1.23+)", nil
	}},
	{name: "Crucible access", fatal: foundry.ExitExternalServiceUnavailable, run: func(*doctorEnv) (checkStatus, string, error) {
		if v := crucible.GetVersion().Crucible; v != "" {
			return checkOK, "v" + v, nil
		}
		return checkFail, "cannot access Crucible", errwrap.NewUnavailableError("Crucible metadata unavailable")
	}},
	{name: "Gofulmen access", run: func(*doctorEnv) (checkStatus, string, error) {
		if v := crucible.GetVersion().Gofulmen; v != "" {
			return checkOK, "v" + v, nil
		}
		return checkFail, "cannot access Gofulmen", nil
	}},
	{name: "config directory", fatal: foundry.ExitFileNotFound, run: func(*doctorEnv) (checkStatus, string, error) {
		path := config.DefaultConfigPath()
		if path == "" {
			return checkFail, "cannot resolve config directory", errwrap.NewInternalError("config directory not resolved")
		}
		return checkOK, filepath.Dir(path), nil
	}},
	{name: "configuration", run: func(env *doctorEnv) (checkStatus, string, error) {
		cfg, err := config.Load(env.ctx)
		if err != nil {
			return checkFail, "invalid", err
		}
		env.cfg = cfg
		return checkOK, fmt.Sprintf("%d msgs/%s, compaction every %d",
			cfg.Relay.MaxPerWindow, cfg.Relay.Window, cfg.Relay.CompactionThreshold), nil
	}},
	{name: "database", run: func(env *doctorEnv) (checkStatus, string, error) {
		if env.cfg == nil {
			return checkSkipped, "skipped (config not loaded)", nil
		}
		db, err := openStore(env.ctx, env.cfg)
		if err != nil {
			return checkFail, "cannot open store", err
		}
		env.db = db
		count, err := db.CountConversations(env.ctx, store.ConversationQuery{All: true})
		if err != nil {
			return checkWarn, "cannot count conversations", err
		}
		return checkOK, fmt.Sprintf("%s (%d conversations, schema v%d)", describeStore(env.cfg.Store), count, store.SchemaVersion()), nil
	}},
	{name: "AI backend", run: func(env *doctorEnv) (checkStatus, string, error) {
		if env.cfg == nil {
			return checkSkipped, "skipped (config not loaded)", nil
		}
		if env.cfg.AILink.Configured() {
			return checkOK, "configured", nil
		}
		return checkWarn, fmt.Sprintf("not configured; turns will fail and alert (run '%s doctor init' or set provider env vars)", AppIdentity().BinaryName), nil
	}},
	{name: "alerts", run: func(env *doctorEnv) (checkStatus, string, error) {
		if env.cfg == nil {
			return checkSkipped, "skipped (config not loaded)", nil
		}
		delivery := "log only"
		if env.cfg.Notify.SMTP.Host != "" {
			delivery = "mail via " + env.cfg.Notify.SMTP.Host
		}
		last := "none recorded"
		if env.db != nil {
			if alerts, err := env.db.ListAlerts(env.ctx, 1); err == nil && len(alerts) > 0 {
				last = "last " + formatTimeAgo(alerts[0].CreatedAt)
			}
		}
		return checkOK, delivery + " (" + last + ")", nil
	}},
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Run diagnostic checks",
	Long:  "Run diagnostic checks on the system and suggest fixes for common issues.",
	Run: func(cmd *cobra.Command, args []string) {
		log := observability.CLILogger
		name := AppIdentity().BinaryName

		log.Info("=== " + name + " doctor ===")
		log.Info("")

		env := &doctorEnv{ctx: cmd.Context()}
		healthy := runDoctorChecks(log, env, doctorChecks)
		if env.db != nil {
			_ = env.db.Close()
		}

		log.Info("")
		if healthy {
			log.Info(fmt.Sprintf("✅ All checks passed! Your %s installation is healthy.", name))
		} else {
			log.Warn("⚠️  Some checks failed. Review the output above for details.")
		}
		log.Info("=== End Diagnostics ===")
	},
}

// runDoctorChecks logs each check and reports whether all of them passed.
func runDoctorChecks(log *logging.Logger, env *doctorEnv, checks []doctorCheck) bool {
	healthy := true
	for i, check := range checks {
		status, detail, err := check.run(env)
		line := fmt.Sprintf("[%d/%d] Checking %s... %s %s", i+1, len(checks), check.name, status.icon(), detail)

		var fields []zap.Field
		if err != nil {
			fields = append(fields, zap.Error(err))
		}
		switch status {
		case checkOK:
			log.Info(line, fields...)
		case checkFail:
			log.Error(line, fields...)
			if check.fatal != 0 {
				ExitWithCode(log, check.fatal, "doctor: "+check.name, err)
			}
		default:
			log.Warn(line, fields...)
		}
		if status != checkOK {
			healthy = false
		}
	}
	return healthy
}

// describeStore names the database and, for local files, its size.
func describeStore(cfg config.StoreConfig) string {
	if cfg.URL != "" {
		return cfg.URL + " (remote)"
	}
	if cfg.Path == ":memory:" {
		return "in-memory (not persisted)"
	}
	abs, _ := filepath.Abs(cfg.Path)
	info, err := os.Stat(abs)
	switch {
	case err == nil:
		return fmt.Sprintf("%s (%s)", abs, humanize.IBytes(uint64(info.Size()))) // #nosec G115 -- file sizes are non-negative
	case os.IsNotExist(err):
		return abs + " (not created yet)"
	default:
		return fmt.Sprintf("%s (error: %v)", abs, err)
	}
}

func formatTimeAgo(t time.Time) string {
	if t.IsZero() {
		return "unknown"
	}
	return humanize.Time(t)
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
