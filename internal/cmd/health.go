package cmd

import (
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/config"
	errwrap "github.com/parlorhq/parlor/internal/errors"
	"github.com/parlorhq/parlor/internal/observability"
)

var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Run self-health check",
	Long:  "Run a self-health check to verify the relay can start: version, logger, configuration and store.",
	Run: func(cmd *cobra.Command, args []string) {
		if observability.CLILogger == nil {
			ExitWithCodeStderr(foundry.ExitConfigInvalid, "Logger not initialized", errwrap.NewConfigInvalidError("Logger not initialized"))
			return
		}
		log := observability.CLILogger
		log.Info("Running health check...")

		if versionInfo.Version == "" {
			log.Error("❌ FAIL: Version information missing")
			ExitWithCode(log, foundry.ExitConfigInvalid, "Version information missing", errwrap.NewConfigInvalidError("Version information missing"))
			return
		}
		log.Debug("Version check passed", zap.String("version", versionInfo.Version))
		log.Info("✅ Version information available")
		log.Info("✅ Logger initialized")

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Error("❌ FAIL: Configuration invalid")
			ExitWithCode(log, foundry.ExitConfigInvalid, "Configuration invalid", errwrap.WrapInternal(cmd.Context(), err, "configuration invalid"))
			return
		}
		log.Info("✅ Configuration valid")

		db, err := openStore(cmd.Context(), cfg)
		if err != nil {
			log.Error("❌ FAIL: Store unavailable")
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Store unavailable", errwrap.WrapDatabaseError(cmd.Context(), err, "store unavailable"))
			return
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup
		if err := db.CheckHealth(cmd.Context()); err != nil {
			log.Error("❌ FAIL: Store ping failed")
			ExitWithCode(log, foundry.ExitExternalServiceUnavailable, "Store ping failed", errwrap.WrapDatabaseError(cmd.Context(), err, "store ping failed"))
			return
		}
		log.Info("✅ Store reachable")

		log.Info("")
		log.Info("✅ All health checks passed")
	},
}

func init() {
	rootCmd.AddCommand(healthCmd)
}
