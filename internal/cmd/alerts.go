package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/internal/output"
)

// minAlertAge guards against pruning alerts that may still be in delivery.
const minAlertAge = time.Minute

var (
	alertsListLimit    int
	alertsPruneOlder   time.Duration
	alertsPruneDryRun  bool
	alertsPruneConfirm bool
)

var alertsCmd = &cobra.Command{
	Use:   "alerts",
	Short: "Inspect the operator alert history",
	Long: `Inspect alerts recorded by the relay. Alerts are recorded when
notify.history is enabled, in addition to mail or log delivery.`,
}

var alertsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded alerts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := resolveOutputFormat(cmd)
		if err != nil {
			return err
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		alerts, err := db.ListAlerts(cmd.Context(), alertsListLimit)
		if err != nil {
			return err
		}

		rendered, err := output.NewFormatter(format).FormatAlerts(alerts)
		if err != nil {
			return err
		}

		out, err := openOutput(cmd, format, "alerts")
		if err != nil {
			return err
		}
		defer func() { _ = out.Close() }()

		_, err = fmt.Fprintln(out, rendered)
		return err
	},
}

var alertsPruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Delete recorded alerts older than a duration",
	RunE: func(cmd *cobra.Command, args []string) error {
		if alertsPruneOlder < minAlertAge {
			return fmt.Errorf("--older-than must be at least %s", minAlertAge)
		}
		if !alertsPruneConfirm && !alertsPruneDryRun {
			return errors.New("prune requires --yes (or use --dry-run)")
		}

		db, err := openStore(cmd.Context(), nil)
		if err != nil {
			return err
		}
		defer db.Close() // nolint:errcheck // best-effort cleanup

		cutoff := time.Now().Add(-alertsPruneOlder)
		out := cmd.OutOrStdout()

		if alertsPruneDryRun {
			alerts, err := db.ListAlerts(cmd.Context(), 0)
			if err != nil {
				return err
			}
			matched := 0
			for _, alert := range alerts {
				if alert.CreatedAt.Before(cutoff) {
					matched++
				}
			}
			_, err = fmt.Fprintf(out, "Would delete %d alert(s) recorded before %s\n", matched, cutoff.UTC().Format(time.RFC3339))
			return err
		}

		deleted, err := db.PruneAlerts(cmd.Context(), cutoff)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintf(out, "Deleted %d alert(s) recorded before %s\n", deleted, cutoff.UTC().Format(time.RFC3339))
		return err
	},
}

func init() {
	alertsListCmd.Flags().IntVar(&alertsListLimit, "limit", 50, "Maximum rows (0 for all)")
	addOutputFlags(alertsListCmd, "table|json|markdown")

	alertsPruneCmd.Flags().DurationVar(&alertsPruneOlder, "older-than", 30*24*time.Hour, "Delete alerts older than this duration")
	alertsPruneCmd.Flags().BoolVar(&alertsPruneConfirm, "yes", false, "Confirm deletion")
	alertsPruneCmd.Flags().BoolVar(&alertsPruneDryRun, "dry-run", false, "Show what would be deleted")

	alertsCmd.AddCommand(alertsListCmd)
	alertsCmd.AddCommand(alertsPruneCmd)
	rootCmd.AddCommand(alertsCmd)
}
