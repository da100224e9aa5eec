package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/internal/server/handlers"
)

var (
	versionExtended bool
	versionJSON     bool
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  "Print version information. --extended adds Go, Gofulmen and Crucible versions; --json prints the same document as GET /version.",
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		info := handlers.CurrentVersion(AppIdentity().BinaryName)
		info.App.Version = versionInfo.Version
		info.App.Commit = versionInfo.Commit
		info.App.BuildDate = versionInfo.BuildDate

		if versionJSON {
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(info)
		}

		if _, err := fmt.Fprintf(out, "%s %s\n", info.App.Name, info.App.Version); err != nil {
			return err
		}
		if !versionExtended {
			return nil
		}
		_, err := fmt.Fprintf(out, "Commit: %s\nBuilt: %s\nGo: %s (%s)\n\nGofulmen: %s\nCrucible: %s\n",
			info.App.Commit, info.App.BuildDate, info.App.GoVersion, info.Runtime.Platform,
			info.Dependencies.Gofulmen, info.Dependencies.Crucible)
		return err
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
	versionCmd.Flags().BoolVarP(&versionExtended, "extended", "e", false, "show extended version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "print version information as JSON")
}
