package cmd

import (
	"fmt"
	"runtime"
	"sort"
	"strings"

	"github.com/fulmenhq/gofulmen/crucible"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/observability"
)

type envSection struct {
	title string
	rows  [][2]string
}

func (s *envSection) add(key string, value any) {
	s.rows = append(s.rows, [2]string{key, fmt.Sprint(value)})
}

var envInfoCmd = &cobra.Command{
	Use:   "envinfo",
	Short: "Display environment information",
	Long:  "Display build, runtime and effective relay configuration.",
	RunE: func(cmd *cobra.Command, args []string) error {
		sections := buildInfoSections()

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			observability.CLILogger.Warn("Config load failed, showing build information only", zap.Error(err))
		} else {
			sections = append(sections, configSections(cfg)...)
		}

		t := table.NewWriter()
		t.SetStyle(table.StyleLight)
		t.SetTitle(AppIdentity().BinaryName + " environment")
		for i, section := range sections {
			if i > 0 {
				t.AppendSeparator()
			}
			t.AppendRow(table.Row{strings.ToUpper(section.title), ""})
			for _, row := range section.rows {
				t.AppendRow(table.Row{"  " + row[0], row[1]})
			}
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), t.Render())
		return err
	},
}

func buildInfoSections() []envSection {
	deps := crucible.GetVersion()

	app := envSection{title: "application"}
	app.add("name", AppIdentity().BinaryName)
	app.add("version", versionInfo.Version)
	app.add("commit", versionInfo.Commit)
	app.add("built", versionInfo.BuildDate)
	app.add("gofulmen", deps.Gofulmen)
	app.add("crucible", deps.Crucible)

	rt := envSection{title: "runtime"}
	rt.add("go", runtime.Version())
	rt.add("platform", runtime.GOOS+"/"+runtime.GOARCH)
	rt.add("cpus", runtime.NumCPU())

	return []envSection{app, rt}
}

func configSections(cfg *config.Config) []envSection {
	general := envSection{title: "configuration"}
	general.add("config file", config.DefaultConfigPath())
	general.add("server", fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port))
	general.add("logging", cfg.Logging.Level+" / "+cfg.Logging.Profile)
	general.add("store", describeStore(cfg.Store))
	general.add("metrics port", cfg.Metrics.Port)

	relay := envSection{title: "relay"}
	relay.add("window", cfg.Relay.Window)
	relay.add("max per window", cfg.Relay.MaxPerWindow)
	relay.add("compaction every", fmt.Sprintf("%d user messages", cfg.Relay.CompactionThreshold))
	relay.add("summary word cap", cfg.Relay.SummaryWordCap)
	relay.add("buffer cap", fmt.Sprintf("%d bytes", cfg.Relay.MaxBufferBytes))
	relay.add("generation timeout", cfg.Relay.GenerationTimeout)
	relay.add("tracked users", fmt.Sprintf("%d max, swept every %s", cfg.Relay.MaxTrackedUsers, cfg.Relay.SweepInterval))

	transports := envSection{title: "transports"}
	transports.add("http", "/v1/messages")
	transports.add("telegram", cfg.Telegram.Enabled)

	generation := envSection{title: "generation"}
	generation.add("default provider", orUnset(cfg.AILink.DefaultProvider))
	generation.add("default timeout", cfg.AILink.DefaultTimeout)
	for _, role := range sortedKeys(cfg.AILink.Routing) {
		generation.add("route "+role, cfg.AILink.Routing[role])
	}
	for _, id := range sortedKeys(cfg.AILink.Providers) {
		p := cfg.AILink.Providers[id]
		keys := 0
		for _, cred := range p.Credentials {
			if strings.TrimSpace(cred.APIKey) != "" {
				keys++
			}
		}
		generation.add(id, fmt.Sprintf("%s model=%s enabled=%t keys=%d/%d",
			p.AIProvider, orUnset(p.Models["default"]), p.Enabled, keys, len(p.Credentials)))
	}

	alerts := envSection{title: "alerts"}
	if cfg.Notify.SMTP.Host != "" {
		alerts.add("smtp", fmt.Sprintf("%s:%d -> %s", cfg.Notify.SMTP.Host, cfg.Notify.SMTP.Port, strings.Join(cfg.Notify.SMTP.To, ", ")))
	} else {
		alerts.add("smtp", "(not configured, alerts are logged)")
	}
	alerts.add("history", cfg.Notify.History)
	alerts.add("queue size", cfg.Notify.QueueSize)

	return []envSection{general, relay, transports, generation, alerts}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func orUnset(value string) string {
	if strings.TrimSpace(value) == "" {
		return "(unset)"
	}
	return value
}

func init() {
	rootCmd.AddCommand(envInfoCmd)
}
