package cmd

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/appid"
	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/observability"
)

const initConfigTemplate = `# {{name}} config - created by '{{name}} doctor init'
relay:
  window: 1h
  max_per_window: 30
  compaction_threshold: 3
  summary_word_cap: 300
ailink:
  default_provider: parlor-groq
  providers:
    parlor-groq:
      enabled: true
      ai_provider: groq
      base_url: https://api.groq.com/openai/v1
      models:
        default: llama-3.3-70b-versatile
      credentials:
        - label: default
          enabled: true
          priority: 0
          {{api_key}}
telegram:
  enabled: false
  # token: set via {{prefix}}TELEGRAM_BOT_TOKEN
notify:
  history: true
`

var (
	doctorInitForce  bool
	doctorInitAPIKey string

	doctorResetConfig bool
	doctorResetData   bool
	doctorResetAll    bool
)

var doctorInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a default config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if path == "" {
			return errors.New("config path not resolved")
		}
		if _, err := os.Stat(path); err == nil && !doctorInitForce {
			return fmt.Errorf("config file already exists: %s (use --force to overwrite)", path)
		}

		apiKey := strings.TrimSpace(doctorInitAPIKey)
		if strings.EqualFold(apiKey, "prompt") {
			var err error
			if apiKey, err = readLine(cmd.InOrStdin(), cmd.OutOrStdout(), "Enter provider API key (leave blank to skip): "); err != nil {
				return err
			}
		}

		// #nosec G301 -- user config directory
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
		mode := os.FileMode(0o644)
		if apiKey != "" {
			mode = 0o600
		}
		if err := os.WriteFile(path, []byte(buildInitConfig(apiKey)), mode); err != nil {
			return fmt.Errorf("write config file: %w", err)
		}
		observability.CLILogger.Info("Config initialized", zap.String("path", path))
		return nil
	},
}

var doctorConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Show configuration status and paths",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := observability.CLILogger
		path := config.DefaultConfigPath()

		log.Info("Configuration:")
		log.Info(fmt.Sprintf("  Config file:    %s (%s)", path, presence(path)))
		if dir := config.DefaultDataDir(); dir != "" {
			log.Info(fmt.Sprintf("  Data directory: %s (%s)", dir, presence(dir)))
		} else {
			log.Info("  Data directory: (not resolved)")
		}

		cfg, err := config.Load(cmd.Context())
		if err != nil {
			log.Warn("Config load failed", zap.Error(err))
			return nil
		}
		log.Info("  Database:       " + describeStore(cfg.Store))

		log.Info("")
		log.Info("Environment:")
		prefix := appid.EnvPrefix()
		for _, suffix := range []string{
			"AILINK_PROVIDERS_PARLOR_GROQ_CREDENTIALS_0_API_KEY",
			"TELEGRAM_BOT_TOKEN",
			"SMTP_PASSWORD",
			"ADMIN_TOKEN",
		} {
			state := "(not set)"
			if strings.TrimSpace(os.Getenv(prefix+suffix)) != "" {
				state = "(set)"
			}
			log.Info("  " + prefix + suffix + ": " + state)
		}

		log.Info("")
		log.Info("Effective Settings:")
		for _, kv := range [][2]any{
			{"relay.window", cfg.Relay.Window},
			{"relay.max_per_window", cfg.Relay.MaxPerWindow},
			{"relay.compaction_threshold", cfg.Relay.CompactionThreshold},
			{"relay.summary_word_cap", cfg.Relay.SummaryWordCap},
			{"telegram.enabled", cfg.Telegram.Enabled},
			{"notify.history", cfg.Notify.History},
		} {
			log.Info(fmt.Sprintf("  %s: %v", kv[0], kv[1]))
		}
		return nil
	},
}

var doctorResetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Reset user configuration and/or data",
	RunE: func(cmd *cobra.Command, args []string) error {
		resetConfig := doctorResetConfig || doctorResetAll
		resetData := doctorResetData || doctorResetAll
		if !resetConfig && !resetData {
			return errors.New("specify --config, --data, or --all")
		}

		if resetConfig {
			if path := config.DefaultConfigPath(); path == "" {
				observability.CLILogger.Warn("Config path not resolved; skipping config reset")
			} else if err := removeIfPresent("Config", path); err != nil {
				return err
			}
		}

		if resetData {
			cfg, err := config.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Store.URL != "" {
				return errors.New("remote store configured; database reset is not supported")
			}
			abs, _ := filepath.Abs(cfg.Store.Path)
			return removeIfPresent("Database", abs)
		}
		return nil
	},
}

var doctorValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the current config file",
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.DefaultConfigPath()
		if path == "" {
			return errors.New("config path not resolved")
		}
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("config file not found: %s: %w", path, err)
		}
		if _, err := config.Load(cmd.Context()); err != nil {
			return err
		}
		observability.CLILogger.Info("Config is valid", zap.String("path", path))
		return nil
	},
}

func init() {
	doctorCmd.AddCommand(doctorInitCmd, doctorConfigCmd, doctorResetCmd, doctorValidateCmd)

	doctorInitCmd.Flags().BoolVar(&doctorInitForce, "force", false, "overwrite existing config file")
	doctorInitCmd.Flags().StringVar(&doctorInitAPIKey, "api-key", "", "set the provider api key or use 'prompt' to enter")

	doctorResetCmd.Flags().BoolVar(&doctorResetConfig, "config", false, "remove user config file")
	doctorResetCmd.Flags().BoolVar(&doctorResetData, "data", false, "remove local database")
	doctorResetCmd.Flags().BoolVar(&doctorResetAll, "all", false, "remove config and data")
}

func buildInitConfig(apiKey string) string {
	name := AppIdentity().BinaryName
	keyLine := fmt.Sprintf("# api_key: \"\"  # set via %sAILINK_PROVIDERS_PARLOR_GROQ_CREDENTIALS_0_API_KEY or uncomment", appid.EnvPrefix())
	if key := strings.TrimSpace(apiKey); key != "" {
		keyLine = fmt.Sprintf("api_key: %q", key)
	}
	return strings.NewReplacer(
		"{{name}}", name,
		"{{prefix}}", appid.EnvPrefix(),
		"{{api_key}}", keyLine,
	).Replace(initConfigTemplate)
}

func readLine(in io.Reader, out io.Writer, label string) (string, error) {
	if _, err := fmt.Fprint(out, label); err != nil {
		return "", err
	}
	value, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	return strings.TrimSpace(value), nil
}

func removeIfPresent(what, path string) error {
	err := os.Remove(path)
	switch {
	case err == nil:
		observability.CLILogger.Info(what+" removed", zap.String("path", path))
	case os.IsNotExist(err):
		observability.CLILogger.Info(what+" already removed", zap.String("path", path))
	default:
		return fmt.Errorf("remove %s: %w", strings.ToLower(what), err)
	}
	return nil
}

func presence(path string) string {
	if path == "" {
		return "missing"
	}
	if _, err := os.Stat(path); err != nil {
		return "missing"
	}
	return "exists"
}
