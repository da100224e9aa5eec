package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"
	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/fulmenhq/gofulmen/telemetry"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/parlorhq/parlor/internal/ailink/driver"
	"github.com/parlorhq/parlor/internal/appid"
	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/observability"
)

var (
	cfgFile   string
	verbose   bool
	traceFile string

	identity *appid.Identity

	// Version info set by main package
	versionInfo struct {
		Version   string
		Commit    string
		BuildDate string
	}
)

// SetVersionInfo is called by main package to set version information
func SetVersionInfo(version, commit, buildDate string) {
	versionInfo.Version = version
	versionInfo.Commit = commit
	versionInfo.BuildDate = buildDate
}

// AppIdentity returns the application identity.
func AppIdentity() *appid.Identity {
	if identity != nil {
		return identity
	}
	id, err := appid.Get(context.Background())
	if err != nil || id == nil {
		return &appid.Identity{BinaryName: filepath.Base(os.Args[0]), ConfigName: filepath.Base(os.Args[0])}
	}
	identity = id
	return identity
}

var rootCmd = &cobra.Command{
	Use:   filepath.Base(os.Args[0]),
	Short: "Rate-limited conversational relay",
	Long: `A conversational relay that rate limits each user, keeps a rolling
summary of every conversation, and answers through a configured LLM provider.

Use the subcommands to perform specific operations.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Config loading must not emit metrics to stdout. serve installs the
	// real telemetry system later.
	if sys, err := telemetry.NewSystem(&telemetry.Config{Enabled: false}); err == nil {
		telemetry.SetGlobalSystem(sys)
	}

	id := AppIdentity()
	if id.BinaryName != "" {
		rootCmd.Use = id.BinaryName
	}
	if id.Description != "" {
		rootCmd.Short = id.Description
		rootCmd.Long = fmt.Sprintf("%s - %s\n\nUse the subcommands to perform specific operations.", id.BinaryName, id.Description)
	}

	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", fmt.Sprintf("config file (default is $XDG_CONFIG_HOME/%s/config.yaml)", id.ConfigName))
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (sets log level to debug)")
	rootCmd.PersistentFlags().StringVar(&traceFile, "trace", "", "trace provider requests/responses to NDJSON file")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))
}

// initConfig sets up CLI logging, provider tracing and viper. Defaults and
// environment overrides are layered by config.Load.
func initConfig() {
	id := AppIdentity()
	observability.InitCLILogger(id.BinaryName, verbose)
	log := observability.CLILogger

	if traceFile != "" {
		// The trace file stays open for the life of the process.
		if _, err := driver.StartTrace(traceFile); err != nil {
			log.Warn("Failed to enable tracing", zap.Error(err))
		} else {
			log.Debug("Provider tracing enabled", zap.String("file", traceFile))
		}
	}

	used, err := configureViper(viper.GetViper(), id, cfgFile)
	switch {
	case err == nil && used != "":
		log.Debug("Using config file", zap.String("path", used))
	case err == nil:
		log.Debug("No config file found, using defaults and environment variables")
	case cfgFile != "":
		ExitWithCode(log, foundry.ExitConfigInvalid, "Failed to read config file", err)
	default:
		log.Warn("Error reading config file", zap.Error(err))
	}
	config.SetDefaults(viper.GetViper())
}

// configureViper points v at explicit, or at config.yaml in the app config
// directory (then ./config), and reads it. It returns the file used; a
// missing file is not an error.
func configureViper(v *viper.Viper, id *appid.Identity, explicit string) (string, error) {
	if explicit != "" {
		v.SetConfigFile(explicit)
	} else {
		dir := gfconfig.GetAppConfigDir(id.ConfigName)
		name := "config"
		if dir == "" {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", fmt.Errorf("resolve home directory: %w", err)
			}
			dir, name = home, "."+id.ConfigName
		}
		v.AddConfigPath(dir)
		v.AddConfigPath("./config")
		v.SetConfigName(name)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(strings.TrimSuffix(id.EnvPrefix, "_"))
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return "", nil
		}
		return "", err
	}
	return v.ConfigFileUsed(), nil
}
