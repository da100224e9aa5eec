package config

import (
	"context"
	"path/filepath"
	"strings"

	gfconfig "github.com/fulmenhq/gofulmen/config"

	"github.com/parlorhq/parlor/internal/appid"
)

// appNames returns the config directory name and binary name.
func appNames() (configName, binaryName string) {
	configName, binaryName = "parlor", "parlor"
	id, err := appid.Get(context.Background())
	if err != nil || id == nil {
		return configName, binaryName
	}
	if name := strings.TrimSpace(id.ConfigName); name != "" {
		configName = name
	}
	if name := strings.TrimSpace(id.BinaryName); name != "" {
		binaryName = name
	}
	return configName, binaryName
}

// UserConfigPaths returns the XDG config file candidates, most specific first.
func UserConfigPaths() []string {
	configName, binaryName := appNames()
	if binaryName == configName {
		return gfconfig.GetAppConfigPaths(configName)
	}
	return gfconfig.GetAppConfigPaths(configName, binaryName)
}

// DefaultConfigDir returns the XDG config directory.
func DefaultConfigDir() string {
	configName, _ := appNames()
	return gfconfig.GetAppConfigDir(configName)
}

// DefaultConfigPath returns the user config file, or "" when the config
// directory cannot be resolved.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if strings.TrimSpace(dir) == "" {
		return ""
	}
	return filepath.Join(dir, "config.yaml")
}

// DefaultDataDir returns the XDG data directory.
func DefaultDataDir() string {
	configName, _ := appNames()
	return gfconfig.GetAppDataDir(configName)
}

// DefaultStorePath returns <data dir>/<binary>.db, or ./<binary>.db when no
// data directory resolves.
func DefaultStorePath() string {
	_, binaryName := appNames()
	if dir := strings.TrimSpace(DefaultDataDir()); dir != "" {
		return filepath.Join(dir, binaryName+".db")
	}
	return "./" + binaryName + ".db"
}
