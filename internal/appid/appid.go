// Package appid holds the application identity used for CLI help, config
// discovery and environment variable prefixes.
package appid

import "context"

// Identity describes the application.
type Identity struct {
	BinaryName  string
	ConfigName  string
	EnvPrefix   string
	Vendor      string
	Description string
}

var identity = Identity{
	BinaryName:  "parlor",
	ConfigName:  "parlor",
	EnvPrefix:   "PARLOR_",
	Vendor:      "parlorhq",
	Description: "Rate-limited conversational relay with rolling conversation summaries",
}

// Get returns a copy of the application identity.
func Get(_ context.Context) (*Identity, error) {
	id := identity
	return &id, nil
}

// EnvPrefix returns the environment variable prefix, always ending in "_".
func EnvPrefix() string {
	return identity.EnvPrefix
}
