package main

import (
	"github.com/parlorhq/parlor/internal/cmd"
	"github.com/parlorhq/parlor/internal/server/handlers"
)

// Set via ldflags, e.g.
// go build -ldflags="-X main.version=0.3.0 -X main.commit=abc123 -X main.buildDate=2026-10-01"
var (
	version   = "dev"
	commit    = "unknown"
	buildDate = "unknown"
)

func main() {
	cmd.SetVersionInfo(version, commit, buildDate)
	handlers.SetVersionInfo(version, commit, buildDate)

	if err := cmd.Execute(); err != nil {
		cmd.ExitWithCodeStderr(cmd.ExitCodeFor(err), "parlor exited with an error", err)
	}
}
