package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/spf13/cobra"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/core/store"
	"github.com/parlorhq/parlor/internal/output"
)

var nonFilename = regexp.MustCompile(`[^a-z0-9._-]+`)

type nopWriteCloser struct{ io.Writer }

func (nopWriteCloser) Close() error { return nil }

func addOutputFlags(cmd *cobra.Command, formats string) {
	cmd.Flags().String("output-format", string(output.FormatTable), "Output format: "+formats)
	cmd.Flags().String("out", "", "Write output to a file (default stdout)")
	cmd.Flags().String("out-dir", "", "Write output to a directory")
}

func resolveOutputFormat(cmd *cobra.Command) (output.Format, error) {
	value, err := cmd.Flags().GetString("output-format")
	if err != nil {
		return "", err
	}
	return output.ParseFormat(value)
}

// openOutput returns where a command writes its report: stdout, the file
// named by --out, or <out-dir>/<name>.<ext>.
func openOutput(cmd *cobra.Command, format output.Format, name string) (io.WriteCloser, error) {
	file, _ := cmd.Flags().GetString("out")
	dir, _ := cmd.Flags().GetString("out-dir")
	file, dir = strings.TrimSpace(file), strings.TrimSpace(dir)

	switch {
	case file != "" && dir != "":
		return nil, fmt.Errorf("--out and --out-dir are mutually exclusive")
	case dir != "":
		file = filepath.Join(dir, sanitizeFilename(name)+"."+format.Extension())
	case file == "" || file == "-":
		return nopWriteCloser{cmd.OutOrStdout()}, nil
	}

	// #nosec G301 -- user-chosen report directory
	if err := os.MkdirAll(filepath.Dir(file), 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	f, err := os.Create(file) // #nosec G304 -- path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("create output file: %w", err)
	}
	return f, nil
}

func sanitizeFilename(value string) string {
	clean := nonFilename.ReplaceAllString(strings.ToLower(strings.TrimSpace(value)), "-")
	if clean = strings.Trim(clean, "-."); clean == "" {
		return "output"
	}
	return clean
}

// openStore opens and migrates the configured store. A nil cfg is loaded
// from the usual sources.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if cfg == nil {
		loaded, err := config.Load(ctx)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}
	db, err := store.Open(ctx, cfg.Store)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}
