package cmd

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/parlorhq/parlor/internal/config"
	"github.com/parlorhq/parlor/internal/observability"
)

func TestRunDoctorChecksSharesState(t *testing.T) {
	observability.InitCLILogger("parlor-test", false)

	var sawConfig bool
	checks := []doctorCheck{
		{name: "load", run: func(env *doctorEnv) (checkStatus, string, error) {
			env.cfg = &config.Config{}
			return checkOK, "loaded", nil
		}},
		{name: "use", run: func(env *doctorEnv) (checkStatus, string, error) {
			sawConfig = env.cfg != nil
			return checkOK, "", nil
		}},
	}
	assert.True(t, runDoctorChecks(observability.CLILogger, &doctorEnv{ctx: context.Background()}, checks))
	assert.True(t, sawConfig)

	checks = append(checks, doctorCheck{name: "flaky", run: func(*doctorEnv) (checkStatus, string, error) {
		return checkWarn, "degraded", errors.New("slow")
	}})
	assert.False(t, runDoctorChecks(observability.CLILogger, &doctorEnv{ctx: context.Background()}, checks))
}

func TestDescribeStore(t *testing.T) {
	assert.Equal(t, "libsql://db.example (remote)", describeStore(config.StoreConfig{URL: "libsql://db.example"}))
	assert.Equal(t, "in-memory (not persisted)", describeStore(config.StoreConfig{Path: ":memory:"}))

	dir := t.TempDir()
	missing := filepath.Join(dir, "absent.db")
	assert.Equal(t, missing+" (not created yet)", describeStore(config.StoreConfig{Path: missing}))

	present := filepath.Join(dir, "parlor.db")
	require.NoError(t, os.WriteFile(present, make([]byte, 2048), 0o600))
	assert.Equal(t, present+" (2.0 KiB)", describeStore(config.StoreConfig{Path: present}))
}

func TestReadLine(t *testing.T) {
	var prompt strings.Builder
	value, err := readLine(strings.NewReader("  gsk-123 \n"), &prompt, "key: ")
	require.NoError(t, err)
	assert.Equal(t, "gsk-123", value)
	assert.Equal(t, "key: ", prompt.String())

	value, err = readLine(strings.NewReader(""), &prompt, "key: ")
	require.NoError(t, err)
	assert.Empty(t, value)
}
