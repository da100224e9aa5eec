package integration

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStandaloneBinaryRunsOutsideRepo(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("standalone binary copy/exec test is unix-focused")
	}
	if testing.Short() {
		t.Skip("builds the binary")
	}

	goMod, err := exec.Command("go", "env", "GOMOD").Output()
	require.NoError(t, err)
	repoRoot := filepath.Dir(strings.TrimSpace(string(goMod)))

	binary := filepath.Join(t.TempDir(), "parlor")
	build := exec.Command("go", "build", "-o", binary, "./cmd/parlor")
	build.Dir = repoRoot
	build.Env = os.Environ()
	out, err := build.CombinedOutput()
	require.NoError(t, err, string(out))

	outside := t.TempDir()
	for _, args := range [][]string{{"version"}, {"--help"}, {"chat", "--help"}} {
		run := exec.Command(binary, args...)
		run.Dir = outside
		run.Env = append(os.Environ(), "HOME="+outside)
		out, err := run.CombinedOutput()
		require.NoError(t, err, "%v: %s", args, string(out))
	}
}
