package eval

import (
	"context"
	"os/exec"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/fixgen"
	"github.com/felixgeelhaar/autoheal/internal/log"
	"github.com/felixgeelhaar/autoheal/internal/patch"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell runner tests need a POSIX shell")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func TestCommandRunner(t *testing.T) {
	requireShell(t)

	runner, err := NewCommandRunner(CommandConfig{Command: []string{"sh", FilePlaceholder}, Parallelism: 2}, log.Discard())
	require.NoError(t, err)

	files := patch.Files{"src/send.js": "page.click('[data-testid=send-v2]')\n"}
	tests := []fixgen.TestCase{
		{Name: "uses new selector", Code: "grep -q send-v2 src/send.js"},
		{Name: "old selector gone", Code: "if grep -q \"'#send'\" src/send.js; then echo still there; exit 1; fi"},
		{Name: "Deliberately failing!", Code: "echo boom >&2; exit 3", FilePath: "checks/fail.sh"},
	}

	result, err := runner.Run(context.Background(), tests, files)
	require.NoError(t, err)

	assert.Equal(t, 3, result.TotalTests)
	assert.Equal(t, 2, result.PassedTests)
	assert.Equal(t, 1, result.FailedTests)
	assert.False(t, result.Passed)
	require.Len(t, result.Failures, 1)
	assert.Equal(t, "Deliberately failing!", result.Failures[0].TestName)
	assert.Contains(t, result.Failures[0].Error, "boom")
}

func TestCommandRunnerTimeout(t *testing.T) {
	requireShell(t)

	runner, err := NewCommandRunner(CommandConfig{Command: []string{"sh", FilePlaceholder}, Timeout: 50 * time.Millisecond}, nil)
	require.NoError(t, err)

	result, err := runner.Run(context.Background(), []fixgen.TestCase{{Name: "hangs", Code: "sleep 5"}}, patch.Files{})
	require.NoError(t, err)
	require.Len(t, result.Failures, 1)
	assert.Contains(t, result.Failures[0].Error, "timed out")
}

func TestCommandRunnerRejectsEscapingPaths(t *testing.T) {
	runner, err := NewCommandRunner(CommandConfig{Command: []string{"true"}}, nil)
	require.NoError(t, err)

	_, err = runner.Run(context.Background(), nil, patch.Files{"../outside.js": "x"})
	assert.ErrorContains(t, err, "escapes the workspace")
}

func TestNewCommandRunnerRequiresCommand(t *testing.T) {
	_, err := NewCommandRunner(CommandConfig{}, nil)
	assert.Error(t, err)
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "clicks_the_new_button", slug("Clicks the NEW button!"))
	assert.Equal(t, "test", slug("???"))
}
