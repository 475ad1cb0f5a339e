package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/deploy"
	"github.com/felixgeelhaar/autoheal/internal/errors"
	"github.com/felixgeelhaar/autoheal/internal/health"
	"github.com/felixgeelhaar/autoheal/internal/patch"
	"github.com/felixgeelhaar/autoheal/internal/version"
)

const sendSource = `async function send(page) {
  await page.click("#send");
  return true;
}
`

func fixJSON(confidence float64) string {
	return fmt.Sprintf(`{
  "diagnosis": "send button id changed",
  "confidence": %g,
  "suggestedFix": [{
    "filePath": "send.js",
    "startLine": 2,
    "endLine": 2,
    "originalCode": "  await page.click(\"#send\");",
    "replacementCode": "  await page.click(\"[data-test=send]\");"
  }],
  "testCases": [{"name": "clicks send", "code": "require('./send.js')"}],
  "rollbackPlan": "restore the old selector"
}`, confidence)
}

// execute runs the CLI and returns stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var stdout, stderr bytes.Buffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), err
}

func writeFile(t *testing.T, path, content string) string {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// writeConfig writes a config keeping all state under dir.
func writeConfig(t *testing.T, dir, extra string) string {
	t.Helper()
	cfg := fmt.Sprintf(`platform: mail
log:
  level: error
store:
  path: %s
patches:
  dir: %s
%s`, filepath.Join(dir, "autoheal.db"), filepath.Join(dir, "patches"), extra)
	return writeFile(t, filepath.Join(dir, "autoheal.yaml"), cfg)
}

func requireCode(t *testing.T, err error, want errors.ErrorCode) {
	t.Helper()
	require.Error(t, err)
	code, ok := errors.Code(err)
	require.True(t, ok, "error carries no code: %v", err)
	assert.Equal(t, want, code)
}

func TestVersionJSON(t *testing.T) {
	out, err := execute(t, "version", "--json")
	require.NoError(t, err)

	var info version.Info
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, version.Version, info.Version)
	assert.NotEmpty(t, info.GoVersion)
}

func TestConfigInitShowValidate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "autoheal.yaml")

	out, err := execute(t, "config", "init", path)
	require.NoError(t, err)
	assert.Contains(t, out, path)

	_, err = execute(t, "config", "init", path)
	requireCode(t, err, errors.ErrCodeConfigInvalid)

	_, err = execute(t, "config", "init", "--force", path)
	require.NoError(t, err)

	out, err = execute(t, "config", "validate", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "valid")

	out, err = execute(t, "config", "show", "--config", path)
	require.NoError(t, err)
	assert.Contains(t, out, "platform: default")
}

func TestConfigShowRedactsSecrets(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `oracle:
  api_key: sk-very-secret
executor:
  url: http://executor.local
  token: executor-secret
`)

	out, err := execute(t, "config", "show", "--config", path, "-o", "json")
	require.NoError(t, err)
	assert.NotContains(t, out, "sk-very-secret")
	assert.NotContains(t, out, "executor-secret")
	assert.Contains(t, out, "http://executor.local")
}

func TestConfigMissingFile(t *testing.T) {
	_, err := execute(t, "config", "validate", "--config", filepath.Join(t.TempDir(), "nope.yaml"))
	requireCode(t, err, errors.ErrCodeConfigNotFound)
}

func TestDiff(t *testing.T) {
	dir := t.TempDir()
	fix := writeFile(t, filepath.Join(dir, "fix.json"), fixJSON(0.9))

	out, err := execute(t, "diff", fix)
	require.NoError(t, err)
	assert.Contains(t, out, "a/send.js")
	assert.Contains(t, out, `-  await page.click("#send");`)
	assert.Contains(t, out, `+  await page.click("[data-test=send]");`)

	src := filepath.Join(dir, "src")
	writeFile(t, filepath.Join(src, "send.js"), sendSource)
	_, err = execute(t, "diff", fix, "--dir", src)
	require.NoError(t, err)

	writeFile(t, filepath.Join(src, "send.js"), strings.Replace(sendSource, "#send", "#submit", 1))
	_, err = execute(t, "diff", fix, "--dir", src)
	requireCode(t, err, errors.ErrCodePatchMismatch)
}

func TestDiffRejectsMalformedFix(t *testing.T) {
	fix := writeFile(t, filepath.Join(t.TempDir(), "fix.json"), `{"diagnosis": "x", "confidence": 2}`)
	_, err := execute(t, "diff", fix)
	requireCode(t, err, errors.ErrCodeParseInvalidField)
}

func TestRevertApply(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	fix := writeFile(t, filepath.Join(dir, "fix.json"), fixJSON(0.9))

	out, err := execute(t, "revert", fix, "--config", cfg)
	require.NoError(t, err)
	var revert []patch.CodePatch
	require.NoError(t, json.Unmarshal([]byte(out), &revert))
	require.Len(t, revert, 1)
	assert.Equal(t, `  await page.click("[data-test=send]");`, revert[0].OriginalCode)

	src := filepath.Join(dir, "src")
	patched := strings.Replace(sendSource, "#send", "[data-test=send]", 1)
	writeFile(t, filepath.Join(src, "send.js"), patched)

	_, err = execute(t, "revert", fix, "--config", cfg, "--apply", "--dir", src)
	require.NoError(t, err)
	data, err := os.ReadFile(filepath.Join(src, "send.js"))
	require.NoError(t, err)
	assert.Equal(t, sendSource, string(data))
}

func TestRevertNeedsOneSource(t *testing.T) {
	_, err := execute(t, "revert")
	require.Error(t, err)
}

// platformServer fakes the executor and monitor endpoints.
type platformServer struct {
	*httptest.Server
	rollouts  atomic.Int32
	rollbacks atomic.Int32
	errorRate float64
}

func newPlatformServer(t *testing.T, errorRate float64) *platformServer {
	ps := &platformServer{errorRate: errorRate}
	ps.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/rollouts":
			ps.rollouts.Add(1)
			w.WriteHeader(http.StatusAccepted)
		case r.URL.Path == "/rollbacks":
			ps.rollbacks.Add(1)
			w.WriteHeader(http.StatusAccepted)
		case strings.HasPrefix(r.URL.Path, "/metrics/"):
			_ = json.NewEncoder(w).Encode(health.HealthMetrics{
				Platform:    "mail",
				Timestamp:   time.Now(),
				Connected:   true,
				SuccessRate: 1 - ps.errorRate,
				ErrorRate:   ps.errorRate,
			})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(ps.Close)
	return ps
}

func deployConfig(t *testing.T, dir, url string) string {
	return writeConfig(t, dir, fmt.Sprintf(`monitor:
  url: %[1]s
executor:
  url: %[1]s
deploy:
  auto_deploy_threshold: 0.8
  max_rollout_duration: 1m
  stages:
    - percentage: 50
      soak_duration: 0s
      rollback_threshold: 0.05
    - percentage: 100
      soak_duration: 0s
      rollback_threshold: 0.05
`, url))
}

func decodeRecord(t *testing.T, out string) *deploy.Record {
	t.Helper()
	var rec deploy.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec), out)
	return &rec
}

func TestDeployCompletes(t *testing.T) {
	dir := t.TempDir()
	ps := newPlatformServer(t, 0)
	cfg := deployConfig(t, dir, ps.URL)
	fix := writeFile(t, filepath.Join(dir, "fix.json"), fixJSON(0.95))

	out, err := execute(t, "deploy", fix, "--function", "send", "--config", cfg, "-o", "json")
	require.NoError(t, err)

	rec := decodeRecord(t, out)
	assert.Equal(t, deploy.StatusComplete, rec.Status)
	assert.Equal(t, "mail", rec.Platform)
	assert.Len(t, rec.Stages, 2)
	assert.EqualValues(t, 2, ps.rollouts.Load())

	sets, err := filepath.Glob(filepath.Join(dir, "patches", "*"))
	require.NoError(t, err)
	assert.Len(t, sets, 2, "forward and revert sets")

	out, err = execute(t, "deployments", rec.ID, "--config", cfg, "-o", "json")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, decodeRecord(t, out).ID)

	out, err = execute(t, "revert", "--hash", rec.FixHash[:12], "--config", cfg)
	require.NoError(t, err)
	var revert []patch.CodePatch
	require.NoError(t, json.Unmarshal([]byte(out), &revert))
	require.Len(t, revert, 1)
	assert.Equal(t, "send.js", revert[0].FilePath)
}

func TestDeployRollsBack(t *testing.T) {
	dir := t.TempDir()
	ps := newPlatformServer(t, 0.5)
	cfg := deployConfig(t, dir, ps.URL)
	fix := writeFile(t, filepath.Join(dir, "fix.json"), fixJSON(0.95))

	out, err := execute(t, "deploy", fix, "--function", "send", "--config", cfg, "-o", "json")
	requireCode(t, err, errors.ErrCodeDeployRolledBack)
	assert.Equal(t, deploy.StatusRolledBack, decodeRecord(t, out).Status)
	assert.EqualValues(t, 1, ps.rollbacks.Load())
}

func TestDeployRequiresEndpoints(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	fix := writeFile(t, filepath.Join(dir, "fix.json"), fixJSON(0.95))

	_, err := execute(t, "deploy", fix, "--function", "send", "--config", cfg)
	requireCode(t, err, errors.ErrCodeConfigInvalid)
}

func TestApprovePendingReview(t *testing.T) {
	dir := t.TempDir()
	ps := newPlatformServer(t, 0)
	cfg := deployConfig(t, dir, ps.URL)
	fix := writeFile(t, filepath.Join(dir, "fix.json"), fixJSON(0.5))

	out, err := execute(t, "deploy", fix, "--function", "send", "--config", cfg, "-o", "json")
	requireCode(t, err, errors.ErrCodeDeployPendingReview)
	held := decodeRecord(t, out)
	assert.Equal(t, deploy.StatusPendingReview, held.Status)
	assert.Zero(t, ps.rollouts.Load())

	out, err = execute(t, "deployments", "--status", "PENDING_REVIEW", "--config", cfg, "-o", "json")
	require.NoError(t, err)
	var listed []*deploy.Record
	require.NoError(t, json.Unmarshal([]byte(out), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, held.ID, listed[0].ID)

	orig := confirmRelease
	t.Cleanup(func() { confirmRelease = orig })
	confirmRelease = func(title, desc string) (bool, error) { return false, nil }

	_, err = execute(t, "approve", held.ID, "--config", cfg)
	require.NoError(t, err)
	assert.Zero(t, ps.rollouts.Load(), "declined approval must not deploy")

	out, err = execute(t, "approve", held.ID, "--yes", "--config", cfg, "-o", "json")
	require.NoError(t, err)
	approved := decodeRecord(t, out)
	assert.Equal(t, deploy.StatusComplete, approved.Status)
	assert.NotEqual(t, held.ID, approved.ID)
	assert.Equal(t, held.FixHash, approved.FixHash)

	_, err = execute(t, "approve", held.ID, "--yes", "--config", cfg)
	requireCode(t, err, errors.ErrCodeDeployFailed)

	_, err = execute(t, "approve", approved.ID, "--yes", "--config", cfg)
	requireCode(t, err, errors.ErrCodeDeployFailed)
}

func TestApproveUnknownID(t *testing.T) {
	dir := t.TempDir()
	cfg := writeConfig(t, dir, "")
	_, err := execute(t, "approve", "missing", "--yes", "--config", cfg)
	requireCode(t, err, errors.ErrCodeDeployRecordMissing)
}
