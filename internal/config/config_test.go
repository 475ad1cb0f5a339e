package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/felixgeelhaar/autoheal/internal/errors"
)

func writeFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "autoheal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	require.Len(t, cfg.Deploy.Stages, 3)
	assert.Equal(t, 5.0, cfg.Deploy.Stages[0].Percentage)
	assert.Equal(t, 100.0, cfg.Deploy.Stages[2].Percentage)
}

func TestLoadOverlaysFile(t *testing.T) {
	path := writeFile(t, `
platform: mail
oracle:
  name: openai
  model: gpt-4o-mini
deploy:
  auto_deploy_threshold: 0.9
  stages:
    - percentage: 10
      soak_duration: 1m
      rollback_threshold: 0.1
    - percentage: 100
      soak_duration: 2m
      rollback_threshold: 0.05
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "mail", cfg.Platform)
	assert.Equal(t, "openai", cfg.Oracle.Name)
	assert.Equal(t, "gpt-4o-mini", cfg.Oracle.Model)
	assert.Equal(t, 0.9, cfg.Deploy.AutoDeployThreshold)
	require.Len(t, cfg.Deploy.Stages, 2, "file stages replace the defaults")
	assert.Equal(t, time.Minute, cfg.Deploy.Stages[0].SoakDuration)

	// untouched sections keep their defaults
	assert.Equal(t, ".autoheal/autoheal.db", cfg.Store.Path)
	assert.Equal(t, 2*time.Hour, cfg.Deploy.MaxRolloutDuration)
}

func TestLoadEnvOverrides(t *testing.T) {
	path := writeFile(t, "platform: mail\n")
	t.Setenv("AUTOHEAL_PLATFORM", "chat")
	t.Setenv("AUTOHEAL_ORACLE__MAX_TOKENS", "2048")
	t.Setenv("AUTOHEAL_MONITOR__URL", "http://monitor.local")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "chat", cfg.Platform)
	assert.Equal(t, 2048, cfg.Oracle.MaxTokens)
	assert.Equal(t, "http://monitor.local", cfg.Monitor.URL)
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
	code, ok := errors.Code(err)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeConfigNotFound, code)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown oracle", "oracle:\n  name: llama\n"},
		{"threshold above one", "deploy:\n  auto_deploy_threshold: 1.5\n"},
		{"decreasing stages", `
deploy:
  stages:
    - percentage: 50
      rollback_threshold: 0.1
    - percentage: 25
      rollback_threshold: 0.1
`},
		{"empty platform", "platform: \"\"\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeFile(t, tt.yaml))
			require.Error(t, err)
			code, ok := errors.Code(err)
			require.True(t, ok)
			assert.Equal(t, errors.ErrCodeConfigInvalid, code)
		})
	}
}

func TestWriteDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "autoheal.yaml")
	require.NoError(t, WriteDefault(path, false))
	require.Error(t, WriteDefault(path, false), "existing file is not overwritten")
	require.NoError(t, WriteDefault(path, true))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, Default().Deploy, cfg.Deploy)
	assert.Equal(t, Default().Tests.Command, cfg.Tests.Command)
}
