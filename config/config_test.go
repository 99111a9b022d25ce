package config_test

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2thetop/scalar/config"
	"github.com/2thetop/scalar/errors"
)

// setRequiredEnv sets the minimum variables for a valid configuration and
// returns the enlistment root.
func setRequiredEnv(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	t.Setenv("SCALAR_ENLISTMENT_ROOT", root)
	t.Setenv("SCALAR_ORIGIN_URL", "https://dev.example.com/org/project/_git/repo")
	return root
}

func TestLoad_Defaults(t *testing.T) {
	root := setRequiredEnv(t)

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, root, cfg.EnlistmentRoot)
	assert.Empty(t, cfg.CacheServerURL)
	assert.False(t, cfg.Unattended)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
	assert.Equal(t, 30*time.Second, cfg.Timeout)

	assert.Equal(t, filepath.Join(root, ".git"), cfg.GitDir())
	assert.Equal(t, filepath.Join(root, ".scalar"), cfg.DotScalarPath())
	assert.Equal(t, filepath.Join(root, ".scalar", "maintenance.sock"), cfg.IPCSocketPath())

	policy := cfg.RetryPolicy()
	assert.Equal(t, 6, policy.MaxAttempts)
	assert.Equal(t, 250*time.Millisecond, policy.MinWait)
	assert.Equal(t, 10*time.Second, policy.MaxWait)

	mc := cfg.MaintenanceConfig()
	assert.Equal(t, 4000, mc.FetchBatchSize)
	assert.Equal(t, 1000, mc.FetchMaxCommits)
	assert.Equal(t, "2g", mc.PackfileBatchSize)
	assert.Equal(t, 50000, mc.LooseObjectsBatchSize)
	assert.Equal(t, 24*time.Hour, mc.LooseObjectsMinInterval)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SCALAR_CACHE_SERVER_URL", "https://cache.example.com/repo")
	t.Setenv("SCALAR_UNATTENDED", "true")
	t.Setenv("SCALAR_LOG_LEVEL", "debug")
	t.Setenv("SCALAR_SOCKET_PATH", "/tmp/custom.sock")
	t.Setenv("SCALAR_RETRY_MAX_ATTEMPTS", "3")
	t.Setenv("SCALAR_RETRY_MIN_WAIT", "1s")
	t.Setenv("SCALAR_RETRY_MAX_WAIT", "5s")
	t.Setenv("SCALAR_FETCH_BATCH_SIZE", "100")
	t.Setenv("SCALAR_PACKFILE_BATCH_SIZE", "512m")

	cfg, err := config.Load()
	require.NoError(t, err)

	assert.Equal(t, "https://cache.example.com/repo", cfg.CacheServerURL)
	assert.True(t, cfg.Unattended)
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	assert.Equal(t, "/tmp/custom.sock", cfg.IPCSocketPath())
	assert.Equal(t, 3, cfg.RetryPolicy().MaxAttempts)
	assert.Equal(t, time.Second, cfg.RetryPolicy().MinWait)
	assert.Equal(t, 100, cfg.MaintenanceConfig().FetchBatchSize)
	assert.Equal(t, "512m", cfg.MaintenanceConfig().PackfileBatchSize)
}

func TestLoad_LegacyUnattendedSwitch(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("Scalar_UNATTENDED", "1")

	cfg, err := config.Load()
	require.NoError(t, err)
	assert.True(t, cfg.Unattended)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{name: "missing origin", env: map[string]string{"SCALAR_ORIGIN_URL": ""}},
		{name: "origin not a url", env: map[string]string{"SCALAR_ORIGIN_URL": "not a url"}},
		{name: "root does not exist", env: map[string]string{"SCALAR_ENLISTMENT_ROOT": "/definitely/not/here"}},
		{name: "bad cache server", env: map[string]string{"SCALAR_CACHE_SERVER_URL": "::"}},
		{name: "bad log level", env: map[string]string{"SCALAR_LOG_LEVEL": "verbose"}},
		{name: "zero attempts", env: map[string]string{"SCALAR_RETRY_MAX_ATTEMPTS": "0"}},
		{name: "max wait below min", env: map[string]string{"SCALAR_RETRY_MIN_WAIT": "10s", "SCALAR_RETRY_MAX_WAIT": "1s"}},
		{name: "unparsable duration", env: map[string]string{"SCALAR_HTTP_TIMEOUT": "soon"}},
		{name: "unparsable int", env: map[string]string{"SCALAR_FETCH_BATCH_SIZE": "lots"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequiredEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}

			_, err := config.Load()
			require.Error(t, err)
			assert.Equal(t, errors.CodeInvalidConfig, errors.GetCode(err))
		})
	}
}

func TestSecretString(t *testing.T) {
	s := config.SecretString("hunter2")

	assert.Equal(t, "***REDACTED***", s.String())
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%s", s))
	assert.Equal(t, "***REDACTED***", fmt.Sprintf("%v", s))
	assert.Equal(t, "hunter2", s.Unmask())

	data, err := json.Marshal(struct {
		Token config.SecretString `json:"token"`
	}{Token: s})
	require.NoError(t, err)
	assert.JSONEq(t, `{"token":"***REDACTED***"}`, string(data))

	assert.Empty(t, config.SecretString("").String())
}
