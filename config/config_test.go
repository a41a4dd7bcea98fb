package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// inTempDir keeps a developer's .env out of the test.
func inTempDir(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
	return dir
}

func TestLoad_Defaults(t *testing.T) {
	inTempDir(t)
	t.Setenv("PORT", "")

	c, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5000, c.HTTP.Port)
	assert.Equal(t, ":5000", c.Addr())
	assert.Equal(t, []string{"*"}, c.HTTP.AllowedOrigins)
	assert.Equal(t, 10*time.Second, c.HTTP.ShutdownTimeout)
	assert.Equal(t, DriverSQLite, c.Store.Driver)
	assert.Equal(t, "./data/materials.db", c.SQLite.Path)
	assert.True(t, c.Metrics.Enabled)
	assert.Equal(t, time.Hour, c.Audit.Interval)
	assert.False(t, c.IsDev())
}

func TestLoad_EnvironmentOverrides(t *testing.T) {
	inTempDir(t)
	t.Setenv("APP_APP_ENV", "dev")
	t.Setenv("APP_STORE_DRIVER", "postgres")
	t.Setenv("APP_POSTGRES_DSN", "postgres://ledger@localhost/ledger")
	t.Setenv("APP_HTTP_SHUTDOWN_TIMEOUT", "3s")
	t.Setenv("APP_METRICS_ENABLED", "false")
	t.Setenv("PORT", "8081")

	c, err := Load("")
	require.NoError(t, err)

	assert.True(t, c.IsDev())
	assert.Equal(t, DriverPostgres, c.Store.Driver)
	assert.Equal(t, "postgres://ledger@localhost/ledger", c.Postgres.DSN)
	assert.Equal(t, 3*time.Second, c.HTTP.ShutdownTimeout)
	assert.False(t, c.Metrics.Enabled)
	assert.Equal(t, 8081, c.HTTP.Port)
}

func TestLoad_PrefixedPortWinsOverPORT(t *testing.T) {
	inTempDir(t)
	t.Setenv("APP_HTTP_PORT", "9000")
	t.Setenv("PORT", "8081")

	c, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 9000, c.HTTP.Port)
}

func TestLoad_YAMLFileAndDotEnv(t *testing.T) {
	dir := inTempDir(t)
	t.Setenv("PORT", "")

	yaml := []byte("store:\n  driver: memory\nhttp:\n  port: 7070\n  allowed_origins:\n    - https://site.example\n")
	path := filepath.Join(dir, "materials.yaml")
	require.NoError(t, os.WriteFile(path, yaml, 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("APP_LOG_LEVEL=warn\n"), 0o600))
	t.Cleanup(func() { os.Unsetenv("APP_LOG_LEVEL") })

	c, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, DriverMemory, c.Store.Driver)
	assert.Equal(t, 7070, c.HTTP.Port)
	assert.Equal(t, []string{"https://site.example"}, c.HTTP.AllowedOrigins)
	assert.Equal(t, "warn", c.Log.Level)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		msg  string
	}{
		{"unknown driver", map[string]string{"APP_STORE_DRIVER": "mongo"}, "unknown store.driver"},
		{"postgres without dsn", map[string]string{"APP_STORE_DRIVER": "postgres"}, "postgres.dsn"},
		{"port out of range", map[string]string{"APP_HTTP_PORT": "70000"}, "out of range"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inTempDir(t)
			t.Setenv("PORT", "")
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load("")
			assert.ErrorContains(t, err, tt.msg)
		})
	}
}

func TestLoad_MissingConfigFile(t *testing.T) {
	inTempDir(t)
	_, err := Load("does-not-exist.yaml")
	assert.Error(t, err)
}

// =============================================================================
// LOGGER
// =============================================================================

func TestNewLogger_Levels(t *testing.T) {
	var c Config
	assert.Equal(t, logrus.InfoLevel, newLogger(c, &bytes.Buffer{}).GetLevel())

	c.App.Env = "dev"
	assert.Equal(t, logrus.DebugLevel, newLogger(c, &bytes.Buffer{}).GetLevel())

	c.Log.Level = "error"
	assert.Equal(t, logrus.ErrorLevel, newLogger(c, &bytes.Buffer{}).GetLevel())
}

func TestLogError_WritesJSONFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(Config{}, &buf)

	LogError(logger, "api", "withdraw", map[string]int{"materialId": 3}, errors.New("database is locked"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "error", line["level"])
	assert.Equal(t, "database is locked", line["msg"])
	assert.Equal(t, "api", line["module"])
	assert.Equal(t, "withdraw", line["funcName"])
}
