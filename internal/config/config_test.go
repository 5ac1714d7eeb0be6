package config

import (
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setRequiredEnv(t *testing.T) {
	t.Helper()
	t.Setenv("SNOWFLAKE_ACCOUNT", "myorg-myaccount")
	t.Setenv("SNOWFLAKE_USER", "SENTRY")
	t.Setenv("SNOWFLAKE_PASSWORD", "hunter2")
}

func TestLoad_Valid(t *testing.T) {
	setRequiredEnv(t)

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "myorg-myaccount", cfg.Account)
	assert.Equal(t, "SENTRY", cfg.User)
	assert.Equal(t, 1000, cfg.MaxRows)
	assert.Equal(t, 60*time.Second, cfg.QueryTimeout)
}

func TestLoad_MissingAccount(t *testing.T) {
	t.Setenv("SNOWFLAKE_USER", "SENTRY")
	t.Setenv("SNOWFLAKE_PASSWORD", "hunter2")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNOWFLAKE_ACCOUNT")
}

func TestLoad_MissingPassword(t *testing.T) {
	t.Setenv("SNOWFLAKE_ACCOUNT", "myorg-myaccount")
	t.Setenv("SNOWFLAKE_USER", "SENTRY")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SNOWFLAKE_PASSWORD")
}

func TestLoad_EnvVars(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SNOWFLAKE_ROLE", "SECURITYADMIN")
	t.Setenv("SNOWFLAKE_WAREHOUSE", "AUDIT_WH")
	t.Setenv("MAX_ROWS", "500")
	t.Setenv("QUERY_TIMEOUT", "30s")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("CHECKS_FILE", "/tmp/checks.yaml")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)

	assert.Equal(t, "SECURITYADMIN", cfg.Role)
	assert.Equal(t, "AUDIT_WH", cfg.Warehouse)
	assert.Equal(t, 500, cfg.MaxRows)
	assert.Equal(t, 30*time.Second, cfg.QueryTimeout)
	assert.Equal(t, slog.LevelDebug, cfg.LogLevel)
	assert.Equal(t, "/tmp/checks.yaml", cfg.ChecksFile)
}

func TestLoad_Overrides(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("SNOWFLAKE_ROLE", "SECURITYADMIN")

	role := "ACCOUNTADMIN"
	maxRows := 50
	timeout := 5 * time.Second
	cfg, err := Load(Overrides{
		Role:         &role,
		MaxRows:      &maxRows,
		QueryTimeout: &timeout,
		AuditLog:     "/tmp/audit.jsonl",
	})
	require.NoError(t, err)

	assert.Equal(t, "ACCOUNTADMIN", cfg.Role, "flag overrides env")
	assert.Equal(t, 50, cfg.MaxRows)
	assert.Equal(t, 5*time.Second, cfg.QueryTimeout)
	assert.Equal(t, "/tmp/audit.jsonl", cfg.AuditLog)
}

func TestLoad_InvalidMaxRows(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("MAX_ROWS", "-1")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "MAX_ROWS")
}

func TestLoad_InvalidQueryTimeout(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("QUERY_TIMEOUT", "not-a-duration")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "QUERY_TIMEOUT")
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LOG_LEVEL")
}

func TestLoad_InvalidOverrideMaxRows(t *testing.T) {
	setRequiredEnv(t)

	bad := 0
	_, err := Load(Overrides{MaxRows: &bad})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--max-rows")
}

func TestLoad_OTelEnabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OTEL_ENABLED", "true")

	cfg, err := Load(Overrides{})
	require.NoError(t, err)
	assert.True(t, cfg.OTelEnabled)
}

func TestLoad_InvalidOTelEnabled(t *testing.T) {
	setRequiredEnv(t)
	t.Setenv("OTEL_ENABLED", "maybe")

	_, err := Load(Overrides{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "OTEL_ENABLED")
}
