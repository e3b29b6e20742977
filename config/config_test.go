package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, "security:\n  jwt_secret: s3cret\n"))
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, []string{"127.0.0.1", "::1"}, cfg.Server.AdminIPs)
	assert.Equal(t, "sqlite", cfg.Database.Mode)
	assert.Equal(t, time.Hour, cfg.Database.MaxLife)
	assert.Equal(t, 10*time.Second, cfg.Battle.LockTTL)
	assert.Equal(t, 5*time.Second, cfg.Battle.LockWait)
	assert.Equal(t, 15*time.Second, cfg.Battle.CommitRetryInterval)
	assert.Equal(t, 3, cfg.Battle.MaxRoster)
	assert.Equal(t, 72*time.Hour, cfg.Security.JWTTTLH)
}

func TestLoadSample(t *testing.T) {
	cfg, err := Load("config.yaml")
	require.NoError(t, err)
	assert.True(t, cfg.Server.Debug)
	assert.Empty(t, cfg.Cache.RedisAddr)
}

func TestLoadOverrides(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
database:
  mode: postgres
  postgres_dsn: host=db
battle:
  max_roster: 6
  catalog_dir: /srv/catalog
security:
  jwt_secret: s3cret
`))
	require.NoError(t, err)
	assert.Equal(t, "postgres", cfg.Database.Mode)
	assert.Equal(t, "host=db", cfg.Database.PostgresDSN)
	assert.Equal(t, 6, cfg.Battle.MaxRoster)
	assert.Equal(t, "/srv/catalog", cfg.Battle.CatalogDir)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("BROTMON_SERVER_PORT", "9191")
	cfg, err := Load(writeConfig(t, "security:\n  jwt_secret: s3cret\n"))
	require.NoError(t, err)
	assert.Equal(t, 9191, cfg.Server.Port)
}

func TestLoadValidation(t *testing.T) {
	_, err := Load(writeConfig(t, "database:\n  mode: embedded_xml\nsecurity:\n  jwt_secret: x\n"))
	assert.ErrorContains(t, err, "database.mode")

	_, err = Load(writeConfig(t, "server:\n  port: 1\n"))
	assert.ErrorContains(t, err, "jwt_secret")

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
