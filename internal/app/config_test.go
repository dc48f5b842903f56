package app

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func minimalConfig() *Config {
	var cfg Config
	cfg.Telegram.Token = "123:abc"
	return &cfg
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := minimalConfig()
	require.NoError(t, cfg.Normalize())

	assert.Equal(t, 22, cfg.SSH.DefaultPort)
	assert.Equal(t, 3, cfg.Limits.MaxConnectionsPerUser)
	assert.Equal(t, StoreFile, cfg.Store.Backend)
	assert.Equal(t, "data/sessions.json", cfg.Store.Path)
	assert.Equal(t, "@every 1m", cfg.Store.SweepSchedule)
	assert.Nil(t, cfg.DatabaseConfig())

	ec := cfg.EngineConfig()
	assert.Equal(t, 30*time.Minute, ec.IdleTimeout)
	assert.Equal(t, 30*time.Second, ec.ConnectTimeout)
	assert.Equal(t, 3500, ec.PageSize)
	assert.Equal(t, int64(1<<20), ec.MaxEditSize)
}

func TestNormalizeRejectsBadValues(t *testing.T) {
	cases := map[string]func(*Config){
		"port":     func(c *Config) { c.SSH.DefaultPort = 70000 },
		"page":     func(c *Config) { c.Limits.PageSize = 5000 },
		"backend":  func(c *Config) { c.Store.Backend = "redis" },
		"schedule": func(c *Config) { c.Store.SweepSchedule = "every minute" },
		"database": func(c *Config) { c.Store.Backend = StorePostgres },
		"token":    func(c *Config) { c.Telegram.Token = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := minimalConfig()
			mutate(cfg)
			assert.Error(t, cfg.Normalize())
		})
	}
}

func TestNormalizePostgres(t *testing.T) {
	cfg := minimalConfig()
	cfg.Store.Backend = " Postgres "
	cfg.Database.Host = "db"
	cfg.Database.Name = "sshbot"
	require.NoError(t, cfg.Normalize())

	db := cfg.DatabaseConfig()
	require.NotNil(t, db)
	assert.Equal(t, "5432", db.Port)
	assert.Equal(t, "migrations", db.MigrationsDir)
}

func TestLoadConfigYAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	yaml := `
telegram:
  token: "1:yaml"
access:
  admin_ids: [10]
ssh:
  connect_timeout_seconds: 5
limits:
  session_timeout_minutes: 15
store:
  path: /tmp/sessions.json
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))
	t.Setenv("MAX_OUTPUT_LENGTH", "1234")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "1:yaml", cfg.Telegram.Token)
	assert.True(t, cfg.Access.IsAdmin(10))
	assert.Equal(t, 5, cfg.SSH.ConnectTimeoutSeconds)
	assert.Equal(t, 15, cfg.Limits.SessionTimeoutMinutes)
	assert.Equal(t, 1234, cfg.Limits.MaxOutputLength)
	assert.Equal(t, "/tmp/sessions.json", cfg.Store.Path)
	assert.Same(t, &cfg.Config, cfg.CoreConfig())
}
