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
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, "server:\n  port: 9090\n")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
	assert.Equal(t, "care.notifications", cfg.Redis.Channel)
	assert.Equal(t, 10*time.Minute, cfg.RateLimit.IdleTTL)
	assert.Equal(t, time.Second, cfg.Outbox.PollInterval)
}

func TestLoadFileValues(t *testing.T) {
	path := writeConfig(t, `
store:
  driver: memory
notification:
  admin_email: ops@example.com
  dispatcher: smtp
outbox:
  batch_size: 10
  poll_interval: 250ms
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, "ops@example.com", cfg.Notification.AdminEmail)
	assert.Equal(t, "smtp", cfg.Notification.Dispatcher)
	assert.Equal(t, 10, cfg.Outbox.BatchSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Outbox.PollInterval)
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := writeConfig(t, "database:\n  host: db.internal\n")
	t.Setenv("CARE_DATABASE_HOST", "db.override")
	t.Setenv("CARE_DATABASE_MAX_OPEN_CONNS", "7")
	t.Setenv("CARE_NOTIFICATION_ADMIN_EMAIL", "root@example.com")
	t.Setenv("CARE_RATE_LIMIT_IDLE_TTL", "5s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "db.override", cfg.Database.Host)
	assert.Equal(t, 7, cfg.Database.MaxOpenConns)
	assert.Equal(t, "root@example.com", cfg.Notification.AdminEmail)
	assert.Equal(t, 5*time.Second, cfg.RateLimit.IdleTTL)
}

func TestValidateRejectsUnknownDriver(t *testing.T) {
	path := writeConfig(t, "store:\n  driver: mongo\n")

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown store driver")
}

func TestLoadMissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yml"))
	assert.Error(t, err)
}

func TestDSN(t *testing.T) {
	c := DatabaseConfig{Host: "h", Port: 5432, User: "u", Password: "p", Name: "n", SSLMode: "disable"}
	assert.Equal(t, "host=h port=5432 user=u password=p dbname=n sslmode=disable", c.DSN())
}
