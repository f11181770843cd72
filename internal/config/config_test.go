package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Database.Driver)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, "degen-digest-data", cfg.Storage.Bucket)
	assert.Equal(t, "files", cfg.Pipeline.Mode)
	assert.Len(t, cfg.Pipeline.Sources, 6)
	assert.Equal(t, 30*time.Minute, cfg.Schedule.ParseMigrateInterval())
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
log:
  environment: development
  level: debug
database:
  driver: sqlite
  path: /tmp/test.db
storage:
  kind: local
  local_root: /srv/blobs
  retry:
    max_elapsed_time: 5s
pipeline:
  sources: [dexscreener]
  mode: latest
  download_workers: 2
schedule:
  migrate_interval: 10m
  digest_interval: bogus
server:
  port: 9090
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "development", cfg.Log.Environment)
	assert.Equal(t, "sqlite", cfg.Database.Driver)
	assert.Equal(t, "/tmp/test.db", cfg.Database.Path)
	assert.Contains(t, cfg.Database.DSN(), "/tmp/test.db?")
	assert.Equal(t, "local", cfg.Storage.Kind)
	assert.Equal(t, 5*time.Second, cfg.Storage.Retry.MaxElapsedTime)
	assert.Equal(t, []string{"dexscreener"}, cfg.Pipeline.Sources)
	assert.Equal(t, "latest", cfg.Pipeline.Mode)
	assert.Equal(t, 2, cfg.Pipeline.DownloadWorkers)
	assert.Equal(t, 16, cfg.Pipeline.BatchSize, "unset keys keep defaults")
	assert.Equal(t, 10*time.Minute, cfg.Schedule.ParseMigrateInterval())
	assert.Equal(t, 6*time.Hour, cfg.Schedule.ParseDigestInterval(), "invalid interval falls back")
	assert.Equal(t, 9090, cfg.Server.Port)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_HOST", "db.internal")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("DB_NAME", "farmchecker")
	t.Setenv("DB_USER", "etl")
	t.Setenv("DB_PASSWORD", "secret")
	t.Setenv("SLACK_WEBHOOK_URL", "https://hooks.slack.test/x")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "db.internal", cfg.Database.Host)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, "farmchecker", cfg.Database.Name)
	assert.Equal(t, "etl", cfg.Database.User)
	assert.Equal(t, "secret", cfg.Database.Password)
	assert.Equal(t, "host=db.internal port=6543 dbname=farmchecker user=etl password=secret sslmode=disable", cfg.Database.DSN())
	assert.True(t, cfg.Alerts.Slack.Enabled)
}

func TestLoadInvalidPort(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("DB_PORT", "fivefour")

	_, err := Load("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_PORT")
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  port: 8081\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("DB_NAME=from_dotenv\n"), 0o644))
	t.Setenv("DB_NAME", "")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from_dotenv", cfg.Database.Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
