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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsApplied(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  sqlite:
    path: /tmp/progression.db
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 5, cfg.Quests.DailyPoolSize)
	assert.Equal(t, 10, cfg.Quests.WeeklyPoolSize)
	assert.Equal(t, 3, cfg.Quests.DailyRecencyDays)
	assert.Equal(t, 14, cfg.Quests.WeeklyRecencyDays)
	assert.Equal(t, int64(1000), cfg.Quests.SeasonCoinCap)
	assert.Equal(t, int64(10), cfg.Leveling.CheckInXP)
	assert.Equal(t, 100, cfg.Season.RewardDepth)
	assert.Equal(t, int64(1000), cfg.Season.Rewards.First)
	assert.Equal(t, int64(100), cfg.Season.Rewards.Top100)
	assert.Equal(t, time.Minute, cfg.Leaderboard.CacheTTLDuration())
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: postgres
  postgres:
    host: db.internal
    database: shelf
    user: shelf
`)
	t.Setenv("POSTGRES_HOST", "override.internal")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "override.internal", cfg.Database.Postgres.Host)
	assert.Equal(t, "debug", cfg.Logging.Level)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		return Config{
			Database: DatabaseConfig{Driver: "sqlite", SQLite: SQLiteConfig{Path: "x.db"}},
			Quests:   QuestsConfig{DailyPoolSize: 5, WeeklyPoolSize: 10, RefreshConcurrency: 4},
			Season:   SeasonConfig{RewardDepth: 100},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "valid", mutate: func(*Config) {}},
		{name: "unknown driver", mutate: func(c *Config) { c.Database.Driver = "oracle" }, wantErr: true},
		{name: "postgres without host", mutate: func(c *Config) { c.Database.Driver = "postgres" }, wantErr: true},
		{name: "zero pool", mutate: func(c *Config) { c.Quests.DailyPoolSize = 0 }, wantErr: true},
		{name: "zero concurrency", mutate: func(c *Config) { c.Quests.RefreshConcurrency = 0 }, wantErr: true},
		{name: "zero reward depth", mutate: func(c *Config) { c.Season.RewardDepth = 0 }, wantErr: true},
		{name: "webhook enabled without url", mutate: func(c *Config) { c.Notifications.Enabled = true }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
