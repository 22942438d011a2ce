// Package config handles application configuration loading and validation using Viper.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Logging       LoggingConfig       `mapstructure:"logging"`
	Scheduler     SchedulerConfig     `mapstructure:"scheduler"`
	Leveling      LevelingConfig      `mapstructure:"leveling"`
	Quests        QuestsConfig        `mapstructure:"quests"`
	Season        SeasonConfig        `mapstructure:"season"`
	Leaderboard   LeaderboardConfig   `mapstructure:"leaderboard"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Metrics       MetricsConfig       `mapstructure:"metrics"`
}

// ServerConfig contains HTTP server configuration.
type ServerConfig struct {
	Port        int    `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

// DatabaseConfig contains database connection settings.
// Driver selects "postgres" (default) or "sqlite" for local development.
type DatabaseConfig struct {
	Driver   string         `mapstructure:"driver"`
	Postgres PostgresConfig `mapstructure:"postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

// PostgresConfig contains PostgreSQL database connection and pool settings.
type PostgresConfig struct {
	Host            string `mapstructure:"host"`
	Port            int    `mapstructure:"port"`
	Database        string `mapstructure:"database"`
	User            string `mapstructure:"user"`
	Password        string `mapstructure:"password"`
	SSLMode         string `mapstructure:"ssl_mode"`
	MaxOpenConns    int    `mapstructure:"max_open_conns"`
	MaxIdleConns    int    `mapstructure:"max_idle_conns"`
	ConnMaxLifetime int    `mapstructure:"conn_max_lifetime"`
}

// SQLiteConfig contains the sqlite file used when Driver is "sqlite".
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig contains Redis cache connection and pool settings.
type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

// Addr returns the host:port pair for the Redis client.
func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// LoggingConfig contains application logging settings.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	Output string `mapstructure:"output"`
}

// SchedulerConfig contains cron specifications for the background jobs.
type SchedulerConfig struct {
	Enabled            bool   `mapstructure:"enabled"`
	DailyQuestsSpec    string `mapstructure:"daily_quests"`
	WeeklyQuestsSpec   string `mapstructure:"weekly_quests"`
	SeasonRotationSpec string `mapstructure:"season_rotation"`
	Timezone           string `mapstructure:"timezone"`
}

// LevelingConfig contains XP grant settings.
type LevelingConfig struct {
	CheckInXP int64 `mapstructure:"check_in_xp"`
}

// QuestsConfig contains quest assignment settings.
type QuestsConfig struct {
	DailyPoolSize      int    `mapstructure:"daily_pool_size"`
	WeeklyPoolSize     int    `mapstructure:"weekly_pool_size"`
	DailyRecencyDays   int    `mapstructure:"daily_recency_days"`
	WeeklyRecencyDays  int    `mapstructure:"weekly_recency_days"`
	SeasonCoinCap      int64  `mapstructure:"season_coin_cap"`
	RefreshConcurrency int    `mapstructure:"refresh_concurrency"`
	CacheSize          int    `mapstructure:"cache_size"`
	SeedFile           string `mapstructure:"seed_file"`
}

// SeasonConfig contains end-of-season payout settings.
type SeasonConfig struct {
	RewardDepth int          `mapstructure:"reward_depth"`
	Rewards     RewardsTable `mapstructure:"rewards"`
}

// RewardsTable holds the coins paid per rank bucket.
type RewardsTable struct {
	First  int64 `mapstructure:"first"`
	Second int64 `mapstructure:"second"`
	Third  int64 `mapstructure:"third"`
	Top10  int64 `mapstructure:"top10"`
	Top100 int64 `mapstructure:"top100"`
}

// LeaderboardConfig contains ranking cache settings.
type LeaderboardConfig struct {
	CacheTTL int `mapstructure:"cache_ttl"` // seconds
}

// CacheTTLDuration returns the cache TTL as a duration.
func (c LeaderboardConfig) CacheTTLDuration() time.Duration {
	return time.Duration(c.CacheTTL) * time.Second
}

// NotificationsConfig contains season announcement webhook settings.
type NotificationsConfig struct {
	WebhookURL string `mapstructure:"webhook_url"`
	Channel    string `mapstructure:"channel"`
	Enabled    bool   `mapstructure:"enabled"`
}

// MetricsConfig contains metrics exporter settings.
type MetricsConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
}

// PrometheusConfig contains Prometheus metrics exporter settings.
type PrometheusConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.ssl_mode", "disable")
	v.SetDefault("database.postgres.max_open_conns", 25)
	v.SetDefault("database.postgres.max_idle_conns", 5)
	v.SetDefault("database.postgres.conn_max_lifetime", 300)
	v.SetDefault("database.sqlite.path", "progression.db")
	v.SetDefault("database.redis.port", 6379)
	v.SetDefault("database.redis.pool_size", 10)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")

	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.daily_quests", "0 0 * * *")
	v.SetDefault("scheduler.weekly_quests", "0 0 * * 1")
	v.SetDefault("scheduler.season_rotation", "5 0 * * *")
	v.SetDefault("scheduler.timezone", "UTC")

	v.SetDefault("leveling.check_in_xp", 10)

	v.SetDefault("quests.daily_pool_size", 5)
	v.SetDefault("quests.weekly_pool_size", 10)
	v.SetDefault("quests.daily_recency_days", 3)
	v.SetDefault("quests.weekly_recency_days", 14)
	v.SetDefault("quests.season_coin_cap", 1000)
	v.SetDefault("quests.refresh_concurrency", 8)
	v.SetDefault("quests.cache_size", 256)

	v.SetDefault("season.reward_depth", 100)
	v.SetDefault("season.rewards.first", 1000)
	v.SetDefault("season.rewards.second", 750)
	v.SetDefault("season.rewards.third", 500)
	v.SetDefault("season.rewards.top10", 250)
	v.SetDefault("season.rewards.top100", 100)

	v.SetDefault("leaderboard.cache_ttl", 60)

	v.SetDefault("metrics.prometheus.enabled", true)
	v.SetDefault("metrics.prometheus.path", "/metrics")
}

// Load reads configuration from file and environment variables.
// A missing config file is tolerated when configPath is empty; defaults and
// the environment still apply.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/shelf-progression/")
	}

	// Server configuration
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.environment", "SERVER_ENVIRONMENT")

	// Database configuration
	_ = v.BindEnv("database.driver", "DATABASE_DRIVER")
	_ = v.BindEnv("database.sqlite.path", "SQLITE_PATH")
	_ = v.BindEnv("database.postgres.host", "POSTGRES_HOST")
	_ = v.BindEnv("database.postgres.port", "POSTGRES_PORT")
	_ = v.BindEnv("database.postgres.database", "POSTGRES_DB")
	_ = v.BindEnv("database.postgres.user", "POSTGRES_USER")
	_ = v.BindEnv("database.postgres.password", "POSTGRES_PASSWORD")
	_ = v.BindEnv("database.postgres.ssl_mode", "POSTGRES_SSL_MODE")
	_ = v.BindEnv("database.postgres.max_open_conns", "POSTGRES_MAX_OPEN_CONNS")
	_ = v.BindEnv("database.postgres.max_idle_conns", "POSTGRES_MAX_IDLE_CONNS")
	_ = v.BindEnv("database.postgres.conn_max_lifetime", "POSTGRES_CONN_MAX_LIFETIME")

	// Redis configuration
	_ = v.BindEnv("database.redis.host", "REDIS_HOST")
	_ = v.BindEnv("database.redis.port", "REDIS_PORT")
	_ = v.BindEnv("database.redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("database.redis.db", "REDIS_DB")
	_ = v.BindEnv("database.redis.pool_size", "REDIS_POOL_SIZE")

	// Logging configuration
	_ = v.BindEnv("logging.level", "LOG_LEVEL")
	_ = v.BindEnv("logging.format", "LOG_FORMAT")
	_ = v.BindEnv("logging.output", "LOG_OUTPUT")

	// Scheduler configuration
	_ = v.BindEnv("scheduler.enabled", "SCHEDULER_ENABLED")
	_ = v.BindEnv("scheduler.timezone", "SCHEDULER_TIMEZONE")

	// Notifications configuration
	_ = v.BindEnv("notifications.webhook_url", "NOTIFICATIONS_WEBHOOK_URL")
	_ = v.BindEnv("notifications.channel", "NOTIFICATIONS_CHANNEL")
	_ = v.BindEnv("notifications.enabled", "NOTIFICATIONS_ENABLED")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configPath != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Postgres.Host == "" {
			return fmt.Errorf("database.postgres.host is required")
		}
		if c.Database.Postgres.Database == "" {
			return fmt.Errorf("database.postgres.database is required")
		}
		if c.Database.Postgres.User == "" {
			return fmt.Errorf("database.postgres.user is required")
		}
	case "sqlite":
		if c.Database.SQLite.Path == "" {
			return fmt.Errorf("database.sqlite.path is required")
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}
	if c.Quests.DailyPoolSize <= 0 || c.Quests.WeeklyPoolSize <= 0 {
		return fmt.Errorf("quest pool sizes must be positive")
	}
	if c.Quests.RefreshConcurrency <= 0 {
		return fmt.Errorf("quests.refresh_concurrency must be positive")
	}
	if c.Season.RewardDepth <= 0 {
		return fmt.Errorf("season.reward_depth must be positive")
	}
	if c.Notifications.Enabled && c.Notifications.WebhookURL == "" {
		return fmt.Errorf("notifications.webhook_url is required when notifications are enabled")
	}
	return nil
}

// GetLocation returns the timezone location.
func (c *SchedulerConfig) GetLocation() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
