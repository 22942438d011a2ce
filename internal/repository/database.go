// Package repository provides data access layer using GORM for database operations.
package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/aimd54/shelf-progression/internal/config"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// DB holds the database connection.
type DB struct {
	*gorm.DB
}

func gormConfig(log *logger.Logger) *gorm.Config {
	var gormLogLevel gormlogger.LogLevel
	switch log.Level() {
	case zerolog.DebugLevel, zerolog.TraceLevel:
		gormLogLevel = gormlogger.Info
	case zerolog.Disabled:
		gormLogLevel = gormlogger.Silent
	default:
		gormLogLevel = gormlogger.Warn
	}

	return &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormLogLevel),
		TranslateError: true,
	}
}

// NewDB creates a new PostgreSQL connection.
func NewDB(cfg *config.PostgresConfig, log *logger.Logger) (*DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", cfg.Host).
		Int("port", cfg.Port).
		Str("database", cfg.Database).
		Msg("Connected to PostgreSQL")

	return &DB{db}, nil
}

// NewSQLiteDB opens a sqlite database. SQLite serializes writers, so the pool
// is pinned to a single connection; callers must not issue queries outside a
// transaction while holding one.
func NewSQLiteDB(dsn string, log *logger.Logger) (*DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), gormConfig(log))
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.Exec("PRAGMA foreign_keys = ON").Error; err != nil {
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	log.Info().Str("dsn", dsn).Msg("Opened SQLite database")

	return &DB{db}, nil
}

// Open connects to the database selected by cfg.Driver.
func Open(cfg *config.DatabaseConfig, log *logger.Logger) (*DB, error) {
	if cfg.Driver == "sqlite" {
		return NewSQLiteDB(cfg.SQLite.Path, log)
	}
	return NewDB(&cfg.Postgres, log)
}

// Models lists every table managed by the engine, in dependency order.
func Models() []any {
	return []any{
		&models.User{},
		&models.UserBook{},
		&models.GroupMembership{},
		&models.CheckIn{},
		&models.ProgressionRecord{},
		&models.Season{},
		&models.SeasonReward{},
		&models.QuestDefinition{},
		&models.UserQuestAssignment{},
		&models.Badge{},
		&models.UserBadge{},
		&models.Achievement{},
		&models.UserAchievementProgress{},
		&models.LeaderboardEntry{},
	}
}

// AutoMigrate creates or updates all tables. Used for sqlite; PostgreSQL
// deployments run the versioned migrations instead.
func (db *DB) AutoMigrate() error {
	return db.DB.AutoMigrate(Models()...)
}

// Close closes the database connection.
func (db *DB) Close() error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Health checks if the database is healthy.
func (db *DB) Health(ctx context.Context) error {
	sqlDB, err := db.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
