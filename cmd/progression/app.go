package main

import (
	"context"
	"fmt"

	"github.com/aimd54/shelf-progression/internal/cache"
	"github.com/aimd54/shelf-progression/internal/clock"
	"github.com/aimd54/shelf-progression/internal/config"
	"github.com/aimd54/shelf-progression/internal/notify"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/internal/service/achievements"
	"github.com/aimd54/shelf-progression/internal/service/leaderboard"
	"github.com/aimd54/shelf-progression/internal/service/leveling"
	"github.com/aimd54/shelf-progression/internal/service/progression"
	"github.com/aimd54/shelf-progression/internal/service/quests"
	"github.com/aimd54/shelf-progression/internal/service/season"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// app holds every long-lived component of the process.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *repository.DB
	cache *cache.Cache
	store *repository.Store
	deps  progression.Services
	svc   *progression.Service
}

// newApp connects to the database, and to Redis when a host is configured,
// then composes the services.
func newApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (*app, error) {
	db, err := repository.Open(&cfg.Database, log)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, log: log, db: db, store: repository.NewStore(db)}

	var rankingCache leaderboard.Cache
	if cfg.Database.Redis.Host != "" {
		c, err := cache.New(ctx, &cfg.Database.Redis)
		if err != nil {
			_ = db.Close()
			return nil, err
		}
		a.cache = c
		rankingCache = c
		log.Info().Str("addr", cfg.Database.Redis.Addr()).Msg("Connected to Redis")
	} else {
		log.Warn().Msg("Redis not configured, leaderboard rankings are computed on every request")
	}

	if err := a.compose(rankingCache); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) compose(rankingCache leaderboard.Cache) error {
	clk := clock.Real()
	cfg := a.cfg

	board := leaderboard.NewService(a.store, rankingCache, cfg.Leaderboard.CacheTTLDuration(), a.log.Component("leaderboard"))

	announcer := notify.NewClient(&cfg.Notifications, nil, a.log.Component("notify"))
	seasons := season.NewService(a.store, board, announcer, clk, season.Options{
		Rewards: season.Rewards{
			First:  cfg.Season.Rewards.First,
			Second: cfg.Season.Rewards.Second,
			Third:  cfg.Season.Rewards.Third,
			Top10:  cfg.Season.Rewards.Top10,
			Top100: cfg.Season.Rewards.Top100,
		},
		RewardDepth: cfg.Season.RewardDepth,
	}, a.log.Component("season"))

	xp, err := leveling.NewService(a.store, leveling.DefaultTable(), board, seasons, clk, a.log.Component("leveling"))
	if err != nil {
		return fmt.Errorf("invalid level table: %w", err)
	}

	catalog, err := quests.NewCatalog(a.store, cfg.Quests.CacheSize, a.log.Component("quests"))
	if err != nil {
		return err
	}
	engine := quests.NewEngine(a.store, catalog, quests.NewValidator(), xp, seasons, clk, nil, quests.Options{
		DailyPoolSize:      cfg.Quests.DailyPoolSize,
		WeeklyPoolSize:     cfg.Quests.WeeklyPoolSize,
		DailyRecencyDays:   cfg.Quests.DailyRecencyDays,
		WeeklyRecencyDays:  cfg.Quests.WeeklyRecencyDays,
		SeasonCoinCap:      cfg.Quests.SeasonCoinCap,
		RefreshConcurrency: cfg.Quests.RefreshConcurrency,
	}, a.log.Component("quests"))

	a.deps = progression.Services{
		Leveling:     xp,
		Seasons:      seasons,
		Leaderboard:  board,
		Catalog:      catalog,
		Quests:       engine,
		Achievements: achievements.NewService(a.store, xp, seasons, clk, a.log.Component("achievements")),
	}
	a.svc = progression.NewService(a.store, a.deps, cfg.Leveling.CheckInXP, clk, a.log.Component("progression"))
	return nil
}

// migrate brings the schema up to date for the configured driver.
func (a *app) migrate() error {
	if a.cfg.Database.Driver == "sqlite" {
		return a.db.AutoMigrate()
	}
	return a.db.RunMigrations(a.log)
}

// seedQuests loads the configured quest file, if any.
func (a *app) seedQuests(ctx context.Context, path string) (int, error) {
	if path == "" {
		return 0, nil
	}
	return a.deps.Catalog.SeedFile(ctx, path)
}

// Close releases the database and cache connections.
func (a *app) Close() {
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			a.log.Warn().Err(err).Msg("Failed to close Redis connection")
		}
	}
	if err := a.db.Close(); err != nil {
		a.log.Warn().Err(err).Msg("Failed to close database connection")
	}
}
