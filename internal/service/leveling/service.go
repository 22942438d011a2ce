// Package leveling converts XP grants into level, season XP and coin changes.
package leveling

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/clock"
	"github.com/aimd54/shelf-progression/internal/metrics"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// Ledger mirrors XP into the season score ledger.
type Ledger interface {
	AddPoints(ctx context.Context, tx *repository.Store, userID, seasonID uint, amount int64, at time.Time) error
}

// SeasonProvider resolves the season XP is credited to.
type SeasonProvider interface {
	GetCurrentSeason(ctx context.Context) (*models.Season, error)
}

// XPResult describes the outcome of one XP grant.
type XPResult struct {
	Level        int   `json:"level"`
	PreviousXP   int64 `json:"previous_xp"`
	CurrentXP    int64 `json:"current_xp"`
	TotalXP      int64 `json:"total_xp"`
	LeveledUp    bool  `json:"leveled_up"`
	LevelsGained int   `json:"levels_gained"`
	CoinReward   int64 `json:"coin_reward"`
	IsMaxLevel   bool  `json:"is_max_level"`
}

// Service owns the XP curve.
type Service struct {
	store   *repository.Store
	table   LevelTable
	ledger  Ledger
	seasons SeasonProvider
	clock   clock.Clock
	log     *logger.Logger
}

// NewService creates a leveling service. The table is validated once here.
func NewService(
	store *repository.Store,
	table LevelTable,
	ledger Ledger,
	seasons SeasonProvider,
	clk clock.Clock,
	log *logger.Logger,
) (*Service, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return &Service{
		store:   store,
		table:   table,
		ledger:  ledger,
		seasons: seasons,
		clock:   clk,
		log:     log,
	}, nil
}

// Table returns the configured level table.
func (s *Service) Table() LevelTable {
	return s.table
}

// AddXP grants amount XP to a user in its own transaction.
func (s *Service) AddXP(ctx context.Context, userID uint, amount int64) (*XPResult, error) {
	if amount < 0 {
		return nil, fmt.Errorf("xp amount %d: %w", amount, apperr.ErrInvalidArgument)
	}

	season, err := s.seasons.GetCurrentSeason(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current season: %w", err)
	}

	var result *XPResult
	err = s.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		var err error
		result, err = s.AddXPTx(ctx, tx, season, userID, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// AddXPTx grants XP inside an existing transaction. The progression row is
// locked for the remainder of tx.
func (s *Service) AddXPTx(ctx context.Context, tx *repository.Store, season *models.Season, userID uint, amount int64) (*XPResult, error) {
	if amount < 0 {
		return nil, fmt.Errorf("xp amount %d: %w", amount, apperr.ErrInvalidArgument)
	}

	record, err := tx.Progression.GetForUpdate(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("progression for user %d: %w", userID, apperr.ErrNotFound)
		}
		return nil, err
	}

	maxLevel := s.table.MaxLevel()
	maxXP := s.table.MaxXP()
	previousXP := record.SeasonXP

	// Seasonal progression is exhausted; only lifetime XP moves.
	if record.Level >= maxLevel && record.SeasonXP >= maxXP {
		record.TotalXP += amount
		if err := tx.Progression.Save(ctx, record); err != nil {
			return nil, err
		}
		return &XPResult{
			Level:      record.Level,
			PreviousXP: previousXP,
			CurrentXP:  record.SeasonXP,
			TotalXP:    record.TotalXP,
			IsMaxLevel: true,
		}, nil
	}

	newXP := previousXP + amount
	level := record.Level
	var coins int64
	for level < maxLevel && newXP >= s.table.XP[level] {
		level++
		coins += s.table.Coins[level]
	}
	if level == maxLevel && newXP > maxXP {
		newXP = maxXP
	}

	levelsGained := level - record.Level
	record.Level = level
	record.SeasonXP = newXP
	record.TotalXP += amount
	record.Coins += coins
	now := s.clock.Now()
	if levelsGained > 0 {
		record.LastLevelUpAt = &now
	}

	if err := tx.Progression.Save(ctx, record); err != nil {
		return nil, err
	}
	if err := s.ledger.AddPoints(ctx, tx, userID, season.ID, amount, now); err != nil {
		return nil, err
	}

	metrics.RecordLevelUps(levelsGained)
	metrics.RecordCoinsAwarded("level_up", coins)
	if levelsGained > 0 {
		s.log.Info().
			Uint("user_id", userID).
			Int("level", level).
			Int("levels_gained", levelsGained).
			Int64("coin_reward", coins).
			Msg("User leveled up")
	}

	return &XPResult{
		Level:        level,
		PreviousXP:   previousXP,
		CurrentXP:    newXP,
		TotalXP:      record.TotalXP,
		LeveledUp:    levelsGained > 0,
		LevelsGained: levelsGained,
		CoinReward:   coins,
		IsMaxLevel:   level == maxLevel,
	}, nil
}

// GetLevelRewards returns the XP required and coins paid for each level.
func (s *Service) GetLevelRewards() []LevelReward {
	return s.table.Rewards()
}

// XPForNextLevel returns the season XP still needed to reach the next level,
// or 0 at MaxLevel.
func (s *Service) XPForNextLevel(record *models.ProgressionRecord) int64 {
	if record.Level >= s.table.MaxLevel() {
		return 0
	}
	remaining := s.table.XP[record.Level] - record.SeasonXP
	if remaining < 0 {
		return 0
	}
	return remaining
}
