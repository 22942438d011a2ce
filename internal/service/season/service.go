// Package season manages calendar seasons and end-of-season settlement.
package season

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/clock"
	"github.com/aimd54/shelf-progression/internal/metrics"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/internal/service/leaderboard"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// DefaultRewardDepth is how many ranked users settlement considers.
const DefaultRewardDepth = 100

// Ranker produces the settlement snapshot.
type Ranker interface {
	RankTx(ctx context.Context, tx *repository.Store, scope leaderboard.Scope, limit int) ([]leaderboard.Entry, error)
	Invalidate(ctx context.Context)
}

// Announcer publishes settlement results. Failures never undo a settlement.
type Announcer interface {
	AnnounceSeason(ctx context.Context, result *RotationResult) error
}

// Payout is one reward paid during settlement.
type Payout struct {
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
	Position    int    `json:"position"`
	SeasonXP    int64  `json:"season_xp"`
	Coins       int64  `json:"coins"`
}

// RotationResult describes one settlement.
type RotationResult struct {
	Season        *models.Season `json:"season"`
	NextSeason    *models.Season `json:"next_season,omitempty"`
	Rewards       []Payout       `json:"rewards"`
	UsersReset    int64          `json:"users_reset"`
	AlreadyIssued bool           `json:"already_issued"`
}

// Options tunes settlement.
type Options struct {
	Rewards     Rewards
	RewardDepth int
}

// Service derives the current season from the clock and the store.
type Service struct {
	store     *repository.Store
	ranker    Ranker
	announcer Announcer
	clock     clock.Clock
	opts      Options
	log       *logger.Logger
}

// NewService creates a season service. announcer may be nil.
func NewService(
	store *repository.Store,
	ranker Ranker,
	announcer Announcer,
	clk clock.Clock,
	opts Options,
	log *logger.Logger,
) *Service {
	if opts.RewardDepth <= 0 {
		opts.RewardDepth = DefaultRewardDepth
	}
	return &Service{
		store:     store,
		ranker:    ranker,
		announcer: announcer,
		clock:     clk,
		opts:      opts,
		log:       log,
	}
}

// GetCurrentSeason returns the active season, creating and activating the
// calendar season when no active season is still running. An active season
// that has ended without paying out is settled first, so XP granted after its
// end never lands in the outgoing ranking. Repeated calls never create
// duplicates.
func (s *Service) GetCurrentSeason(ctx context.Context) (*models.Season, error) {
	now := s.clock.Now()

	active, err := s.store.Seasons.GetActive(ctx)
	for err == nil && now.After(active.EndDate) && !active.RewardsIssued {
		if _, err := s.settle(ctx, active.ID); err != nil {
			return nil, err
		}
		active, err = s.store.Seasons.GetActive(ctx)
	}
	switch {
	case err == nil && !now.After(active.EndDate):
		return active, nil
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		return nil, err
	}

	target := For(now)
	var current *models.Season
	err = s.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		row, created, err := tx.Seasons.FindOrCreate(ctx, &target)
		if err != nil {
			return err
		}
		if created || (!row.IsActive && !row.Completed) {
			if err := tx.Seasons.ActivateExclusive(ctx, row.ID); err != nil {
				return err
			}
			row.IsActive = true
		}
		if created {
			s.log.Info().Str("season", row.Name).Time("end_date", row.EndDate).Msg("Created new season")
		}
		current = row
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current season: %w", err)
	}
	return current, nil
}

// RotateSeason settles the oldest season that has ended without paying out.
// It fails with ErrSeasonNotDue when no such season exists.
func (s *Service) RotateSeason(ctx context.Context) (*RotationResult, error) {
	due, err := s.store.Seasons.OldestUnsettled(ctx, s.clock.Now())
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			metrics.RecordSeasonRotation("not_due")
			return nil, apperr.ErrSeasonNotDue
		}
		return nil, err
	}
	return s.settle(ctx, due.ID)
}

// ResetSeason settles the active season immediately, regardless of its end date.
func (s *Service) ResetSeason(ctx context.Context) (*RotationResult, error) {
	current, err := s.GetCurrentSeason(ctx)
	if err != nil {
		return nil, err
	}
	return s.settle(ctx, current.ID)
}

// Settle settles a specific season. Settling an already settled season is a
// no-op reported through AlreadyIssued.
func (s *Service) Settle(ctx context.Context, seasonID uint) (*RotationResult, error) {
	return s.settle(ctx, seasonID)
}

func (s *Service) settle(ctx context.Context, seasonID uint) (*RotationResult, error) {
	start := s.clock.Now()
	result := &RotationResult{}

	err := s.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		season, err := tx.Seasons.GetForUpdate(ctx, seasonID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("season %d: %w", seasonID, apperr.ErrNotFound)
			}
			return err
		}
		result.Season = season
		if season.RewardsIssued {
			result.AlreadyIssued = true
			return nil
		}

		standings, err := s.ranker.RankTx(ctx, tx, leaderboard.Scope{}, s.opts.RewardDepth)
		if err != nil {
			return err
		}

		if err := tx.Seasons.MarkCompleted(ctx, season.ID); err != nil {
			return err
		}
		season.Completed = true
		season.IsActive = false

		for _, entry := range standings {
			coins := s.opts.Rewards.ForPosition(entry.Position)
			if coins <= 0 || entry.SeasonXP <= 0 {
				continue
			}
			created, err := tx.Seasons.CreateReward(ctx, &models.SeasonReward{
				SeasonID: season.ID,
				UserID:   entry.UserID,
				Rank:     entry.Position,
				Coins:    coins,
			})
			if err != nil {
				return err
			}
			if !created {
				continue
			}
			if err := tx.Progression.AddCoins(ctx, entry.UserID, coins); err != nil {
				return err
			}
			result.Rewards = append(result.Rewards, Payout{
				UserID:      entry.UserID,
				DisplayName: entry.DisplayName,
				Position:    entry.Position,
				SeasonXP:    entry.SeasonXP,
				Coins:       coins,
			})
		}

		nextTemplate := After(season)
		next, _, err := tx.Seasons.FindOrCreate(ctx, &nextTemplate)
		if err != nil {
			return err
		}
		if err := tx.Seasons.ActivateExclusive(ctx, next.ID); err != nil {
			return err
		}
		next.IsActive = true
		result.NextSeason = next

		reset, err := tx.Progression.ResetSeasonalProgress(ctx)
		if err != nil {
			return err
		}
		result.UsersReset = reset

		if err := tx.Seasons.MarkRewardsIssued(ctx, season.ID); err != nil {
			return err
		}
		season.RewardsIssued = true
		return nil
	})
	if err != nil {
		metrics.RecordSeasonRotation("error")
		return nil, fmt.Errorf("failed to settle season %d: %w", seasonID, err)
	}

	if result.AlreadyIssued {
		metrics.RecordSeasonRotation("already_issued")
		s.log.Info().Str("season", result.Season.Name).Msg("Season rewards already issued, skipping")
		return result, nil
	}

	var paid int64
	for _, p := range result.Rewards {
		paid += p.Coins
	}
	metrics.RecordSeasonRotation("success")
	metrics.ObserveSeasonPayout(paid)
	metrics.RecordCoinsAwarded("season", paid)
	s.ranker.Invalidate(ctx)

	s.log.Info().
		Str("season", result.Season.Name).
		Str("next_season", result.NextSeason.Name).
		Int("rewarded_users", len(result.Rewards)).
		Int64("coins_paid", paid).
		Int64("users_reset", result.UsersReset).
		Dur("duration", s.clock.Since(start)).
		Msg("Season settled")

	if s.announcer != nil {
		if err := s.announcer.AnnounceSeason(ctx, result); err != nil {
			s.log.Warn().Err(err).Str("season", result.Season.Name).Msg("Failed to announce season results")
		}
	}

	return result, nil
}

// ListSeasons returns all seasons, newest first.
func (s *Service) ListSeasons(ctx context.Context) ([]models.Season, error) {
	return s.store.Seasons.List(ctx)
}

// GetSeasonRewards returns the payouts recorded for a season.
func (s *Service) GetSeasonRewards(ctx context.Context, seasonID uint) ([]models.SeasonReward, error) {
	if _, err := s.store.Seasons.GetByID(ctx, seasonID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("season %d: %w", seasonID, apperr.ErrNotFound)
		}
		return nil, err
	}
	return s.store.Seasons.ListRewards(ctx, seasonID)
}
