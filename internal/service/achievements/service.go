// Package achievements tracks per-user progress toward persistent goals and
// pays out their one-time rewards.
package achievements

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/clock"
	"github.com/aimd54/shelf-progression/internal/metrics"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/internal/service/leveling"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// XPGranter credits achievement XP inside the progress transaction.
type XPGranter interface {
	AddXPTx(ctx context.Context, tx *repository.Store, season *models.Season, userID uint, amount int64) (*leveling.XPResult, error)
}

// SeasonProvider resolves the season achievement XP is credited to.
type SeasonProvider interface {
	GetCurrentSeason(ctx context.Context) (*models.Season, error)
}

// Increment carries the amounts a category sweep adds to each achievement.
// Achievements with metric "count" take Count; metric "pages" takes Pages.
type Increment struct {
	Count int
	Pages int
}

func (inc Increment) amountFor(metric string) int {
	switch metric {
	case models.MetricPages:
		return inc.Pages
	default:
		return inc.Count
	}
}

// AchievementInput describes a new achievement.
type AchievementInput struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Category    string `json:"category" binding:"required"`
	Metric      string `json:"metric"`
	GoalValue   int    `json:"goal_value"`
	XPReward    int64  `json:"xp_reward"`
	CoinReward  int64  `json:"coin_reward"`
	BadgeID     *uint  `json:"badge_id,omitempty"`
}

// ProgressResult describes one progress update.
type ProgressResult struct {
	Progress      models.UserAchievementProgress `json:"progress"`
	JustCompleted bool                           `json:"just_completed"`
	XP            *leveling.XPResult             `json:"xp,omitempty"`
	BadgeAwarded  bool                           `json:"badge_awarded"`
}

// Service handles achievement progress and awarding.
type Service struct {
	store   *repository.Store
	xp      XPGranter
	seasons SeasonProvider
	clock   clock.Clock
	log     *logger.Logger
}

// NewService creates a new achievement service.
func NewService(store *repository.Store, xp XPGranter, seasons SeasonProvider, clk clock.Clock, log *logger.Logger) *Service {
	return &Service{
		store:   store,
		xp:      xp,
		seasons: seasons,
		clock:   clk,
		log:     log,
	}
}

// UpdateProgress adds delta to a user's progress on an achievement. Progress
// is clamped at the goal; rewards are paid only on the transition to
// completed.
func (s *Service) UpdateProgress(ctx context.Context, userID, achievementID uint, delta int) (*ProgressResult, error) {
	if delta < 0 {
		return nil, fmt.Errorf("achievement delta %d: %w", delta, apperr.ErrInvalidArgument)
	}

	season, err := s.seasons.GetCurrentSeason(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current season: %w", err)
	}

	result := &ProgressResult{}
	var badgeName string
	err = s.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Progression.GetForUpdate(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("progression for user %d: %w", userID, apperr.ErrNotFound)
			}
			return err
		}

		progress, err := tx.Achievements.GetProgressForUpdate(ctx, userID, achievementID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("progress of user %d on achievement %d: %w", userID, achievementID, apperr.ErrNotFound)
			}
			return err
		}
		if progress.Completed || delta == 0 {
			result.Progress = *progress
			return nil
		}

		achievement := progress.Achievement
		progress.Progress = min(progress.Progress+delta, achievement.GoalValue)
		if progress.Progress >= achievement.GoalValue {
			now := s.clock.Now()
			progress.Completed = true
			progress.CompletedAt = &now
		}
		if err := tx.Achievements.SaveProgress(ctx, progress); err != nil {
			return err
		}
		result.Progress = *progress
		if !progress.Completed {
			return nil
		}

		result.JustCompleted = true
		if achievement.XPReward > 0 {
			result.XP, err = s.xp.AddXPTx(ctx, tx, season, userID, achievement.XPReward)
			if err != nil {
				return err
			}
		}
		if achievement.CoinReward > 0 {
			if err := tx.Progression.AddCoins(ctx, userID, achievement.CoinReward); err != nil {
				return err
			}
		}
		if achievement.BadgeID != nil {
			badge, err := tx.Badges.GetByID(ctx, *achievement.BadgeID)
			if err != nil {
				return err
			}
			result.BadgeAwarded, err = tx.Badges.AwardBadge(ctx, userID, badge.ID, *progress.CompletedAt)
			if err != nil {
				return err
			}
			badgeName = badge.Name
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.JustCompleted {
		achievement := result.Progress.Achievement
		metrics.RecordAchievementCompleted(achievement.Category)
		metrics.RecordXPGranted("achievement", achievement.XPReward)
		metrics.RecordCoinsAwarded("achievement", achievement.CoinReward)
		if result.BadgeAwarded {
			metrics.RecordBadgeAwarded(badgeName)
		}
		s.log.Info().
			Uint("user_id", userID).
			Uint("achievement_id", achievementID).
			Str("achievement", achievement.Name).
			Bool("badge_awarded", result.BadgeAwarded).
			Msg("Achievement completed")
	}
	return result, nil
}

// CreateAchievement stores a new achievement and gives every existing user a
// zero progress row for it, in one transaction.
func (s *Service) CreateAchievement(ctx context.Context, in AchievementInput) (*models.Achievement, error) {
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" || in.Category == "" {
		return nil, fmt.Errorf("achievement name and category are required: %w", apperr.ErrInvalidArgument)
	}
	if in.Metric == "" {
		in.Metric = models.MetricCount
	}
	if in.Metric != models.MetricCount && in.Metric != models.MetricPages {
		return nil, fmt.Errorf("unknown achievement metric %q: %w", in.Metric, apperr.ErrConfiguration)
	}
	if in.GoalValue <= 0 {
		return nil, fmt.Errorf("achievement goal must be positive, got %d: %w", in.GoalValue, apperr.ErrConfiguration)
	}
	if in.XPReward < 0 || in.CoinReward < 0 {
		return nil, fmt.Errorf("achievement rewards must not be negative: %w", apperr.ErrConfiguration)
	}

	achievement := &models.Achievement{
		Name:        in.Name,
		Description: in.Description,
		Category:    in.Category,
		Metric:      in.Metric,
		GoalValue:   in.GoalValue,
		XPReward:    in.XPReward,
		CoinReward:  in.CoinReward,
		BadgeID:     in.BadgeID,
	}

	var backfilled int64
	err := s.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		if in.BadgeID != nil {
			if _, err := tx.Badges.GetByID(ctx, *in.BadgeID); err != nil {
				if errors.Is(err, gorm.ErrRecordNotFound) {
					return fmt.Errorf("badge %d: %w", *in.BadgeID, apperr.ErrNotFound)
				}
				return err
			}
		}
		if err := tx.Achievements.Create(ctx, achievement); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("achievement %q already exists: %w", in.Name, apperr.ErrConflict)
			}
			return err
		}

		userIDs, err := tx.Users.ListIDs(ctx)
		if err != nil {
			return err
		}
		backfilled, err = tx.Achievements.InitProgress(ctx, userIDs, []uint{achievement.ID})
		return err
	})
	if err != nil {
		return nil, err
	}

	s.log.Info().
		Uint("achievement_id", achievement.ID).
		Str("name", achievement.Name).
		Str("category", achievement.Category).
		Int64("users_backfilled", backfilled).
		Msg("Achievement created")
	return achievement, nil
}

// InitializeUser creates the missing progress rows of a user for every
// achievement. It is safe to call repeatedly.
func (s *Service) InitializeUser(ctx context.Context, userID uint) (int64, error) {
	ids, err := s.store.Achievements.ListIDs(ctx)
	if err != nil {
		return 0, err
	}
	return s.store.Achievements.InitProgress(ctx, []uint{userID}, ids)
}

// SweepCategory applies inc to every achievement of a category. Each update
// stands alone: failures are collected and the sweep continues.
func (s *Service) SweepCategory(ctx context.Context, userID uint, category string, inc Increment) ([]ProgressResult, error) {
	achievements, err := s.store.Achievements.ListByCategory(ctx, category)
	if err != nil {
		return nil, err
	}

	var (
		results []ProgressResult
		errs    []error
	)
	for _, achievement := range achievements {
		delta := inc.amountFor(achievement.Metric)
		if delta <= 0 {
			continue
		}
		result, err := s.UpdateProgress(ctx, userID, achievement.ID, delta)
		if err != nil {
			s.log.Error().
				Err(err).
				Uint("user_id", userID).
				Str("achievement", achievement.Name).
				Msg("Failed to update achievement progress")
			errs = append(errs, fmt.Errorf("achievement %d: %w", achievement.ID, err))
			continue
		}
		results = append(results, *result)
	}
	return results, errors.Join(errs...)
}

// ListProgress returns a user's progress on every achievement.
func (s *Service) ListProgress(ctx context.Context, userID uint) ([]models.UserAchievementProgress, error) {
	return s.store.Achievements.ListProgress(ctx, userID)
}

// CreateBadge adds a badge achievements can reference.
func (s *Service) CreateBadge(ctx context.Context, name, description, icon string) (*models.Badge, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("badge name is required: %w", apperr.ErrInvalidArgument)
	}
	if _, err := s.store.Badges.GetByName(ctx, name); err == nil {
		return nil, fmt.Errorf("badge %q already exists: %w", name, apperr.ErrConflict)
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	badge := &models.Badge{Name: name, Description: description, Icon: icon}
	if err := s.store.Badges.Create(ctx, badge); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("badge %q already exists: %w", name, apperr.ErrConflict)
		}
		return nil, err
	}
	return badge, nil
}

// GetUserBadges retrieves all badges earned by a user.
func (s *Service) GetUserBadges(ctx context.Context, userID uint) ([]models.UserBadge, error) {
	return s.store.Badges.GetUserBadges(ctx, userID)
}

// GetBadgeCatalog retrieves all available badges.
func (s *Service) GetBadgeCatalog(ctx context.Context) ([]models.Badge, error) {
	return s.store.Badges.GetAll(ctx)
}

// GetBadgeHoldersCount retrieves the count of users who have earned a badge.
func (s *Service) GetBadgeHoldersCount(ctx context.Context, badgeID uint) (int64, error) {
	return s.store.Badges.GetBadgeHoldersCount(ctx, badgeID)
}
