// Package progression is the entry point collaborators use to report reading
// activity and read a user's gamification state.
package progression

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
	"github.com/aimd54/shelf-progression/internal/service/achievements"
	"github.com/aimd54/shelf-progression/internal/service/leaderboard"
	"github.com/aimd54/shelf-progression/internal/service/leveling"
	"github.com/aimd54/shelf-progression/internal/service/quests"
	"github.com/aimd54/shelf-progression/internal/service/season"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// DefaultCheckInXP is the flat XP granted per check-in.
const DefaultCheckInXP = 10

// Services groups the engines the facade composes.
type Services struct {
	Leveling     *leveling.Service
	Seasons      *season.Service
	Leaderboard  *leaderboard.Service
	Catalog      *quests.Catalog
	Quests       *quests.Engine
	Achievements *achievements.Service
}

// CheckInEvent is one reading session reported by the reading platform.
type CheckInEvent struct {
	UserID       uint `json:"user_id"`
	BookID       uint `json:"book_id" binding:"required"`
	PagesRead    int  `json:"pages_read"`
	MinutesSpent int  `json:"minutes_spent"`
	CurrentPage  *int `json:"current_page,omitempty"`
}

// CheckInResult describes the effects of a check-in.
type CheckInResult struct {
	CheckIn      models.CheckIn                `json:"check_in"`
	Streak       int                           `json:"streak"`
	XP           *leveling.XPResult            `json:"xp"`
	Achievements []achievements.ProgressResult `json:"achievements"`
}

// ChallengeResult describes the effects of a completed challenge.
type ChallengeResult struct {
	XP           *leveling.XPResult            `json:"xp"`
	Achievements []achievements.ProgressResult `json:"achievements"`
}

// GamificationStatus is a user's full progression snapshot.
type GamificationStatus struct {
	UserID          uint                             `json:"user_id"`
	Level           int                              `json:"level"`
	TotalXP         int64                            `json:"total_xp"`
	SeasonXP        int64                            `json:"season_xp"`
	Coins           int64                            `json:"coins"`
	Streak          int                              `json:"streak"`
	XPForNextLevel  int64                            `json:"xp_for_next_level"`
	IsMaxLevel      bool                             `json:"is_max_level"`
	Badges          []models.UserBadge               `json:"badges"`
	Achievements    []models.UserAchievementProgress `json:"achievements"`
	LeaderboardRank int                              `json:"leaderboard_rank"`
	Season          *models.Season                   `json:"season"`
}

// BadgeEntry is a catalog badge with the number of users holding it.
type BadgeEntry struct {
	models.Badge
	Holders int64 `json:"holders"`
}

// Service is the progression facade.
type Service struct {
	store     *repository.Store
	svc       Services
	clock     clock.Clock
	checkInXP int64
	log       *logger.Logger
}

// NewService creates the facade. A non-positive checkInXP uses DefaultCheckInXP.
func NewService(store *repository.Store, svc Services, checkInXP int64, clk clock.Clock, log *logger.Logger) *Service {
	if checkInXP <= 0 {
		checkInXP = DefaultCheckInXP
	}
	return &Service{
		store:     store,
		svc:       svc,
		clock:     clk,
		checkInXP: checkInXP,
		log:       log,
	}
}

// RegisterUser creates the user's progression record and achievement rows.
// Calling it again for the same user changes nothing.
func (s *Service) RegisterUser(ctx context.Context, userID uint) (*models.ProgressionRecord, error) {
	if _, err := s.store.Users.GetByID(ctx, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("user %d: %w", userID, apperr.ErrNotFound)
		}
		return nil, err
	}

	record, created, err := s.store.Progression.CreateIfMissing(ctx, userID)
	if err != nil {
		return nil, err
	}
	if _, err := s.svc.Achievements.InitializeUser(ctx, userID); err != nil {
		return nil, err
	}
	if created {
		s.log.Info().Uint("user_id", userID).Msg("User registered for progression")
	}
	return record, nil
}

// nextStreak returns the streak after a check-in at now.
func nextStreak(record *models.ProgressionRecord, now time.Time) int {
	if record.LastCheckInDate == nil {
		return 1
	}
	last := *record.LastCheckInDate
	switch {
	case clock.SameDay(now, last):
		return max(record.Streak, 1)
	case clock.SameDay(now, last.AddDate(0, 0, 1)):
		return record.Streak + 1
	default:
		return 1
	}
}

// RecordCheckIn stores a reading session, updates the streak, grants the
// check-in XP and advances reading achievements.
func (s *Service) RecordCheckIn(ctx context.Context, event CheckInEvent) (*CheckInResult, error) {
	if event.BookID == 0 || event.PagesRead < 0 || event.MinutesSpent < 0 {
		return nil, fmt.Errorf("invalid check-in for user %d: %w", event.UserID, apperr.ErrInvalidArgument)
	}

	current, err := s.svc.Seasons.GetCurrentSeason(ctx)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	result := &CheckInResult{}
	err = s.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		record, err := tx.Progression.GetForUpdate(ctx, event.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("progression for user %d: %w", event.UserID, apperr.ErrNotFound)
			}
			return err
		}

		checkIn := models.CheckIn{
			UserID:       event.UserID,
			BookID:       event.BookID,
			PagesRead:    event.PagesRead,
			MinutesSpent: event.MinutesSpent,
			CurrentPage:  event.CurrentPage,
			CreatedAt:    now,
		}
		if err := tx.Activity.CreateCheckIn(ctx, &checkIn); err != nil {
			return err
		}

		record.Streak = nextStreak(record, now)
		record.LastCheckInDate = &now
		if err := tx.Progression.Save(ctx, record); err != nil {
			return err
		}

		xp, err := s.svc.Leveling.AddXPTx(ctx, tx, current, event.UserID, s.checkInXP)
		if err != nil {
			return err
		}

		result.CheckIn = checkIn
		result.Streak = record.Streak
		result.XP = xp
		return nil
	})
	if err != nil {
		return nil, err
	}
	metrics.RecordXPGranted("check_in", s.checkInXP)

	result.Achievements, err = s.svc.Achievements.SweepCategory(ctx, event.UserID, models.CategoryReading,
		achievements.Increment{Count: 1, Pages: event.PagesRead})
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", event.UserID).Msg("Reading achievement sweep partially failed")
	}

	s.log.Debug().
		Uint("user_id", event.UserID).
		Uint("book_id", event.BookID).
		Int("pages", event.PagesRead).
		Int("streak", result.Streak).
		Msg("Check-in recorded")
	return result, nil
}

// RecordChallengeCompletion grants a challenge's XP and advances challenge
// achievements.
func (s *Service) RecordChallengeCompletion(ctx context.Context, userID uint, xp int64) (*ChallengeResult, error) {
	granted, err := s.svc.Leveling.AddXP(ctx, userID, xp)
	if err != nil {
		return nil, err
	}
	metrics.RecordXPGranted("challenge", xp)

	result := &ChallengeResult{XP: granted}
	result.Achievements, err = s.svc.Achievements.SweepCategory(ctx, userID, models.CategoryChallenge, achievements.Increment{Count: 1})
	if err != nil {
		s.log.Warn().Err(err).Uint("user_id", userID).Msg("Challenge achievement sweep partially failed")
	}
	return result, nil
}

// GetStatus assembles a user's gamification snapshot.
func (s *Service) GetStatus(ctx context.Context, userID uint) (*GamificationStatus, error) {
	record, err := s.store.Progression.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("progression for user %d: %w", userID, apperr.ErrNotFound)
		}
		return nil, err
	}

	current, err := s.svc.Seasons.GetCurrentSeason(ctx)
	if err != nil {
		return nil, err
	}
	badges, err := s.svc.Achievements.GetUserBadges(ctx, userID)
	if err != nil {
		return nil, err
	}
	progress, err := s.svc.Achievements.ListProgress(ctx, userID)
	if err != nil {
		return nil, err
	}
	rank, err := s.svc.Leaderboard.GetUserRank(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &GamificationStatus{
		UserID:          userID,
		Level:           record.Level,
		TotalXP:         record.TotalXP,
		SeasonXP:        record.SeasonXP,
		Coins:           record.Coins,
		Streak:          record.Streak,
		XPForNextLevel:  s.svc.Leveling.XPForNextLevel(record),
		IsMaxLevel:      record.Level >= s.svc.Leveling.Table().MaxLevel(),
		Badges:          badges,
		Achievements:    progress,
		LeaderboardRank: rank,
		Season:          current,
	}, nil
}

// GetUserRank returns the user's season position.
func (s *Service) GetUserRank(ctx context.Context, userID uint) (int, error) {
	return s.svc.Leaderboard.GetUserRank(ctx, userID)
}

// Leaderboard returns the ranked users of a scope.
func (s *Service) Leaderboard(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.Entry, error) {
	return s.svc.Leaderboard.Rank(ctx, scope, limit)
}

// LevelRewards returns the level table.
func (s *Service) LevelRewards() []leveling.LevelReward {
	return s.svc.Leveling.GetLevelRewards()
}

// ActiveQuests tops up and returns the user's quests for a period with live
// progress.
func (s *Service) ActiveQuests(ctx context.Context, userID uint, period models.QuestPeriod) ([]quests.ActiveQuest, error) {
	if _, err := s.svc.Quests.AssignQuests(ctx, userID, period); err != nil {
		return nil, err
	}
	return s.svc.Quests.ListActive(ctx, userID, period)
}

// CompleteQuest completes one of the user's open quests.
func (s *Service) CompleteQuest(ctx context.Context, userID, questID uint) (*quests.CompletionResult, error) {
	return s.svc.Quests.CompleteQuest(ctx, questID, userID)
}

// ResetSeason settles the running season immediately.
func (s *Service) ResetSeason(ctx context.Context) (*season.RotationResult, error) {
	return s.svc.Seasons.ResetSeason(ctx)
}

// RotateSeason settles the oldest ended season, or the running one when force is set.
func (s *Service) RotateSeason(ctx context.Context, force bool) (*season.RotationResult, error) {
	if force {
		return s.svc.Seasons.ResetSeason(ctx)
	}
	return s.svc.Seasons.RotateSeason(ctx)
}

// RefreshDailyQuests refreshes every user's daily quests.
func (s *Service) RefreshDailyQuests(ctx context.Context) (*quests.RefreshReport, error) {
	return s.svc.Quests.RefreshAllUsers(ctx, models.PeriodDaily)
}

// RefreshWeeklyQuests refreshes every user's weekly quests.
func (s *Service) RefreshWeeklyQuests(ctx context.Context) (*quests.RefreshReport, error) {
	return s.svc.Quests.RefreshAllUsers(ctx, models.PeriodWeekly)
}

// RefreshQuests refreshes every user's quests for period.
func (s *Service) RefreshQuests(ctx context.Context, period models.QuestPeriod) (*quests.RefreshReport, error) {
	return s.svc.Quests.RefreshAllUsers(ctx, period)
}

// CreateQuest adds a quest to the catalog.
func (s *Service) CreateQuest(ctx context.Context, in quests.QuestInput) (*models.QuestDefinition, error) {
	return s.svc.Catalog.CreateQuest(ctx, in)
}

// CreateAchievement adds an achievement and backfills every user.
func (s *Service) CreateAchievement(ctx context.Context, in achievements.AchievementInput) (*models.Achievement, error) {
	return s.svc.Achievements.CreateAchievement(ctx, in)
}

// CreateBadge adds a badge achievements can reference.
func (s *Service) CreateBadge(ctx context.Context, name, description, icon string) (*models.Badge, error) {
	badge, err := s.svc.Achievements.CreateBadge(ctx, name, description, icon)
	if err != nil {
		return nil, err
	}
	s.log.Info().Uint("badge_id", badge.ID).Str("name", badge.Name).Msg("Badge created")
	return badge, nil
}

// BadgeCatalog returns every badge with its holder count.
func (s *Service) BadgeCatalog(ctx context.Context) ([]BadgeEntry, error) {
	badges, err := s.svc.Achievements.GetBadgeCatalog(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]BadgeEntry, 0, len(badges))
	for _, badge := range badges {
		holders, err := s.svc.Achievements.GetBadgeHoldersCount(ctx, badge.ID)
		if err != nil {
			return nil, err
		}
		entries = append(entries, BadgeEntry{Badge: badge, Holders: holders})
	}
	return entries, nil
}

// ListSeasons returns every season, newest first.
func (s *Service) ListSeasons(ctx context.Context) ([]models.Season, error) {
	return s.svc.Seasons.ListSeasons(ctx)
}

// SeasonRewards returns the payouts recorded for a season.
func (s *Service) SeasonRewards(ctx context.Context, seasonID uint) ([]models.SeasonReward, error) {
	return s.svc.Seasons.GetSeasonRewards(ctx, seasonID)
}

// GrantXP credits XP manually.
func (s *Service) GrantXP(ctx context.Context, userID uint, amount int64) (*leveling.XPResult, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("xp grant %d: %w", amount, apperr.ErrInvalidArgument)
	}
	result, err := s.svc.Leveling.AddXP(ctx, userID, amount)
	if err != nil {
		return nil, err
	}
	metrics.RecordXPGranted("admin", amount)
	s.log.Info().Uint("user_id", userID).Int64("amount", amount).Msg("XP granted manually")
	return result, nil
}
