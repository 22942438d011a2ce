package achievements

import (
	"context"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/internal/service/leaderboard"
	"github.com/aimd54/shelf-progression/internal/service/leveling"
	"github.com/aimd54/shelf-progression/pkg/logger"
	"github.com/aimd54/shelf-progression/test/testdb"
)

var now = time.Date(2026, 4, 15, 9, 30, 0, 0, time.UTC)

type fixedSeason struct {
	season *models.Season
}

func (f fixedSeason) GetCurrentSeason(context.Context) (*models.Season, error) {
	return f.season, nil
}

type fixture struct {
	svc   *Service
	store *repository.Store
	user  *models.User
}

func setup(t *testing.T) *fixture {
	t.Helper()
	store := testdb.NewStore(t)
	log := logger.NewNop()
	clk := clockwork.NewFakeClockAt(now)

	season := &models.Season{Name: "2026-spring", StartDate: now.AddDate(0, -1, 0), EndDate: now.AddDate(0, 2, 0), IsActive: true}
	require.NoError(t, store.DB().Create(season).Error)

	ranker := leaderboard.NewService(store, nil, time.Minute, log)
	xp, err := leveling.NewService(store, leveling.DefaultTable(), ranker, fixedSeason{season}, clk, log)
	require.NoError(t, err)

	return &fixture{
		svc:   NewService(store, xp, fixedSeason{season}, clk, log),
		store: store,
		user:  testdb.CreateUser(t, store, "reader", now),
	}
}

func (f *fixture) progress(t *testing.T, achievementID uint) models.UserAchievementProgress {
	t.Helper()
	rows, err := f.svc.ListProgress(context.Background(), f.user.ID)
	require.NoError(t, err)
	for _, row := range rows {
		if row.AchievementID == achievementID {
			return row
		}
	}
	t.Fatalf("no progress row for achievement %d", achievementID)
	return models.UserAchievementProgress{}
}

func TestCreateAchievement_BackfillsUsers(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	other := testdb.CreateUser(t, f.store, "other", now)

	achievement, err := f.svc.CreateAchievement(ctx, AchievementInput{
		Name:      "Bookworm",
		Category:  models.CategoryReading,
		GoalValue: 10,
		XPReward:  100,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MetricCount, achievement.Metric)

	for _, id := range []uint{f.user.ID, other.ID} {
		rows, err := f.svc.ListProgress(ctx, id)
		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Equal(t, 0, rows[0].Progress)
		assert.Equal(t, "Bookworm", rows[0].Achievement.Name)
	}
}

func TestCreateAchievement_Validation(t *testing.T) {
	f := setup(t)
	ctx := context.Background()
	missingBadge := uint(42)

	tests := []struct {
		name    string
		input   AchievementInput
		wantErr error
	}{
		{"zero goal", AchievementInput{Name: "A", Category: models.CategoryReading, GoalValue: 0}, apperr.ErrConfiguration},
		{"unknown metric", AchievementInput{Name: "B", Category: models.CategoryReading, Metric: "minutes", GoalValue: 1}, apperr.ErrConfiguration},
		{"negative reward", AchievementInput{Name: "C", Category: models.CategoryReading, GoalValue: 1, CoinReward: -5}, apperr.ErrConfiguration},
		{"missing name", AchievementInput{Category: models.CategoryReading, GoalValue: 1}, apperr.ErrInvalidArgument},
		{"unknown badge", AchievementInput{Name: "D", Category: models.CategoryReading, GoalValue: 1, BadgeID: &missingBadge}, apperr.ErrNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.CreateAchievement(ctx, tt.input)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}

	_, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "Dup", Category: models.CategorySocial, GoalValue: 1})
	require.NoError(t, err)
	_, err = f.svc.CreateAchievement(ctx, AchievementInput{Name: "Dup", Category: models.CategorySocial, GoalValue: 1})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestUpdateProgress_CompletesOnce(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	badge, err := f.svc.CreateBadge(ctx, "Marathoner", "Read a lot", "book")
	require.NoError(t, err)
	achievement, err := f.svc.CreateAchievement(ctx, AchievementInput{
		Name:       "Three sessions",
		Category:   models.CategoryReading,
		GoalValue:  3,
		XPReward:   120,
		CoinReward: 25,
		BadgeID:    &badge.ID,
	})
	require.NoError(t, err)

	result, err := f.svc.UpdateProgress(ctx, f.user.ID, achievement.ID, 2)
	require.NoError(t, err)
	assert.False(t, result.JustCompleted)
	assert.Equal(t, 2, result.Progress.Progress)

	result, err = f.svc.UpdateProgress(ctx, f.user.ID, achievement.ID, 5)
	require.NoError(t, err)
	assert.True(t, result.JustCompleted)
	assert.True(t, result.BadgeAwarded)
	assert.Equal(t, 3, result.Progress.Progress, "progress is clamped at the goal")
	require.NotNil(t, result.XP)
	assert.Equal(t, 2, result.XP.Level)

	result, err = f.svc.UpdateProgress(ctx, f.user.ID, achievement.ID, 1)
	require.NoError(t, err)
	assert.False(t, result.JustCompleted)
	assert.True(t, result.Progress.Completed)

	record, err := f.store.Progression.GetByUserID(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(120), record.TotalXP)
	assert.Equal(t, int64(75), record.Coins, "achievement coins plus the level 2 reward")

	badges, err := f.svc.GetUserBadges(ctx, f.user.ID)
	require.NoError(t, err)
	require.Len(t, badges, 1)
	assert.Equal(t, "Marathoner", badges[0].Badge.Name)

	holders, err := f.svc.GetBadgeHoldersCount(ctx, badge.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), holders)

	row := f.progress(t, achievement.ID)
	require.NotNil(t, row.CompletedAt)
	assert.True(t, row.CompletedAt.Equal(now))
}

func TestUpdateProgress_BadgeAlreadyHeld(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	badge, err := f.svc.CreateBadge(ctx, "Social", "", "")
	require.NoError(t, err)
	_, err = f.store.Badges.AwardBadge(ctx, f.user.ID, badge.ID, now)
	require.NoError(t, err)

	achievement, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "Join", Category: models.CategorySocial, GoalValue: 1, BadgeID: &badge.ID})
	require.NoError(t, err)

	result, err := f.svc.UpdateProgress(ctx, f.user.ID, achievement.ID, 1)
	require.NoError(t, err)
	assert.True(t, result.JustCompleted)
	assert.False(t, result.BadgeAwarded)
	assert.Nil(t, result.XP)

	badges, err := f.svc.GetUserBadges(ctx, f.user.ID)
	require.NoError(t, err)
	assert.Len(t, badges, 1)
}

func TestUpdateProgress_Errors(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	achievement, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "A", Category: models.CategoryReading, GoalValue: 2})
	require.NoError(t, err)

	_, err = f.svc.UpdateProgress(ctx, f.user.ID, achievement.ID, -1)
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.svc.UpdateProgress(ctx, f.user.ID, 999, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	_, err = f.svc.UpdateProgress(ctx, 999, achievement.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	// A user registered after the achievement has no row until initialized.
	late := testdb.CreateUser(t, f.store, "late", now)
	_, err = f.svc.UpdateProgress(ctx, late.ID, achievement.ID, 1)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	created, err := f.svc.InitializeUser(ctx, late.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), created)

	created, err = f.svc.InitializeUser(ctx, late.ID)
	require.NoError(t, err)
	assert.Zero(t, created)

	result, err := f.svc.UpdateProgress(ctx, late.ID, achievement.ID, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Progress.Progress)
}

func TestSweepCategory(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	sessions, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "Sessions", Category: models.CategoryReading, GoalValue: 5})
	require.NoError(t, err)
	pages, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "Pages", Category: models.CategoryReading, Metric: models.MetricPages, GoalValue: 100})
	require.NoError(t, err)
	social, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "Friends", Category: models.CategorySocial, GoalValue: 1})
	require.NoError(t, err)

	results, err := f.svc.SweepCategory(ctx, f.user.ID, models.CategoryReading, Increment{Count: 1, Pages: 40})
	require.NoError(t, err)
	assert.Len(t, results, 2)

	assert.Equal(t, 1, f.progress(t, sessions.ID).Progress)
	assert.Equal(t, 40, f.progress(t, pages.ID).Progress)
	assert.Equal(t, 0, f.progress(t, social.ID).Progress)

	// Zero pages leaves page achievements alone.
	results, err = f.svc.SweepCategory(ctx, f.user.ID, models.CategoryReading, Increment{Count: 1})
	require.NoError(t, err)
	assert.Len(t, results, 1)
	assert.Equal(t, 2, f.progress(t, sessions.ID).Progress)
}

func TestSweepCategory_ContinuesPastFailures(t *testing.T) {
	f := setup(t)
	ctx := context.Background()

	first, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "First", Category: models.CategoryChallenge, GoalValue: 3})
	require.NoError(t, err)
	second, err := f.svc.CreateAchievement(ctx, AchievementInput{Name: "Second", Category: models.CategoryChallenge, GoalValue: 3})
	require.NoError(t, err)

	// Drop one progress row so its update fails.
	require.NoError(t, f.store.DB().
		Where("user_id = ? AND achievement_id = ?", f.user.ID, first.ID).
		Delete(&models.UserAchievementProgress{}).Error)

	results, err := f.svc.SweepCategory(ctx, f.user.ID, models.CategoryChallenge, Increment{Count: 1})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	require.Len(t, results, 1)
	assert.Equal(t, second.ID, results[0].Progress.AchievementID)
	assert.Equal(t, 1, f.progress(t, second.ID).Progress)
}
