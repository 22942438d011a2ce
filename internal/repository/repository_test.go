package repository

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

var dbSeq atomic.Int64

// setupTestStore creates a migrated in-memory SQLite store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	db, err := NewSQLiteDB(fmt.Sprintf("file:repo_%d?mode=memory&cache=shared", dbSeq.Add(1)), logger.NewNop())
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate())
	t.Cleanup(func() { _ = db.Close() })

	return NewStore(db)
}

// createTestUser creates a user and its progression record.
func createTestUser(t *testing.T, s *Store, username string) *models.User {
	t.Helper()

	user := &models.User{Username: username, DisplayName: username}
	require.NoError(t, s.Users.Create(context.Background(), user))
	_, created, err := s.Progression.CreateIfMissing(context.Background(), user.ID)
	require.NoError(t, err)
	require.True(t, created)
	return user
}

func TestProgressionRepository_CreateIfMissingIsIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "alice")

	record, created, err := s.Progression.CreateIfMissing(ctx, user.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, 1, record.Level)
	assert.Equal(t, user.ID, record.UserID)
}

func TestProgressionRepository_GetForUpdateMissing(t *testing.T) {
	s := setupTestStore(t)

	err := s.WithinTransaction(context.Background(), func(tx *Store) error {
		_, err := tx.Progression.GetForUpdate(context.Background(), 999)
		return err
	})
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestProgressionRepository_AddCoinsAndReset(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "bob")

	record, err := s.Progression.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	record.Level = 7
	record.SeasonXP = 2000
	record.TotalXP = 5000
	require.NoError(t, s.Progression.Save(ctx, record))
	require.NoError(t, s.Progression.AddCoins(ctx, user.ID, 150))

	n, err := s.Progression.ResetSeasonalProgress(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	record, err = s.Progression.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, record.Level)
	assert.Equal(t, int64(0), record.SeasonXP)
	assert.Equal(t, int64(5000), record.TotalXP)
	assert.Equal(t, int64(150), record.Coins)

	err = s.Progression.AddCoins(ctx, 12345, 1)
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func TestStore_WithinTransactionRollsBack(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "carol")

	boom := errors.New("boom")
	err := s.WithinTransaction(ctx, func(tx *Store) error {
		if err := tx.Progression.AddCoins(ctx, user.ID, 500); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	record, err := s.Progression.GetByUserID(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(0), record.Coins)
}

func newSeason(name string, start time.Time) *models.Season {
	return &models.Season{
		Name:        name,
		DisplayName: name,
		StartDate:   start,
		EndDate:     start.AddDate(0, 3, 0),
	}
}

func TestSeasonRepository_FindOrCreate(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	start := time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)

	first, created, err := s.Seasons.FindOrCreate(ctx, newSeason("2026-spring", start))
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.Seasons.FindOrCreate(ctx, newSeason("2026-spring", start))
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
}

func TestSeasonRepository_ActivateExclusive(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a, _, err := s.Seasons.FindOrCreate(ctx, newSeason("2026-winter", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	b, _, err := s.Seasons.FindOrCreate(ctx, newSeason("2026-spring", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	require.NoError(t, s.WithinTransaction(ctx, func(tx *Store) error { return tx.Seasons.ActivateExclusive(ctx, a.ID) }))
	require.NoError(t, s.WithinTransaction(ctx, func(tx *Store) error { return tx.Seasons.ActivateExclusive(ctx, b.ID) }))

	var active int64
	require.NoError(t, s.DB().Model(&models.Season{}).Where("is_active = ?", true).Count(&active).Error)
	assert.Equal(t, int64(1), active)

	got, err := s.Seasons.GetActive(ctx)
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
}

func TestSeasonRepository_OldestUnsettledAndRewards(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "dave")

	old, _, err := s.Seasons.FindOrCreate(ctx, newSeason("2025-autumn", time.Date(2025, 9, 22, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)
	_, _, err = s.Seasons.FindOrCreate(ctx, newSeason("2026-winter", time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	due, err := s.Seasons.OldestUnsettled(ctx, time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	assert.Equal(t, old.ID, due.ID)

	created, err := s.Seasons.CreateReward(ctx, &models.SeasonReward{SeasonID: old.ID, UserID: user.ID, Rank: 1, Coins: 1000})
	require.NoError(t, err)
	assert.True(t, created)
	created, err = s.Seasons.CreateReward(ctx, &models.SeasonReward{SeasonID: old.ID, UserID: user.ID, Rank: 1, Coins: 1000})
	require.NoError(t, err)
	assert.False(t, created)

	rewards, err := s.Seasons.ListRewards(ctx, old.ID)
	require.NoError(t, err)
	assert.Len(t, rewards, 1)

	require.NoError(t, s.Seasons.MarkRewardsIssued(ctx, old.ID))
	_, err = s.Seasons.OldestUnsettled(ctx, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, errors.Is(err, gorm.ErrRecordNotFound))
}

func createQuest(t *testing.T, s *Store, title string, period models.QuestPeriod) *models.QuestDefinition {
	t.Helper()
	quest := &models.QuestDefinition{
		Title:          title,
		QuestType:      models.QuestDailyCheckIn,
		BaseXPReward:   20,
		BaseCoinReward: 5,
		Period:         period,
		IsActive:       true,
	}
	require.NoError(t, s.Quests.Create(context.Background(), quest))
	return quest
}

func TestQuestRepository_ListActiveAndUpsert(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	a := createQuest(t, s, "Check in", models.PeriodDaily)
	createQuest(t, s, "Weekly reader", models.PeriodWeekly)
	require.NoError(t, s.Quests.SetActive(ctx, a.ID, false))

	daily, err := s.Quests.ListActive(ctx, models.PeriodDaily)
	require.NoError(t, err)
	assert.Empty(t, daily)

	updated := &models.QuestDefinition{
		Title: "Check in", QuestType: models.QuestDailyCheckIn,
		BaseXPReward: 30, BaseCoinReward: 10, Period: models.PeriodDaily, IsActive: true,
	}
	require.NoError(t, s.Quests.Upsert(ctx, updated))

	all, err := s.Quests.List(ctx, models.PeriodDaily)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, int64(30), all[0].BaseXPReward)
	assert.True(t, all[0].IsActive)
}

func TestAssignmentRepository_Lifecycle(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "erin")
	quest := createQuest(t, s, "Check in", models.PeriodDaily)
	stale := createQuest(t, s, "Read 10 pages", models.PeriodDaily)
	now := time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

	created, err := s.Assignments.Create(ctx, &models.UserQuestAssignment{
		UserID: user.ID, QuestID: quest.ID, Period: models.PeriodDaily,
		AssignedAt: now, ExpiresAt: now.Add(12 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = s.Assignments.Create(ctx, &models.UserQuestAssignment{
		UserID: user.ID, QuestID: quest.ID, Period: models.PeriodDaily,
		AssignedAt: now, ExpiresAt: now.Add(12 * time.Hour),
	})
	require.NoError(t, err)
	assert.False(t, created, "duplicate open assignment must be skipped")

	_, err = s.Assignments.Create(ctx, &models.UserQuestAssignment{
		UserID: user.ID, QuestID: stale.ID, Period: models.PeriodDaily,
		AssignedAt: now.Add(-48 * time.Hour), ExpiresAt: now.Add(-24 * time.Hour),
	})
	require.NoError(t, err)

	active, err := s.Assignments.ListActive(ctx, user.ID, models.PeriodDaily, now)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, "Check in", active[0].Quest.Title)

	err = s.WithinTransaction(ctx, func(tx *Store) error {
		open, err := tx.Assignments.FindOpenForUpdate(ctx, user.ID, quest.ID, now)
		if err != nil {
			return err
		}
		completedAt := now
		open.Progress = 1
		open.CompletedAt = &completedAt
		open.XPEarned = 20
		open.CoinsEarned = 5
		seasonID := uint(7)
		open.SeasonID = &seasonID
		return tx.Assignments.MarkCompleted(ctx, open)
	})
	require.NoError(t, err)

	deleted, err := s.Assignments.DeleteExpired(ctx, now.Add(48*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted, "only the uncompleted expired row is purged")

	ids, err := s.Assignments.CompletedQuestIDsSince(ctx, user.ID, now.Add(-time.Hour))
	require.NoError(t, err)
	assert.Equal(t, []uint{quest.ID}, ids)

	coins, err := s.Assignments.SumCoinsForSeason(ctx, user.ID, 7)
	require.NoError(t, err)
	assert.Equal(t, int64(5), coins)

	coins, err = s.Assignments.SumCoinsForSeason(ctx, user.ID, 8)
	require.NoError(t, err)
	assert.Zero(t, coins, "coins are counted against the season they were earned in")

	activeIDs, err := s.Assignments.ActiveQuestIDs(ctx, user.ID)
	require.NoError(t, err)
	assert.Empty(t, activeIDs)

	created, err = s.Assignments.Create(ctx, &models.UserQuestAssignment{
		UserID: user.ID, QuestID: quest.ID, Period: models.PeriodDaily,
		AssignedAt: now, ExpiresAt: now.Add(36 * time.Hour),
	})
	require.NoError(t, err)
	assert.True(t, created, "completed assignment releases the active key")
}

func TestAchievementRepository_InitProgress(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	u1 := createTestUser(t, s, "frank")
	u2 := createTestUser(t, s, "gina")

	achievement := &models.Achievement{Name: "First steps", Category: models.CategoryReading, Metric: models.MetricCount, GoalValue: 1}
	require.NoError(t, s.Achievements.Create(ctx, achievement))

	n, err := s.Achievements.InitProgress(ctx, []uint{u1.ID, u2.ID}, []uint{achievement.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = s.Achievements.InitProgress(ctx, []uint{u1.ID, u2.ID}, []uint{achievement.ID})
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	rows, err := s.Achievements.ListProgress(ctx, u1.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "First steps", rows[0].Achievement.Name)
}

func TestBadgeRepository_AwardBadgeIdempotent(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "hank")

	badge := &models.Badge{Name: "Bookworm", Description: "Read a lot", Icon: "📚"}
	require.NoError(t, s.Badges.Create(ctx, badge))

	awarded, err := s.Badges.AwardBadge(ctx, user.ID, badge.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, awarded)
	awarded, err = s.Badges.AwardBadge(ctx, user.ID, badge.ID, time.Now())
	require.NoError(t, err)
	assert.False(t, awarded)

	has, err := s.Badges.HasUserEarnedBadge(ctx, user.ID, badge.ID)
	require.NoError(t, err)
	assert.True(t, has)

	count, err := s.Badges.GetBadgeHoldersCount(ctx, badge.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	held, err := s.Badges.GetUserBadges(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "Bookworm", held[0].Badge.Name)
}

func TestLeaderboardRepository_AddPointsUpserts(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "ivy")
	season, _, err := s.Seasons.FindOrCreate(ctx, newSeason("2026-spring", time.Date(2026, 3, 20, 0, 0, 0, 0, time.UTC)))
	require.NoError(t, err)

	first := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, s.Leaderboard.AddPoints(ctx, user.ID, season.ID, 40, first))
	require.NoError(t, s.Leaderboard.AddPoints(ctx, user.ID, season.ID, 60, first.Add(3*time.Hour)))

	entry, err := s.Leaderboard.GetEntry(ctx, user.ID, season.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(100), entry.Score)
	assert.WithinDuration(t, first, entry.CreatedAt, time.Second)
	assert.WithinDuration(t, first.Add(3*time.Hour), entry.UpdatedAt, time.Second)

	scores, err := s.Leaderboard.SeasonScores(ctx, season.ID, 10)
	require.NoError(t, err)
	assert.Len(t, scores, 1)
}

func TestLeaderboardRepository_CandidatesAndCountAhead(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 4, 1, 10, 0, 0, 0, time.UTC)

	setXP := func(user *models.User, xp int64, levelUp *time.Time) {
		record, err := s.Progression.GetByUserID(ctx, user.ID)
		require.NoError(t, err)
		record.SeasonXP = xp
		record.LastLevelUpAt = levelUp
		require.NoError(t, s.Progression.Save(ctx, record))
	}

	early, late := now.Add(-time.Hour), now
	a := createTestUser(t, s, "a")
	b := createTestUser(t, s, "b")
	c := createTestUser(t, s, "c")
	d := createTestUser(t, s, "d")
	setXP(a, 500, &late)
	setXP(b, 500, &early)
	setXP(c, 900, &late)
	setXP(d, 500, nil)

	require.NoError(t, s.DB().Model(&models.User{}).Where("id = ?", c.ID).Update("suspended", true).Error)
	require.NoError(t, s.DB().Create(&models.UserBook{UserID: a.ID, BookID: 1, Status: models.BookStatusFinished}).Error)
	require.NoError(t, s.DB().Create(&models.GroupMembership{GroupID: 7, UserID: a.ID, JoinedAt: now}).Error)
	require.NoError(t, s.DB().Create(&models.GroupMembership{GroupID: 7, UserID: d.ID, JoinedAt: now}).Error)

	all, err := s.Leaderboard.Candidates(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, 3, "suspended users are excluded")
	for _, cand := range all {
		if cand.UserID == a.ID {
			assert.Equal(t, int64(1), cand.OwnedBooks)
			assert.Equal(t, int64(1), cand.GroupCount)
			require.NotNil(t, cand.LastLevelUpAt)
		}
	}

	group := uint(7)
	members, err := s.Leaderboard.Candidates(ctx, &group)
	require.NoError(t, err)
	assert.Len(t, members, 2)

	ahead, err := s.Leaderboard.CountAhead(ctx, 500, &late)
	require.NoError(t, err)
	assert.Equal(t, int64(1), ahead, "only b leveled earlier; suspended c is ignored")

	ahead, err = s.Leaderboard.CountAhead(ctx, 500, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), ahead)
}

func TestActivityRepository_WindowQueries(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	user := createTestUser(t, s, "jay")
	now := time.Date(2026, 4, 10, 15, 0, 0, 0, time.UTC)
	dayStart := time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.Activity.CreateCheckIn(ctx, &models.CheckIn{UserID: user.ID, BookID: 1, PagesRead: 30, CreatedAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, s.Activity.CreateCheckIn(ctx, &models.CheckIn{UserID: user.ID, BookID: 1, PagesRead: 50, CreatedAt: now.Add(-30 * time.Hour)}))

	count, err := s.Activity.CountCheckInsSince(ctx, user.ID, dayStart)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)

	pages, err := s.Activity.SumPagesSince(ctx, user.ID, now.AddDate(0, 0, -7))
	require.NoError(t, err)
	assert.Equal(t, int64(80), pages)

	pages, err = s.Activity.SumPagesSince(ctx, 999, dayStart)
	require.NoError(t, err)
	assert.Equal(t, int64(0), pages)

	updated, err := s.Activity.ProfileUpdatedSince(ctx, user.ID, dayStart)
	require.NoError(t, err)
	assert.False(t, updated)

	require.NoError(t, s.DB().Model(&models.User{}).Where("id = ?", user.ID).Update("profile_updated_at", now).Error)
	updated, err = s.Activity.ProfileUpdatedSince(ctx, user.ID, dayStart)
	require.NoError(t, err)
	assert.True(t, updated)
}

func TestMigrationSource_HasInitialVersion(t *testing.T) {
	src, err := MigrationSource()
	require.NoError(t, err)
	defer src.Close()

	version, err := src.First()
	require.NoError(t, err)
	assert.Equal(t, uint(1), version)
}
