package season

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/internal/service/leaderboard"
	"github.com/aimd54/shelf-progression/pkg/logger"
	"github.com/aimd54/shelf-progression/test/testdb"
)

type recordingAnnouncer struct {
	results []*RotationResult
	err     error
}

func (a *recordingAnnouncer) AnnounceSeason(_ context.Context, result *RotationResult) error {
	a.results = append(a.results, result)
	return a.err
}

type fixture struct {
	svc       *Service
	store     *repository.Store
	clock     *clockwork.FakeClock
	announcer *recordingAnnouncer
}

func setup(t *testing.T, start time.Time) *fixture {
	t.Helper()
	store := testdb.NewStore(t)
	fc := clockwork.NewFakeClockAt(start)
	announcer := &recordingAnnouncer{}
	ranker := leaderboard.NewService(store, nil, time.Minute, logger.NewNop())
	svc := NewService(store, ranker, announcer, fc, Options{Rewards: DefaultRewards(), RewardDepth: 100}, logger.NewNop())
	return &fixture{svc: svc, store: store, clock: fc, announcer: announcer}
}

func (f *fixture) countActive(t *testing.T) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.store.DB().Model(&models.Season{}).Where("is_active = ?", true).Count(&n).Error)
	return n
}

func (f *fixture) seedPlayer(t *testing.T, name string, level int, xp int64) *models.User {
	t.Helper()
	user := testdb.CreateUser(t, f.store, name, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, f.store.DB().Model(&models.ProgressionRecord{}).
		Where("user_id = ?", user.ID).
		Updates(map[string]any{"level": level, "season_xp": xp, "total_xp": xp}).Error)
	return user
}

func TestGetCurrentSeason_Idempotent(t *testing.T) {
	f := setup(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-spring", first.Name)
	assert.True(t, first.IsActive)

	second, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)

	var total int64
	require.NoError(t, f.store.DB().Model(&models.Season{}).Count(&total).Error)
	assert.Equal(t, int64(1), total)
}

func TestGetCurrentSeason_MovesToNextBucketExclusively(t *testing.T) {
	f := setup(t, time.Date(2026, 6, 20, 22, 0, 0, 0, time.UTC))
	ctx := context.Background()

	spring, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)

	f.clock.Advance(4 * time.Hour)
	summer, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)

	assert.Equal(t, "2026-summer", summer.Name)
	assert.NotEqual(t, spring.ID, summer.ID)
	assert.Equal(t, int64(1), f.countActive(t))
}

func TestGetCurrentSeason_SettlesEndedSeasonBeforeSwitching(t *testing.T) {
	f := setup(t, time.Date(2026, 6, 20, 23, 0, 0, 0, time.UTC))
	ctx := context.Background()

	spring, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	leader := f.seedPlayer(t, "leader", 4, 600)

	f.clock.Advance(65 * time.Minute)
	summer, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-summer", summer.Name)

	settled, err := f.store.Seasons.GetByID(ctx, spring.ID)
	require.NoError(t, err)
	assert.True(t, settled.RewardsIssued)
	assert.False(t, settled.IsActive)

	record, err := f.store.Progression.GetByUserID(ctx, leader.ID)
	require.NoError(t, err)
	assert.Zero(t, record.SeasonXP, "season XP is reset before the new season is handed out")
	assert.Equal(t, int64(1000), record.Coins)
	require.Len(t, f.announcer.results, 1)
	assert.Equal(t, spring.ID, f.announcer.results[0].Season.ID)

	_, err = f.svc.RotateSeason(ctx)
	assert.ErrorIs(t, err, apperr.ErrSeasonNotDue, "nothing is left for the scheduled rotation")

	again, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, summer.ID, again.ID)
	assert.Len(t, f.announcer.results, 1)
}

func TestGetCurrentSeason_ReactivatesExistingRow(t *testing.T) {
	f := setup(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	template := For(f.clock.Now())
	require.NoError(t, f.store.DB().Create(&template).Error)

	current, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, template.ID, current.ID)
	assert.True(t, current.IsActive)
}

func TestRotateSeason_NotDue(t *testing.T) {
	f := setup(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	_, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)

	_, err = f.svc.RotateSeason(ctx)
	assert.True(t, errors.Is(err, apperr.ErrSeasonNotDue))
	assert.True(t, errors.Is(err, apperr.ErrInvalidState))
}

func TestRotateSeason_PaysResetsAndAdvances(t *testing.T) {
	f := setup(t, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	spring, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)

	first := f.seedPlayer(t, "first", 12, 9000)
	second := f.seedPlayer(t, "second", 10, 7000)
	third := f.seedPlayer(t, "third", 8, 5000)
	var rest []*models.User
	for i := 0; i < 9; i++ {
		rest = append(rest, f.seedPlayer(t, fmt.Sprintf("p%02d", i), 3, int64(1000-i*10)))
	}
	idle := f.seedPlayer(t, "idle", 1, 0)

	f.clock.Advance(30 * 24 * time.Hour)
	result, err := f.svc.RotateSeason(ctx)
	require.NoError(t, err)

	assert.False(t, result.AlreadyIssued)
	assert.Equal(t, spring.ID, result.Season.ID)
	assert.Equal(t, "2026-summer", result.NextSeason.Name)
	assert.Len(t, result.Rewards, 12, "zero-XP users are not paid")
	assert.Equal(t, int64(13), result.UsersReset)

	coinsOf := func(u *models.User) int64 {
		record, err := f.store.Progression.GetByUserID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, record.Level)
		assert.Equal(t, int64(0), record.SeasonXP)
		return record.Coins
	}
	assert.Equal(t, int64(1000), coinsOf(first))
	assert.Equal(t, int64(750), coinsOf(second))
	assert.Equal(t, int64(500), coinsOf(third))
	for i, u := range rest {
		want := int64(250)
		if i >= 7 {
			want = 100
		}
		assert.Equal(t, want, coinsOf(u), "player %s", u.Username)
	}
	assert.Equal(t, int64(0), coinsOf(idle))

	record, err := f.store.Progression.GetByUserID(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(9000), record.TotalXP, "lifetime XP survives the reset")

	settled, err := f.store.Seasons.GetByID(ctx, spring.ID)
	require.NoError(t, err)
	assert.True(t, settled.Completed)
	assert.True(t, settled.RewardsIssued)
	assert.False(t, settled.IsActive)
	assert.Equal(t, int64(1), f.countActive(t))

	require.Len(t, f.announcer.results, 1)

	current, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, result.NextSeason.ID, current.ID)
}

func TestSettle_SecondRunIsNoop(t *testing.T) {
	f := setup(t, time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()

	spring, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	winner := f.seedPlayer(t, "winner", 5, 2000)

	_, err = f.svc.Settle(ctx, spring.ID)
	require.NoError(t, err)

	require.NoError(t, f.store.DB().Model(&models.ProgressionRecord{}).
		Where("user_id = ?", winner.ID).
		Updates(map[string]any{"level": 4, "season_xp": 600}).Error)

	again, err := f.svc.Settle(ctx, spring.ID)
	require.NoError(t, err)
	assert.True(t, again.AlreadyIssued)

	rewards, err := f.svc.GetSeasonRewards(ctx, spring.ID)
	require.NoError(t, err)
	assert.Len(t, rewards, 1)

	record, err := f.store.Progression.GetByUserID(ctx, winner.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), record.Coins)
	assert.Equal(t, 4, record.Level, "no second level reset")
	assert.Equal(t, int64(600), record.SeasonXP)
	assert.Len(t, f.announcer.results, 1)
}

func TestResetSeason_SettlesActiveImmediately(t *testing.T) {
	f := setup(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	ctx := context.Background()
	f.announcer.err = errors.New("webhook down")
	f.seedPlayer(t, "solo", 3, 400)

	result, err := f.svc.ResetSeason(ctx)
	require.NoError(t, err, "announcement failures do not fail the reset")
	assert.Equal(t, "2026-spring", result.Season.Name)
	assert.Equal(t, "2026-summer", result.NextSeason.Name)
	require.Len(t, result.Rewards, 1)
	assert.Equal(t, 1, result.Rewards[0].Position)

	current, err := f.svc.GetCurrentSeason(ctx)
	require.NoError(t, err)
	assert.Equal(t, "2026-summer", current.Name)

	seasons, err := f.svc.ListSeasons(ctx)
	require.NoError(t, err)
	assert.Len(t, seasons, 2)
}

func TestGetSeasonRewards_UnknownSeason(t *testing.T) {
	f := setup(t, time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC))
	_, err := f.svc.GetSeasonRewards(context.Background(), 77)
	assert.True(t, errors.Is(err, apperr.ErrNotFound))
}
