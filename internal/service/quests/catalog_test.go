package quests

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/pkg/logger"
	"github.com/aimd54/shelf-progression/test/testdb"
)

func newCatalog(t *testing.T) *Catalog {
	t.Helper()
	catalog, err := NewCatalog(testdb.NewStore(t), 16, logger.NewNop())
	require.NoError(t, err)
	return catalog
}

func TestValidateParameters(t *testing.T) {
	tests := []struct {
		name      string
		questType models.QuestType
		params    models.QuestParameters
		wantErr   bool
	}{
		{"check-in without params", models.QuestDailyCheckIn, models.QuestParameters{}, false},
		{"check-in with pages", models.QuestDailyCheckIn, models.QuestParameters{Pages: 5}, true},
		{"read pages", models.QuestReadPages, models.QuestParameters{Pages: 50}, false},
		{"read pages missing", models.QuestReadPages, models.QuestParameters{}, true},
		{"read pages with count", models.QuestReadPages, models.QuestParameters{Pages: 50, Count: 1}, true},
		{"finish books", models.QuestFinishBooks, models.QuestParameters{Count: 2}, false},
		{"finish books zero", models.QuestFinishBooks, models.QuestParameters{Count: 0}, true},
		{"join group", models.QuestJoinGroup, models.QuestParameters{}, false},
		{"update profile", models.QuestUpdateProfile, models.QuestParameters{}, false},
		{"unknown type", models.QuestType("write_review"), models.QuestParameters{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParameters(tt.questType, tt.params)
			if tt.wantErr {
				assert.ErrorIs(t, err, apperr.ErrConfiguration)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestCatalog_CreateQuest(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	quest, err := catalog.CreateQuest(ctx, QuestInput{
		Title:          "Read 50 pages",
		QuestType:      models.QuestReadPages,
		Parameters:     models.QuestParameters{Pages: 50},
		BaseXPReward:   40,
		BaseCoinReward: 20,
		Period:         models.PeriodDaily,
	})
	require.NoError(t, err)
	assert.NotZero(t, quest.ID)
	assert.True(t, quest.IsActive)

	params, err := DecodeParameters(quest)
	require.NoError(t, err)
	assert.Equal(t, 50, params.Pages)

	t.Run("duplicate title", func(t *testing.T) {
		_, err := catalog.CreateQuest(ctx, QuestInput{
			Title:     "Read 50 pages",
			QuestType: models.QuestDailyCheckIn,
			Period:    models.PeriodDaily,
		})
		assert.ErrorIs(t, err, apperr.ErrConflict)
	})

	t.Run("malformed parameters rejected eagerly", func(t *testing.T) {
		_, err := catalog.CreateQuest(ctx, QuestInput{
			Title:     "Finish nothing",
			QuestType: models.QuestFinishBooks,
			Period:    models.PeriodWeekly,
		})
		assert.ErrorIs(t, err, apperr.ErrConfiguration)

		all, err := catalog.List(ctx, "")
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})

	t.Run("unknown period", func(t *testing.T) {
		_, err := catalog.CreateQuest(ctx, QuestInput{
			Title:     "Monthly",
			QuestType: models.QuestDailyCheckIn,
			Period:    models.QuestPeriod("monthly"),
		})
		assert.ErrorIs(t, err, apperr.ErrConfiguration)
	})

	t.Run("blank title", func(t *testing.T) {
		_, err := catalog.CreateQuest(ctx, QuestInput{QuestType: models.QuestDailyCheckIn, Period: models.PeriodDaily})
		assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	})
}

func TestCatalog_GetCachesUntilChanged(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	quest, err := catalog.CreateQuest(ctx, QuestInput{Title: "Check in", QuestType: models.QuestDailyCheckIn, Period: models.PeriodDaily})
	require.NoError(t, err)

	_, err = catalog.Get(ctx, quest.ID)
	require.NoError(t, err)

	// Bypass the catalog so only the cache can answer.
	require.NoError(t, catalog.store.Quests.SetActive(ctx, quest.ID, false))
	cached, err := catalog.Get(ctx, quest.ID)
	require.NoError(t, err)
	assert.True(t, cached.IsActive)

	require.NoError(t, catalog.SetActive(ctx, quest.ID, false))
	fresh, err := catalog.Get(ctx, quest.ID)
	require.NoError(t, err)
	assert.False(t, fresh.IsActive)

	active, err := catalog.ListActive(ctx, models.PeriodDaily)
	require.NoError(t, err)
	assert.Empty(t, active)

	_, err = catalog.Get(ctx, 999)
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	assert.ErrorIs(t, catalog.SetActive(ctx, 999, true), apperr.ErrNotFound)
}

func TestCatalog_UpdateQuest(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	quest, err := catalog.CreateQuest(ctx, QuestInput{
		Title:        "Read 20 pages",
		QuestType:    models.QuestReadPages,
		Parameters:   models.QuestParameters{Pages: 20},
		BaseXPReward: 10,
		Period:       models.PeriodDaily,
	})
	require.NoError(t, err)
	_, err = catalog.Get(ctx, quest.ID)
	require.NoError(t, err)

	updated, err := catalog.UpdateQuest(ctx, quest.ID, QuestInput{
		Title:        "Read 30 pages",
		QuestType:    models.QuestReadPages,
		Parameters:   models.QuestParameters{Pages: 30},
		BaseXPReward: 15,
		Period:       models.PeriodDaily,
	})
	require.NoError(t, err)
	assert.Equal(t, quest.ID, updated.ID)

	got, err := catalog.Get(ctx, quest.ID)
	require.NoError(t, err)
	assert.Equal(t, "Read 30 pages", got.Title)
	assert.Equal(t, int64(15), got.BaseXPReward)
	assert.True(t, got.IsActive)

	_, err = catalog.UpdateQuest(ctx, quest.ID, QuestInput{Title: "Broken", QuestType: models.QuestReadPages, Period: models.PeriodDaily})
	assert.ErrorIs(t, err, apperr.ErrConfiguration)
}

const seedYAML = `
quests:
  - title: Daily check-in
    quest_type: daily_checkin
    base_xp_reward: 10
    base_coin_reward: 5
    period: daily
  - title: Weekly bookworm
    quest_type: finish_books
    parameters:
      count: 2
    base_xp_reward: 150
    base_coin_reward: 60
    period: weekly
  - title: Retired
    quest_type: join_group
    period: daily
    is_active: false
`

func TestCatalog_Seed(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	n, err := catalog.Seed(ctx, strings.NewReader(seedYAML))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Re-seeding updates by title instead of duplicating.
	n, err = catalog.Seed(ctx, strings.NewReader(strings.Replace(seedYAML, "count: 2", "count: 3", 1)))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	all, err := catalog.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	weekly, err := catalog.ListActive(ctx, models.PeriodWeekly)
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	params, err := DecodeParameters(&weekly[0])
	require.NoError(t, err)
	assert.Equal(t, 3, params.Count)

	daily, err := catalog.ListActive(ctx, models.PeriodDaily)
	require.NoError(t, err)
	require.Len(t, daily, 1)
	assert.Equal(t, "Daily check-in", daily[0].Title)
}

func TestCatalog_SeedRejectsWholeDocument(t *testing.T) {
	catalog := newCatalog(t)
	ctx := context.Background()

	bad := seedYAML + `
  - title: Broken
    quest_type: read_pages
    period: daily
`
	_, err := catalog.Seed(ctx, strings.NewReader(bad))
	assert.ErrorIs(t, err, apperr.ErrConfiguration)

	all, err := catalog.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)

	_, err = catalog.SeedFile(ctx, "does-not-exist.yaml")
	assert.Error(t, err)
}
