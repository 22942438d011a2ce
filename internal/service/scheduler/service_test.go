package scheduler

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/config"
	prommetrics "github.com/aimd54/shelf-progression/internal/metrics"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/service/quests"
	"github.com/aimd54/shelf-progression/internal/service/season"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

type mockJobs struct {
	dailyReport  *quests.RefreshReport
	dailyErr     error
	weeklyReport *quests.RefreshReport
	rotation     *season.RotationResult
	rotationErr  error
	daily        int
	weekly       int
	rotations    int
	forced       bool
}

func (m *mockJobs) RefreshDailyQuests(context.Context) (*quests.RefreshReport, error) {
	m.daily++
	return m.dailyReport, m.dailyErr
}

func (m *mockJobs) RefreshWeeklyQuests(context.Context) (*quests.RefreshReport, error) {
	m.weekly++
	return m.weeklyReport, nil
}

func (m *mockJobs) RotateSeason(_ context.Context, force bool) (*season.RotationResult, error) {
	m.rotations++
	m.forced = m.forced || force
	return m.rotation, m.rotationErr
}

func runs(job, status string) float64 {
	return testutil.ToFloat64(prommetrics.SchedulerJobRunsTotal.WithLabelValues(job, status))
}

func TestValidateSpecs(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.SchedulerConfig
		wantErr bool
	}{
		{
			name: "defaults",
			cfg: config.SchedulerConfig{
				DailyQuestsSpec:    "0 0 * * *",
				WeeklyQuestsSpec:   "0 0 * * 1",
				SeasonRotationSpec: "5 0 * * *",
			},
		},
		{
			name: "empty specs disable jobs",
			cfg:  config.SchedulerConfig{},
		},
		{
			name:    "invalid expression",
			cfg:     config.SchedulerConfig{DailyQuestsSpec: "every day"},
			wantErr: true,
		},
		{
			name:    "out of range minute",
			cfg:     config.SchedulerConfig{SeasonRotationSpec: "61 0 * * *"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSpecs(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunDailyQuests_Statuses(t *testing.T) {
	prommetrics.SchedulerJobRunsTotal.Reset()
	jobs := &mockJobs{dailyReport: &quests.RefreshReport{Period: models.PeriodDaily, Users: 3, Assigned: 15}}
	s := NewService(config.SchedulerConfig{}, jobs, logger.NewNop())

	s.runDailyQuests(context.Background())
	assert.Equal(t, float64(1), runs(JobDailyQuests, "success"))

	jobs.dailyReport = &quests.RefreshReport{Period: models.PeriodDaily, Users: 3, Assigned: 10, Failed: 1}
	s.runDailyQuests(context.Background())
	assert.Equal(t, float64(1), runs(JobDailyQuests, "partial"))

	jobs.dailyReport, jobs.dailyErr = nil, errors.New("database unavailable")
	s.runDailyQuests(context.Background())
	assert.Equal(t, float64(1), runs(JobDailyQuests, "error"))
	assert.Equal(t, 3, jobs.daily)
}

func TestRunWeeklyQuests(t *testing.T) {
	prommetrics.SchedulerJobRunsTotal.Reset()
	jobs := &mockJobs{weeklyReport: &quests.RefreshReport{Period: models.PeriodWeekly}}
	s := NewService(config.SchedulerConfig{}, jobs, logger.NewNop())

	s.runWeeklyQuests(context.Background())
	assert.Equal(t, 1, jobs.weekly)
	assert.Equal(t, float64(1), runs(JobWeeklyQuests, "success"))
}

func TestRunSeasonRotation(t *testing.T) {
	prommetrics.SchedulerJobRunsTotal.Reset()
	jobs := &mockJobs{rotationErr: apperr.ErrSeasonNotDue}
	s := NewService(config.SchedulerConfig{}, jobs, logger.NewNop())

	s.runSeasonRotation(context.Background())
	assert.Equal(t, float64(1), runs(JobSeasonRotation, "not_due"))

	jobs.rotationErr = nil
	jobs.rotation = &season.RotationResult{Season: &models.Season{Name: "2026-winter"}, Rewards: []season.Payout{{UserID: 1, Position: 1, Coins: 1000}}}
	s.runSeasonRotation(context.Background())
	assert.Equal(t, float64(1), runs(JobSeasonRotation, "success"))

	jobs.rotation = &season.RotationResult{Season: &models.Season{Name: "2026-winter"}, AlreadyIssued: true}
	s.runSeasonRotation(context.Background())
	assert.Equal(t, float64(1), runs(JobSeasonRotation, "already_issued"))

	jobs.rotation, jobs.rotationErr = nil, errors.New("lock timeout")
	s.runSeasonRotation(context.Background())
	assert.Equal(t, float64(1), runs(JobSeasonRotation, "error"))

	assert.False(t, jobs.forced, "scheduled rotation never forces")
}

func TestStart(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := NewService(config.SchedulerConfig{Enabled: false}, &mockJobs{}, logger.NewNop())
		require.NoError(t, s.Start())
		assert.Nil(t, s.cron)
		s.Stop()
	})

	t.Run("invalid timezone", func(t *testing.T) {
		s := NewService(config.SchedulerConfig{Enabled: true, Timezone: "Mars/Olympus"}, &mockJobs{}, logger.NewNop())
		assert.Error(t, s.Start())
	})

	t.Run("invalid spec", func(t *testing.T) {
		s := NewService(config.SchedulerConfig{Enabled: true, Timezone: "UTC", DailyQuestsSpec: "nope"}, &mockJobs{}, logger.NewNop())
		assert.Error(t, s.Start())
	})

	t.Run("registers configured jobs", func(t *testing.T) {
		s := NewService(config.SchedulerConfig{
			Enabled:            true,
			Timezone:           "Europe/Paris",
			DailyQuestsSpec:    "0 0 * * *",
			SeasonRotationSpec: "5 0 * * *",
		}, &mockJobs{}, logger.NewNop())
		require.NoError(t, s.Start())
		defer s.Stop()
		assert.Len(t, s.cron.Entries(), 2)
	})
}
