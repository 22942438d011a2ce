// Package scheduler runs the periodic quest refresh and season rotation jobs.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/config"
	prommetrics "github.com/aimd54/shelf-progression/internal/metrics"
	"github.com/aimd54/shelf-progression/internal/service/quests"
	"github.com/aimd54/shelf-progression/internal/service/season"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// Job names used in logs and metrics.
const (
	JobDailyQuests    = "daily_quests"
	JobWeeklyQuests   = "weekly_quests"
	JobSeasonRotation = "season_rotation"
)

// Jobs is the work the scheduler triggers.
type Jobs interface {
	RefreshDailyQuests(ctx context.Context) (*quests.RefreshReport, error)
	RefreshWeeklyQuests(ctx context.Context) (*quests.RefreshReport, error)
	RotateSeason(ctx context.Context, force bool) (*season.RotationResult, error)
}

// Service handles background job scheduling.
type Service struct {
	config config.SchedulerConfig
	jobs   Jobs
	log    *logger.Logger
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewService creates a new scheduler service.
func NewService(cfg config.SchedulerConfig, jobs Jobs, log *logger.Logger) *Service {
	return &Service{
		config: cfg,
		jobs:   jobs,
		log:    log,
	}
}

// Start initializes and starts the cron scheduler.
func (s *Service) Start() error {
	if !s.config.Enabled {
		s.log.Info().Msg("Scheduler is disabled in configuration")
		return nil
	}

	location, err := s.config.GetLocation()
	if err != nil {
		return fmt.Errorf("invalid timezone %q: %w", s.config.Timezone, err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.cron = cron.New(cron.WithLocation(location), cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))

	jobs := []struct {
		name string
		spec string
		run  func(context.Context)
	}{
		{JobDailyQuests, s.config.DailyQuestsSpec, s.runDailyQuests},
		{JobWeeklyQuests, s.config.WeeklyQuestsSpec, s.runWeeklyQuests},
		{JobSeasonRotation, s.config.SeasonRotationSpec, s.runSeasonRotation},
	}
	for _, job := range jobs {
		if job.spec == "" {
			s.log.Warn().Str("job", job.name).Msg("No schedule configured, job disabled")
			continue
		}
		if _, err := s.cron.AddFunc(job.spec, func() { job.run(s.ctx) }); err != nil {
			s.cancel()
			return fmt.Errorf("failed to register %s job: %w", job.name, err)
		}
		s.log.Info().Str("job", job.name).Str("schedule", job.spec).Msg("Job registered")
	}

	s.cron.Start()

	entries := s.cron.Entries()
	nextRun := ""
	if len(entries) > 0 {
		nextRun = entries[0].Next.Format(time.RFC3339)
	}
	s.log.Info().
		Str("timezone", s.config.Timezone).
		Int("jobs", len(entries)).
		Str("next_run", nextRun).
		Msg("Scheduler started successfully")

	return nil
}

// Stop gracefully shuts down the scheduler, waiting for running jobs.
func (s *Service) Stop() {
	if s.cron != nil {
		s.cancel()
		ctx := s.cron.Stop()
		<-ctx.Done()
		s.log.Info().Msg("Scheduler stopped")
	}
}

// ValidateSpecs checks every configured cron expression.
func ValidateSpecs(cfg config.SchedulerConfig) error {
	for name, spec := range map[string]string{
		JobDailyQuests:    cfg.DailyQuestsSpec,
		JobWeeklyQuests:   cfg.WeeklyQuestsSpec,
		JobSeasonRotation: cfg.SeasonRotationSpec,
	} {
		if spec == "" {
			continue
		}
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("invalid %s schedule %q: %w", name, spec, err)
		}
	}
	return nil
}

// track records duration, last run and outcome of a job run.
func (s *Service) track(job string, run func() (string, error)) {
	start := time.Now()
	defer func() {
		prommetrics.ObserveSchedulerJobDuration(job, time.Since(start).Seconds())
		prommetrics.SetSchedulerLastRun(job)
	}()

	s.log.Info().Str("job", job).Msg("Running scheduled job")
	status, err := run()
	prommetrics.RecordSchedulerJobRun(job, status)
	if err != nil {
		s.log.Error().
			Err(err).
			Str("job", job).
			Dur("duration", time.Since(start)).
			Msg("Scheduled job failed")
		return
	}
	s.log.Info().
		Str("job", job).
		Str("status", status).
		Dur("duration", time.Since(start)).
		Msg("Scheduled job completed")
}

func refreshStatus(report *quests.RefreshReport, err error) (string, error) {
	if err != nil {
		return "error", err
	}
	if report.Failed > 0 {
		return "partial", nil
	}
	return "success", nil
}

// runDailyQuests executes the daily quest refresh.
func (s *Service) runDailyQuests(ctx context.Context) {
	s.track(JobDailyQuests, func() (string, error) {
		return refreshStatus(s.jobs.RefreshDailyQuests(ctx))
	})
}

// runWeeklyQuests executes the weekly quest refresh.
func (s *Service) runWeeklyQuests(ctx context.Context) {
	s.track(JobWeeklyQuests, func() (string, error) {
		return refreshStatus(s.jobs.RefreshWeeklyQuests(ctx))
	})
}

// runSeasonRotation settles any season that has ended. Nothing being due is
// the normal case on most days.
func (s *Service) runSeasonRotation(ctx context.Context) {
	s.track(JobSeasonRotation, func() (string, error) {
		result, err := s.jobs.RotateSeason(ctx, false)
		switch {
		case errors.Is(err, apperr.ErrSeasonNotDue):
			return "not_due", nil
		case err != nil:
			return "error", err
		case result.AlreadyIssued:
			return "already_issued", nil
		}
		s.log.Info().
			Str("season", result.Season.Name).
			Int("rewards", len(result.Rewards)).
			Msg("Season rotated")
		return "success", nil
	})
}
