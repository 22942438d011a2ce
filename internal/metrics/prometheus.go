// Package metrics provides Prometheus exporters for application metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the progression engine.
var (
	// Counters.
	XPGrantedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_xp_granted_total",
			Help: "Total XP granted, by source",
		},
		[]string{"source"},
	)

	LevelUpsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "progression_level_ups_total",
			Help: "Total number of levels gained",
		},
	)

	CoinsAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progression_coins_awarded_total",
			Help: "Total coins awarded, by source",
		},
		[]string{"source"},
	)

	QuestsAssignedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quests_assigned_total",
			Help: "Total number of quest assignments created",
		},
		[]string{"period"},
	)

	QuestsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quests_completed_total",
			Help: "Total number of quests completed",
		},
		[]string{"period", "quest_type"},
	)

	QuestCompletionRejectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "quest_completion_rejected_total",
			Help: "Total number of quest completion attempts rejected",
		},
		[]string{"reason"},
	)

	AchievementsCompletedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "achievements_completed_total",
			Help: "Total number of achievements completed",
		},
		[]string{"category"},
	)

	BadgesAwardedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "badges_awarded_total",
			Help: "Total number of badges awarded",
		},
		[]string{"badge"},
	)

	SeasonRotationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "season_rotations_total",
			Help: "Total number of season rotations by outcome",
		},
		[]string{"status"},
	)

	LeaderboardCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leaderboard_cache_requests_total",
			Help: "Leaderboard cache lookups by result",
		},
		[]string{"result"},
	)

	SchedulerJobRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "scheduler_job_runs_total",
			Help: "Total number of scheduler job runs",
		},
		[]string{"job", "status"},
	)

	// Gauges.
	QuestRefreshLastUsers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "quest_refresh_last_users",
			Help: "Users processed by the last quest refresh",
		},
		[]string{"period", "outcome"},
	)

	SchedulerLastRunTimestamp = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "scheduler_last_run_timestamp",
			Help: "Timestamp of last scheduler job run",
		},
		[]string{"job"},
	)

	// Histograms.
	SchedulerJobDurationSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "scheduler_job_duration_seconds",
			Help:    "Duration of scheduler job execution",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12), // 100ms to ~7min
		},
		[]string{"job"},
	)

	SeasonPayoutCoins = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "season_payout_coins",
			Help:    "Total coins paid out per season settlement",
			Buckets: prometheus.ExponentialBuckets(1000, 2, 10),
		},
	)
)

// RecordXPGranted records XP granted from a source.
func RecordXPGranted(source string, amount int64) {
	XPGrantedTotal.WithLabelValues(source).Add(float64(amount))
}

// RecordLevelUps records levels gained in one grant.
func RecordLevelUps(levels int) {
	if levels > 0 {
		LevelUpsTotal.Add(float64(levels))
	}
}

// RecordCoinsAwarded records coins paid from a source.
func RecordCoinsAwarded(source string, amount int64) {
	if amount > 0 {
		CoinsAwardedTotal.WithLabelValues(source).Add(float64(amount))
	}
}

// RecordQuestsAssigned records new assignments for a period.
func RecordQuestsAssigned(period string, count int) {
	if count > 0 {
		QuestsAssignedTotal.WithLabelValues(period).Add(float64(count))
	}
}

// RecordQuestCompleted records a quest completion.
func RecordQuestCompleted(period, questType string) {
	QuestsCompletedTotal.WithLabelValues(period, questType).Inc()
}

// RecordQuestCompletionRejected records a rejected completion attempt.
func RecordQuestCompletionRejected(reason string) {
	QuestCompletionRejectedTotal.WithLabelValues(reason).Inc()
}

// RecordAchievementCompleted records an achievement completion.
func RecordAchievementCompleted(category string) {
	AchievementsCompletedTotal.WithLabelValues(category).Inc()
}

// RecordBadgeAwarded records a badge being awarded.
func RecordBadgeAwarded(badgeName string) {
	BadgesAwardedTotal.WithLabelValues(badgeName).Inc()
}

// RecordSeasonRotation records a rotation attempt outcome.
func RecordSeasonRotation(status string) {
	SeasonRotationsTotal.WithLabelValues(status).Inc()
}

// ObserveSeasonPayout records the coins paid by one settlement.
func ObserveSeasonPayout(coins int64) {
	SeasonPayoutCoins.Observe(float64(coins))
}

// RecordLeaderboardCache records a cache hit or miss.
func RecordLeaderboardCache(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	LeaderboardCacheTotal.WithLabelValues(result).Inc()
}

// SetQuestRefreshResult records the per-outcome user counts of a refresh.
func SetQuestRefreshResult(period string, succeeded, failed int) {
	QuestRefreshLastUsers.WithLabelValues(period, "succeeded").Set(float64(succeeded))
	QuestRefreshLastUsers.WithLabelValues(period, "failed").Set(float64(failed))
}

// RecordSchedulerJobRun records a scheduler job execution.
func RecordSchedulerJobRun(job, status string) {
	SchedulerJobRunsTotal.WithLabelValues(job, status).Inc()
}

// SetSchedulerLastRun sets the timestamp of the last job run.
func SetSchedulerLastRun(job string) {
	SchedulerLastRunTimestamp.WithLabelValues(job).SetToCurrentTime()
}

// ObserveSchedulerJobDuration records job execution duration.
func ObserveSchedulerJobDuration(job string, seconds float64) {
	SchedulerJobDurationSeconds.WithLabelValues(job).Observe(seconds)
}
