package quests

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/clock"
	"github.com/aimd54/shelf-progression/internal/metrics"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/internal/service/leveling"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// XPGranter credits quest XP inside the completion transaction.
type XPGranter interface {
	AddXPTx(ctx context.Context, tx *repository.Store, season *models.Season, userID uint, amount int64) (*leveling.XPResult, error)
}

// SeasonProvider resolves the season quest coins are capped against.
type SeasonProvider interface {
	GetCurrentSeason(ctx context.Context) (*models.Season, error)
}

// Shuffler randomizes candidate order. *rand.Rand satisfies it but is not
// safe for concurrent use; ShuffleFunc(rand.Shuffle) is.
type Shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// ShuffleFunc adapts a plain function to Shuffler.
type ShuffleFunc func(n int, swap func(i, j int))

// Shuffle calls f.
func (f ShuffleFunc) Shuffle(n int, swap func(i, j int)) {
	f(n, swap)
}

// Options tune quest assignment.
type Options struct {
	DailyPoolSize      int
	WeeklyPoolSize     int
	DailyRecencyDays   int
	WeeklyRecencyDays  int
	SeasonCoinCap      int64
	RefreshConcurrency int
}

// DefaultOptions returns the stock pool sizes, recency windows and coin cap.
func DefaultOptions() Options {
	return Options{
		DailyPoolSize:      5,
		WeeklyPoolSize:     10,
		DailyRecencyDays:   3,
		WeeklyRecencyDays:  14,
		SeasonCoinCap:      1000,
		RefreshConcurrency: 8,
	}
}

func (o Options) poolSize(period models.QuestPeriod) int {
	if period == models.PeriodWeekly {
		return o.WeeklyPoolSize
	}
	return o.DailyPoolSize
}

func (o Options) recency(period models.QuestPeriod) time.Duration {
	days := o.DailyRecencyDays
	if period == models.PeriodWeekly {
		days = o.WeeklyRecencyDays
	}
	return time.Duration(days) * 24 * time.Hour
}

func expiresAt(period models.QuestPeriod, now time.Time) time.Time {
	if period == models.PeriodWeekly {
		return clock.EndOfISOWeek(now)
	}
	return clock.EndOfDay(now)
}

// ActiveQuest is an open assignment with its live progress.
type ActiveQuest struct {
	Assignment models.UserQuestAssignment `json:"assignment"`
	Evaluation Evaluation                 `json:"evaluation"`
}

// CompletionResult describes a completed quest.
type CompletionResult struct {
	Assignment   models.UserQuestAssignment `json:"assignment"`
	XP           *leveling.XPResult         `json:"xp"`
	CoinsAwarded int64                      `json:"coins_awarded"`
	CoinsCapped  bool                       `json:"coins_capped"`
}

// RefreshReport summarizes a batch refresh.
type RefreshReport struct {
	Period   models.QuestPeriod `json:"period"`
	Users    int                `json:"users"`
	Assigned int                `json:"assigned"`
	Failed   int                `json:"failed"`
	Purged   int64              `json:"purged"`
}

// Engine assigns quests to users and completes them.
type Engine struct {
	store     *repository.Store
	catalog   *Catalog
	validator *Validator
	xp        XPGranter
	seasons   SeasonProvider
	clock     clock.Clock
	shuffler  Shuffler
	opts      Options
	log       *logger.Logger
}

// NewEngine creates a quest assignment engine. A nil shuffler uses the
// package-level math/rand/v2 source.
func NewEngine(
	store *repository.Store,
	catalog *Catalog,
	validator *Validator,
	xp XPGranter,
	seasons SeasonProvider,
	clk clock.Clock,
	shuffler Shuffler,
	opts Options,
	log *logger.Logger,
) *Engine {
	if shuffler == nil {
		shuffler = ShuffleFunc(rand.Shuffle)
	}
	if opts.RefreshConcurrency <= 0 {
		opts.RefreshConcurrency = 1
	}
	return &Engine{
		store:     store,
		catalog:   catalog,
		validator: validator,
		xp:        xp,
		seasons:   seasons,
		clock:     clk,
		shuffler:  shuffler,
		opts:      opts,
		log:       log,
	}
}

// AssignQuests tops the user's open assignments for period up to the pool
// size and returns every open assignment of that period.
func (e *Engine) AssignQuests(ctx context.Context, userID uint, period models.QuestPeriod) ([]models.UserQuestAssignment, error) {
	assignments, _, err := e.assign(ctx, userID, period)
	return assignments, err
}

func (e *Engine) assign(ctx context.Context, userID uint, period models.QuestPeriod) ([]models.UserQuestAssignment, int, error) {
	if !period.Valid() {
		return nil, 0, fmt.Errorf("unknown period %q: %w", period, apperr.ErrInvalidArgument)
	}

	pool := e.opts.poolSize(period)
	catalog, err := e.catalog.ListActive(ctx, period)
	if err != nil {
		return nil, 0, err
	}
	if len(catalog) < pool {
		e.log.Warn().
			Str("period", string(period)).
			Int("active_quests", len(catalog)).
			Int("pool_size", pool).
			Msg("Quest catalog is smaller than the pool size")
	}

	now := e.clock.Now()
	var (
		assignments []models.UserQuestAssignment
		created     int
	)
	err = e.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Progression.GetForUpdate(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("progression for user %d: %w", userID, apperr.ErrNotFound)
			}
			return err
		}

		if _, err := tx.Assignments.DeleteExpiredForUser(ctx, userID, now); err != nil {
			return err
		}

		open, err := tx.Assignments.ListActive(ctx, userID, period, now)
		if err != nil {
			return err
		}
		need := pool - len(open)
		if need <= 0 {
			assignments = open
			return nil
		}

		activeIDs, err := tx.Assignments.ActiveQuestIDs(ctx, userID)
		if err != nil {
			return err
		}
		recentIDs, err := tx.Assignments.CompletedQuestIDsSince(ctx, userID, now.Add(-e.opts.recency(period)))
		if err != nil {
			return err
		}

		picks := e.pick(catalog, need, toSet(activeIDs), toSet(recentIDs))
		for _, quest := range picks {
			ok, err := tx.Assignments.Create(ctx, &models.UserQuestAssignment{
				UserID:     userID,
				QuestID:    quest.ID,
				Period:     period,
				AssignedAt: now,
				ExpiresAt:  expiresAt(period, now),
			})
			if err != nil {
				return err
			}
			if ok {
				created++
			}
		}

		assignments, err = tx.Assignments.ListActive(ctx, userID, period, now)
		return err
	})
	if err != nil {
		return nil, 0, err
	}

	metrics.RecordQuestsAssigned(string(period), created)
	if created > 0 {
		e.log.Debug().
			Uint("user_id", userID).
			Str("period", string(period)).
			Int("assigned", created).
			Msg("Quests assigned")
	}
	return assignments, created, nil
}

// pick draws up to need quests, preferring ones the user neither holds nor
// recently completed and falling back to recently completed ones.
func (e *Engine) pick(catalog []models.QuestDefinition, need int, active, recent map[uint]struct{}) []models.QuestDefinition {
	var fresh, stale []models.QuestDefinition
	for _, quest := range catalog {
		if _, ok := active[quest.ID]; ok {
			continue
		}
		if _, ok := recent[quest.ID]; ok {
			stale = append(stale, quest)
			continue
		}
		fresh = append(fresh, quest)
	}

	candidates := fresh
	if len(fresh) < need {
		candidates = append(fresh, stale...)
	}
	e.shuffler.Shuffle(len(candidates), func(i, j int) {
		candidates[i], candidates[j] = candidates[j], candidates[i]
	})
	if len(candidates) > need {
		candidates = candidates[:need]
	}
	return candidates
}

func toSet(ids []uint) map[uint]struct{} {
	set := make(map[uint]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// CompleteQuest validates and pays out the user's open assignment of questID.
func (e *Engine) CompleteQuest(ctx context.Context, questID, userID uint) (*CompletionResult, error) {
	season, err := e.seasons.GetCurrentSeason(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve current season: %w", err)
	}
	quest, err := e.catalog.Get(ctx, questID)
	if err != nil {
		return nil, err
	}

	now := e.clock.Now()
	result := &CompletionResult{}
	err = e.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		if _, err := tx.Progression.GetForUpdate(ctx, userID); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("progression for user %d: %w", userID, apperr.ErrNotFound)
			}
			return err
		}

		assignment, err := tx.Assignments.FindOpenForUpdate(ctx, userID, questID, now)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				metrics.RecordQuestCompletionRejected("not_assigned")
				return fmt.Errorf("open assignment of quest %d for user %d: %w", questID, userID, apperr.ErrNotFound)
			}
			return err
		}

		eval, err := e.validator.Evaluate(ctx, tx.Activity, userID, quest, now)
		if err != nil {
			return err
		}
		if !eval.Met {
			metrics.RecordQuestCompletionRejected("requirement_not_met")
			return fmt.Errorf("quest %d progress %d/%d: %w", questID, eval.Progress, eval.Target, apperr.ErrRequirementNotMet)
		}

		earned, err := tx.Assignments.SumCoinsForSeason(ctx, userID, season.ID)
		if err != nil {
			return err
		}
		coins := min(quest.BaseCoinReward, max(0, e.opts.SeasonCoinCap-earned))

		assignment.Progress = eval.Target
		assignment.CompletedAt = &now
		assignment.SeasonID = &season.ID
		assignment.XPEarned = quest.BaseXPReward
		assignment.CoinsEarned = coins
		if err := tx.Assignments.MarkCompleted(ctx, assignment); err != nil {
			return err
		}

		xp, err := e.xp.AddXPTx(ctx, tx, season, userID, quest.BaseXPReward)
		if err != nil {
			return err
		}
		if coins > 0 {
			if err := tx.Progression.AddCoins(ctx, userID, coins); err != nil {
				return err
			}
		}

		assignment.Quest = *quest
		result.Assignment = *assignment
		result.XP = xp
		result.CoinsAwarded = coins
		result.CoinsCapped = coins < quest.BaseCoinReward
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RecordQuestCompleted(string(quest.Period), string(quest.QuestType))
	metrics.RecordXPGranted("quest", quest.BaseXPReward)
	metrics.RecordCoinsAwarded("quest", result.CoinsAwarded)
	e.log.Info().
		Uint("user_id", userID).
		Uint("quest_id", questID).
		Int64("xp", quest.BaseXPReward).
		Int64("coins", result.CoinsAwarded).
		Bool("coins_capped", result.CoinsCapped).
		Msg("Quest completed")

	return result, nil
}

// ListActive returns the user's open assignments for period with live progress.
func (e *Engine) ListActive(ctx context.Context, userID uint, period models.QuestPeriod) ([]ActiveQuest, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("unknown period %q: %w", period, apperr.ErrInvalidArgument)
	}

	now := e.clock.Now()
	assignments, err := e.store.Assignments.ListActive(ctx, userID, period, now)
	if err != nil {
		return nil, err
	}

	active := make([]ActiveQuest, 0, len(assignments))
	for _, assignment := range assignments {
		eval, err := e.validator.Evaluate(ctx, e.store.Activity, userID, &assignment.Quest, now)
		if err != nil {
			return nil, err
		}
		active = append(active, ActiveQuest{Assignment: assignment, Evaluation: eval})
	}
	return active, nil
}

// RefreshAllUsers purges expired assignments and tops up every active user's
// pool for period. Per-user failures are counted and logged, never fatal.
func (e *Engine) RefreshAllUsers(ctx context.Context, period models.QuestPeriod) (*RefreshReport, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("unknown period %q: %w", period, apperr.ErrInvalidArgument)
	}

	start := time.Now()
	purged, err := e.store.Assignments.DeleteExpired(ctx, e.clock.Now())
	if err != nil {
		return nil, err
	}
	userIDs, err := e.store.Users.ListActiveIDs(ctx)
	if err != nil {
		return nil, err
	}

	var assigned, failed atomic.Int64
	var g errgroup.Group
	g.SetLimit(e.opts.RefreshConcurrency)
	for _, userID := range userIDs {
		g.Go(func() error {
			if ctx.Err() != nil {
				failed.Add(1)
				return nil
			}
			_, created, err := e.assign(ctx, userID, period)
			if err != nil {
				failed.Add(1)
				e.log.Error().
					Err(err).
					Uint("user_id", userID).
					Str("period", string(period)).
					Msg("Failed to refresh quests for user")
				return nil
			}
			assigned.Add(int64(created))
			return nil
		})
	}
	_ = g.Wait()

	report := &RefreshReport{
		Period:   period,
		Users:    len(userIDs),
		Assigned: int(assigned.Load()),
		Failed:   int(failed.Load()),
		Purged:   purged,
	}
	metrics.SetQuestRefreshResult(string(period), report.Users-report.Failed, report.Failed)

	e.log.Info().
		Str("period", string(period)).
		Int("users", report.Users).
		Int("assigned", report.Assigned).
		Int("failed", report.Failed).
		Int64("purged", report.Purged).
		Dur("duration", time.Since(start)).
		Msg("Quest refresh completed")

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}
