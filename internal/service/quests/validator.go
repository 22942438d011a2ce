package quests

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/clock"
	"github.com/aimd54/shelf-progression/internal/models"
)

// ActivityReader is the activity data quest predicates are evaluated against.
type ActivityReader interface {
	CountCheckInsSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	SumPagesSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	CountFinishedBooksSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	CountGroupsJoinedSince(ctx context.Context, userID uint, since time.Time) (int64, error)
	ProfileUpdatedSince(ctx context.Context, userID uint, since time.Time) (bool, error)
}

// Evaluation is the state of one quest predicate for one user.
type Evaluation struct {
	Progress int  `json:"progress"`
	Target   int  `json:"target"`
	Met      bool `json:"met"`
}

// Validator decides whether a user's activity satisfies a quest.
type Validator struct{}

// NewValidator creates a quest completion validator.
func NewValidator() *Validator {
	return &Validator{}
}

// WindowStart returns the start of the activity window for a period: the
// start of today for daily quests and the trailing seven days for weekly.
func WindowStart(period models.QuestPeriod, now time.Time) time.Time {
	if period == models.PeriodWeekly {
		return now.AddDate(0, 0, -7)
	}
	return clock.StartOfDay(now)
}

// Evaluate measures the user's progress on quest as of now.
func (v *Validator) Evaluate(ctx context.Context, activity ActivityReader, userID uint, quest *models.QuestDefinition, now time.Time) (Evaluation, error) {
	params, err := DecodeParameters(quest)
	if err != nil {
		return Evaluation{}, err
	}
	since := WindowStart(quest.Period, now)

	var progress int64
	target := 1
	switch quest.QuestType {
	case models.QuestDailyCheckIn:
		progress, err = activity.CountCheckInsSince(ctx, userID, since)
	case models.QuestReadPages:
		target = params.Pages
		progress, err = activity.SumPagesSince(ctx, userID, since)
	case models.QuestFinishBooks:
		target = params.Count
		progress, err = activity.CountFinishedBooksSince(ctx, userID, since)
	case models.QuestJoinGroup:
		progress, err = activity.CountGroupsJoinedSince(ctx, userID, since)
	case models.QuestUpdateProfile:
		var updated bool
		updated, err = activity.ProfileUpdatedSince(ctx, userID, since)
		if updated {
			progress = 1
		}
	default:
		return Evaluation{}, fmt.Errorf("quest %d has unknown type %q: %w", quest.ID, quest.QuestType, apperr.ErrConfiguration)
	}
	if err != nil {
		return Evaluation{}, fmt.Errorf("failed to evaluate quest %d for user %d: %w", quest.ID, userID, err)
	}
	if target <= 0 {
		return Evaluation{}, fmt.Errorf("quest %d has no positive target: %w", quest.ID, apperr.ErrConfiguration)
	}

	eval := Evaluation{Progress: int(progress), Target: target, Met: progress >= int64(target)}
	if eval.Progress > target {
		eval.Progress = target
	}
	return eval, nil
}
