package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/shelf-progression/internal/models"
)

// AssignmentRepository handles user quest assignments.
type AssignmentRepository struct {
	db *DB
}

// NewAssignmentRepository creates a new assignment repository.
func NewAssignmentRepository(db *DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

// Create inserts an open assignment. It reports false without error when an
// open assignment for the same (user, quest) already exists.
func (r *AssignmentRepository) Create(ctx context.Context, assignment *models.UserQuestAssignment) (bool, error) {
	if assignment.ActiveKey == nil {
		key := models.ActiveKeyFor(assignment.UserID, assignment.QuestID)
		assignment.ActiveKey = &key
	}
	result := r.db.WithContext(ctx).
		Omit("Quest").
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(assignment)
	if result.Error != nil {
		return false, fmt.Errorf("failed to create assignment for user %d quest %d: %w",
			assignment.UserID, assignment.QuestID, result.Error)
	}
	return result.RowsAffected == 1, nil
}

// DeleteExpiredForUser removes a user's expired assignments that were never
// completed. Completed rows are kept as history.
func (r *AssignmentRepository) DeleteExpiredForUser(ctx context.Context, userID uint, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("user_id = ? AND expires_at < ? AND completed = ?", userID, now, false).
		Delete(&models.UserQuestAssignment{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired assignments for user %d: %w", userID, result.Error)
	}
	return result.RowsAffected, nil
}

// DeleteExpired removes every expired uncompleted assignment.
func (r *AssignmentRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("expires_at < ? AND completed = ?", now, false).
		Delete(&models.UserQuestAssignment{})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to delete expired assignments: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// ListActive returns a user's open, unexpired assignments for a period with
// their quest definitions loaded.
func (r *AssignmentRepository) ListActive(ctx context.Context, userID uint, period models.QuestPeriod, now time.Time) ([]models.UserQuestAssignment, error) {
	var assignments []models.UserQuestAssignment
	err := r.db.WithContext(ctx).
		Preload("Quest").
		Where("user_id = ? AND period = ? AND completed = ? AND expires_at >= ?", userID, period, false, now).
		Order("id ASC").
		Find(&assignments).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active assignments for user %d: %w", userID, err)
	}
	return assignments, nil
}

// ActiveQuestIDs returns the quest IDs a user currently holds open in any period.
func (r *AssignmentRepository) ActiveQuestIDs(ctx context.Context, userID uint) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.UserQuestAssignment{}).
		Where("user_id = ? AND active_key IS NOT NULL", userID).
		Pluck("quest_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active quest ids for user %d: %w", userID, err)
	}
	return ids, nil
}

// CompletedQuestIDsSince returns quest IDs the user completed at or after since.
func (r *AssignmentRepository) CompletedQuestIDsSince(ctx context.Context, userID uint, since time.Time) ([]uint, error) {
	var ids []uint
	err := r.db.WithContext(ctx).Model(&models.UserQuestAssignment{}).
		Distinct("quest_id").
		Where("user_id = ? AND completed = ? AND completed_at >= ?", userID, true, since).
		Pluck("quest_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list completed quest ids for user %d: %w", userID, err)
	}
	return ids, nil
}

// FindOpenForUpdate locks the user's open, unexpired assignment of questID.
func (r *AssignmentRepository) FindOpenForUpdate(ctx context.Context, userID, questID uint, now time.Time) (*models.UserQuestAssignment, error) {
	var assignment models.UserQuestAssignment
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("active_key = ? AND completed = ? AND expires_at >= ?",
			models.ActiveKeyFor(userID, questID), false, now).
		First(&assignment).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find open assignment for user %d quest %d: %w", userID, questID, err)
	}
	return &assignment, nil
}

// MarkCompleted records a completion and releases the active key.
func (r *AssignmentRepository) MarkCompleted(ctx context.Context, assignment *models.UserQuestAssignment) error {
	err := r.db.WithContext(ctx).Model(&models.UserQuestAssignment{}).
		Where("id = ?", assignment.ID).
		Updates(map[string]any{
			"progress":     assignment.Progress,
			"completed":    true,
			"completed_at": assignment.CompletedAt,
			"season_id":    assignment.SeasonID,
			"xp_earned":    assignment.XPEarned,
			"coins_earned": assignment.CoinsEarned,
			"active_key":   nil,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to complete assignment %d: %w", assignment.ID, err)
	}
	assignment.Completed = true
	assignment.ActiveKey = nil
	return nil
}

// SumCoinsForSeason totals coins the user earned from quests completed while
// seasonID was the current season.
func (r *AssignmentRepository) SumCoinsForSeason(ctx context.Context, userID, seasonID uint) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.UserQuestAssignment{}).
		Select("COALESCE(SUM(coins_earned), 0)").
		Where("user_id = ? AND completed = ? AND season_id = ?", userID, true, seasonID).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum quest coins for user %d: %w", userID, err)
	}
	return total, nil
}
