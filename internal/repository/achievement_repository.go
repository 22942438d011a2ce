package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/aimd54/shelf-progression/internal/models"
)

const progressBatchSize = 500

// AchievementRepository handles achievements and per-user progress rows.
type AchievementRepository struct {
	db *DB
}

// NewAchievementRepository creates a new achievement repository.
func NewAchievementRepository(db *DB) *AchievementRepository {
	return &AchievementRepository{db: db}
}

// Create inserts an achievement.
func (r *AchievementRepository) Create(ctx context.Context, achievement *models.Achievement) error {
	if err := r.db.WithContext(ctx).Omit("Badge").Create(achievement).Error; err != nil {
		return fmt.Errorf("failed to create achievement %q: %w", achievement.Name, err)
	}
	return nil
}

// GetByID retrieves an achievement by ID.
func (r *AchievementRepository) GetByID(ctx context.Context, id uint) (*models.Achievement, error) {
	var achievement models.Achievement
	if err := r.db.WithContext(ctx).First(&achievement, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get achievement %d: %w", id, err)
	}
	return &achievement, nil
}

// ListIDs returns the IDs of all achievements.
func (r *AchievementRepository) ListIDs(ctx context.Context) ([]uint, error) {
	var ids []uint
	if err := r.db.WithContext(ctx).Model(&models.Achievement{}).Order("id").Pluck("id", &ids).Error; err != nil {
		return nil, fmt.Errorf("failed to list achievement ids: %w", err)
	}
	return ids, nil
}

// ListByCategory returns the achievements of a category ordered by ID.
func (r *AchievementRepository) ListByCategory(ctx context.Context, category string) ([]models.Achievement, error) {
	var achievements []models.Achievement
	err := r.db.WithContext(ctx).
		Where("category = ?", category).
		Order("id ASC").
		Find(&achievements).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list %s achievements: %w", category, err)
	}
	return achievements, nil
}

// InitProgress creates zero progress rows for every (user, achievement)
// pair that does not have one yet.
func (r *AchievementRepository) InitProgress(ctx context.Context, userIDs, achievementIDs []uint) (int64, error) {
	if len(userIDs) == 0 || len(achievementIDs) == 0 {
		return 0, nil
	}

	rows := make([]models.UserAchievementProgress, 0, len(userIDs)*len(achievementIDs))
	for _, userID := range userIDs {
		for _, achievementID := range achievementIDs {
			rows = append(rows, models.UserAchievementProgress{UserID: userID, AchievementID: achievementID})
		}
	}

	result := r.db.WithContext(ctx).
		Omit("Achievement").
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "user_id"}, {Name: "achievement_id"}},
			DoNothing: true,
		}).
		CreateInBatches(&rows, progressBatchSize)
	if result.Error != nil {
		return 0, fmt.Errorf("failed to initialize achievement progress: %w", result.Error)
	}
	return result.RowsAffected, nil
}

// GetProgressForUpdate locks one user's progress row on an achievement and
// loads the achievement with it.
func (r *AchievementRepository) GetProgressForUpdate(ctx context.Context, userID, achievementID uint) (*models.UserAchievementProgress, error) {
	var progress models.UserAchievementProgress
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ? AND achievement_id = ?", userID, achievementID).
		First(&progress).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get progress for user %d achievement %d: %w", userID, achievementID, err)
	}

	achievement, err := r.GetByID(ctx, achievementID)
	if err != nil {
		return nil, err
	}
	progress.Achievement = *achievement
	return &progress, nil
}

// SaveProgress persists progress, completion flag and completion time.
func (r *AchievementRepository) SaveProgress(ctx context.Context, progress *models.UserAchievementProgress) error {
	err := r.db.WithContext(ctx).Model(&models.UserAchievementProgress{}).
		Where("id = ?", progress.ID).
		Updates(map[string]any{
			"progress":     progress.Progress,
			"completed":    progress.Completed,
			"completed_at": progress.CompletedAt,
		}).Error
	if err != nil {
		return fmt.Errorf("failed to save achievement progress %d: %w", progress.ID, err)
	}
	return nil
}

// ListProgress returns a user's progress rows with achievements loaded.
func (r *AchievementRepository) ListProgress(ctx context.Context, userID uint) ([]models.UserAchievementProgress, error) {
	var progress []models.UserAchievementProgress
	err := r.db.WithContext(ctx).
		Preload("Achievement").
		Where("user_id = ?", userID).
		Order("achievement_id ASC").
		Find(&progress).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list achievement progress for user %d: %w", userID, err)
	}
	return progress, nil
}
