package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/shelf-progression/internal/models"
)

// ProgressionRepository handles progression record persistence.
type ProgressionRepository struct {
	db *DB
}

// NewProgressionRepository creates a new progression repository.
func NewProgressionRepository(db *DB) *ProgressionRepository {
	return &ProgressionRepository{db: db}
}

// CreateIfMissing inserts a fresh level-1 record for userID unless one exists.
// It reports whether a row was created.
func (r *ProgressionRepository) CreateIfMissing(ctx context.Context, userID uint) (*models.ProgressionRecord, bool, error) {
	record := &models.ProgressionRecord{UserID: userID, Level: 1}
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "user_id"}}, DoNothing: true}).
		Create(record)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create progression record for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 1 {
		return record, true, nil
	}

	existing, err := r.GetByUserID(ctx, userID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// GetByUserID retrieves a user's record without locking.
func (r *ProgressionRepository) GetByUserID(ctx context.Context, userID uint) (*models.ProgressionRecord, error) {
	var record models.ProgressionRecord
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&record).Error; err != nil {
		return nil, fmt.Errorf("failed to get progression for user %d: %w", userID, err)
	}
	return &record, nil
}

// GetForUpdate retrieves a user's record holding a row lock until the
// surrounding transaction ends. Callers must run inside WithinTransaction.
func (r *ProgressionRepository) GetForUpdate(ctx context.Context, userID uint) (*models.ProgressionRecord, error) {
	var record models.ProgressionRecord
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("user_id = ?", userID).
		First(&record).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock progression for user %d: %w", userID, err)
	}
	return &record, nil
}

// Save persists every column of record.
func (r *ProgressionRepository) Save(ctx context.Context, record *models.ProgressionRecord) error {
	if err := r.db.WithContext(ctx).Omit(clause.Associations).Save(record).Error; err != nil {
		return fmt.Errorf("failed to save progression for user %d: %w", record.UserID, err)
	}
	return nil
}

// AddCoins credits coins to a user's balance.
func (r *ProgressionRepository) AddCoins(ctx context.Context, userID uint, amount int64) error {
	result := r.db.WithContext(ctx).Model(&models.ProgressionRecord{}).
		Where("user_id = ?", userID).
		Update("coins", gorm.Expr("coins + ?", amount))
	if result.Error != nil {
		return fmt.Errorf("failed to add coins for user %d: %w", userID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("failed to add coins for user %d: %w", userID, gorm.ErrRecordNotFound)
	}
	return nil
}

// ResetSeasonalProgress puts every user back at level 1 with no season XP.
// Total XP and coins are kept.
func (r *ProgressionRepository) ResetSeasonalProgress(ctx context.Context) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.ProgressionRecord{}).
		Where("1 = 1").
		Updates(map[string]any{"level": 1, "season_xp": 0})
	if result.Error != nil {
		return 0, fmt.Errorf("failed to reset seasonal progress: %w", result.Error)
	}
	return result.RowsAffected, nil
}
