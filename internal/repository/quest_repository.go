package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm/clause"

	"github.com/aimd54/shelf-progression/internal/models"
)

// QuestRepository handles quest catalog persistence.
type QuestRepository struct {
	db *DB
}

// NewQuestRepository creates a new quest repository.
func NewQuestRepository(db *DB) *QuestRepository {
	return &QuestRepository{db: db}
}

// Create inserts a quest definition.
func (r *QuestRepository) Create(ctx context.Context, quest *models.QuestDefinition) error {
	if err := r.db.WithContext(ctx).Create(quest).Error; err != nil {
		return fmt.Errorf("failed to create quest %q: %w", quest.Title, err)
	}
	return nil
}

// Upsert inserts a quest definition or updates the one with the same title.
func (r *QuestRepository) Upsert(ctx context.Context, quest *models.QuestDefinition) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "title"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"description", "quest_type", "parameters", "base_xp_reward",
				"base_coin_reward", "period", "is_active", "updated_at",
			}),
		}).
		Create(quest).Error
	if err != nil {
		return fmt.Errorf("failed to upsert quest %q: %w", quest.Title, err)
	}
	return nil
}

// Update saves every column of quest.
func (r *QuestRepository) Update(ctx context.Context, quest *models.QuestDefinition) error {
	if err := r.db.WithContext(ctx).Save(quest).Error; err != nil {
		return fmt.Errorf("failed to update quest %d: %w", quest.ID, err)
	}
	return nil
}

// GetByID retrieves a quest definition by ID.
func (r *QuestRepository) GetByID(ctx context.Context, id uint) (*models.QuestDefinition, error) {
	var quest models.QuestDefinition
	if err := r.db.WithContext(ctx).First(&quest, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get quest %d: %w", id, err)
	}
	return &quest, nil
}

// SetActive toggles a quest's availability. Quests are never hard-deleted.
func (r *QuestRepository) SetActive(ctx context.Context, id uint, active bool) error {
	result := r.db.WithContext(ctx).Model(&models.QuestDefinition{}).
		Where("id = ?", id).
		Update("is_active", active)
	if result.Error != nil {
		return fmt.Errorf("failed to set quest %d active=%t: %w", id, active, result.Error)
	}
	return nil
}

// ListActive returns active quests of a period ordered by ID.
func (r *QuestRepository) ListActive(ctx context.Context, period models.QuestPeriod) ([]models.QuestDefinition, error) {
	var quests []models.QuestDefinition
	err := r.db.WithContext(ctx).
		Where("period = ? AND is_active = ?", period, true).
		Order("id ASC").
		Find(&quests).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list active %s quests: %w", period, err)
	}
	return quests, nil
}

// List returns every quest, optionally filtered by period.
func (r *QuestRepository) List(ctx context.Context, period models.QuestPeriod) ([]models.QuestDefinition, error) {
	query := r.db.WithContext(ctx).Model(&models.QuestDefinition{})
	if period != "" {
		query = query.Where("period = ?", period)
	}

	var quests []models.QuestDefinition
	if err := query.Order("id ASC").Find(&quests).Error; err != nil {
		return nil, fmt.Errorf("failed to list quests: %w", err)
	}
	return quests, nil
}
