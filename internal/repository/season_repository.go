package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm/clause"

	"github.com/aimd54/shelf-progression/internal/models"
)

// SeasonRepository handles season and season reward persistence.
type SeasonRepository struct {
	db *DB
}

// NewSeasonRepository creates a new season repository.
func NewSeasonRepository(db *DB) *SeasonRepository {
	return &SeasonRepository{db: db}
}

// GetByID retrieves a season by ID.
func (r *SeasonRepository) GetByID(ctx context.Context, id uint) (*models.Season, error) {
	var season models.Season
	if err := r.db.WithContext(ctx).First(&season, id).Error; err != nil {
		return nil, fmt.Errorf("failed to get season %d: %w", id, err)
	}
	return &season, nil
}

// GetByName retrieves a season by its unique name.
func (r *SeasonRepository) GetByName(ctx context.Context, name string) (*models.Season, error) {
	var season models.Season
	if err := r.db.WithContext(ctx).Where("name = ?", name).First(&season).Error; err != nil {
		return nil, fmt.Errorf("failed to get season %s: %w", name, err)
	}
	return &season, nil
}

// GetActive retrieves the active season.
func (r *SeasonRepository) GetActive(ctx context.Context) (*models.Season, error) {
	var season models.Season
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Order("start_date DESC").
		First(&season).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get active season: %w", err)
	}
	return &season, nil
}

// FindOrCreate returns the season named season.Name, inserting season when
// no such row exists. The boolean reports whether this call inserted it.
func (r *SeasonRepository) FindOrCreate(ctx context.Context, season *models.Season) (*models.Season, bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "name"}}, DoNothing: true}).
		Create(season)
	if result.Error != nil {
		return nil, false, fmt.Errorf("failed to create season %s: %w", season.Name, result.Error)
	}
	if result.RowsAffected == 1 {
		return season, true, nil
	}

	existing, err := r.GetByName(ctx, season.Name)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

// ActivateExclusive marks id active and every other season inactive.
// Must run inside a transaction to keep a single active season.
func (r *SeasonRepository) ActivateExclusive(ctx context.Context, id uint) error {
	db := r.db.WithContext(ctx)
	if err := db.Model(&models.Season{}).
		Where("id <> ? AND is_active = ?", id, true).
		Update("is_active", false).Error; err != nil {
		return fmt.Errorf("failed to deactivate seasons: %w", err)
	}
	if err := db.Model(&models.Season{}).
		Where("id = ?", id).
		Update("is_active", true).Error; err != nil {
		return fmt.Errorf("failed to activate season %d: %w", id, err)
	}
	return nil
}

// OldestUnsettled returns the earliest-ending season that ended before now
// and has not paid out rewards.
func (r *SeasonRepository) OldestUnsettled(ctx context.Context, now time.Time) (*models.Season, error) {
	var season models.Season
	err := r.db.WithContext(ctx).
		Where("end_date < ? AND rewards_issued = ?", now, false).
		Order("end_date ASC").
		First(&season).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get unsettled season: %w", err)
	}
	return &season, nil
}

// GetForUpdate locks a season row for settlement.
func (r *SeasonRepository) GetForUpdate(ctx context.Context, id uint) (*models.Season, error) {
	var season models.Season
	err := r.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&season, id).Error
	if err != nil {
		return nil, fmt.Errorf("failed to lock season %d: %w", id, err)
	}
	return &season, nil
}

// MarkCompleted closes a season.
func (r *SeasonRepository) MarkCompleted(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.Season{}).
		Where("id = ?", id).
		Updates(map[string]any{"completed": true, "is_active": false}).Error
	if err != nil {
		return fmt.Errorf("failed to complete season %d: %w", id, err)
	}
	return nil
}

// MarkRewardsIssued records that the payout ran.
func (r *SeasonRepository) MarkRewardsIssued(ctx context.Context, id uint) error {
	err := r.db.WithContext(ctx).Model(&models.Season{}).
		Where("id = ?", id).
		Update("rewards_issued", true).Error
	if err != nil {
		return fmt.Errorf("failed to mark rewards issued for season %d: %w", id, err)
	}
	return nil
}

// List returns all seasons, newest first.
func (r *SeasonRepository) List(ctx context.Context) ([]models.Season, error) {
	var seasons []models.Season
	if err := r.db.WithContext(ctx).Order("start_date DESC").Find(&seasons).Error; err != nil {
		return nil, fmt.Errorf("failed to list seasons: %w", err)
	}
	return seasons, nil
}

// CreateReward records a payout. It reports false without error when the
// user was already paid for this season.
func (r *SeasonRepository) CreateReward(ctx context.Context, reward *models.SeasonReward) (bool, error) {
	result := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "season_id"}, {Name: "user_id"}},
			DoNothing: true,
		}).
		Create(reward)
	if result.Error != nil {
		return false, fmt.Errorf("failed to record season reward: %w", result.Error)
	}
	return result.RowsAffected == 1, nil
}

// ListRewards returns the payouts of a season ordered by rank.
func (r *SeasonRepository) ListRewards(ctx context.Context, seasonID uint) ([]models.SeasonReward, error) {
	var rewards []models.SeasonReward
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Order("rank ASC, user_id ASC").
		Find(&rewards).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards for season %d: %w", seasonID, err)
	}
	return rewards, nil
}
