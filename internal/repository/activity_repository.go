package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/aimd54/shelf-progression/internal/models"
)

// ActivityRepository answers questions about reading activity. Check-ins are
// the only rows the engine writes here; books, memberships and profile edits
// belong to other subsystems.
type ActivityRepository struct {
	db *DB
}

// NewActivityRepository creates a new activity repository.
func NewActivityRepository(db *DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// CreateCheckIn stores a reading session.
func (r *ActivityRepository) CreateCheckIn(ctx context.Context, checkIn *models.CheckIn) error {
	if err := r.db.WithContext(ctx).Create(checkIn).Error; err != nil {
		return fmt.Errorf("failed to create check-in: %w", err)
	}
	return nil
}

// CountCheckInsSince counts check-ins created at or after since.
func (r *ActivityRepository) CountCheckInsSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.CheckIn{}).
		Where("user_id = ? AND created_at >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count check-ins: %w", err)
	}
	return count, nil
}

// SumPagesSince sums pages read in check-ins created at or after since.
func (r *ActivityRepository) SumPagesSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.CheckIn{}).
		Select("COALESCE(SUM(pages_read), 0)").
		Where("user_id = ? AND created_at >= ?", userID, since).
		Scan(&total).Error
	if err != nil {
		return 0, fmt.Errorf("failed to sum pages read: %w", err)
	}
	return total, nil
}

// CountFinishedBooksSince counts shelf entries with a finished status created
// at or after since.
func (r *ActivityRepository) CountFinishedBooksSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.UserBook{}).
		Where("user_id = ? AND status = ? AND created_at >= ?", userID, models.BookStatusFinished, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count finished books: %w", err)
	}
	return count, nil
}

// CountGroupsJoinedSince counts memberships joined at or after since.
func (r *ActivityRepository) CountGroupsJoinedSince(ctx context.Context, userID uint, since time.Time) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.GroupMembership{}).
		Where("user_id = ? AND joined_at >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count group memberships: %w", err)
	}
	return count, nil
}

// ProfileUpdatedSince reports whether the user edited their profile at or after since.
func (r *ActivityRepository) ProfileUpdatedSince(ctx context.Context, userID uint, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).
		Where("id = ? AND profile_updated_at IS NOT NULL AND profile_updated_at >= ?", userID, since).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check profile update: %w", err)
	}
	return count > 0, nil
}
