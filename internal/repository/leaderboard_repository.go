package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aimd54/shelf-progression/internal/models"
)

// LeaderboardRepository handles the season score ledger and ranking queries.
type LeaderboardRepository struct {
	db *DB
}

// NewLeaderboardRepository creates a new leaderboard repository.
func NewLeaderboardRepository(db *DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// AddPoints adds amount to the user's score for a season, creating the entry
// on first use. at stamps the entry.
func (r *LeaderboardRepository) AddPoints(ctx context.Context, userID, seasonID uint, amount int64, at time.Time) error {
	entry := &models.LeaderboardEntry{UserID: userID, SeasonID: seasonID, Score: amount, CreatedAt: at, UpdatedAt: at}
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "user_id"}, {Name: "season_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"score":      gorm.Expr("leaderboard_entries.score + ?", amount),
				"updated_at": at,
			}),
		}).
		Create(entry).Error
	if err != nil {
		return fmt.Errorf("failed to add %d points for user %d season %d: %w", amount, userID, seasonID, err)
	}
	return nil
}

// GetEntry retrieves a user's ledger entry for a season.
func (r *LeaderboardRepository) GetEntry(ctx context.Context, userID, seasonID uint) (*models.LeaderboardEntry, error) {
	var entry models.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND season_id = ?", userID, seasonID).
		First(&entry).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get leaderboard entry for user %d season %d: %w", userID, seasonID, err)
	}
	return &entry, nil
}

// SeasonScores returns the top ledger entries of a season.
func (r *LeaderboardRepository) SeasonScores(ctx context.Context, seasonID uint, limit int) ([]models.LeaderboardEntry, error) {
	var entries []models.LeaderboardEntry
	err := r.db.WithContext(ctx).
		Where("season_id = ?", seasonID).
		Order("score DESC, user_id ASC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list scores for season %d: %w", seasonID, err)
	}
	return entries, nil
}

// Candidates returns the ranking inputs of every non-suspended user with a
// progression record, optionally restricted to members of groupID.
func (r *LeaderboardRepository) Candidates(ctx context.Context, groupID *uint) ([]models.RankingCandidate, error) {
	query := r.db.WithContext(ctx).
		Table("users AS u").
		Select(`u.id AS user_id, u.display_name, u.username, p.level, p.season_xp,
			p.last_level_up_at, u.created_at AS account_created,
			(SELECT COUNT(*) FROM user_books b WHERE b.user_id = u.id) AS owned_books,
			(SELECT COUNT(*) FROM group_memberships g WHERE g.user_id = u.id) AS group_count`).
		Joins("JOIN progression_records p ON p.user_id = u.id").
		Where("u.suspended = ?", false)
	if groupID != nil {
		query = query.Where("u.id IN (?)",
			r.db.WithContext(ctx).Model(&models.GroupMembership{}).Select("user_id").Where("group_id = ?", *groupID))
	}

	var candidates []models.RankingCandidate
	if err := query.Scan(&candidates).Error; err != nil {
		return nil, fmt.Errorf("failed to load ranking candidates: %w", err)
	}
	return candidates, nil
}

// CountAhead counts non-suspended users ranked strictly ahead of a user with
// the given season XP and last level-up time. Users that never leveled sort
// after those that did at equal XP.
func (r *LeaderboardRepository) CountAhead(ctx context.Context, seasonXP int64, lastLevelUpAt *time.Time) (int64, error) {
	base := func() *gorm.DB {
		return r.db.WithContext(ctx).
			Table("progression_records AS p").
			Joins("JOIN users u ON u.id = p.user_id").
			Where("u.suspended = ?", false)
	}

	var higher int64
	if err := base().Where("p.season_xp > ?", seasonXP).Count(&higher).Error; err != nil {
		return 0, fmt.Errorf("failed to count higher scores: %w", err)
	}

	tied := base().Where("p.season_xp = ?", seasonXP)
	if lastLevelUpAt == nil {
		tied = tied.Where("p.last_level_up_at IS NOT NULL")
	} else {
		tied = tied.Where("p.last_level_up_at IS NOT NULL AND p.last_level_up_at < ?", *lastLevelUpAt)
	}
	var earlier int64
	if err := tied.Count(&earlier).Error; err != nil {
		return 0, fmt.Errorf("failed to count earlier level-ups: %w", err)
	}

	return higher + earlier, nil
}
