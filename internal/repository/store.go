package repository

import (
	"context"

	"gorm.io/gorm"
)

// Store groups the repositories bound to one database handle. A Store built
// inside WithinTransaction shares that transaction across all repositories.
type Store struct {
	db *DB

	Users        *UserRepository
	Activity     *ActivityRepository
	Progression  *ProgressionRepository
	Seasons      *SeasonRepository
	Quests       *QuestRepository
	Assignments  *AssignmentRepository
	Achievements *AchievementRepository
	Badges       *BadgeRepository
	Leaderboard  *LeaderboardRepository
}

// NewStore creates a store over db.
func NewStore(db *DB) *Store {
	return &Store{
		db:           db,
		Users:        NewUserRepository(db),
		Activity:     NewActivityRepository(db),
		Progression:  NewProgressionRepository(db),
		Seasons:      NewSeasonRepository(db),
		Quests:       NewQuestRepository(db),
		Assignments:  NewAssignmentRepository(db),
		Achievements: NewAchievementRepository(db),
		Badges:       NewBadgeRepository(db),
		Leaderboard:  NewLeaderboardRepository(db),
	}
}

// DB returns the underlying handle.
func (s *Store) DB() *DB {
	return s.db
}

// WithinTransaction runs fn with a store bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (s *Store) WithinTransaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(NewStore(&DB{tx}))
	})
}
