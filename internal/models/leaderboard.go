package models

import (
	"time"
)

// LeaderboardEntry is the per-season score ledger. It is kept apart from
// ProgressionRecord.SeasonXP so alternate scoring schemes can feed it.
type LeaderboardEntry struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_leaderboard_user_season" json:"user_id"`
	SeasonID  uint      `gorm:"not null;uniqueIndex:idx_leaderboard_user_season;index" json:"season_id"`
	Score     int64     `gorm:"not null;default:0" json:"score"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for LeaderboardEntry model.
func (LeaderboardEntry) TableName() string {
	return "leaderboard_entries"
}

// RankingCandidate is the flattened row the ranker sorts.
type RankingCandidate struct {
	UserID         uint
	DisplayName    string
	Username       string
	Level          int
	SeasonXP       int64
	LastLevelUpAt  *time.Time
	AccountCreated time.Time
	OwnedBooks     int64
	GroupCount     int64
}
