package models

import (
	"time"
)

// Season is a calendar-bound competitive period.
type Season struct {
	ID            uint      `gorm:"primaryKey" json:"id"`
	Name          string    `gorm:"uniqueIndex;not null;size:50" json:"name"`
	DisplayName   string    `gorm:"size:100" json:"display_name"`
	StartDate     time.Time `gorm:"not null" json:"start_date"`
	EndDate       time.Time `gorm:"not null" json:"end_date"`
	IsActive      bool      `gorm:"not null;default:false;index" json:"is_active"`
	Completed     bool      `gorm:"not null;default:false" json:"completed"`
	RewardsIssued bool      `gorm:"not null;default:false" json:"rewards_issued"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// TableName specifies the table name for Season model.
func (Season) TableName() string {
	return "seasons"
}

// Covers reports whether t falls inside the season's date range.
func (s *Season) Covers(t time.Time) bool {
	return !t.Before(s.StartDate) && !t.After(s.EndDate)
}

// SeasonReward records the coins paid to one user when a season was settled.
type SeasonReward struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	SeasonID  uint      `gorm:"not null;uniqueIndex:idx_season_reward_user" json:"season_id"`
	UserID    uint      `gorm:"not null;uniqueIndex:idx_season_reward_user" json:"user_id"`
	Rank      int       `gorm:"not null" json:"rank"`
	Coins     int64     `gorm:"not null" json:"coins"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName specifies the table name for SeasonReward model.
func (SeasonReward) TableName() string {
	return "season_rewards"
}
