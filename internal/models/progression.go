package models

import (
	"time"
)

// ProgressionRecord is one user's gamification state. It is only mutated
// through the leveling engine, season settlement and check-in streak updates.
type ProgressionRecord struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	UserID          uint       `gorm:"uniqueIndex;not null" json:"user_id"`
	User            User       `gorm:"foreignKey:UserID" json:"-"`
	Level           int        `gorm:"not null;default:1" json:"level"`
	SeasonXP        int64      `gorm:"column:season_xp;not null;default:0;index" json:"season_xp"`
	TotalXP         int64      `gorm:"column:total_xp;not null;default:0" json:"total_xp"`
	Coins           int64      `gorm:"not null;default:0" json:"coins"`
	LastLevelUpAt   *time.Time `json:"last_level_up_at"`
	Streak          int        `gorm:"not null;default:0" json:"streak"`
	LastCheckInDate *time.Time `json:"last_check_in_date"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

// TableName specifies the table name for ProgressionRecord model.
func (ProgressionRecord) TableName() string {
	return "progression_records"
}
