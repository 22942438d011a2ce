package models

import (
	"time"
)

// Achievement metric constants select which increment a category sweep applies.
const (
	MetricCount = "count"
	MetricPages = "pages"
)

// Achievement category constants used by activity sweeps.
const (
	CategoryReading   = "reading"
	CategoryChallenge = "challenge"
	CategorySocial    = "social"
)

// Achievement is a persistent goal with a one-time reward.
type Achievement struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	Name        string    `gorm:"uniqueIndex;not null;size:100" json:"name"`
	Description string    `gorm:"type:text" json:"description"`
	Category    string    `gorm:"size:50;not null;index" json:"category"`
	Metric      string    `gorm:"size:20;not null" json:"metric"`
	GoalValue   int       `gorm:"not null" json:"goal_value"`
	XPReward    int64     `gorm:"column:xp_reward;not null;default:0" json:"xp_reward"`
	CoinReward  int64     `gorm:"not null;default:0" json:"coin_reward"`
	BadgeID     *uint     `json:"badge_id,omitempty"`
	Badge       *Badge    `gorm:"foreignKey:BadgeID" json:"badge,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// TableName specifies the table name for Achievement model.
func (Achievement) TableName() string {
	return "achievements"
}

// UserAchievementProgress is a user's accumulated progress on one achievement.
type UserAchievementProgress struct {
	ID            uint        `gorm:"primaryKey" json:"id"`
	UserID        uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"user_id"`
	AchievementID uint        `gorm:"not null;uniqueIndex:idx_user_achievement" json:"achievement_id"`
	Achievement   Achievement `gorm:"foreignKey:AchievementID" json:"achievement,omitempty"`
	Progress      int         `gorm:"not null;default:0" json:"progress"`
	Completed     bool        `gorm:"not null;default:false" json:"completed"`
	CompletedAt   *time.Time  `json:"completed_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

// TableName specifies the table name for UserAchievementProgress model.
func (UserAchievementProgress) TableName() string {
	return "user_achievement_progress"
}
