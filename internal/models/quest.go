package models

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
)

// QuestPeriod is the refresh cadence of a quest.
type QuestPeriod string

// QuestPeriod constants.
const (
	PeriodDaily  QuestPeriod = "daily"
	PeriodWeekly QuestPeriod = "weekly"
)

// Valid reports whether p is a known period.
func (p QuestPeriod) Valid() bool {
	return p == PeriodDaily || p == PeriodWeekly
}

// QuestType selects the completion predicate of a quest.
type QuestType string

// QuestType constants.
const (
	QuestDailyCheckIn  QuestType = "daily_checkin"
	QuestReadPages     QuestType = "read_pages"
	QuestFinishBooks   QuestType = "finish_books"
	QuestJoinGroup     QuestType = "join_group"
	QuestUpdateProfile QuestType = "update_profile"
)

// QuestDefinition is an admin-authored catalog entry.
type QuestDefinition struct {
	ID             uint           `gorm:"primaryKey" json:"id"`
	Title          string         `gorm:"uniqueIndex;not null;size:200" json:"title"`
	Description    string         `gorm:"type:text" json:"description"`
	QuestType      QuestType      `gorm:"size:50;not null" json:"quest_type"`
	Parameters     datatypes.JSON `json:"parameters"`
	BaseXPReward   int64          `gorm:"column:base_xp_reward;not null" json:"base_xp_reward"`
	BaseCoinReward int64          `gorm:"not null" json:"base_coin_reward"`
	Period         QuestPeriod    `gorm:"size:10;not null;index:idx_quest_period_active" json:"period"`
	IsActive       bool           `gorm:"not null;index:idx_quest_period_active" json:"is_active"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// TableName specifies the table name for QuestDefinition model.
func (QuestDefinition) TableName() string {
	return "quest_definitions"
}

// QuestParameters is the decoded form of QuestDefinition.Parameters.
type QuestParameters struct {
	Pages int `json:"pages,omitempty" yaml:"pages,omitempty"`
	Count int `json:"count,omitempty" yaml:"count,omitempty"`
}

// UserQuestAssignment is one quest offered to one user for one period.
//
// ActiveKey holds "<user>:<quest>" while the assignment is open and NULL once
// it is completed; its unique index is what guarantees a single active
// assignment per (user, quest).
type UserQuestAssignment struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	UserID      uint            `gorm:"not null;index:idx_assignment_user_expiry;index:idx_assignment_user_season" json:"user_id"`
	QuestID     uint            `gorm:"not null;index" json:"quest_id"`
	Quest       QuestDefinition `gorm:"foreignKey:QuestID" json:"quest,omitempty"`
	Period      QuestPeriod     `gorm:"size:10;not null" json:"period"`
	AssignedAt  time.Time       `gorm:"not null" json:"assigned_at"`
	ExpiresAt   time.Time       `gorm:"not null;index:idx_assignment_user_expiry" json:"expires_at"`
	Progress    int             `gorm:"not null;default:0" json:"progress"`
	Completed   bool            `gorm:"not null;default:false" json:"completed"`
	CompletedAt *time.Time      `gorm:"index" json:"completed_at"`
	SeasonID    *uint           `gorm:"index:idx_assignment_user_season" json:"season_id,omitempty"`
	XPEarned    int64           `gorm:"column:xp_earned;not null;default:0" json:"xp_earned"`
	CoinsEarned int64           `gorm:"not null;default:0" json:"coins_earned"`
	ActiveKey   *string         `gorm:"uniqueIndex;size:64" json:"-"`
}

// TableName specifies the table name for UserQuestAssignment model.
func (UserQuestAssignment) TableName() string {
	return "user_quest_assignments"
}

// ActiveKeyFor builds the uniqueness key of an open assignment.
func ActiveKeyFor(userID, questID uint) string {
	return fmt.Sprintf("%d:%d", userID, questID)
}
