// Package models defines the persistent entities of the progression engine
// and the collaborator read models it queries.
package models

import (
	"time"
)

// User is an account owned by the identity subsystem. The engine only reads it.
type User struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	Username         string     `gorm:"uniqueIndex;not null;size:255" json:"username"`
	DisplayName      string     `gorm:"size:255" json:"display_name"`
	Email            string     `gorm:"size:255" json:"email"`
	Suspended        bool       `gorm:"not null;default:false;index" json:"suspended"`
	ProfileUpdatedAt *time.Time `json:"profile_updated_at"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// TableName specifies the table name for User model.
func (User) TableName() string {
	return "users"
}

// Name returns the display name, falling back to the username.
func (u *User) Name() string {
	if u.DisplayName != "" {
		return u.DisplayName
	}
	return u.Username
}

// UserBook is a catalog entry on a user's shelf.
type UserBook struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"not null;index:idx_user_books_user_status" json:"user_id"`
	BookID    uint      `gorm:"not null" json:"book_id"`
	Status    string    `gorm:"size:30;not null;index:idx_user_books_user_status" json:"status"`
	CreatedAt time.Time `gorm:"index" json:"created_at"`
}

// TableName specifies the table name for UserBook model.
func (UserBook) TableName() string {
	return "user_books"
}

// UserBook status constants.
const (
	BookStatusWantToRead = "want_to_read"
	BookStatusReading    = "reading"
	BookStatusFinished   = "finished"
)

// GroupMembership links a user to a reading group.
type GroupMembership struct {
	ID       uint      `gorm:"primaryKey" json:"id"`
	GroupID  uint      `gorm:"not null;uniqueIndex:idx_group_member" json:"group_id"`
	UserID   uint      `gorm:"not null;uniqueIndex:idx_group_member;index" json:"user_id"`
	JoinedAt time.Time `gorm:"not null" json:"joined_at"`
}

// TableName specifies the table name for GroupMembership model.
func (GroupMembership) TableName() string {
	return "group_memberships"
}

// CheckIn is one reading session reported by a user.
type CheckIn struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	UserID       uint      `gorm:"not null;index:idx_check_ins_user_created" json:"user_id"`
	BookID       uint      `gorm:"not null" json:"book_id"`
	PagesRead    int       `gorm:"not null;default:0" json:"pages_read"`
	MinutesSpent int       `gorm:"not null;default:0" json:"minutes_spent"`
	CurrentPage  *int      `json:"current_page,omitempty"`
	CreatedAt    time.Time `gorm:"not null;index:idx_check_ins_user_created" json:"created_at"`
}

// TableName specifies the table name for CheckIn model.
func (CheckIn) TableName() string {
	return "check_ins"
}
