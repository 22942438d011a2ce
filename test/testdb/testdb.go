// Package testdb opens migrated in-memory SQLite databases for tests.
package testdb

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

var seq atomic.Int64

// New returns a fresh, fully migrated database private to the test.
func New(t *testing.T) *repository.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:testdb_%d?mode=memory&cache=shared", seq.Add(1))
	db, err := repository.NewSQLiteDB(dsn, logger.NewNop())
	if err != nil {
		t.Fatalf("Failed to open test database: %v", err)
	}
	if err := db.AutoMigrate(); err != nil {
		t.Fatalf("Failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// NewStore returns a store over a fresh database.
func NewStore(t *testing.T) *repository.Store {
	t.Helper()
	return repository.NewStore(New(t))
}

// CreateUser inserts a user with a level-1 progression record.
func CreateUser(t *testing.T, store *repository.Store, username string, createdAt time.Time) *models.User {
	t.Helper()

	user := &models.User{Username: username, DisplayName: username, CreatedAt: createdAt}
	if err := store.DB().Create(user).Error; err != nil {
		t.Fatalf("Failed to create user %s: %v", username, err)
	}
	record := &models.ProgressionRecord{UserID: user.ID, Level: 1}
	if err := store.DB().Create(record).Error; err != nil {
		t.Fatalf("Failed to create progression for %s: %v", username, err)
	}
	return user
}
