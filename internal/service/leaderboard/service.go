// Package leaderboard provides seasonal ranking and the season score ledger.
package leaderboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/metrics"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

const (
	// DefaultLimit is used when a caller asks for a non-positive limit.
	DefaultLimit = 50
	// MaxLimit bounds a single ranking page.
	MaxLimit = 500

	cachePrefix = "leaderboard:"
)

// Cache stores serialized rankings.
type Cache interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	DeletePrefix(ctx context.Context, prefix string) (int, error)
}

// Scope restricts a ranking. A nil GroupID ranks every user.
type Scope struct {
	GroupID *uint
}

func (s Scope) cacheKey(limit int) string {
	if s.GroupID == nil {
		return fmt.Sprintf("%sall:%d", cachePrefix, limit)
	}
	return fmt.Sprintf("%sgroup:%d:%d", cachePrefix, *s.GroupID, limit)
}

// Entry represents a single entry in a leaderboard.
type Entry struct {
	Position    int    `json:"position"`
	UserID      uint   `json:"user_id"`
	DisplayName string `json:"display_name"`
	Level       int    `json:"level"`
	SeasonXP    int64  `json:"season_xp"`
	TotalBooks  int64  `json:"total_books"`
	TotalGroups int64  `json:"total_groups"`
}

// Service ranks users by season XP and keeps the per-season score ledger.
type Service struct {
	store *repository.Store
	cache Cache
	ttl   time.Duration
	log   *logger.Logger
}

// NewService creates a new leaderboard service. cache may be nil, in which
// case every ranking is computed fresh.
func NewService(store *repository.Store, cache Cache, ttl time.Duration, log *logger.Logger) *Service {
	return &Service{
		store: store,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

// Rank returns the ranking for scope, served from the cache when possible.
// Cached results may lag writes by up to the cache TTL.
func (s *Service) Rank(ctx context.Context, scope Scope, limit int) ([]Entry, error) {
	limit = normalizeLimit(limit)
	if s.cache == nil {
		return s.RankFresh(ctx, scope, limit)
	}

	key := scope.cacheKey(limit)
	if raw, ok, err := s.cache.Get(ctx, key); err != nil {
		s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache read failed")
	} else if ok {
		var entries []Entry
		if err := json.Unmarshal([]byte(raw), &entries); err == nil {
			metrics.RecordLeaderboardCache(true)
			return entries, nil
		}
		s.log.Warn().Str("key", key).Msg("Discarding malformed leaderboard cache entry")
	}
	metrics.RecordLeaderboardCache(false)

	entries, err := s.RankFresh(ctx, scope, limit)
	if err != nil {
		return nil, err
	}

	if payload, err := json.Marshal(entries); err == nil {
		if err := s.cache.Set(ctx, key, string(payload), s.ttl); err != nil {
			s.log.Warn().Err(err).Str("key", key).Msg("Leaderboard cache write failed")
		}
	}
	return entries, nil
}

// RankFresh computes the ranking from the store, bypassing the cache.
func (s *Service) RankFresh(ctx context.Context, scope Scope, limit int) ([]Entry, error) {
	return s.RankTx(ctx, s.store, scope, limit)
}

// RankTx computes the ranking using tx, for callers inside a transaction.
func (s *Service) RankTx(ctx context.Context, tx *repository.Store, scope Scope, limit int) ([]Entry, error) {
	candidates, err := tx.Leaderboard.Candidates(ctx, scope.GroupID)
	if err != nil {
		return nil, fmt.Errorf("failed to rank users: %w", err)
	}
	return rank(candidates, normalizeLimit(limit)), nil
}

// Invalidate drops every cached ranking.
func (s *Service) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if _, err := s.cache.DeletePrefix(ctx, cachePrefix); err != nil {
		s.log.Warn().Err(err).Msg("Failed to invalidate leaderboard cache")
	}
}

// GetUserRank returns the user's 1-based position among all non-suspended users.
func (s *Service) GetUserRank(ctx context.Context, userID uint) (int, error) {
	record, err := s.store.Progression.GetByUserID(ctx, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, fmt.Errorf("user %d: %w", userID, apperr.ErrNotFound)
		}
		return 0, err
	}

	ahead, err := s.store.Leaderboard.CountAhead(ctx, record.SeasonXP, record.LastLevelUpAt)
	if err != nil {
		return 0, err
	}
	return int(ahead) + 1, nil
}

// AddPoints mirrors XP into the season ledger within tx.
func (s *Service) AddPoints(ctx context.Context, tx *repository.Store, userID, seasonID uint, amount int64, at time.Time) error {
	return tx.Leaderboard.AddPoints(ctx, userID, seasonID, amount, at)
}

// SeasonScores returns the ledger's top entries for a season.
func (s *Service) SeasonScores(ctx context.Context, seasonID uint, limit int) ([]models.LeaderboardEntry, error) {
	return s.store.Leaderboard.SeasonScores(ctx, seasonID, normalizeLimit(limit))
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultLimit
	}
	if limit > MaxLimit {
		return MaxLimit
	}
	return limit
}
