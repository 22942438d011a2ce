// Package progression provides REST API handlers for user progression,
// quests, leaderboards and the admin operations around them.
package progression

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/service/achievements"
	"github.com/aimd54/shelf-progression/internal/service/leaderboard"
	"github.com/aimd54/shelf-progression/internal/service/leveling"
	progsvc "github.com/aimd54/shelf-progression/internal/service/progression"
	"github.com/aimd54/shelf-progression/internal/service/quests"
	"github.com/aimd54/shelf-progression/internal/service/season"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// Service is the progression facade the handlers call.
type Service interface {
	GetStatus(ctx context.Context, userID uint) (*progsvc.GamificationStatus, error)
	GetUserRank(ctx context.Context, userID uint) (int, error)
	Leaderboard(ctx context.Context, scope leaderboard.Scope, limit int) ([]leaderboard.Entry, error)
	LevelRewards() []leveling.LevelReward
	ActiveQuests(ctx context.Context, userID uint, period models.QuestPeriod) ([]quests.ActiveQuest, error)
	CompleteQuest(ctx context.Context, userID, questID uint) (*quests.CompletionResult, error)
	RecordCheckIn(ctx context.Context, event progsvc.CheckInEvent) (*progsvc.CheckInResult, error)
	RecordChallengeCompletion(ctx context.Context, userID uint, xp int64) (*progsvc.ChallengeResult, error)
	ResetSeason(ctx context.Context) (*season.RotationResult, error)
	RefreshQuests(ctx context.Context, period models.QuestPeriod) (*quests.RefreshReport, error)
	CreateQuest(ctx context.Context, in quests.QuestInput) (*models.QuestDefinition, error)
	CreateAchievement(ctx context.Context, in achievements.AchievementInput) (*models.Achievement, error)
	GrantXP(ctx context.Context, userID uint, amount int64) (*leveling.XPResult, error)
	CreateBadge(ctx context.Context, name, description, icon string) (*models.Badge, error)
	BadgeCatalog(ctx context.Context) ([]progsvc.BadgeEntry, error)
	ListSeasons(ctx context.Context) ([]models.Season, error)
	SeasonRewards(ctx context.Context, seasonID uint) ([]models.SeasonReward, error)
}

// Handler handles progression API requests.
type Handler struct {
	service Service
	log     *logger.Logger
}

// NewHandler creates a new progression handler.
func NewHandler(service Service, log *logger.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log,
	}
}

// RegisterRoutes mounts every endpoint under api.
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/users/:id/status", h.GetStatus)
	api.GET("/users/:id/rank", h.GetUserRank)
	api.GET("/users/:id/quests", h.GetActiveQuests)
	api.POST("/users/:id/quests/:questId/complete", h.CompleteQuest)
	api.POST("/users/:id/checkins", h.RecordCheckIn)
	api.POST("/users/:id/challenges", h.RecordChallenge)
	api.GET("/leaderboard", h.GetLeaderboard)
	api.GET("/levels/rewards", h.GetLevelRewards)
	api.GET("/badges", h.GetBadges)
	api.GET("/seasons", h.GetSeasons)
	api.GET("/seasons/:id/rewards", h.GetSeasonRewards)

	admin := api.Group("/admin")
	admin.POST("/season/reset", h.ResetSeason)
	admin.POST("/quests/refresh/:period", h.RefreshQuests)
	admin.POST("/quests", h.CreateQuest)
	admin.POST("/achievements", h.CreateAchievement)
	admin.POST("/badges", h.CreateBadge)
	admin.POST("/users/:id/xp", h.GrantXP)
}

type checkInRequest struct {
	BookID       uint `json:"book_id" binding:"required"`
	PagesRead    int  `json:"pages_read"`
	MinutesSpent int  `json:"minutes_spent"`
	CurrentPage  *int `json:"current_page"`
}

type xpRequest struct {
	XP int64 `json:"xp"`
}

type grantRequest struct {
	Amount int64 `json:"amount" binding:"required"`
}

type badgeRequest struct {
	Name        string `json:"name" binding:"required"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
}

// GetStatus returns a user's gamification snapshot.
// GET /api/v1/users/:id/status.
func (h *Handler) GetStatus(c *gin.Context) {
	userID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	status, err := h.service.GetStatus(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve status")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       status,
		"generated_at": time.Now().UTC(),
	})
}

// GetUserRank returns a user's season position, 0 when unranked.
// GET /api/v1/users/:id/rank.
func (h *Handler) GetUserRank(c *gin.Context) {
	userID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rank, err := h.service.GetUserRank(c.Request.Context(), userID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve rank")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"rank":         rank,
		"ranked":       rank > 0,
		"generated_at": time.Now().UTC(),
	})
}

// GetActiveQuests tops up and returns a user's quests.
// GET /api/v1/users/:id/quests?period=daily.
func (h *Handler) GetActiveQuests(c *gin.Context) {
	userID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	period, err := h.parsePeriod(c.DefaultQuery("period", string(models.PeriodDaily)))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	active, err := h.service.ActiveQuests(c.Request.Context(), userID, period)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve quests")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"user_id":      userID,
		"period":       period,
		"quests":       active,
		"total_quests": len(active),
		"generated_at": time.Now().UTC(),
	})
}

// CompleteQuest completes one of a user's open quests.
// POST /api/v1/users/:id/quests/:questId/complete.
func (h *Handler) CompleteQuest(c *gin.Context) {
	userID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	questID, err := h.parseID(c, "questId")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.service.CompleteQuest(c.Request.Context(), userID, questID)
	if err != nil {
		h.serviceError(c, err, "Failed to complete quest")
		return
	}

	h.log.Info().
		Uint("user_id", userID).
		Uint("quest_id", questID).
		Int64("coins", result.CoinsAwarded).
		Msg("Quest completed via API")

	c.JSON(http.StatusOK, result)
}

// RecordCheckIn stores a reading session.
// POST /api/v1/users/:id/checkins.
func (h *Handler) RecordCheckIn(c *gin.Context) {
	userID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req checkInRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.service.RecordCheckIn(c.Request.Context(), progsvc.CheckInEvent{
		UserID:       userID,
		BookID:       req.BookID,
		PagesRead:    req.PagesRead,
		MinutesSpent: req.MinutesSpent,
		CurrentPage:  req.CurrentPage,
	})
	if err != nil {
		h.serviceError(c, err, "Failed to record check-in")
		return
	}

	c.JSON(http.StatusCreated, result)
}

// RecordChallenge grants the XP of a completed challenge.
// POST /api/v1/users/:id/challenges.
func (h *Handler) RecordChallenge(c *gin.Context) {
	userID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req xpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if req.XP < 0 {
		h.errorResponse(c, http.StatusBadRequest, "xp must not be negative")
		return
	}

	result, err := h.service.RecordChallengeCompletion(c.Request.Context(), userID, req.XP)
	if err != nil {
		h.serviceError(c, err, "Failed to record challenge")
		return
	}

	c.JSON(http.StatusOK, result)
}

// GetLeaderboard returns the season ranking, globally or for one group.
// GET /api/v1/leaderboard?group_id=3&limit=50.
func (h *Handler) GetLeaderboard(c *gin.Context) {
	limit, err := h.parseLimit(c, leaderboard.DefaultLimit)
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	var scope leaderboard.Scope
	if raw := c.Query("group_id"); raw != "" {
		id, err := strconv.ParseUint(raw, 10, 32)
		if err != nil || id == 0 {
			h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid group_id: %s", raw))
			return
		}
		groupID := uint(id)
		scope.GroupID = &groupID
	}

	entries, err := h.service.Leaderboard(c.Request.Context(), scope, limit)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve leaderboard")
		return
	}

	h.log.Debug().
		Int("limit", limit).
		Int("entries", len(entries)).
		Msg("Retrieved leaderboard")

	c.JSON(http.StatusOK, gin.H{
		"leaderboard":   entries,
		"group_id":      scope.GroupID,
		"total_entries": len(entries),
		"generated_at":  time.Now().UTC(),
	})
}

// GetLevelRewards returns the level table.
// GET /api/v1/levels/rewards.
func (h *Handler) GetLevelRewards(c *gin.Context) {
	levels := h.service.LevelRewards()
	c.JSON(http.StatusOK, gin.H{
		"levels":       levels,
		"max_level":    len(levels),
		"generated_at": time.Now().UTC(),
	})
}

// GetBadges returns the badge catalog with holder counts.
// GET /api/v1/badges.
func (h *Handler) GetBadges(c *gin.Context) {
	badges, err := h.service.BadgeCatalog(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve badges")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"badges":       badges,
		"total_badges": len(badges),
		"generated_at": time.Now().UTC(),
	})
}

// GetSeasons returns the season history, newest first.
// GET /api/v1/seasons.
func (h *Handler) GetSeasons(c *gin.Context) {
	seasons, err := h.service.ListSeasons(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve seasons")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"seasons":       seasons,
		"total_seasons": len(seasons),
		"generated_at":  time.Now().UTC(),
	})
}

// GetSeasonRewards returns the payouts of one season.
// GET /api/v1/seasons/:id/rewards.
func (h *Handler) GetSeasonRewards(c *gin.Context) {
	seasonID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	rewards, err := h.service.SeasonRewards(c.Request.Context(), seasonID)
	if err != nil {
		h.serviceError(c, err, "Failed to retrieve season rewards")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"season_id":     seasonID,
		"rewards":       rewards,
		"total_rewards": len(rewards),
		"generated_at":  time.Now().UTC(),
	})
}

// ResetSeason settles the running season immediately.
// POST /api/v1/admin/season/reset.
func (h *Handler) ResetSeason(c *gin.Context) {
	result, err := h.service.ResetSeason(c.Request.Context())
	if err != nil {
		h.serviceError(c, err, "Failed to reset season")
		return
	}

	h.log.Info().
		Str("season", result.Season.Name).
		Int("rewards", len(result.Rewards)).
		Bool("already_issued", result.AlreadyIssued).
		Msg("Season reset via API")

	c.JSON(http.StatusOK, result)
}

// RefreshQuests refreshes every user's quests for a period.
// POST /api/v1/admin/quests/refresh/:period.
func (h *Handler) RefreshQuests(c *gin.Context) {
	period, err := h.parsePeriod(c.Param("period"))
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}

	report, err := h.service.RefreshQuests(c.Request.Context(), period)
	if err != nil {
		h.serviceError(c, err, "Failed to refresh quests")
		return
	}

	c.JSON(http.StatusOK, report)
}

// CreateQuest adds a quest definition to the catalog.
// POST /api/v1/admin/quests.
func (h *Handler) CreateQuest(c *gin.Context) {
	var in quests.QuestInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	quest, err := h.service.CreateQuest(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, err, "Failed to create quest")
		return
	}

	c.JSON(http.StatusCreated, quest)
}

// CreateAchievement adds an achievement.
// POST /api/v1/admin/achievements.
func (h *Handler) CreateAchievement(c *gin.Context) {
	var in achievements.AchievementInput
	if err := c.ShouldBindJSON(&in); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	achievement, err := h.service.CreateAchievement(c.Request.Context(), in)
	if err != nil {
		h.serviceError(c, err, "Failed to create achievement")
		return
	}

	c.JSON(http.StatusCreated, achievement)
}

// CreateBadge adds a badge achievements can reference.
// POST /api/v1/admin/badges.
func (h *Handler) CreateBadge(c *gin.Context) {
	var req badgeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	badge, err := h.service.CreateBadge(c.Request.Context(), req.Name, req.Description, req.Icon)
	if err != nil {
		h.serviceError(c, err, "Failed to create badge")
		return
	}

	c.JSON(http.StatusCreated, badge)
}

// GrantXP credits XP to a user manually.
// POST /api/v1/admin/users/:id/xp.
func (h *Handler) GrantXP(c *gin.Context) {
	userID, err := h.parseID(c, "id")
	if err != nil {
		h.errorResponse(c, http.StatusBadRequest, err.Error())
		return
	}
	var req grantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.errorResponse(c, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}

	result, err := h.service.GrantXP(c.Request.Context(), userID, req.Amount)
	if err != nil {
		h.serviceError(c, err, "Failed to grant XP")
		return
	}

	c.JSON(http.StatusOK, result)
}

// Helper functions

// parseID extracts and validates a numeric ID from the URL parameter.
func (h *Handler) parseID(c *gin.Context, param string) (uint, error) {
	idStr := c.Param(param)
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("invalid %s: %s", param, idStr)
	}
	return uint(id), nil
}

// parseLimit extracts and validates the limit query parameter.
func (h *Handler) parseLimit(c *gin.Context, defaultLimit int) (int, error) {
	limitStr := c.Query("limit")
	if limitStr == "" {
		return defaultLimit, nil
	}

	limit, err := strconv.Atoi(limitStr)
	if err != nil {
		return 0, fmt.Errorf("invalid limit parameter: %s", limitStr)
	}
	if limit < 1 {
		return 0, fmt.Errorf("limit must be greater than 0")
	}
	if limit > leaderboard.MaxLimit {
		return 0, fmt.Errorf("limit cannot exceed %d", leaderboard.MaxLimit)
	}
	return limit, nil
}

// parsePeriod validates a quest period.
func (h *Handler) parsePeriod(raw string) (models.QuestPeriod, error) {
	period := models.QuestPeriod(raw)
	if !period.Valid() {
		return "", fmt.Errorf("invalid period: %s (valid: daily, weekly)", raw)
	}
	return period, nil
}

// serviceError maps a service failure to its status code. Internal errors
// are logged and replaced by fallback.
func (h *Handler) serviceError(c *gin.Context, err error, fallback string) {
	status := apperr.HTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("path", c.FullPath()).Msg(fallback)
		h.errorResponse(c, status, fallback)
		return
	}
	h.errorResponse(c, status, err.Error())
}

// errorResponse sends a standardized error response.
func (h *Handler) errorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, gin.H{
		"error":     message,
		"timestamp": time.Now().UTC(),
	})
}
