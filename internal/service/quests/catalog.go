// Package quests manages the quest catalog, per-user quest assignment and
// quest completion.
package quests

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	lru "github.com/hashicorp/golang-lru"
	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aimd54/shelf-progression/internal/apperr"
	"github.com/aimd54/shelf-progression/internal/models"
	"github.com/aimd54/shelf-progression/internal/repository"
	"github.com/aimd54/shelf-progression/pkg/logger"
)

// DefaultCacheSize is the number of quest definitions kept in memory.
const DefaultCacheSize = 256

// QuestInput describes a quest definition as authored by an admin or a seed file.
type QuestInput struct {
	Title          string                 `json:"title" yaml:"title"`
	Description    string                 `json:"description" yaml:"description"`
	QuestType      models.QuestType       `json:"quest_type" yaml:"quest_type"`
	Parameters     models.QuestParameters `json:"parameters" yaml:"parameters"`
	BaseXPReward   int64                  `json:"base_xp_reward" yaml:"base_xp_reward"`
	BaseCoinReward int64                  `json:"base_coin_reward" yaml:"base_coin_reward"`
	Period         models.QuestPeriod     `json:"period" yaml:"period"`
	IsActive       *bool                  `json:"is_active,omitempty" yaml:"is_active,omitempty"`
}

type seedFile struct {
	Quests []QuestInput `yaml:"quests"`
}

// Catalog is the admin-managed set of quest definitions.
type Catalog struct {
	store *repository.Store
	cache *lru.Cache
	log   *logger.Logger
}

// NewCatalog creates a catalog with an LRU cache of cacheSize definitions.
func NewCatalog(store *repository.Store, cacheSize int, log *logger.Logger) (*Catalog, error) {
	if cacheSize <= 0 {
		cacheSize = DefaultCacheSize
	}
	cache, err := lru.New(cacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create quest cache: %w", err)
	}
	return &Catalog{store: store, cache: cache, log: log}, nil
}

// ValidateParameters checks that params have the shape questType requires.
func ValidateParameters(questType models.QuestType, params models.QuestParameters) error {
	switch questType {
	case models.QuestDailyCheckIn, models.QuestJoinGroup, models.QuestUpdateProfile:
		if params.Pages != 0 || params.Count != 0 {
			return fmt.Errorf("quest type %s takes no parameters: %w", questType, apperr.ErrConfiguration)
		}
	case models.QuestReadPages:
		if params.Pages <= 0 || params.Count != 0 {
			return fmt.Errorf("quest type %s requires a positive pages parameter: %w", questType, apperr.ErrConfiguration)
		}
	case models.QuestFinishBooks:
		if params.Count <= 0 || params.Pages != 0 {
			return fmt.Errorf("quest type %s requires a positive count parameter: %w", questType, apperr.ErrConfiguration)
		}
	default:
		return fmt.Errorf("unknown quest type %q: %w", questType, apperr.ErrConfiguration)
	}
	return nil
}

// DecodeParameters parses the stored parameters of a quest.
func DecodeParameters(quest *models.QuestDefinition) (models.QuestParameters, error) {
	var params models.QuestParameters
	if len(quest.Parameters) == 0 {
		return params, nil
	}
	if err := json.Unmarshal(quest.Parameters, &params); err != nil {
		return params, fmt.Errorf("quest %d has malformed parameters: %w", quest.ID, apperr.ErrConfiguration)
	}
	return params, nil
}

func (in QuestInput) toDefinition() (*models.QuestDefinition, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("quest title is required: %w", apperr.ErrInvalidArgument)
	}
	if !in.Period.Valid() {
		return nil, fmt.Errorf("quest %q has unknown period %q: %w", in.Title, in.Period, apperr.ErrConfiguration)
	}
	if in.BaseXPReward < 0 || in.BaseCoinReward < 0 {
		return nil, fmt.Errorf("quest %q has negative rewards: %w", in.Title, apperr.ErrConfiguration)
	}
	if err := ValidateParameters(in.QuestType, in.Parameters); err != nil {
		return nil, fmt.Errorf("quest %q: %w", in.Title, err)
	}

	raw, err := json.Marshal(in.Parameters)
	if err != nil {
		return nil, fmt.Errorf("failed to encode parameters of quest %q: %w", in.Title, err)
	}

	active := true
	if in.IsActive != nil {
		active = *in.IsActive
	}

	return &models.QuestDefinition{
		Title:          in.Title,
		Description:    in.Description,
		QuestType:      in.QuestType,
		Parameters:     datatypes.JSON(raw),
		BaseXPReward:   in.BaseXPReward,
		BaseCoinReward: in.BaseCoinReward,
		Period:         in.Period,
		IsActive:       active,
	}, nil
}

// CreateQuest validates and stores a new quest definition.
func (c *Catalog) CreateQuest(ctx context.Context, in QuestInput) (*models.QuestDefinition, error) {
	quest, err := in.toDefinition()
	if err != nil {
		return nil, err
	}
	if err := c.store.Quests.Create(ctx, quest); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("quest %q already exists: %w", in.Title, apperr.ErrConflict)
		}
		return nil, err
	}

	c.log.Info().
		Uint("quest_id", quest.ID).
		Str("title", quest.Title).
		Str("period", string(quest.Period)).
		Msg("Quest created")
	return quest, nil
}

// UpdateQuest replaces the definition of an existing quest.
func (c *Catalog) UpdateQuest(ctx context.Context, id uint, in QuestInput) (*models.QuestDefinition, error) {
	existing, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	quest, err := in.toDefinition()
	if err != nil {
		return nil, err
	}
	quest.ID = existing.ID
	quest.CreatedAt = existing.CreatedAt
	if in.IsActive == nil {
		quest.IsActive = existing.IsActive
	}

	if err := c.store.Quests.Update(ctx, quest); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("quest %q already exists: %w", in.Title, apperr.ErrConflict)
		}
		return nil, err
	}
	c.cache.Remove(id)
	return quest, nil
}

// SetActive enables or disables a quest. Disabled quests are no longer
// assigned but existing assignments stay completable.
func (c *Catalog) SetActive(ctx context.Context, id uint, active bool) error {
	if _, err := c.Get(ctx, id); err != nil {
		return err
	}
	if err := c.store.Quests.SetActive(ctx, id, active); err != nil {
		return err
	}
	c.cache.Remove(id)
	c.log.Info().Uint("quest_id", id).Bool("active", active).Msg("Quest availability changed")
	return nil
}

// Get returns a quest definition by ID.
func (c *Catalog) Get(ctx context.Context, id uint) (*models.QuestDefinition, error) {
	if cached, ok := c.cache.Get(id); ok {
		quest := cached.(models.QuestDefinition)
		return &quest, nil
	}

	quest, err := c.store.Quests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("quest %d: %w", id, apperr.ErrNotFound)
		}
		return nil, err
	}
	c.cache.Add(id, *quest)
	return quest, nil
}

// ListActive returns the assignable quests of a period.
func (c *Catalog) ListActive(ctx context.Context, period models.QuestPeriod) ([]models.QuestDefinition, error) {
	if !period.Valid() {
		return nil, fmt.Errorf("unknown period %q: %w", period, apperr.ErrInvalidArgument)
	}
	return c.store.Quests.ListActive(ctx, period)
}

// List returns every quest of a period, or all quests when period is empty.
func (c *Catalog) List(ctx context.Context, period models.QuestPeriod) ([]models.QuestDefinition, error) {
	if period != "" && !period.Valid() {
		return nil, fmt.Errorf("unknown period %q: %w", period, apperr.ErrInvalidArgument)
	}
	return c.store.Quests.List(ctx, period)
}

// Seed loads quest definitions from YAML and upserts them by title. The whole
// document is validated before anything is written.
func (c *Catalog) Seed(ctx context.Context, r io.Reader) (int, error) {
	var doc seedFile
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to parse quest seed: %w", err)
	}

	quests := make([]*models.QuestDefinition, 0, len(doc.Quests))
	for _, in := range doc.Quests {
		quest, err := in.toDefinition()
		if err != nil {
			return 0, err
		}
		quests = append(quests, quest)
	}

	err := c.store.WithinTransaction(ctx, func(tx *repository.Store) error {
		for _, quest := range quests {
			if err := tx.Quests.Upsert(ctx, quest); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	c.cache.Purge()
	c.log.Info().Int("count", len(quests)).Msg("Quest catalog seeded")
	return len(quests), nil
}

// SeedFile seeds the catalog from a YAML file on disk.
func (c *Catalog) SeedFile(ctx context.Context, path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open quest seed %s: %w", path, err)
	}
	defer f.Close()
	return c.Seed(ctx, f)
}
