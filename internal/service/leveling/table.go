package leveling

import (
	"fmt"

	"github.com/aimd54/shelf-progression/internal/apperr"
)

// LevelTable holds the XP curve and per-level coin rewards. XP[l] is the
// season XP needed to leave level l; Coins[l] is paid on reaching level l.
// Index 0 is a zero sentinel and both slices have MaxLevel+1 entries.
type LevelTable struct {
	XP    []int64
	Coins []int64
}

// LevelReward describes what reaching one level costs and pays.
type LevelReward struct {
	Level      int   `json:"level"`
	XPRequired int64 `json:"xp_required"`
	Coins      int64 `json:"coins"`
}

// DefaultTable returns the production curve: 30 levels, 41000 season XP cap.
func DefaultTable() LevelTable {
	return LevelTable{
		XP: []int64{
			0, 100, 250, 450, 700, 1000, 1400, 1900, 2500, 3200,
			4000, 4900, 5900, 7000, 8200, 9500, 10900, 12400, 14000, 15700,
			17500, 19400, 21400, 23500, 25700, 28000, 30400, 32900, 35500, 38200,
			41000,
		},
		Coins: []int64{
			0, 0, 50, 60, 70, 80, 90, 100, 120, 140,
			160, 180, 200, 225, 250, 275, 300, 330, 360, 390,
			420, 460, 500, 540, 580, 620, 670, 720, 770, 830,
			1000,
		},
	}
}

// MaxLevel is the highest reachable level.
func (t LevelTable) MaxLevel() int {
	return len(t.XP) - 1
}

// MaxXP is the season XP cap reached at MaxLevel.
func (t LevelTable) MaxXP() int64 {
	return t.XP[t.MaxLevel()]
}

// Validate checks the table shape.
func (t LevelTable) Validate() error {
	if len(t.XP) < 2 {
		return fmt.Errorf("%w: level table needs at least two entries", apperr.ErrConfiguration)
	}
	if len(t.XP) != len(t.Coins) {
		return fmt.Errorf("%w: xp table has %d entries, coin table has %d",
			apperr.ErrConfiguration, len(t.XP), len(t.Coins))
	}
	if t.XP[0] != 0 || t.Coins[0] != 0 {
		return fmt.Errorf("%w: level table index 0 must be a zero sentinel", apperr.ErrConfiguration)
	}
	for i := 1; i < len(t.XP); i++ {
		if t.XP[i] <= t.XP[i-1] {
			return fmt.Errorf("%w: xp threshold %d is not ascending", apperr.ErrConfiguration, i)
		}
		if t.Coins[i] < 0 {
			return fmt.Errorf("%w: coin reward %d is negative", apperr.ErrConfiguration, i)
		}
	}
	return nil
}

// Rewards projects the table to levels 1..MaxLevel.
func (t LevelTable) Rewards() []LevelReward {
	rewards := make([]LevelReward, 0, t.MaxLevel())
	for level := 1; level <= t.MaxLevel(); level++ {
		rewards = append(rewards, LevelReward{
			Level:      level,
			XPRequired: t.XP[level-1],
			Coins:      t.Coins[level],
		})
	}
	return rewards
}
