package leaderboard

import (
	"sort"
	"time"

	"github.com/aimd54/shelf-progression/internal/models"
)

// less orders candidates: season XP desc, earliest level-up first (never
// leveled last), oldest account, most books, most groups. The final user ID
// comparison only stabilizes display order and does not affect positions.
func less(a, b *models.RankingCandidate) bool {
	if a.SeasonXP != b.SeasonXP {
		return a.SeasonXP > b.SeasonXP
	}
	if c := compareLevelUp(a.LastLevelUpAt, b.LastLevelUpAt); c != 0 {
		return c < 0
	}
	if !a.AccountCreated.Equal(b.AccountCreated) {
		return a.AccountCreated.Before(b.AccountCreated)
	}
	if a.OwnedBooks != b.OwnedBooks {
		return a.OwnedBooks > b.OwnedBooks
	}
	if a.GroupCount != b.GroupCount {
		return a.GroupCount > b.GroupCount
	}
	return a.UserID < b.UserID
}

// tied reports whether a and b share every ranking key.
func tied(a, b *models.RankingCandidate) bool {
	return a.SeasonXP == b.SeasonXP &&
		compareLevelUp(a.LastLevelUpAt, b.LastLevelUpAt) == 0 &&
		a.AccountCreated.Equal(b.AccountCreated) &&
		a.OwnedBooks == b.OwnedBooks &&
		a.GroupCount == b.GroupCount
}

func compareLevelUp(a, b *time.Time) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return 1
	case b == nil:
		return -1
	case a.Before(*b):
		return -1
	case a.After(*b):
		return 1
	default:
		return 0
	}
}

// rank sorts candidates and assigns competition positions (1, 2, 2, 4).
func rank(candidates []models.RankingCandidate, limit int) []Entry {
	sort.Slice(candidates, func(i, j int) bool {
		return less(&candidates[i], &candidates[j])
	})

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}

	entries := make([]Entry, len(candidates))
	for i := range candidates {
		c := &candidates[i]
		position := i + 1
		if i > 0 && tied(c, &candidates[i-1]) {
			position = entries[i-1].Position
		}
		name := c.DisplayName
		if name == "" {
			name = c.Username
		}
		entries[i] = Entry{
			Position:    position,
			UserID:      c.UserID,
			DisplayName: name,
			Level:       c.Level,
			SeasonXP:    c.SeasonXP,
			TotalBooks:  c.OwnedBooks,
			TotalGroups: c.GroupCount,
		}
	}
	return entries
}
