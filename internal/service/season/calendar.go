package season

import (
	"fmt"
	"time"

	"github.com/aimd54/shelf-progression/internal/models"
)

type bucket struct {
	key   string
	title string
	month time.Month
	day   int
}

// Buckets in calendar order. Each runs until the day before the next starts;
// autumn runs to December 31.
var buckets = []bucket{
	{key: "winter", title: "Winter", month: time.January, day: 1},
	{key: "spring", title: "Spring", month: time.March, day: 20},
	{key: "summer", title: "Summer", month: time.June, day: 21},
	{key: "autumn", title: "Autumn", month: time.September, day: 22},
}

// For returns the unsaved season that covers t, in t's location.
func For(t time.Time) models.Season {
	year := t.Year()
	loc := t.Location()

	idx := 0
	for i, b := range buckets {
		if !t.Before(time.Date(year, b.month, b.day, 0, 0, 0, 0, loc)) {
			idx = i
		}
	}

	b := buckets[idx]
	start := time.Date(year, b.month, b.day, 0, 0, 0, 0, loc)
	var next time.Time
	if idx+1 < len(buckets) {
		n := buckets[idx+1]
		next = time.Date(year, n.month, n.day, 0, 0, 0, 0, loc)
	} else {
		next = time.Date(year+1, time.January, 1, 0, 0, 0, 0, loc)
	}

	return models.Season{
		Name:        fmt.Sprintf("%d-%s", year, b.key),
		DisplayName: fmt.Sprintf("%s %d", b.title, year),
		StartDate:   start,
		EndDate:     next.Add(-time.Second),
	}
}

// After returns the unsaved season that follows s.
func After(s *models.Season) models.Season {
	return For(s.EndDate.Add(time.Second))
}
