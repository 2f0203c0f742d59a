package gamification

import (
	"time"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/models"
)

// NextStreak decides the streak after an activity on today.
// Repeated activity on the same day keeps the streak; activity the day after
// the last one extends it; anything older (or no history) starts over at 1.
func NextStreak(last *time.Time, current, longest int, today time.Time) (streak, newLongest int) {
	streak = 1
	if last != nil && current > 0 {
		switch d := calendar.DaysBetween(*last, today); {
		case d <= 0:
			// same day, or an event stamped before the last recorded one
			streak = current
		case d == 1:
			streak = current + 1
		}
	}
	newLongest = longest
	if streak > newLongest {
		newLongest = streak
	}
	return streak, newLongest
}

// Advance applies an award of points on today to the current progress.
// exists=false means the user has no progress yet.
func Advance(cur models.Progress, exists bool, points int, today time.Time) models.Progress {
	next := cur
	if !exists {
		next = models.Progress{UserID: cur.UserID}
	}
	next.TotalPoints += points
	if next.TotalPoints < 0 {
		next.TotalPoints = 0
	}
	next.CurrentLevel = LevelFor(next.TotalPoints)
	next.CurrentStreak, next.LongestStreak = NextStreak(next.LastActivityDate, next.CurrentStreak, next.LongestStreak, today)
	d := calendar.Date(today)
	if next.LastActivityDate == nil || d.After(*next.LastActivityDate) {
		next.LastActivityDate = &d
	}
	return next
}
