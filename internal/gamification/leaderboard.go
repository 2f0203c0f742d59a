package gamification

import (
	"sort"

	"github.com/Spok95/school-progress/internal/models"
)

const DefaultLeaderboardLimit = 10

// RankRows orders rows by points (desc) then user id (asc), cuts them to limit
// and numbers them from 1. limit <= 0 means DefaultLeaderboardLimit.
func RankRows(rows []models.LeaderboardRow, limit int) []models.LeaderboardEntry {
	if limit <= 0 {
		limit = DefaultLeaderboardLimit
	}
	sorted := make([]models.LeaderboardRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].TotalPoints != sorted[j].TotalPoints {
			return sorted[i].TotalPoints > sorted[j].TotalPoints
		}
		return sorted[i].UserID.String() < sorted[j].UserID.String()
	})
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}

	out := make([]models.LeaderboardEntry, 0, len(sorted))
	for i, r := range sorted {
		out = append(out, models.LeaderboardEntry{
			Rank:      i + 1,
			UserID:    r.UserID,
			FullName:  r.FullName,
			Points:    r.TotalPoints,
			Level:     r.CurrentLevel,
			LevelName: LevelName(r.CurrentLevel),
			Streak:    r.CurrentStreak,
		})
	}
	return out
}
