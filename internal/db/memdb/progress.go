package memdb

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/models"
)

// AppendPoints and UpdateProgress answer models.ErrNotFound for unknown users,
// like the users foreign key does in Postgres.
func (db *DB) AppendPoints(_ context.Context, e models.PointsEntry) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.users[e.UserID]; !ok {
		return models.ErrNotFound
	}
	db.history = append(db.history, e)
	return nil
}

func (db *DB) PointsHistory(_ context.Context, userID uuid.UUID, limit int) ([]models.PointsEntry, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.PointsEntry
	for i := len(db.history) - 1; i >= 0; i-- {
		if db.history[i].UserID == userID {
			out = append(out, db.history[i])
			if limit > 0 && len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

// UpdateProgress holds the store lock across fn, which serialises updates.
func (db *DB) UpdateProgress(_ context.Context, userID uuid.UUID, fn func(cur models.Progress, exists bool) models.Progress) (models.Progress, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	if _, ok := db.users[userID]; !ok {
		return models.Progress{}, models.ErrNotFound
	}
	cur, exists := db.progress[userID]
	if !exists {
		cur = models.Progress{UserID: userID, CurrentLevel: 1}
	}
	next := fn(cur, exists)
	next.UserID = userID
	db.progress[userID] = next
	return next, nil
}

func (db *DB) GetProgress(_ context.Context, userID uuid.UUID) (models.Progress, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.progress[userID]
	if !ok {
		return models.Progress{}, models.ErrNotFound
	}
	return p, nil
}

func (db *DB) ResetProgress(_ context.Context, userID uuid.UUID) (models.Progress, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	p, ok := db.progress[userID]
	if !ok {
		return models.Progress{}, models.ErrNotFound
	}
	p.TotalPoints = 0
	p.CurrentLevel = gamification.LevelFor(0)
	p.CurrentStreak = 0
	p.LastActivityDate = nil
	p.UpdatedAt = time.Now()
	db.progress[userID] = p
	return p, nil
}

func (db *DB) ActivityStats(_ context.Context, userID uuid.UUID, attendanceWindow int) (models.ActivityStats, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var rows []attendanceRow
	for _, a := range db.attendance {
		if a.studentID == userID {
			rows = append(rows, a)
		}
	}
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].date.Equal(rows[j].date) {
			return rows[i].date.After(rows[j].date)
		}
		return rows[i].seq > rows[j].seq
	})
	if attendanceWindow > 0 && len(rows) > attendanceWindow {
		rows = rows[:attendanceWindow]
	}
	stats := models.ActivityStats{
		SubmittedFiles: db.submissions[userID],
		GradeScores:    append([]float64(nil), db.grades[userID]...),
	}
	for _, r := range rows {
		stats.RecentAttendance = append(stats.RecentAttendance, r.status)
	}
	return stats, nil
}

func (db *DB) UserBadges(_ context.Context, userID uuid.UUID) ([]models.UserBadge, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []models.UserBadge
	for id, at := range db.badges[userID] {
		out = append(out, models.UserBadge{UserID: userID, BadgeID: id, EarnedAt: at})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EarnedAt.Before(out[j].EarnedAt) })
	return out, nil
}

func (db *DB) AwardBadge(_ context.Context, b models.UserBadge) (bool, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	held, ok := db.badges[b.UserID]
	if !ok {
		held = make(map[string]time.Time)
		db.badges[b.UserID] = held
	}
	if _, dup := held[b.BadgeID]; dup {
		return false, nil
	}
	held[b.BadgeID] = b.EarnedAt
	return true, nil
}

func (db *DB) LeaderboardRows(_ context.Context, userIDs []uuid.UUID, limit int) ([]models.LeaderboardRow, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	seen := make(map[uuid.UUID]bool, len(userIDs))
	var rows []models.LeaderboardRow
	for _, id := range userIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		p, ok := db.progress[id]
		if !ok {
			continue
		}
		rows = append(rows, models.LeaderboardRow{
			UserID:        id,
			FullName:      db.users[id].FullName,
			TotalPoints:   p.TotalPoints,
			CurrentLevel:  p.CurrentLevel,
			CurrentStreak: p.CurrentStreak,
		})
	}
	ranked := gamification.RankRows(rows, limit)
	out := make([]models.LeaderboardRow, 0, len(ranked))
	for _, e := range ranked {
		out = append(out, models.LeaderboardRow{
			UserID: e.UserID, FullName: e.FullName, TotalPoints: e.Points, CurrentLevel: e.Level, CurrentStreak: e.Streak,
		})
	}
	return out, nil
}
