package models

import (
	"time"

	"github.com/google/uuid"
)

// Progress is the per-user gamification state. LastActivityDate is a calendar
// date (midnight UTC of the local day).
type Progress struct {
	UserID           uuid.UUID  `db:"user_id" json:"user_id"`
	TotalPoints      int        `db:"total_points" json:"total_points"`
	CurrentLevel     int        `db:"current_level" json:"current_level"`
	CurrentStreak    int        `db:"current_streak" json:"current_streak"`
	LongestStreak    int        `db:"longest_streak" json:"longest_streak"`
	LastActivityDate *time.Time `db:"last_activity_date" json:"last_activity_date,omitempty"`
	UpdatedAt        time.Time  `db:"updated_at" json:"updated_at"`
}

// PointsEntry is one append-only row of the points ledger.
type PointsEntry struct {
	ID          uuid.UUID `db:"id" json:"id"`
	UserID      uuid.UUID `db:"user_id" json:"user_id"`
	Points      int       `db:"points" json:"points"`
	Source      string    `db:"source" json:"source"`
	SourceID    *string   `db:"source_id" json:"source_id,omitempty"`
	Description *string   `db:"description" json:"description,omitempty"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

type Badge struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Icon        string `json:"icon"`
	Requirement string `json:"requirement"`
}

type UserBadge struct {
	UserID   uuid.UUID `db:"user_id" json:"user_id"`
	BadgeID  string    `db:"badge_id" json:"badge_id"`
	EarnedAt time.Time `db:"earned_at" json:"earned_at"`
}

type AttendanceStatus string

const (
	Present AttendanceStatus = "present"
	Absent  AttendanceStatus = "absent"
	Late    AttendanceStatus = "late"
	Excused AttendanceStatus = "excused"
)

// ActivityStats are the aggregates the badge predicates look at.
// RecentAttendance is ordered newest first.
type ActivityStats struct {
	SubmittedFiles   int
	RecentAttendance []AttendanceStatus
	GradeScores      []float64
}

// LeaderboardRow is a Progress row joined with the user's display name.
type LeaderboardRow struct {
	UserID        uuid.UUID `db:"user_id"`
	FullName      string    `db:"full_name"`
	TotalPoints   int       `db:"total_points"`
	CurrentLevel  int       `db:"current_level"`
	CurrentStreak int       `db:"current_streak"`
}

type LeaderboardEntry struct {
	Rank      int       `json:"rank"`
	UserID    uuid.UUID `json:"user_id"`
	FullName  string    `json:"full_name"`
	Points    int       `json:"points"`
	Level     int       `json:"level"`
	LevelName string    `json:"level_name"`
	Streak    int       `json:"streak"`
}
