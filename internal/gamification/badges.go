package gamification

import "github.com/Spok95/school-progress/internal/models"

const (
	BadgeFirstAssignment   = "first_assignment"
	BadgePerfectAttendance = "perfect_attendance"
	BadgeTopStudent        = "top_student"
	BadgeWeekWarrior       = "week_warrior"
	BadgeMonthMaster       = "month_master"
	BadgeAssignmentKing    = "assignment_king"
)

// AttendanceWindow is how many latest attendance records perfect_attendance looks at.
const AttendanceWindow = 10

// Badges is the static catalog, in evaluation order.
var Badges = []models.Badge{
	{ID: BadgeFirstAssignment, Name: "First Steps", Description: "Submitted your first assignment", Icon: "📝", Requirement: "Submit 1 assignment"},
	{ID: BadgePerfectAttendance, Name: "Perfect Attendance", Description: "Attended the last 10 classes", Icon: "🎯", Requirement: "Be present at 10 classes in a row"},
	{ID: BadgeTopStudent, Name: "Top Student", Description: "Average grade of 90 or higher", Icon: "🏆", Requirement: "Keep an average grade of at least 90"},
	{ID: BadgeWeekWarrior, Name: "Week Warrior", Description: "7-day activity streak", Icon: "🔥", Requirement: "Be active 7 days in a row"},
	{ID: BadgeMonthMaster, Name: "Month Master", Description: "30-day activity streak", Icon: "👑", Requirement: "Be active 30 days in a row"},
	{ID: BadgeAssignmentKing, Name: "Assignment King", Description: "Submitted 50 assignments", Icon: "📚", Requirement: "Submit 50 assignments"},
}

// BadgeByID looks a badge up in the catalog.
func BadgeByID(id string) (models.Badge, bool) {
	for _, b := range Badges {
		if b.ID == id {
			return b, true
		}
	}
	return models.Badge{}, false
}

// AttendancePolicy says which statuses count as "attended".
type AttendancePolicy struct {
	CountExcused bool
}

var (
	// BadgeAttendance is used for badge eligibility: excused absences do not count.
	BadgeAttendance = AttendancePolicy{}
	// RateAttendance is used for the attendance rate shown to students.
	RateAttendance = AttendancePolicy{CountExcused: true}
)

func (p AttendancePolicy) Attended(s models.AttendanceStatus) bool {
	switch s {
	case models.Present, models.Late:
		return true
	case models.Excused:
		return p.CountExcused
	}
	return false
}

// Rate returns the attended share of records in percent, 0 for no records.
func (p AttendancePolicy) Rate(records []models.AttendanceStatus) float64 {
	if len(records) == 0 {
		return 0
	}
	n := 0
	for _, r := range records {
		if p.Attended(r) {
			n++
		}
	}
	return float64(n) * 100 / float64(len(records))
}

func averageScore(scores []float64) (float64, bool) {
	if len(scores) == 0 {
		return 0, false
	}
	var sum float64
	for _, s := range scores {
		sum += s
	}
	return sum / float64(len(scores)), true
}

var badgeRules = map[string]func(models.Progress, models.ActivityStats) bool{
	BadgeFirstAssignment: func(_ models.Progress, s models.ActivityStats) bool {
		return s.SubmittedFiles >= 1
	},
	BadgePerfectAttendance: func(_ models.Progress, s models.ActivityStats) bool {
		recent := s.RecentAttendance
		if len(recent) < AttendanceWindow {
			return false
		}
		for _, r := range recent[:AttendanceWindow] {
			if !BadgeAttendance.Attended(r) {
				return false
			}
		}
		return true
	},
	BadgeTopStudent: func(_ models.Progress, s models.ActivityStats) bool {
		avg, ok := averageScore(s.GradeScores)
		return ok && avg >= 90
	},
	BadgeWeekWarrior: func(p models.Progress, _ models.ActivityStats) bool {
		return p.CurrentStreak >= 7
	},
	BadgeMonthMaster: func(p models.Progress, _ models.ActivityStats) bool {
		return p.CurrentStreak >= 30
	},
	BadgeAssignmentKing: func(_ models.Progress, s models.ActivityStats) bool {
		return s.SubmittedFiles >= 50
	},
}

// QualifyingBadges returns the catalog badges whose predicate holds and that are
// not in held. Each predicate is evaluated once.
func QualifyingBadges(p models.Progress, stats models.ActivityStats, held map[string]bool) []models.Badge {
	var out []models.Badge
	for _, b := range Badges {
		if held[b.ID] {
			continue
		}
		if rule, ok := badgeRules[b.ID]; ok && rule(p, stats) {
			out = append(out, b)
		}
	}
	return out
}
