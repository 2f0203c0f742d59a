package gamification

import (
	"testing"

	"github.com/Spok95/school-progress/internal/models"
)

func ids(bs []models.Badge) map[string]bool {
	out := make(map[string]bool, len(bs))
	for _, b := range bs {
		out[b.ID] = true
	}
	return out
}

func attendance(n int, s models.AttendanceStatus) []models.AttendanceStatus {
	out := make([]models.AttendanceStatus, n)
	for i := range out {
		out[i] = s
	}
	return out
}

func TestQualifyingBadges(t *testing.T) {
	t.Run("first assignment", func(t *testing.T) {
		got := ids(QualifyingBadges(models.Progress{}, models.ActivityStats{SubmittedFiles: 1}, nil))
		if !got[BadgeFirstAssignment] || got[BadgeAssignmentKing] {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("assignment king", func(t *testing.T) {
		got := ids(QualifyingBadges(models.Progress{}, models.ActivityStats{SubmittedFiles: 50}, nil))
		if !got[BadgeFirstAssignment] || !got[BadgeAssignmentKing] {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("perfect attendance counts late", func(t *testing.T) {
		recent := attendance(10, models.Present)
		recent[3] = models.Late
		got := ids(QualifyingBadges(models.Progress{}, models.ActivityStats{RecentAttendance: recent}, nil))
		if !got[BadgePerfectAttendance] {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("perfect attendance rejects excused", func(t *testing.T) {
		recent := attendance(10, models.Present)
		recent[0] = models.Excused
		got := ids(QualifyingBadges(models.Progress{}, models.ActivityStats{RecentAttendance: recent}, nil))
		if got[BadgePerfectAttendance] {
			t.Fatalf("excused absence should break the run: %v", got)
		}
	})

	t.Run("perfect attendance needs a full window", func(t *testing.T) {
		got := ids(QualifyingBadges(models.Progress{}, models.ActivityStats{RecentAttendance: attendance(9, models.Present)}, nil))
		if got[BadgePerfectAttendance] {
			t.Fatalf("9 records should not qualify: %v", got)
		}
	})

	t.Run("top student", func(t *testing.T) {
		got := ids(QualifyingBadges(models.Progress{}, models.ActivityStats{GradeScores: []float64{95, 85}}, nil))
		if !got[BadgeTopStudent] {
			t.Fatalf("avg 90 should qualify: %v", got)
		}
		got = ids(QualifyingBadges(models.Progress{}, models.ActivityStats{GradeScores: []float64{95, 84}}, nil))
		if got[BadgeTopStudent] {
			t.Fatalf("avg 89.5 should not qualify: %v", got)
		}
		got = ids(QualifyingBadges(models.Progress{}, models.ActivityStats{}, nil))
		if got[BadgeTopStudent] {
			t.Fatalf("no grades should not qualify: %v", got)
		}
	})

	t.Run("streak badges", func(t *testing.T) {
		got := ids(QualifyingBadges(models.Progress{CurrentStreak: 7}, models.ActivityStats{}, nil))
		if !got[BadgeWeekWarrior] || got[BadgeMonthMaster] {
			t.Fatalf("got %v", got)
		}
		got = ids(QualifyingBadges(models.Progress{CurrentStreak: 30}, models.ActivityStats{}, nil))
		if !got[BadgeWeekWarrior] || !got[BadgeMonthMaster] {
			t.Fatalf("got %v", got)
		}
	})

	t.Run("held badges are skipped", func(t *testing.T) {
		held := map[string]bool{BadgeWeekWarrior: true}
		got := ids(QualifyingBadges(models.Progress{CurrentStreak: 8}, models.ActivityStats{}, held))
		if len(got) != 0 {
			t.Fatalf("got %v, want nothing", got)
		}
	})
}

func TestAttendanceRate(t *testing.T) {
	recs := []models.AttendanceStatus{models.Present, models.Late, models.Excused, models.Absent}
	if got := RateAttendance.Rate(recs); got != 75 {
		t.Fatalf("rate = %v, want 75", got)
	}
	if got := BadgeAttendance.Rate(recs); got != 50 {
		t.Fatalf("badge rate = %v, want 50", got)
	}
	if got := RateAttendance.Rate(nil); got != 0 {
		t.Fatalf("empty rate = %v", got)
	}
}

func TestRewardFor(t *testing.T) {
	cases := []struct {
		source string
		score  float64
		want   int
	}{
		{SourceAssignment, 0, 10},
		{SourceAttendance, 0, 5},
		{SourceGrade, 92, 20},
		{SourceGrade, 75, 10},
		{SourceGrade, 40, 5},
		{SourceLogin, 0, 2},
		{SourcePlacementTest, 0, 15},
		{"unknown", 0, 0},
	}
	for _, c := range cases {
		if got := RewardFor(c.source, c.score); got != c.want {
			t.Fatalf("RewardFor(%q, %v) = %d, want %d", c.source, c.score, got, c.want)
		}
	}
}
