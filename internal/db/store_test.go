//go:build testutil
// +build testutil

package db_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Spok95/school-progress/internal/db"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/testutil/testdb"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestStore(t *testing.T) {
	h, err := testdb.Start(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	defer h.Close()

	ctx := context.Background()
	store := db.New(h.DB)

	t.Run("progress round trip and reset", func(t *testing.T) {
		id := mustSeedUser(t, store, "Азиз", models.Student)
		today := date(2025, time.March, 10)

		p, err := store.UpdateProgress(ctx, id, func(cur models.Progress, exists bool) models.Progress {
			if exists {
				t.Fatalf("первая запись не должна существовать")
			}
			return gamification.Advance(cur, exists, 120, today)
		})
		if err != nil {
			t.Fatal(err)
		}
		got, err := store.GetProgress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if got.TotalPoints != 120 || got.CurrentLevel != 2 || got.LastActivityDate == nil || !got.LastActivityDate.Equal(today) {
			t.Fatalf("got %+v, written %+v", got, p)
		}

		r, err := store.ResetProgress(ctx, id)
		if err != nil {
			t.Fatal(err)
		}
		if r.TotalPoints != 0 || r.CurrentLevel != 1 || r.LongestStreak != 1 || r.LastActivityDate != nil {
			t.Fatalf("после сброса %+v", r)
		}
		_, err = store.UpdateProgress(ctx, id, func(_ models.Progress, exists bool) models.Progress {
			if !exists {
				t.Fatalf("после сброса строка должна существовать")
			}
			return r
		})
		if err != nil {
			t.Fatal(err)
		}
	})

	t.Run("unknown user", func(t *testing.T) {
		if _, err := store.GetProgress(ctx, uuid.New()); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
		err := store.AppendPoints(ctx, models.PointsEntry{UserID: uuid.New(), Points: 1, Source: "x", CreatedAt: time.Now()})
		if !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("badges are idempotent", func(t *testing.T) {
		id := mustSeedUser(t, store, "Лола", models.Student)
		b := models.UserBadge{UserID: id, BadgeID: gamification.BadgeTopStudent, EarnedAt: time.Now()}
		first, err := store.AwardBadge(ctx, b)
		if err != nil || !first {
			t.Fatalf("first = %v, %v", first, err)
		}
		second, err := store.AwardBadge(ctx, b)
		if err != nil || second {
			t.Fatalf("second = %v, %v", second, err)
		}
		held, _ := store.UserBadges(ctx, id)
		if len(held) != 1 {
			t.Fatalf("held = %+v", held)
		}
	})

	t.Run("activity stats", func(t *testing.T) {
		id := mustSeedUser(t, store, "Шахзод", models.Student)
		for i := 0; i < 12; i++ {
			st := models.Present
			if i == 0 {
				st = models.Absent // самая старая запись, за окно 10 не попадает
			}
			if err := store.RecordAttendance(ctx, nil, id, date(2025, time.February, 1+i), st); err != nil {
				t.Fatal(err)
			}
		}
		for _, g := range []float64{92.5, 88} {
			if err := store.RecordGrade(ctx, id, g); err != nil {
				t.Fatal(err)
			}
		}
		if err := store.RecordSubmission(ctx, id, "essay.pdf"); err != nil {
			t.Fatal(err)
		}

		s, err := store.ActivityStats(ctx, id, gamification.AttendanceWindow)
		if err != nil {
			t.Fatal(err)
		}
		if s.SubmittedFiles != 1 || len(s.RecentAttendance) != 10 || len(s.GradeScores) != 2 {
			t.Fatalf("stats = %+v", s)
		}
		for _, a := range s.RecentAttendance {
			if a != models.Present {
				t.Fatalf("в окно попала старая запись: %+v", s.RecentAttendance)
			}
		}
	})

	t.Run("leaderboard", func(t *testing.T) {
		group, err := store.CreateGroup(ctx, "Pre-IELTS", nil)
		if err != nil {
			t.Fatal(err)
		}
		for i, pts := range []int{50, 300, 300, 10} {
			id := mustSeedUser(t, store, "Ученик "+string(rune('A'+i)), models.Student)
			if _, err := store.Enroll(ctx, models.Enrollment{GroupID: group, StudentID: id, CourseStartDate: date(2025, time.January, 5)}); err != nil {
				t.Fatal(err)
			}
			_, err := store.UpdateProgress(ctx, id, func(cur models.Progress, exists bool) models.Progress {
				return gamification.Advance(cur, exists, pts, date(2025, time.March, 1))
			})
			if err != nil {
				t.Fatal(err)
			}
		}
		members, err := store.GroupStudentIDs(ctx, group)
		if err != nil || len(members) != 4 {
			t.Fatalf("members = %v, %v", members, err)
		}
		rows, err := store.LeaderboardRows(ctx, members, 3)
		if err != nil {
			t.Fatal(err)
		}
		if len(rows) != 3 || rows[0].TotalPoints != 300 || rows[1].TotalPoints != 300 || rows[2].TotalPoints != 50 {
			t.Fatalf("rows = %+v", rows)
		}
		if rows[0].UserID.String() > rows[1].UserID.String() {
			t.Fatal("ничья должна разрешаться по user_id")
		}
	})

	t.Run("payment cycle and reminder claim", func(t *testing.T) {
		student := mustSeedUser(t, store, "Мадина", models.Student)
		parent := mustSeedUser(t, store, "Родитель", models.Parent)
		if err := store.LinkParent(ctx, parent, student); err != nil {
			t.Fatal(err)
		}
		group, _ := store.CreateGroup(ctx, "General English", nil)
		e, err := store.Enroll(ctx, models.Enrollment{GroupID: group, StudentID: student, MonthlyPaymentAmount: 500000, CourseStartDate: date(2025, time.January, 15)})
		if err != nil {
			t.Fatal(err)
		}

		due := date(2025, time.March, 15)
		if err := store.UpdatePaymentCycle(ctx, e.ID, models.StatusOverdue, due); err != nil {
			t.Fatal(err)
		}
		list, err := store.ListEnrollments(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var found *models.Enrollment
		for i := range list {
			if list[i].ID == e.ID {
				found = &list[i]
			}
		}
		if found == nil || found.PaymentStatus != models.StatusOverdue || found.PaymentDueDate == nil || !found.PaymentDueDate.Equal(due) || found.GroupName != "General English" {
			t.Fatalf("enrollment = %+v", found)
		}

		parents, err := store.ParentsOf(ctx, student)
		if err != nil || len(parents) != 1 || parents[0].ID != parent {
			t.Fatalf("parents = %+v, %v", parents, err)
		}

		r := models.ReminderLog{Kind: models.ReminderPayment, SubjectID: e.ID, DueDate: due, RunSlot: "2025-03-16T09", ReminderType: "overdue"}
		if ok, err := store.ClaimReminder(ctx, r); err != nil || !ok {
			t.Fatalf("first claim = %v, %v", ok, err)
		}
		if ok, err := store.ClaimReminder(ctx, r); err != nil || ok {
			t.Fatalf("second claim = %v, %v", ok, err)
		}
		r.RunSlot = "2025-03-16T20"
		if ok, _ := store.ClaimReminder(ctx, r); !ok {
			t.Fatal("другой слот должен пройти")
		}

		if err := store.MarkPaymentPaid(ctx, e.ID, date(2025, time.March, 17)); err != nil {
			t.Fatal(err)
		}
		if err := store.MarkPaymentPaid(ctx, uuid.New(), time.Now()); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}
	})

	t.Run("salary cycle", func(t *testing.T) {
		teacher := mustSeedUser(t, store, "Учитель", models.Teacher)
		start := date(2024, time.September, 1)
		if err := store.UpsertSalary(ctx, models.TeacherSalary{TeacherID: teacher, SalaryAmount: 4000000, EmploymentStartDate: start}); err != nil {
			t.Fatal(err)
		}
		due := date(2025, time.March, 1)
		if err := store.UpdateSalaryCycle(ctx, teacher, models.StatusPending, due); err != nil {
			t.Fatal(err)
		}
		if err := store.MarkSalaryPaid(ctx, teacher, due); err != nil {
			t.Fatal(err)
		}
		list, err := store.ListTeacherSalaries(ctx)
		if err != nil {
			t.Fatal(err)
		}
		var found *models.TeacherSalary
		for i := range list {
			if list[i].TeacherID == teacher {
				found = &list[i]
			}
		}
		if found == nil || found.SalaryStatus != models.StatusPaid || found.LastSalaryDate == nil || !found.LastSalaryDate.Equal(due) {
			t.Fatalf("salary = %+v", found)
		}
		if err := store.UpdateSalaryCycle(ctx, uuid.New(), models.StatusPending, due); !errors.Is(err, models.ErrNotFound) {
			t.Fatalf("err = %v", err)
		}

		teachers, err := store.UsersByRole(ctx, models.Teacher)
		if err != nil {
			t.Fatal(err)
		}
		seen := false
		for _, u := range teachers {
			seen = seen || u.ID == teacher
		}
		if !seen {
			t.Fatalf("teachers = %+v", teachers)
		}
	})

	t.Run("notifications", func(t *testing.T) {
		id := mustSeedUser(t, store, "Камила", models.Student)
		for _, title := range []string{"one", "two"} {
			if err := store.CreateNotification(ctx, models.Notification{UserID: id, Type: models.NotifySystem, Title: title, Message: "m"}); err != nil {
				t.Fatal(err)
			}
		}
		ns, err := store.ListNotifications(ctx, id, false, 10)
		if err != nil || len(ns) != 2 {
			t.Fatalf("ns = %+v, %v", ns, err)
		}
		if err := store.MarkNotificationRead(ctx, ns[0].ID); err != nil {
			t.Fatal(err)
		}
		unread, _ := store.ListNotifications(ctx, id, true, 10)
		if len(unread) != 1 {
			t.Fatalf("unread = %+v", unread)
		}
	})

	t.Run("push subscriptions", func(t *testing.T) {
		id := mustSeedUser(t, store, "Тимур", models.Student)
		sub, err := store.SavePushSubscription(ctx, models.PushSubscription{UserID: id, Endpoint: "https://push.example/1", P256dh: "k", Auth: "a"})
		if err != nil {
			t.Fatal(err)
		}
		again, err := store.SavePushSubscription(ctx, models.PushSubscription{UserID: id, Endpoint: "https://push.example/1", P256dh: "k2", Auth: "a2"})
		if err != nil || again.ID != sub.ID {
			t.Fatalf("upsert = %+v, %v", again, err)
		}
		if err := store.DeletePushSubscription(ctx, sub.ID); err != nil {
			t.Fatal(err)
		}
		subs, _ := store.PushSubscriptions(ctx, id)
		if len(subs) != 0 {
			t.Fatalf("subs = %+v", subs)
		}
	})
}
