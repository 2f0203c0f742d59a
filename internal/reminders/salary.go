package reminders

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/metrics"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/notify"
)

// SalaryJob reminds the main teachers about teacher salaries.
type SalaryJob struct {
	base
}

func NewSalaryJob(store Store, sender Sender, log *zap.Logger, opts Options) *SalaryJob {
	return &SalaryJob{base: newBase("salary_reminders", models.ReminderSalary, store, sender, log, opts)}
}

func (j *SalaryJob) WithClock(now func() time.Time) *SalaryJob {
	j.now = now
	return j
}

func (j *SalaryJob) Run(ctx context.Context, force bool) (Result, error) {
	started := time.Now()
	now, today, ok, res := j.start(force)
	if !ok {
		return res, nil
	}
	list, err := j.store.ListTeacherSalaries(ctx)
	if err != nil {
		return res, fmt.Errorf("list salaries: %w", err)
	}
	admins, err := j.store.UsersByRole(ctx, models.MainTeacher)
	if err != nil {
		return res, fmt.Errorf("list main teachers: %w", err)
	}
	if len(admins) == 0 {
		res.Note = "no main teacher to notify"
	}
	slot := RunSlot(now)
	t := &tally{res: res}

	j.each(ctx, len(list), func(ctx context.Context, i int) {
		j.process(ctx, list[i], admins, today, slot, t)
	})
	return j.finish(t.res, started), nil
}

func (j *SalaryJob) process(ctx context.Context, s models.TeacherSalary, admins []models.User, today time.Time, slot string, t *tally) {
	t.add(func(r *Result) { r.Processed++ })

	step := Advance(Cycle{
		Start:    s.EmploymentStartDate,
		LastPaid: s.LastSalaryDate,
		Status:   s.SalaryStatus,
		Due:      s.SalaryDueDate,
	}, today)

	if step.Changed {
		if err := j.store.UpdateSalaryCycle(ctx, s.TeacherID, step.Status, step.Due); err != nil {
			t.fail("teacher %s: update cycle: %v", s.TeacherID, err)
			return
		}
		t.add(func(r *Result) { r.Updated++ })
	}
	if step.Remind == RemindNone {
		return
	}

	claimed, err := j.claim(ctx, s.TeacherID, step, slot)
	if err != nil {
		t.fail("teacher %s: claim reminder: %v", s.TeacherID, err)
		return
	}
	if !claimed {
		metrics.Reminders.WithLabelValues(string(j.kind), "duplicate").Inc()
		t.add(func(r *Result) { r.Skipped++ })
		return
	}

	teacher, err := j.store.GetUser(ctx, s.TeacherID)
	if err != nil {
		t.fail("teacher %s: load teacher: %v", s.TeacherID, err)
		return
	}

	msg := salaryMessage(s, teacher, step, today, j.opts.PlatformURL)
	errs := j.dispatch(ctx, admins, msg)
	for _, a := range admins {
		j.inApp(ctx, a.ID, models.NotifySalary, msg)
	}
	j.inApp(ctx, teacher.ID, models.NotifySalary, teacherNotice(s, step))

	outcome := "sent"
	if len(errs) > 0 {
		outcome = "partial"
		for _, e := range errs {
			t.fail("teacher %s: %s", s.TeacherID, e)
		}
	}
	metrics.Reminders.WithLabelValues(string(j.kind), outcome).Inc()
	t.add(func(r *Result) { r.Reminded++ })
	j.log.Info("salary reminder sent",
		zap.String("teacher_id", s.TeacherID.String()),
		zap.String("type", string(step.Remind)),
		zap.String("due", step.Due.Format(time.DateOnly)),
		zap.Int("recipients", len(admins)),
	)
}

func salaryMessage(s models.TeacherSalary, teacher models.User, step Step, today time.Time, link string) notify.Message {
	m := notify.Message{ActionURL: link, Priority: notify.PriorityNormal}
	switch step.Remind {
	case RemindOverdue:
		days := calendar.DaysBetween(step.Due, today)
		m.Subject = "Overdue teacher salary"
		m.Priority = notify.PriorityHigh
		m.Body = fmt.Sprintf("The salary of %s (%s UZS) was due on %s and is overdue by %d %s.",
			teacher.FullName, FormatAmount(s.SalaryAmount), calendar.Format(step.Due), days, plural(days, "day", "days"))
	default:
		m.Subject = "Teacher salary due today"
		m.Body = fmt.Sprintf("The salary of %s (%s UZS) is due today, %s.",
			teacher.FullName, FormatAmount(s.SalaryAmount), calendar.Format(step.Due))
	}
	return m
}

func teacherNotice(s models.TeacherSalary, step Step) notify.Message {
	if step.Remind == RemindOverdue {
		return notify.Message{
			Subject: "Salary delayed",
			Body:    fmt.Sprintf("Your salary of %s UZS due on %s has not been paid yet. The administration has been reminded.", FormatAmount(s.SalaryAmount), calendar.Format(step.Due)),
		}
	}
	return notify.Message{
		Subject: "Salary day",
		Body:    fmt.Sprintf("Your salary of %s UZS is due today, %s.", FormatAmount(s.SalaryAmount), calendar.Format(step.Due)),
	}
}
