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

// PaymentJob reminds students and their parents about monthly course payments.
type PaymentJob struct {
	base
}

func NewPaymentJob(store Store, sender Sender, log *zap.Logger, opts Options) *PaymentJob {
	return &PaymentJob{base: newBase("payment_reminders", models.ReminderPayment, store, sender, log, opts)}
}

// WithClock replaces the time source.
func (j *PaymentJob) WithClock(now func() time.Time) *PaymentJob {
	j.now = now
	return j
}

// Run processes every active enrollment. force skips the hour gate.
func (j *PaymentJob) Run(ctx context.Context, force bool) (Result, error) {
	started := time.Now()
	now, today, ok, res := j.start(force)
	if !ok {
		return res, nil
	}
	list, err := j.store.ListEnrollments(ctx)
	if err != nil {
		return res, fmt.Errorf("list enrollments: %w", err)
	}
	slot := RunSlot(now)
	t := &tally{res: res}

	j.each(ctx, len(list), func(ctx context.Context, i int) {
		j.process(ctx, list[i], today, slot, t)
	})
	return j.finish(t.res, started), nil
}

func (j *PaymentJob) process(ctx context.Context, e models.Enrollment, today time.Time, slot string, t *tally) {
	t.add(func(r *Result) { r.Processed++ })

	step := Advance(Cycle{
		Start:    e.CourseStartDate,
		LastPaid: e.LastPaymentDate,
		Status:   e.PaymentStatus,
		Due:      e.PaymentDueDate,
	}, today)

	if step.Changed {
		if err := j.store.UpdatePaymentCycle(ctx, e.ID, step.Status, step.Due); err != nil {
			t.fail("enrollment %s: update cycle: %v", e.ID, err)
			return
		}
		t.add(func(r *Result) { r.Updated++ })
	}
	if step.Remind == RemindNone {
		return
	}

	claimed, err := j.claim(ctx, e.ID, step, slot)
	if err != nil {
		t.fail("enrollment %s: claim reminder: %v", e.ID, err)
		return
	}
	if !claimed {
		metrics.Reminders.WithLabelValues(string(j.kind), "duplicate").Inc()
		t.add(func(r *Result) { r.Skipped++ })
		return
	}

	student, err := j.store.GetUser(ctx, e.StudentID)
	if err != nil {
		t.fail("enrollment %s: load student: %v", e.ID, err)
		return
	}
	parents, err := j.store.ParentsOf(ctx, e.StudentID)
	if err != nil {
		// the student still gets the reminder
		t.fail("enrollment %s: load parents: %v", e.ID, err)
	}

	msg := paymentMessage(e, student, step, today, j.opts.PlatformURL)
	recipients := append([]models.User{student}, parents...)
	errs := j.dispatch(ctx, recipients, msg)
	for _, u := range recipients {
		j.inApp(ctx, u.ID, models.NotifyPayment, msg)
	}

	outcome := "sent"
	if len(errs) > 0 {
		outcome = "partial"
		for _, e2 := range errs {
			t.fail("enrollment %s: %s", e.ID, e2)
		}
	}
	metrics.Reminders.WithLabelValues(string(j.kind), outcome).Inc()
	t.add(func(r *Result) { r.Reminded++ })
	j.log.Info("payment reminder sent",
		zap.String("enrollment_id", e.ID.String()),
		zap.String("type", string(step.Remind)),
		zap.String("due", step.Due.Format(time.DateOnly)),
		zap.Int("recipients", len(recipients)),
	)
}

func paymentMessage(e models.Enrollment, student models.User, step Step, today time.Time, link string) notify.Message {
	group := e.GroupName
	if group == "" {
		group = "your group"
	}
	m := notify.Message{ActionURL: link, Priority: notify.PriorityNormal}
	switch step.Remind {
	case RemindOverdue:
		days := calendar.DaysBetween(step.Due, today)
		m.Subject = "Overdue course payment"
		m.Priority = notify.PriorityHigh
		m.Body = fmt.Sprintf(
			"The monthly payment of %s UZS for %s (%s) was due on %s and is overdue by %d %s. Please pay as soon as possible.",
			FormatAmount(e.MonthlyPaymentAmount), student.FullName, group, calendar.Format(step.Due), days, plural(days, "day", "days"))
	default:
		m.Subject = "Course payment due today"
		m.Body = fmt.Sprintf(
			"The monthly payment of %s UZS for %s (%s) is due today, %s.",
			FormatAmount(e.MonthlyPaymentAmount), student.FullName, group, calendar.Format(step.Due))
	}
	return m
}
