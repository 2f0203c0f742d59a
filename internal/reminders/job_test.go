package reminders_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/db/memdb"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/notify"
	"github.com/Spok95/school-progress/internal/reminders"
)

type sent struct {
	to  models.Contact
	msg notify.Message
}

type recordingSender struct {
	mu   sync.Mutex
	sent []sent
	fail map[string]error // by recipient name
}

func (s *recordingSender) Send(_ context.Context, to models.Contact, msg notify.Message) []notify.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sent{to: to, msg: msg})
	if err := s.fail[to.Name]; err != nil {
		return []notify.Outcome{{Channel: "email", Err: err}, {Channel: "sms", Sent: true}}
	}
	return []notify.Outcome{{Channel: "email", Sent: true}, {Channel: "sms", Sent: true}}
}

func (s *recordingSender) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, x := range s.sent {
		out = append(out, x.to.Name)
	}
	sort.Strings(out)
	return out
}

func (s *recordingSender) reset() {
	s.mu.Lock()
	s.sent = nil
	s.mu.Unlock()
}

var tashkent = time.FixedZone("UZT", 5*3600)

func at(day, hour int) func() time.Time {
	return func() time.Time { return time.Date(2025, time.March, day, hour, 0, 0, 0, tashkent) }
}

type paymentFixture struct {
	store      *memdb.DB
	sender     *recordingSender
	enrollment models.Enrollment
}

func newPaymentFixture(t *testing.T) paymentFixture {
	t.Helper()
	store := memdb.Open()
	student := store.AddUser(models.User{FullName: "Jasur", Email: "jasur@example.com", Phone: "901112233", Role: models.Student})
	parent := store.AddUser(models.User{FullName: "Nodira", Email: "nodira@example.com", Role: models.Parent})
	store.LinkParent(parent.ID, student.ID)
	e := store.AddEnrollment(models.Enrollment{
		GroupName:            "IELTS-2",
		StudentID:            student.ID,
		MonthlyPaymentAmount: 600000,
		CourseStartDate:      time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
	})
	return paymentFixture{store: store, sender: &recordingSender{}, enrollment: e}
}

func paymentJob(f paymentFixture, now func() time.Time) *reminders.PaymentJob {
	return reminders.NewPaymentJob(f.store, f.sender, zap.NewNop(), reminders.Options{
		Hours:       []int{9, 20},
		Location:    tashkent,
		PlatformURL: "https://school.uz/payments",
	}).WithClock(now)
}

func TestPaymentJob_DueTodayThenOverdue(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	res, err := paymentJob(f, at(15, 9)).Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ran || res.Processed != 1 || res.Reminded != 1 || len(res.Errors) != 0 {
		t.Fatalf("result = %+v", res)
	}
	e := f.store.Enrollment(f.enrollment.ID)
	if e.PaymentStatus != models.StatusPending || e.PaymentDueDate == nil || e.PaymentDueDate.Day() != 15 || e.PaymentDueDate.Month() != time.March {
		t.Fatalf("enrollment after first run = %+v", e)
	}
	if got := strings.Join(f.sender.names(), ","); got != "Jasur,Nodira" {
		t.Fatalf("recipients = %s", got)
	}
	if !strings.Contains(f.sender.sent[0].msg.Body, "due today") || !strings.Contains(f.sender.sent[0].msg.Body, "600 000") {
		t.Fatalf("message = %+v", f.sender.sent[0].msg)
	}

	f.sender.reset()
	res, err = paymentJob(f, at(16, 9)).Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reminded != 1 {
		t.Fatalf("result = %+v", res)
	}
	e = f.store.Enrollment(f.enrollment.ID)
	if e.PaymentStatus != models.StatusOverdue {
		t.Fatalf("status = %s, want overdue", e.PaymentStatus)
	}
	if len(f.sender.sent) != 2 || !strings.Contains(f.sender.sent[0].msg.Body, "overdue") {
		t.Fatalf("sent = %+v", f.sender.sent)
	}

	ns, _ := f.store.ListNotifications(ctx, f.enrollment.StudentID, false, 0)
	if len(ns) != 2 || ns[0].Type != models.NotifyPayment {
		t.Fatalf("in-app notifications = %+v", ns)
	}
}

func TestPaymentJob_DuplicateTriggerIsSkipped(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	job := paymentJob(f, at(15, 20))

	if _, err := job.Run(ctx, false); err != nil {
		t.Fatal(err)
	}
	res, err := job.Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reminded != 0 || res.Skipped != 1 {
		t.Fatalf("second run = %+v", res)
	}
	if len(f.sender.sent) != 2 {
		t.Fatalf("sent %d messages, want 2", len(f.sender.sent))
	}
	if logs := f.store.ReminderLogs(); len(logs) != 1 || logs[0].RunSlot != "2025-03-15T20" {
		t.Fatalf("reminder logs = %+v", logs)
	}
}

func TestPaymentJob_HourGate(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()

	res, err := paymentJob(f, at(15, 14)).Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Ran || res.Processed != 0 || res.Note == "" {
		t.Fatalf("gated run = %+v", res)
	}
	if len(f.sender.sent) != 0 {
		t.Fatal("gated run sent messages")
	}

	res, err = paymentJob(f, at(15, 14)).Run(ctx, true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Ran || res.Reminded != 1 {
		t.Fatalf("forced run = %+v", res)
	}
}

func TestPaymentJob_PaidAndInactive(t *testing.T) {
	f := newPaymentFixture(t)
	ctx := context.Background()
	paidOn := time.Date(2025, time.March, 14, 0, 0, 0, 0, time.UTC)
	if err := f.store.UpdatePaymentCycle(ctx, f.enrollment.ID, models.StatusPending, time.Date(2025, time.March, 15, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatal(err)
	}
	if err := f.store.MarkPaymentPaid(ctx, f.enrollment.ID, paidOn); err != nil {
		t.Fatal(err)
	}

	dropped := f.store.AddEnrollment(models.Enrollment{
		StudentID:       f.enrollment.StudentID,
		CourseStartDate: time.Date(2025, time.January, 15, 0, 0, 0, 0, time.UTC),
	})
	f.store.DeactivateEnrollment(dropped.ID)

	res, err := paymentJob(f, at(15, 9)).Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Processed != 1 || res.Reminded != 0 {
		t.Fatalf("result = %+v", res)
	}

	// next cycle opens after the paid due date, anchored on the payment day
	if _, err := paymentJob(f, at(16, 9)).Run(ctx, false); err != nil {
		t.Fatal(err)
	}
	e := f.store.Enrollment(f.enrollment.ID)
	if e.PaymentStatus != models.StatusPending || e.PaymentDueDate.Month() != time.April || e.PaymentDueDate.Day() != 14 {
		t.Fatalf("enrollment = %+v", e)
	}
}

func TestPaymentJob_RecipientFailureDoesNotBlockOthers(t *testing.T) {
	f := newPaymentFixture(t)
	f.sender.fail = map[string]error{"Jasur": errors.New("smtp down")}

	res, err := paymentJob(f, at(15, 9)).Run(context.Background(), false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reminded != 1 || len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "smtp down") {
		t.Fatalf("result = %+v", res)
	}
	if len(f.sender.sent) != 2 {
		t.Fatalf("parent was not reached: %v", f.sender.names())
	}
}

func TestSalaryJob(t *testing.T) {
	store := memdb.Open()
	sender := &recordingSender{}
	ctx := context.Background()

	admin := store.AddUser(models.User{FullName: "Director", Email: "director@school.uz", Role: models.MainTeacher})
	teacher := store.AddUser(models.User{FullName: "Ms Karimova", Role: models.Teacher})
	store.AddSalary(models.TeacherSalary{
		TeacherID:           teacher.ID,
		SalaryAmount:        4500000,
		EmploymentStartDate: time.Date(2024, time.September, 16, 0, 0, 0, 0, time.UTC),
	})

	job := reminders.NewSalaryJob(store, sender, zap.NewNop(), reminders.Options{Hours: []int{12}, Location: tashkent})

	res, err := job.WithClock(at(16, 12)).Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reminded != 1 || len(sender.sent) != 1 || sender.sent[0].to.UserID != admin.ID {
		t.Fatalf("result = %+v, sent = %+v", res, sender.sent)
	}
	if !strings.Contains(sender.sent[0].msg.Body, "Ms Karimova") || !strings.Contains(sender.sent[0].msg.Body, "4 500 000") {
		t.Fatalf("message = %q", sender.sent[0].msg.Body)
	}
	tn, _ := store.ListNotifications(ctx, teacher.ID, false, 0)
	if len(tn) != 1 || tn[0].Type != models.NotifySalary {
		t.Fatalf("teacher notifications = %+v", tn)
	}

	res, err = job.WithClock(at(18, 12)).Run(ctx, false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Reminded != 1 || store.Salary(teacher.ID).SalaryStatus != models.StatusOverdue {
		t.Fatalf("overdue run = %+v", res)
	}
	if !strings.Contains(sender.sent[1].msg.Body, "overdue by 2 days") {
		t.Fatalf("message = %q", sender.sent[1].msg.Body)
	}

	if res, _ := job.WithClock(at(18, 9)).Run(ctx, false); res.Ran {
		t.Fatalf("salary job ran outside its hour: %+v", res)
	}
}
