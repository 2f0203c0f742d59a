package reminders

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/metrics"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/notify"
	"github.com/Spok95/school-progress/internal/observability"
)

// Store is the persistence both cycles need.
type Store interface {
	ListEnrollments(ctx context.Context) ([]models.Enrollment, error)
	UpdatePaymentCycle(ctx context.Context, enrollmentID uuid.UUID, status models.CycleStatus, due time.Time) error
	ListTeacherSalaries(ctx context.Context) ([]models.TeacherSalary, error)
	UpdateSalaryCycle(ctx context.Context, teacherID uuid.UUID, status models.CycleStatus, due time.Time) error

	GetUser(ctx context.Context, id uuid.UUID) (models.User, error)
	ParentsOf(ctx context.Context, studentID uuid.UUID) ([]models.User, error)
	UsersByRole(ctx context.Context, role models.Role) ([]models.User, error)

	ClaimReminder(ctx context.Context, r models.ReminderLog) (bool, error)
	CreateNotification(ctx context.Context, n models.Notification) error
}

// Sender delivers one message to one person on all channels.
type Sender interface {
	Send(ctx context.Context, to models.Contact, msg notify.Message) []notify.Outcome
}

type Options struct {
	Hours       []int // local hours the job acts in; empty means any hour
	Location    *time.Location
	PlatformURL string
	Parallelism int
}

// Result is what one run did. Errors are per record; one failing record
// never aborts the run.
type Result struct {
	Job       string   `json:"job"`
	Ran       bool     `json:"ran"`
	Processed int      `json:"processed"`
	Reminded  int      `json:"reminded"`
	Updated   int      `json:"updated"`
	Skipped   int      `json:"skipped"`
	Errors    []string `json:"errors"`
	Note      string   `json:"note,omitempty"`
}

type tally struct {
	mu  sync.Mutex
	res Result
}

func (t *tally) add(fn func(r *Result)) {
	t.mu.Lock()
	fn(&t.res)
	t.mu.Unlock()
}

func (t *tally) fail(format string, args ...any) {
	t.add(func(r *Result) { r.Errors = append(r.Errors, fmt.Sprintf(format, args...)) })
}

// base holds what the payment and salary jobs share.
type base struct {
	name   string
	kind   models.ReminderKind
	store  Store
	sender Sender
	log    *zap.Logger
	opts   Options
	now    func() time.Time
}

func newBase(name string, kind models.ReminderKind, store Store, sender Sender, log *zap.Logger, opts Options) base {
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Parallelism <= 0 {
		opts.Parallelism = 8
	}
	return base{name: name, kind: kind, store: store, sender: sender, log: log, opts: opts, now: time.Now}
}

// RunSlot identifies one scheduled run: the local date and hour.
func RunSlot(t time.Time) string {
	return t.Format("2006-01-02T15")
}

// start applies the hour gate. ok=false means the run is a no-op.
func (b *base) start(force bool) (now time.Time, today time.Time, ok bool, res Result) {
	now = b.now().In(b.opts.Location)
	res = Result{Job: b.name, Errors: []string{}}
	if !force && len(b.opts.Hours) > 0 && !slices.Contains(b.opts.Hours, now.Hour()) {
		res.Note = fmt.Sprintf("outside scheduled hours %v", b.opts.Hours)
		return now, today, false, res
	}
	res.Ran = true
	return now, calendar.Day(now, b.opts.Location), true, res
}

// each runs fn for n records with bounded parallelism.
func (b *base) each(ctx context.Context, n int, fn func(ctx context.Context, i int)) {
	var g errgroup.Group
	g.SetLimit(b.opts.Parallelism)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			defer observability.Recover(map[string]string{"job": b.name}, func(err error) {
				metrics.HandlerErrors.Inc()
				b.log.Error("record processing panicked", zap.String("job", b.name), zap.Error(err))
			})
			fn(ctx, i)
			return nil
		})
	}
	_ = g.Wait()
}

// claim records the reminder for this slot; false when it was already sent.
func (b *base) claim(ctx context.Context, subject uuid.UUID, step Step, slot string) (bool, error) {
	return b.store.ClaimReminder(ctx, models.ReminderLog{
		ID:           uuid.New(),
		Kind:         b.kind,
		SubjectID:    subject,
		DueDate:      step.Due,
		RunSlot:      slot,
		ReminderType: string(step.Remind),
		CreatedAt:    b.now(),
	})
}

// dispatch sends msg to all recipients in parallel and returns the failures.
func (b *base) dispatch(ctx context.Context, recipients []models.User, msg notify.Message) []string {
	var (
		mu   sync.Mutex
		errs []string
		g    errgroup.Group
	)
	for _, u := range recipients {
		g.Go(func() error {
			for _, err := range notify.Failed(b.sender.Send(ctx, u.Contact(), msg)) {
				mu.Lock()
				errs = append(errs, fmt.Sprintf("%s: %v", u.FullName, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return errs
}

func (b *base) inApp(ctx context.Context, userID uuid.UUID, typ models.NotificationType, msg notify.Message) {
	err := b.store.CreateNotification(ctx, models.Notification{
		ID:        uuid.New(),
		UserID:    userID,
		Type:      typ,
		Title:     msg.Subject,
		Message:   msg.Body,
		ActionURL: msg.ActionURL,
		CreatedAt: b.now(),
	})
	if err != nil {
		metrics.HandlerErrors.Inc()
		b.log.Warn("create notification failed", zap.String("job", b.name), zap.Error(err))
	}
}

func (b *base) finish(res Result, started time.Time) Result {
	b.log.Info("reminder run finished",
		zap.String("job", b.name),
		zap.Bool("ran", res.Ran),
		zap.Int("processed", res.Processed),
		zap.Int("reminded", res.Reminded),
		zap.Int("updated", res.Updated),
		zap.Int("skipped", res.Skipped),
		zap.Int("errors", len(res.Errors)),
		zap.Duration("took", time.Since(started)),
	)
	return res
}
