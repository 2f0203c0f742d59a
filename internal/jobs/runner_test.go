package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/reminders"
)

func TestRunner_RunRecordsOutcome(t *testing.T) {
	r := New(context.Background(), zap.NewNop(), time.UTC)

	var op string
	r.run("ok_job", func(ctx context.Context) error {
		op, _ = ctxutil.Op(ctx)
		return nil
	})
	if op != "ok_job" {
		t.Fatalf("op = %q", op)
	}
	if got := testutil.ToFloat64(jobRuns.WithLabelValues("ok_job")); got != 1 {
		t.Fatalf("runs = %v", got)
	}

	r.run("err_job", func(context.Context) error { return errors.New("boom") })
	if got := testutil.ToFloat64(jobErrors.WithLabelValues("err_job")); got != 1 {
		t.Fatalf("errors = %v", got)
	}

	// паника не должна уронить процесс
	r.run("panic_job", func(context.Context) error { panic("oops") })
	if got := testutil.ToFloat64(jobErrors.WithLabelValues("panic_job")); got != 1 {
		t.Fatalf("panic errors = %v", got)
	}
}

func TestRunner_CancelledContextSkips(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	r := New(ctx, zap.NewNop(), time.UTC)
	called := false
	r.run("cancelled_job", func(context.Context) error { called = true; return nil })
	if called {
		t.Fatal("задача не должна стартовать после отмены")
	}
}

func TestRunner_CronSpec(t *testing.T) {
	r := New(context.Background(), zap.NewNop(), time.UTC)
	if err := r.Cron("0 9,20 * * *", "payment_reminders", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	if err := r.Cron("not a spec", "bad", func(context.Context) error { return nil }); err == nil {
		t.Fatal("ожидали ошибку разбора")
	}
	if err := r.Every(time.Hour, "hourly", func(context.Context) error { return nil }); err != nil {
		t.Fatal(err)
	}
	r.Start()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	r.Stop(ctx)
}

type fakeReminder struct {
	force bool
	res   reminders.Result
	err   error
}

func (f *fakeReminder) Run(_ context.Context, force bool) (reminders.Result, error) {
	f.force = force
	return f.res, f.err
}

func TestReminder(t *testing.T) {
	f := &fakeReminder{res: reminders.Result{Job: "payment_reminders", Errors: []string{"student x: boom"}}}
	if err := Reminder(f, zap.NewNop())(context.Background()); err != nil {
		t.Fatalf("ошибки по записям не должны валить задачу: %v", err)
	}
	if f.force {
		t.Fatal("плановый запуск идёт без force")
	}

	f.err = errors.New("db down")
	if err := Reminder(f, zap.NewNop())(context.Background()); err == nil {
		t.Fatal("ожидали ошибку")
	}
}
