package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/observability"
)

type Job func(ctx context.Context) error

// Runner - планировщик фоновых задач поверх robfig/cron в часовом поясе школы.
type Runner struct {
	ctx  context.Context
	cron *cron.Cron
	log  *zap.Logger
}

func New(ctx context.Context, log *zap.Logger, loc *time.Location) *Runner {
	if loc == nil {
		loc = time.Local
	}
	return &Runner{
		ctx:  ctx,
		cron: cron.New(cron.WithLocation(loc)),
		log:  log,
	}
}

// Cron - запуск по cron-выражению ("0 9,20 * * *").
func (r *Runner) Cron(spec, name string, fn Job) error {
	if _, err := r.cron.AddFunc(spec, func() { r.run(name, fn) }); err != nil {
		return fmt.Errorf("job %s: %w", name, err)
	}
	r.log.Info("job scheduled", zap.String("job", name), zap.String("spec", spec))
	return nil
}

func (r *Runner) Every(interval time.Duration, name string, fn Job) error {
	return r.Cron("@every "+interval.String(), name, fn)
}

func (r *Runner) Start() { r.cron.Start() }

// Stop - ждём завершения уже запущенных задач, но не дольше ctx.
func (r *Runner) Stop(ctx context.Context) {
	done := r.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
		r.log.Warn("jobs did not finish before shutdown")
	}
}

// run - один запуск: recover, метрики, sentry.
func (r *Runner) run(name string, fn Job) {
	start := time.Now()
	tags := map[string]string{"job": name}
	defer func() {
		jobRuns.WithLabelValues(name).Inc()
		jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
	}()
	defer observability.Recover(tags, func(err error) {
		jobErrors.WithLabelValues(name).Inc()
		r.log.Error("job panic", zap.String("job", name), zap.Error(err))
	})

	if r.ctx.Err() != nil {
		return
	}
	ctx := ctxutil.WithOp(r.ctx, name)
	if err := fn(ctx); err != nil {
		jobErrors.WithLabelValues(name).Inc()
		observability.CaptureErrWith(err, tags)
		r.log.Error("job failed", zap.String("job", name), zap.Error(err))
	}
}
