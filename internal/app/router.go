package app

import (
	"context"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/metrics"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/notify"
	"github.com/Spok95/school-progress/internal/reminders"
)

// Store - то, что нужно HTTP-слою помимо движка и напоминалок.
type Store interface {
	Ping(ctx context.Context) error
	PointsHistory(ctx context.Context, userID uuid.UUID, limit int) ([]models.PointsEntry, error)
	ListNotifications(ctx context.Context, userID uuid.UUID, unreadOnly bool, limit int) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, id uuid.UUID) error
	SavePushSubscription(ctx context.Context, sub models.PushSubscription) (models.PushSubscription, error)
	MarkPaymentPaid(ctx context.Context, enrollmentID uuid.UUID, paidOn time.Time) error
	MarkSalaryPaid(ctx context.Context, teacherID uuid.UUID, paidOn time.Time) error
}

// ReminderJob - PaymentJob или SalaryJob.
type ReminderJob interface {
	Run(ctx context.Context, force bool) (reminders.Result, error)
}

type Deps struct {
	Log    *zap.Logger
	Store  Store
	Engine *gamification.Engine

	Email *notify.Email
	SMS   *notify.SMS
	Push  *notify.Push

	PaymentJob ReminderJob
	SalaryJob  ReminderJob

	CronSecret       string
	LeaderboardLimit int
	Location         *time.Location
	Now              func() time.Time
}

type api struct {
	Deps
	validate *validator.Validate
}

func newValidator() *validator.Validate {
	v := validator.New()
	// в ошибках - имена полей из json-тегов
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewRouter собирает HTTP API. Всё под /api закрыто bearer-токеном, если
// CronSecret задан.
func NewRouter(d Deps) http.Handler {
	if d.Log == nil {
		d.Log = zap.NewNop()
	}
	if d.Location == nil {
		d.Location = time.Local
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.LeaderboardLimit <= 0 {
		d.LeaderboardLimit = gamification.DefaultLeaderboardLimit
	}
	a := &api{Deps: d, validate: newValidator()}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(a.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", a.healthz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(bearerAuth(d.CronSecret))

		r.Route("/notify", func(r chi.Router) {
			r.Post("/email", a.sendEmail)
			r.Post("/sms", a.sendSMS)
			r.Post("/push", a.sendPush)
		})

		r.Get("/badges", a.badgeCatalog)
		r.Post("/points", a.awardPoints)
		r.Post("/events", a.recordEvent)
		r.Route("/progress/{userID}", func(r chi.Router) {
			r.Get("/", a.getProgress)
			r.Get("/history", a.pointsHistory)
			r.Post("/reset", a.resetProgress)
			r.Post("/badges/evaluate", a.evaluateBadges)
		})
		r.Get("/groups/{groupID}/leaderboard", a.leaderboard)
		r.Get("/groups/{groupID}/leaderboard.xlsx", a.leaderboardXLSX)

		r.Get("/users/{userID}/notifications", a.listNotifications)
		r.Post("/users/{userID}/push-subscriptions", a.registerPush)
		r.Post("/notifications/{id}/read", a.markNotificationRead)

		r.Post("/enrollments/{id}/paid", a.markPaymentPaid)
		r.Post("/teachers/{teacherID}/salary/paid", a.markSalaryPaid)

		r.Route("/cron", func(r chi.Router) {
			r.Get("/payment-reminders", a.runReminders(func() ReminderJob { return a.PaymentJob }))
			r.Post("/payment-reminders", a.runReminders(func() ReminderJob { return a.PaymentJob }))
			r.Get("/salary-reminders", a.runReminders(func() ReminderJob { return a.SalaryJob }))
			r.Post("/salary-reminders", a.runReminders(func() ReminderJob { return a.SalaryJob }))
		})
	})
	return r
}

func (a *api) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 800*time.Millisecond)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "db not ok", "error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (a *api) today() time.Time {
	return calendar.Day(a.Now(), a.Location)
}
