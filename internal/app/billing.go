package app

import (
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/calendar"
	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/logging"
)

type paidRequest struct {
	PaidOn string `json:"paid_on" validate:"omitempty,datetime=2006-01-02"`
}

// paidDate - дата из тела или сегодня; пустое тело допустимо.
func (a *api) paidDate(r *http.Request) (time.Time, error) {
	var req paidRequest
	if r.ContentLength != 0 {
		if err := a.decode(r, &req); err != nil {
			return time.Time{}, err
		}
	}
	if req.PaidOn == "" {
		return a.today(), nil
	}
	d, err := time.Parse("2006-01-02", req.PaidOn)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: paid_on", errBadRequest)
	}
	return calendar.Date(d), nil
}

func (a *api) markPaid(w http.ResponseWriter, r *http.Request, param string, mark func(id uuid.UUID, on time.Time) error) {
	id, err := uuidParam(r, param)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	on, err := a.paidDate(r)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := mark(id, on); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "paid", "paid_on": on.Format("2006-01-02")})
}

func (a *api) markPaymentPaid(w http.ResponseWriter, r *http.Request) {
	a.markPaid(w, r, "id", func(id uuid.UUID, on time.Time) error {
		return a.Store.MarkPaymentPaid(r.Context(), id, on)
	})
}

func (a *api) markSalaryPaid(w http.ResponseWriter, r *http.Request) {
	a.markPaid(w, r, "teacherID", func(id uuid.UUID, on time.Time) error {
		return a.Store.MarkSalaryPaid(r.Context(), id, on)
	})
}

// runReminders - ручной или внешний cron-триггер; ?force=1 снимает часовой гейт.
func (a *api) runReminders(job func() ReminderJob) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		j := job()
		if j == nil {
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "job is not configured"})
			return
		}
		res, err := j.Run(ctxutil.WithOp(r.Context(), r.URL.Path), boolQuery(r, "force"))
		if err != nil {
			a.fail(w, r, err)
			return
		}
		logging.FromContext(r.Context(), a.Log).Info("reminders triggered over http",
			zap.String("job", res.Job), zap.Bool("ran", res.Ran), zap.Int("reminded", res.Reminded))
		writeJSON(w, http.StatusOK, res)
	}
}
