package app

import (
	"errors"
	"net/http"

	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/notify"
)

type relayResponse struct {
	Success bool               `json:"success"`
	Skipped bool               `json:"skipped,omitempty"`
	Note    string             `json:"note,omitempty"`
	Push    *notify.PushResult `json:"push,omitempty"`
}

// relayDone - ответ релея; ненастроенный канал - не ошибка, а skipped.
func (a *api) relayDone(w http.ResponseWriter, r *http.Request, channel string, err error) {
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, relayResponse{Success: true})
	case errors.Is(err, notify.ErrNotConfigured):
		writeJSON(w, http.StatusOK, relayResponse{Success: true, Skipped: true, Note: channel + " is not configured"})
	default:
		a.fail(w, r, err)
	}
}

func (a *api) sendEmail(w http.ResponseWriter, r *http.Request) {
	var req notify.EmailRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if a.Email == nil {
		a.relayDone(w, r, "email", notify.ErrNotConfigured)
		return
	}
	a.relayDone(w, r, "email", a.Email.Send(r.Context(), req))
}

func (a *api) sendSMS(w http.ResponseWriter, r *http.Request) {
	var req notify.SMSRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if a.SMS == nil {
		// номер проверяем и без провайдера
		if _, err := notify.NormalizePhone(req.PhoneNumber, "998"); err != nil {
			a.fail(w, r, err)
			return
		}
		a.relayDone(w, r, "sms", notify.ErrNotConfigured)
		return
	}
	a.relayDone(w, r, "sms", a.SMS.Send(r.Context(), req))
}

func (a *api) sendPush(w http.ResponseWriter, r *http.Request) {
	var req notify.PushRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	if a.Push == nil {
		a.relayDone(w, r, "push", notify.ErrNotConfigured)
		return
	}
	res, err := a.Push.Send(r.Context(), req)
	if err != nil {
		a.relayDone(w, r, "push", err)
		return
	}
	writeJSON(w, http.StatusOK, relayResponse{Success: true, Push: &res})
}

func (a *api) listNotifications(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "userID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	limit, err := intQuery(r, "limit", 50, 200)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	ns, err := a.Store.ListNotifications(r.Context(), id, boolQuery(r, "unread"), limit)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ns)
}

func (a *api) markNotificationRead(w http.ResponseWriter, r *http.Request) {
	id, err := uuidParam(r, "id")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if err := a.Store.MarkNotificationRead(r.Context(), id); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pushSubscriptionRequest - PushSubscription.toJSON() из браузера.
type pushSubscriptionRequest struct {
	Endpoint string `json:"endpoint" validate:"required,url"`
	Keys     struct {
		P256dh string `json:"p256dh" validate:"required"`
		Auth   string `json:"auth" validate:"required"`
	} `json:"keys"`
	ExpirationTime *int64 `json:"expirationTime,omitempty"`
}

func (a *api) registerPush(w http.ResponseWriter, r *http.Request) {
	userID, err := uuidParam(r, "userID")
	if err != nil {
		a.fail(w, r, err)
		return
	}
	var req pushSubscriptionRequest
	if err := a.decode(r, &req); err != nil {
		a.fail(w, r, err)
		return
	}
	sub, err := a.Store.SavePushSubscription(r.Context(), models.PushSubscription{
		UserID:   userID,
		Endpoint: req.Endpoint,
		P256dh:   req.Keys.P256dh,
		Auth:     req.Keys.Auth,
	})
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": sub.ID})
}
