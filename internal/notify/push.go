package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/models"
)

// PushStore keeps the browser subscriptions of users.
type PushStore interface {
	PushSubscriptions(ctx context.Context, userID uuid.UUID) ([]models.PushSubscription, error)
	DeletePushSubscription(ctx context.Context, id uuid.UUID) error
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string // mailto: or https: contact of the sender
	TTL             int
}

// Push sends Web Push notifications to every subscription of a user.
type Push struct {
	cfg    PushConfig
	store  PushStore
	log    *zap.Logger
	client *http.Client
}

func NewPush(cfg PushConfig, store PushStore, log *zap.Logger) *Push {
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * 60 * 60
	}
	return &Push{cfg: cfg, store: store, log: log, client: http.DefaultClient}
}

func (p *Push) Name() string { return "push" }

func (p *Push) Configured() bool { return p.cfg.VAPIDPublicKey != "" && p.cfg.VAPIDPrivateKey != "" }

type PushRequest struct {
	UserID    uuid.UUID `json:"user_id" validate:"required"`
	Title     string    `json:"title" validate:"required,max=200"`
	Message   string    `json:"message" validate:"required"`
	ActionURL string    `json:"action_url" validate:"omitempty"`
	Priority  Priority  `json:"priority" validate:"omitempty,oneof=normal high"`
}

// PushResult counts what happened to the user's subscriptions.
type PushResult struct {
	Sent    int `json:"sent"`
	Removed int `json:"removed"`
	Failed  int `json:"failed"`
}

type pushPayload struct {
	Title     string `json:"title"`
	Body      string `json:"body"`
	ActionURL string `json:"url,omitempty"`
}

func (p *Push) Deliver(ctx context.Context, to models.Contact, msg Message) error {
	res, err := p.Send(ctx, PushRequest{
		UserID: to.UserID, Title: msg.Subject, Message: msg.Body, ActionURL: msg.ActionURL, Priority: msg.Priority,
	})
	if err != nil {
		return err
	}
	if res.Sent == 0 && res.Failed == 0 {
		return ErrNoAddress
	}
	if res.Sent == 0 {
		return fmt.Errorf("push: all %d subscriptions failed", res.Failed)
	}
	return nil
}

// Send fans out to all stored endpoints of the user. Endpoints answering 404
// or 410 are gone and get deleted.
func (p *Push) Send(ctx context.Context, r PushRequest) (PushResult, error) {
	var res PushResult
	if r.UserID == uuid.Nil {
		return res, fmt.Errorf("%w: user_id is required", ErrInvalidRequest)
	}
	if !p.Configured() {
		return res, ErrNotConfigured
	}
	subs, err := p.store.PushSubscriptions(ctx, r.UserID)
	if err != nil {
		return res, fmt.Errorf("load subscriptions: %w", err)
	}
	payload, err := json.Marshal(pushPayload{Title: r.Title, Body: r.Message, ActionURL: r.ActionURL})
	if err != nil {
		return res, err
	}
	urgency := webpush.UrgencyNormal
	if r.Priority == PriorityHigh {
		urgency = webpush.UrgencyHigh
	}

	var errs []error
	for _, s := range subs {
		status, err := p.sendOne(ctx, payload, s, urgency)
		switch {
		case err != nil:
			res.Failed++
			errs = append(errs, err)
		case status == http.StatusNotFound || status == http.StatusGone:
			if err := p.store.DeletePushSubscription(ctx, s.ID); err != nil {
				errs = append(errs, fmt.Errorf("delete subscription: %w", err))
			}
			res.Removed++
			p.log.Info("push subscription gone", zap.String("user_id", r.UserID.String()), zap.Int("status", status))
		case status/100 != 2:
			res.Failed++
			errs = append(errs, fmt.Errorf("push: http %d", status))
		default:
			res.Sent++
		}
	}
	if len(errs) > 0 {
		p.log.Warn("push delivery errors", zap.String("user_id", r.UserID.String()), zap.Error(errors.Join(errs...)))
	}
	return res, nil
}

func (p *Push) sendOne(ctx context.Context, payload []byte, s models.PushSubscription, urgency webpush.Urgency) (int, error) {
	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: s.Endpoint,
		Keys:     webpush.Keys{Auth: s.Auth, P256dh: s.P256dh},
	}, &webpush.Options{
		HTTPClient:      p.client,
		Subscriber:      p.cfg.Subject,
		VAPIDPublicKey:  p.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: p.cfg.VAPIDPrivateKey,
		TTL:             p.cfg.TTL,
		Urgency:         urgency,
	})
	if err != nil {
		return 0, fmt.Errorf("webpush: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.StatusCode, nil
}
