// Package notify delivers messages to people over the configured channels
// (email, SMS, web push, Telegram). Every channel is best-effort: a failure on
// one channel never stops the others.
package notify

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/metrics"
	"github.com/Spok95/school-progress/internal/models"
	"github.com/Spok95/school-progress/internal/observability"
)

// ErrNotConfigured means the channel has no credentials, ErrNoAddress that
// the recipient has no address on it. Both are soft skips, as is ErrRejected.
var (
	ErrNotConfigured  = errors.New("channel not configured")
	ErrNoAddress      = errors.New("recipient has no address for channel")
	ErrInvalidPhone   = errors.New("invalid phone number")
	ErrInvalidRequest = errors.New("invalid request")
	// ErrRejected is a provider refusal caused by the recipient (blocked bot, unknown chat).
	ErrRejected       = errors.New("rejected for recipient")
)

type Priority string

const (
	PriorityNormal Priority = "normal"
	PriorityHigh   Priority = "high"
)

type Message struct {
	Subject   string
	Body      string
	ActionURL string
	Priority  Priority
}

type Channel interface {
	Name() string
	Deliver(ctx context.Context, to models.Contact, msg Message) error
}

// Outcome is the result of one channel for one recipient.
type Outcome struct {
	Channel string `json:"channel"`
	Sent    bool   `json:"sent"`
	Skipped bool   `json:"skipped,omitempty"`
	Note    string `json:"note,omitempty"`
	Err     error  `json:"-"`
}

// Dispatcher fans a message out to all of its channels.
type Dispatcher struct {
	channels []Channel
	log      *zap.Logger
}

func NewDispatcher(log *zap.Logger, channels ...Channel) *Dispatcher {
	return &Dispatcher{channels: channels, log: log}
}

func (d *Dispatcher) Channels() []string {
	out := make([]string, 0, len(d.channels))
	for _, c := range d.channels {
		out = append(out, c.Name())
	}
	return out
}

// Send delivers msg to one contact on every channel concurrently. Outcomes are
// returned in channel order.
func (d *Dispatcher) Send(ctx context.Context, to models.Contact, msg Message) []Outcome {
	out := make([]Outcome, len(d.channels))
	var wg sync.WaitGroup
	for i, ch := range d.channels {
		wg.Add(1)
		go func(i int, ch Channel) {
			defer wg.Done()
			out[i] = d.deliver(ctx, ch, to, msg)
		}(i, ch)
	}
	wg.Wait()
	return out
}

func (d *Dispatcher) deliver(ctx context.Context, ch Channel, to models.Contact, msg Message) Outcome {
	o := Outcome{Channel: ch.Name()}
	ctx, cancel := ctxutil.WithTimeout(ctx, ctxutil.DefaultSendTimeout)
	defer cancel()
	err := ch.Deliver(ctx, to, msg)
	switch {
	case err == nil:
		o.Sent = true
		metrics.Deliveries.WithLabelValues(o.Channel, "sent").Inc()
	case errors.Is(err, ErrNotConfigured), errors.Is(err, ErrNoAddress), errors.Is(err, ErrRejected):
		o.Skipped = true
		o.Note = err.Error()
		metrics.Deliveries.WithLabelValues(o.Channel, "skipped").Inc()
	default:
		o.Err = err
		metrics.Deliveries.WithLabelValues(o.Channel, "failed").Inc()
		d.log.Warn("delivery failed",
			zap.String("channel", o.Channel),
			zap.String("user_id", to.UserID.String()),
			zap.Error(err),
		)
		if !errors.Is(err, ErrInvalidPhone) {
			observability.CaptureErrWith(err, map[string]string{"channel": o.Channel})
		}
	}
	return o
}

// Failed returns the errors among outcomes.
func Failed(outs []Outcome) []error {
	var errs []error
	for _, o := range outs {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errs
}
