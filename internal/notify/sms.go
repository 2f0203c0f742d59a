package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/Spok95/school-progress/internal/models"
)

// subscriberDigits is the national number length after the country code.
const subscriberDigits = 9

// NormalizePhone turns a local or international number into +<cc><9 digits>.
// Spaces, dashes and brackets are ignored.
func NormalizePhone(raw, countryCode string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		switch {
		case r >= '0' && r <= '9':
			digits.WriteRune(r)
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '+' || r == '.':
		default:
			return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
		}
	}
	d := digits.String()
	switch {
	case len(d) == subscriberDigits:
		return "+" + countryCode + d, nil
	case len(d) == len(countryCode)+subscriberDigits && strings.HasPrefix(d, countryCode):
		return "+" + d, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
}

type SMSConfig struct {
	URL         string
	Token       string
	CountryCode string
	SenderName  string
	Timeout     time.Duration
}

// SMS posts to the provider's REST endpoint.
type SMS struct {
	cfg    SMSConfig
	client *http.Client
}

func NewSMS(cfg SMSConfig) *SMS {
	if cfg.CountryCode == "" {
		cfg.CountryCode = "998"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &SMS{cfg: cfg, client: &http.Client{Timeout: cfg.Timeout}}
}

func (s *SMS) Name() string { return "sms" }

func (s *SMS) Configured() bool { return s.cfg.URL != "" && s.cfg.Token != "" }

type SMSRequest struct {
	PhoneNumber string `json:"phoneNumber" validate:"required"`
	Message     string `json:"message" validate:"required,max=900"`
	SenderName  string `json:"senderName"`
}

func (s *SMS) Deliver(ctx context.Context, to models.Contact, msg Message) error {
	if strings.TrimSpace(to.Phone) == "" {
		return ErrNoAddress
	}
	text := msg.Body
	if msg.Subject != "" {
		text = msg.Subject + "\n" + msg.Body
	}
	return s.Send(ctx, SMSRequest{PhoneNumber: to.Phone, Message: text})
}

// Send validates the number before checking configuration, so malformed
// numbers are reported even when the provider is not set up.
func (s *SMS) Send(ctx context.Context, r SMSRequest) error {
	phone, err := NormalizePhone(r.PhoneNumber, s.cfg.CountryCode)
	if err != nil {
		return err
	}
	if strings.TrimSpace(r.Message) == "" {
		return fmt.Errorf("%w: sms message is blank", ErrInvalidRequest)
	}
	if !s.Configured() {
		return ErrNotConfigured
	}
	sender := r.SenderName
	if sender == "" {
		sender = s.cfg.SenderName
	}
	body, err := json.Marshal(SMSRequest{PhoneNumber: phone, Message: r.Message, SenderName: sender})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.cfg.URL, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+s.cfg.Token)

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("sms: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode/100 != 2 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return fmt.Errorf("sms: http %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	return nil
}
