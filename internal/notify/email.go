package notify

import (
	"context"
	"fmt"
	"html"
	"net/http"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/Spok95/school-progress/internal/ctxutil"
	"github.com/Spok95/school-progress/internal/models"
)

const (
	sendgridHost     = "https://api.sendgrid.com"
	sendgridEndpoint = "/v3/mail/send"
)

type EmailConfig struct {
	APIKey      string
	Host        string // empty: api.sendgrid.com
	From        string
	SenderName  string
	PlatformURL string
}

// Email sends through the SendGrid v3 API.
type Email struct {
	cfg    EmailConfig
	client *rest.Client
}

func NewEmail(cfg EmailConfig) *Email {
	if cfg.Host == "" {
		cfg.Host = sendgridHost
	}
	return &Email{
		cfg:    cfg,
		client: &rest.Client{HTTPClient: &http.Client{Timeout: ctxutil.DefaultSendTimeout}},
	}
}

func (e *Email) Name() string { return "email" }

func (e *Email) Configured() bool { return e.cfg.APIKey != "" && e.cfg.From != "" }

// EmailRequest is the relay payload of a single email.
type EmailRequest struct {
	RecipientEmail string `json:"recipientEmail" validate:"required,email"`
	RecipientName  string `json:"recipientName"`
	SenderName     string `json:"senderName"`
	Subject        string `json:"subject" validate:"required,max=200"`
	Content        string `json:"content" validate:"required"`
	PlatformURL    string `json:"platformUrl" validate:"omitempty,url"`
}

func (e *Email) Deliver(ctx context.Context, to models.Contact, msg Message) error {
	if to.Email == "" {
		return ErrNoAddress
	}
	return e.Send(ctx, EmailRequest{
		RecipientEmail: to.Email,
		RecipientName:  to.Name,
		Subject:        msg.Subject,
		Content:        msg.Body,
		PlatformURL:    msg.ActionURL,
	})
}

// Send posts one email. ErrNotConfigured without an API key; a blank body is
// ErrInvalidRequest even then.
func (e *Email) Send(ctx context.Context, r EmailRequest) error {
	if strings.TrimSpace(r.Content) == "" {
		return fmt.Errorf("%w: email content is blank", ErrInvalidRequest)
	}
	if !e.Configured() {
		return ErrNotConfigured
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	sender := r.SenderName
	if sender == "" {
		sender = e.cfg.SenderName
	}
	link := r.PlatformURL
	if link == "" {
		link = e.cfg.PlatformURL
	}

	p := sgmail.NewPersonalization()
	p.Subject = r.Subject
	p.AddTos(sgmail.NewEmail(r.RecipientName, r.RecipientEmail))

	m := sgmail.NewV3Mail()
	m.SetFrom(sgmail.NewEmail(sender, e.cfg.From))
	m.AddPersonalizations(p)
	m.AddContent(
		sgmail.NewContent("text/plain", plainBody(r, sender, link)),
		sgmail.NewContent("text/html", htmlBody(r, sender, link)),
	)

	req := sendgrid.GetRequest(e.cfg.APIKey, sendgridEndpoint, e.cfg.Host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(m)

	httpReq, err := rest.BuildRequestObject(req)
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	// sendgrid.API ignores ctx; go through the client so deadlines apply
	httpRes, err := e.client.MakeRequest(httpReq.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("sendgrid: %w", err)
	}
	res, err := rest.BuildResponse(httpRes)
	if err != nil {
		return fmt.Errorf("sendgrid: read response: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid: http %d: %s", res.StatusCode, strings.TrimSpace(res.Body))
	}
	return nil
}

func greeting(name string) string {
	if name == "" {
		return "Hello,"
	}
	return "Hello, " + name + ","
}

func plainBody(r EmailRequest, sender, link string) string {
	var b strings.Builder
	b.WriteString(greeting(r.RecipientName))
	b.WriteString("\n\n")
	b.WriteString(r.Content)
	if link != "" {
		b.WriteString("\n\n")
		b.WriteString(link)
	}
	if sender != "" {
		b.WriteString("\n\n")
		b.WriteString(sender)
	}
	return b.String()
}

func htmlBody(r EmailRequest, sender, link string) string {
	var b strings.Builder
	b.WriteString("<p>")
	b.WriteString(html.EscapeString(greeting(r.RecipientName)))
	b.WriteString("</p><p>")
	b.WriteString(strings.ReplaceAll(html.EscapeString(r.Content), "\n", "<br>"))
	b.WriteString("</p>")
	if link != "" {
		fmt.Fprintf(&b, `<p><a href="%s">Open the platform</a></p>`, html.EscapeString(link))
	}
	if sender != "" {
		fmt.Fprintf(&b, "<p>%s</p>", html.EscapeString(sender))
	}
	return b.String()
}
