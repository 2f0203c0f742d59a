package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	DatabaseURL string // пусто - работаем на памяти (dev)
	HTTPAddr    string
	LogLevel    string
	Env         string // dev|prod
	SentryDSN   string
	Location    *time.Location
	CronSecret  string
	PlatformURL string
	SenderName  string

	SendGridAPIKey string
	SendGridHost   string
	EmailFrom      string

	SMSURL         string
	SMSToken       string
	SMSCountryCode string

	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	BotToken string

	SchedulerEnabled     bool
	PaymentReminderHours []int
	SalaryReminderHours  []int
	LeaderboardLimit     int
}

func Load() (*Config, error) {
	tz := getenv("TZ", "Asia/Tashkent")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		loc = time.Local
	}

	paymentHours, err := parseHours(getenv("PAYMENT_REMINDER_HOURS", "9,20"))
	if err != nil {
		return nil, fmt.Errorf("PAYMENT_REMINDER_HOURS: %w", err)
	}
	salaryHours, err := parseHours(getenv("SALARY_REMINDER_HOURS", "12"))
	if err != nil {
		return nil, fmt.Errorf("SALARY_REMINDER_HOURS: %w", err)
	}
	scheduler, err := strconv.ParseBool(getenv("SCHEDULER_ENABLED", "true"))
	if err != nil {
		return nil, fmt.Errorf("SCHEDULER_ENABLED: %w", err)
	}
	limit, err := strconv.Atoi(getenv("LEADERBOARD_LIMIT", "10"))
	if err != nil || limit <= 0 {
		return nil, fmt.Errorf("LEADERBOARD_LIMIT: bad value %q", os.Getenv("LEADERBOARD_LIMIT"))
	}

	cfg := &Config{
		DatabaseURL: os.Getenv("DATABASE_URL"),
		HTTPAddr:    getenv("HTTP_ADDR", ":8080"),
		LogLevel:    getenv("LOG_LEVEL", "info"),
		Env:         getenv("ENV", "dev"),
		SentryDSN:   os.Getenv("SENTRY_DSN"),
		Location:    loc,
		CronSecret:  os.Getenv("CRON_SECRET"),
		PlatformURL: strings.TrimRight(getenv("PLATFORM_URL", "http://localhost:3000"), "/"),
		SenderName:  getenv("SENDER_NAME", "English School"),

		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		SendGridHost:   getenv("SENDGRID_HOST", "https://api.sendgrid.com"),
		EmailFrom:      os.Getenv("EMAIL_FROM"),

		SMSURL:         os.Getenv("SMS_API_URL"),
		SMSToken:       os.Getenv("SMS_API_TOKEN"),
		SMSCountryCode: getenv("SMS_COUNTRY_CODE", "998"),

		VAPIDPublicKey:  os.Getenv("VAPID_PUBLIC_KEY"),
		VAPIDPrivateKey: os.Getenv("VAPID_PRIVATE_KEY"),
		VAPIDSubject:    getenv("VAPID_SUBJECT", "mailto:admin@example.com"),

		BotToken: os.Getenv("BOT_TOKEN"),

		SchedulerEnabled:     scheduler,
		PaymentReminderHours: paymentHours,
		SalaryReminderHours:  salaryHours,
		LeaderboardLimit:     limit,
	}
	if cfg.Env == "prod" && cfg.CronSecret == "" {
		return nil, fmt.Errorf("CRON_SECRET is required in prod")
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// parseHours - "9,20" -> [9 20]; каждый час 0..23.
func parseHours(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ' ' })
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return nil, fmt.Errorf("bad hour %q: %w", p, err)
		}
		if n < 0 || n > 23 {
			return nil, fmt.Errorf("hour %d out of range", n)
		}
		out = append(out, n)
	}
	return out, nil
}

// CronHours - "9,20" для cron-выражения.
func CronHours(hours []int) string {
	parts := make([]string, 0, len(hours))
	for _, h := range hours {
		parts = append(parts, strconv.Itoa(h))
	}
	return strings.Join(parts, ",")
}
