package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/Spok95/school-progress/internal/app"
	"github.com/Spok95/school-progress/internal/config"
	"github.com/Spok95/school-progress/internal/db"
	"github.com/Spok95/school-progress/internal/db/memdb"
	"github.com/Spok95/school-progress/internal/gamification"
	"github.com/Spok95/school-progress/internal/jobs"
	"github.com/Spok95/school-progress/internal/logging"
	"github.com/Spok95/school-progress/internal/notify"
	"github.com/Spok95/school-progress/internal/observability"
	"github.com/Spok95/school-progress/internal/reminders"
)

var version = "dev"

// store - всё, что нужно компонентам; реализуют db.Store и memdb.DB.
type store interface {
	gamification.Store
	reminders.Store
	app.Store
	notify.PushStore
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("no .env file, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()
	logger := lg.Base

	flush, err := observability.InitSentry(observability.SentryOptions{
		DSN:     cfg.SentryDSN,
		Env:     cfg.Env,
		Release: version,
	})
	if err != nil {
		logger.Warn("sentry init failed", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Fatal("store", zap.Error(err))
	}
	defer closeStore()

	email := notify.NewEmail(notify.EmailConfig{
		APIKey:      cfg.SendGridAPIKey,
		Host:        cfg.SendGridHost,
		From:        cfg.EmailFrom,
		SenderName:  cfg.SenderName,
		PlatformURL: cfg.PlatformURL,
	})
	sms := notify.NewSMS(notify.SMSConfig{
		URL:         cfg.SMSURL,
		Token:       cfg.SMSToken,
		CountryCode: cfg.SMSCountryCode,
		SenderName:  cfg.SenderName,
	})
	push := notify.NewPush(notify.PushConfig{
		VAPIDPublicKey:  cfg.VAPIDPublicKey,
		VAPIDPrivateKey: cfg.VAPIDPrivateKey,
		Subject:         cfg.VAPIDSubject,
	}, st, logger)

	channels := []notify.Channel{email, sms, push}
	if cfg.BotToken != "" {
		bot, err := tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			logger.Warn("telegram disabled", zap.Error(err))
		} else {
			logger.Info("telegram channel enabled", zap.String("bot", bot.Self.UserName))
			channels = append(channels, notify.NewTelegram(bot))
		}
	}
	dispatcher := notify.NewDispatcher(logger, channels...)

	engine := gamification.NewEngine(st, logger, cfg.Location)
	paymentJob := reminders.NewPaymentJob(st, dispatcher, logger, reminders.Options{
		Hours:       cfg.PaymentReminderHours,
		Location:    cfg.Location,
		PlatformURL: cfg.PlatformURL + "/payments",
	})
	salaryJob := reminders.NewSalaryJob(st, dispatcher, logger, reminders.Options{
		Hours:       cfg.SalaryReminderHours,
		Location:    cfg.Location,
		PlatformURL: cfg.PlatformURL + "/salaries",
	})

	runner := jobs.New(ctx, logger, cfg.Location)
	if cfg.SchedulerEnabled {
		if err := schedule(runner, cfg, paymentJob, salaryJob, logger); err != nil {
			logger.Fatal("scheduler", zap.Error(err))
		}
		runner.Start()
	}

	handler := app.NewRouter(app.Deps{
		Log:              logger,
		Store:            st,
		Engine:           engine,
		Email:            email,
		SMS:              sms,
		Push:             push,
		PaymentJob:       paymentJob,
		SalaryJob:        salaryJob,
		CronSecret:       cfg.CronSecret,
		LeaderboardLimit: cfg.LeaderboardLimit,
		Location:         cfg.Location,
	})
	app.StartHTTP(ctx, cfg.HTTPAddr, handler, logger)

	logger.Info("started",
		zap.String("version", version),
		zap.String("env", cfg.Env),
		zap.Strings("channels", dispatcher.Channels()),
		zap.Bool("scheduler", cfg.SchedulerEnabled),
	)

	<-ctx.Done()
	logger.Info("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if cfg.SchedulerEnabled {
		runner.Stop(shCtx)
	}
}

// openStore - Postgres при заданном DATABASE_URL, иначе память (только dev).
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store, func(), error) {
	if cfg.DatabaseURL == "" {
		if cfg.Env == "prod" {
			return nil, nil, fmt.Errorf("DATABASE_URL is required in prod")
		}
		logger.Warn("DATABASE_URL is empty, using in-memory store")
		return memdb.Open(), func() {}, nil
	}

	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	if err := db.Migrate(ctx, database); err != nil {
		_ = database.Close()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}
	return db.New(database), func() { closeDB(database, logger) }, nil
}

func closeDB(database *sql.DB, logger *zap.Logger) {
	if err := database.Close(); err != nil {
		logger.Warn("db close", zap.Error(err))
	}
}

func schedule(r *jobs.Runner, cfg *config.Config, payment, salary jobs.ReminderRunner, logger *zap.Logger) error {
	if len(cfg.PaymentReminderHours) > 0 {
		spec := fmt.Sprintf("0 %s * * *", config.CronHours(cfg.PaymentReminderHours))
		if err := r.Cron(spec, "payment_reminders", jobs.Reminder(payment, logger)); err != nil {
			return err
		}
	}
	if len(cfg.SalaryReminderHours) > 0 {
		spec := fmt.Sprintf("0 %s * * *", config.CronHours(cfg.SalaryReminderHours))
		if err := r.Cron(spec, "salary_reminders", jobs.Reminder(salary, logger)); err != nil {
			return err
		}
	}
	return nil
}
