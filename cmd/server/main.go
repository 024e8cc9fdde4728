package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/vilepilates/studio/internal/auth"
	"github.com/vilepilates/studio/internal/bot"
	"github.com/vilepilates/studio/internal/config"
	"github.com/vilepilates/studio/internal/db"
	"github.com/vilepilates/studio/internal/eligibility"
	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/handlers"
	"github.com/vilepilates/studio/internal/jobs"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/notify"
	"github.com/vilepilates/studio/internal/services"
	"github.com/vilepilates/studio/internal/studiotime"
	"github.com/vilepilates/studio/internal/telemetry"
	"github.com/vilepilates/studio/internal/web"
)

func main() {
	cfg, err := config.Load(".env")
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := studiotime.SetLocation(cfg.TimeZone); err != nil {
		log.Fatalf("time zone: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, "vile-studio", cfg.OTelEndpoint)
	if err != nil {
		log.Printf("[telemetry] disabled: %v", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdownTracing(sctx)
	}()

	if err := db.Init(cfg.DBDriver, cfg.DBDSN); err != nil {
		log.Fatalf("db init: %v", err)
	}
	gdb := db.Conn()

	services.Configure(services.Options{
		IndividualPlanID: cfg.IndividualPlanID,
		Policy: eligibility.Policy{
			PreferMembershipOverTrial:       cfg.PreferMembershipOverTrial,
			ConsumeTrialOnMembershipCheckin: cfg.ConsumeTrialOnMembershipCheckin,
		},
		NoShowPenalty: cfg.NoShowPenalty,
		GraceDays:     cfg.GraceDays,
	})
	if err := auth.EnsureAdmin(gdb, cfg.AdminUsername, cfg.AdminPassword); err != nil {
		log.Fatalf("admin user: %v", err)
	}

	// Telegram is optional; without a token the gateway falls back to
	// email and the log.
	var (
		tg        notify.TelegramSender
		tgWebhook http.Handler
	)
	if cfg.TelegramToken != "" {
		b, err := bot.New(cfg.TelegramToken, cfg.TelegramWebhookSecret, gdb)
		if err != nil {
			log.Printf("[bot] disabled: %v", err)
		} else {
			tg = b
			if cfg.TelegramWebhookURL != "" {
				if err := b.UseWebhook(ctx, cfg.TelegramWebhookURL, cfg.TelegramWebhookSecret); err != nil {
					log.Fatalf("[bot] %v", err)
				}
				tgWebhook = b.WebhookHandler()
				go b.StartWebhook(ctx)
			} else {
				go b.Start(ctx)
			}
		}
	}

	gw := notify.NewGateway(gdb, tg, cfg.SMTP)
	dispatcher := notify.NewDispatcher(gdb, gw, cfg.NotifyPollInterval, cfg.NotifyMaxAttempts)
	dispatcher.RetryBase = cfg.NotifyRetryBase
	events.OnPublish = func(models.OutboxMessage) { dispatcher.Kick() }
	go dispatcher.Run(ctx)

	if cfg.JobsEnabled {
		var lock jobs.Locker
		if cfg.RedisAddr != "" {
			rl, err := jobs.NewRedisLocker(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
			if err != nil {
				log.Fatalf("redis: %v", err)
			}
			defer rl.Close()
			lock = rl
		}
		runner := jobs.NewRunner(gdb, lock, jobs.Options{
			RenewalReminderAt:   cfg.RenewalReminderAt,
			ExpiredNoticeAt:     cfg.ExpiredNoticeAt,
			RenewalReminderDays: cfg.RenewalReminderDays,
			GraceDays:           cfg.GraceDays,
		})
		runner.Start(ctx)
	}

	api := handlers.New(gdb, auth.NewIssuer(cfg.JWTSecret, cfg.JWTTTL).CheckAccounts(gdb))
	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           web.Router(api, tgWebhook),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
	}()

	log.Printf("Vile Pilates studio listening on %s", cfg.Addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}
}
