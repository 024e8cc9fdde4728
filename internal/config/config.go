package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Addr string `env:"ADDR" envDefault:":8080"`

	DBDriver string `env:"DB_DRIVER" envDefault:"sqlite"`
	DBDSN    string `env:"DB_DSN" envDefault:"studio.db?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on"`

	TimeZone string `env:"STUDIO_TZ" envDefault:"America/Guatemala"`

	IndividualPlanID                uint `env:"INDIVIDUAL_PLAN_ID" envDefault:"1"`
	PreferMembershipOverTrial       bool `env:"PREFER_MEMBERSHIP_OVER_TRIAL" envDefault:"false"`
	ConsumeTrialOnMembershipCheckin bool `env:"CONSUME_TRIAL_ON_MEMBERSHIP_CHECKIN" envDefault:"true"`
	NoShowPenalty                   int  `env:"NO_SHOW_PENALTY" envDefault:"35"`
	GraceDays                       int  `env:"GRACE_DAYS" envDefault:"7"`

	JWTSecret     string        `env:"JWT_SECRET" envDefault:"change-me"`
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"72h"`
	AdminUsername string        `env:"ADMIN_USERNAME" envDefault:"admin"`
	AdminPassword string        `env:"ADMIN_PASSWORD"`

	SMTP SMTP

	TelegramToken string `env:"TG_BOT_TOKEN"`
	// With a webhook URL set the bot receives updates at /tg/webhook
	// instead of long polling.
	TelegramWebhookURL    string `env:"TG_WEBHOOK_URL"`
	TelegramWebhookSecret string `env:"TG_WEBHOOK_SECRET"`

	NotifyPollInterval time.Duration `env:"NOTIFY_POLL_INTERVAL" envDefault:"5s"`
	NotifyMaxAttempts  int           `env:"NOTIFY_MAX_ATTEMPTS" envDefault:"5"`
	NotifyRetryBase    time.Duration `env:"NOTIFY_RETRY_BASE" envDefault:"30s"`

	JobsEnabled         bool   `env:"JOBS_ENABLED" envDefault:"true"`
	RenewalReminderAt   string `env:"RENEWAL_REMINDER_AT" envDefault:"08:00"`
	ExpiredNoticeAt     string `env:"EXPIRED_NOTICE_AT" envDefault:"09:00"`
	RenewalReminderDays int    `env:"RENEWAL_REMINDER_DAYS" envDefault:"2"`

	RedisAddr     string `env:"REDIS_ADDR"`
	RedisPassword string `env:"REDIS_PASSWORD"`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	OTelEndpoint string `env:"OTEL_ENDPOINT"`
}

type SMTP struct {
	Host string `env:"SMTP_HOST"`
	Port string `env:"SMTP_PORT" envDefault:"587"`
	User string `env:"SMTP_USER"`
	Pass string `env:"SMTP_PASS"`
	From string `env:"SMTP_FROM"`
}

// Load reads an optional dotenv file (variables already set in the
// environment win) and parses the result into a Config.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envFile, err)
		}
	}
	var cfg Config
	if err := ParseEnv(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ParseEnv loads configuration from environment variables.
func ParseEnv(target any) error {
	if err := env.Parse(target); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}
