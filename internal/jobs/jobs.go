// Package jobs runs the studio's daily client notices.
package jobs

import (
	"context"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

const (
	JobRenewalReminder = "renewal_reminder"
	JobExpiredNotice   = "expired_notice"

	lockTTL = 23 * time.Hour
)

type Options struct {
	RenewalReminderAt   string // "HH:MM" studio time
	ExpiredNoticeAt     string
	RenewalReminderDays int
	GraceDays           int
}

type Runner struct {
	db   *gorm.DB
	lock Locker
	opts Options
}

// NewRunner builds a runner. lock may be nil for a single instance.
func NewRunner(gdb *gorm.DB, lock Locker, o Options) *Runner {
	if o.RenewalReminderAt == "" {
		o.RenewalReminderAt = "08:00"
	}
	if o.ExpiredNoticeAt == "" {
		o.ExpiredNoticeAt = "09:00"
	}
	if o.RenewalReminderDays <= 0 {
		o.RenewalReminderDays = 2
	}
	if o.GraceDays <= 0 {
		o.GraceDays = 7
	}
	return &Runner{db: gdb, lock: lock, opts: o}
}

// Start ticks every minute until ctx is done.
func (r *Runner) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(1 * time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case t := <-ticker.C:
				r.Tick(ctx, t)
			}
		}
	}()
}

// Tick runs whichever job is due at now's studio-local minute.
func (r *Runner) Tick(ctx context.Context, now time.Time) {
	hm := now.In(studiotime.Loc()).Format("15:04")
	if hm == r.opts.RenewalReminderAt {
		r.runLocked(ctx, JobRenewalReminder, now, r.SendRenewalReminders)
	}
	if hm == r.opts.ExpiredNoticeAt {
		r.runLocked(ctx, JobExpiredNotice, now, r.SendExpiredNotices)
	}
}

func (r *Runner) runLocked(ctx context.Context, job string, now time.Time, fn func(context.Context, time.Time) (int, error)) {
	if r.lock != nil {
		key := job + ":" + studiotime.FormatDate(studiotime.Today(now))
		ok, err := r.lock.Acquire(ctx, key, lockTTL)
		if err != nil {
			log.Printf("[jobs][%s] lock err=%v", job, err)
			return
		}
		if !ok {
			log.Printf("[jobs][%s] already ran today", job)
			return
		}
	}
	n, err := fn(ctx, now)
	if err != nil {
		log.Printf("[jobs][%s] err=%v", job, err)
		return
	}
	log.Printf("[jobs][%s] queued=%d", job, n)
}

// renewed reports whether the client paid again after p and got a later
// validity.
func renewed(tx *gorm.DB, p models.Payment) (bool, error) {
	var n int64
	err := tx.Model(&models.Payment{}).
		Where("client_id = ? AND date_paid > ? AND valid_until > ?", p.ClientID, p.DatePaid, p.ValidUntil).
		Count(&n).Error
	return n > 0, err
}

func (r *Runner) expiringOn(ctx context.Context, day time.Time) ([]models.Payment, error) {
	var ps []models.Payment
	err := r.db.WithContext(ctx).Preload("Client").Preload("Membership").
		Where("valid_until = ?", day).
		Order("id").Find(&ps).Error
	return ps, err
}

// SendRenewalReminders queues a reminder for every payment that expires in
// RenewalReminderDays and has not been renewed.
func (r *Runner) SendRenewalReminders(ctx context.Context, now time.Time) (int, error) {
	target := studiotime.Today(now).AddDate(0, 0, r.opts.RenewalReminderDays)
	ps, err := r.expiringOn(ctx, target)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range ps {
		done, err := renewed(r.db.WithContext(ctx), p)
		if err != nil {
			log.Printf("[jobs][%s] payment=%d err=%v", JobRenewalReminder, p.ID, err)
			continue
		}
		if done {
			continue
		}
		events.Publish(r.db, events.RenewalReminder(p.Client, p.Membership.Name, p.ValidUntil, r.opts.GraceDays))
		n++
	}
	return n, nil
}

// SendExpiredNotices queues a notice for every payment that expired
// yesterday without a renewal.
func (r *Runner) SendExpiredNotices(ctx context.Context, now time.Time) (int, error) {
	yesterday := studiotime.Today(now).AddDate(0, 0, -1)
	ps, err := r.expiringOn(ctx, yesterday)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range ps {
		done, err := renewed(r.db.WithContext(ctx), p)
		if err != nil {
			log.Printf("[jobs][%s] payment=%d err=%v", JobExpiredNotice, p.ID, err)
			continue
		}
		if done {
			continue
		}
		events.Publish(r.db, events.SubscriptionExpired(p.Client, p.Membership.Name))
		n++
	}
	return n, nil
}
