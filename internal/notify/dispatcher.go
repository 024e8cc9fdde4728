package notify

import (
	"context"
	"log"
	"time"

	"github.com/sethvargo/go-retry"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/models"
)

type Deliverer interface {
	Deliver(ctx context.Context, m models.OutboxMessage) (string, error)
}

const (
	batchSize = 50
	// a row left in sending longer than this belongs to a dispatcher that
	// died mid-delivery and may be claimed again
	claimLease = 5 * time.Minute
	maxBackoff = time.Hour
)

// Dispatcher drains the outbox. Several dispatchers may share one database:
// each row is claimed before delivery so only one of them sends it. Rows that
// keep failing back off exponentially and are marked failed after
// maxAttempts tries.
type Dispatcher struct {
	db          *gorm.DB
	gw          Deliverer
	interval    time.Duration
	maxAttempts int
	kick        chan struct{}

	// RetryBase is the delay before the first retry; it doubles per attempt.
	RetryBase time.Duration
	now       func() time.Time
}

func NewDispatcher(gdb *gorm.DB, gw Deliverer, interval time.Duration, maxAttempts int) *Dispatcher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if maxAttempts <= 0 {
		maxAttempts = 5
	}
	return &Dispatcher{
		db:          gdb,
		gw:          gw,
		interval:    interval,
		maxAttempts: maxAttempts,
		kick:        make(chan struct{}, 1),
		RetryBase:   30 * time.Second,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Kick wakes the loop without waiting for the next tick.
func (d *Dispatcher) Kick() {
	select {
	case d.kick <- struct{}{}:
	default:
	}
}

func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()
	for {
		if _, _, err := d.RunOnce(ctx); err != nil {
			log.Printf("[notify][dispatch] err=%v", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		case <-d.kick:
		}
	}
}

// RunOnce delivers one batch of due rows, oldest first.
func (d *Dispatcher) RunOnce(ctx context.Context) (sent, failed int, err error) {
	now := d.now()
	var rows []models.OutboxMessage
	if err := d.db.WithContext(ctx).
		Where("(status = ? AND (next_attempt_at IS NULL OR next_attempt_at <= ?)) OR (status = ? AND claimed_at < ?)",
			models.OutboxPending, now, models.OutboxSending, now.Add(-claimLease)).
		Order("created_at, id").Limit(batchSize).
		Find(&rows).Error; err != nil {
		return 0, 0, err
	}

	for _, m := range rows {
		if ctx.Err() != nil {
			return sent, failed, ctx.Err()
		}
		ok, err := d.claim(ctx, m)
		if err != nil {
			return sent, failed, err
		}
		if !ok {
			continue
		}
		attempts := m.Attempts + 1

		channel, derr := d.gw.Deliver(ctx, m)
		if derr == nil {
			if err := d.db.WithContext(ctx).Model(&models.OutboxMessage{}).Where("id = ?", m.ID).Updates(map[string]any{
				"status":          models.OutboxSent,
				"sent_at":         d.now(),
				"last_error":      "",
				"next_attempt_at": nil,
			}).Error; err != nil {
				return sent, failed, err
			}
			log.Printf("[notify][sent] id=%s kind=%s via=%s", m.ID, m.Kind, channel)
			sent++
			continue
		}

		upd := map[string]any{
			"status":     models.OutboxPending,
			"last_error": derr.Error(),
		}
		if attempts >= d.maxAttempts {
			upd["status"] = models.OutboxFailed
			upd["next_attempt_at"] = nil
			failed++
		} else {
			upd["next_attempt_at"] = d.now().Add(retryDelay(d.RetryBase, attempts))
		}
		log.Printf("[notify][retry] id=%s kind=%s via=%s attempt=%d err=%v", m.ID, m.Kind, channel, attempts, derr)
		if err := d.db.WithContext(ctx).Model(&models.OutboxMessage{}).Where("id = ?", m.ID).Updates(upd).Error; err != nil {
			return sent, failed, err
		}
	}
	return sent, failed, nil
}

// claim moves m to sending and counts the attempt. The update only matches
// the row as it was read, so when two dispatchers race for it exactly one
// wins.
func (d *Dispatcher) claim(ctx context.Context, m models.OutboxMessage) (bool, error) {
	res := d.db.WithContext(ctx).Model(&models.OutboxMessage{}).
		Where("id = ? AND status = ? AND attempts = ?", m.ID, m.Status, m.Attempts).
		Updates(map[string]any{
			"status":     models.OutboxSending,
			"attempts":   gorm.Expr("attempts + 1"),
			"claimed_at": d.now(),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// retryDelay is the wait after the given number of failed attempts.
func retryDelay(base time.Duration, attempts int) time.Duration {
	if base <= 0 {
		return 0
	}
	b := retry.WithCappedDuration(maxBackoff, retry.NewExponential(base))
	var delay time.Duration
	for i := 0; i < attempts; i++ {
		delay, _ = b.Next()
	}
	return delay
}
