package services

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

// Payment methods the studio reports on.
const (
	MethodCard     = "tarjeta"
	MethodCash     = "efectivo"
	MethodVisaLink = "visalink"
)

const defaultValidityDays = 30

type PaymentInput struct {
	ClientID      uint
	MembershipID  uint
	Amount        decimal.Decimal
	PaymentMethod string
	DatePaid      *time.Time
	ValidUntil    *time.Time
}

// applicablePromotion finds the newest promotion instance that includes the
// client, sells the membership and covers day.
func applicablePromotion(tx *gorm.DB, clientID, membershipID uint, day time.Time) (*models.PromotionInstance, error) {
	var inst models.PromotionInstance
	err := tx.Preload("Promotion").
		Joins("JOIN promotion_instance_clients pic ON pic.promotion_instance_id = promotion_instances.id").
		Joins("JOIN promotions ON promotions.id = promotion_instances.promotion_id").
		Where("pic.client_id = ? AND promotions.membership_id = ?", clientID, membershipID).
		Where("promotions.start_date <= ? AND promotions.end_date >= ?", day, day).
		Order("promotion_instances.created_at DESC, promotion_instances.id DESC").
		First(&inst).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

// confirmPlanIntent marks the client's open intent for the membership as
// fulfilled.
func confirmPlanIntent(tx *gorm.DB, clientID, membershipID uint) error {
	return tx.Model(&models.PlanIntent{}).
		Where("client_id = ? AND membership_id = ? AND is_confirmed = ?", clientID, membershipID, false).
		Update("is_confirmed", true).Error
}

func activateClient(tx *gorm.DB, c *models.Client) error {
	c.Status = models.ClientActive
	return tx.Model(&models.Client{}).Where("id = ?", c.ID).Update("status", models.ClientActive).Error
}

// recordPayment inserts p and applies its side effects inside tx.
func recordPayment(tx *gorm.DB, p *models.Payment, c *models.Client, today time.Time) error {
	if err := tx.Omit(clause.Associations).Create(p).Error; err != nil {
		return err
	}
	if !p.ValidUntil.Before(today) {
		if err := activateClient(tx, c); err != nil {
			return err
		}
	}
	if err := confirmPlanIntent(tx, c.ID, p.MembershipID); err != nil {
		return err
	}
	return incrementRevenue(tx, p.DatePaid, paymentDelta(*p))
}

// CreatePayment records a membership payment. A promotion instance covering
// the payment date overrides the amount with the promotion price.
func CreatePayment(ctx context.Context, gdb *gorm.DB, in PaymentInput, now time.Time) (models.Payment, error) {
	ctx, span := tracer.Start(ctx, "services.CreatePayment")
	defer span.End()
	span.SetAttributes(attribute.Int("client.id", int(in.ClientID)))

	if in.Amount.IsNegative() {
		return models.Payment{}, apperr.Invalid("Monto inválido.", map[string]string{"amount": "no puede ser negativo"})
	}
	paid := now
	if in.DatePaid != nil {
		paid = *in.DatePaid
	}
	paidDay := studiotime.DateOf(paid)
	validUntil := paidDay.AddDate(0, 0, defaultValidityDays)
	if in.ValidUntil != nil {
		validUntil = civil(*in.ValidUntil)
	}

	var (
		p      models.Payment
		client models.Client
		ms     models.Membership
	)
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&client, in.ClientID).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}
		if err := tx.First(&ms, in.MembershipID).Error; err != nil {
			return notFound(err, "Membresía no encontrada.")
		}
		p = models.Payment{
			ClientID:      client.ID,
			MembershipID:  ms.ID,
			PaymentMethod: strings.ToLower(strings.TrimSpace(in.PaymentMethod)),
			Amount:        in.Amount,
			DatePaid:      paid,
			ValidUntil:    validUntil,
		}
		inst, err := applicablePromotion(tx, client.ID, ms.ID, paidDay)
		if err != nil {
			return err
		}
		if inst != nil {
			p.PromotionID = &inst.PromotionID
			p.PromotionInstanceID = &inst.ID
			p.Amount = inst.Promotion.Price
		}
		return recordPayment(tx, &p, &client, studiotime.Today(now))
	})
	if err != nil {
		span.RecordError(err)
		return models.Payment{}, err
	}
	p.Client, p.Membership = client, ms
	log.Printf("[payments][create] id=%d client=%d amount=%s", p.ID, client.ID, p.Amount)
	events.Publish(gdb, events.SubscriptionConfirmation(client, ms, p.ValidUntil))
	return p, nil
}

func ListPayments(gdb *gorm.DB, clientID *uint) ([]models.Payment, error) {
	q := gdb.Preload("Membership").Order("date_paid DESC, id DESC")
	if clientID != nil {
		q = q.Where("client_id = ?", *clientID)
	}
	var out []models.Payment
	err := q.Find(&out).Error
	return out, err
}

// DeletePayment removes a payment, takes it out of its month's revenue and
// deactivates the client when nothing current is left.
func DeletePayment(ctx context.Context, gdb *gorm.DB, id uint, now time.Time) error {
	today := studiotime.Today(now)
	var (
		p           models.Payment
		client      models.Client
		deactivated bool
	)
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Membership").First(&p, id).Error; err != nil {
			return notFound(err, "Pago no encontrado.")
		}
		if err := tx.Delete(&models.Payment{}, p.ID).Error; err != nil {
			return err
		}
		if err := decrementRevenue(tx, p.DatePaid, paymentDelta(p)); err != nil {
			return err
		}
		if err := tx.First(&client, p.ClientID).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}
		var current int64
		if err := tx.Model(&models.Payment{}).
			Where("client_id = ? AND valid_until >= ?", client.ID, today).
			Count(&current).Error; err != nil {
			return err
		}
		if current > 0 || client.Status == models.ClientInactive {
			return nil
		}
		client.Status = models.ClientInactive
		deactivated = true
		return tx.Model(&models.Client{}).Where("id = ?", client.ID).Update("status", models.ClientInactive).Error
	})
	if err != nil {
		return err
	}
	log.Printf("[payments][delete] id=%d client=%d", p.ID, p.ClientID)
	if deactivated {
		events.Publish(gdb, events.MembershipCancellation(client, p.Membership.Name))
	}
	return nil
}

// AddStudioDays moves n days forward from d skipping Sundays.
func AddStudioDays(d time.Time, n int) time.Time {
	for n > 0 {
		d = d.AddDate(0, 0, 1)
		if d.Weekday() != time.Sunday {
			n--
		}
	}
	return d
}

const extensionDays = 6

// ExtendValidity pushes an expired payment's validity six studio days past
// today. Payments still valid are left alone.
func ExtendValidity(ctx context.Context, gdb *gorm.DB, id uint, now time.Time) (models.Payment, error) {
	today := studiotime.Today(now)
	var p models.Payment
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return notFound(err, "Pago no encontrado.")
		}
		if !p.ValidUntil.Before(today) {
			return apperr.New(apperr.CodePaymentStillValid, "El pago todavía está vigente. No es necesario extender.")
		}
		p.ValidUntil = AddStudioDays(today, extensionDays)
		return tx.Model(&models.Payment{}).Where("id = ?", p.ID).Update("valid_until", p.ValidUntil).Error
	})
	if err != nil {
		return models.Payment{}, err
	}
	log.Printf("[payments][extend] id=%d valid_until=%s", p.ID, studiotime.FormatDate(p.ValidUntil))
	return p, nil
}

// ConfirmPromotionPayment records the purchase of a promotion instance by one
// of its clients at the promotion price. A client not yet on the instance is
// added to it.
func ConfirmPromotionPayment(ctx context.Context, gdb *gorm.DB, instanceID, clientID uint, method string, now time.Time) (models.Payment, error) {
	ctx, span := tracer.Start(ctx, "services.ConfirmPromotionPayment")
	defer span.End()

	today := studiotime.Today(now)
	var (
		p      models.Payment
		inst   models.PromotionInstance
		client models.Client
	)
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Preload("Promotion.Membership").Preload("Clients").First(&inst, instanceID).Error; err != nil {
			return notFound(err, "Instancia de promoción no encontrada.")
		}
		if err := tx.First(&client, clientID).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}
		member := false
		for _, c := range inst.Clients {
			if c.ID == client.ID {
				member = true
				break
			}
		}
		if !member {
			if err := tx.Model(&inst).Association("Clients").Append(&client); err != nil {
				return err
			}
		}
		p = models.Payment{
			ClientID:            client.ID,
			MembershipID:        inst.Promotion.MembershipID,
			PromotionID:         &inst.PromotionID,
			PromotionInstanceID: &inst.ID,
			PaymentMethod:       strings.ToLower(strings.TrimSpace(method)),
			Amount:              inst.Promotion.Price,
			DatePaid:            now,
			ValidUntil:          today.AddDate(0, 0, defaultValidityDays),
		}
		return recordPayment(tx, &p, &client, today)
	})
	if err != nil {
		span.RecordError(err)
		return models.Payment{}, err
	}
	p.Client, p.Membership = client, inst.Promotion.Membership
	log.Printf("[payments][promotion] id=%d instance=%d client=%d", p.ID, inst.ID, client.ID)
	events.Publish(gdb, events.SubscriptionConfirmation(client, inst.Promotion.Membership, p.ValidUntil))
	return p, nil
}

type GraceEntry struct {
	ClientID        uint      `json:"client_id"`
	ClientName      string    `json:"client_name"`
	Membership      string    `json:"membership"`
	LastPaymentDate time.Time `json:"last_payment_date"`
	ValidUntil      string    `json:"valid_until"`
	GraceEnds       string    `json:"grace_ends"`
}

// GracePeriod lists clients whose latest plan expired within the grace
// window and who have not renewed. One row per client.
func GracePeriod(gdb *gorm.DB, now time.Time) ([]GraceEntry, error) {
	today := studiotime.Today(now)
	from := today.AddDate(0, 0, -opts.GraceDays)

	var ps []models.Payment
	if err := gdb.Preload("Client").Preload("Membership").
		Where("valid_until >= ? AND valid_until < ?", from, today).
		Order("date_paid DESC, id DESC").
		Find(&ps).Error; err != nil {
		return nil, err
	}
	var renewed []uint
	if err := gdb.Model(&models.Payment{}).
		Where("valid_until >= ?", today).
		Distinct("client_id").Pluck("client_id", &renewed).Error; err != nil {
		return nil, err
	}
	skip := make(map[uint]bool, len(renewed))
	for _, id := range renewed {
		skip[id] = true
	}

	out := []GraceEntry{}
	for _, p := range ps {
		if skip[p.ClientID] {
			continue
		}
		skip[p.ClientID] = true
		out = append(out, GraceEntry{
			ClientID:        p.ClientID,
			ClientName:      p.Client.FullName(),
			Membership:      p.Membership.Name,
			LastPaymentDate: p.DatePaid,
			ValidUntil:      studiotime.FormatDate(p.ValidUntil),
			GraceEnds:       studiotime.FormatDate(p.ValidUntil.AddDate(0, 0, opts.GraceDays)),
		})
	}
	return out, nil
}
