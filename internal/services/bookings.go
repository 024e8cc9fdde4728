package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/eligibility"
	"github.com/vilepilates/studio/internal/events"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/studiotime"
)

type BookingRequest struct {
	ClientID         uint
	ScheduleID       uint
	ClassDate        time.Time
	MembershipID     *uint
	AttendanceStatus string
	IsStaff          bool // admin or secretaria checking the client in
}

type BookingResult struct {
	Booking  models.Booking
	Decision eligibility.Decision
}

func newBookingCode() string {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("BK-%X", b[:])
}

func civil(t time.Time) time.Time {
	return studiotime.Date(t.Year(), t.Month(), t.Day())
}

// lockSchedule loads the slot with a row lock so concurrent bookings for it
// serialize. SQLite ignores the lock; the single-connection pool serializes.
func lockSchedule(tx *gorm.DB, id uint) (models.Schedule, error) {
	var s models.Schedule
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&s, id).Error; err != nil {
		return s, notFound(err, "Horario no encontrado.")
	}
	if s.ClassTypeID != nil {
		var ct models.ClassType
		if err := tx.First(&ct, *s.ClassTypeID).Error; err == nil {
			s.ClassType = &ct
		}
	}
	return s, nil
}

func checkWeekday(s models.Schedule, day time.Time) error {
	if studiotime.DayCode(day) != s.Day {
		return apperr.Invalid("La fecha no corresponde al día del horario.",
			map[string]string{"class_date": fmt.Sprintf("debe ser %s", s.Day)})
	}
	return nil
}

// occupied counts the bookings holding a seat in the slot on day. Pending
// individual requests hold theirs too.
func occupied(tx *gorm.DB, scheduleID uint, day time.Time, exceptID uint) (int, error) {
	var n int64
	q := tx.Model(&models.Booking{}).
		Where("schedule_id = ? AND class_date = ? AND status <> ?", scheduleID, day, models.BookingCancelled)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&n).Error
	return int(n), err
}

func tupleTaken(tx *gorm.DB, clientID, scheduleID uint, day time.Time, exceptID uint) (bool, error) {
	var n int64
	q := tx.Model(&models.Booking{}).
		Where("client_id = ? AND schedule_id = ? AND class_date = ?", clientID, scheduleID, day)
	if exceptID != 0 {
		q = q.Where("id <> ?", exceptID)
	}
	err := q.Count(&n).Error
	return n > 0, err
}

// latestPayment returns the client's most recent payment with its
// membership and promotion loaded.
func latestPayment(tx *gorm.DB, clientID uint) ([]models.Payment, error) {
	var ps []models.Payment
	err := tx.Preload("Membership").Preload("Promotion").
		Where("client_id = ?", clientID).
		Order("date_paid DESC, id DESC").Limit(1).
		Find(&ps).Error
	return ps, err
}

// promotionInstanceFor finds the newest instance of promotionID that
// includes the client.
func promotionInstanceFor(tx *gorm.DB, promotionID, clientID uint) (*models.PromotionInstance, error) {
	var inst models.PromotionInstance
	err := tx.Joins("JOIN promotion_instance_clients pic ON pic.promotion_instance_id = promotion_instances.id").
		Where("promotion_instances.promotion_id = ? AND pic.client_id = ?", promotionID, clientID).
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

// monthBookings loads the client's bookings in the calendar month of ref.
func monthBookings(tx *gorm.DB, clientID uint, ref time.Time) ([]models.Booking, error) {
	first, next := studiotime.MonthRange(ref.Year(), ref.Month())
	var bs []models.Booking
	err := tx.Where("client_id = ? AND class_date >= ? AND class_date < ?", clientID, first, next).Find(&bs).Error
	return bs, err
}

// MonthlyUsage is the number of valid bookings the client has in ref's month.
func MonthlyUsage(gdb *gorm.DB, clientID uint, ref time.Time) (int, error) {
	bs, err := monthBookings(gdb, clientID, ref)
	if err != nil {
		return 0, err
	}
	return eligibility.CountValidMonthly(bs, ref), nil
}

// CreateBooking runs the eligibility rules and inserts the booking in one
// transaction, so the capacity count and the insert can't interleave with
// another request for the same slot.
func CreateBooking(ctx context.Context, gdb *gorm.DB, req BookingRequest, now time.Time) (BookingResult, error) {
	ctx, span := tracer.Start(ctx, "services.CreateBooking", trace.WithAttributes(
		attribute.Int("client.id", int(req.ClientID)),
		attribute.Int("schedule.id", int(req.ScheduleID)),
	))
	defer span.End()

	today := studiotime.Today(now)
	day := civil(req.ClassDate)

	var (
		res    BookingResult
		client models.Client
		sched  models.Schedule
		usage  events.PlanUsage
	)
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if sched, err = lockSchedule(tx, req.ScheduleID); err != nil {
			return err
		}
		if err := checkWeekday(sched, day); err != nil {
			return err
		}
		if err := tx.First(&client, req.ClientID).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}

		in := eligibility.Input{
			Capacity:              sched.Capacity,
			RequestedMembershipID: req.MembershipID,
			IndividualPlanID:      opts.IndividualPlanID,
			TrialUsed:             client.TrialUsed,
			RequestedAttendance:   req.AttendanceStatus,
			IsStaff:               req.IsStaff,
			Today:                 today,
			Policy:                opts.Policy,
		}
		if in.Occupied, err = occupied(tx, sched.ID, day, 0); err != nil {
			return err
		}

		if req.MembershipID != nil && *req.MembershipID == opts.IndividualPlanID {
			var plan models.Membership
			if err := tx.First(&plan, opts.IndividualPlanID).Error; err != nil {
				return notFound(err, "Plan de clase individual no encontrado.")
			}
			in.IndividualPlanPrice = plan.Price
		}

		payments, err := latestPayment(tx, client.ID)
		if err != nil {
			return err
		}
		if latest, ok := eligibility.LatestPayment(payments); ok {
			view := &eligibility.PaymentView{MembershipID: latest.MembershipID}
			if latest.Membership.ClassesPerMonth != nil {
				view.ClassesPerMonth = *latest.Membership.ClassesPerMonth
			}
			if latest.PromotionID != nil {
				pv := &eligibility.PromotionView{}
				if latest.Promotion != nil {
					pv.StartDate = latest.Promotion.StartDate
					pv.EndDate = latest.Promotion.EndDate
					pv.ClassesPerClient = latest.Promotion.ClassesPerClient
				}
				inst, err := promotionInstanceFor(tx, *latest.PromotionID, client.ID)
				if err != nil {
					return err
				}
				pv.InstanceFound = inst != nil && latest.Promotion != nil
				view.Promotion = pv
			}
			in.LatestPayment = view
		}
		if active, ok := eligibility.ActiveMembership(payments, today); ok {
			id := active.MembershipID
			in.ActiveMembershipID = &id
			usage.PlanName = active.Membership.Name
			if active.Membership.ClassesPerMonth != nil {
				usage.Limit = *active.Membership.ClassesPerMonth
			}
		}

		bs, err := monthBookings(tx, client.ID, today)
		if err != nil {
			return err
		}
		in.MonthlyUsage = eligibility.CountValidMonthly(bs, today)
		usage.Used = in.MonthlyUsage

		d := eligibility.Decide(in)
		res.Decision = d
		if !d.Accepted() {
			log.Printf("[booking][deny] client=%d schedule=%d date=%s code=%s",
				client.ID, sched.ID, studiotime.FormatDate(day), d.Code)
			return d.Err()
		}

		taken, err := tupleTaken(tx, client.ID, sched.ID, day, 0)
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.CodeDuplicateBooking, "Ya tienes una reserva para esa clase.")
		}

		b := models.Booking{
			Code:             newBookingCode(),
			ClientID:         client.ID,
			MembershipID:     d.MembershipID,
			ScheduleID:       sched.ID,
			ClassDate:        day,
			Status:           d.Status,
			AttendanceStatus: d.Attendance,
		}
		if err := tx.Omit(clause.Associations).Create(&b).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.New(apperr.CodeDuplicateBooking, "Ya tienes una reserva para esa clase.")
			}
			return err
		}
		if d.ConsumeTrial {
			if err := consumeTrial(tx, client.ID); err != nil {
				return err
			}
			client.TrialUsed = true
		}
		res.Booking = b
		return nil
	})
	if err != nil {
		span.RecordError(err)
		return res, err
	}

	log.Printf("[booking][create] id=%d client=%d outcome=%s", res.Booking.ID, client.ID, res.Decision.Outcome)
	span.SetAttributes(attribute.String("booking.outcome", res.Decision.Outcome.String()))

	switch res.Decision.Notify {
	case eligibility.NotifyIndividualPending:
		events.Publish(gdb, events.IndividualPending(client, res.Booking, sched, res.Decision.Deposit))
	case eligibility.NotifyBookingConfirmation:
		usage.TrialLeft = res.Decision.Outcome == eligibility.Trial
		events.Publish(gdb, events.BookingConfirmation(client, res.Booking, sched, usage))
	}
	return res, nil
}

// consumeTrial flips trial_used false -> true. It never reverts.
func consumeTrial(tx *gorm.DB, clientID uint) error {
	return tx.Model(&models.Client{}).
		Where("id = ? AND trial_used = ?", clientID, false).
		Update("trial_used", true).Error
}

func GetBooking(gdb *gorm.DB, id uint) (models.Booking, error) {
	var b models.Booking
	err := gdb.Preload("Client").Preload("Membership").Preload("Schedule.ClassType").First(&b, id).Error
	return b, notFound(err, "Reserva no encontrada.")
}

func GetBookingByCode(gdb *gorm.DB, code string) (models.Booking, error) {
	var b models.Booking
	err := gdb.Where("code = ?", code).First(&b).Error
	return b, notFound(err, "Código de reserva no encontrado.")
}

func validAttendance(s string) bool {
	switch s {
	case models.AttendancePending, models.AttendanceAttended, models.AttendanceNoShow:
		return true
	}
	return false
}

// MarkAttendance sets the attendance of a booking in any status. Marking
// it attended also uses up the client's trial.
func MarkAttendance(ctx context.Context, gdb *gorm.DB, id uint, status string) (models.Booking, error) {
	if !validAttendance(status) {
		return models.Booking{}, apperr.Invalid("Estado de asistencia inválido.",
			map[string]string{"attendance_status": "debe ser pending, attended o no_show"})
	}
	var b models.Booking
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&b, id).Error; err != nil {
			return notFound(err, "Reserva no encontrada.")
		}
		if err := tx.Model(&b).Update("attendance_status", status).Error; err != nil {
			return err
		}
		b.AttendanceStatus = status
		if status == models.AttendanceAttended {
			return consumeTrial(tx, b.ClientID)
		}
		return nil
	})
	return b, err
}

// CheckInByCode marks the booking behind a QR code as attended.
func CheckInByCode(ctx context.Context, gdb *gorm.DB, code string) (models.Booking, error) {
	b, err := GetBookingByCode(gdb.WithContext(ctx), code)
	if err != nil {
		return b, err
	}
	if b.Status == models.BookingCancelled {
		return b, apperr.New(apperr.CodeBookingCancelled, "La reserva está cancelada.")
	}
	if b.AttendanceStatus == models.AttendanceAttended {
		return b, nil
	}
	return MarkAttendance(ctx, gdb, b.ID, models.AttendanceAttended)
}

// CancelBooking records who cancelled and why. Attendance is left as is.
func CancelBooking(ctx context.Context, gdb *gorm.DB, id uint, reason, by string) (models.Booking, error) {
	if by == "" {
		by = models.CancelledByClient
	}
	switch by {
	case models.CancelledByClient, models.CancelledByInstructor, models.CancelledByAdmin:
	default:
		return models.Booking{}, apperr.Invalid("Tipo de cancelación inválido.",
			map[string]string{"by": "debe ser client, instructor o admin"})
	}

	var b models.Booking
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&b, id).Error; err != nil {
			return notFound(err, "Reserva no encontrada.")
		}
		if b.Status == models.BookingCancelled {
			return nil
		}
		if err := tx.Model(&b).Updates(map[string]any{
			"status":              models.BookingCancelled,
			"cancellation_type":   by,
			"cancellation_reason": reason,
		}).Error; err != nil {
			return err
		}
		b.Status, b.CancellationType, b.CancellationReason = models.BookingCancelled, by, reason
		return nil
	})
	if err == nil {
		log.Printf("[booking][cancel] id=%d by=%s", b.ID, b.CancellationType)
	}
	return b, err
}

// RescheduleBooking moves a booking to another slot and date in place.
func RescheduleBooking(ctx context.Context, gdb *gorm.DB, id, scheduleID uint, classDate time.Time) (models.Booking, error) {
	ctx, span := tracer.Start(ctx, "services.RescheduleBooking")
	defer span.End()

	day := civil(classDate)
	var b models.Booking
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&b, id).Error; err != nil {
			return notFound(err, "Reserva no encontrada.")
		}
		if b.Status == models.BookingCancelled {
			return apperr.New(apperr.CodeBookingCancelled, "No se puede reagendar una reserva cancelada.")
		}
		sched, err := lockSchedule(tx, scheduleID)
		if err != nil {
			return err
		}
		if err := checkWeekday(sched, day); err != nil {
			return err
		}
		if b.ScheduleID == sched.ID && b.ClassDate.Equal(day) {
			return nil
		}

		taken, err := tupleTaken(tx, b.ClientID, sched.ID, day, b.ID)
		if err != nil {
			return err
		}
		if taken {
			return apperr.New(apperr.CodeDuplicateBooking, "Ya tienes una reserva para esa clase.")
		}
		n, err := occupied(tx, sched.ID, day, b.ID)
		if err != nil {
			return err
		}
		if n >= sched.Capacity {
			return apperr.New(apperr.CodeNoCapacity, "No hay cupo disponible.")
		}
		if err := tx.Model(&b).Updates(map[string]any{
			"schedule_id": sched.ID,
			"class_date":  day,
		}).Error; err != nil {
			return err
		}
		b.ScheduleID, b.ClassDate = sched.ID, day
		return nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return b, err
}

// ListClientBookings returns the client's bookings, newest class first.
func ListClientBookings(gdb *gorm.DB, clientID uint) ([]models.Booking, error) {
	var bs []models.Booking
	err := gdb.Preload("Schedule.ClassType").Preload("Membership").
		Where("client_id = ?", clientID).
		Order("class_date DESC, id DESC").
		Find(&bs).Error
	return bs, err
}

// AttendanceHistory lists active bookings, optionally for a single day.
func AttendanceHistory(gdb *gorm.DB, day *time.Time) ([]models.Booking, error) {
	q := gdb.Preload("Client").Preload("Schedule.ClassType").
		Where("status = ?", models.BookingActive)
	if day != nil {
		q = q.Where("class_date = ?", civil(*day))
	}
	var bs []models.Booking
	err := q.Order("class_date DESC, id DESC").Find(&bs).Error
	return bs, err
}
