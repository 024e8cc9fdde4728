// Package eligibility decides whether a client may book a class slot.
//
// Decide is a pure function over a snapshot assembled by the caller, so
// the ordered rules can be exercised without a database or a clock.
package eligibility

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
)

type Outcome int

const (
	Rejected Outcome = iota
	IndividualPending
	Trial
	Membership
)

func (o Outcome) String() string {
	switch o {
	case IndividualPending:
		return "individual_pending"
	case Trial:
		return "trial"
	case Membership:
		return "membership"
	default:
		return "rejected"
	}
}

// Notification kinds emitted for accepted bookings.
const (
	NotifyBookingConfirmation = "booking_confirmation"
	NotifyIndividualPending   = "individual_pending"
)

// DepositRate is the share of the individual plan price due up front.
var DepositRate = decimal.NewFromFloat(0.40)

// Policy toggles the two behaviors product has not settled.
type Policy struct {
	// PreferMembershipOverTrial lets a client with an active membership
	// book against it instead of burning the free trial.
	PreferMembershipOverTrial bool
	// ConsumeTrialOnMembershipCheckin marks the trial used when staff check
	// in a membership booking for a client who never used it.
	ConsumeTrialOnMembershipCheckin bool
}

func DefaultPolicy() Policy {
	return Policy{ConsumeTrialOnMembershipCheckin: true}
}

// PromotionView is the latest payment's promotion as seen by the client.
type PromotionView struct {
	InstanceFound    bool // client belongs to an instance of the promotion
	StartDate        time.Time
	EndDate          time.Time
	ClassesPerClient int
}

// PaymentView is the client's most recent payment.
type PaymentView struct {
	MembershipID    uint
	ClassesPerMonth int // 0 means unlimited
	Promotion       *PromotionView
}

type Input struct {
	Capacity int
	Occupied int // non-cancelled bookings for the slot and date

	RequestedMembershipID *uint
	IndividualPlanID      uint
	IndividualPlanPrice   decimal.Decimal

	TrialUsed           bool
	RequestedAttendance string
	IsStaff             bool

	LatestPayment      *PaymentView
	MonthlyUsage       int
	ActiveMembershipID *uint

	Today  time.Time
	Policy Policy
}

type Decision struct {
	Outcome Outcome
	Code    apperr.Code
	Reason  string

	Status       string
	Attendance   string
	MembershipID *uint
	ConsumeTrial bool
	Notify       string

	Price   decimal.Decimal
	Deposit decimal.Decimal
	Message string
}

func (d Decision) Accepted() bool { return d.Outcome != Rejected }

// Err returns the rejection as an *apperr.Error, or nil when accepted.
func (d Decision) Err() error {
	if d.Accepted() {
		return nil
	}
	return apperr.New(d.Code, d.Reason)
}

func reject(code apperr.Code, reason string) Decision {
	return Decision{Outcome: Rejected, Code: code, Reason: reason}
}

// Decide evaluates the booking rules in order; the first match wins.
func Decide(in Input) Decision {
	// 1. capacity, regardless of client state
	if in.Occupied >= in.Capacity {
		return reject(apperr.CodeNoCapacity, "No hay cupo disponible para este horario.")
	}

	attendance := models.AttendancePending
	if in.IsStaff && in.RequestedAttendance == models.AttendanceAttended {
		attendance = models.AttendanceAttended
	}

	// 2. individual class: only capacity applies
	if in.RequestedMembershipID != nil && *in.RequestedMembershipID == in.IndividualPlanID {
		plan := in.IndividualPlanID
		deposit := in.IndividualPlanPrice.Mul(DepositRate).Round(2)
		return Decision{
			Outcome:      IndividualPending,
			Status:       models.BookingPending,
			Attendance:   attendance,
			MembershipID: &plan,
			Notify:       NotifyIndividualPending,
			Price:        in.IndividualPlanPrice,
			Deposit:      deposit,
			Message: fmt.Sprintf("Tu reserva para la clase individual está pendiente de confirmación. "+
				"Realiza el depósito del 40%% (aprox. Q%s) para confirmar tu clase.", deposit.StringFixed(2)),
		}
	}

	// 3. free trial
	useTrial := !in.TrialUsed
	if in.Policy.PreferMembershipOverTrial && in.ActiveMembershipID != nil {
		useTrial = false
	}
	if useTrial {
		return Decision{
			Outcome:      Trial,
			Status:       models.BookingActive,
			Attendance:   attendance,
			ConsumeTrial: attendance == models.AttendanceAttended,
			Notify:       NotifyBookingConfirmation,
			Price:        decimal.Zero,
			Deposit:      decimal.Zero,
		}
	}

	// 4. quota from the latest payment
	if p := in.LatestPayment; p != nil {
		if promo := p.Promotion; promo != nil {
			if !promo.InstanceFound {
				return reject(apperr.CodePromotionInvalid, "Esta promoción no está asociada correctamente a tu cuenta.")
			}
			if in.Today.Before(promo.StartDate) || in.Today.After(promo.EndDate) {
				return reject(apperr.CodePromotionExpired, "La promoción que adquiriste ya no está activa.")
			}
			if in.MonthlyUsage >= promo.ClassesPerClient {
				return reject(apperr.CodeQuotaExceeded,
					fmt.Sprintf("Has alcanzado tu límite de clases (%d) para esta promoción.", promo.ClassesPerClient))
			}
		} else if p.ClassesPerMonth > 0 && in.MonthlyUsage >= p.ClassesPerMonth {
			return reject(apperr.CodeQuotaExceeded, "Has alcanzado tu límite de clases este mes.")
		}
	}

	// 5. default acceptance with whatever membership is active
	return Decision{
		Outcome:      Membership,
		Status:       models.BookingActive,
		Attendance:   attendance,
		MembershipID: in.ActiveMembershipID,
		ConsumeTrial: attendance == models.AttendanceAttended && !in.TrialUsed && in.Policy.ConsumeTrialOnMembershipCheckin,
		Notify:       NotifyBookingConfirmation,
		Price:        decimal.Zero,
		Deposit:      decimal.Zero,
	}
}
