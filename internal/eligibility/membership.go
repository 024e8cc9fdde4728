package eligibility

import (
	"time"

	"github.com/vilepilates/studio/internal/models"
)

// LatestPayment returns the payment with the greatest DatePaid.
func LatestPayment(payments []models.Payment) (models.Payment, bool) {
	if len(payments) == 0 {
		return models.Payment{}, false
	}
	latest := payments[0]
	for _, p := range payments[1:] {
		if p.DatePaid.After(latest.DatePaid) || (p.DatePaid.Equal(latest.DatePaid) && p.ID > latest.ID) {
			latest = p
		}
	}
	return latest, true
}

// ActiveMembership is the membership on the client's most recent payment,
// provided that payment is still valid on today. A newer expired payment
// hides an older valid one.
func ActiveMembership(payments []models.Payment, today time.Time) (models.Payment, bool) {
	latest, ok := LatestPayment(payments)
	if !ok || latest.ValidUntil.Before(today) {
		return models.Payment{}, false
	}
	return latest, true
}

// CountValidMonthly counts bookings in ref's calendar month that used up a
// class: attended ones and cancelled ones.
func CountValidMonthly(bookings []models.Booking, ref time.Time) int {
	n := 0
	for _, b := range bookings {
		if b.ClassDate.Year() != ref.Year() || b.ClassDate.Month() != ref.Month() {
			continue
		}
		if b.AttendanceStatus == models.AttendanceAttended || b.Status == models.BookingCancelled {
			n++
		}
	}
	return n
}
