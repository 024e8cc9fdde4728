// Package events records outbound client notifications in the outbox.
//
// Services call Publish after their transaction has committed; the notify
// dispatcher delivers the rows later, so a mail or Telegram outage never
// affects the booking or payment that triggered it.
package events

import (
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/models"
)

// Notification kinds.
const (
	KindBookingConfirmation      = "booking_confirmation"
	KindIndividualPending        = "individual_pending"
	KindSubscriptionConfirmation = "subscription_confirmation"
	KindMembershipCancellation   = "membership_cancellation"
	KindRenewalReminder          = "renewal_reminder"
	KindSubscriptionExpired      = "subscription_expired"
)

type Message struct {
	Kind     string
	ClientID uint
	Subject  string
	Body     string
}

// OnPublish is called after a message lands in the outbox.
// notify sets it to wake the dispatcher early.
var OnPublish func(msg models.OutboxMessage)

// Publish writes m to the outbox. Failures are logged and never returned:
// the operation that produced the event has already committed.
func Publish(gdb *gorm.DB, m Message) {
	row := models.OutboxMessage{
		ID:       uuid.NewString(),
		Kind:     m.Kind,
		ClientID: m.ClientID,
		Subject:  m.Subject,
		Body:     m.Body,
		Status:   models.OutboxPending,
	}
	if err := gdb.Create(&row).Error; err != nil {
		log.Printf("[events][publish] kind=%s client=%d err=%v", m.Kind, m.ClientID, err)
		return
	}
	if OnPublish != nil {
		OnPublish(row)
	}
}
