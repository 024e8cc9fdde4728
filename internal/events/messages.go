package events

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vilepilates/studio/internal/models"
)

const studioName = "Vilé Pilates Studio"

var (
	weekdaysES = [...]string{"domingo", "lunes", "martes", "miércoles", "jueves", "viernes", "sábado"}
	monthsES   = [...]string{"enero", "febrero", "marzo", "abril", "mayo", "junio", "julio",
		"agosto", "septiembre", "octubre", "noviembre", "diciembre"}
)

// LongDate formats a civil date as "15 de junio de 2025".
func LongDate(d time.Time) string {
	return fmt.Sprintf("%d de %s de %d", d.Day(), monthsES[d.Month()-1], d.Year())
}

// FullDate formats a civil date as "domingo, 15 de junio de 2025".
func FullDate(d time.Time) string {
	return weekdaysES[d.Weekday()] + ", " + LongDate(d)
}

func classLabel(s models.Schedule) string {
	if s.ClassType != nil && s.ClassType.Name != "" {
		return s.ClassType.Name
	}
	return "Pilates"
}

// PlanUsage is the remaining-classes line added to a confirmation.
type PlanUsage struct {
	PlanName  string
	Limit     int
	Used      int
	TrialLeft bool
}

func BookingConfirmation(c models.Client, b models.Booking, s models.Schedule, usage PlanUsage) Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Hola %s,\n\n", c.FullName())
	fmt.Fprintf(&sb, "Tu clase de %s quedó agendada para el %s a las %s.\n", classLabel(s), FullDate(b.ClassDate), s.TimeSlot)
	fmt.Fprintf(&sb, "Código de reserva: %s\n", b.Code)
	switch {
	case usage.TrialLeft:
		sb.WriteString("\nEsta es tu clase gratuita de prueba.\n")
	case usage.PlanName != "" && usage.Limit > 0:
		fmt.Fprintf(&sb, "\nActualmente tienes el plan %s. Te quedan %d clase(s) disponibles este mes.\n",
			usage.PlanName, usage.Limit-usage.Used)
	case usage.PlanName == "":
		sb.WriteString("\nDebes activar tu plan para seguir asistiendo a tus clases.\n")
	}
	return Message{
		Kind:     KindBookingConfirmation,
		ClientID: c.ID,
		Subject:  "Confirmación de tu clase en " + studioName,
		Body:     sb.String(),
	}
}

func IndividualPending(c models.Client, b models.Booking, s models.Schedule, deposit decimal.Decimal) Message {
	body := fmt.Sprintf("Hola %s,\n\nRecibimos tu solicitud de clase individual para el %s a las %s.\n"+
		"Tu reserva está pendiente de pago. Realiza el depósito del 40%% (Q%s) para confirmarla.\n"+
		"Código de reserva: %s\n",
		c.FullName(), FullDate(b.ClassDate), s.TimeSlot, deposit.StringFixed(2), b.Code)
	return Message{
		Kind:     KindIndividualPending,
		ClientID: c.ID,
		Subject:  "Tu reserva está pendiente de pago - Realiza el depósito del 40%",
		Body:     body,
	}
}

func SubscriptionConfirmation(c models.Client, m models.Membership, validUntil time.Time) Message {
	if m.ClassesPerMonth != nil && *m.ClassesPerMonth == 0 {
		return Message{
			Kind:     KindSubscriptionConfirmation,
			ClientID: c.ID,
			Subject:  "¡Disfruta tu clase individual en Vilé!",
			Body: fmt.Sprintf("Hola %s,\n\nHas adquirido una clase individual del plan %s.\n¡Esperamos que la disfrutes al máximo!\n",
				c.FullName(), m.Name),
		}
	}
	return Message{
		Kind:     KindSubscriptionConfirmation,
		ClientID: c.ID,
		Subject:  "¡Gracias por suscribirte a " + studioName + "!",
		Body: fmt.Sprintf("Hola %s,\n\nGracias por suscribirte al plan %s.\nTu suscripción es válida hasta el %s.\n",
			c.FullName(), m.Name, LongDate(validUntil)),
	}
}

func MembershipCancellation(c models.Client, planName string) Message {
	if planName == "" {
		planName = "Sin membresía registrada"
	}
	return Message{
		Kind:     KindMembershipCancellation,
		ClientID: c.ID,
		Subject:  "Cancelación de tu membresía en Vilé Pilates",
		Body: fmt.Sprintf("Hola %s,\n\nQueremos informarte que tu membresía %s ha sido cancelada.\n"+
			"Si consideras que esto fue un error o deseas reactivarla, contáctanos.\n", c.FullName(), planName),
	}
}

func RenewalReminder(c models.Client, planName string, validUntil time.Time, graceDays int) Message {
	return Message{
		Kind:     KindRenewalReminder,
		ClientID: c.ID,
		Subject:  "Tu membresía está por vencer - puedes renovar con el mismo precio",
		Body: fmt.Sprintf("Hola %s,\n\nTu plan %s vencerá el %s.\n"+
			"Al renovar dentro de los %d días siguientes, podrás mantener el mismo precio actual.\n",
			c.FullName(), planName, LongDate(validUntil), graceDays),
	}
}

func SubscriptionExpired(c models.Client, planName string) Message {
	return Message{
		Kind:     KindSubscriptionExpired,
		ClientID: c.ID,
		Subject:  "Tu membresía ha vencido - ¡Te esperamos de vuelta!",
		Body: fmt.Sprintf("Hola %s,\n\nTu plan %s ha vencido recientemente.\n"+
			"Te invitamos a renovar tu membresía para seguir disfrutando de tus clases en %s.\n",
			c.FullName(), planName, studioName),
	}
}
