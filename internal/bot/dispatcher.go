package bot

import (
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"time"

	"github.com/skip2/go-qrcode"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/services"
	"github.com/vilepilates/studio/internal/studiotime"
)

// Incoming is the part of a Telegram message the bot reacts to.
type Incoming struct {
	UserID        int64
	ChatID        int64
	Username      string
	FirstName     string
	Text          string
	ContactPhone  string
	ContactUserID int64
}

// Reply is one outgoing message. A non-nil Photo is sent as a PNG with
// Text as caption.
type Reply struct {
	Text       string
	AskContact bool
	Photo      []byte
}

type Dispatcher struct {
	db *gorm.DB
}

func NewDispatcher(gdb *gorm.DB) *Dispatcher { return &Dispatcher{db: gdb} }

func (d *Dispatcher) identity(in Incoming) services.TelegramIdentity {
	return services.TelegramIdentity{
		UserID:    in.UserID,
		ChatID:    in.ChatID,
		Username:  in.Username,
		FirstName: in.FirstName,
	}
}

// Handle turns one message into the replies to send back.
func (d *Dispatcher) Handle(in Incoming, now time.Time) []Reply {
	tu, err := services.UpsertTelegramUser(d.db, d.identity(in))
	if err != nil {
		log.Printf("[bot][upsert] user=%d err=%v", in.UserID, err)
		return []Reply{{Text: "Ocurrió un error. Intenta de nuevo más tarde."}}
	}

	// only the sender's own contact may link the account
	if in.ContactPhone != "" && in.ContactUserID == in.UserID {
		return d.linkPhone(in, now)
	}

	text := strings.TrimSpace(in.Text)
	cmd, arg := splitCommand(text)
	switch cmd {
	case "/start":
		if tu.ClientID != nil {
			return []Reply{{Text: helpText}}
		}
		return []Reply{{Text: "¡Hola! Toca el botón para vincular tu cuenta compartiendo tu número de teléfono.", AskContact: true}}
	case "/link", "/vincular":
		return d.linkCode(in, arg, now)
	case "/reservas", "/my":
		return d.upcoming(tu, now)
	case "/qr":
		return d.qr(tu, arg)
	default:
		return []Reply{{Text: helpText}}
	}
}

const helpText = "Comandos:\n/reservas ver tus próximas clases\n/qr CÓDIGO mostrar el QR de una reserva\n/link CÓDIGO vincular tu cuenta"

func splitCommand(text string) (string, string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, arg, _ := strings.Cut(text, " ")
	// "/link@VilePilatesBot" in groups
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.Trim(arg, " :")
}

func (d *Dispatcher) linkPhone(in Incoming, now time.Time) []Reply {
	c, err := services.LinkByPhone(d.db, d.identity(in), in.ContactPhone, now)
	if err != nil {
		if apperr.IsCode(err, apperr.CodeNotFound) {
			return []Reply{{Text: "No encontramos ese teléfono. Pide un código en recepción y envía /link CÓDIGO."}}
		}
		log.Printf("[bot][link-phone] user=%d err=%v", in.UserID, err)
		return []Reply{{Text: "Ocurrió un error. Intenta de nuevo más tarde."}}
	}
	return []Reply{{Text: fmt.Sprintf("✅ Cuenta vinculada a <b>%s</b>.", html.EscapeString(c.FullName()))}}
}

func (d *Dispatcher) linkCode(in Incoming, code string, now time.Time) []Reply {
	if code == "" {
		return []Reply{{Text: "Usa: /link 123456\nPide tu código en recepción."}}
	}
	c, err := services.LinkByCode(d.db, d.identity(in), code, now)
	if err != nil {
		var ae *apperr.Error
		if errors.As(err, &ae) && ae.Code != apperr.CodeInternal {
			return []Reply{{Text: ae.Message}}
		}
		log.Printf("[bot][link-code] user=%d err=%v", in.UserID, err)
		return []Reply{{Text: "Ocurrió un error. Intenta de nuevo más tarde."}}
	}
	return []Reply{{Text: fmt.Sprintf("✅ Cuenta vinculada a <b>%s</b>.", html.EscapeString(c.FullName()))}}
}

var notLinked = Reply{Text: "Tu cuenta aún no está vinculada. Comparte tu teléfono o envía /link CÓDIGO.", AskContact: true}

func (d *Dispatcher) upcoming(tu models.TelegramUser, now time.Time) []Reply {
	if tu.ClientID == nil {
		return []Reply{notLinked}
	}
	all, err := services.ListClientBookings(d.db, *tu.ClientID)
	if err != nil {
		log.Printf("[bot][reservas] client=%d err=%v", *tu.ClientID, err)
		return []Reply{{Text: "Ocurrió un error. Intenta de nuevo más tarde."}}
	}
	today := studiotime.Today(now)
	var b strings.Builder
	n := 0
	// newest first from the store; list soonest first
	for i := len(all) - 1; i >= 0; i-- {
		bk := all[i]
		if bk.Status == models.BookingCancelled || bk.ClassDate.Before(today) {
			continue
		}
		if n == 0 {
			b.WriteString("<b>Tus próximas clases</b>\n")
		}
		n++
		class := "Clase"
		if bk.Schedule.ClassType != nil {
			class = bk.Schedule.ClassType.Name
		}
		fmt.Fprintf(&b, "• %s %s · %s · <code>%s</code>\n",
			studiotime.FormatDate(bk.ClassDate), bk.Schedule.TimeSlot, html.EscapeString(class), bk.Code)
	}
	if n == 0 {
		return []Reply{{Text: "No tienes clases próximas."}}
	}
	b.WriteString("\nEnvía /qr CÓDIGO para mostrar el QR en recepción.")
	return []Reply{{Text: b.String()}}
}

func (d *Dispatcher) qr(tu models.TelegramUser, code string) []Reply {
	if tu.ClientID == nil {
		return []Reply{notLinked}
	}
	if code == "" {
		return []Reply{{Text: "Usa: /qr CÓDIGO"}}
	}
	bk, err := services.GetBookingByCode(d.db, strings.ToUpper(code))
	// other clients' codes look the same as unknown ones
	if err != nil || bk.ClientID != *tu.ClientID {
		return []Reply{{Text: "Reserva no encontrada."}}
	}
	if bk.Status == models.BookingCancelled {
		return []Reply{{Text: "Esa reserva fue cancelada."}}
	}
	png, err := qrcode.Encode(bk.Code, qrcode.Medium, 256)
	if err != nil {
		log.Printf("[bot][qr] booking=%d err=%v", bk.ID, err)
		return []Reply{{Text: "No se pudo generar el QR."}}
	}
	return []Reply{{Text: fmt.Sprintf("Reserva <code>%s</code>", bk.Code), Photo: png}}
}
