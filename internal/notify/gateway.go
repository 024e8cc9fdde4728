// Package notify delivers outbox messages to clients over Telegram, email
// or, when neither is available, the server log.
package notify

import (
	"context"
	"fmt"
	"html"
	"log"
	"mime"
	"net/smtp"
	"strings"

	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/config"
	"github.com/vilepilates/studio/internal/models"
	"github.com/vilepilates/studio/internal/services"
)

const (
	ChannelTelegram = "telegram"
	ChannelEmail    = "email"
	ChannelLog      = "log"
)

// TelegramSender is satisfied by the studio bot.
type TelegramSender interface {
	SendText(ctx context.Context, chatID int64, text string) error
}

type sendMailFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

type Gateway struct {
	db       *gorm.DB
	telegram TelegramSender
	smtp     config.SMTP
	sendMail sendMailFunc
}

// NewGateway wires the channels. tg may be nil when no bot token is set.
func NewGateway(gdb *gorm.DB, tg TelegramSender, smtpCfg config.SMTP) *Gateway {
	return &Gateway{db: gdb, telegram: tg, smtp: smtpCfg, sendMail: smtp.SendMail}
}

func (g *Gateway) smtpEnabled() bool {
	return g.smtp.Host != "" && g.smtp.Port != "" && g.smtp.User != "" && g.smtp.Pass != ""
}

// Deliver sends m on the first channel that can reach the client and reports
// which one it used.
func (g *Gateway) Deliver(ctx context.Context, m models.OutboxMessage) (string, error) {
	var c models.Client
	if err := g.db.WithContext(ctx).First(&c, m.ClientID).Error; err != nil {
		return "", fmt.Errorf("load client %d: %w", m.ClientID, err)
	}

	if g.telegram != nil {
		if chat, ok := services.TelegramChat(g.db.WithContext(ctx), c.ID); ok {
			text := "<b>" + html.EscapeString(m.Subject) + "</b>\n\n" + html.EscapeString(m.Body)
			if err := g.telegram.SendText(ctx, chat, text); err != nil {
				return ChannelTelegram, err
			}
			return ChannelTelegram, nil
		}
	}

	if g.smtpEnabled() && c.Email != "" {
		if err := g.email(c.Email, m.Subject, m.Body); err != nil {
			return ChannelEmail, err
		}
		return ChannelEmail, nil
	}

	log.Printf("[notify][log] kind=%s client=%d subject=%q", m.Kind, m.ClientID, m.Subject)
	return ChannelLog, nil
}

func (g *Gateway) email(to, subject, body string) error {
	from := g.smtp.From
	if from == "" {
		from = g.smtp.User
	}
	addr := fmt.Sprintf("%s:%s", g.smtp.Host, g.smtp.Port)
	auth := smtp.PlainAuth("", g.smtp.User, g.smtp.Pass, g.smtp.Host)

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", mime.QEncoding.Encode("utf-8", subject))
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/plain; charset=utf-8\r\n\r\n")
	b.WriteString(strings.ReplaceAll(body, "\n", "\r\n"))
	return g.sendMail(addr, auth, from, []string{to}, []byte(b.String()))
}
