// Package bot runs the studio's Telegram bot: clients link their account
// by sharing a phone number or sending a code, list their upcoming
// bookings, and fetch a check-in QR.
package bot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/services"
)

const pollTimeout = 50 * time.Second

type Bot struct {
	api *tgbot.Bot
	d   *Dispatcher
}

// New connects to the Bot API with token and registers the message handler.
// A non-empty webhookSecret is checked against incoming webhook requests.
func New(token, webhookSecret string, gdb *gorm.DB) (*Bot, error) {
	httpClient := &http.Client{Timeout: 2 * pollTimeout}
	opts := []tgbot.Option{tgbot.WithHTTPClient(pollTimeout, httpClient)}
	if webhookSecret != "" {
		opts = append(opts, tgbot.WithWebhookSecretToken(webhookSecret))
	}
	api, err := tgbot.New(token, opts...)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	b := &Bot{api: api, d: NewDispatcher(gdb)}
	api.RegisterHandlerMatchFunc(func(u *tgmodels.Update) bool {
		return u.Message != nil
	}, b.onMessage)
	return b, nil
}

// Start long-polls for updates until ctx is done.
func (b *Bot) Start(ctx context.Context) {
	log.Printf("[bot] polling")
	b.api.Start(ctx)
}

func (b *Bot) onMessage(ctx context.Context, _ *tgbot.Bot, u *tgmodels.Update) {
	m := u.Message
	in := Incoming{ChatID: m.Chat.ID, Text: m.Text}
	if m.From != nil {
		in.UserID = m.From.ID
		in.Username = m.From.Username
		in.FirstName = m.From.FirstName
	}
	if m.Contact != nil {
		in.ContactPhone = m.Contact.PhoneNumber
		in.ContactUserID = m.Contact.UserID
	}
	for _, r := range b.d.Handle(in, time.Now()) {
		if err := b.send(ctx, in.ChatID, r); err != nil {
			log.Printf("[bot][send] chat=%d err=%v", in.ChatID, err)
		}
	}
}

func (b *Bot) send(ctx context.Context, chatID int64, r Reply) error {
	var markup tgmodels.ReplyMarkup
	if r.AskContact {
		markup = contactKeyboard()
	}
	var err error
	if r.Photo != nil {
		_, err = b.api.SendPhoto(ctx, &tgbot.SendPhotoParams{
			ChatID:    chatID,
			Photo:     &tgmodels.InputFileUpload{Filename: "qr.png", Data: bytes.NewReader(r.Photo)},
			Caption:   r.Text,
			ParseMode: tgmodels.ParseModeHTML,
		})
	} else {
		_, err = b.api.SendMessage(ctx, &tgbot.SendMessageParams{
			ChatID:      chatID,
			Text:        r.Text,
			ParseMode:   tgmodels.ParseModeHTML,
			ReplyMarkup: markup,
		})
	}
	if errors.Is(err, tgbot.ErrorForbidden) {
		if merr := services.MarkUndeliverable(b.d.db, chatID); merr != nil {
			log.Printf("[bot][undeliverable] chat=%d err=%v", chatID, merr)
		}
	}
	return err
}

// SendText delivers an HTML message to chatID. A chat that blocked the bot
// is marked undeliverable.
func (b *Bot) SendText(ctx context.Context, chatID int64, text string) error {
	return b.send(ctx, chatID, Reply{Text: text})
}

func contactKeyboard() *tgmodels.ReplyKeyboardMarkup {
	return &tgmodels.ReplyKeyboardMarkup{
		Keyboard: [][]tgmodels.KeyboardButton{
			{{Text: "Compartir mi teléfono", RequestContact: true}},
		},
		ResizeKeyboard:  true,
		OneTimeKeyboard: true,
	}
}

// UseWebhook registers url with Telegram. Updates then arrive through
// WebhookHandler and are processed by StartWebhook.
func (b *Bot) UseWebhook(ctx context.Context, url, secret string) error {
	ok, err := b.api.SetWebhook(ctx, &tgbot.SetWebhookParams{URL: url, SecretToken: secret})
	if err != nil {
		return fmt.Errorf("set webhook: %w", err)
	}
	if !ok {
		return errors.New("set webhook: rejected")
	}
	return nil
}

func (b *Bot) WebhookHandler() http.Handler { return b.api.WebhookHandler() }

// StartWebhook processes webhook updates until ctx is done.
func (b *Bot) StartWebhook(ctx context.Context) {
	log.Printf("[bot] webhook mode")
	b.api.StartWebhook(ctx)
}
