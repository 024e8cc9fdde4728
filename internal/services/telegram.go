package services

import (
	"crypto/rand"
	"errors"
	"fmt"
	"log"
	"time"

	"gorm.io/gorm"

	"github.com/vilepilates/studio/internal/apperr"
	"github.com/vilepilates/studio/internal/models"
)

const linkCodeTTL = 10 * time.Minute

// genCode6 returns a six-digit code from crypto/rand.
func genCode6() string {
	var b [3]byte
	_, _ = rand.Read(b[:])
	n := (int(b[0])<<16 | int(b[1])<<8 | int(b[2])) % 1000000
	return fmt.Sprintf("%06d", n)
}

// IssueLinkCode creates a short-lived code the client sends to the bot with
// /link to receive notifications on Telegram.
func IssueLinkCode(gdb *gorm.DB, clientID uint, now time.Time) (models.LinkCode, error) {
	var c models.Client
	if err := gdb.First(&c, clientID).Error; err != nil {
		return models.LinkCode{}, notFound(err, "Cliente no encontrado.")
	}
	// housekeeping: old codes for this client
	_ = gdb.Where("client_id = ? AND (used_at IS NOT NULL OR expires_at < ?)", c.ID, now.Add(-24*time.Hour)).
		Delete(&models.LinkCode{}).Error

	for i := 0; i < 10; i++ {
		lc := models.LinkCode{Code: genCode6(), ClientID: c.ID, ExpiresAt: now.Add(linkCodeTTL)}
		err := gdb.Create(&lc).Error
		if err == nil {
			return lc, nil
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) {
			return models.LinkCode{}, err
		}
		log.Printf("[telegram][linkcode] collision, retrying")
	}
	return models.LinkCode{}, apperr.New(apperr.CodeInternal, "No se pudo generar el código, intenta de nuevo.")
}

// TelegramIdentity is the sender of a bot message.
type TelegramIdentity struct {
	UserID    int64
	ChatID    int64
	Username  string
	FirstName string
}

// UpsertTelegramUser records the sender so later links can reuse the row.
func UpsertTelegramUser(gdb *gorm.DB, id TelegramIdentity) (models.TelegramUser, error) {
	var tu models.TelegramUser
	err := gdb.Where("telegram_user_id = ?", id.UserID).
		Attrs(models.TelegramUser{ChatID: id.ChatID, Username: id.Username, FirstName: id.FirstName, Deliverable: true}).
		FirstOrCreate(&tu, models.TelegramUser{TelegramUserID: id.UserID}).Error
	if err != nil {
		return tu, err
	}
	if tu.ChatID != id.ChatID {
		tu.ChatID = id.ChatID
		err = gdb.Model(&tu).Update("chat_id", id.ChatID).Error
	}
	return tu, err
}

func linkClient(tx *gorm.DB, tu *models.TelegramUser, clientID uint, now time.Time) error {
	tu.ClientID = &clientID
	tu.LinkedAt = &now
	tu.Deliverable = true
	return tx.Model(&models.TelegramUser{}).Where("id = ?", tu.ID).Updates(map[string]any{
		"client_id":   clientID,
		"linked_at":   now,
		"deliverable": true,
	}).Error
}

// LinkByCode consumes a link code and attaches the Telegram user to its
// client.
func LinkByCode(gdb *gorm.DB, id TelegramIdentity, code string, now time.Time) (models.Client, error) {
	var c models.Client
	err := gdb.Transaction(func(tx *gorm.DB) error {
		var lc models.LinkCode
		if err := tx.Where("code = ? AND used_at IS NULL AND expires_at > ?", digitsOnly(code), now).
			First(&lc).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.Invalid("Código inválido o expirado.", nil)
			}
			return err
		}
		if err := tx.Model(&lc).Update("used_at", now).Error; err != nil {
			return err
		}
		if err := tx.First(&c, lc.ClientID).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}
		tu, err := UpsertTelegramUser(tx, id)
		if err != nil {
			return err
		}
		return linkClient(tx, &tu, c.ID, now)
	})
	return c, err
}

// LinkByPhone attaches the Telegram user to the client owning a shared
// contact's phone number.
func LinkByPhone(gdb *gorm.DB, id TelegramIdentity, phone string, now time.Time) (models.Client, error) {
	c, err := FindClientByPhone(gdb, phone)
	if err != nil {
		return models.Client{}, apperr.NotFound("Teléfono no registrado.")
	}
	err = gdb.Transaction(func(tx *gorm.DB) error {
		tu, err := UpsertTelegramUser(tx, id)
		if err != nil {
			return err
		}
		return linkClient(tx, &tu, c.ID, now)
	})
	return *c, err
}

// TelegramChat returns the chat to reach the client on, if one is linked.
func TelegramChat(gdb *gorm.DB, clientID uint) (int64, bool) {
	var tu models.TelegramUser
	err := gdb.Where("client_id = ? AND deliverable = ?", clientID, true).
		Order("linked_at DESC").First(&tu).Error
	if err != nil {
		return 0, false
	}
	return tu.ChatID, true
}

// MarkUndeliverable stops sending to a chat that blocked the bot.
func MarkUndeliverable(gdb *gorm.DB, chatID int64) error {
	return gdb.Model(&models.TelegramUser{}).Where("chat_id = ?", chatID).Update("deliverable", false).Error
}
