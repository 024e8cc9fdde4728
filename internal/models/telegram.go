package models

import "time"

type TelegramUser struct {
	ID             uint  `gorm:"primarykey"`
	TelegramUserID int64 `gorm:"uniqueIndex"`
	ChatID         int64
	Username       string
	FirstName      string
	ClientID       *uint `gorm:"index"`
	LinkedAt       *time.Time
	Deliverable    bool `gorm:"default:true"`
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// LinkCode is a short-lived code a client sends to the bot with /link.
type LinkCode struct {
	ID        uint      `gorm:"primarykey"`
	Code      string    `gorm:"size:12;uniqueIndex"`
	ClientID  uint      `gorm:"index"`
	ExpiresAt time.Time `gorm:"index"`
	UsedAt    *time.Time
	CreatedAt time.Time
	UpdatedAt time.Time
}
