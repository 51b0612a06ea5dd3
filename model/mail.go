package model

import "time"

type MailType string

const (
	MailPlayer MailType = "player"
	MailSystem MailType = "system"
	MailGuild  MailType = "guild"
	MailReward MailType = "reward"
)

// SystemSender is the display name used when SenderID is nil.
const SystemSender = "System"

// Mail is a one-way message to a character, optionally carrying gold, gems
// and items held in escrow until collected.
type Mail struct {
	ID            int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	SenderID      *int64     `json:"sender_id"`
	SenderName    string     `gorm:"size:32;not null" json:"sender_name"`
	RecipientID   int64      `gorm:"index:idx_mail_recipient;not null" json:"recipient_id"`
	RecipientName string     `gorm:"size:32;not null" json:"recipient_name"`
	Subject       string     `gorm:"size:100;not null" json:"subject"`
	Message       string     `gorm:"type:text" json:"message"`
	Gold          int64      `gorm:"not null;default:0" json:"gold"`
	Gems          int64      `gorm:"not null;default:0" json:"gems"`
	IsRead        bool       `gorm:"not null;default:false" json:"is_read"`
	IsCollected   bool       `gorm:"not null;default:false" json:"is_collected"`
	Type          MailType   `gorm:"size:16;not null" json:"type"`
	CreatedAt     time.Time  `gorm:"index:idx_mail_created;autoCreateTime" json:"created_at"`
	ExpiresAt     time.Time  `gorm:"index:idx_mail_expires;not null" json:"expires_at"`
	Items         []MailItem `gorm:"foreignKey:MailID" json:"items"`
}

// HasAttachments reports whether the mail carries gold, gems or items.
// Items must be preloaded.
func (m *Mail) HasAttachments() bool {
	return m.Gold > 0 || m.Gems > 0 || len(m.Items) > 0
}

// Pending reports whether attachments are still waiting to be collected.
func (m *Mail) Pending() bool { return m.HasAttachments() && !m.IsCollected }

// MailItem is an item held by a mail until collected.
type MailItem struct {
	ID     int64 `gorm:"primaryKey;autoIncrement" json:"id"`
	MailID int64 `gorm:"index:idx_mailitem_mail;not null" json:"mail_id"`
	Item   `gorm:"embedded"`
}
