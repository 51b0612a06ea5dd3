package model

import "time"

// Account is a login identity. Gems and premium status are account-wide;
// gold lives on each character.
type Account struct {
	ID           int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	Username     string      `gorm:"uniqueIndex;size:32;not null" json:"username"`
	Email        string      `gorm:"uniqueIndex;size:128;not null" json:"email"`
	PasswordHash string      `gorm:"size:64;not null" json:"-"`
	Gems         int64       `gorm:"not null;default:0" json:"gems"`
	VIPLevel     int         `gorm:"not null;default:0" json:"vip_level"`
	PremiumTier  PremiumTier `gorm:"size:16;not null" json:"premium_tier"`
	PremiumUntil *time.Time  `json:"premium_until"`
	Banned       bool        `gorm:"not null;default:false" json:"banned"`
	BanReason    string      `gorm:"size:255" json:"ban_reason,omitempty"`
	Verified     bool        `gorm:"not null;default:false" json:"verified"`
	Version      int64       `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time   `gorm:"autoCreateTime" json:"created_at"`
	LastLoginAt  *time.Time  `json:"last_login_at"`
	LastLoginIP  string      `gorm:"size:45" json:"-"`
}

// ActiveTier returns the premium tier in force at now.
func (a *Account) ActiveTier(now time.Time) PremiumTier {
	if a.PremiumTier == "" || a.PremiumTier == TierNone || a.PremiumUntil == nil || !a.PremiumUntil.After(now) {
		return TierNone
	}
	return a.PremiumTier
}
