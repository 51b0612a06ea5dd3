package model

import "time"

// PremiumTier is an account's paid status. Tiers are ordered.
type PremiumTier string

const (
	TierNone    PremiumTier = "none"
	TierBronze  PremiumTier = "bronze"
	TierSilver  PremiumTier = "silver"
	TierGold    PremiumTier = "gold"
	TierDiamond PremiumTier = "diamond"
)

func (t PremiumTier) Rank() int {
	switch t {
	case TierBronze:
		return 1
	case TierSilver:
		return 2
	case TierGold:
		return 3
	case TierDiamond:
		return 4
	}
	return 0
}

func (t PremiumTier) Valid() bool { return t == TierNone || t.Rank() > 0 }

// PremiumPurchase records one package bought with gems.
type PremiumPurchase struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64       `gorm:"index:idx_premium_purchase_account;not null" json:"account_id"`
	Tier      PremiumTier `gorm:"size:16;not null" json:"tier"`
	Days      int         `gorm:"not null" json:"days"`
	GemCost   int64       `gorm:"not null" json:"gem_cost"`
	ExpiresAt time.Time   `gorm:"not null" json:"expires_at"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}

// PremiumDailyClaim marks the daily gem stipend as taken for one day.
type PremiumDailyClaim struct {
	ID        int64       `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID int64       `gorm:"uniqueIndex:idx_premium_claim;not null" json:"account_id"`
	Date      string      `gorm:"uniqueIndex:idx_premium_claim;size:10;not null" json:"date"`
	Tier      PremiumTier `gorm:"size:16;not null" json:"tier"`
	Gems      int64       `gorm:"not null" json:"gems"`
	CreatedAt time.Time   `gorm:"autoCreateTime" json:"created_at"`
}
