package model

import "time"

type TradeStatus string

const (
	TradePending   TradeStatus = "PENDING"
	TradeConfirmed TradeStatus = "CONFIRMED"
	TradeCompleted TradeStatus = "COMPLETED"
	TradeCancelled TradeStatus = "CANCELLED"
)

// Open reports whether the trade can still change state.
func (s TradeStatus) Open() bool { return s == TradePending || s == TradeConfirmed }

// Trade is a two-sided exchange between an initiator and a target character.
type Trade struct {
	ID                 int64        `gorm:"primaryKey;autoIncrement" json:"id"`
	InitiatorID        int64        `gorm:"index:idx_trade_initiator;not null" json:"initiator_id"`
	TargetID           int64        `gorm:"index:idx_trade_target;not null" json:"target_id"`
	InitiatorGold      int64        `gorm:"not null;default:0" json:"initiator_gold"`
	TargetGold         int64        `gorm:"not null;default:0" json:"target_gold"`
	InitiatorConfirmed bool         `gorm:"not null;default:false" json:"initiator_confirmed"`
	TargetConfirmed    bool         `gorm:"not null;default:false" json:"target_confirmed"`
	Status             TradeStatus  `gorm:"size:16;index:idx_trade_status;not null" json:"status"`
	Version            int64        `gorm:"not null;default:0" json:"version"`
	CancelledBy        *int64       `json:"cancelled_by,omitempty"`
	CreatedAt          time.Time    `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time    `gorm:"autoUpdateTime" json:"updated_at"`
	CompletedAt        *time.Time   `json:"completed_at,omitempty"`
	CancelledAt        *time.Time   `json:"cancelled_at,omitempty"`
	Offers             []TradeOffer `gorm:"foreignKey:TradeID" json:"offers"`
}

// Participant reports whether charID is one side of the trade.
func (t *Trade) Participant(charID int64) bool {
	return t.InitiatorID == charID || t.TargetID == charID
}

// Counterpart returns the other side's character id.
func (t *Trade) Counterpart(charID int64) int64 {
	if t.InitiatorID == charID {
		return t.TargetID
	}
	return t.InitiatorID
}

// TradeOffer is one inventory record offered by one side.
type TradeOffer struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	TradeID     int64     `gorm:"index:idx_offer_trade;not null" json:"trade_id"`
	CharID      int64     `gorm:"not null" json:"char_id"`
	InventoryID int64     `gorm:"not null" json:"inventory_id"`
	Qty         int       `gorm:"not null" json:"qty"`
	Item        Item      `gorm:"embedded;embeddedPrefix:snap_" json:"item"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
