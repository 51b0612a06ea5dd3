package model

import (
	"time"

	"gorm.io/datatypes"
)

// QuestReward is what a daily quest pays out.
type QuestReward struct {
	Gold int64 `json:"gold"`
	Exp  int64 `json:"exp"`
	Gems int64 `json:"gems"`
}

// DailyQuestEntry is one quest drawn for the day.
type DailyQuestEntry struct {
	QuestID     string      `json:"quest_id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Type        string      `json:"type"`
	Target      int         `json:"target"`
	Current     int         `json:"current"`
	Completed   bool        `json:"completed"`
	Claimed     bool        `json:"claimed"`
	Reward      QuestReward `json:"reward"`
}

// DailyQuestProgress holds one account's quests for one calendar day (UTC, YYYY-MM-DD).
type DailyQuestProgress struct {
	ID           int64                                 `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    int64                                 `gorm:"uniqueIndex:idx_dq_account_date;not null" json:"account_id"`
	Date         string                                `gorm:"uniqueIndex:idx_dq_account_date;size:10;not null" json:"date"`
	Quests       datatypes.JSONType[[]DailyQuestEntry] `json:"quests"`
	AllCompleted bool                                  `gorm:"not null;default:false" json:"all_completed"`
	BonusClaimed bool                                  `gorm:"not null;default:false" json:"bonus_claimed"`
	Version      int64                                 `gorm:"not null;default:0" json:"-"`
	CreatedAt    time.Time                             `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time                             `gorm:"autoUpdateTime" json:"updated_at"`
}
