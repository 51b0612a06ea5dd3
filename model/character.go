package model

import "time"

const (
	StartingGold   int64 = 1000
	MaxCharLevel         = 30
	StartingZone         = 1
	StartingRating       = 1000
)

// Character is a player's in-game avatar. Gold and level changes made by
// trades, donations and rewards go through versioned updates.
type Character struct {
	ID           int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	AccountID    int64          `gorm:"index:idx_char_account;not null" json:"account_id"`
	Name         string         `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Class        CharacterClass `gorm:"size:24;not null" json:"class"`
	Level        int            `gorm:"not null" json:"level"`
	Exp          int64          `gorm:"not null;default:0" json:"exp"`
	HP           int            `gorm:"not null" json:"hp"`
	MaxHP        int            `gorm:"not null" json:"max_hp"`
	Mana         int            `gorm:"not null" json:"mana"`
	MaxMana      int            `gorm:"not null" json:"max_mana"`
	Strength     int            `gorm:"not null" json:"strength"`
	Defense      int            `gorm:"not null" json:"defense"`
	Intelligence int            `gorm:"not null" json:"intelligence"`
	Dexterity    int            `gorm:"not null" json:"dexterity"`
	Gold         int64          `gorm:"not null;default:0" json:"gold"`
	PosX         float64        `gorm:"not null;default:0" json:"pos_x"`
	PosY         float64        `gorm:"not null;default:0" json:"pos_y"`
	PosZ         float64        `gorm:"not null;default:0" json:"pos_z"`
	Zone         int            `gorm:"not null" json:"zone"`
	PvPKills     int            `gorm:"not null;default:0" json:"pvp_kills"`
	PvPDeaths    int            `gorm:"not null;default:0" json:"pvp_deaths"`
	PvPRating    int            `gorm:"not null" json:"pvp_rating"`
	Version      int64          `gorm:"not null;default:0" json:"version"`
	LastPlayedAt time.Time      `gorm:"index:idx_char_played" json:"last_played_at"`
	CreatedAt    time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

// NewCharacter builds a level-1 character of class c.
func NewCharacter(accountID int64, name string, c CharacterClass, now time.Time) (*Character, bool) {
	s, ok := StartingStats(c)
	if !ok {
		return nil, false
	}
	return &Character{
		AccountID:    accountID,
		Name:         name,
		Class:        c,
		Level:        1,
		HP:           s.HP,
		MaxHP:        s.HP,
		Mana:         s.Mana,
		MaxMana:      s.Mana,
		Strength:     s.Strength,
		Defense:      s.Defense,
		Intelligence: s.Intelligence,
		Dexterity:    s.Dexterity,
		Gold:         StartingGold,
		Zone:         StartingZone,
		PvPRating:    StartingRating,
		LastPlayedAt: now,
	}, true
}
