package model

import (
	"slices"
	"time"

	"gorm.io/datatypes"
)

type GameEventType string

const (
	EventExpBoost     GameEventType = "exp_boost"
	EventGoldBoost    GameEventType = "gold_boost"
	EventDropBoost    GameEventType = "drop_boost"
	EventBossSpawn    GameEventType = "boss_spawn"
	EventPvPArena     GameEventType = "pvp_arena"
	EventTreasureHunt GameEventType = "treasure_hunt"
	EventInvasion     GameEventType = "invasion"
)

// Valid reports whether t is a known event type.
func (t GameEventType) Valid() bool {
	switch t {
	case EventExpBoost, EventGoldBoost, EventDropBoost,
		EventBossSpawn, EventPvPArena, EventTreasureHunt, EventInvasion:
		return true
	}
	return false
}

// EventRewards is paid to participants of an event.
type EventRewards struct {
	Gold int64 `json:"gold"`
	Exp  int64 `json:"exp"`
	Gems int64 `json:"gems"`
}

// GameEvent is a scheduled server event. Boost events multiply rewards for
// characters inside the level range and target zones (none means every zone).
type GameEvent struct {
	ID              int64                            `gorm:"primaryKey;autoIncrement" json:"id"`
	Name            string                           `gorm:"size:64;not null" json:"name"`
	Description     string                           `gorm:"size:512;not null" json:"description"`
	Type            GameEventType                    `gorm:"size:24;index:idx_event_type;not null" json:"event_type"`
	StartTime       time.Time                        `gorm:"index:idx_event_window;not null" json:"start_time"`
	EndTime         time.Time                        `gorm:"index:idx_event_window;not null" json:"end_time"`
	Active          bool                             `gorm:"index:idx_event_window;not null" json:"is_active"`
	BonusMultiplier float64                          `gorm:"not null" json:"bonus_multiplier"`
	TargetZones     datatypes.JSONType[[]int]        `json:"target_zones"`
	MinLevel        int                              `gorm:"not null" json:"min_level"`
	MaxLevel        int                              `gorm:"not null" json:"max_level"`
	Rewards         datatypes.JSONType[EventRewards] `json:"rewards"`
	CreatedAt       time.Time                        `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time                        `gorm:"autoUpdateTime" json:"updated_at"`
}

// Running reports whether the event is enabled and at is inside its window.
func (e *GameEvent) Running(at time.Time) bool {
	return e.Active && !at.Before(e.StartTime) && !at.After(e.EndTime)
}

// Applies reports whether a character at level in zone qualifies.
func (e *GameEvent) Applies(zone, level int) bool {
	if level < e.MinLevel || level > e.MaxLevel {
		return false
	}
	zones := e.TargetZones.Data()
	return len(zones) == 0 || slices.Contains(zones, zone)
}
