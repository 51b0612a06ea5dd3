package model

import "time"

type LootMode string

const (
	LootFreeForAll LootMode = "FREE_FOR_ALL"
	LootRoundRobin LootMode = "ROUND_ROBIN"
	LootLeaderOnly LootMode = "LEADER_ONLY"
)

func (m LootMode) Valid() bool {
	return m == LootFreeForAll || m == LootRoundRobin || m == LootLeaderOnly
}

// Party is a small group led by one character. LeaderID always names the
// single member row with IsLeader set.
type Party struct {
	ID          int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	LeaderID    int64         `gorm:"not null" json:"leader_id"`
	LootMode    LootMode      `gorm:"size:16;not null" json:"loot_mode"`
	ExpShare    bool          `gorm:"not null" json:"exp_share"`
	MaxMembers  int           `gorm:"not null" json:"max_members"`
	Disbanded   bool          `gorm:"not null;default:false" json:"disbanded"`
	Version     int64         `gorm:"not null;default:0" json:"version"`
	CreatedAt   time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
	DisbandedAt *time.Time    `json:"disbanded_at,omitempty"`
	Members     []PartyMember `gorm:"foreignKey:PartyID" json:"members"`
}

// PartyMember places a character in a party. A character belongs to at most one party.
type PartyMember struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"-"`
	PartyID  int64     `gorm:"index:idx_party_member;not null" json:"party_id"`
	CharID   int64     `gorm:"uniqueIndex;not null" json:"char_id"`
	CharName string    `gorm:"size:32;not null" json:"name"`
	IsLeader bool      `gorm:"not null;default:false" json:"is_leader"`
	JoinedAt time.Time `gorm:"index:idx_party_joined;not null" json:"joined_at"`
}
