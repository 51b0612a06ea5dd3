package model

import "time"

// GuildRole is a member's rank within the guild.
type GuildRole string

const (
	RoleLeader     GuildRole = "LEADER"
	RoleViceLeader GuildRole = "VICE_LEADER"
	RoleOfficer    GuildRole = "OFFICER"
	RoleMember     GuildRole = "MEMBER"
)

// Rank orders roles: higher outranks lower. Unknown roles rank 0.
func (r GuildRole) Rank() int {
	switch r {
	case RoleLeader:
		return 4
	case RoleViceLeader:
		return 3
	case RoleOfficer:
		return 2
	case RoleMember:
		return 1
	}
	return 0
}

// Outranks reports whether r is strictly above o.
func (r GuildRole) Outranks(o GuildRole) bool { return r.Rank() > o.Rank() }

const (
	GuildMaxLevel        = 20
	GuildLevelUpSlots    = 5
	GuildExpPerLevelStep = 10000
)

// Guild is a player guild with shared gold and storage.
type Guild struct {
	ID           int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name         string    `gorm:"uniqueIndex;size:32;not null" json:"name"`
	Tag          string    `gorm:"uniqueIndex;size:8;not null" json:"tag"`
	Level        int       `gorm:"not null" json:"level"`
	Exp          int64     `gorm:"not null;default:0" json:"exp"`
	Gold         int64     `gorm:"not null;default:0" json:"gold"`
	LeaderID     int64     `gorm:"not null" json:"leader_id"`
	Announcement string    `gorm:"type:text" json:"announcement"`
	MaxMembers   int       `gorm:"not null" json:"max_members"`
	Version      int64     `gorm:"not null;default:0" json:"version"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// GuildMember links a character to a guild with a role.
type GuildMember struct {
	GuildID      int64     `gorm:"primaryKey;index:idx_guild_member" json:"guild_id"`
	CharID       int64     `gorm:"primaryKey;uniqueIndex:idx_guild_char" json:"char_id"`
	CharName     string    `gorm:"size:32;not null" json:"name"`
	Role         GuildRole `gorm:"size:16;not null" json:"role"`
	Contribution int64     `gorm:"not null;default:0" json:"contribution"`
	JoinedAt     time.Time `gorm:"not null" json:"joined_at"`
}

// GuildStorageItem is an item held in a guild's shared storage.
type GuildStorageItem struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	GuildID     int64     `gorm:"index:idx_guild_storage;not null" json:"guild_id"`
	Item        `gorm:"embedded"`
	DepositedBy int64     `gorm:"not null" json:"deposited_by"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}
