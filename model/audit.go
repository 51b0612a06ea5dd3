package model

import (
	"time"

	"gorm.io/datatypes"
)

// AuditLog records economy-relevant player and admin actions.
type AuditLog struct {
	ID        int64          `gorm:"primaryKey;autoIncrement" json:"id"`
	TraceID   string         `gorm:"index:idx_audit_trace;size:36" json:"trace_id"`
	AccountID *int64         `gorm:"index:idx_audit_account" json:"account_id"`
	CharID    *int64         `gorm:"index:idx_audit_char" json:"char_id"`
	Action    string         `gorm:"size:64;not null" json:"action"`
	Target    string         `gorm:"size:64" json:"target"`
	Detail    datatypes.JSON `json:"detail"`
	Error     string         `gorm:"type:text" json:"error"`
	IP        string         `gorm:"size:45" json:"ip"`
	CreatedAt time.Time      `gorm:"index:idx_audit_created;autoCreateTime:milli" json:"created_at"`
}
