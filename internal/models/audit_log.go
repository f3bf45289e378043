package models

import "time"

type AuditAction string

const (
	AuditActionCreate     AuditAction = "create"
	AuditActionDelete     AuditAction = "delete"
	AuditActionRoleChange AuditAction = "role_change"
)

type AuditLog struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`

	// Who acted. Zero for system actions.
	ActorID    uint   `gorm:"index" json:"actor_id"`
	ActorEmail string `gorm:"size:255" json:"actor_email"`

	// Entity touched, e.g. "user", "franchise".
	EntityType string `gorm:"size:50;index" json:"entity_type"`
	EntityID   uint   `gorm:"index" json:"entity_id"`

	Action      AuditAction `gorm:"size:20" json:"action"`
	Description string      `gorm:"size:255" json:"description"`

	// JSON snapshots; "null" when absent.
	BeforeData string `gorm:"type:text" json:"before_data"`
	AfterData  string `gorm:"type:text" json:"after_data"`
}
