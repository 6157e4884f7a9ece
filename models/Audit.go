package models

import (
	"time"
)

// AuditLog records one admin mutation against a marketplace resource, with
// JSON snapshots of the fields that changed. Rows are append-only.
type AuditLog struct {
	ID           uint      `json:"id" gorm:"primaryKey"`
	ActorID      uint      `json:"actorID" gorm:"index;not null"`
	ActorRole    string    `json:"actorRole" gorm:"size:20"`
	Action       string    `json:"action" gorm:"size:64;index"` // e.g. "experience.approve", "instance.cancel"
	ResourceType string    `json:"resourceType" gorm:"size:32;index"`
	ResourceID   uint      `json:"resourceID" gorm:"index"`
	BeforeJSON   string    `json:"beforeJSON" gorm:"type:text"`
	AfterJSON    string    `json:"afterJSON" gorm:"type:text"`
	IPAddress    string    `json:"ipAddress" gorm:"size:64"`
	CreatedAt    time.Time `json:"createdAt"`
}
