package models

import (
	"time"

	"gorm.io/gorm"
)

// Booking statuses
const (
	BookingStatusPendingPayment  = "pending_payment"
	BookingStatusPendingApproval = "pending_approval"
	BookingStatusConfirmed       = "confirmed"
	BookingStatusCompleted       = "completed"
	BookingStatusCancelled       = "cancelled"
)

// Booking is an explorer's reservation against one experience instance.
// Confirmed bookings are the source of the instance's booked_count.
type Booking struct {
	ID           uint               `json:"id" gorm:"primaryKey"`
	InstanceID   uint               `json:"instanceID" gorm:"not null;index"`
	Instance     ExperienceInstance `json:"instance" gorm:"foreignKey:InstanceID"`
	ExperienceID uint               `json:"experienceID" gorm:"not null;index"`
	ExplorerID   uint               `json:"explorerID" gorm:"not null;index"`
	Explorer     User               `json:"explorer" gorm:"foreignKey:ExplorerID"`

	HeadCount  int     `json:"headCount" gorm:"not null"`
	TotalPrice float64 `json:"totalPrice"`
	Notes      string  `json:"notes"`
	Status     string  `json:"status" gorm:"size:20;default:pending_approval;index"`
	IsRead     bool    `json:"isRead" gorm:"default:false"` // for the operator dashboard

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"deletedAt" gorm:"index"`
}
