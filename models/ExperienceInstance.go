package models

import (
	"time"

	"gorm.io/datatypes"
)

// Instance statuses
const (
	InstanceStatusScheduled = "scheduled"
	InstanceStatusConfirmed = "confirmed"
	InstanceStatusOngoing   = "ongoing"
	InstanceStatusCompleted = "completed"
	InstanceStatusCancelled = "cancelled"
	InstanceStatusBlocked   = "blocked"
)

// InstanceSnapshot is the denormalized copy of template display fields carried
// on every physical instance so listings never need a template join.
type InstanceSnapshot struct {
	TripTitle      string         `json:"tripTitle"`
	Images         datatypes.JSON `json:"images" gorm:"type:jsonb"`
	Location       datatypes.JSON `json:"location" gorm:"type:jsonb"`
	StartTime      string         `json:"startTime"`
	MeetingTime    string         `json:"meetingTime"`
	PricePerPerson *float64       `json:"pricePerPerson"`
}

// ExperienceInstance is a physically persisted per-day occurrence of an
// experience. It only exists once something happened to that date (a manual
// edit, a cancellation, a booking); otherwise occurrences stay virtual and are
// recomputed from the template's recurrence rule on every read.
//
// The unique (experience_id, date) index is what makes concurrent phantom
// materializations safe: the second writer gets a duplicate-key error.
type ExperienceInstance struct {
	ID           uint       `json:"id" gorm:"primaryKey"`
	ExperienceID uint       `json:"experienceID" gorm:"not null;index:idx_instance_exp_date,unique"`
	Experience   Experience `json:"-" gorm:"foreignKey:ExperienceID"`
	OperatorID   uint       `json:"operatorID" gorm:"not null;index"`

	Date   time.Time `json:"date" gorm:"type:date;not null;index:idx_instance_exp_date,unique"`
	Status string    `json:"status" gorm:"size:12;default:scheduled;index"`

	BookedCount    int  `json:"bookedCount" gorm:"default:0"`
	AvailableCount *int `json:"availableCount"` // nil = unlimited

	Snapshot InstanceSnapshot `json:"snapshot" gorm:"embedded"`

	CancellationReason string     `json:"cancellationReason" gorm:"type:text"`
	CancelledByID      *uint      `json:"cancelledByID"`
	CancelledAt        *time.Time `json:"cancelledAt"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// CanTransition reports whether an instance may move from its current status
// to the requested one. Cancelled and completed are terminal.
func (i *ExperienceInstance) CanTransition(to string) bool {
	allowed, ok := instanceTransitions[i.Status]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

var instanceTransitions = map[string][]string{
	InstanceStatusScheduled: {InstanceStatusConfirmed, InstanceStatusBlocked, InstanceStatusCancelled},
	InstanceStatusConfirmed: {InstanceStatusOngoing, InstanceStatusCancelled},
	InstanceStatusOngoing:   {InstanceStatusCompleted},
	InstanceStatusBlocked:   {InstanceStatusScheduled},
}
