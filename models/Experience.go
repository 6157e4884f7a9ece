package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Experience statuses
const (
	ExperienceStatusDraft     = "draft"
	ExperienceStatusSubmitted = "submitted"
	ExperienceStatusPublished = "published"
	ExperienceStatusRejected  = "rejected"
	ExperienceStatusArchived  = "archived"
)

// GeoJSONPoint is stored inside jsonb columns as {"type":"Point","coordinates":[lon,lat]}
type GeoJSONPoint struct {
	Type        string    `json:"type"`
	Coordinates []float64 `json:"coordinates"` // [longitude, latitude]
}

// Experience is the operator-owned template of a bookable offering. Concrete
// per-day instances are derived from it (see ExperienceInstance).
type Experience struct {
	ID         uint `json:"id" gorm:"primaryKey"`
	OperatorID uint `json:"operatorID" gorm:"not null;index"`
	Operator   User `json:"operator" gorm:"foreignKey:OperatorID"`

	// Basic Info
	TripTitle        string         `json:"tripTitle" gorm:"not null"`
	ShortDescription string         `json:"shortDescription" gorm:"type:text"`
	Images           datatypes.JSON `json:"images" gorm:"type:jsonb"`   // JSON array of URLs
	Location         datatypes.JSON `json:"location" gorm:"type:jsonb"` // GeoJSON point
	Tags             datatypes.JSON `json:"tags" gorm:"type:jsonb"`
	Languages        datatypes.JSON `json:"languages" gorm:"type:jsonb"`
	ActivityID       *uint          `json:"activityID"`

	// Capacity & logistics
	AvailableCount *int     `json:"availableCount"` // nil = unlimited
	Duration       string   `json:"duration"`
	Difficulty     string   `json:"difficulty"` // "beginner", "intermediate", "advanced"
	StartTime      string   `json:"startTime"`  // "09:00"
	MeetingTime    string   `json:"meetingTime"`
	PricePerPerson *float64 `json:"pricePerPerson"`

	// Policies
	CancellationPolicy string `json:"cancellationPolicy"` // "flexible", "moderate", "strict"
	BookingCutoffHours int    `json:"bookingCutoffHours" gorm:"default:24"`

	// Recurrence
	IsRecurring      bool       `json:"isRecurring"`
	RecurringPattern string     `json:"recurringPattern"` // RFC-5545 RRULE string
	IsUponRequest    bool       `json:"isUponRequest"`
	StartDate        *time.Time `json:"startDate" gorm:"type:date"`
	EndDate          *time.Time `json:"endDate" gorm:"type:date"`
	Timezone         string     `json:"timezone" gorm:"default:UTC"`

	// Trip content
	TripSteps      datatypes.JSON `json:"tripSteps" gorm:"type:jsonb"`
	IncludedItems  datatypes.JSON `json:"includedItems" gorm:"type:jsonb"`
	ExcludedItems  datatypes.JSON `json:"excludedItems" gorm:"type:jsonb"`
	WhatToBring    datatypes.JSON `json:"whatToBring" gorm:"type:jsonb"`
	AgeNotes       string         `json:"ageNotes" gorm:"type:text"`
	AdditionalInfo string         `json:"additionalInfo" gorm:"type:text"`

	// Status
	Status          string `json:"status" gorm:"size:16;default:draft;index"`
	RejectionReason string `json:"rejectionReason" gorm:"type:text"`
	RejectedByID    *uint  `json:"rejectedByID"`
	Complete        bool   `json:"complete"`

	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
	DeletedAt gorm.DeletedAt `json:"deletedAt" gorm:"index"`
}

// ImageList decodes the jsonb images column. Returns an empty slice on bad data.
func (e *Experience) ImageList() []string {
	var images []string
	if e.Images != nil {
		if err := json.Unmarshal(e.Images, &images); err != nil {
			return []string{}
		}
	}
	if images == nil {
		images = []string{}
	}
	return images
}

// LanguageList decodes the jsonb languages column.
func (e *Experience) LanguageList() []string {
	var languages []string
	if e.Languages != nil {
		if err := json.Unmarshal(e.Languages, &languages); err != nil {
			return []string{}
		}
	}
	if languages == nil {
		languages = []string{}
	}
	return languages
}

// LocationPoint decodes the jsonb location column, nil when unset or invalid.
func (e *Experience) LocationPoint() *GeoJSONPoint {
	if e.Location == nil {
		return nil
	}
	var point GeoJSONPoint
	if err := json.Unmarshal(e.Location, &point); err != nil {
		return nil
	}
	if len(point.Coordinates) != 2 {
		return nil
	}
	return &point
}
