package models

import "time"

type Notification struct {
	ID      uint   `json:"id" gorm:"primaryKey"`
	UserID  uint   `json:"userID" gorm:"not null;index"`
	Type    string `json:"type" gorm:"size:48;index"`
	Title   string `json:"title"`
	Message string `json:"message" gorm:"type:text"`
	RefType string `json:"refType" gorm:"size:32"`
	RefID   uint   `json:"refID"`
	IsRead  bool   `json:"isRead" gorm:"default:false"`

	CreatedAt time.Time `json:"createdAt"`
}
