package models

import (
	"time"
)

// Notification types and statuses mirror the delivery pipeline: rows are
// created as pending and flipped once a channel accepts the message.
const (
	NotificationTypeSearchResult  = "search_result"
	NotificationTypeSpotAvailable = "spot_available"

	NotificationStatusPending = "pending"
	NotificationStatusSent    = "sent"
	NotificationStatusFailed  = "failed"
)

// Notification is the persisted in-app notification record
// DB: notifications
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"column:user_id;not null;index:idx_notification_user" json:"user_id"`
	Title     string    `gorm:"column:title;size:255;not null" json:"title"`
	Body      string    `gorm:"column:body;type:text;not null" json:"body"`
	Type      string    `gorm:"column:type;size:50;not null;default:'general'" json:"type"`
	Status    string    `gorm:"column:status;size:20;not null;default:'pending'" json:"status"`
	Delivered bool      `gorm:"column:delivered;not null;default:false" json:"delivered"`
	IsRead    bool      `gorm:"column:is_read;not null;default:false;index:idx_notification_read" json:"is_read"`
	CreatedAt time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (Notification) TableName() string {
	return "notifications"
}
