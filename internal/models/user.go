package models

import (
	"time"
)

// User is the account record. Account management lives in a separate
// service; this API only reads the profile fields it needs (default
// search radius, notification targets).
// DB: users
type User struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Email           string    `gorm:"column:email;size:255;not null;uniqueIndex:users_email_key" json:"email"`
	Role            string    `gorm:"column:role;size:20;not null;default:'driver'" json:"role"`
	DefaultRadiusKm *float64  `gorm:"column:default_radius_km;type:decimal(6,2)" json:"default_radius_km,omitempty"`
	IsActive        bool      `gorm:"column:is_active;not null;default:true" json:"is_active"`
	CreatedAt       time.Time `gorm:"column:created_at;not null;autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null;autoUpdateTime" json:"updated_at"`
}

func (User) TableName() string {
	return "users"
}

// FCMDevice represents FCM device tokens
// DB: notifications_fcm_devices
type FCMDevice struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    uint      `gorm:"column:user_id;index;not null" json:"user_id"`
	Token     string    `gorm:"column:token;size:500;not null;uniqueIndex" json:"token"`
	Platform  string    `gorm:"column:platform;size:20;not null" json:"platform"`
	IsActive  bool      `gorm:"column:is_active;default:true" json:"is_active"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// Relations
	User User `gorm:"foreignKey:UserID" json:"user,omitempty"`
}

func (FCMDevice) TableName() string {
	return "notifications_fcm_devices"
}
