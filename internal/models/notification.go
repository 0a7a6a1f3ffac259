package models

import "github.com/google/uuid"

type Notification struct {
	BaseModel
	UserID     uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index"`
	Title      string     `json:"title" gorm:"type:varchar(255);not null"`
	Message    string     `json:"message" gorm:"type:text;not null"`
	Type       string     `json:"type" gorm:"type:varchar(30);not null;index"`
	ChatroomID *uuid.UUID `json:"chatroomID,omitempty" gorm:"type:uuid;index"`
	Read       bool       `json:"read" gorm:"not null;default:false;index"`
}

func (Notification) TableName() string {
	return "notifications"
}

type PushSubscription struct {
	BaseModel
	UserID    uuid.UUID `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_push_user_endpoint"`
	Endpoint  string    `json:"endpoint" gorm:"type:varchar(1024);not null;uniqueIndex:idx_push_user_endpoint"`
	P256dh    string    `json:"-" gorm:"type:text;not null"`
	Auth      string    `json:"-" gorm:"type:text;not null"`
	UserAgent string    `json:"userAgent" gorm:"type:text;not null;default:''"`
}
