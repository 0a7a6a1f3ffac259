package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Event is an append-only analytics row written by track_event and by server actions.
// It does not embed BaseModel because rows are never updated or soft-deleted.
type Event struct {
	ID         uuid.UUID              `json:"id" gorm:"type:uuid;primaryKey"`
	UserID     *uuid.UUID             `json:"userID,omitempty" gorm:"type:uuid;index"`
	EventType  string                 `json:"eventType" gorm:"type:varchar(50);not null;index"`
	ChatroomID *uuid.UUID             `json:"chatroomID,omitempty" gorm:"type:uuid;index"`
	Metadata   map[string]interface{} `json:"metadata,omitempty" gorm:"type:jsonb;serializer:json"`
	IPAddress  string                 `json:"ipAddress" gorm:"type:varchar(45);not null;default:''"`
	RequestID  string                 `json:"requestID,omitempty" gorm:"type:varchar(36)"`
	CreatedAt  time.Time              `json:"createdAt" gorm:"not null;index"`
}

func (e *Event) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	return nil
}

func (Event) TableName() string {
	return "events"
}

// EventExportCursor tracks the newest exported event so each export ships only new rows.
type EventExportCursor struct {
	ID            uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	LastExportAt  time.Time `json:"lastExportAt" gorm:"not null"`
	ExportedCount int64     `json:"exportedCount" gorm:"not null;default:0"`
}

func (c *EventExportCursor) BeforeCreate(_ *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

type RefreshToken struct {
	BaseModel
	UserID     uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index"`
	TokenHash  string     `json:"-" gorm:"type:varchar(64);not null;uniqueIndex"`
	ExpiresAt  time.Time  `json:"expiresAt" gorm:"not null;index"`
	RevokedAt  *time.Time `json:"revokedAt,omitempty"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty"`
	User       User       `json:"-" gorm:"foreignKey:UserID"`
}
