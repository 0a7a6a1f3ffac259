package models

import (
	"time"

	"github.com/google/uuid"
)

type Invitation struct {
	BaseModel
	Code        string     `json:"code" gorm:"size:16;uniqueIndex;not null"`
	InvitedByID uuid.UUID  `json:"invitedBy" gorm:"type:uuid;not null;index"`
	ExpiresAt   time.Time  `json:"expiresAt" gorm:"not null"`
	UsedByID    *uuid.UUID `json:"usedBy,omitempty" gorm:"type:uuid"`
	UsedAt      *time.Time `json:"usedAt,omitempty"`

	InvitedBy User `json:"-" gorm:"foreignKey:InvitedByID"`
}

// Usable reports whether the code can still admit a new account at now.
func (i *Invitation) Usable(now time.Time) bool {
	return i.UsedByID == nil && now.Before(i.ExpiresAt)
}
