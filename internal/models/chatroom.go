package models

import (
	"time"

	"github.com/google/uuid"
)

type ChatroomState string

const (
	ChatroomStateWaiting  ChatroomState = "waiting"
	ChatroomStateActive   ChatroomState = "active"
	ChatroomStateOrdered  ChatroomState = "ordered"
	ChatroomStateResolved ChatroomState = "resolved"
)

type Chatroom struct {
	BaseModel
	PoolID   uuid.UUID     `json:"poolID" gorm:"type:uuid;not null;uniqueIndex"`
	State    ChatroomState `json:"state" gorm:"type:varchar(20);not null;default:'waiting';index"`
	AdminID  uuid.UUID     `json:"adminID" gorm:"type:uuid;not null;index"`
	ExpireAt time.Time     `json:"expireAt" gorm:"not null"`

	Pool        Pool             `json:"pool,omitempty" gorm:"foreignKey:PoolID"`
	Admin       User             `json:"-" gorm:"foreignKey:AdminID"`
	Memberships []ChatMembership `json:"memberships,omitempty" gorm:"foreignKey:ChatroomID"`
}

// ChatMembership rows are never hard-deleted. LeftAt marks a member as gone.
type ChatMembership struct {
	BaseModel
	ChatroomID uuid.UUID  `json:"chatroomID" gorm:"type:uuid;not null;index;uniqueIndex:idx_chat_member"`
	UserID     uuid.UUID  `json:"userID" gorm:"type:uuid;not null;index;uniqueIndex:idx_chat_member"`
	JoinedAt   time.Time  `json:"joinedAt" gorm:"not null"`
	LeftAt     *time.Time `json:"leftAt,omitempty" gorm:"index"`

	User     User     `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Chatroom Chatroom `json:"-" gorm:"foreignKey:ChatroomID"`
}

func (m *ChatMembership) Active() bool {
	return m.LeftAt == nil
}

type MessageType string

const (
	MessageTypeText  MessageType = "text"
	MessageTypeImage MessageType = "image"
	MessageTypeAudio MessageType = "audio"
)

// Message content holds the text body, or the storage key for image and audio messages.
type Message struct {
	BaseModel
	ChatroomID uuid.UUID   `json:"chatroomID" gorm:"type:uuid;not null;index"`
	UserID     uuid.UUID   `json:"userID" gorm:"type:uuid;not null;index"`
	Content    string      `json:"content" gorm:"type:text;not null"`
	Type       MessageType `json:"type" gorm:"type:varchar(10);not null;default:'text'"`
	SentAt     time.Time   `json:"sentAt" gorm:"not null;index"`
	ReadAt     *time.Time  `json:"readAt,omitempty"`

	User User `json:"user,omitempty" gorm:"foreignKey:UserID"`
}
