package services

import (
	"context"
	"io"
	"strings"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// MessageService stores chat messages. Image and audio messages carry only the media
// key; the bytes live in the private media bucket and are resolved to signed URLs on read.
type MessageService struct {
	DB        *gorm.DB
	Media     storage.ObjectStore
	SignedTTL time.Duration
}

func NewMessageService(db *gorm.DB, media storage.ObjectStore, signedTTL time.Duration) *MessageService {
	if signedTTL <= 0 {
		signedTTL = time.Hour
	}
	return &MessageService{DB: db, Media: media, SignedTTL: signedTTL}
}

func (s *MessageService) List(ctx context.Context, userID, chatroomID uuid.UUID, p utils.Page) ([]models.Message, int64, error) {
	db := s.DB.WithContext(ctx)
	if _, err := requireMember(db, chatroomID, userID); err != nil {
		return nil, 0, err
	}

	query := db.Model(&models.Message{}).Where("chatroom_id = ?", chatroomID)
	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Message
	err := p.Apply(query.Preload("User").Order("sent_at ASC")).Find(&out).Error
	return out, total, err
}

func (s *MessageService) Send(ctx context.Context, userID, chatroomID uuid.UUID, content string, kind models.MessageType) (*models.Message, error) {
	if kind == "" {
		kind = models.MessageTypeText
	}

	switch kind {
	case models.MessageTypeText:
		content = strings.TrimSpace(content)
		if content == "" {
			return nil, ErrEmptyMessage
		}
	case models.MessageTypeImage, models.MessageTypeAudio:
		if !keyBelongsTo(content, lifecycle.MediaType(kind), chatroomID) {
			return nil, ErrInvalidMediaKey
		}
	default:
		return nil, ErrInvalidMediaKey
	}

	db := s.DB.WithContext(ctx)
	if _, err := requireMember(db, chatroomID, userID); err != nil {
		return nil, err
	}

	msg := models.Message{
		ChatroomID: chatroomID,
		UserID:     userID,
		Content:    content,
		Type:       kind,
		SentAt:     time.Now().UTC(),
	}
	if err := db.Create(&msg).Error; err != nil {
		return nil, err
	}
	return &msg, nil
}

// UploadMedia stores a chat attachment under the client-chosen key.
func (s *MessageService) UploadMedia(ctx context.Context, userID, chatroomID uuid.UUID, key string, body io.Reader, size int64, contentType string) error {
	kind, _, ok := lifecycle.MediaKeyChatroom(key)
	if !ok || !keyBelongsTo(key, kind, chatroomID) {
		return ErrInvalidMediaKey
	}
	if _, err := requireMember(s.DB.WithContext(ctx), chatroomID, userID); err != nil {
		return err
	}
	return s.Media.Upload(ctx, key, body, size, contentType)
}

// MediaURL resolves a stored media key to a fresh signed URL for an active member.
func (s *MessageService) MediaURL(ctx context.Context, userID uuid.UUID, key string) (string, error) {
	_, room, ok := lifecycle.MediaKeyChatroom(key)
	if !ok {
		return "", ErrInvalidMediaKey
	}
	chatroomID, err := uuid.Parse(room)
	if err != nil {
		return "", ErrInvalidMediaKey
	}
	if _, err := requireMember(s.DB.WithContext(ctx), chatroomID, userID); err != nil {
		return "", err
	}
	return s.Media.PresignedGetURL(ctx, key, s.SignedTTL)
}

func keyBelongsTo(key string, kind lifecycle.MediaType, chatroomID uuid.UUID) bool {
	return strings.HasPrefix(key, string(kind)+"/"+chatroomID.String()+"_")
}
