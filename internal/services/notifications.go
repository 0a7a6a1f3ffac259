package services

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// NotificationService persists notifications, then publishes the insert to realtime
// subscribers and sends a web push to the recipient's devices.
type NotificationService struct {
	DB   *gorm.DB
	Hub  *Hub
	Push *PushService

	// PushTimeout bounds the background push fan-out for one notification.
	PushTimeout time.Duration
}

func NewNotificationService(db *gorm.DB, hub *Hub, push *PushService) *NotificationService {
	return &NotificationService{DB: db, Hub: hub, Push: push, PushTimeout: 15 * time.Second}
}

func (s *NotificationService) Create(ctx context.Context, n *models.Notification) error {
	if err := s.DB.WithContext(ctx).Create(n).Error; err != nil {
		return err
	}

	if s.Hub != nil {
		record, err := json.Marshal(n)
		if err == nil {
			s.Hub.Publish(ctx, RealtimeEvent{
				Type:   "insert",
				Table:  "notifications",
				UserID: n.UserID,
				Record: record,
			})
		}
	}

	if s.Push != nil && s.Push.Sender != nil {
		payload := s.Push.BuildPayload(*n)
		userID := n.UserID
		go func() {
			pushCtx, cancel := context.WithTimeout(context.Background(), s.PushTimeout)
			defer cancel()
			result, err := s.Push.SendToUser(pushCtx, userID, payload)
			if err != nil {
				logger.Error("notification_push_failed", err, map[string]interface{}{
					"user_id": userID.String(),
				})
				return
			}
			logger.Info("notification_push_sent", map[string]interface{}{
				"user_id": userID.String(),
				"sent":    result.Sent,
				"failed":  result.Failed,
				"pruned":  result.Pruned,
			})
		}()
	}
	return nil
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, userID uuid.UUID, unreadOnly bool, p utils.Page) ([]models.Notification, int64, error) {
	query := s.DB.WithContext(ctx).Model(&models.Notification{}).Where("user_id = ?", userID)
	if unreadOnly {
		query = query.Where("read = ?", false)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var out []models.Notification
	err := p.Apply(query.Order("created_at DESC")).Find(&out).Error
	return out, total, err
}

// Unread returns unread notifications oldest first, the order the client queue consumes them in.
func (s *NotificationService) Unread(ctx context.Context, userID uuid.UUID) ([]models.Notification, error) {
	var out []models.Notification
	err := s.DB.WithContext(ctx).
		Where("user_id = ? AND read = ?", userID, false).
		Order("created_at ASC").
		Find(&out).Error
	return out, err
}

func (s *NotificationService) MarkRead(ctx context.Context, userID, id uuid.UUID) error {
	var n models.Notification
	err := s.DB.WithContext(ctx).Where("id = ? AND user_id = ?", id, userID).First(&n).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotificationNotFound
	}
	if err != nil {
		return err
	}
	if n.Read {
		return nil
	}
	return s.DB.WithContext(ctx).Model(&n).Update("read", true).Error
}

func (s *NotificationService) MarkAllRead(ctx context.Context, userID uuid.UUID) (int64, error) {
	result := s.DB.WithContext(ctx).Model(&models.Notification{}).
		Where("user_id = ? AND read = ?", userID, false).
		Update("read", true)
	return result.RowsAffected, result.Error
}
