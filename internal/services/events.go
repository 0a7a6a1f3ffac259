package services

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventUserSignedIn       = "user_signed_in"
	EventUserSignedUp       = "user_signed_up"
	EventBasketCreated      = "basket.created"
	EventBasketDeleted      = "basket.deleted"
	EventPoolFilled         = "pool.filled"
	EventChatroomOrdered    = "chatroom.ordered"
	EventChatroomResolved   = "chatroom.resolved"
	EventChatroomAdmin      = "chatroom.admin_changed"
	EventChatroomMemberGone = "chatroom.member_removed"
	EventChatroomMemberLeft = "chatroom.member_left"
)

type EventEntry struct {
	UserID     *uuid.UUID
	EventType  string
	ChatroomID *uuid.UUID
	Metadata   map[string]interface{}
	IPAddress  string
	RequestID  string
}

// EventService records analytics events off the request path and turns
// chatroom events into notifications for the affected members.
type EventService struct {
	DB            *gorm.DB
	Storage       storage.ObjectStore
	Notifications *NotificationService

	queue chan models.Event
	wg    sync.WaitGroup
	once  sync.Once
}

func NewEventService(db *gorm.DB, store storage.ObjectStore, notifications *NotificationService, queueSize int) *EventService {
	if queueSize <= 0 {
		queueSize = 1000
	}
	s := &EventService{
		DB:            db,
		Storage:       store,
		Notifications: notifications,
		queue:         make(chan models.Event, queueSize),
	}
	s.wg.Add(1)
	go s.processQueue()
	return s
}

func (s *EventService) TrackAsync(entry EventEntry) {
	row := models.Event{
		UserID:     entry.UserID,
		EventType:  entry.EventType,
		ChatroomID: entry.ChatroomID,
		Metadata:   entry.Metadata,
		IPAddress:  entry.IPAddress,
		RequestID:  entry.RequestID,
		CreatedAt:  time.Now().UTC(),
	}

	select {
	case s.queue <- row:
	default:
		logger.Warn("event_queue_full", map[string]interface{}{
			"event_type": entry.EventType,
			"dropped":    true,
		})
	}
}

// Close stops accepting events and waits for queued ones to be written.
func (s *EventService) Close() {
	s.once.Do(func() {
		close(s.queue)
	})
	s.wg.Wait()
}

func (s *EventService) processQueue() {
	defer s.wg.Done()
	for row := range s.queue {
		if err := s.Record(context.Background(), &row); err != nil {
			logger.Error("event_insert_failed", err, map[string]interface{}{
				"event_type": row.EventType,
			})
		}
	}
}

// Record stores one event and fans out any notifications it implies.
func (s *EventService) Record(ctx context.Context, row *models.Event) error {
	if err := s.DB.WithContext(ctx).Create(row).Error; err != nil {
		return err
	}
	s.notify(ctx, *row)
	return nil
}

func (s *EventService) notify(ctx context.Context, ev models.Event) {
	if s.Notifications == nil || ev.ChatroomID == nil {
		return
	}

	var pending []models.Notification
	switch ev.EventType {
	case EventPoolFilled:
		pending = s.notificationsForPoolFilled(ev)
	case EventChatroomOrdered:
		pending = s.notifyMembers(ev, "Order placed", "%s placed the group order", "order_placed")
	case EventChatroomResolved:
		pending = s.notifyMembers(ev, "Order delivered", "%s marked the order as delivered", "order_delivered")
	case EventChatroomMemberLeft:
		pending = s.notifyMembers(ev, "Member left", "%s left the group", "member_left")
	case EventChatroomAdmin:
		pending = s.notifyTarget(ev, "You are now the admin", "%s made you the group admin", "admin_assigned")
	case EventChatroomMemberGone:
		pending = s.notifyTarget(ev, "Removed from group", "%s removed you from the group", "member_removed")
	}

	for i := range pending {
		if err := s.Notifications.Create(ctx, &pending[i]); err != nil {
			logger.Error("notification_insert_failed", err, map[string]interface{}{
				"event_type": ev.EventType,
				"user_id":    pending[i].UserID.String(),
			})
		}
	}
}

func (s *EventService) notificationsForPoolFilled(ev models.Event) []models.Notification {
	shopName := detailString(ev.Metadata, "shop_name")
	if shopName == "" {
		shopName = "your shop"
	}

	members := s.activeMemberIDs(*ev.ChatroomID)
	out := make([]models.Notification, 0, len(members))
	for _, uid := range members {
		out = append(out, models.Notification{
			UserID:     uid,
			Title:      "Pool filled",
			Message:    fmt.Sprintf("The %s pool reached its minimum. Your group chat is open.", shopName),
			Type:       "pool_filled",
			ChatroomID: ev.ChatroomID,
		})
	}
	return out
}

// notifyMembers addresses every active member except the actor.
func (s *EventService) notifyMembers(ev models.Event, title, format, kind string) []models.Notification {
	if ev.UserID == nil {
		return nil
	}
	actorName := s.getActorName(*ev.UserID)

	var out []models.Notification
	for _, uid := range s.activeMemberIDs(*ev.ChatroomID) {
		if uid == *ev.UserID {
			continue
		}
		out = append(out, models.Notification{
			UserID:     uid,
			Title:      title,
			Message:    fmt.Sprintf(format, actorName),
			Type:       kind,
			ChatroomID: ev.ChatroomID,
		})
	}
	return out
}

func (s *EventService) notifyTarget(ev models.Event, title, format, kind string) []models.Notification {
	if ev.UserID == nil {
		return nil
	}
	targetID, err := uuid.Parse(detailString(ev.Metadata, "target_user_id"))
	if err != nil || targetID == *ev.UserID {
		return nil
	}
	return []models.Notification{{
		UserID:     targetID,
		Title:      title,
		Message:    fmt.Sprintf(format, s.getActorName(*ev.UserID)),
		Type:       kind,
		ChatroomID: ev.ChatroomID,
	}}
}

func (s *EventService) getActorName(userID uuid.UUID) string {
	var user models.User
	if err := s.DB.Select("email", "first_name", "last_name").First(&user, "id = ?", userID).Error; err != nil {
		return "Someone"
	}
	return user.DisplayName()
}

func (s *EventService) activeMemberIDs(chatroomID uuid.UUID) []uuid.UUID {
	var memberships []models.ChatMembership
	s.DB.Select("user_id").
		Where("chatroom_id = ? AND left_at IS NULL", chatroomID).
		Order("joined_at ASC, created_at ASC").
		Find(&memberships)

	ids := make([]uuid.UUID, len(memberships))
	for i, m := range memberships {
		ids[i] = m.UserID
	}
	return ids
}

// StartExporter periodically ships new event rows to the events bucket as NDJSON.
func (s *EventService) StartExporter(ctx context.Context, interval time.Duration) {
	if s.Storage == nil || interval <= 0 {
		logger.Info("event_exporter_disabled", map[string]interface{}{
			"reason": "no storage bucket or interval configured",
		})
		return
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Export(ctx); err != nil {
					logger.Error("event_export_failed", err, nil)
				}
			}
		}
	}()

	logger.Info("event_exporter_started", map[string]interface{}{
		"interval": interval.String(),
	})
}

// Export uploads every event newer than the cursor and returns how many were shipped.
func (s *EventService) Export(ctx context.Context) (int, error) {
	var cursor models.EventExportCursor
	err := s.DB.First(&cursor).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		cursor = models.EventExportCursor{
			LastExportAt: time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC),
		}
		if err := s.DB.Create(&cursor).Error; err != nil {
			return 0, fmt.Errorf("create export cursor: %w", err)
		}
	} else if err != nil {
		return 0, fmt.Errorf("load export cursor: %w", err)
	}

	var events []models.Event
	if err := s.DB.Where("created_at > ?", cursor.LastExportAt).
		Order("created_at ASC").
		Limit(10000).
		Find(&events).Error; err != nil {
		return 0, fmt.Errorf("query events: %w", err)
	}
	if len(events) == 0 {
		return 0, nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, ev := range events {
		if err := enc.Encode(ev); err != nil {
			logger.Error("event_export_encode_failed", err, map[string]interface{}{
				"event_id": ev.ID.String(),
			})
		}
	}

	now := time.Now().UTC()
	objectName := fmt.Sprintf("events/%s/%s-%s.ndjson",
		now.Format("2006/01/02"),
		now.Format("15-04-05"),
		uuid.NewString()[:8],
	)
	if err := s.Storage.Upload(ctx, objectName, &buf, int64(buf.Len()), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("upload %s: %w", objectName, err)
	}

	lastCreatedAt := events[len(events)-1].CreatedAt
	if err := s.DB.Model(&cursor).Updates(map[string]interface{}{
		"last_export_at": lastCreatedAt,
		"exported_count": gorm.Expr("exported_count + ?", len(events)),
	}).Error; err != nil {
		return 0, fmt.Errorf("advance export cursor: %w", err)
	}

	logger.Info("event_export_success", map[string]interface{}{
		"object_name": objectName,
		"count":       len(events),
	})
	return len(events), nil
}

func detailString(details map[string]interface{}, key string) string {
	if details == nil {
		return ""
	}
	v, ok := details[key]
	if !ok || v == nil {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v)
	}
	return s
}
