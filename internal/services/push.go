package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	webpush "github.com/SherClockHolmes/webpush-go"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type PushData struct {
	ID             string `json:"id"`
	URL            string `json:"url"`
	ChatroomID     string `json:"chatroom_id,omitempty"`
	NotificationID string `json:"notification_id,omitempty"`
	Type           string `json:"type"`
}

// PushPayload is the JSON the service worker receives.
type PushPayload struct {
	Title              string   `json:"title"`
	Body               string   `json:"body"`
	Icon               string   `json:"icon"`
	Badge              string   `json:"badge"`
	Tag                string   `json:"tag"`
	RequireInteraction bool     `json:"requireInteraction"`
	Data               PushData `json:"data"`
}

type PushResult struct {
	Sent   int `json:"sent"`
	Failed int `json:"failed"`
	Pruned int `json:"pruned"`
}

// PushSender delivers one encrypted payload and reports the push service status code.
type PushSender interface {
	Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error)
}

type WebPushSender struct {
	Config     config.PushConfig
	HTTPClient *http.Client
}

func (w *WebPushSender) Send(ctx context.Context, sub models.PushSubscription, payload []byte) (int, error) {
	opts := &webpush.Options{
		Subscriber:      w.Config.Subject,
		VAPIDPublicKey:  w.Config.VAPIDPublicKey,
		VAPIDPrivateKey: w.Config.VAPIDPrivateKey,
		TTL:             w.Config.TTLSeconds,
	}
	if w.HTTPClient != nil {
		opts.HTTPClient = w.HTTPClient
	}

	resp, err := webpush.SendNotificationWithContext(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys: webpush.Keys{
			Auth:   sub.Auth,
			P256dh: sub.P256dh,
		},
	}, opts)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	return resp.StatusCode, nil
}

type PushService struct {
	DB     *gorm.DB
	Sender PushSender
	Config config.PushConfig
}

func NewPushService(db *gorm.DB, cfg config.PushConfig) *PushService {
	s := &PushService{DB: db, Config: cfg}
	if cfg.Enabled() {
		s.Sender = &WebPushSender{Config: cfg}
	}
	return s
}

// Subscribe stores the subscription, replacing the keys of an existing (user, endpoint) pair.
func (s *PushService) Subscribe(ctx context.Context, userID uuid.UUID, endpoint, p256dh, auth, userAgent string) (*models.PushSubscription, error) {
	sub := models.PushSubscription{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		UserAgent: userAgent,
	}
	err := s.DB.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "endpoint"}},
		DoUpdates: clause.AssignmentColumns([]string{"p256dh", "auth", "user_agent", "updated_at", "deleted_at"}),
	}).Create(&sub).Error
	if err != nil {
		return nil, err
	}

	var stored models.PushSubscription
	if err := s.DB.WithContext(ctx).Where("user_id = ? AND endpoint = ?", userID, endpoint).First(&stored).Error; err != nil {
		return nil, err
	}
	return &stored, nil
}

func (s *PushService) Unsubscribe(ctx context.Context, userID uuid.UUID, endpoint string) error {
	result := s.DB.WithContext(ctx).Unscoped().
		Where("user_id = ? AND endpoint = ?", userID, endpoint).
		Delete(&models.PushSubscription{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrSubscriptionNotFound
	}
	return nil
}

func (s *PushService) List(ctx context.Context, userID uuid.UUID) ([]models.PushSubscription, error) {
	var subs []models.PushSubscription
	err := s.DB.WithContext(ctx).Where("user_id = ?", userID).Order("created_at ASC").Find(&subs).Error
	return subs, err
}

// BuildPayload renders a stored notification the way the service worker expects it.
func (s *PushService) BuildPayload(n models.Notification) PushPayload {
	url := "/notifications"
	chatroomID := ""
	if n.ChatroomID != nil {
		chatroomID = n.ChatroomID.String()
		url = "/chatrooms/" + chatroomID
	}
	return PushPayload{
		Title:              n.Title,
		Body:               n.Message,
		Icon:               s.Config.Icon,
		Badge:              s.Config.Badge,
		Tag:                "shelivery-" + n.Type,
		RequireInteraction: n.Type == "timer",
		Data: PushData{
			ID:             n.ID.String(),
			URL:            url,
			ChatroomID:     chatroomID,
			NotificationID: n.ID.String(),
			Type:           n.Type,
		},
	}
}

// SendToUser pushes payload to every subscription the user has. Subscriptions the
// push service reports as gone (404, 410) or whose keys cannot be used are deleted.
func (s *PushService) SendToUser(ctx context.Context, userID uuid.UUID, payload PushPayload) (PushResult, error) {
	var result PushResult
	if s.Sender == nil {
		return result, nil
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return result, fmt.Errorf("encode push payload: %w", err)
	}

	subs, err := s.List(ctx, userID)
	if err != nil {
		return result, err
	}

	for _, sub := range subs {
		status, sendErr := s.Sender.Send(ctx, sub, body)
		details := map[string]interface{}{
			"user_id":         userID.String(),
			"subscription_id": sub.ID.String(),
			"status":          status,
		}

		switch {
		case sendErr == nil && status >= 200 && status < 300:
			result.Sent++
			continue
		case status == http.StatusNotFound || status == http.StatusGone || isKeyError(sendErr):
			if err := s.DB.WithContext(ctx).Unscoped().Delete(&models.PushSubscription{}, "id = ?", sub.ID).Error; err != nil {
				logger.Error("push_subscription_prune_failed", err, details)
			} else {
				result.Pruned++
			}
		}

		result.Failed++
		if sendErr != nil {
			logger.Warn("push_send_failed", mergeDetails(details, map[string]interface{}{"error": sendErr.Error()}))
		} else {
			logger.Warn("push_send_rejected", details)
		}
	}

	return result, nil
}

var errInvalidKeys = errors.New("invalid subscription keys")

// isKeyError reports failures that happen while encrypting for the subscription,
// before any request reaches the push service.
func isKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, errInvalidKeys) {
		return true
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"base64", "p256dh", "auth secret", "invalid point", "elliptic"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func mergeDetails(base, extra map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(base)+len(extra))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range extra {
		out[k] = v
	}
	return out
}
