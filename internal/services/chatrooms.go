package services

import (
	"context"
	"errors"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MemberView struct {
	User     models.User    `json:"user"`
	Basket   *models.Basket `json:"basket,omitempty"`
	JoinedAt time.Time      `json:"joinedAt"`
	IsAdmin  bool           `json:"isAdmin"`
	Status   string         `json:"status"`
}

type ChatroomView struct {
	models.Chatroom
	Members  []MemberView       `json:"members"`
	Progress lifecycle.Progress `json:"progress"`
}

type ChatroomService struct {
	DB     *gorm.DB
	Events *EventService
}

func NewChatroomService(db *gorm.DB, events *EventService) *ChatroomService {
	return &ChatroomService{DB: db, Events: events}
}

func loadChatroom(tx *gorm.DB, chatroomID uuid.UUID) (*models.Chatroom, error) {
	var room models.Chatroom
	if err := tx.First(&room, "id = ?", chatroomID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrChatroomNotFound
		}
		return nil, err
	}
	return &room, nil
}

func activeMembership(tx *gorm.DB, chatroomID, userID uuid.UUID) (*models.ChatMembership, error) {
	var m models.ChatMembership
	err := tx.Where("chatroom_id = ? AND user_id = ? AND left_at IS NULL", chatroomID, userID).First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotChatroomMember
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// requireMember loads the chatroom and checks that userID is an active member.
func requireMember(tx *gorm.DB, chatroomID, userID uuid.UUID) (*models.Chatroom, error) {
	room, err := loadChatroom(tx, chatroomID)
	if err != nil {
		return nil, err
	}
	if _, err := activeMembership(tx, chatroomID, userID); err != nil {
		return nil, err
	}
	return room, nil
}

func requireAdmin(tx *gorm.DB, chatroomID, userID uuid.UUID) (*models.Chatroom, error) {
	room, err := requireMember(tx, chatroomID, userID)
	if err != nil {
		return nil, err
	}
	if room.AdminID != userID {
		return nil, ErrNotChatroomAdmin
	}
	return room, nil
}

// Get returns the chatroom with its pool, shop and active members.
func (s *ChatroomService) Get(ctx context.Context, userID, chatroomID uuid.UUID) (*ChatroomView, error) {
	db := s.DB.WithContext(ctx)
	if _, err := requireMember(db, chatroomID, userID); err != nil {
		return nil, err
	}

	var room models.Chatroom
	if err := db.Preload("Pool.Shop").Preload("Pool.Location").First(&room, "id = ?", chatroomID).Error; err != nil {
		return nil, err
	}

	var memberships []models.ChatMembership
	if err := db.Preload("User").
		Where("chatroom_id = ? AND left_at IS NULL", chatroomID).
		Order("joined_at ASC, created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, err
	}

	var baskets []models.Basket
	if err := db.Where("chatroom_id = ?", chatroomID).Order("created_at ASC").Find(&baskets).Error; err != nil {
		return nil, err
	}
	byUser := make(map[uuid.UUID]*models.Basket, len(baskets))
	for i := range baskets {
		if _, ok := byUser[baskets[i].UserID]; !ok {
			byUser[baskets[i].UserID] = &baskets[i]
		}
	}

	state, _ := lifecycle.ParseChatroomState(string(room.State))
	view := &ChatroomView{
		Chatroom: room,
		Members:  make([]MemberView, 0, len(memberships)),
		Progress: lifecycle.ProgressOf(room.Pool.CurrentAmount, room.Pool.MinAmount),
	}
	for _, m := range memberships {
		mv := MemberView{
			User:     m.User,
			Basket:   byUser[m.UserID],
			JoinedAt: m.JoinedAt,
			IsAdmin:  m.UserID == room.AdminID,
		}
		if mv.Basket != nil {
			mv.Status = lifecycle.MemberStatus(state, mv.Basket.IsReady, mv.Basket.IsDeliveredByUser, mv.Basket.Amount)
		}
		view.Members = append(view.Members, mv)
	}
	return view, nil
}

// UpdateState advances the chatroom. Only forward transitions are accepted.
func (s *ChatroomService) UpdateState(ctx context.Context, actorID, chatroomID uuid.UUID, raw string) (*models.Chatroom, error) {
	next, err := lifecycle.ParseChatroomState(raw)
	if err != nil {
		return nil, ErrInvalidTransition
	}

	var room *models.Chatroom
	err = s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		room, err = requireAdmin(tx, chatroomID, actorID)
		if err != nil {
			return err
		}
		current, err := lifecycle.ParseChatroomState(string(room.State))
		if err != nil || !lifecycle.CanTransition(current, next) {
			return ErrInvalidTransition
		}
		result := tx.Model(&models.Chatroom{}).
			Where("id = ? AND state = ?", room.ID, room.State).
			Update("state", models.ChatroomState(next))
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return ErrInvalidTransition
		}
		room.State = models.ChatroomState(next)
		return nil
	})
	if err != nil {
		return nil, err
	}

	switch next {
	case lifecycle.StateOrdered:
		s.track(actorID, EventChatroomOrdered, chatroomID, nil)
	case lifecycle.StateResolved:
		s.track(actorID, EventChatroomResolved, chatroomID, nil)
	}
	return room, nil
}

// UpdateBasketsStatus sets the status of every basket attached to the chatroom.
func (s *ChatroomService) UpdateBasketsStatus(ctx context.Context, actorID, chatroomID uuid.UUID, status models.BasketStatus) (int64, error) {
	if status != models.BasketStatusInChat && status != models.BasketStatusResolved {
		return 0, ErrInvalidTransition
	}

	var affected int64
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireAdmin(tx, chatroomID, actorID); err != nil {
			return err
		}
		result := tx.Model(&models.Basket{}).Where("chatroom_id = ?", chatroomID).Update("status", status)
		affected = result.RowsAffected
		return result.Error
	})
	return affected, err
}

func (s *ChatroomService) TransferAdmin(ctx context.Context, actorID, chatroomID, targetID uuid.UUID) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireAdmin(tx, chatroomID, actorID); err != nil {
			return err
		}
		if _, err := activeMembership(tx, chatroomID, targetID); err != nil {
			if errors.Is(err, ErrNotChatroomMember) {
				return ErrTargetNotMember
			}
			return err
		}
		return tx.Model(&models.Chatroom{}).Where("id = ?", chatroomID).Update("admin_id", targetID).Error
	})
	if err != nil {
		return err
	}

	s.track(actorID, EventChatroomAdmin, chatroomID, map[string]interface{}{
		"target_user_id": targetID.String(),
	})
	return nil
}

// RemoveMember soft-deletes another member's membership.
func (s *ChatroomService) RemoveMember(ctx context.Context, actorID, chatroomID, targetID uuid.UUID) error {
	if actorID == targetID {
		return ErrCannotRemoveSelf
	}

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if _, err := requireAdmin(tx, chatroomID, actorID); err != nil {
			return err
		}
		m, err := activeMembership(tx, chatroomID, targetID)
		if err != nil {
			if errors.Is(err, ErrNotChatroomMember) {
				return ErrTargetNotMember
			}
			return err
		}
		return tx.Model(m).Update("left_at", time.Now().UTC()).Error
	})
	if err != nil {
		return err
	}

	s.track(actorID, EventChatroomMemberGone, chatroomID, map[string]interface{}{
		"target_user_id": targetID.String(),
	})
	return nil
}

// Leave removes the caller from the chatroom. Their basket leaves the pool total, the
// earliest-joined remaining member inherits the admin role, and an empty chatroom is resolved.
func (s *ChatroomService) Leave(ctx context.Context, userID, chatroomID uuid.UUID) error {
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		room, err := loadChatroom(tx, chatroomID)
		if err != nil {
			return err
		}
		m, err := activeMembership(tx, chatroomID, userID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(m).Update("left_at", now).Error; err != nil {
			return err
		}
		if err := tx.Where("chatroom_id = ? AND user_id = ?", chatroomID, userID).Delete(&models.Basket{}).Error; err != nil {
			return err
		}
		if _, err := recomputePoolAmount(tx, room.PoolID); err != nil {
			return err
		}

		var next models.ChatMembership
		err = tx.Where("chatroom_id = ? AND left_at IS NULL", chatroomID).Order("joined_at ASC, created_at ASC").First(&next).Error
		switch {
		case errors.Is(err, gorm.ErrRecordNotFound):
			return tx.Model(&models.Chatroom{}).Where("id = ?", chatroomID).
				Update("state", models.ChatroomStateResolved).Error
		case err != nil:
			return err
		case room.AdminID == userID:
			return tx.Model(&models.Chatroom{}).Where("id = ?", chatroomID).
				Update("admin_id", next.UserID).Error
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.track(userID, EventChatroomMemberLeft, chatroomID, nil)
	return nil
}

func (s *ChatroomService) track(actorID uuid.UUID, eventType string, chatroomID uuid.UUID, metadata map[string]interface{}) {
	logger.InfoWithUser(actorID.String(), eventType, mergeDetails(map[string]interface{}{
		"chatroom_id": chatroomID.String(),
	}, metadata))
	if s.Events == nil {
		return
	}
	s.Events.TrackAsync(EventEntry{
		UserID:     &actorID,
		EventType:  eventType,
		ChatroomID: &chatroomID,
		Metadata:   metadata,
	})
}
