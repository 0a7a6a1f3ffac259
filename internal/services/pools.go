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
	"gorm.io/gorm/clause"
)

type CreateBasketInput struct {
	UserID     uuid.UUID
	ShopID     uuid.UUID
	LocationID *uuid.UUID
	Amount     float64
	Link       *string
	Note       *string
}

type JoinPoolResult struct {
	PoolID     uuid.UUID  `json:"pool_id"`
	BasketID   uuid.UUID  `json:"basket_id"`
	ChatroomID *uuid.UUID `json:"chatroom_id,omitempty"`
}

type PoolView struct {
	models.Pool
	Progress   lifecycle.Progress `json:"progress"`
	ChatroomID *uuid.UUID         `json:"chatroomID,omitempty"`
}

type PoolService struct {
	DB          *gorm.DB
	Events      *EventService
	ChatroomTTL time.Duration
}

func NewPoolService(db *gorm.DB, events *EventService, chatroomTTL time.Duration) *PoolService {
	if chatroomTTL <= 0 {
		chatroomTTL = 48 * time.Hour
	}
	return &PoolService{DB: db, Events: events, ChatroomTTL: chatroomTTL}
}

// CreateBasketAndJoinPool creates the basket and attaches it to the open pool for its
// shop and location in one transaction. When the pool reaches its minimum the pool is
// promoted: a chatroom is created and every basket moves into it.
func (s *PoolService) CreateBasketAndJoinPool(ctx context.Context, in CreateBasketInput) (*JoinPoolResult, error) {
	var (
		result   JoinPoolResult
		shop     models.Shop
		promoted *models.Chatroom
	)

	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// The shop row lock serializes pool lookup and creation per shop. Locking the
		// pool alone is not enough: when no open pool exists there is no row to lock.
		if err := lockForUpdate(tx).Where("id = ? AND is_active = ?", in.ShopID, true).First(&shop).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrShopNotFound
			}
			return err
		}
		if in.LocationID != nil {
			var count int64
			if err := tx.Model(&models.Location{}).Where("id = ?", *in.LocationID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return ErrLocationNotFound
			}
		}

		pool, err := s.findOrCreateOpenPool(tx, shop, in.LocationID)
		if err != nil {
			return err
		}

		basket := models.Basket{
			UserID: in.UserID,
			ShopID: shop.ID,
			PoolID: pool.ID,
			Link:   in.Link,
			Note:   in.Note,
			Amount: in.Amount,
			Status: models.BasketStatusInPool,
		}
		if err := tx.Create(&basket).Error; err != nil {
			return err
		}

		current, err := recomputePoolAmount(tx, pool.ID)
		if err != nil {
			return err
		}

		result.PoolID = pool.ID
		result.BasketID = basket.ID

		if lifecycle.IsFilled(current, pool.MinAmount) {
			room, err := s.promote(tx, pool)
			if err != nil {
				return err
			}
			promoted = room
			result.ChatroomID = &room.ID
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.Events != nil {
		userID := in.UserID
		s.Events.TrackAsync(EventEntry{
			UserID:    &userID,
			EventType: EventBasketCreated,
			Metadata: map[string]interface{}{
				"basket_id": result.BasketID.String(),
				"pool_id":   result.PoolID.String(),
				"amount":    in.Amount,
			},
		})
		if promoted != nil {
			s.Events.TrackAsync(EventEntry{
				UserID:     &userID,
				EventType:  EventPoolFilled,
				ChatroomID: &promoted.ID,
				Metadata: map[string]interface{}{
					"pool_id":   result.PoolID.String(),
					"shop_name": shop.Name,
				},
			})
		}
	}

	logger.InfoWithUser(in.UserID.String(), "basket_created", map[string]interface{}{
		"basket_id": result.BasketID.String(),
		"pool_id":   result.PoolID.String(),
		"promoted":  promoted != nil,
	})
	return &result, nil
}

// findOrCreateOpenPool returns the pool for (shop, location) that no chatroom references yet.
// Callers must hold the shop row lock.
func (s *PoolService) findOrCreateOpenPool(tx *gorm.DB, shop models.Shop, locationID *uuid.UUID) (*models.Pool, error) {
	query := lockForUpdate(tx).
		Where("shop_id = ?", shop.ID).
		Where("NOT EXISTS (SELECT 1 FROM chatrooms WHERE chatrooms.pool_id = pools.id)")
	if locationID != nil {
		query = query.Where("location_id = ?", *locationID)
	} else {
		query = query.Where("location_id IS NULL")
	}

	var pool models.Pool
	err := query.Order("created_at ASC").First(&pool).Error
	if err == nil {
		return &pool, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	pool = models.Pool{
		ShopID:     shop.ID,
		LocationID: locationID,
		MinAmount:  shop.MinAmount,
	}
	if err := tx.Create(&pool).Error; err != nil {
		return nil, err
	}
	return &pool, nil
}

// promote turns a filled pool into a waiting chatroom. The owner of the earliest basket
// becomes admin.
func (s *PoolService) promote(tx *gorm.DB, pool *models.Pool) (*models.Chatroom, error) {
	var baskets []models.Basket
	if err := tx.Where("pool_id = ?", pool.ID).Order("created_at ASC").Find(&baskets).Error; err != nil {
		return nil, err
	}
	if len(baskets) == 0 {
		return nil, errors.New("cannot promote an empty pool")
	}

	now := time.Now().UTC()
	room := models.Chatroom{
		PoolID:   pool.ID,
		State:    models.ChatroomStateWaiting,
		AdminID:  baskets[0].UserID,
		ExpireAt: now.Add(s.ChatroomTTL),
	}
	if err := tx.Create(&room).Error; err != nil {
		return nil, err
	}

	seen := make(map[uuid.UUID]bool, len(baskets))
	for _, b := range baskets {
		if seen[b.UserID] {
			continue
		}
		seen[b.UserID] = true
		membership := models.ChatMembership{
			ChatroomID: room.ID,
			UserID:     b.UserID,
			JoinedAt:   now,
		}
		if err := tx.Create(&membership).Error; err != nil {
			return nil, err
		}
	}

	if err := tx.Model(&models.Basket{}).
		Where("pool_id = ?", pool.ID).
		Updates(map[string]interface{}{
			"status":      models.BasketStatusInChat,
			"chatroom_id": room.ID,
		}).Error; err != nil {
		return nil, err
	}

	logger.Info("pool_promoted", map[string]interface{}{
		"pool_id":     pool.ID.String(),
		"chatroom_id": room.ID.String(),
		"members":     len(seen),
	})
	return &room, nil
}

// recomputePoolAmount stores the sum over the pool's non-removed baskets.
func recomputePoolAmount(tx *gorm.DB, poolID uuid.UUID) (float64, error) {
	var total float64
	if err := tx.Model(&models.Basket{}).
		Where("pool_id = ?", poolID).
		Select("COALESCE(SUM(amount), 0)").
		Scan(&total).Error; err != nil {
		return 0, err
	}
	if err := tx.Model(&models.Pool{}).Where("id = ?", poolID).Update("current_amount", total).Error; err != nil {
		return 0, err
	}
	return total, nil
}

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

func (s *PoolService) ListBaskets(ctx context.Context, userID uuid.UUID) ([]models.Basket, error) {
	var baskets []models.Basket
	err := s.DB.WithContext(ctx).
		Preload("Shop").
		Preload("Pool").
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&baskets).Error
	return baskets, err
}

func (s *PoolService) ownedBasket(tx *gorm.DB, userID, basketID uuid.UUID) (*models.Basket, error) {
	var basket models.Basket
	if err := tx.Where("id = ? AND user_id = ?", basketID, userID).First(&basket).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrBasketNotFound
		}
		return nil, err
	}
	return &basket, nil
}

// DeleteBasket removes a basket that is still waiting in its pool.
func (s *PoolService) DeleteBasket(ctx context.Context, userID, basketID uuid.UUID) error {
	var poolID uuid.UUID
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		basket, err := s.ownedBasket(tx, userID, basketID)
		if err != nil {
			return err
		}
		if basket.Status != models.BasketStatusInPool {
			return ErrBasketNotRemovable
		}
		poolID = basket.PoolID
		if err := tx.Delete(basket).Error; err != nil {
			return err
		}
		_, err = recomputePoolAmount(tx, basket.PoolID)
		return err
	})
	if err != nil {
		return err
	}

	if s.Events != nil {
		s.Events.TrackAsync(EventEntry{
			UserID:    &userID,
			EventType: EventBasketDeleted,
			Metadata: map[string]interface{}{
				"basket_id": basketID.String(),
				"pool_id":   poolID.String(),
			},
		})
	}
	return nil
}

func (s *PoolService) SetReady(ctx context.Context, userID, basketID uuid.UUID, ready bool) (*models.Basket, error) {
	basket, err := s.ownedBasket(s.DB.WithContext(ctx), userID, basketID)
	if err != nil {
		return nil, err
	}
	if err := s.DB.WithContext(ctx).Model(basket).Update("is_ready", ready).Error; err != nil {
		return nil, err
	}
	basket.IsReady = ready
	return basket, nil
}

// SetDelivered records the member's own receipt confirmation.
func (s *PoolService) SetDelivered(ctx context.Context, userID, basketID uuid.UUID, delivered bool) (*models.Basket, error) {
	basket, err := s.ownedBasket(s.DB.WithContext(ctx), userID, basketID)
	if err != nil {
		return nil, err
	}
	if basket.ChatroomID == nil {
		return nil, ErrBasketNotFound
	}
	if err := s.DB.WithContext(ctx).Model(basket).Update("is_delivered_by_user", delivered).Error; err != nil {
		return nil, err
	}
	basket.IsDeliveredByUser = &delivered
	return basket, nil
}

func (s *PoolService) GetPool(ctx context.Context, poolID uuid.UUID) (*PoolView, error) {
	var pool models.Pool
	if err := s.DB.WithContext(ctx).Preload("Shop").Preload("Location").First(&pool, "id = ?", poolID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPoolNotFound
		}
		return nil, err
	}

	view := &PoolView{
		Pool:     pool,
		Progress: lifecycle.ProgressOf(pool.CurrentAmount, pool.MinAmount),
	}

	var room models.Chatroom
	err := s.DB.WithContext(ctx).Select("id").Where("pool_id = ?", poolID).First(&room).Error
	if err == nil {
		view.ChatroomID = &room.ID
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	return view, nil
}
