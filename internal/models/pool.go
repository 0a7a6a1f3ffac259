package models

import (
	"errors"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Pool struct {
	BaseModel
	ShopID        uuid.UUID  `json:"shopID" gorm:"type:uuid;not null;index:idx_pool_shop_location"`
	LocationID    *uuid.UUID `json:"locationID,omitempty" gorm:"type:uuid;index:idx_pool_shop_location"`
	CurrentAmount float64    `json:"currentAmount" gorm:"not null;default:0"`
	MinAmount     float64    `json:"minAmount" gorm:"not null;default:0"`

	Shop     Shop      `json:"shop,omitempty" gorm:"foreignKey:ShopID"`
	Location *Location `json:"location,omitempty" gorm:"foreignKey:LocationID"`
	Baskets  []Basket  `json:"-" gorm:"foreignKey:PoolID"`
}

type BasketStatus string

const (
	BasketStatusInPool   BasketStatus = "in_pool"
	BasketStatusInChat   BasketStatus = "in_chat"
	BasketStatusResolved BasketStatus = "resolved"
)

var ErrBasketInconsistent = errors.New("basket status and chatroom assignment disagree")

type Basket struct {
	BaseModel
	UserID            uuid.UUID    `json:"userID" gorm:"type:uuid;not null;index"`
	ShopID            uuid.UUID    `json:"shopID" gorm:"type:uuid;not null;index"`
	PoolID            uuid.UUID    `json:"poolID" gorm:"type:uuid;not null;index"`
	ChatroomID        *uuid.UUID   `json:"chatroomID" gorm:"type:uuid;index"`
	Link              *string      `json:"link,omitempty" gorm:"type:text"`
	Note              *string      `json:"note,omitempty" gorm:"type:text"`
	Amount            float64      `json:"amount" gorm:"not null"`
	Status            BasketStatus `json:"status" gorm:"type:varchar(20);not null;default:'in_pool';index"`
	IsReady           bool         `json:"isReady" gorm:"not null;default:false"`
	IsDeliveredByUser *bool        `json:"isDeliveredByUser,omitempty"`

	User User  `json:"user,omitempty" gorm:"foreignKey:UserID"`
	Shop Shop  `json:"shop,omitempty" gorm:"foreignKey:ShopID"`
	Pool *Pool `json:"pool,omitempty" gorm:"foreignKey:PoolID"`
}

// Consistent reports whether the in_pool status agrees with the chatroom assignment.
func (b *Basket) Consistent() bool {
	if b.Status == BasketStatusInPool {
		return b.ChatroomID == nil
	}
	return b.ChatroomID != nil
}

// BasketStatus lets baskets be partitioned by the lifecycle helpers.
func (b Basket) BasketStatus() lifecycle.BasketStatus {
	return lifecycle.BasketStatus(b.Status)
}

func (b *Basket) BeforeSave(_ *gorm.DB) error {
	if b.Status == "" {
		return nil
	}
	if !b.Consistent() {
		return ErrBasketInconsistent
	}
	return nil
}
