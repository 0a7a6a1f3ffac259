package database

import (
	"fmt"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

func Connect(cfg config.DBConfig) (*gorm.DB, error) {
	dsn := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Name,
		cfg.SSLMode,
	)

	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	if err := addConstraints(db); err != nil {
		return nil, err
	}
	if err := seedCatalog(db); err != nil {
		return nil, err
	}

	return db, nil
}

// AllModels lists every table owned by the service, in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&models.Location{},
		&models.User{},
		&models.Shop{},
		&models.Banner{},
		&models.Pool{},
		&models.Chatroom{},
		&models.Basket{},
		&models.ChatMembership{},
		&models.Message{},
		&models.Invitation{},
		&models.Notification{},
		&models.PushSubscription{},
		&models.Event{},
		&models.EventExportCursor{},
		&models.RefreshToken{},
	}
}

func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}

// addConstraints installs checks gorm tags cannot express. Postgres only.
func addConstraints(db *gorm.DB) error {
	constraint := `
DO $$
BEGIN
  IF NOT EXISTS (
    SELECT 1
    FROM pg_constraint
    WHERE conname = 'basket_chatroom_check'
  ) THEN
    ALTER TABLE baskets
    ADD CONSTRAINT basket_chatroom_check
    CHECK (
      (status = 'in_pool' AND chatroom_id IS NULL)
      OR
      (status IN ('in_chat', 'resolved') AND chatroom_id IS NOT NULL)
    );
  END IF;
END $$;`

	return db.Exec(constraint).Error
}

// seedCatalog creates a starter dormitory and shop on an empty database.
func seedCatalog(db *gorm.DB) error {
	var count int64
	if err := db.Model(&models.Shop{}).Count(&count).Error; err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	return db.Transaction(func(tx *gorm.DB) error {
		dorm := models.Location{Name: "Main Dormitory", Type: models.LocationTypeDormitory}
		if err := tx.Create(&dorm).Error; err != nil {
			return err
		}
		shop := models.Shop{Name: "Migros Online", MinAmount: 100, IsActive: true}
		if err := tx.Create(&shop).Error; err != nil {
			return err
		}
		logger.Info("catalog_seeded", map[string]interface{}{
			"location_id": dorm.ID.String(),
			"shop_id":     shop.ID.String(),
		})
		return nil
	})
}
