package handlers

import (
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

// CatalogHandler serves the read-only reference rows: shops, locations and banners.
type CatalogHandler struct {
	DB *gorm.DB
}

func NewCatalogHandler(db *gorm.DB) *CatalogHandler {
	return &CatalogHandler{DB: db}
}

func (h *CatalogHandler) Shops(c *fiber.Ctx) error {
	var shops []models.Shop
	if err := h.DB.Where("is_active = ?", true).Order("name ASC").Find(&shops).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing shops")
	}
	return utils.Success(c, fiber.StatusOK, shops)
}

func (h *CatalogHandler) Locations(c *fiber.Ctx) error {
	query := h.DB.Order("name ASC")
	if kind := c.Query("type"); kind != "" {
		if kind != string(models.LocationTypeDormitory) && kind != string(models.LocationTypeMeetup) {
			return utils.Error(c, fiber.StatusBadRequest, "type must be dormitory or meetup")
		}
		query = query.Where("type = ?", kind)
	}

	var locations []models.Location
	if err := query.Find(&locations).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing locations")
	}
	return utils.Success(c, fiber.StatusOK, locations)
}

func (h *CatalogHandler) Banners(c *fiber.Ctx) error {
	var banners []models.Banner
	if err := h.DB.Where("is_active = ?", true).Order("priority DESC, created_at ASC").Find(&banners).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed listing banners")
	}
	return utils.Success(c, fiber.StatusOK, banners)
}
