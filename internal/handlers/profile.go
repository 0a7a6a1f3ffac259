package handlers

import (
	"errors"
	"strings"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type ProfileHandler struct {
	DB *gorm.DB
}

func NewProfileHandler(db *gorm.DB) *ProfileHandler {
	return &ProfileHandler{DB: db}
}

type updateProfileRequest struct {
	FirstName     *string `json:"firstName" validate:"omitempty,max=100"`
	LastName      *string `json:"lastName" validate:"omitempty,max=100"`
	Image         *string `json:"image"`
	FavoriteStore *string `json:"favoriteStore" validate:"omitempty,max=255"`
	DormitoryID   *string `json:"dormitoryID" validate:"omitempty,uuid"`
}

func (h *ProfileHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var user models.User
	if err := h.DB.Preload("Dormitory").First(&user, "id = ?", currentUser.ID).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed loading profile")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"profile":         user,
		"profileComplete": user.ProfileComplete(),
	})
}

func (h *ProfileHandler) Update(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req updateProfileRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	updates := map[string]interface{}{}
	if req.FirstName != nil {
		updates["first_name"] = strings.TrimSpace(*req.FirstName)
	}
	if req.LastName != nil {
		updates["last_name"] = strings.TrimSpace(*req.LastName)
	}
	if req.Image != nil {
		updates["image"] = req.Image
	}
	if req.FavoriteStore != nil {
		updates["favorite_store"] = req.FavoriteStore
	}
	if req.DormitoryID != nil {
		dormID, err := parseUUID(*req.DormitoryID)
		if err != nil {
			return utils.Error(c, fiber.StatusBadRequest, "invalid dormitory id")
		}
		var loc models.Location
		err = h.DB.Where("id = ? AND type = ?", dormID, models.LocationTypeDormitory).First(&loc).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return utils.Error(c, fiber.StatusBadRequest, "dormitory not found")
		}
		if err != nil {
			return utils.Error(c, fiber.StatusInternalServerError, "failed loading dormitory")
		}
		updates["dormitory_id"] = dormID
	}

	if len(updates) == 0 {
		return utils.Error(c, fiber.StatusBadRequest, "nothing to update")
	}

	if err := h.DB.Model(&models.User{}).Where("id = ?", currentUser.ID).Updates(updates).Error; err != nil {
		return utils.Error(c, fiber.StatusInternalServerError, "failed updating profile")
	}

	logger.InfoWithUser(currentUser.ID.String(), "profile_updated", map[string]interface{}{
		"fields": len(updates),
	})
	return h.Get(c)
}
