package handlers

import (
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type PoolsHandler struct {
	Pools *services.PoolService
}

func NewPoolsHandler(pools *services.PoolService) *PoolsHandler {
	return &PoolsHandler{Pools: pools}
}

type setReadyRequest struct {
	IsReady *bool `json:"isReady" validate:"required"`
}

type setDeliveredRequest struct {
	Delivered *bool `json:"delivered" validate:"required"`
}

// ListBaskets returns my baskets split into active and resolved, most recent first.
func (h *PoolsHandler) ListBaskets(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	baskets, err := h.Pools.ListBaskets(c.Context(), currentUser.ID)
	if err != nil {
		return serviceError(c, err, "failed listing baskets")
	}

	active, resolved := lifecycle.PartitionBaskets(baskets)
	if active == nil {
		active = []models.Basket{}
	}
	if resolved == nil {
		resolved = []models.Basket{}
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{
		"active":   active,
		"resolved": resolved,
	})
}

func (h *PoolsHandler) DeleteBasket(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	basketID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid basket id")
	}

	if err := h.Pools.DeleteBasket(c.Context(), currentUser.ID, basketID); err != nil {
		return serviceError(c, err, "failed deleting basket")
	}

	logger.InfoWithUser(currentUser.ID.String(), "basket_deleted", map[string]interface{}{
		"basket_id": basketID.String(),
	})
	return utils.Success(c, fiber.StatusOK, fiber.Map{"deleted": true})
}

func (h *PoolsHandler) SetReady(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	basketID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid basket id")
	}
	var req setReadyRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	basket, err := h.Pools.SetReady(c.Context(), currentUser.ID, basketID, *req.IsReady)
	if err != nil {
		return serviceError(c, err, "failed updating basket")
	}
	return utils.Success(c, fiber.StatusOK, basket)
}

func (h *PoolsHandler) SetDelivered(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	basketID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid basket id")
	}
	var req setDeliveredRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	basket, err := h.Pools.SetDelivered(c.Context(), currentUser.ID, basketID, *req.Delivered)
	if err != nil {
		return serviceError(c, err, "failed updating basket")
	}
	return utils.Success(c, fiber.StatusOK, basket)
}

func (h *PoolsHandler) GetPool(c *fiber.Ctx) error {
	poolID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid pool id")
	}

	view, err := h.Pools.GetPool(c.Context(), poolID)
	if err != nil {
		return serviceError(c, err, "failed loading pool")
	}
	return utils.Success(c, fiber.StatusOK, view)
}
