package handlers

import (
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type InvitationsHandler struct {
	Invitations *services.InvitationService
}

func NewInvitationsHandler(invitations *services.InvitationService) *InvitationsHandler {
	return &InvitationsHandler{Invitations: invitations}
}

func (h *InvitationsHandler) Create(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	inv, err := h.Invitations.Create(c.Context(), currentUser.ID)
	if err != nil {
		return serviceError(c, err, "failed creating invitation")
	}

	logger.InfoWithUser(currentUser.ID.String(), "invitation_created", map[string]interface{}{
		"invitation_id": inv.ID.String(),
		"expires_at":    inv.ExpiresAt,
	})
	return utils.Success(c, fiber.StatusCreated, inv)
}

func (h *InvitationsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	items, err := h.Invitations.ListIssued(c.Context(), currentUser.ID)
	if err != nil {
		return serviceError(c, err, "failed listing invitations")
	}
	return utils.Success(c, fiber.StatusOK, items)
}
