package handlers

import (
	"errors"
	"strings"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

func parseUUID(value string) (uuid.UUID, error) {
	return uuid.Parse(strings.TrimSpace(value))
}

func parseOptionalUUID(value *string) (*uuid.UUID, error) {
	if value == nil || strings.TrimSpace(*value) == "" {
		return nil, nil
	}
	id, err := parseUUID(*value)
	if err != nil {
		return nil, err
	}
	return &id, nil
}

var errorStatuses = []struct {
	err    error
	status int
}{
	{services.ErrInvalidCredentials, fiber.StatusUnauthorized},
	{services.ErrInvalidRefreshToken, fiber.StatusUnauthorized},
	{services.ErrEmailTaken, fiber.StatusConflict},
	{services.ErrInvalidInvitation, fiber.StatusBadRequest},
	{services.ErrInvalidResetToken, fiber.StatusBadRequest},
	{services.ErrInvalidOAuthState, fiber.StatusBadRequest},
	{services.ErrEmptyMessage, fiber.StatusBadRequest},
	{services.ErrInvalidMediaKey, fiber.StatusBadRequest},
	{services.ErrCannotRemoveSelf, fiber.StatusBadRequest},
	{services.ErrTargetNotMember, fiber.StatusBadRequest},
	{services.ErrUserNotFound, fiber.StatusNotFound},
	{services.ErrShopNotFound, fiber.StatusNotFound},
	{services.ErrLocationNotFound, fiber.StatusNotFound},
	{services.ErrPoolNotFound, fiber.StatusNotFound},
	{services.ErrBasketNotFound, fiber.StatusNotFound},
	{services.ErrChatroomNotFound, fiber.StatusNotFound},
	{services.ErrNotificationNotFound, fiber.StatusNotFound},
	{services.ErrSubscriptionNotFound, fiber.StatusNotFound},
	{services.ErrNotChatroomMember, fiber.StatusForbidden},
	{services.ErrNotChatroomAdmin, fiber.StatusForbidden},
	{services.ErrInvalidTransition, fiber.StatusConflict},
	{services.ErrBasketNotRemovable, fiber.StatusConflict},
}

// serviceError maps service sentinels to their status. Anything else is logged and
// answered with fallback so internal details never reach the client.
func serviceError(c *fiber.Ctx, err error, fallback string) error {
	for _, m := range errorStatuses {
		if errors.Is(err, m.err) {
			return utils.Error(c, m.status, m.err.Error())
		}
	}

	details := map[string]interface{}{
		"path":       c.Path(),
		"request_id": middleware.RequestID(c),
	}
	if user := middleware.GetCurrentUser(c); user != nil {
		logger.ErrorWithUser(user.ID.String(), "request_failed", err, details)
	} else {
		logger.Error("request_failed", err, details)
	}
	return utils.Error(c, fiber.StatusInternalServerError, fallback)
}
