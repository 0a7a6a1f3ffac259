package handlers

import (
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

type PushHandler struct {
	Push *services.PushService
}

func NewPushHandler(push *services.PushService) *PushHandler {
	return &PushHandler{Push: push}
}

type pushKeys struct {
	P256dh string `json:"p256dh" validate:"required"`
	Auth   string `json:"auth" validate:"required"`
}

type subscribeRequest struct {
	Endpoint string   `json:"endpoint" validate:"required,url"`
	Keys     pushKeys `json:"keys" validate:"required"`
}

type unsubscribeRequest struct {
	Endpoint string `json:"endpoint" validate:"required"`
}

// sendPushRequest is the service-to-service form of the push relay.
type sendPushRequest struct {
	UserID     string  `json:"user_id" validate:"required,uuid"`
	Title      string  `json:"title" validate:"required"`
	Message    string  `json:"message"`
	Type       string  `json:"type" validate:"required"`
	ChatroomID *string `json:"chatroom_id" validate:"omitempty,uuid"`
}

func (h *PushHandler) Subscribe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	var req subscribeRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	sub, err := h.Push.Subscribe(c.Context(), currentUser.ID, req.Endpoint, req.Keys.P256dh, req.Keys.Auth, c.Get("User-Agent"))
	if err != nil {
		return serviceError(c, err, "failed saving push subscription")
	}

	logger.InfoWithUser(currentUser.ID.String(), "push_subscribed", map[string]interface{}{
		"subscription_id": sub.ID.String(),
	})
	return utils.Success(c, fiber.StatusCreated, sub)
}

func (h *PushHandler) Unsubscribe(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	var req unsubscribeRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	if err := h.Push.Unsubscribe(c.Context(), currentUser.ID, req.Endpoint); err != nil {
		return serviceError(c, err, "failed removing push subscription")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"removed": true})
}

func (h *PushHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	subs, err := h.Push.List(c.Context(), currentUser.ID)
	if err != nil {
		return serviceError(c, err, "failed listing push subscriptions")
	}
	return utils.Success(c, fiber.StatusOK, subs)
}

// Send pushes a payload to every subscription of one user. Service callers only.
func (h *PushHandler) Send(c *fiber.Ctx) error {
	var req sendPushRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}
	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}
	chatroomID, err := parseOptionalUUID(req.ChatroomID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}

	n := models.Notification{
		UserID:     userID,
		Title:      req.Title,
		Message:    req.Message,
		Type:       req.Type,
		ChatroomID: chatroomID,
	}
	n.ID = uuid.New()

	result, err := h.Push.SendToUser(c.Context(), userID, h.Push.BuildPayload(n))
	if err != nil {
		return serviceError(c, err, "failed sending push")
	}

	logger.Info("push_relay_sent", map[string]interface{}{
		"user_id": userID.String(),
		"type":    req.Type,
		"sent":    result.Sent,
		"failed":  result.Failed,
		"pruned":  result.Pruned,
	})
	return utils.Success(c, fiber.StatusOK, result)
}
