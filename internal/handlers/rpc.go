package handlers

import (
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

// RPCHandler serves the remote procedures under /api/rpc.
type RPCHandler struct {
	Auth        *services.AuthService
	Invitations *services.InvitationService
	Pools       *services.PoolService
	Chatrooms   *services.ChatroomService
	Events      *services.EventService
}

func NewRPCHandler(auth *services.AuthService, invitations *services.InvitationService, pools *services.PoolService, chatrooms *services.ChatroomService, events *services.EventService) *RPCHandler {
	return &RPCHandler{Auth: auth, Invitations: invitations, Pools: pools, Chatrooms: chatrooms, Events: events}
}

type checkUserExistsRequest struct {
	Email string `json:"email" validate:"required,email"`
}

type validateInvitationRequest struct {
	Code string `json:"code"`
}

type createBasketRequest struct {
	ShopID     string  `json:"shop_id" validate:"required,uuid"`
	Amount     float64 `json:"amount" validate:"gt=0"`
	Link       *string `json:"link" validate:"omitempty,url"`
	Note       *string `json:"note"`
	LocationID *string `json:"location_id" validate:"omitempty,uuid"`
}

type leaveChatroomRequest struct {
	ChatroomID string `json:"chatroom_id" validate:"required,uuid"`
}

type trackEventRequest struct {
	EventType string                 `json:"event_type" validate:"required"`
	Metadata  map[string]interface{} `json:"metadata"`
}

func (h *RPCHandler) CheckUserExists(c *fiber.Ctx) error {
	var req checkUserExistsRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}
	exists, err := h.Auth.UserExists(c.Context(), req.Email)
	if err != nil {
		return serviceError(c, err, "failed checking user")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"exists": exists})
}

func (h *RPCHandler) ValidateInvitation(c *fiber.Ctx) error {
	var req validateInvitationRequest
	if err := c.BodyParser(&req); err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid request body")
	}
	valid, err := h.Invitations.Validate(c.Context(), req.Code)
	if err != nil {
		return serviceError(c, err, "failed validating invitation")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"valid": valid})
}

// CreateBasketAndJoinPool takes the owner from the session, never from the body.
func (h *RPCHandler) CreateBasketAndJoinPool(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req createBasketRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}
	shopID, err := parseUUID(req.ShopID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid shop id")
	}
	locationID, err := parseOptionalUUID(req.LocationID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid location id")
	}

	result, err := h.Pools.CreateBasketAndJoinPool(c.Context(), services.CreateBasketInput{
		UserID:     currentUser.ID,
		ShopID:     shopID,
		LocationID: locationID,
		Amount:     req.Amount,
		Link:       req.Link,
		Note:       req.Note,
	})
	if err != nil {
		return serviceError(c, err, "failed creating basket")
	}
	return utils.Success(c, fiber.StatusCreated, result)
}

func (h *RPCHandler) LeaveChatroom(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req leaveChatroomRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}
	chatroomID, err := parseUUID(req.ChatroomID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}

	if err := h.Chatrooms.Leave(c.Context(), currentUser.ID, chatroomID); err != nil {
		return serviceError(c, err, "failed leaving chatroom")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"success": true})
}

// TrackEvent queues the event and answers immediately.
func (h *RPCHandler) TrackEvent(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	var req trackEventRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	if h.Events != nil {
		h.Events.TrackAsync(services.EventEntry{
			UserID:    &currentUser.ID,
			EventType: req.EventType,
			Metadata:  req.Metadata,
			IPAddress: c.IP(),
			RequestID: middleware.RequestID(c),
		})
	}
	return utils.Success(c, fiber.StatusAccepted, fiber.Map{"queued": true})
}
