package handlers

import (
	"strings"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
)

type ChatroomsHandler struct {
	Chatrooms *services.ChatroomService
	Messages  *services.MessageService
}

func NewChatroomsHandler(chatrooms *services.ChatroomService, messages *services.MessageService) *ChatroomsHandler {
	return &ChatroomsHandler{Chatrooms: chatrooms, Messages: messages}
}

type updateStateRequest struct {
	State string `json:"state" validate:"required"`
}

type updateBasketsRequest struct {
	Status string `json:"status" validate:"required,oneof=in_chat resolved"`
}

type transferAdminRequest struct {
	UserID string `json:"userID" validate:"required,uuid"`
}

type sendMessageRequest struct {
	Content string `json:"content"`
	Type    string `json:"type" validate:"omitempty,oneof=text image audio"`
}

func (h *ChatroomsHandler) Get(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}

	view, err := h.Chatrooms.Get(c.Context(), currentUser.ID, chatroomID)
	if err != nil {
		return serviceError(c, err, "failed loading chatroom")
	}
	return utils.Success(c, fiber.StatusOK, view)
}

func (h *ChatroomsHandler) UpdateState(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}
	var req updateStateRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	room, err := h.Chatrooms.UpdateState(c.Context(), currentUser.ID, chatroomID, req.State)
	if err != nil {
		logger.WarnWithUser(currentUser.ID.String(), "chatroom_state_update_failed", map[string]interface{}{
			"chatroom_id": chatroomID.String(),
			"state":       req.State,
			"error":       err.Error(),
		})
		return serviceError(c, err, "failed updating chatroom state")
	}
	return utils.Success(c, fiber.StatusOK, room)
}

func (h *ChatroomsHandler) UpdateBaskets(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}
	var req updateBasketsRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	updated, err := h.Chatrooms.UpdateBasketsStatus(c.Context(), currentUser.ID, chatroomID, models.BasketStatus(req.Status))
	if err != nil {
		return serviceError(c, err, "failed updating baskets")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": updated})
}

func (h *ChatroomsHandler) TransferAdmin(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}
	var req transferAdminRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}
	targetID, err := parseUUID(req.UserID)
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Chatrooms.TransferAdmin(c.Context(), currentUser.ID, chatroomID, targetID); err != nil {
		return serviceError(c, err, "failed changing admin")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"adminID": targetID})
}

func (h *ChatroomsHandler) RemoveMember(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}
	targetID, err := parseUUID(c.Params("userId"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid user id")
	}

	if err := h.Chatrooms.RemoveMember(c.Context(), currentUser.ID, chatroomID, targetID); err != nil {
		return serviceError(c, err, "failed removing member")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"removed": true})
}

func (h *ChatroomsHandler) ListMessages(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}

	p := utils.ParsePage(c, 50)
	messages, total, err := h.Messages.List(c.Context(), currentUser.ID, chatroomID, p)
	if err != nil {
		return serviceError(c, err, "failed listing messages")
	}
	return utils.Paginated(c, messages, p, total)
}

func (h *ChatroomsHandler) SendMessage(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}
	var req sendMessageRequest
	if err := utils.BindAndValidate(c, &req); err != nil {
		return nil
	}

	msg, err := h.Messages.Send(c.Context(), currentUser.ID, chatroomID, req.Content, models.MessageType(req.Type))
	if err != nil {
		return serviceError(c, err, "failed sending message")
	}
	return utils.Success(c, fiber.StatusCreated, msg)
}

// UploadMedia stores a multipart file under the key the client derived for it.
func (h *ChatroomsHandler) UploadMedia(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	chatroomID, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid chatroom id")
	}

	key := strings.TrimSpace(c.FormValue("key"))
	if key == "" {
		return utils.Error(c, fiber.StatusBadRequest, "key is required")
	}
	fileHeader, err := c.FormFile("file")
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "file is required")
	}
	file, err := fileHeader.Open()
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "failed reading upload")
	}
	defer file.Close()

	contentType := fileHeader.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	if err := h.Messages.UploadMedia(c.Context(), currentUser.ID, chatroomID, key, file, fileHeader.Size, contentType); err != nil {
		return serviceError(c, err, "failed storing media")
	}

	logger.InfoWithUser(currentUser.ID.String(), "chat_media_uploaded", map[string]interface{}{
		"chatroom_id": chatroomID.String(),
		"key":         key,
		"size":        fileHeader.Size,
	})
	return utils.Success(c, fiber.StatusCreated, fiber.Map{"key": key})
}

// MediaURL resolves a stored media key to a signed URL at render time.
func (h *ChatroomsHandler) MediaURL(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	key := c.Query("key")
	if key == "" {
		return utils.Error(c, fiber.StatusBadRequest, "key is required")
	}

	url, err := h.Messages.MediaURL(c.Context(), currentUser.ID, key)
	if err != nil {
		return serviceError(c, err, "failed signing media url")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"url": url})
}
