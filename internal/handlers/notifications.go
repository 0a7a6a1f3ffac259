package handlers

import (
	"bufio"
	"fmt"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/valyala/fasthttp"
)

type NotificationsHandler struct {
	Notifications *services.NotificationService
	Hub           *services.Hub
	Heartbeat     time.Duration
}

func NewNotificationsHandler(notifications *services.NotificationService, hub *services.Hub) *NotificationsHandler {
	return &NotificationsHandler{Notifications: notifications, Hub: hub, Heartbeat: 25 * time.Second}
}

func (h *NotificationsHandler) List(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	p := utils.ParsePage(c, 20)
	items, total, err := h.Notifications.List(c.Context(), currentUser.ID, c.QueryBool("unread", false), p)
	if err != nil {
		return serviceError(c, err, "failed listing notifications")
	}
	return utils.Paginated(c, items, p, total)
}

func (h *NotificationsHandler) MarkRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	id, err := parseUUID(c.Params("id"))
	if err != nil {
		return utils.Error(c, fiber.StatusBadRequest, "invalid notification id")
	}

	if err := h.Notifications.MarkRead(c.Context(), currentUser.ID, id); err != nil {
		return serviceError(c, err, "failed marking notification read")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"read": true})
}

func (h *NotificationsHandler) MarkAllRead(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}

	n, err := h.Notifications.MarkAllRead(c.Context(), currentUser.ID)
	if err != nil {
		return serviceError(c, err, "failed marking notifications read")
	}
	return utils.Success(c, fiber.StatusOK, fiber.Map{"updated": n})
}

// Stream relays the user's notification inserts as server-sent events until the
// client goes away. Comment lines keep idle connections open.
func (h *NotificationsHandler) Stream(c *fiber.Ctx) error {
	currentUser := middleware.GetCurrentUser(c)
	if currentUser == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	userID := currentUser.ID

	c.Set("Content-Type", "text/event-stream")
	c.Set("Cache-Control", "no-cache")
	c.Set("Connection", "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	events, cancel := h.Hub.Subscribe(userID)
	heartbeat := h.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}

	logger.InfoWithUser(userID.String(), "realtime_stream_opened", nil)

	c.Context().SetBodyStreamWriter(fasthttp.StreamWriter(func(w *bufio.Writer) {
		defer cancel()
		defer logger.InfoWithUser(userID.String(), "realtime_stream_closed", nil)

		ticker := time.NewTicker(heartbeat)
		defer ticker.Stop()

		fmt.Fprint(w, ": connected\n\n")
		if err := w.Flush(); err != nil {
			return
		}

		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return
				}
				fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, ev.Record)
			case <-ticker.C:
				fmt.Fprint(w, ": ping\n\n")
			}
			if err := w.Flush(); err != nil {
				return
			}
		}
	}))
	return nil
}
