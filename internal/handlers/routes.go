package handlers

import (
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/gofiber/fiber/v2"
)

type Handlers struct {
	Auth          *AuthHandler
	RPC           *RPCHandler
	Profile       *ProfileHandler
	Catalog       *CatalogHandler
	Pools         *PoolsHandler
	Chatrooms     *ChatroomsHandler
	Notifications *NotificationsHandler
	Push          *PushHandler
	Images        *ImagesHandler
	Invitations   *InvitationsHandler
}

func RegisterRoutes(app *fiber.App, h *Handlers, authMiddleware *middleware.AuthMiddleware, serviceKey string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{"status": "ok"})
	})

	api := app.Group("/api")

	authRoutes := api.Group("/auth")
	authRoutes.Post("/signup", h.Auth.SignUp)
	authRoutes.Post("/login", h.Auth.Login)
	authRoutes.Post("/refresh", h.Auth.Refresh)
	authRoutes.Post("/logout", h.Auth.Logout)
	authRoutes.Get("/session", authMiddleware.RequireAuth, h.Auth.Session)
	authRoutes.Put("/user", authMiddleware.RequireAuth, h.Auth.UpdateUser)
	authRoutes.Post("/password/reset", h.Auth.RequestPasswordReset)
	authRoutes.Post("/password/reset/confirm", h.Auth.ConfirmPasswordReset)
	authRoutes.Get("/oauth/:provider", h.Auth.OAuthStart)
	authRoutes.Get("/oauth/:provider/callback", h.Auth.OAuthCallback)

	rpcRoutes := api.Group("/rpc")
	rpcRoutes.Post("/check_user_exists", h.RPC.CheckUserExists)
	rpcRoutes.Post("/validate_invitation", h.RPC.ValidateInvitation)
	rpcRoutes.Post("/create_basket_and_join_pool", authMiddleware.RequireAuth, h.RPC.CreateBasketAndJoinPool)
	rpcRoutes.Post("/leave_chatroom", authMiddleware.RequireAuth, h.RPC.LeaveChatroom)
	rpcRoutes.Post("/track_event", authMiddleware.RequireAuth, h.RPC.TrackEvent)

	api.Get("/profile", authMiddleware.RequireAuth, h.Profile.Get)
	api.Put("/profile", authMiddleware.RequireAuth, h.Profile.Update)

	api.Get("/shops", h.Catalog.Shops)
	api.Get("/locations", h.Catalog.Locations)
	api.Get("/banners", h.Catalog.Banners)

	basketRoutes := api.Group("/baskets", authMiddleware.RequireAuth)
	basketRoutes.Get("/", h.Pools.ListBaskets)
	basketRoutes.Delete("/:id", h.Pools.DeleteBasket)
	basketRoutes.Put("/:id/ready", h.Pools.SetReady)
	basketRoutes.Put("/:id/delivered", h.Pools.SetDelivered)

	api.Get("/pools/:id", authMiddleware.OptionalAuth, h.Pools.GetPool)

	chatRoutes := api.Group("/chatrooms", authMiddleware.RequireAuth)
	chatRoutes.Get("/:id", h.Chatrooms.Get)
	chatRoutes.Put("/:id/state", h.Chatrooms.UpdateState)
	chatRoutes.Put("/:id/baskets", h.Chatrooms.UpdateBaskets)
	chatRoutes.Put("/:id/admin", h.Chatrooms.TransferAdmin)
	chatRoutes.Delete("/:id/members/:userId", h.Chatrooms.RemoveMember)
	chatRoutes.Get("/:id/messages", h.Chatrooms.ListMessages)
	chatRoutes.Post("/:id/messages", h.Chatrooms.SendMessage)
	chatRoutes.Post("/:id/media", h.Chatrooms.UploadMedia)

	api.Get("/media/url", authMiddleware.RequireAuth, h.Chatrooms.MediaURL)

	notificationRoutes := api.Group("/notifications", authMiddleware.RequireAuth)
	notificationRoutes.Get("/", h.Notifications.List)
	notificationRoutes.Put("/read-all", h.Notifications.MarkAllRead)
	notificationRoutes.Put("/:id/read", h.Notifications.MarkRead)

	api.Get("/realtime/notifications", authMiddleware.RequireAuthQuery, h.Notifications.Stream)

	pushRoutes := api.Group("/push")
	pushRoutes.Post("/subscriptions", authMiddleware.RequireAuth, h.Push.Subscribe)
	pushRoutes.Delete("/subscriptions", authMiddleware.RequireAuth, h.Push.Unsubscribe)
	pushRoutes.Get("/subscriptions", authMiddleware.RequireAuth, h.Push.List)
	pushRoutes.Post("/send", middleware.ServiceKey(serviceKey), h.Push.Send)

	api.Get("/images/*", h.Images.Get)
	api.Post("/images", authMiddleware.RequireAuth, h.Images.Upload)

	invitationRoutes := api.Group("/invitations", authMiddleware.RequireAuth)
	invitationRoutes.Post("/", h.Invitations.Create)
	invitationRoutes.Get("/", h.Invitations.List)
}
