package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/database"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/handlers"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
)

func main() {
	logger.Init()

	cfg := config.Load()
	logger.SetLevel(logger.LogLevel(cfg.Server.LogLevel))
	utils.ConfigureJWT(cfg.JWT.Secret, cfg.JWT.ExpirationHours)
	utils.ConfigureSealing(cfg.JWT.Secret)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := database.Connect(cfg.DB)
	if err != nil {
		log.Fatalf("database connection failed: %v", err)
	}

	buckets, err := storage.OpenBuckets(ctx, cfg.Storage)
	if err != nil {
		log.Fatalf("object storage initialization failed: %v", err)
	}

	hub := services.NewHub()
	if cfg.Realtime.RedisURL != "" {
		broker, err := services.NewRedisBroker(cfg.Realtime.RedisURL, cfg.Realtime.Channel)
		if err != nil {
			log.Fatalf("redis broker initialization failed: %v", err)
		}
		if err := broker.Run(ctx, hub); err != nil {
			log.Fatalf("redis subscribe failed: %v", err)
		}
		hub.UseBroker(broker)
		defer broker.Close()
	}

	pushService := services.NewPushService(db, cfg.Push)
	if !cfg.Push.Enabled() {
		logger.Warn("push_disabled", map[string]interface{}{
			"reason": "VAPID keys not configured",
		})
	}
	notificationService := services.NewNotificationService(db, hub, pushService)
	eventService := services.NewEventService(db, buckets.Events, notificationService, cfg.Events.QueueSize)
	defer eventService.Close()
	eventService.StartExporter(ctx, cfg.Events.ExportInterval)

	oauthService := services.NewOAuthProviderService(cfg)
	invitationService := services.NewInvitationService(db, cfg.Pool.InvitationTTL, cfg.Pool.InvitationCodeLen)
	authService := services.NewAuthService(db, invitationService, oauthService, cfg.JWT.RefreshTTL)
	poolService := services.NewPoolService(db, eventService, cfg.Pool.ChatroomTTL)
	chatroomService := services.NewChatroomService(db, eventService)
	messageService := services.NewMessageService(db, buckets.Media, cfg.Storage.SignedURLTTL)

	h := &handlers.Handlers{
		Auth:          handlers.NewAuthHandler(authService, eventService),
		RPC:           handlers.NewRPCHandler(authService, invitationService, poolService, chatroomService, eventService),
		Profile:       handlers.NewProfileHandler(db),
		Catalog:       handlers.NewCatalogHandler(db),
		Pools:         handlers.NewPoolsHandler(poolService),
		Chatrooms:     handlers.NewChatroomsHandler(chatroomService, messageService),
		Notifications: handlers.NewNotificationsHandler(notificationService, hub),
		Push:          handlers.NewPushHandler(pushService),
		Images:        handlers.NewImagesHandler(buckets.Images),
		Invitations:   handlers.NewInvitationsHandler(invitationService),
	}

	authMiddleware := middleware.NewAuthMiddleware(db)

	app := fiber.New(fiber.Config{BodyLimit: cfg.Server.BodyLimitMB * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	handlers.RegisterRoutes(app, h, authMiddleware, cfg.Server.ServiceKey)

	listenAddr := fmt.Sprintf(":%s", cfg.Server.Port)

	logger.Info("server_starting", map[string]interface{}{
		"port":        cfg.Server.Port,
		"address":     listenAddr,
		"body_limit":  fmt.Sprintf("%dMB", cfg.Server.BodyLimitMB),
		"storage":     cfg.Storage.Driver,
		"redis_relay": cfg.Realtime.RedisURL != "",
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- app.Listen(listenAddr)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Printf("shutting down server due to signal: %s", sig)
		if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
			log.Printf("forced shutdown: %v", err)
		}
	case err := <-errCh:
		if err != nil {
			log.Fatalf("server error: %v", err)
		}
	}
}
