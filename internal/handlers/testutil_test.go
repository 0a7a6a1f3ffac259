package handlers

import (
	"bytes"
	"context"
	"database/sql/driver"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/config"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/database"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/middleware"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/services"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/storage"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	gosqlite "github.com/glebarez/go-sqlite"
	"github.com/glebarez/sqlite"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"gorm.io/gorm"
)

const testServiceKey = "test-service-key"

type testEnv struct {
	app      *fiber.App
	db       *gorm.DB
	hub      *services.Hub
	push     *recordingSender
	images   *storage.MemoryStore
	media    *storage.MemoryStore
	handlers *Handlers
}

// recordingSender accepts every push and remembers who it was for.
type recordingSender struct {
	mu        sync.Mutex
	endpoints []string
}

func (r *recordingSender) Send(_ context.Context, sub models.PushSubscription, _ []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.endpoints = append(r.endpoints, sub.Endpoint)
	return http.StatusCreated, nil
}

func (r *recordingSender) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.endpoints)
}

var testSetupOnce sync.Once

func setupTestEnv(t *testing.T) *testEnv {
	t.Helper()

	testSetupOnce.Do(func() {
		gosqlite.MustRegisterScalarFunction("NOW", 0, func(ctx *gosqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
			return time.Now().UTC(), nil
		})
		logger.Init()
		utils.ConfigureJWT("test-secret", 24)
		utils.ConfigureSealing("test-secret")
	})

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("failed opening in-memory sqlite database: %v", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("failed getting sql.DB from gorm: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	t.Cleanup(func() {
		_ = sqlDB.Close()
	})

	if err := db.AutoMigrate(database.AllModels()...); err != nil {
		t.Fatalf("failed automigrating models: %v", err)
	}

	cfg := &config.Config{
		Server: config.ServerConfig{
			FrontendURL:    "http://localhost:3000",
			AllowedOrigins: "http://localhost:3000",
			ServiceKey:     testServiceKey,
		},
		SSO: config.SSOConfig{
			Google: config.OAuthProviderConfig{
				Enabled:     true,
				ClientID:    "google-client",
				RedirectURL: "http://localhost:8080/api/auth/oauth/google/callback",
				Scopes:      []string{"openid", "email", "profile"},
			},
		},
		Push: config.PushConfig{Icon: "/icon.png", Badge: "/badge.png"},
	}

	images := storage.NewMemoryStore()
	media := storage.NewMemoryStore()
	sender := &recordingSender{}

	hub := services.NewHub()
	pushService := services.NewPushService(db, cfg.Push)
	pushService.Sender = sender
	notificationService := services.NewNotificationService(db, hub, pushService)
	eventService := services.NewEventService(db, nil, notificationService, 100)
	t.Cleanup(eventService.Close)

	oauthService := services.NewOAuthProviderService(cfg)
	invitationService := services.NewInvitationService(db, 7*24*time.Hour, 8)
	authService := services.NewAuthService(db, invitationService, oauthService, 24*time.Hour)
	poolService := services.NewPoolService(db, eventService, 48*time.Hour)
	chatroomService := services.NewChatroomService(db, eventService)
	messageService := services.NewMessageService(db, media, time.Hour)

	notificationsHandler := NewNotificationsHandler(notificationService, hub)
	notificationsHandler.Heartbeat = 50 * time.Millisecond

	h := &Handlers{
		Auth:          NewAuthHandler(authService, eventService),
		RPC:           NewRPCHandler(authService, invitationService, poolService, chatroomService, eventService),
		Profile:       NewProfileHandler(db),
		Catalog:       NewCatalogHandler(db),
		Pools:         NewPoolsHandler(poolService),
		Chatrooms:     NewChatroomsHandler(chatroomService, messageService),
		Notifications: notificationsHandler,
		Push:          NewPushHandler(pushService),
		Images:        NewImagesHandler(images),
		Invitations:   NewInvitationsHandler(invitationService),
	}

	app := fiber.New(fiber.Config{BodyLimit: 10 * 1024 * 1024})
	app.Use(recover.New(recover.Config{EnableStackTrace: true}))
	app.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	app.Use(middleware.RequestLogger())
	app.Use(middleware.SecurityLogger())

	RegisterRoutes(app, h, middleware.NewAuthMiddleware(db), cfg.Server.ServiceKey)

	return &testEnv{
		app:      app,
		db:       db,
		hub:      hub,
		push:     sender,
		images:   images,
		media:    media,
		handlers: h,
	}
}

func createTestUser(t *testing.T, db *gorm.DB, email, password string, role models.UserRole) (*models.User, string) {
	t.Helper()

	hash, err := utils.HashPassword(password)
	if err != nil {
		t.Fatalf("failed hashing password: %v", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hash,
		FirstName:    "Test",
		LastName:     "User",
		Role:         role,
	}
	if err := db.Create(user).Error; err != nil {
		t.Fatalf("failed creating test user: %v", err)
	}

	token, _, err := utils.IssueAccessToken(user)
	if err != nil {
		t.Fatalf("failed generating auth token: %v", err)
	}

	return user, token
}

func createTestShop(t *testing.T, db *gorm.DB, name string, minAmount float64) *models.Shop {
	t.Helper()

	shop := &models.Shop{Name: name, MinAmount: minAmount, IsActive: true}
	if err := db.Create(shop).Error; err != nil {
		t.Fatalf("failed creating shop: %v", err)
	}
	return shop
}

func authHeaders(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

func performRequest(t *testing.T, app *fiber.App, method, path string, body io.Reader, headers map[string]string) *http.Response {
	t.Helper()

	req := httptest.NewRequest(method, path, body)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := app.Test(req, int((10 * time.Second).Milliseconds()))
	if err != nil {
		t.Fatalf("request %s %s failed: %v", method, path, err)
	}

	return resp
}

func performJSONRequest(t *testing.T, app *fiber.App, method, path string, payload any, headers map[string]string) *http.Response {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("failed to marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}

	requestHeaders := map[string]string{}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	if payload != nil {
		requestHeaders["Content-Type"] = "application/json"
	}

	return performRequest(t, app, method, path, body, requestHeaders)
}

// performMultipartRequest sends fields plus one file part named "file".
func performMultipartRequest(t *testing.T, app *fiber.App, path string, fields map[string]string, filename, contentType string, content []byte, headers map[string]string) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for key, value := range fields {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("failed writing field %s: %v", key, err)
		}
	}
	if filename != "" {
		partHeader := make(map[string][]string)
		partHeader["Content-Disposition"] = []string{`form-data; name="file"; filename="` + filename + `"`}
		partHeader["Content-Type"] = []string{contentType}
		part, err := writer.CreatePart(partHeader)
		if err != nil {
			t.Fatalf("failed creating file part: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			t.Fatalf("failed writing file part: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("failed closing multipart writer: %v", err)
	}

	requestHeaders := map[string]string{"Content-Type": writer.FormDataContentType()}
	for key, value := range headers {
		requestHeaders[key] = value
	}
	return performRequest(t, app, http.MethodPost, path, &buf, requestHeaders)
}

func decodeJSONMap(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed reading response body: %v", err)
	}

	var payload map[string]any
	if err := json.Unmarshal(raw, &payload); err != nil {
		t.Fatalf("failed decoding JSON response: %v body=%q", err, string(raw))
	}

	return payload
}

func dataMap(t *testing.T, body map[string]any) map[string]any {
	t.Helper()
	data, ok := body["data"].(map[string]any)
	if !ok {
		t.Fatalf("expected data object, got %T (%+v)", body["data"], body)
	}
	return data
}

func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Fatalf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

func assertEnvelopeError(t *testing.T, body map[string]any, expected string) {
	t.Helper()
	if success, _ := body["success"].(bool); success {
		t.Fatalf("expected success=false, got %+v", body)
	}
	if got, _ := body["error"].(string); got != expected {
		t.Fatalf("expected error %q, got %q", expected, got)
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}
