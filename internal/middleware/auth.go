package middleware

import (
	"crypto/subtle"
	"strings"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/models"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/logger"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/pkg/utils"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"gorm.io/gorm"
)

const (
	currentUserKey = "currentUser"
	userIDKey      = "userID"
	serviceKeyName = "X-Service-Key"
)

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

// CORS allows the comma separated origins. Each localhost origin also admits its
// 127.0.0.1 twin.
func CORS(allowedOrigins string) fiber.Handler {
	var origins []string
	for _, o := range strings.Split(allowedOrigins, ",") {
		o = strings.TrimSpace(o)
		if o == "" {
			continue
		}
		origins = append(origins, o)
		if strings.Contains(o, "localhost") {
			origins = append(origins, strings.Replace(o, "localhost", "127.0.0.1", 1))
		}
	}
	return cors.New(cors.Config{
		AllowOrigins: strings.Join(origins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, " + serviceKeyName,
		AllowMethods: "GET,POST,PUT,PATCH,DELETE,OPTIONS",
	})
}

// RequireAuth resolves the bearer token to a user and stores it on the context.
func (a *AuthMiddleware) RequireAuth(c *fiber.Ctx) error {
	header := c.Get("Authorization")
	if header == "" {
		return unauthorized(c, "jwt_missing_header", "missing authorization header", nil)
	}

	token, ok := bearerToken(header)
	if !ok {
		return unauthorized(c, "jwt_invalid_format", "invalid authorization format", map[string]interface{}{
			"scheme": strings.SplitN(header, " ", 2)[0],
		})
	}

	user, err := a.authenticate(token)
	if err != nil {
		return unauthorized(c, "jwt_validation_failed", "invalid or expired token", map[string]interface{}{
			"error": err.Error(),
		})
	}

	setCurrentUser(c, user)
	return c.Next()
}

func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

func unauthorized(c *fiber.Ctx, action, message string, details map[string]interface{}) error {
	if details == nil {
		details = map[string]interface{}{}
	}
	details["ip"] = c.IP()
	details["path"] = c.Path()
	logger.Warn(action, details)
	return utils.Error(c, fiber.StatusUnauthorized, message)
}

// RequireAuthQuery accepts the access token from the access_token query parameter as
// well, for EventSource clients that cannot set headers.
func (a *AuthMiddleware) RequireAuthQuery(c *fiber.Ctx) error {
	if c.Get("Authorization") == "" {
		if token := c.Query("access_token"); token != "" {
			c.Request().Header.Set("Authorization", "Bearer "+token)
		}
	}
	return a.RequireAuth(c)
}

func (a *AuthMiddleware) OptionalAuth(c *fiber.Ctx) error {
	if token, ok := bearerToken(c.Get("Authorization")); ok {
		if user, err := a.authenticate(token); err == nil {
			setCurrentUser(c, user)
		}
	}
	return c.Next()
}

func (a *AuthMiddleware) authenticate(tokenString string) (*models.User, error) {
	claims, err := utils.ParseAccessToken(tokenString)
	if err != nil {
		return nil, err
	}
	var user models.User
	if err := a.DB.First(&user, "id = ?", claims.UserID).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func setCurrentUser(c *fiber.Ctx, user *models.User) {
	c.Locals(currentUserKey, user)
	c.Locals(userIDKey, user.ID.String())
}

// ServiceKey guards endpoints meant for trusted callers such as schedulers.
func ServiceKey(key string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		presented := c.Get(serviceKeyName)
		if key == "" || subtle.ConstantTimeCompare([]byte(presented), []byte(key)) != 1 {
			return unauthorized(c, "service_key_rejected", "invalid service key", nil)
		}
		return c.Next()
	}
}

func AdminOnly(c *fiber.Ctx) error {
	user := GetCurrentUser(c)
	if user == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "unauthorized")
	}
	if user.Role != models.UserRoleAdmin {
		return utils.Error(c, fiber.StatusForbidden, "admin access required")
	}
	return c.Next()
}

func GetCurrentUser(c *fiber.Ctx) *models.User {
	value := c.Locals(currentUserKey)
	if value == nil {
		return nil
	}
	user, ok := value.(*models.User)
	if !ok {
		return nil
	}
	return user
}
