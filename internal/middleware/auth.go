package middleware

import (
	"errors"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/mindleaf/backend/internal/models"
	"github.com/mindleaf/backend/pkg/logger"
	"github.com/mindleaf/backend/pkg/utils"
	"gorm.io/gorm"
)

const currentUserKey = "currentUser"

type AuthMiddleware struct {
	DB *gorm.DB
}

func NewAuthMiddleware(db *gorm.DB) *AuthMiddleware {
	return &AuthMiddleware{DB: db}
}

func CORS(allowedOrigins []string) fiber.Handler {
	return cors.New(cors.Config{
		AllowOrigins: strings.Join(allowedOrigins, ","),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	})
}

// Identify resolves a bearer token to the user holding it as their stored
// auth token. Requests without a valid token continue anonymously; store
// errors are logged and also treated as anonymous, so a flaky lookup can
// only ever downgrade a caller, never elevate one.
func (a *AuthMiddleware) Identify(c *fiber.Ctx) error {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return c.Next()
	}

	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	if token == authHeader || token == "" {
		return c.Next()
	}

	var user models.User
	if err := a.DB.First(&user, "auth_token = ?", token).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			logger.Error("identity_lookup_failed", err, map[string]interface{}{
				"ip":   c.IP(),
				"path": c.Path(),
			})
		}
		return c.Next()
	}

	c.Locals(currentUserKey, &user)
	c.Locals("userID", user.ID.String())
	return c.Next()
}

func RequireAuth(c *fiber.Ctx) error {
	if GetCurrentUser(c) == nil {
		return utils.Error(c, fiber.StatusUnauthorized, "not authenticated")
	}
	return c.Next()
}

func RequireAnyRole(roles ...models.UserRole) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		if user == nil {
			return utils.Error(c, fiber.StatusUnauthorized, "not authenticated")
		}
		if !user.HasAnyRole(roles...) {
			logger.WarnWithUser(user.ID.String(), "role_denied", map[string]interface{}{
				"path": c.Path(),
				"role": string(user.Role),
			})
			return utils.Error(c, fiber.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
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
