package auth

import (
	"strings"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

const (
	CtxUserIDKey   = "user_id"
	CtxUserNameKey = "user_name"
	CtxUserRoleKey = "user_role"
)

// JWTMiddleware authenticates the bearer token and loads the current user,
// so a role change or a deleted account takes effect on the next request.
func JWTMiddleware(secret string, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		authHeader := c.Get("Authorization")
		if authHeader == "" {
			return fiber.NewError(fiber.StatusUnauthorized, "missing Authorization header")
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			return fiber.NewError(fiber.StatusUnauthorized, "Authorization header must be 'Bearer <token>'")
		}

		claims, err := ParseToken(secret, parts[1])
		if err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid or expired token")
		}

		var users []models.User
		if err := db.WithContext(c.UserContext()).Where("id = ?", claims.UserID).Limit(1).Find(&users).Error; err != nil {
			return apperr.Storage("authenticate", err)
		}
		if len(users) == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
		}
		user := users[0]

		c.Locals(CtxUserIDKey, user.ID)
		c.Locals(CtxUserNameKey, user.Username)
		c.Locals(CtxUserRoleKey, user.Role)

		return c.Next()
	}
}

// ActorFrom returns the caller set by JWTMiddleware.
func ActorFrom(c *fiber.Ctx) (authz.Actor, error) {
	userID, ok := c.Locals(CtxUserIDKey).(uint)
	if !ok {
		return authz.Actor{}, fiber.NewError(fiber.StatusUnauthorized, "not authenticated")
	}
	role, _ := c.Locals(CtxUserRoleKey).(models.UserRole)
	name, _ := c.Locals(CtxUserNameKey).(string)
	return authz.Actor{UserID: userID, UserName: name, Role: role}, nil
}

// RequireOperation rejects callers whose role may not perform op.
func RequireOperation(op authz.Operation) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := ActorFrom(c)
		if err != nil {
			return err
		}
		if err := actor.Can(op); err != nil {
			return err
		}
		return c.Next()
	}
}
