package admin

import (
	"fmt"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/audit"
	"warehouse-backend/internal/auth"
	"warehouse-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"
)

type CreateUserRequest struct {
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Password string          `json:"password"`
	Role     models.UserRole `json:"role"`
}

type UpdateRoleRequest struct {
	Role models.UserRole `json:"role"`
}

type userSnapshot struct {
	ID       uint            `json:"id"`
	Username string          `json:"username"`
	Email    string          `json:"email"`
	Role     models.UserRole `json:"role"`
}

func snapshot(u *models.User) userSnapshot {
	return userSnapshot{ID: u.ID, Username: u.Username, Email: u.Email, Role: u.Role}
}

func findUser(tx *gorm.DB, op string, id uint) (*models.User, error) {
	var users []models.User
	if err := tx.Where("id = ?", id).Limit(1).Find(&users).Error; err != nil {
		return nil, apperr.Storage(op, err)
	}
	if len(users) == 0 {
		return nil, apperr.NotFound(op, "user", id)
	}
	return &users[0], nil
}

func paramID(c *fiber.Ctx) (uint, error) {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid id")
	}
	return uint(id), nil
}

// ----------------------------------------
// USERS (admin only)
// ----------------------------------------

// GET /api/users
func ListUsersHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var users []models.User
		if err := db.WithContext(c.UserContext()).Order("username ASC").Find(&users).Error; err != nil {
			return apperr.Storage("list users", err)
		}

		res := make([]auth.UserResponse, 0, len(users))
		for i := range users {
			res = append(res, auth.NewUserResponse(&users[i]))
		}
		return c.JSON(res)
	}
}

// POST /api/users
func CreateUserHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body CreateUserRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Role == "" {
			body.Role = models.RoleViewer
		}

		var user *models.User
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			var err error
			user, err = auth.CreateUser(tx, auth.RegisterRequest{
				Username: body.Username,
				Email:    body.Email,
				Password: body.Password,
			}, body.Role)
			if err != nil {
				return err
			}

			_, err = audit.WriteLog(tx, audit.LogOptions{
				Actor:       actor,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionCreate,
				Description: fmt.Sprintf("Created user %s with role %s", user.Username, user.Role),
				After:       snapshot(user),
			})
			return err
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(auth.NewUserResponse(user))
	}
}

// PUT /api/users/:id/role
func UpdateUserRoleHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c)
		if err != nil {
			return err
		}

		var body UpdateRoleRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if !body.Role.Valid() {
			return apperr.Validation("update role", "role must be admin, manager or viewer")
		}

		var updated models.User
		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			user, err := findUser(tx, "update role", id)
			if err != nil {
				return err
			}
			if user.ID == actor.UserID && body.Role != models.RoleAdmin {
				return apperr.Validation("update role", "you cannot remove your own admin role")
			}
			before := snapshot(user)

			if err := tx.Model(user).Update("role", body.Role).Error; err != nil {
				return apperr.Storage("update role", err)
			}
			user.Role = body.Role
			updated = *user

			_, err = audit.WriteLog(tx, audit.LogOptions{
				Actor:       actor,
				EntityType:  "user",
				EntityID:    user.ID,
				Action:      models.AuditActionRoleUpdate,
				Description: fmt.Sprintf("Changed role of %s from %s to %s", user.Username, before.Role, body.Role),
				Before:      before,
				After:       snapshot(user),
			})
			return err
		})
		if err != nil {
			return err
		}
		return c.JSON(auth.NewUserResponse(&updated))
	}
}

// DELETE /api/users/:id
func DeleteUserHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c)
		if err != nil {
			return err
		}
		if id == actor.UserID {
			return apperr.Validation("delete user", "you cannot delete your own account")
		}

		err = db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			user, err := findUser(tx, "delete user", id)
			if err != nil {
				return err
			}
			if err := tx.Delete(&models.User{}, id).Error; err != nil {
				return apperr.Storage("delete user", err)
			}

			_, err = audit.WriteLog(tx, audit.LogOptions{
				Actor:       actor,
				EntityType:  "user",
				EntityID:    id,
				Action:      models.AuditActionDelete,
				Description: fmt.Sprintf("Deleted user %s", user.Username),
				Before:      snapshot(user),
			})
			return err
		})
		if err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
