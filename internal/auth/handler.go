package auth

import (
	"errors"
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/config"
	"warehouse-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

const minPasswordLen = 8

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Username string `json:"username"` // username or email
	Password string `json:"password"`
}

type UserResponse struct {
	ID        uint            `json:"id"`
	Username  string          `json:"username"`
	Email     string          `json:"email"`
	Role      models.UserRole `json:"role"`
	CreatedAt time.Time       `json:"created_at"`
}

func NewUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Username:  u.Username,
		Email:     u.Email,
		Role:      u.Role,
		CreatedAt: u.CreatedAt,
	}
}

// CreateUser validates the credentials and stores a user with a bcrypt
// password hash. Duplicate usernames or emails are a Conflict.
func CreateUser(tx *gorm.DB, req RegisterRequest, role models.UserRole) (*models.User, error) {
	const op = "create user"

	username := strings.TrimSpace(req.Username)
	email := strings.TrimSpace(strings.ToLower(req.Email))

	if username == "" || email == "" || req.Password == "" {
		return nil, apperr.Validation(op, "username, email and password are required")
	}
	if utf8.RuneCountInString(username) > 80 {
		return nil, apperr.Validation(op, "username too long")
	}
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, apperr.Validation(op, "invalid email address")
	}
	if len(req.Password) < minPasswordLen {
		return nil, apperr.Validation(op, "password must be at least 8 characters")
	}
	if !role.Valid() {
		return nil, apperr.Validation(op, "unknown role")
	}

	var count int64
	if err := tx.Model(&models.User{}).Where("username = ? OR email = ?", username, email).Count(&count).Error; err != nil {
		return nil, apperr.Storage(op, err)
	}
	if count > 0 {
		return nil, apperr.New(apperr.ErrConflict, op, "username or email already taken", apperr.Fields{"username": username})
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, apperr.Storage(op, err)
	}

	user := models.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		Role:         role,
	}
	if err := tx.Create(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, apperr.New(apperr.ErrConflict, op, "username or email already taken", apperr.Fields{"username": username})
		}
		return nil, apperr.Storage(op, err)
	}
	return &user, nil
}

// POST /api/auth/register
// Self-registration always yields a viewer.
func RegisterHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		user, err := CreateUser(db.WithContext(c.UserContext()), body, models.RoleViewer)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(NewUserResponse(user))
	}
}

// bootstrapLockKey names the advisory lock that serialises bootstrap
// requests, so two of them cannot both see "no admin" and both insert one.
const bootstrapLockKey int64 = 0x77686261646d // "whbadm"

// lockBootstrap holds the lock until tx ends. SQLite has a single writer and
// needs no lock.
func lockBootstrap(tx *gorm.DB) error {
	if tx.Dialector.Name() != "postgres" {
		return nil
	}
	return tx.Exec("SELECT pg_advisory_xact_lock(?)", bootstrapLockKey).Error
}

// POST /api/auth/bootstrap-admin
// Creates the first admin; refused once any admin exists.
func BootstrapAdminHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body RegisterRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		var user *models.User
		err := db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
			if err := lockBootstrap(tx); err != nil {
				return apperr.Storage("bootstrap admin", err)
			}

			var count int64
			if err := tx.Model(&models.User{}).Where("role = ?", models.RoleAdmin).Count(&count).Error; err != nil {
				return apperr.Storage("bootstrap admin", err)
			}
			if count > 0 {
				return fiber.NewError(fiber.StatusForbidden, "an admin already exists")
			}

			var err error
			user, err = CreateUser(tx, body, models.RoleAdmin)
			return err
		})
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(NewUserResponse(user))
	}
}

// POST /api/auth/login
func LoginHandler(cfg *config.Config, db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var body LoginRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		login := strings.TrimSpace(body.Username)
		if login == "" || body.Password == "" {
			return fiber.NewError(fiber.StatusBadRequest, "username and password are required")
		}

		var users []models.User
		err := db.WithContext(c.UserContext()).
			Where("username = ? OR email = ?", login, strings.ToLower(login)).
			Limit(1).
			Find(&users).Error
		if err != nil {
			return apperr.Storage("login", err)
		}
		if len(users) == 0 {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid username or password")
		}
		user := users[0]

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(body.Password)); err != nil {
			return fiber.NewError(fiber.StatusUnauthorized, "invalid username or password")
		}

		token, err := GenerateToken(cfg.JWTSecret, cfg.JWTTTL, &user)
		if err != nil {
			return fiber.NewError(fiber.StatusInternalServerError, "could not issue token")
		}

		return c.JSON(fiber.Map{
			"token": token,
			"user":  NewUserResponse(&user),
		})
	}
}

// GET /api/auth/me
func MeHandler(db *gorm.DB) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := ActorFrom(c)
		if err != nil {
			return err
		}

		var user models.User
		if err := db.WithContext(c.UserContext()).First(&user, actor.UserID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fiber.NewError(fiber.StatusUnauthorized, "user no longer exists")
			}
			return apperr.Storage("me", err)
		}
		return c.JSON(NewUserResponse(&user))
	}
}
