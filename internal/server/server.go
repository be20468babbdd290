// Package server assembles the Fiber application: middleware, services and
// the /api routes.
package server

import (
	"errors"
	"strings"

	"warehouse-backend/internal/admin"
	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/audit"
	"warehouse-backend/internal/auth"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/config"
	"warehouse-backend/internal/inventory"
	"warehouse-backend/internal/logging"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// ErrorHandler renders every error as {"error", "kind", "details"}.
func ErrorHandler(log *zap.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := apperr.HTTPStatus(err)

		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(fiber.Map{
				"error": fe.Message,
				"kind":  kindForStatus(fe.Code),
			})
		}

		var ae *apperr.Error
		if !errors.As(err, &ae) || status >= fiber.StatusInternalServerError {
			log.Error("unexpected error",
				zap.String("path", c.Path()),
				zap.Error(err),
			)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
				"kind":  apperr.KindName(err),
			})
		}

		body := fiber.Map{
			"error": ae.Error(),
			"kind":  apperr.KindName(err),
		}
		if len(ae.Fields) > 0 {
			body["details"] = ae.Fields
		}
		return c.Status(status).JSON(body)
	}
}

func kindForStatus(code int) string {
	switch code {
	case fiber.StatusUnauthorized:
		return "unauthenticated"
	case fiber.StatusForbidden:
		return "unauthorized"
	case fiber.StatusNotFound:
		return "not_found"
	case fiber.StatusBadRequest:
		return "validation"
	default:
		return "internal"
	}
}

func corsOrigins(raw string) string {
	origins := strings.Split(raw, ",")
	for i := range origins {
		origins[i] = strings.TrimSpace(origins[i])
	}
	return strings.Join(origins, ",")
}

// New wires services on db and registers every route.
func New(cfg *config.Config, db *gorm.DB, log *zap.Logger) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(log),
	})

	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{
		Generator: uuid.NewString,
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: corsOrigins(cfg.CORSOrigins),
		AllowHeaders: "Origin, Content-Type, Accept, Authorization",
		AllowMethods: "GET,POST,PUT,DELETE,OPTIONS",
	}))
	app.Use(logging.Middleware(log))

	store := inventory.NewStore(db, log, cfg.TxMaxRetries)
	catalog := inventory.NewCatalog(store, log)
	transfers := inventory.NewTransferService(store, log)
	lowStock := inventory.NewLowStockNotifier(store, cfg.LowStockThreshold)
	auditReader := audit.NewReader(db)

	api := app.Group("/api")

	// Public auth
	api.Post("/auth/login", auth.LoginHandler(cfg, db))
	api.Post("/auth/register", auth.RegisterHandler(db))
	api.Post("/auth/bootstrap-admin", auth.BootstrapAdminHandler(db))

	// Protected
	protected := api.Group("", auth.JWTMiddleware(cfg.JWTSecret, db))

	read := auth.RequireOperation(authz.ReadInventory)
	write := auth.RequireOperation(authz.WriteInventory)

	protected.Get("/auth/me", auth.MeHandler(db))

	// Warehouses
	protected.Get("/warehouses", read, inventory.ListWarehousesHandler(catalog))
	protected.Post("/warehouses", write, inventory.CreateWarehouseHandler(catalog))
	protected.Get("/warehouses/:id", read, inventory.GetWarehouseHandler(catalog))
	protected.Put("/warehouses/:id", write, inventory.UpdateWarehouseHandler(catalog))
	protected.Delete("/warehouses/:id", write, inventory.DeleteWarehouseHandler(catalog))

	// Stock lines
	protected.Get("/warehouses/:id/items", read, inventory.ListStockLinesHandler(catalog, store))
	protected.Post("/warehouses/:id/items", write, inventory.ReceiveStockHandler(catalog))
	protected.Post("/warehouses/:id/items/import", write, inventory.ImportStockHandler(catalog))
	protected.Get("/warehouses/:id/items/export", read, inventory.ExportStockHandler(catalog, store))
	protected.Get("/warehouses/:id/items/:item_id", read, inventory.GetStockLineHandler(store))
	protected.Put("/warehouses/:id/items/:item_id", write, inventory.SetStockHandler(catalog))
	protected.Delete("/warehouses/:id/items/:item_id", write, inventory.RemoveStockHandler(catalog))

	// Items
	protected.Get("/items", read, inventory.ListItemsHandler(catalog))
	protected.Post("/items", write, inventory.CreateItemHandler(catalog))
	protected.Get("/items/:id", read, inventory.GetItemHandler(catalog))
	protected.Put("/items/:id", write, inventory.UpdateItemHandler(catalog))
	protected.Delete("/items/:id", write, inventory.DeleteItemHandler(catalog))

	// Transfers
	protected.Post("/transfers", auth.RequireOperation(authz.TransferItems), inventory.CreateTransferHandler(transfers))
	protected.Get("/transfers", read, inventory.ListTransfersHandler(transfers))
	protected.Get("/transfers/:id", read, inventory.GetTransferHandler(transfers))

	protected.Get("/stock/low", read, inventory.LowStockHandler(lowStock))

	// Audit
	protected.Get("/audit", auth.RequireOperation(authz.ViewAudit), audit.ListAuditLogsHandler(auditReader, log))

	// Users (admin)
	users := protected.Group("/users", auth.RequireOperation(authz.ManageUsers))
	users.Get("/", admin.ListUsersHandler(db))
	users.Post("/", admin.CreateUserHandler(db))
	users.Put("/:id/role", admin.UpdateUserRoleHandler(db))
	users.Delete("/:id", admin.DeleteUserHandler(db))

	return app
}
