package inventory

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

type SetStockRequest struct {
	Quantity *int64 `json:"quantity"`
}

// GET /api/warehouses/:id/items?search=
func ListStockLinesHandler(catalog *Catalog, store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		// 404 for an unknown warehouse rather than an empty list
		if _, err := catalog.GetWarehouse(c.UserContext(), id); err != nil {
			return err
		}

		lines, err := store.ListStockLines(c.UserContext(), id, c.Query("search"))
		if err != nil {
			return err
		}
		return c.JSON(lines)
	}
}

// GET /api/warehouses/:id/items/:item_id
func GetStockLineHandler(store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		itemID, err := paramID(c, "item_id")
		if err != nil {
			return err
		}

		line, err := store.GetStockLine(c.UserContext(), id, itemID)
		if err != nil {
			return err
		}
		return c.JSON(line)
	}
}

// POST /api/warehouses/:id/items
// Body: {"item_id": 3, "quantity": 10} or {"item": {...}, "quantity": 10}.
func ReceiveStockHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}

		var body ReceiveInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		line, err := catalog.ReceiveStock(c.UserContext(), actor, id, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(line)
	}
}

// PUT /api/warehouses/:id/items/:item_id
func SetStockHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		itemID, err := paramID(c, "item_id")
		if err != nil {
			return err
		}

		var body SetStockRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}
		if body.Quantity == nil {
			return apperr.Validation("set stock", "quantity is required")
		}

		line, err := catalog.SetStock(c.UserContext(), actor, id, itemID, *body.Quantity)
		if err != nil {
			return err
		}
		return c.JSON(line)
	}
}

// DELETE /api/warehouses/:id/items/:item_id?force=true
func RemoveStockHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		itemID, err := paramID(c, "item_id")
		if err != nil {
			return err
		}

		if err := catalog.RemoveStock(c.UserContext(), actor, id, itemID, c.QueryBool("force")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}

// GET /api/stock/low?threshold=
func LowStockHandler(notifier *LowStockNotifier) fiber.Handler {
	return func(c *fiber.Ctx) error {
		var threshold *int64
		if raw := c.Query("threshold"); raw != "" {
			v, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				return apperr.Validation("low stock", "threshold must be an integer")
			}
			threshold = &v
		}

		entries, err := notifier.Check(c.UserContext(), threshold)
		if err != nil {
			return err
		}
		return c.JSON(entries)
	}
}

// POST /api/warehouses/:id/items/import (multipart, field "file")
// Books every row of an .xlsx sheet into the warehouse, all or nothing.
func ImportStockHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}

		fileHeader, err := c.FormFile("file")
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file upload missing")
		}
		if !strings.HasSuffix(strings.ToLower(fileHeader.Filename), ".xlsx") {
			return fiber.NewError(fiber.StatusBadRequest, "only .xlsx files are accepted")
		}

		file, err := fileHeader.Open()
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "file could not be opened")
		}
		defer file.Close()

		rows, err := ParseStockSheet(file)
		if err != nil {
			return err
		}

		total, err := catalog.ReceiveBatch(c.UserContext(), actor, id, rows)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{
			"rows":     len(rows),
			"quantity": total,
		})
	}
}

// GET /api/warehouses/:id/items/export
func ExportStockHandler(catalog *Catalog, store *Store) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		w, err := catalog.GetWarehouse(c.UserContext(), id)
		if err != nil {
			return err
		}

		lines, err := store.ListStockLines(c.UserContext(), id, "")
		if err != nil {
			return err
		}

		var buf bytes.Buffer
		if err := WriteStockSheet(&buf, lines); err != nil {
			return apperr.Storage("export stock", err)
		}

		c.Set(fiber.HeaderContentType, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
		c.Attachment(fmt.Sprintf("stock-%s.xlsx", w.Code))
		return c.Send(buf.Bytes())
	}
}
