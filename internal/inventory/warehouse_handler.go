package inventory

import (
	"time"

	"warehouse-backend/internal/auth"
	"warehouse-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type WarehouseResponse struct {
	ID            uint      `json:"id"`
	Code          string    `json:"code"`
	Name          string    `json:"name"`
	Address       string    `json:"address"`
	ContactPerson string    `json:"contact_person"`
	Capacity      *float64  `json:"capacity"`
	Notes         string    `json:"notes"`
	TotalQuantity *int64    `json:"total_quantity,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

func NewWarehouseResponse(w *models.Warehouse) WarehouseResponse {
	return WarehouseResponse{
		ID:            w.ID,
		Code:          w.Code,
		Name:          w.Name,
		Address:       w.Address,
		ContactPerson: w.ContactPerson,
		Capacity:      w.Capacity,
		Notes:         w.Notes,
		CreatedAt:     w.CreatedAt,
		UpdatedAt:     w.UpdatedAt,
	}
}

func summaryResponse(s *WarehouseSummary) WarehouseResponse {
	res := NewWarehouseResponse(&s.Warehouse)
	total := s.TotalQuantity
	res.TotalQuantity = &total
	return res
}

func paramID(c *fiber.Ctx, key string) (uint, error) {
	id, err := c.ParamsInt(key)
	if err != nil || id <= 0 {
		return 0, fiber.NewError(fiber.StatusBadRequest, "invalid "+key)
	}
	return uint(id), nil
}

// ----------------------------------------
// WAREHOUSES
// ----------------------------------------

// GET /api/warehouses?search=
func ListWarehousesHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		warehouses, err := catalog.ListWarehouses(c.UserContext(), c.Query("search"))
		if err != nil {
			return err
		}

		res := make([]WarehouseResponse, 0, len(warehouses))
		for i := range warehouses {
			res = append(res, summaryResponse(&warehouses[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/warehouses/:id
func GetWarehouseHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		w, err := catalog.GetWarehouse(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(summaryResponse(w))
	}
}

// POST /api/warehouses
func CreateWarehouseHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body WarehouseInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		w, err := catalog.CreateWarehouse(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(NewWarehouseResponse(w))
	}
}

// PUT /api/warehouses/:id
func UpdateWarehouseHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}

		var body WarehouseInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		w, err := catalog.UpdateWarehouse(c.UserContext(), actor, id, body)
		if err != nil {
			return err
		}
		return c.JSON(NewWarehouseResponse(w))
	}
}

// DELETE /api/warehouses/:id?force=true
func DeleteWarehouseHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}

		if err := catalog.DeleteWarehouse(c.UserContext(), actor, id, c.QueryBool("force")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
