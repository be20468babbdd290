package inventory

import (
	"time"

	"warehouse-backend/internal/auth"
	"warehouse-backend/internal/models"

	"github.com/gofiber/fiber/v2"
)

type ItemResponse struct {
	ID                uint      `json:"id"`
	SKU               string    `json:"sku"`
	Name              string    `json:"name"`
	Description       string    `json:"description"`
	Unit              string    `json:"unit"`
	BatchNumber       string    `json:"batch_number"`
	ExpiryDate        *string   `json:"expiry_date"`
	LowStockThreshold *int64    `json:"low_stock_threshold"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

func NewItemResponse(item *models.Item) ItemResponse {
	res := ItemResponse{
		ID:                item.ID,
		SKU:               item.SKU,
		Name:              item.Name,
		Description:       item.Description,
		Unit:              item.Unit,
		BatchNumber:       item.BatchNumber,
		LowStockThreshold: item.LowStockThreshold,
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
	if item.ExpiryDate != nil {
		d := item.ExpiryDate.Format("2006-01-02")
		res.ExpiryDate = &d
	}
	return res
}

// ----------------------------------------
// ITEMS
// ----------------------------------------

// GET /api/items?search=&batch_number=
func ListItemsHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		items, err := catalog.ListItems(c.UserContext(), ItemFilter{
			Search:      c.Query("search"),
			BatchNumber: c.Query("batch_number"),
		})
		if err != nil {
			return err
		}

		res := make([]ItemResponse, 0, len(items))
		for i := range items {
			res = append(res, NewItemResponse(&items[i]))
		}
		return c.JSON(res)
	}
}

// GET /api/items/:id
func GetItemHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		item, err := catalog.GetItem(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(NewItemResponse(item))
	}
}

// POST /api/items
func CreateItemHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body ItemInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		item, err := catalog.CreateItem(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(NewItemResponse(item))
	}
}

// PUT /api/items/:id
func UpdateItemHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}

		var body ItemInput
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		item, err := catalog.UpdateItem(c.UserContext(), actor, id, body)
		if err != nil {
			return err
		}
		return c.JSON(NewItemResponse(item))
	}
}

// DELETE /api/items/:id?force=true
func DeleteItemHandler(catalog *Catalog) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}

		if err := catalog.DeleteItem(c.UserContext(), actor, id, c.QueryBool("force")); err != nil {
			return err
		}
		return c.SendStatus(fiber.StatusNoContent)
	}
}
