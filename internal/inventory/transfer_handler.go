package inventory

import (
	"strconv"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/auth"

	"github.com/gofiber/fiber/v2"
)

// POST /api/transfers
func CreateTransferHandler(svc *TransferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		actor, err := auth.ActorFrom(c)
		if err != nil {
			return err
		}

		var body TransferRequest
		if err := c.BodyParser(&body); err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
		}

		transfer, err := svc.Transfer(c.UserContext(), actor, body)
		if err != nil {
			return err
		}
		return c.Status(fiber.StatusCreated).JSON(transfer)
	}
}

func queryID(c *fiber.Ctx, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.Validation("list transfers", key+" must be a positive integer")
	}
	return uint(v), nil
}

// GET /api/transfers?warehouse_id=&item_id=
func ListTransfersHandler(svc *TransferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		warehouseID, err := queryID(c, "warehouse_id")
		if err != nil {
			return err
		}
		itemID, err := queryID(c, "item_id")
		if err != nil {
			return err
		}

		transfers, err := svc.ListTransfers(c.UserContext(), warehouseID, itemID)
		if err != nil {
			return err
		}
		return c.JSON(transfers)
	}
}

// GET /api/transfers/:id
func GetTransferHandler(svc *TransferService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		id, err := paramID(c, "id")
		if err != nil {
			return err
		}
		transfer, err := svc.GetTransfer(c.UserContext(), id)
		if err != nil {
			return err
		}
		return c.JSON(transfer)
	}
}
