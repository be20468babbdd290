package audit

import (
	"bufio"
	"encoding/json"
	"strconv"
	"time"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/models"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

type AuditLogResponse struct {
	ID                uint               `json:"id"`
	CreatedAt         time.Time          `json:"created_at"`
	UserID            uint               `json:"user_id"`
	UserName          string             `json:"user_name"`
	EntityType        string             `json:"entity_type"`
	EntityID          uint               `json:"entity_id"`
	Action            models.AuditAction `json:"action"`
	ItemID            *uint              `json:"item_id"`
	SourceWarehouseID *uint              `json:"source_warehouse_id"`
	DestWarehouseID   *uint              `json:"destination_warehouse_id"`
	Quantity          *int64             `json:"quantity"`
	Description       string             `json:"description"`
	Before            json.RawMessage    `json:"before"`
	After             json.RawMessage    `json:"after"`
}

func NewAuditLogResponse(rec models.AuditLog) AuditLogResponse {
	return AuditLogResponse{
		ID:                rec.ID,
		CreatedAt:         rec.CreatedAt,
		UserID:            rec.UserID,
		UserName:          rec.UserName,
		EntityType:        rec.EntityType,
		EntityID:          rec.EntityID,
		Action:            rec.Action,
		ItemID:            rec.ItemID,
		SourceWarehouseID: rec.SourceWarehouseID,
		DestWarehouseID:   rec.DestWarehouseID,
		Quantity:          rec.Quantity,
		Description:       rec.Description,
		Before:            rawSnapshot(rec.BeforeData),
		After:             rawSnapshot(rec.AfterData),
	}
}

func rawSnapshot(s string) json.RawMessage {
	if s == "" || !json.Valid([]byte(s)) {
		return json.RawMessage("null")
	}
	return json.RawMessage(s)
}

func queryUint(c *fiber.Ctx, key string) (uint, error) {
	raw := c.Query(key)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(raw, 10, 64)
	if err != nil || v == 0 {
		return 0, apperr.Validation("audit query", key+" must be a positive integer")
	}
	return uint(v), nil
}

// queryTime accepts RFC 3339 or a plain date. A plain "to" date covers the
// whole day.
func queryTime(c *fiber.Ctx, key string, endOfDay bool) (*time.Time, error) {
	raw := c.Query(key)
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return nil, apperr.Validation("audit query", key+" must be RFC 3339 or YYYY-MM-DD")
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

// ParseFilter reads the audit filter from the query string.
func ParseFilter(c *fiber.Ctx) (Filter, error) {
	var f Filter
	var err error

	if f.WarehouseID, err = queryUint(c, "warehouse_id"); err != nil {
		return f, err
	}
	if f.ItemID, err = queryUint(c, "item_id"); err != nil {
		return f, err
	}
	if f.UserID, err = queryUint(c, "user_id"); err != nil {
		return f, err
	}
	f.Action = models.AuditAction(c.Query("action"))
	if f.From, err = queryTime(c, "from", false); err != nil {
		return f, err
	}
	if f.To, err = queryTime(c, "to", true); err != nil {
		return f, err
	}
	return f, nil
}

// GET /api/audit?warehouse_id=&item_id=&user_id=&action=&from=&to=&page=&per_page=
// format=ndjson streams every matching record instead of one page.
func ListAuditLogsHandler(reader *Reader, log *zap.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		f, err := ParseFilter(c)
		if err != nil {
			return err
		}

		if c.Query("format") == "ndjson" {
			ctx := c.UserContext()
			c.Set(fiber.HeaderContentType, "application/x-ndjson")
			c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
				enc := json.NewEncoder(w)
				for rec, err := range reader.Query(ctx, f) {
					if err != nil {
						log.Error("audit stream aborted", zap.Error(err))
						_ = enc.Encode(fiber.Map{"error": err.Error(), "kind": apperr.KindName(err)})
						break
					}
					if err := enc.Encode(NewAuditLogResponse(rec)); err != nil {
						return
					}
				}
				_ = w.Flush()
			})
			return nil
		}

		page, err := reader.Page(c.UserContext(), f, c.QueryInt("page", 1), c.QueryInt("per_page", DefaultPerPage))
		if err != nil {
			return err
		}

		items := make([]AuditLogResponse, 0, len(page.Items))
		for _, rec := range page.Items {
			items = append(items, NewAuditLogResponse(rec))
		}
		return c.JSON(fiber.Map{
			"items":    items,
			"total":    page.Total,
			"page":     page.Page,
			"per_page": page.PerPage,
			"pages":    page.Pages,
		})
	}
}
