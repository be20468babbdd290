package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"iter"
	"time"
	"unicode/utf8"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/models"

	"gorm.io/gorm"
)

const (
	DefaultPerPage = 50
	MaxPerPage     = 100

	// Column width of AuditLog.Description, in characters.
	MaxDescriptionLen = 255
)

type LogOptions struct {
	Actor             authz.Actor
	EntityType        string
	EntityID          uint
	Action            models.AuditAction
	ItemID            *uint
	SourceWarehouseID *uint
	DestWarehouseID   *uint
	Quantity          *int64
	Description       string
	Before            any
	After             any
}

// WriteLog appends one record on tx. Run it on the transaction that made
// the change so a failed append rolls the change back.
func WriteLog(tx *gorm.DB, opts LogOptions) (*models.AuditLog, error) {
	// jsonb needs the "null" literal rather than an empty string
	beforeStr, err := marshalSnapshot(opts.Before)
	if err != nil {
		return nil, apperr.Storage("write audit log", fmt.Errorf("encode before snapshot: %w", err))
	}
	afterStr, err := marshalSnapshot(opts.After)
	if err != nil {
		return nil, apperr.Storage("write audit log", fmt.Errorf("encode after snapshot: %w", err))
	}

	rec := models.AuditLog{
		UserID:            opts.Actor.UserID,
		UserName:          opts.Actor.UserName,
		EntityType:        opts.EntityType,
		EntityID:          opts.EntityID,
		Action:            opts.Action,
		ItemID:            opts.ItemID,
		SourceWarehouseID: opts.SourceWarehouseID,
		DestWarehouseID:   opts.DestWarehouseID,
		Quantity:          opts.Quantity,
		Description:       clipRunes(opts.Description, MaxDescriptionLen),
		BeforeData:        beforeStr,
		AfterData:         afterStr,
	}

	if err := tx.Create(&rec).Error; err != nil {
		return nil, apperr.Storage("write audit log", err)
	}
	return &rec, nil
}

// clipRunes shortens s to at most n characters without splitting a rune.
func clipRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i]
		}
		count++
	}
	return s
}

func marshalSnapshot(v any) (string, error) {
	if v == nil {
		return "null", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Filter narrows a query. Zero values mean "any".
type Filter struct {
	WarehouseID uint
	ItemID      uint
	UserID      uint
	Action      models.AuditAction
	From        *time.Time
	To          *time.Time
}

type Page struct {
	Items   []models.AuditLog `json:"items"`
	Total   int64             `json:"total"`
	Page    int               `json:"page"`
	PerPage int               `json:"per_page"`
	Pages   int               `json:"pages"`
}

type Reader struct {
	db *gorm.DB
}

func NewReader(db *gorm.DB) *Reader {
	return &Reader{db: db}
}

func (r *Reader) filtered(ctx context.Context, f Filter) *gorm.DB {
	dbq := r.db.WithContext(ctx).Model(&models.AuditLog{})

	if f.WarehouseID != 0 {
		dbq = dbq.Where("(source_warehouse_id = ? OR dest_warehouse_id = ?)", f.WarehouseID, f.WarehouseID)
	}
	if f.ItemID != 0 {
		dbq = dbq.Where("item_id = ?", f.ItemID)
	}
	if f.UserID != 0 {
		dbq = dbq.Where("user_id = ?", f.UserID)
	}
	if f.Action != "" {
		dbq = dbq.Where("action = ?", f.Action)
	}
	if f.From != nil {
		dbq = dbq.Where("created_at >= ?", *f.From)
	}
	if f.To != nil {
		dbq = dbq.Where("created_at <= ?", *f.To)
	}
	return dbq
}

func (r *Reader) ordered(ctx context.Context, f Filter) *gorm.DB {
	return r.filtered(ctx, f).Order("created_at ASC, id ASC")
}

// Query streams the matching records oldest first. Each range over the
// returned sequence runs the query again, so it can be restarted.
func (r *Reader) Query(ctx context.Context, f Filter) iter.Seq2[models.AuditLog, error] {
	return func(yield func(models.AuditLog, error) bool) {
		rows, err := r.ordered(ctx, f).Rows()
		if err != nil {
			yield(models.AuditLog{}, apperr.Storage("query audit log", err))
			return
		}
		defer rows.Close()

		for rows.Next() {
			var rec models.AuditLog
			if err := r.db.ScanRows(rows, &rec); err != nil {
				yield(models.AuditLog{}, apperr.Storage("query audit log", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.AuditLog{}, apperr.Storage("query audit log", err))
		}
	}
}

// Collect drains Query into a slice.
func (r *Reader) Collect(ctx context.Context, f Filter) ([]models.AuditLog, error) {
	var out []models.AuditLog
	for rec, err := range r.Query(ctx, f) {
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (r *Reader) Page(ctx context.Context, f Filter, page, perPage int) (*Page, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = DefaultPerPage
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}

	var total int64
	if err := r.filtered(ctx, f).Count(&total).Error; err != nil {
		return nil, apperr.Storage("count audit log", err)
	}

	items := make([]models.AuditLog, 0, perPage)
	if err := r.ordered(ctx, f).Offset((page - 1) * perPage).Limit(perPage).Find(&items).Error; err != nil {
		return nil, apperr.Storage("list audit log", err)
	}

	return &Page{
		Items:   items,
		Total:   total,
		Page:    page,
		PerPage: perPage,
		Pages:   int((total + int64(perPage) - 1) / int64(perPage)),
	}, nil
}
