package inventory

import (
	"context"
	"errors"
	"sort"
	"time"

	"warehouse-backend/internal/apperr"
	"warehouse-backend/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Postgres codes that mean "run the whole transaction again".
const (
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Store is the transactional inventory store. Every mutating call takes the
// transaction it must run on; WithinTx opens one.
type Store struct {
	db         *gorm.DB
	log        *zap.Logger
	maxRetries int
}

func NewStore(db *gorm.DB, log *zap.Logger, maxRetries int) *Store {
	if maxRetries < 1 {
		maxRetries = 1
	}
	return &Store{db: db, log: log, maxRetries: maxRetries}
}

func (s *Store) DB() *gorm.DB {
	return s.db
}

// WithinTx runs fn as one unit of work. A serialization failure or deadlock
// reported by Postgres reruns fn on a fresh transaction, up to maxRetries
// attempts in total; any other error rolls back and is returned as is.
func (s *Store) WithinTx(ctx context.Context, op string, fn func(tx *gorm.DB) error) error {
	var err error
	for attempt := 1; attempt <= s.maxRetries; attempt++ {
		err = s.db.WithContext(ctx).Transaction(fn)
		if err == nil || !retryable(err) {
			break
		}
		s.log.Warn("transaction conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
	}
	return apperr.Storage(op, err)
}

func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgSerializationFailure || pgErr.Code == pgDeadlockDetected
	}
	return false
}

// GetStock returns the quantity of item in warehouse, 0 when there is no entry.
func (s *Store) GetStock(ctx context.Context, warehouseID, itemID uint) (int64, error) {
	var entries []models.StockEntry
	err := s.db.WithContext(ctx).
		Where("warehouse_id = ? AND item_id = ?", warehouseID, itemID).
		Limit(1).
		Find(&entries).Error
	if err != nil {
		return 0, apperr.Storage("get stock", err)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	return entries[0].Quantity, nil
}

// lockEntries takes row locks on the given entries of one item in ascending
// warehouse order, so two transfers over the same pair of warehouses cannot
// deadlock. Missing entries are skipped. SQLite ignores the locking clause.
func lockEntries(tx *gorm.DB, itemID uint, warehouseIDs ...uint) (map[uint]int64, error) {
	ids := append([]uint(nil), warehouseIDs...)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	levels := make(map[uint]int64, len(ids))
	for _, wid := range ids {
		var entries []models.StockEntry
		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("warehouse_id = ? AND item_id = ?", wid, itemID).
			Limit(1).
			Find(&entries).Error
		if err != nil {
			return nil, err
		}
		if len(entries) == 1 {
			levels[wid] = entries[0].Quantity
		} else {
			levels[wid] = 0
		}
	}
	return levels, nil
}

// AdjustStock applies delta to the (warehouse, item) entry on tx and returns
// the new quantity. A debit that would take the quantity below zero fails
// with InsufficientStock and changes nothing.
func (s *Store) AdjustStock(ctx context.Context, tx *gorm.DB, warehouseID, itemID uint, delta int64) (int64, error) {
	tx = tx.WithContext(ctx)
	now := time.Now()

	current, err := lockEntries(tx, itemID, warehouseID)
	if err != nil {
		return 0, apperr.Storage("adjust stock", err)
	}
	available := current[warehouseID]

	if delta == 0 {
		return available, nil
	}

	if delta < 0 {
		// Guarded update: the WHERE clause re-checks the quantity on the
		// locked row, so a concurrent debit can never take it below zero.
		res := tx.Model(&models.StockEntry{}).
			Where("warehouse_id = ? AND item_id = ? AND quantity + ? >= 0", warehouseID, itemID, delta).
			Updates(map[string]any{
				"quantity":   gorm.Expr("quantity + ?", delta),
				"updated_at": now,
			})
		if res.Error != nil {
			return 0, apperr.Storage("adjust stock", res.Error)
		}
		if res.RowsAffected == 0 {
			return 0, insufficient("adjust stock", warehouseID, itemID, -delta, available)
		}
	} else {
		entry := models.StockEntry{WarehouseID: warehouseID, ItemID: itemID, Quantity: delta, UpdatedAt: now}
		err := tx.Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "warehouse_id"}, {Name: "item_id"}},
			DoUpdates: clause.Assignments(map[string]any{
				"quantity":   gorm.Expr("stock_entries.quantity + ?", delta),
				"updated_at": now,
			}),
		}).Create(&entry).Error
		if err != nil {
			return 0, apperr.Storage("adjust stock", err)
		}
	}

	var entry models.StockEntry
	if err := tx.Where("warehouse_id = ? AND item_id = ?", warehouseID, itemID).Take(&entry).Error; err != nil {
		return 0, apperr.Storage("adjust stock", err)
	}
	return entry.Quantity, nil
}

func insufficient(op string, warehouseID, itemID uint, requested, available int64) error {
	return apperr.New(apperr.ErrInsufficientStock, op, "", apperr.Fields{
		"warehouse_id": warehouseID,
		"item_id":      itemID,
		"quantity":     requested,
		"available":    available,
	})
}

// StockLine is a stock entry joined with its item, as listed for a warehouse.
type StockLine struct {
	WarehouseID uint       `json:"warehouse_id"`
	ItemID      uint       `json:"item_id"`
	SKU         string     `json:"sku"`
	Name        string     `json:"name"`
	Unit        string     `json:"unit"`
	BatchNumber string     `json:"batch_number"`
	ExpiryDate  *time.Time `json:"expiry_date"`
	Quantity    int64      `json:"quantity"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

func (s *Store) stockLines(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).
		Table("stock_entries AS s").
		Select("s.warehouse_id, s.item_id, i.sku, i.name, i.unit, i.batch_number, i.expiry_date, s.quantity, s.updated_at").
		Joins("JOIN items AS i ON i.id = s.item_id")
}

func (s *Store) ListStockLines(ctx context.Context, warehouseID uint, search string) ([]StockLine, error) {
	dbq := s.stockLines(ctx).Where("s.warehouse_id = ?", warehouseID)
	if search != "" {
		term := likeTerm(search)
		dbq = dbq.Where("(LOWER(i.name) LIKE ? OR LOWER(i.sku) LIKE ? OR LOWER(i.description) LIKE ?)", term, term, term)
	}

	lines := make([]StockLine, 0)
	if err := dbq.Order("i.name ASC, s.item_id ASC").Scan(&lines).Error; err != nil {
		return nil, apperr.Storage("list stock", err)
	}
	return lines, nil
}

func (s *Store) GetStockLine(ctx context.Context, warehouseID, itemID uint) (*StockLine, error) {
	var lines []StockLine
	err := s.stockLines(ctx).
		Where("s.warehouse_id = ? AND s.item_id = ?", warehouseID, itemID).
		Limit(1).
		Scan(&lines).Error
	if err != nil {
		return nil, apperr.Storage("get stock line", err)
	}
	if len(lines) == 0 {
		return nil, apperr.New(apperr.ErrNotFound, "get stock line", "item not stocked in warehouse", apperr.Fields{
			"warehouse_id": warehouseID,
			"item_id":      itemID,
		})
	}
	return &lines[0], nil
}

// TotalQuantities sums stock per warehouse.
func (s *Store) TotalQuantities(ctx context.Context, warehouseIDs ...uint) (map[uint]int64, error) {
	type row struct {
		WarehouseID uint
		Total       int64
	}
	var rows []row

	dbq := s.db.WithContext(ctx).Model(&models.StockEntry{}).
		Select("warehouse_id, COALESCE(SUM(quantity), 0) AS total").
		Group("warehouse_id")
	if len(warehouseIDs) > 0 {
		dbq = dbq.Where("warehouse_id IN ?", warehouseIDs)
	}
	if err := dbq.Scan(&rows).Error; err != nil {
		return nil, apperr.Storage("total quantities", err)
	}

	totals := make(map[uint]int64, len(rows))
	for _, r := range rows {
		totals[r.WarehouseID] = r.Total
	}
	return totals, nil
}
