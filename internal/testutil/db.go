// Package testutil provides an in-memory database and fixtures for package
// tests.
package testutil

import (
	"testing"

	"warehouse-backend/internal/authz"
	"warehouse-backend/internal/database"
	"warehouse-backend/internal/logging"
	"warehouse-backend/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

// NewDB opens a migrated in-memory SQLite database with foreign keys
// enforced. The pool holds a single connection, so concurrent units of work
// run one after another the way row locks make them on Postgres.
func NewDB(t *testing.T) *gorm.DB {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:?_pragma=foreign_keys(1)"), &gorm.Config{
		Logger: logging.NewGormLogger(zap.NewNop(), logger.Silent, 0),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, database.Migrate(db))
	return db
}

func CreateUser(t *testing.T, db *gorm.DB, username string, role models.UserRole) models.User {
	t.Helper()
	user := models.User{
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "x",
		Role:         role,
	}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func Actor(user models.User) authz.Actor {
	return authz.Actor{UserID: user.ID, UserName: user.Username, Role: user.Role}
}

func CreateWarehouse(t *testing.T, db *gorm.DB, code string) models.Warehouse {
	t.Helper()
	w := models.Warehouse{Code: code, Name: "Warehouse " + code}
	require.NoError(t, db.Create(&w).Error)
	return w
}

func CreateItem(t *testing.T, db *gorm.DB, sku string) models.Item {
	t.Helper()
	item := models.Item{SKU: sku, Name: "Item " + sku, Unit: "units"}
	require.NoError(t, db.Create(&item).Error)
	return item
}

func SetStock(t *testing.T, db *gorm.DB, warehouseID, itemID uint, quantity int64) {
	t.Helper()
	entry := models.StockEntry{WarehouseID: warehouseID, ItemID: itemID, Quantity: quantity}
	require.NoError(t, db.Clauses(clause.OnConflict{UpdateAll: true}).Create(&entry).Error)
}

func Stock(t *testing.T, db *gorm.DB, warehouseID, itemID uint) int64 {
	t.Helper()
	var entry models.StockEntry
	err := db.Where("warehouse_id = ? AND item_id = ?", warehouseID, itemID).Limit(1).Find(&entry).Error
	require.NoError(t, err)
	return entry.Quantity
}

func Count(t *testing.T, db *gorm.DB, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(model).Count(&n).Error)
	return n
}
